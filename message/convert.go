package message

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"golang.org/x/exp/constraints"
)

var (
	// ErrUnsupported is returned for values outside the closed variant set.
	ErrUnsupported = errors.New("message: unsupported value")
	// ErrCyclicTable is returned when a table contains itself.
	ErrCyclicTable = errors.New("message: cyclic table")
	// ErrThreadYieldArgument is returned when a ThreadYield is used as an input.
	ErrThreadYieldArgument = errors.New("message: thread_yield cannot be sent as an argument")
)

// FromBool converts a bool.
func FromBool(b bool) Value { return Boolean(b) }

// FromString converts a string.
func FromString(s string) Value { return String(s) }

// FromBytes converts a byte slice into a String.
func FromBytes(b []byte) Value { return String(b) }

// FromInt converts any signed or unsigned integer width.
// Unsigned values above math.MaxInt64 wrap, as a plain int64 conversion does.
func FromInt[T constraints.Integer](i T) Value { return Integer(int64(i)) }

// FromFloat converts any float width.
func FromFloat[T constraints.Float](f T) Value { return Number(float64(f)) }

// From converts a dynamic Go value. Primitives never fail; maps with string keys and
// slices become tables (slice indexes are 1-based decimal keys, as in Lua).
func From(x interface{}) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Nil{}, nil
	case Value:
		return v, nil
	case bool:
		return FromBool(v), nil
	case string:
		return FromString(v), nil
	case []byte:
		return FromBytes(v), nil
	case int:
		return FromInt(v), nil
	case int8:
		return FromInt(v), nil
	case int16:
		return FromInt(v), nil
	case int32:
		return FromInt(v), nil
	case int64:
		return FromInt(v), nil
	case uint:
		return FromInt(v), nil
	case uint8:
		return FromInt(v), nil
	case uint16:
		return FromInt(v), nil
	case uint32:
		return FromInt(v), nil
	case uint64:
		return FromInt(v), nil
	case uintptr:
		return FromInt(v), nil
	case float32:
		return FromFloat(v), nil
	case float64:
		return FromFloat(v), nil
	case map[string]Value:
		return Table(v), nil
	case map[string]interface{}:
		t := make(Table, len(v))
		for k, item := range v {
			converted, err := From(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			t[k] = converted
		}
		return t, nil
	case []interface{}:
		t := make(Table, len(v))
		for i, item := range v {
			converted, err := From(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i+1, err)
			}
			t[strconv.Itoa(i+1)] = converted
		}
		return t, nil
	}

	return fromReflect(reflect.ValueOf(x))
}

// fromReflect handles named types (type Celsius float64) and typed maps/slices.
func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return Boolean(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Integer(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Integer(int64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key type %s", ErrUnsupported, rv.Type().Key())
		}
		t := make(Table, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			converted, err := From(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", iter.Key().String(), err)
			}
			t[iter.Key().String()] = converted
		}
		return t, nil
	case reflect.Slice, reflect.Array:
		t := make(Table, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			converted, err := From(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i+1, err)
			}
			t[strconv.Itoa(i+1)] = converted
		}
		return t, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Nil{}, nil
		}
		return From(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, rv.Kind())
}
