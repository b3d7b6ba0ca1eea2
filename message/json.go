package message

import (
	"encoding/json"
	"strconv"
)

// ToAny converts v into plain Go values suitable for encoding/json.
// A ThreadYield renders as {"continuation": id}.
func ToAny(v Value) interface{} {
	switch x := v.(type) {
	case nil, Nil:
		return nil
	case String:
		return string(x)
	case Integer:
		return int64(x)
	case Number:
		return float64(x)
	case Boolean:
		return bool(x)
	case Table:
		out := make(map[string]interface{}, len(x))
		for k, item := range x {
			out[k] = ToAny(item)
		}
		return out
	case ThreadYield:
		return map[string]interface{}{"continuation": int64(x)}
	}
	return nil
}

// FromAny converts a decoded JSON document. Whole JSON numbers become Integer.
func FromAny(x interface{}) (Value, error) {
	if n, ok := x.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return Integer(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	}
	if f, ok := x.(float64); ok {
		return fromLuaNumber(f), nil
	}
	if m, ok := x.(map[string]interface{}); ok {
		t := make(Table, len(m))
		for k, item := range m {
			converted, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			t[k] = converted
		}
		return t, nil
	}
	if s, ok := x.([]interface{}); ok {
		items := make(map[string]interface{}, len(s))
		for i, item := range s {
			items[strconv.Itoa(i+1)] = item
		}
		return FromAny(items)
	}
	return From(x)
}

// Marshal encodes v as JSON.
func Marshal(v Value) ([]byte, error) {
	return json.Marshal(ToAny(v))
}
