package message

import (
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// ToLua converts v into a value owned by L.
// Integer and Number keep their variant: values a Lua double would change are boxed.
func ToLua(L *lua.LState, v Value) (lua.LValue, error) {
	switch x := v.(type) {
	case nil, Nil:
		return lua.LNil, nil
	case String:
		return lua.LString(x), nil
	case Integer, Number:
		return numberToLua(L, x), nil
	case Boolean:
		return lua.LBool(x), nil
	case Table:
		tbl := L.CreateTable(0, len(x))
		for k, item := range x {
			lv, err := ToLua(L, item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			tbl.RawSetString(k, lv)
		}
		return tbl, nil
	case ThreadYield:
		return nil, ErrThreadYieldArgument
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, v)
}

// FromLua converts a Lua value back into a Value.
// A Lua number with no fractional part becomes Integer, any other number Number.
// Boxed numbers made by ToLua come back as the exact Value they carry.
// Numeric table keys are rendered as decimal strings; other key types are rejected.
func FromLua(lv lua.LValue) (Value, error) {
	return fromLua(lv, make(map[*lua.LTable]bool))
}

func fromLua(lv lua.LValue, path map[*lua.LTable]bool) (Value, error) {
	switch x := lv.(type) {
	case nil, *lua.LNilType:
		return Nil{}, nil
	case lua.LBool:
		return Boolean(x), nil
	case lua.LString:
		return String(x), nil
	case lua.LNumber:
		return fromLuaNumber(float64(x)), nil
	case *lua.LUserData:
		if v, ok := unboxNumber(x); ok {
			return v, nil
		}
	case *lua.LTable:
		if path[x] {
			return nil, ErrCyclicTable
		}
		path[x] = true
		defer delete(path, x)

		t := make(Table)
		var firstErr error
		x.ForEach(func(k, item lua.LValue) {
			if firstErr != nil {
				return
			}
			key, err := tableKey(k)
			if err != nil {
				firstErr = err
				return
			}
			converted, err := fromLua(item, path)
			if err != nil {
				firstErr = fmt.Errorf("key %q: %w", key, err)
				return
			}
			t[key] = converted
		})
		if firstErr != nil {
			return nil, firstErr
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: lua %s", ErrUnsupported, lv.Type())
}

func fromLuaNumber(f float64) Value {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return Integer(int64(f))
	}
	return Number(f)
}

func tableKey(k lua.LValue) (string, error) {
	switch key := k.(type) {
	case lua.LString:
		return string(key), nil
	case lua.LNumber:
		if n, ok := fromLuaNumber(float64(key)).(Integer); ok {
			return strconv.FormatInt(int64(n), 10), nil
		}
		return strconv.FormatFloat(float64(key), 'g', -1, 64), nil
	case *lua.LUserData:
		if v, ok := unboxNumber(key); ok {
			return v.String(), nil
		}
	}
	return "", fmt.Errorf("%w: table key of type %s", ErrUnsupported, k.Type())
}
