package message

import (
	"math"

	lua "github.com/yuin/gopher-lua"
)

// Lua 5.1 numbers are doubles, which cannot tell Integer(2) from Number(2.0) and
// cannot hold every int64. Those values cross into Lua as userdata carrying the
// original Value, with metamethods so scripts can still do arithmetic on them.
// Everything else travels as a plain Lua number.

const numberTypeName = "luactor.number"

// plainNumber reports whether v reads back unchanged from a plain Lua number.
func plainNumber(v Value) (lua.LNumber, bool) {
	switch x := v.(type) {
	case Integer:
		f := float64(x)
		return lua.LNumber(f), fromLuaNumber(f) == v
	case Number:
		_, stays := fromLuaNumber(float64(x)).(Number)
		return lua.LNumber(x), stays
	}
	return 0, false
}

func numberToLua(L *lua.LState, v Value) lua.LValue {
	if n, ok := plainNumber(v); ok {
		return n
	}
	ud := L.NewUserData()
	ud.Value = v
	ud.Metatable = numberMetatable(L)
	return ud
}

func unboxNumber(lv lua.LValue) (Value, bool) {
	ud, ok := lv.(*lua.LUserData)
	if !ok {
		return nil, false
	}
	switch ud.Value.(type) {
	case Integer, Number:
		return ud.Value.(Value), true
	}
	return nil, false
}

// LuaFloat reads a plain or boxed Lua number.
func LuaFloat(lv lua.LValue) (float64, bool) {
	if n, ok := lv.(lua.LNumber); ok {
		return float64(n), true
	}
	if v, ok := unboxNumber(lv); ok {
		return asFloat(v), true
	}
	return 0, false
}

func asFloat(v Value) float64 {
	if i, ok := v.(Integer); ok {
		return float64(i)
	}
	return float64(v.(Number))
}

// OpenNumbers registers the boxed number metatable on L and makes tonumber
// unwrap boxed values into plain Lua numbers.
func OpenNumbers(L *lua.LState) {
	numberMetatable(L)
	orig, ok := L.GetGlobal("tonumber").(*lua.LFunction)
	if !ok {
		return
	}
	L.SetGlobal("tonumber", L.NewFunction(func(L *lua.LState) int {
		if v, ok := unboxNumber(L.Get(1)); ok {
			L.Push(lua.LNumber(asFloat(v)))
			return 1
		}
		top := L.GetTop()
		L.Push(orig)
		for i := 1; i <= top; i++ {
			L.Push(L.Get(i))
		}
		L.Call(top, 1)
		return 1
	}))
}

func numberMetatable(L *lua.LState) *lua.LTable {
	mt := L.NewTypeMetatable(numberTypeName)
	if mt.RawGetString("__add") != lua.LNil {
		return mt
	}
	L.SetFuncs(mt, map[string]lua.LGFunction{
		"__add": arith(addInt, func(a, b float64) float64 { return a + b }),
		"__sub": arith(subInt, func(a, b float64) float64 { return a - b }),
		"__mul": arith(mulInt, func(a, b float64) float64 { return a * b }),
		"__div": arith(nil, func(a, b float64) float64 { return a / b }),
		"__mod": arith(modInt, modFloat),
		"__pow": arith(nil, math.Pow),
		"__unm": numberUnm,
		"__eq":  order(func(c int) bool { return c == 0 }),
		"__lt":  order(func(c int) bool { return c < 0 }),
		"__le":  order(func(c int) bool { return c <= 0 }),
		"__tostring": func(L *lua.LState) int {
			L.Push(lua.LString(numberArg(L, 1).String()))
			return 1
		},
		"__concat": func(L *lua.LState) int {
			L.Push(lua.LString(concatPart(L, 1) + concatPart(L, 2)))
			return 1
		},
	})
	return mt
}

// numberArg reads argument n as an Integer or Number, raising for anything else.
func numberArg(L *lua.LState, n int) Value {
	switch x := L.Get(n).(type) {
	case lua.LNumber:
		return fromLuaNumber(float64(x))
	case *lua.LUserData:
		if v, ok := unboxNumber(x); ok {
			return v
		}
	}
	L.ArgError(n, "number expected, got "+L.Get(n).Type().String())
	return nil
}

func concatPart(L *lua.LState, n int) string {
	lv := L.Get(n)
	if v, ok := unboxNumber(lv); ok {
		return v.String()
	}
	if lv.Type() == lua.LTString || lv.Type() == lua.LTNumber {
		return lua.LVAsString(lv)
	}
	L.ArgError(n, "cannot concatenate a "+lv.Type().String()+" value")
	return ""
}

// arith applies intOp when both operands are integers and it does not overflow,
// and floatOp otherwise. A nil intOp always gives a Number.
func arith(intOp func(a, b int64) (int64, bool), floatOp func(a, b float64) float64) lua.LGFunction {
	return func(L *lua.LState) int {
		a, b := numberArg(L, 1), numberArg(L, 2)
		x, xInt := a.(Integer)
		y, yInt := b.(Integer)
		if xInt && yInt && intOp != nil {
			if r, ok := intOp(int64(x), int64(y)); ok {
				L.Push(numberToLua(L, Integer(r)))
				return 1
			}
		}
		L.Push(numberToLua(L, Number(floatOp(asFloat(a), asFloat(b)))))
		return 1
	}
}

func numberUnm(L *lua.LState) int {
	switch v := numberArg(L, 1).(type) {
	case Integer:
		if v == math.MinInt64 {
			L.Push(numberToLua(L, Number(-float64(v))))
		} else {
			L.Push(numberToLua(L, -v))
		}
	case Number:
		L.Push(numberToLua(L, -v))
	}
	return 1
}

func order(test func(c int) bool) lua.LGFunction {
	return func(L *lua.LState) int {
		c, ok := compareNumbers(numberArg(L, 1), numberArg(L, 2))
		L.Push(lua.LBool(ok && test(c)))
		return 1
	}
}

// compareNumbers reports false when the operands are unordered (NaN).
func compareNumbers(a, b Value) (int, bool) {
	x, xInt := a.(Integer)
	y, yInt := b.(Integer)
	if xInt && yInt {
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	f, g := asFloat(a), asFloat(b)
	switch {
	case f < g:
		return -1, true
	case f > g:
		return 1, true
	case f == g:
		return 0, true
	}
	return 0, false
}

func addInt(a, b int64) (int64, bool) {
	r := a + b
	return r, (b >= 0) == (r >= a)
}

func subInt(a, b int64) (int64, bool) {
	r := a - b
	return r, (b >= 0) == (r <= a)
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) || r/b != a {
		return 0, false
	}
	return r, true
}

// modInt and modFloat take the sign of the divisor, like Lua's %.
func modInt(a, b int64) (int64, bool) {
	if b == 0 {
		return 0, false
	}
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r, true
}

func modFloat(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}
