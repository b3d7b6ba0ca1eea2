// Package message defines the value that crosses the boundary between script actors and the host.
package message

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
)

// Kind identifies a Value variant.
type Kind int

const (
	KindNil Kind = iota
	KindString
	KindInteger
	KindNumber
	KindBoolean
	KindTable
	KindThreadYield
)

var kindNames = [...]string{
	KindNil:         "nil",
	KindString:      "string",
	KindInteger:     "integer",
	KindNumber:      "number",
	KindBoolean:     "boolean",
	KindTable:       "table",
	KindThreadYield: "thread_yield",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is the closed set of messages a script actor sends and receives.
// The variants are String, Integer, Number, Boolean, Nil, Table and ThreadYield.
type Value interface {
	Kind() Kind
	String() string
	sealed()
}

// String is a Lua string.
type String string

// Integer is a number with no fractional part.
type Integer int64

// Number is a double precision float.
type Number float64

// Boolean is a Lua boolean.
type Boolean bool

// Nil is the absence of a value.
type Nil struct{}

// Table maps string keys to values. Key order is irrelevant.
type Table map[string]Value

// ThreadYield is returned instead of a result when the handler suspended on ctx.send.
// It carries the continuation id that will be resumed once the reply arrives.
// It is only ever an outcome, never an argument.
type ThreadYield int64

func (String) Kind() Kind      { return KindString }
func (Integer) Kind() Kind     { return KindInteger }
func (Number) Kind() Kind      { return KindNumber }
func (Boolean) Kind() Kind     { return KindBoolean }
func (Nil) Kind() Kind         { return KindNil }
func (Table) Kind() Kind       { return KindTable }
func (ThreadYield) Kind() Kind { return KindThreadYield }

func (String) sealed()      {}
func (Integer) sealed()     {}
func (Number) sealed()      {}
func (Boolean) sealed()     {}
func (Nil) sealed()         {}
func (Table) sealed()       {}
func (ThreadYield) sealed() {}

func (s String) String() string  { return string(s) }
func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }
func (n Number) String() string  { return strconv.FormatFloat(float64(n), 'g', -1, 64) }
func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }
func (Nil) String() string       { return "nil" }

func (t ThreadYield) String() string {
	return fmt.Sprintf("thread_yield(%d)", int64(t))
}

// String renders the table with sorted keys so output is stable.
func (t Table) String() string {
	keys := maps.Keys(t)
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(" = ")
		if s, ok := t[k].(String); ok {
			b.WriteString(strconv.Quote(string(s)))
		} else {
			b.WriteString(t[k].String())
		}
	}
	b.WriteByte('}')
	return b.String()
}

// IsNil reports whether v is nil or the Nil variant.
func IsNil(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Nil)
	return ok
}
