package script

import (
	"fmt"
	"math"
	"time"

	"github.com/lguibr/luactor/message"
	lua "github.com/yuin/gopher-lua"
)

// Host is the narrow set of actor capabilities exposed to script code.
// An implementation is only valid for the invocation it was passed to.
type Host interface {
	// Notify enqueues msg to the actor's own mailbox.
	Notify(msg message.Value)
	// NotifyLater enqueues msg to the actor's own mailbox after delay.
	NotifyLater(msg message.Value, delay time.Duration)
	// DoSend delivers msg to a named recipient without waiting for a reply.
	// It reports false when the recipient is unknown.
	DoSend(recipient string, msg message.Value) bool
	// Send asks a named recipient; the reply must later resume continuationID.
	// It returns ErrUnknownRecipient when the name is not registered.
	Send(recipient string, msg message.Value, continuationID int64) error
	// Terminate requests the actor's own shutdown.
	Terminate()
	// NewActor spawns a script actor from a path or a body and returns the name it
	// was registered under. An empty name asks for a generated one.
	NewActor(script, name string) (string, error)
}

// scope is the lifetime of one invocation. Bridge functions check it on every call.
type scope struct {
	host    Host
	thread  *lua.LState // coroutine running the handler
	revoked bool
	asked   int64 // continuation id reserved by ctx.send during this resume
}

// install publishes a fresh bridge table as the __bridge global.
func (r *Runtime) install(host Host) *scope {
	sc := &scope{host: host}
	L := r.L

	bridge := L.NewTable()
	fns := map[string]lua.LGFunction{
		"notify":       r.bridgeNotify(sc),
		"notify_later": r.bridgeNotifyLater(sc),
		"do_send":      r.bridgeDoSend(sc),
		"send":         r.bridgeSend(sc),
		"terminate":    r.bridgeTerminate(sc),
		"new_actor":    r.bridgeNewActor(sc),
	}
	for name, fn := range fns {
		L.SetField(bridge, name, L.NewFunction(guard(sc, name, fn)))
	}
	L.SetGlobal("__bridge", bridge)
	return sc
}

// teardown revokes the scope; functions retained by script code raise from now on.
func (r *Runtime) teardown(sc *scope) {
	sc.revoked = true
	if !r.closed {
		r.L.SetGlobal("__bridge", lua.LNil)
	}
}

func guard(sc *scope, name string, fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		if sc.revoked {
			L.RaiseError("%v: %s", ErrInvalidated, name)
			return 0
		}
		return fn(L)
	}
}

// checkMessage converts argument n, raising a script error for unsupported values.
func checkMessage(L *lua.LState, n int) message.Value {
	v, err := message.FromLua(L.Get(n))
	if err != nil {
		L.ArgError(n, err.Error())
		return nil
	}
	return v
}

func (r *Runtime) bridgeNotify(sc *scope) lua.LGFunction {
	return func(L *lua.LState) int {
		sc.host.Notify(checkMessage(L, 1))
		return 0
	}
}

func (r *Runtime) bridgeNotifyLater(sc *scope) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := checkMessage(L, 1)
		secs, ok := message.LuaFloat(L.Get(2))
		if !ok || math.IsNaN(secs) || secs < 0 {
			L.ArgError(2, "delay must be a non-negative number of seconds")
			return 0
		}
		sc.host.NotifyLater(msg, secondsToDuration(secs))
		return 0
	}
}

// secondsToDuration saturates at the largest Duration instead of overflowing.
func secondsToDuration(secs float64) time.Duration {
	if secs >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs * float64(time.Second))
}

func (r *Runtime) bridgeDoSend(sc *scope) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		msg := checkMessage(L, 2)
		L.Push(lua.LBool(sc.host.DoSend(name, msg)))
		return 1
	}
}

// bridgeSend reserves a continuation id and raises the pending ask. The prelude
// yields the coroutine right after, which is when the id gets registered.
// The yield must reach the handler coroutine itself, so calls from a coroutine the
// script created or from under pcall/xpcall are refused before anything is sent.
func (r *Runtime) bridgeSend(sc *scope) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		msg := checkMessage(L, 2)
		if L != sc.thread {
			L.RaiseError("ctx.send: cannot suspend a coroutine created by the script")
			return 0
		}
		if r.protected[L] > 0 {
			L.RaiseError("ctx.send: cannot suspend inside pcall or xpcall")
			return 0
		}
		if sc.asked != 0 {
			L.RaiseError("ctx.send: continuation %d is already waiting in this invocation", sc.asked)
			return 0
		}

		id := r.registry.reserve()
		if err := sc.host.Send(name, msg, id); err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		sc.asked = id
		L.Push(lua.LNumber(id))
		return 1
	}
}

// trackProtected wraps pcall or xpcall so ctx.send can tell it is running under one.
func (r *Runtime) trackProtected(orig *lua.LFunction) *lua.LFunction {
	return r.L.NewFunction(func(L *lua.LState) int {
		r.protected[L]++
		defer func() {
			if r.protected[L]--; r.protected[L] <= 0 {
				delete(r.protected, L)
			}
		}()
		return orig.GFunction(L)
	})
}

func (r *Runtime) bridgeTerminate(sc *scope) lua.LGFunction {
	return func(L *lua.LState) int {
		sc.host.Terminate()
		return 0
	}
}

func (r *Runtime) bridgeNewActor(sc *scope) lua.LGFunction {
	return func(L *lua.LState) int {
		source := L.CheckString(1)
		name := L.OptString(2, "")
		assigned, err := sc.host.NewActor(source, name)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(fmt.Sprintf("new_actor: %v", err)))
			return 2
		}
		L.Push(lua.LString(assigned))
		return 1
	}
}
