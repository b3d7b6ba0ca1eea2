// Package script owns one Lua interpreter per actor and drives phase bodies through it.
//
// Every invocation runs the phase body as a fresh coroutine. When the body calls
// ctx.send the coroutine yields, is stored under a continuation id, and the invocation
// returns message.ThreadYield. Resume picks the coroutine up again with the reply.
// A Runtime is not safe for concurrent use: its owner must serialize all calls.
package script

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/lguibr/luactor/message"
	lua "github.com/yuin/gopher-lua"
)

// Lifecycle phases a script may define.
const (
	PhaseStarted = "started"
	PhaseHandle  = "handle"
	PhaseStopped = "stopped"
)

//go:embed prelude.lua
var prelude string

// Option configures a Runtime.
type Option func(*Runtime)

// WithLuaPath sets package.path so bodies can require modules from disk.
func WithLuaPath(path string) Option {
	return func(r *Runtime) { r.luaPath = path }
}

// WithSetup runs fn against the fresh interpreter before the prelude is loaded,
// e.g. to expose host functions as globals.
func WithSetup(fn func(L *lua.LState)) Option {
	return func(r *Runtime) {
		if fn != nil {
			r.setup = append(r.setup, fn)
		}
	}
}

// Runtime is one interpreter instance together with its continuation registry.
type Runtime struct {
	L         *lua.LState
	registry  *registry
	luaPath   string
	setup     []func(L *lua.LState)
	protected map[*lua.LState]int // pcall/xpcall depth per coroutine
	closed    bool
}

// New creates an interpreter and loads the prelude into it.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{registry: newRegistry(), protected: make(map[*lua.LState]int)}
	for _, opt := range opts {
		opt(r)
	}

	r.L = lua.NewState()
	for _, name := range []string{"pcall", "xpcall"} {
		if orig, ok := r.L.GetGlobal(name).(*lua.LFunction); ok && orig.IsG {
			r.L.SetGlobal(name, r.trackProtected(orig))
		}
	}
	message.OpenNumbers(r.L)
	if r.luaPath != "" {
		r.L.SetField(r.L.GetGlobal("package"), "path", lua.LString(r.luaPath))
	}
	for _, fn := range r.setup {
		fn(r.L)
	}
	if err := r.L.DoString(prelude); err != nil {
		r.L.Close()
		return nil, fmt.Errorf("script: loading prelude: %w", err)
	}
	return r, nil
}

// Load compiles body and registers it for phase, replacing any previous body.
// The persistent state of the phase is kept.
func (r *Runtime) Load(phase, body string) error {
	if err := checkRequirements(body); err != nil {
		return &LoadError{Phase: phase, Err: err}
	}
	load, ok := r.L.GetGlobal("__load").(*lua.LFunction)
	if !ok {
		return &LoadError{Phase: phase, Err: errors.New("prelude entry point __load is missing")}
	}
	err := r.L.CallByParam(lua.P{Fn: load, NRet: 0, Protect: true}, lua.LString(phase), lua.LString(body))
	if err != nil {
		return &LoadError{Phase: phase, Err: err}
	}
	return nil
}

// Invoke runs the body registered for phase with msg as ctx.msg.
// A phase without a body yields Nil. A suspended body yields ThreadYield.
func (r *Runtime) Invoke(phase string, msg message.Value, host Host) (message.Value, error) {
	arg, err := message.ToLua(r.L, msg)
	if err != nil {
		return nil, fmt.Errorf("script: %s argument: %w", phase, err)
	}

	sc := r.install(host)
	defer r.teardown(sc)

	dispatch, ok := r.L.GetGlobal("__dispatch").(*lua.LFunction)
	if !ok {
		return message.Nil{}, nil
	}
	if err := r.L.CallByParam(lua.P{Fn: dispatch, NRet: 1, Protect: true}, lua.LString(phase), arg); err != nil {
		return nil, &ScriptError{Phase: phase, Err: err}
	}
	ret := r.L.Get(-1)
	r.L.Pop(1)

	fn, ok := ret.(*lua.LFunction)
	if !ok {
		return message.Nil{}, nil
	}

	thread, cancel := r.L.NewThread()
	sc.thread = thread
	return r.drive(&continuation{phase: phase, thread: thread, fn: fn, cancel: cancel}, sc)
}

// Resume continues the coroutine registered under id, handing it reply as the
// result of its pending ctx.send.
func (r *Runtime) Resume(id int64, reply message.Value, host Host) (message.Value, error) {
	c, ok := r.registry.take(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownContinuation, id)
	}
	// A recipient that suspended itself answers with its own marker; ctx.send then
	// returns nil plus an explanation, like any other failed send.
	var args []lua.LValue
	if pending, ok := reply.(message.ThreadYield); ok {
		args = []lua.LValue{lua.LNil, lua.LString(fmt.Sprintf("recipient suspended: %s", pending))}
	} else {
		arg, err := message.ToLua(r.L, reply)
		if err != nil {
			c.release()
			return nil, &ScriptError{Phase: c.phase, Err: fmt.Errorf("reply for continuation %d: %w", id, err)}
		}
		args = []lua.LValue{arg}
	}

	sc := r.install(host)
	sc.thread = c.thread
	defer r.teardown(sc)

	return r.drive(c, sc, args...)
}

// drive resumes c once and classifies the outcome.
func (r *Runtime) drive(c *continuation, sc *scope, args ...lua.LValue) (message.Value, error) {
	state, err, values := r.L.Resume(c.thread, c.fn, args...)

	switch state {
	case lua.ResumeError:
		c.release()
		return nil, &ScriptError{Phase: c.phase, Err: err}

	case lua.ResumeYield:
		if sc.asked == 0 {
			c.release()
			return nil, &ScriptError{Phase: c.phase, Err: errors.New("handler yielded outside ctx.send")}
		}
		r.registry.put(sc.asked, c)
		return message.ThreadYield(sc.asked), nil
	}

	c.release()
	if sc.asked != 0 {
		return nil, &ScriptError{Phase: c.phase, Err: fmt.Errorf("ctx.send for continuation %d returned without suspending the handler", sc.asked)}
	}
	if len(values) == 0 {
		return message.Nil{}, nil
	}
	v, err := message.FromLua(values[0])
	if err != nil {
		return nil, &ScriptError{Phase: c.phase, Err: fmt.Errorf("converting result: %w", err)}
	}
	return v, nil
}

// Pending reports how many continuations are waiting for a reply.
func (r *Runtime) Pending() int {
	return r.registry.len()
}

// Close drops every pending continuation and closes the interpreter.
func (r *Runtime) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.registry.clear()
	r.L.Close()
}
