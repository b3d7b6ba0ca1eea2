// Package actor runs Lua phase bodies as bollywood actors.
//
// A ScriptActor owns one script.Runtime and drives it from its mailbox: the
// started phase on bollywood.Started, the handle phase for every message.Value,
// and the stopped phase while stopping. ctx.send is resolved through a pair of
// self-addressed messages (PendingAsk and PendingAskResult) so the actor never
// blocks while a script waits for a reply.
package actor

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/lguibr/luactor/bollywood"
	"github.com/lguibr/luactor/message"
	"github.com/lguibr/luactor/script"
	"github.com/lguibr/luactor/utils"
	lua "github.com/yuin/gopher-lua"
)

// ScriptActor is a bollywood.Actor whose behaviour is written in Lua.
type ScriptActor struct {
	runtime *script.Runtime
	cfg     utils.Config
	setup   []func(L *lua.LState)

	engine  *bollywood.Engine
	selfPID *bollywood.PID

	recipientsMu sync.RWMutex
	recipients   map[string]*bollywood.PID

	children []*bollywood.PID // Spawned through ctx.new_actor, stopped with this actor

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}
	halted   bool // Set once stopping began; no new timers are armed
}

func newScriptActor(rt *script.Runtime, cfg utils.Config, setup []func(L *lua.LState)) *ScriptActor {
	return &ScriptActor{
		runtime:    rt,
		cfg:        cfg,
		setup:      setup,
		recipients: make(map[string]*bollywood.PID),
		timers:     make(map[*time.Timer]struct{}),
	}
}

// AddRecipient registers pid under name, replacing any previous registration.
// It may be called before or after the actor is spawned.
func (a *ScriptActor) AddRecipient(name string, pid *bollywood.PID) *bollywood.PID {
	a.recipientsMu.Lock()
	defer a.recipientsMu.Unlock()
	previous := a.recipients[name]
	a.recipients[name] = pid
	return previous
}

func (a *ScriptActor) recipient(name string) (*bollywood.PID, bool) {
	a.recipientsMu.RLock()
	defer a.recipientsMu.RUnlock()
	pid, ok := a.recipients[name]
	return pid, ok && pid != nil
}

// Receive handles messages for the ScriptActor.
func (a *ScriptActor) Receive(ctx bollywood.Context) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("PANIC recovered in ScriptActor %s Receive: %v\nStack trace:\n%s\n", a.selfPID, r, string(debug.Stack()))
			ctx.Reply(fmt.Errorf("script actor %s panicked: %v", a.selfPID, r))
			if a.engine != nil && a.selfPID != nil {
				a.engine.Stop(a.selfPID)
			}
		}
	}()

	if a.selfPID == nil {
		a.selfPID = ctx.Self()
		a.engine = ctx.Engine()
	}

	switch msg := ctx.Message().(type) {
	case bollywood.Started:
		a.invoke(ctx, script.PhaseStarted, message.Nil{})

	case message.Value:
		result, ok := a.invoke(ctx, script.PhaseHandle, msg)
		if ok {
			ctx.Reply(result)
		}

	case PendingAsk:
		a.handlePendingAsk(msg)

	case PendingAskResult:
		a.handlePendingAskResult(msg)

	case AddRecipient:
		a.AddRecipient(msg.Name, msg.PID)
		ctx.Reply(message.Boolean(true))

	case ReloadScript:
		a.handleReload(ctx, msg)

	case bollywood.Stopping:
		a.handleStopping()

	case bollywood.Stopped:
		a.cancelTimers()
		a.runtime.Close()

	default:
		fmt.Printf("WARN: ScriptActor %s received unexpected message type %T\n", a.selfPID, msg)
		ctx.Reply(fmt.Errorf("script actor %s: unsupported message type %T", a.selfPID, msg))
	}
}

// invoke runs one phase and applies the failure policy. It reports false when the
// invocation failed; the error has then already been replied to the asker, if any.
func (a *ScriptActor) invoke(ctx bollywood.Context, phase string, msg message.Value) (message.Value, bool) {
	result, err := a.runtime.Invoke(phase, msg, a.host())
	if err != nil {
		a.fail(ctx, err)
		return nil, false
	}
	return result, true
}

// fail reports err. Script runtime errors leave the interpreter in an unknown state
// and are fatal to the actor; anything else only fails the current message.
func (a *ScriptActor) fail(ctx bollywood.Context, err error) {
	if ctx != nil {
		ctx.Reply(err)
	}
	var scriptErr *script.ScriptError
	if errors.As(err, &scriptErr) {
		fmt.Printf("ERROR: ScriptActor %s: %v. Stopping.\n", a.selfPID, err)
		a.engine.Stop(a.selfPID)
		return
	}
	fmt.Printf("ERROR: ScriptActor %s: %v\n", a.selfPID, err)
}

// --- Ask Resolution ---

func (a *ScriptActor) handlePendingAsk(msg PendingAsk) {
	engine, self, timeout := a.engine, a.selfPID, a.cfg.AskTimeout
	go func() {
		reply, err := Ask(engine, msg.PID, msg.Msg, timeout)
		engine.Send(self, PendingAskResult{
			Recipient:      msg.Recipient,
			ContinuationID: msg.ContinuationID,
			Reply:          reply,
			Err:            err,
		}, self)
	}()
}

func (a *ScriptActor) handlePendingAskResult(msg PendingAskResult) {
	if msg.Err != nil {
		fmt.Printf("ERROR: ScriptActor %s: ask to %q for continuation %d failed: %v. Stopping.\n",
			a.selfPID, msg.Recipient, msg.ContinuationID, msg.Err)
		a.engine.Stop(a.selfPID)
		return
	}

	result, err := a.runtime.Resume(msg.ContinuationID, msg.Reply, a.host())
	if err != nil {
		a.fail(nil, err)
		return
	}
	if _, suspended := result.(message.ThreadYield); !suspended {
		fmt.Printf("WARN: ScriptActor %s: continuation %d settled with %s, result dropped (no asker waiting)\n", a.selfPID, msg.ContinuationID, result)
	}
}

// --- Control ---

func (a *ScriptActor) handleReload(ctx bollywood.Context, msg ReloadScript) {
	switch msg.Phase {
	case script.PhaseStarted, script.PhaseHandle, script.PhaseStopped:
	default:
		err := fmt.Errorf("script actor %s: unknown phase %q", a.selfPID, msg.Phase)
		fmt.Printf("ERROR: %v\n", err)
		ctx.Reply(err)
		return
	}
	if err := a.runtime.Load(msg.Phase, msg.Body); err != nil {
		fmt.Printf("ERROR: ScriptActor %s: reload of %s rejected, keeping previous body: %v\n", a.selfPID, msg.Phase, err)
		ctx.Reply(err)
		return
	}
	fmt.Printf("ScriptActor %s: reloaded %s\n", a.selfPID, msg.Phase)
	ctx.Reply(message.Boolean(true))
}

// --- Lifecycle ---

func (a *ScriptActor) handleStopping() {
	a.timersMu.Lock()
	a.halted = true
	a.timersMu.Unlock()
	a.cancelTimers()

	if _, err := a.runtime.Invoke(script.PhaseStopped, message.Nil{}, a.host()); err != nil {
		fmt.Printf("ERROR: ScriptActor %s: stopped phase failed: %v\n", a.selfPID, err)
	}

	for _, child := range a.children {
		a.engine.Stop(child)
	}
	a.children = nil

	if n := a.runtime.Pending(); n > 0 {
		fmt.Printf("WARN: ScriptActor %s stopping with %d pending continuation(s)\n", a.selfPID, n)
	}
}

func (a *ScriptActor) cancelTimers() {
	a.timersMu.Lock()
	defer a.timersMu.Unlock()
	for t := range a.timers {
		t.Stop()
		delete(a.timers, t)
	}
}
