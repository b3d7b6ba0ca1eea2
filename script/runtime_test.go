package script

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lguibr/luactor/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

// --- Fake Host (Records Bridge Calls) ---

type sentAsk struct {
	recipient string
	msg       message.Value
	id        int64
}

type fakeHost struct {
	recipients  map[string]bool
	notified    []message.Value
	delayed     []time.Duration
	doSent      map[string][]message.Value
	asks        []sentAsk
	terminated  bool
	spawned     []string
	spawnErr    error
	nextChildID int
}

func newFakeHost(recipients ...string) *fakeHost {
	h := &fakeHost{recipients: make(map[string]bool), doSent: make(map[string][]message.Value)}
	for _, r := range recipients {
		h.recipients[r] = true
	}
	return h
}

func (h *fakeHost) Notify(msg message.Value) { h.notified = append(h.notified, msg) }

func (h *fakeHost) NotifyLater(msg message.Value, delay time.Duration) {
	h.notified = append(h.notified, msg)
	h.delayed = append(h.delayed, delay)
}

func (h *fakeHost) DoSend(recipient string, msg message.Value) bool {
	if !h.recipients[recipient] {
		return false
	}
	h.doSent[recipient] = append(h.doSent[recipient], msg)
	return true
}

func (h *fakeHost) Send(recipient string, msg message.Value, id int64) error {
	if !h.recipients[recipient] {
		return ErrUnknownRecipient
	}
	h.asks = append(h.asks, sentAsk{recipient: recipient, msg: msg, id: id})
	return nil
}

func (h *fakeHost) Terminate() { h.terminated = true }

func (h *fakeHost) NewActor(script, name string) (string, error) {
	if h.spawnErr != nil {
		return "", h.spawnErr
	}
	if name == "" {
		h.nextChildID++
		name = "child-" + message.Integer(h.nextChildID).String()
	}
	h.spawned = append(h.spawned, script)
	h.recipients[name] = true
	return name, nil
}

func newRuntime(t *testing.T, bodies map[string]string, opts ...Option) *Runtime {
	t.Helper()
	r, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	for phase, body := range bodies {
		require.NoError(t, r.Load(phase, body))
	}
	return r
}

// --- Invocation ---

func TestInvoke_MissingPhaseReturnsNil(t *testing.T) {
	r := newRuntime(t, nil)

	v, err := r.Invoke(PhaseHandle, message.Integer(1), newFakeHost())
	require.NoError(t, err)
	assert.Equal(t, message.Nil{}, v)
}

func TestInvoke_ReturnsHandlerResult(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `return ctx.msg + 1`})

	v, err := r.Invoke(PhaseHandle, message.Integer(1), newFakeHost())
	require.NoError(t, err)
	assert.Equal(t, message.Integer(2), v)
}

func TestInvoke_ReturnsTable(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `return { x = 1, greeting = "hi " .. ctx.msg }`})

	v, err := r.Invoke(PhaseHandle, message.String("bob"), newFakeHost())
	require.NoError(t, err)
	assert.Equal(t, message.Table{"x": message.Integer(1), "greeting": message.String("hi bob")}, v)
}

func TestInvoke_NoReturnIsNil(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseStarted: `local x = 1`})

	v, err := r.Invoke(PhaseStarted, message.Nil{}, newFakeHost())
	require.NoError(t, err)
	assert.Equal(t, message.Nil{}, v)
}

func TestInvoke_StatePersistsAcrossCalls(t *testing.T) {
	body := `
		if not ctx.state.x then ctx.state.x = 0 end
		ctx.state.x = ctx.state.x + 1
		return ctx.state.x
	`
	r := newRuntime(t, map[string]string{PhaseHandle: body})
	host := newFakeHost()

	for want := 1; want <= 3; want++ {
		v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
		require.NoError(t, err)
		assert.Equal(t, message.Integer(want), v)
	}

	fresh := newRuntime(t, map[string]string{PhaseHandle: body})
	v, err := fresh.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	assert.Equal(t, message.Integer(1), v, "a new runtime starts with empty state")
}

func TestInvoke_StateIsKeyedPerPhase(t *testing.T) {
	r := newRuntime(t, map[string]string{
		PhaseStarted: `ctx.state.owner = "started"`,
		PhaseHandle:  `return ctx.state.owner`,
	})
	host := newFakeHost()

	_, err := r.Invoke(PhaseStarted, message.Nil{}, host)
	require.NoError(t, err)
	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	assert.Equal(t, message.Nil{}, v, "handle must not see the started phase's state")
}

func TestInvoke_ReloadKeepsState(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `ctx.state.n = (ctx.state.n or 0) + 1 return ctx.state.n`})
	host := newFakeHost()

	_, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	require.NoError(t, r.Load(PhaseHandle, `ctx.state.n = ctx.state.n + 10 return ctx.state.n`))

	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	assert.Equal(t, message.Integer(11), v)
}

// --- Load errors ---

func TestLoad_SyntaxErrorFails(t *testing.T) {
	r := newRuntime(t, nil)

	err := r.Load(PhaseHandle, `return 1 +`)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, PhaseHandle, loadErr.Phase)
}

func TestLoad_Requirements(t *testing.T) {
	r := newRuntime(t, nil)

	assert.NoError(t, r.Load(PhaseHandle, "--@requires >= 0.1\nreturn 1"))
	assert.Error(t, r.Load(PhaseHandle, "--@requires >= 9.0\nreturn 1"))
	assert.Error(t, r.Load(PhaseHandle, "-- helper\n--@requires not-a-version\nreturn 1"))
	assert.NoError(t, r.Load(PhaseHandle, "return 1\n--@requires >= 9.0"), "only the leading comment block is inspected")
}

// --- Runtime errors ---

func TestInvoke_RuntimeErrorIsReported(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `error("foo")`})

	_, err := r.Invoke(PhaseHandle, message.Nil{}, newFakeHost())
	require.Error(t, err)
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Contains(t, err.Error(), "foo")
}

func TestInvoke_ProtectedCallInScriptIsNotAnError(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local ok = pcall(function() error("inner") end)
		return ok
	`})

	v, err := r.Invoke(PhaseHandle, message.Nil{}, newFakeHost())
	require.NoError(t, err)
	assert.Equal(t, message.Boolean(false), v)
}

func TestInvoke_UnsupportedResultIsReported(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `return function() end`})

	_, err := r.Invoke(PhaseHandle, message.Nil{}, newFakeHost())
	assert.ErrorIs(t, err, message.ErrUnsupported)
}

func TestInvoke_BareYieldIsAnError(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `coroutine.yield(1)`})

	_, err := r.Invoke(PhaseHandle, message.Nil{}, newFakeHost())
	require.Error(t, err)
	assert.Equal(t, 0, r.Pending())
}

// --- Bridge functions ---

func TestBridge_NotifyAndNotifyLater(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseStarted: `
		ctx.notify(100)
		ctx.notify_later({ kind = "tick" }, 1.5)
	`})
	host := newFakeHost()

	_, err := r.Invoke(PhaseStarted, message.Nil{}, host)
	require.NoError(t, err)
	assert.Equal(t, []message.Value{message.Integer(100), message.Table{"kind": message.String("tick")}}, host.notified)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, host.delayed)
}

func TestBridge_NotifyLaterRejectsNegativeDelay(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `ctx.notify_later(1, -1)`})

	_, err := r.Invoke(PhaseHandle, message.Nil{}, newFakeHost())
	assert.Error(t, err)
}

func TestBridge_NotifyLaterSaturatesHugeDelays(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		ctx.notify_later("far", 1e12)
		ctx.notify_later("forever", math.huge)
	`})
	host := newFakeHost()

	_, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{math.MaxInt64, math.MaxInt64}, host.delayed)
}

func TestBridge_NotifyLaterRejectsNaN(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `ctx.notify_later(1, 0/0)`})
	host := newFakeHost()

	_, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative number")
	assert.Empty(t, host.delayed)
}

func TestBridge_DoSend(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local known = ctx.do_send("check", "Hello")
		local unknown = ctx.do_send("nobody", "Hello")
		return { known = known, unknown = unknown }
	`})
	host := newFakeHost("check")

	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	assert.Equal(t, message.Table{"known": message.Boolean(true), "unknown": message.Boolean(false)}, v)
	assert.Equal(t, []message.Value{message.String("Hello")}, host.doSent["check"])
}

func TestBridge_TerminateAndNewActor(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local named = ctx.new_actor("return ctx.msg", "worker")
		local generated = ctx.new_actor("return 1")
		ctx.terminate()
		return { named = named, generated = generated }
	`})
	host := newFakeHost()

	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	assert.Equal(t, message.Table{"named": message.String("worker"), "generated": message.String("child-1")}, v)
	assert.True(t, host.terminated)
	assert.Equal(t, []string{"return ctx.msg", "return 1"}, host.spawned)
}

func TestBridge_RevokedAfterInvocation(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		if ctx.msg == "keep" then
			saved = __bridge.notify
			return true
		end
		saved(1)
	`})
	host := newFakeHost()

	_, err := r.Invoke(PhaseHandle, message.String("keep"), host)
	require.NoError(t, err)

	_, err = r.Invoke(PhaseHandle, message.String("use"), host)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidated")
	assert.Empty(t, host.notified)
}

func TestBridge_UnsupportedArgumentRaises(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `ctx.notify(function() end)`})

	_, err := r.Invoke(PhaseHandle, message.Nil{}, newFakeHost())
	assert.Error(t, err)
}

// --- Continuations ---

func TestSend_YieldsAndResumes(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local result = ctx.send("callback", "Hello")
		return result .. "!"
	`})
	host := newFakeHost("callback")

	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	id, ok := v.(message.ThreadYield)
	require.True(t, ok, "first result must be a thread yield, got %s", v)
	require.Len(t, host.asks, 1)
	assert.Equal(t, sentAsk{recipient: "callback", msg: message.String("Hello"), id: int64(id)}, host.asks[0])
	assert.Equal(t, 1, r.Pending())

	final, err := r.Resume(int64(id), message.String("Hello from callback"), host)
	require.NoError(t, err)
	assert.Equal(t, message.String("Hello from callback!"), final)
	assert.Equal(t, 0, r.Pending())
}

func TestSend_DependentSendsReRegister(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local a = ctx.send("svc", 1)
		local b = ctx.send("svc", a + 1)
		return a + b
	`})
	host := newFakeHost("svc")

	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	first := v.(message.ThreadYield)

	v, err = r.Resume(int64(first), message.Integer(10), host)
	require.NoError(t, err)
	second, ok := v.(message.ThreadYield)
	require.True(t, ok)
	assert.Greater(t, int64(second), int64(first), "continuation ids increase monotonically")
	assert.Equal(t, message.Integer(11), host.asks[1].msg)
	assert.Equal(t, 1, r.Pending())

	v, err = r.Resume(int64(second), message.Integer(5), host)
	require.NoError(t, err)
	assert.Equal(t, message.Integer(15), v)
	assert.Equal(t, 0, r.Pending())
}

func TestSend_SuspendedInvocationsKeepTheirOwnContext(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local reply = ctx.send("svc", ctx.msg)
		return ctx.msg .. ":" .. reply
	`})
	host := newFakeHost("svc")

	a, err := r.Invoke(PhaseHandle, message.String("a"), host)
	require.NoError(t, err)
	b, err := r.Invoke(PhaseHandle, message.String("b"), host)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Pending())

	v, err := r.Resume(int64(a.(message.ThreadYield)), message.String("ra"), host)
	require.NoError(t, err)
	assert.Equal(t, message.String("a:ra"), v)

	v, err = r.Resume(int64(b.(message.ThreadYield)), message.String("rb"), host)
	require.NoError(t, err)
	assert.Equal(t, message.String("b:rb"), v)
}

func TestSend_UnknownRecipientDoesNotSuspend(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local reply, err = ctx.send("nobody", 1)
		return { reply = reply, err = err }
	`})

	v, err := r.Invoke(PhaseHandle, message.Nil{}, newFakeHost())
	require.NoError(t, err)
	tbl, ok := v.(message.Table)
	require.True(t, ok)
	assert.Nil(t, tbl["reply"])
	assert.Contains(t, tbl["err"].String(), "unknown recipient")
	assert.Equal(t, 0, r.Pending())
}

func TestSend_SuspendedRecipientReply(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local reply, err = ctx.send("svc", 1)
		return err
	`})
	host := newFakeHost("svc")

	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)

	v, err = r.Resume(int64(v.(message.ThreadYield)), message.ThreadYield(99), host)
	require.NoError(t, err)
	assert.Contains(t, v.String(), "recipient suspended")
}

func TestSend_InsideProtectedCallIsRefused(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local ok, err = pcall(ctx.send, "svc", "hi")
		local xok, xerr = xpcall(function() return ctx.send("svc", "hi") end, function(e) return e end)
		return { ok = ok, err = err, xok = xok, xerr = xerr, after = "still running" }
	`})
	host := newFakeHost("svc")

	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	tbl, ok := v.(message.Table)
	require.True(t, ok, "the handler must finish normally, got %s", v)
	assert.Equal(t, message.Boolean(false), tbl["ok"])
	assert.Contains(t, tbl["err"].String(), "cannot suspend inside pcall")
	assert.Equal(t, message.Boolean(false), tbl["xok"])
	assert.Contains(t, tbl["xerr"].String(), "cannot suspend inside pcall")
	assert.Equal(t, message.String("still running"), tbl["after"])
	assert.Empty(t, host.asks, "no ask may leave a refused send")
	assert.Equal(t, 0, r.Pending())
}

func TestSend_FromScriptCoroutineIsRefused(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local co = coroutine.create(function() return ctx.send("svc", 1) end)
		local ok, err = coroutine.resume(co)
		return { ok = ok, err = err }
	`})
	host := newFakeHost("svc")

	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	tbl, ok := v.(message.Table)
	require.True(t, ok, "the handler must finish normally, got %s", v)
	assert.Equal(t, message.Boolean(false), tbl["ok"])
	assert.Contains(t, tbl["err"].String(), "coroutine created by the script")
	assert.Empty(t, host.asks)
	assert.Equal(t, 0, r.Pending())
}

func TestSend_NestedFunctionCanStillSuspend(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local function ask(x) return ctx.send("svc", x) end
		return ask(1) + 1
	`})
	host := newFakeHost("svc")

	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	id, ok := v.(message.ThreadYield)
	require.True(t, ok, "got %s", v)

	v, err = r.Resume(int64(id), message.Integer(41), host)
	require.NoError(t, err)
	assert.Equal(t, message.Integer(42), v)
}

func TestResume_UnsupportedReplyIsAScriptError(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `return ctx.send("svc", 1)`})
	host := newFakeHost("svc")

	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	id := int64(v.(message.ThreadYield))

	_, err = r.Resume(id, message.Table{"k": message.ThreadYield(3)}, host)
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.ErrorIs(t, err, message.ErrThreadYieldArgument)
	assert.Equal(t, 0, r.Pending())
}

func TestInvoke_NumbersKeepTheirVariant(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local m = ctx.msg
		return {
			f = m.f,
			big = m.big,
			next = m.big + 1,
			twice = m.f * 2,
			plain = tonumber(m.f) == 2,
			text = tostring(m.big),
			greater = m.big > m.f,
		}
	`})

	v, err := r.Invoke(PhaseHandle, message.Table{
		"f":   message.Number(2),
		"big": message.Integer(1<<53 + 1),
	}, newFakeHost())
	require.NoError(t, err)
	assert.Equal(t, message.Table{
		"f":       message.Number(2),
		"big":     message.Integer(1<<53 + 1),
		"next":    message.Integer(1<<53 + 2),
		"twice":   message.Number(4),
		"plain":   message.Boolean(true),
		"text":    message.String("9007199254740993"),
		"greater": message.Boolean(true),
	}, v)
}

func TestResume_UnknownContinuation(t *testing.T) {
	r := newRuntime(t, nil)

	_, err := r.Resume(42, message.Nil{}, newFakeHost())
	assert.ErrorIs(t, err, ErrUnknownContinuation)
}

func TestResume_ErrorAfterResumeConsumesContinuation(t *testing.T) {
	r := newRuntime(t, map[string]string{PhaseHandle: `
		local reply = ctx.send("svc", 1)
		error("bad reply " .. tostring(reply))
	`})
	host := newFakeHost("svc")

	v, err := r.Invoke(PhaseHandle, message.Nil{}, host)
	require.NoError(t, err)
	id := int64(v.(message.ThreadYield))

	_, err = r.Resume(id, message.Integer(7), host)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad reply 7")

	_, err = r.Resume(id, message.Integer(7), host)
	assert.ErrorIs(t, err, ErrUnknownContinuation)
}

func TestClose_DropsContinuations(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.Load(PhaseHandle, `ctx.send("svc", 1)`))

	_, err = r.Invoke(PhaseHandle, message.Nil{}, newFakeHost("svc"))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Pending())

	r.Close()
	assert.Equal(t, 0, r.Pending())
	r.Close()
}

// --- Options ---

func TestWithSetup_ExposesHostGlobals(t *testing.T) {
	greet := func(L *lua.LState) {
		L.SetGlobal("greet", L.NewFunction(func(L *lua.LState) int {
			L.Push(lua.LString("Hello, " + L.CheckString(1) + "!"))
			return 1
		}))
	}
	r := newRuntime(t, map[string]string{PhaseHandle: `return greet(ctx.msg)`}, WithSetup(greet))

	v, err := r.Invoke(PhaseHandle, message.String("World"), newFakeHost())
	require.NoError(t, err)
	assert.Equal(t, message.String("Hello, World!"), v)
}

func TestWithLuaPath_Require(t *testing.T) {
	dir := t.TempDir()
	module := "local M = {}\nfunction M.incr(x) return x + 1 end\nreturn M\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counter.lua"), []byte(module), 0o644))

	r := newRuntime(t,
		map[string]string{PhaseHandle: `local m = require("counter") return m.incr(ctx.msg)`},
		WithLuaPath(filepath.Join(dir, "?.lua")),
	)

	v, err := r.Invoke(PhaseHandle, message.Integer(1), newFakeHost())
	require.NoError(t, err)
	assert.Equal(t, message.Integer(2), v)
}
