package actor

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lguibr/luactor/message"
	"github.com/lguibr/luactor/script"
)

// capabilities is the script.Host handed to one invocation. It only exposes
// the actor's address and mailbox primitives, never the actor's internals.
type capabilities struct {
	a *ScriptActor
}

func (a *ScriptActor) host() script.Host {
	return capabilities{a: a}
}

func (c capabilities) Notify(msg message.Value) {
	c.a.engine.Send(c.a.selfPID, msg, c.a.selfPID)
}

func (c capabilities) NotifyLater(msg message.Value, delay time.Duration) {
	a := c.a
	if delay > a.cfg.MaxNotifyDelay {
		fmt.Printf("WARN: ScriptActor %s: notify_later delay %s clamped to %s\n", a.selfPID, delay, a.cfg.MaxNotifyDelay)
		delay = a.cfg.MaxNotifyDelay
	}

	a.timersMu.Lock()
	defer a.timersMu.Unlock()
	if a.halted {
		return
	}

	engine, self := a.engine, a.selfPID
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		a.timersMu.Lock()
		delete(a.timers, t)
		a.timersMu.Unlock()
		engine.Send(self, msg, self)
	})
	a.timers[t] = struct{}{}
}

func (c capabilities) DoSend(recipient string, msg message.Value) bool {
	pid, ok := c.a.recipient(recipient)
	if !ok {
		fmt.Printf("WARN: ScriptActor %s: do_send to unknown recipient %q dropped\n", c.a.selfPID, recipient)
		return false
	}
	c.a.engine.Send(pid, msg, c.a.selfPID)
	return true
}

func (c capabilities) Send(recipient string, msg message.Value, continuationID int64) error {
	pid, ok := c.a.recipient(recipient)
	if !ok {
		fmt.Printf("WARN: ScriptActor %s: send to unknown recipient %q\n", c.a.selfPID, recipient)
		return fmt.Errorf("%w: %s", script.ErrUnknownRecipient, recipient)
	}
	c.a.engine.Send(c.a.selfPID, PendingAsk{
		Recipient:      recipient,
		PID:            pid,
		Msg:            msg,
		ContinuationID: continuationID,
	}, c.a.selfPID)
	return nil
}

func (c capabilities) Terminate() {
	c.a.engine.Stop(c.a.selfPID)
}

// NewActor builds a child ScriptActor whose handle phase is src, read from disk when
// src names an existing .lua file. The child inherits config and setup functions.
func (c capabilities) NewActor(src, name string) (string, error) {
	a := c.a
	if name != "" {
		if _, taken := a.recipient(name); taken {
			return "", fmt.Errorf("recipient %q already registered", name)
		}
	}

	b := NewBuilder().WithConfig(a.cfg)
	for _, fn := range a.setup {
		b = b.WithSetup(fn)
	}
	if isScriptFile(src) {
		b = b.OnHandle(src)
	} else {
		b = b.OnHandleWithLua(src)
	}
	child, err := b.Build()
	if err != nil {
		return "", err
	}

	pid := Spawn(a.engine, child)
	if pid == nil {
		return "", fmt.Errorf("engine refused to spawn child of %s", a.selfPID)
	}
	if name == "" {
		name = pid.String()
	}
	a.AddRecipient(name, pid)
	a.children = append(a.children, pid)
	fmt.Printf("ScriptActor %s: spawned child %s as %q\n", a.selfPID, pid, name)
	return name, nil
}

func isScriptFile(src string) bool {
	if !strings.HasSuffix(src, ".lua") || strings.ContainsAny(src, "\n(") {
		return false
	}
	info, err := os.Stat(src)
	return err == nil && !info.IsDir()
}
