package actor

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lguibr/luactor/bollywood"
	"github.com/lguibr/luactor/message"
	"github.com/lguibr/luactor/script"
	"github.com/lguibr/luactor/utils"
	lua "github.com/yuin/gopher-lua"
)

// Builder collects phase bodies and settings for a ScriptActor.
// Every phase is optional; a missing phase is a no-op.
type Builder struct {
	bodies map[string]string
	errs   []error
	cfg    utils.Config
	setup  []func(L *lua.LState)
}

// NewBuilder returns a Builder using utils.DefaultConfig.
func NewBuilder() *Builder {
	return &Builder{
		bodies: make(map[string]string),
		cfg:    utils.DefaultConfig(),
	}
}

func (b *Builder) fromFile(phase, path string) *Builder {
	body, err := os.ReadFile(path)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("%s script: %w", phase, err))
		return b
	}
	b.bodies[phase] = string(body)
	return b
}

// OnStarted reads the started phase from a file.
func (b *Builder) OnStarted(path string) *Builder { return b.fromFile(script.PhaseStarted, path) }

// OnStartedWithLua sets the started phase from source.
func (b *Builder) OnStartedWithLua(src string) *Builder {
	b.bodies[script.PhaseStarted] = src
	return b
}

// OnHandle reads the handle phase from a file.
func (b *Builder) OnHandle(path string) *Builder { return b.fromFile(script.PhaseHandle, path) }

// OnHandleWithLua sets the handle phase from source.
func (b *Builder) OnHandleWithLua(src string) *Builder {
	b.bodies[script.PhaseHandle] = src
	return b
}

// OnStopped reads the stopped phase from a file.
func (b *Builder) OnStopped(path string) *Builder { return b.fromFile(script.PhaseStopped, path) }

// OnStoppedWithLua sets the stopped phase from source.
func (b *Builder) OnStoppedWithLua(src string) *Builder {
	b.bodies[script.PhaseStopped] = src
	return b
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg utils.Config) *Builder {
	b.cfg = cfg
	return b
}

// WithSetup adds a function run against the fresh interpreter before any body is
// loaded, e.g. to expose Go functions as Lua globals.
func (b *Builder) WithSetup(fn func(L *lua.LState)) *Builder {
	if fn != nil {
		b.setup = append(b.setup, fn)
	}
	return b
}

// Build creates the interpreter and compiles every phase. A body that fails to
// compile or a script file that could not be read fails the whole build.
func (b *Builder) Build() (*ScriptActor, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	opts := []script.Option{script.WithLuaPath(b.cfg.LuaPath)}
	for _, fn := range b.setup {
		opts = append(opts, script.WithSetup(fn))
	}
	rt, err := script.New(opts...)
	if err != nil {
		return nil, err
	}

	for _, phase := range []string{script.PhaseStarted, script.PhaseHandle, script.PhaseStopped} {
		body, ok := b.bodies[phase]
		if !ok {
			continue
		}
		if err := rt.Load(phase, body); err != nil {
			rt.Close()
			return nil, err
		}
	}

	setup := make([]func(L *lua.LState), len(b.setup))
	copy(setup, b.setup)
	return newScriptActor(rt, b.cfg, setup), nil
}

// Spawn starts a built actor on engine. The actor must not be spawned twice.
func Spawn(engine *bollywood.Engine, a *ScriptActor) *bollywood.PID {
	props := bollywood.NewProps(func() bollywood.Actor { return a }).WithMailboxSize(a.cfg.MailboxSize)
	return engine.Spawn(props)
}

// Ask sends v to pid and waits for the reply as a message.Value.
// A script actor may answer with message.ThreadYield when its handler suspended.
func Ask(engine *bollywood.Engine, pid *bollywood.PID, v message.Value, timeout time.Duration) (message.Value, error) {
	reply, err := engine.Ask(pid, v, timeout)
	if err != nil {
		return nil, err
	}
	switch r := reply.(type) {
	case nil:
		return message.Nil{}, nil
	case message.Value:
		return r, nil
	default:
		converted, err := message.From(r)
		if err != nil {
			return nil, fmt.Errorf("reply from %s: %w", pid, err)
		}
		return converted, nil
	}
}
