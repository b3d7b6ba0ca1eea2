package script

import (
	"context"

	lua "github.com/yuin/gopher-lua"
)

// continuation is a handler coroutine suspended inside ctx.send.
type continuation struct {
	phase  string
	thread *lua.LState
	fn     *lua.LFunction
	cancel context.CancelFunc
}

func (c *continuation) release() {
	if c.cancel != nil {
		c.cancel()
	}
}

// registry maps continuation ids to suspended coroutines.
// Ids increase monotonically for the lifetime of one runtime and are never reused.
// Not safe for concurrent use; the owning actor serializes access.
type registry struct {
	last    int64
	entries map[int64]*continuation
}

func newRegistry() *registry {
	return &registry{entries: make(map[int64]*continuation)}
}

func (r *registry) reserve() int64 {
	r.last++
	return r.last
}

func (r *registry) put(id int64, c *continuation) {
	r.entries[id] = c
}

// take removes and returns the continuation registered under id.
func (r *registry) take(id int64) (*continuation, bool) {
	c, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return c, ok
}

func (r *registry) len() int { return len(r.entries) }

func (r *registry) clear() {
	for id, c := range r.entries {
		c.release()
		delete(r.entries, id)
	}
}
