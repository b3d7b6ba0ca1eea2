// Package watch reloads script actors when their phase files change on disk.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lguibr/luactor/actor"
	"github.com/lguibr/luactor/bollywood"
	"github.com/lguibr/luactor/utils"
)

type target struct {
	pid   *bollywood.PID
	phase string
}

// Watcher turns file system events into actor.ReloadScript messages.
// Directories are watched rather than files so that editors replacing a file
// through a rename are still noticed.
type Watcher struct {
	engine   *bollywood.Engine
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	targets map[string][]target // Cleaned absolute path -> actors to reload
	dirs    map[string]bool
	pending map[string]*time.Timer
	closed  bool
}

// New creates a Watcher sending reloads through engine.
func New(engine *bollywood.Engine, cfg utils.Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	return &Watcher{
		engine:   engine,
		fsw:      fsw,
		debounce: cfg.ReloadDebounce,
		targets:  make(map[string][]target),
		dirs:     make(map[string]bool),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Watch reloads phase of the actor at pid whenever path is written.
func (w *Watcher) Watch(path string, pid *bollywood.PID, phase string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	abs = filepath.Clean(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("watch: watcher is closed")
	}

	dir := filepath.Dir(abs)
	if !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch: adding %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.targets[abs] = append(w.targets[abs], target{pid: pid, phase: phase})
	fmt.Printf("Watcher: watching %s for %s (%s)\n", abs, pid, phase)
	return nil
}

// Run processes events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule(filepath.Clean(ev.Name))

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("WARN: Watcher: %v\n", err)
		}
	}
}

// schedule debounces bursts of events for one file into a single reload.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || len(w.targets[path]) == 0 {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() { w.reload(path) })
}

func (w *Watcher) reload(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	targets := append([]target(nil), w.targets[path]...)
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	body, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("WARN: Watcher: reading %s: %v\n", path, err)
		return
	}
	for _, t := range targets {
		fmt.Printf("Watcher: %s changed, reloading %s of %s\n", path, t.phase, t.pid)
		w.engine.Send(t.pid, actor.ReloadScript{Phase: t.phase, Body: string(body)}, nil)
	}
}

// Close stops watching and drops pending reloads.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
