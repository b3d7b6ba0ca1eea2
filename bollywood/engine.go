package bollywood

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Engine manages the lifecycle and message dispatching for actors.
type Engine struct {
	pidCounter     uint64
	requestCounter uint64
	actors         map[string]*process
	mu             sync.RWMutex // Protects the actors map
	futures        map[string]chan futureResponse
	futuresMu      sync.Mutex
	stopping       atomic.Bool // Indicates if the engine is shutting down
}

// NewEngine creates a new actor engine.
func NewEngine() *Engine {
	return &Engine{
		actors:  make(map[string]*process),
		futures: make(map[string]chan futureResponse),
	}
}

// nextPID generates a unique process ID.
func (e *Engine) nextPID() *PID {
	id := atomic.AddUint64(&e.pidCounter, 1)
	return &PID{ID: fmt.Sprintf("actor-%d", id)}
}

// Spawn creates and starts a new actor based on the provided Props.
// It returns the PID of the newly created actor.
func (e *Engine) Spawn(props *Props) *PID {
	if e.stopping.Load() {
		fmt.Println("Engine is stopping, cannot spawn new actors")
		return nil
	}

	pid := e.nextPID()
	proc := newProcess(e, pid, props)

	e.mu.Lock()
	e.actors[pid.ID] = proc
	e.mu.Unlock()

	// Started is queued before anyone else can learn the PID, so it is always first.
	proc.sendMessage(&messageEnvelope{Message: Started{}})

	go proc.run()

	return pid
}

// Send delivers a message to the actor identified by the PID.
// sender can be nil if the message originates from outside the actor system.
func (e *Engine) Send(pid *PID, message interface{}, sender *PID) {
	if pid == nil {
		return
	}
	if e.stopping.Load() && !isSystemMessage(message) {
		return
	}

	proc, ok := e.lookup(pid)
	if !ok {
		// Dropped silently: stopped actors are expected to receive late messages (timers, replies).
		return
	}
	proc.sendMessage(&messageEnvelope{Sender: sender, Message: message})
}

// Ask sends a message to the actor and waits for a reply delivered through Context.Reply.
// A timeout <= 0 waits indefinitely. A reply of type error is returned as the error.
func (e *Engine) Ask(pid *PID, message interface{}, timeout time.Duration) (interface{}, error) {
	if e.stopping.Load() {
		return nil, ErrEngineStopping
	}
	if pid == nil {
		return nil, ErrActorNotFound
	}
	proc, ok := e.lookup(pid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActorNotFound, pid)
	}

	requestID := fmt.Sprintf("req-%d", atomic.AddUint64(&e.requestCounter, 1))
	replyCh := make(chan futureResponse, 1)

	e.futuresMu.Lock()
	e.futures[requestID] = replyCh
	e.futuresMu.Unlock()
	defer func() {
		e.futuresMu.Lock()
		delete(e.futures, requestID)
		e.futuresMu.Unlock()
	}()

	if !proc.sendMessage(&messageEnvelope{Message: message, RequestID: requestID}) {
		return nil, fmt.Errorf("%w: %s", ErrActorStopped, pid)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-replyCh:
		return res.Result, res.Err
	case <-timeoutCh:
		return nil, fmt.Errorf("%w after %s (target %s)", ErrTimeout, timeout, pid)
	}
}

// replyFuture completes a pending Ask. Late replies (after timeout) are dropped.
func (e *Engine) replyFuture(requestID string, reply interface{}) {
	e.futuresMu.Lock()
	replyCh, ok := e.futures[requestID]
	e.futuresMu.Unlock()
	if !ok {
		return
	}

	res := futureResponse{Result: reply}
	if err, isErr := reply.(error); isErr {
		res = futureResponse{Err: err}
	}
	select {
	case replyCh <- res:
	default:
	}
}

// failFuture completes a pending Ask with an error.
func (e *Engine) failFuture(requestID string, err error) {
	e.replyFuture(requestID, err)
}

// Stop requests an actor to stop processing messages and shut down.
// The actor will process a Stopping message, followed by a Stopped message
// after its goroutine exits.
func (e *Engine) Stop(pid *PID) {
	if pid == nil {
		return
	}
	proc, ok := e.lookup(pid)
	if !ok {
		return
	}
	proc.requestStop()
}

// Alive reports whether the actor is still registered with the engine.
func (e *Engine) Alive(pid *PID) bool {
	if pid == nil {
		return false
	}
	_, ok := e.lookup(pid)
	return ok
}

func (e *Engine) lookup(pid *PID) (*process, bool) {
	e.mu.RLock()
	proc, ok := e.actors[pid.ID]
	e.mu.RUnlock()
	return proc, ok
}

// remove removes an actor process from the engine's tracking.
func (e *Engine) remove(pid *PID) {
	e.mu.Lock()
	delete(e.actors, pid.ID)
	e.mu.Unlock()
}

// Shutdown stops all actors and waits for them to terminate gracefully.
func (e *Engine) Shutdown(timeout time.Duration) {
	if !e.stopping.CompareAndSwap(false, true) {
		fmt.Println("Engine already shutting down")
		return
	}

	e.mu.RLock()
	pidsToStop := make([]*PID, 0, len(e.actors))
	for _, proc := range e.actors {
		pidsToStop = append(pidsToStop, proc.pid)
	}
	e.mu.RUnlock()

	for _, pid := range pidsToStop {
		e.Stop(pid)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		e.mu.RLock()
		remaining := len(e.actors)
		e.mu.RUnlock()
		if remaining == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	e.mu.Lock()
	if remaining := len(e.actors); remaining > 0 {
		remainingActors := make([]string, 0, remaining)
		for pidStr := range e.actors {
			remainingActors = append(remainingActors, pidStr)
		}
		fmt.Printf("Engine shutdown timeout: %d actors did not stop gracefully: %v\n", remaining, remainingActors)
		e.actors = make(map[string]*process)
	}
	e.mu.Unlock()
}
