package bollywood

import "errors"

// --- System Messages ---

// Started is sent to an actor after its goroutine has started.
// It is always the first message an actor receives.
type Started struct{}

// Stopping is sent to an actor to signal it should prepare to stop.
// No more user messages will be delivered after Stopping.
type Stopping struct{}

// Stopped is sent to an actor just before its goroutine exits.
// This is the final message an actor will receive.
type Stopped struct{}

// --- Errors ---

var (
	// ErrTimeout is returned by Ask when no reply arrived in time.
	ErrTimeout = errors.New("bollywood: ask timed out")
	// ErrActorNotFound is returned by Ask when the target PID is unknown.
	ErrActorNotFound = errors.New("bollywood: actor not found")
	// ErrActorStopped is returned by Ask when the target stopped before replying.
	ErrActorStopped = errors.New("bollywood: actor stopped before replying")
	// ErrEngineStopping is returned by Ask once Shutdown has begun.
	ErrEngineStopping = errors.New("bollywood: engine is stopping")
)

// --- Message Envelope ---

// messageEnvelope wraps a user message with sender information.
// RequestID is set only for messages delivered through Ask.
type messageEnvelope struct {
	Sender    *PID
	Message   interface{}
	RequestID string
}

// futureResponse is used internally to pass Ask results back.
type futureResponse struct {
	Result interface{}
	Err    error
}

func isSystemMessage(message interface{}) bool {
	switch message.(type) {
	case Started, Stopping, Stopped:
		return true
	}
	return false
}
