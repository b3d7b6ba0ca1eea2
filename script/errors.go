package script

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownContinuation is returned when a resume names no registered continuation.
	ErrUnknownContinuation = errors.New("script: unknown continuation")
	// ErrUnknownRecipient is reported to script code when a recipient name is not registered.
	ErrUnknownRecipient = errors.New("script: unknown recipient")
	// ErrInvalidated is raised when a bridge function is called after its invocation returned.
	ErrInvalidated = errors.New("script: call of invalidated bridge function")
)

// LoadError reports a phase body that could not be compiled or whose requirements are not met.
type LoadError struct {
	Phase string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("script: loading %s: %v", e.Phase, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ScriptError reports a Lua runtime error raised during an invocation.
// It is fatal to the invocation and, by convention, to the actor owning the runtime.
type ScriptError struct {
	Phase string
	Err   error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script: %s: %v", e.Phase, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }
