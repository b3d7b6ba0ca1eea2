package actor

import (
	"github.com/lguibr/luactor/bollywood"
	"github.com/lguibr/luactor/message"
)

// --- Internal Ask Resolution ---

// PendingAsk is sent by a ScriptActor to itself when a script calls ctx.send.
// The actor asks Recipient off its own goroutine and answers with PendingAskResult.
type PendingAsk struct {
	Recipient      string
	PID            *bollywood.PID
	Msg            message.Value
	ContinuationID int64
}

// PendingAskResult carries the reply (or failure) of a PendingAsk back into the actor,
// which resumes the suspended continuation with it.
type PendingAskResult struct {
	Recipient      string
	ContinuationID int64
	Reply          message.Value
	Err            error
}

// --- Control Messages ---

// AddRecipient registers PID under Name so scripts can reach it with ctx.send and ctx.do_send.
type AddRecipient struct {
	Name string
	PID  *bollywood.PID
}

// ReloadScript replaces the body of one phase in place. Persistent state is kept.
// A body that fails to compile is reported and the previous body stays active.
type ReloadScript struct {
	Phase string
	Body  string
}
