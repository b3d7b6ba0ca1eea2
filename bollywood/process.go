package bollywood

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

const defaultMailboxSize = 1024

// process represents the running instance of an actor, including its state and mailbox.
type process struct {
	engine   *Engine
	pid      *PID
	actor    Actor
	mailbox  chan *messageEnvelope
	props    *Props
	stopCh   chan struct{} // Signal to stop the run loop
	stopOnce sync.Once
	stopped  atomic.Bool // Set once Stopping has begun; user messages are dropped afterwards

	mu     sync.Mutex // Guards closed and the final mailbox drain
	closed bool
}

func newProcess(engine *Engine, pid *PID, props *Props) *process {
	size := props.mailboxSize
	if size <= 0 {
		size = defaultMailboxSize
	}
	return &process{
		engine:  engine,
		pid:     pid,
		props:   props,
		mailbox: make(chan *messageEnvelope, size),
		stopCh:  make(chan struct{}),
	}
}

// sendMessage enqueues an envelope. It reports false when the message was not accepted.
func (p *process) sendMessage(envelope *messageEnvelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if p.stopped.Load() && !isSystemMessage(envelope.Message) {
		return false
	}

	select {
	case p.mailbox <- envelope:
		return true
	default:
		fmt.Printf("Actor %s mailbox full, dropping message type %T\n", p.pid.ID, envelope.Message)
		return false
	}
}

// requestStop queues Stopping and signals the run loop. Safe to call many times.
func (p *process) requestStop() {
	p.sendMessage(&messageEnvelope{Message: Stopping{}})
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// run is the main loop for the actor process.
func (p *process) run() {
	defer func() {
		p.stopped.Store(true)
		if p.actor != nil {
			func() {
				defer func() {
					if r := recover(); r != nil {
						fmt.Printf("Actor %s panicked during Stopped processing: %v\n", p.pid.ID, r)
					}
				}()
				p.invokeReceive(&messageEnvelope{Message: Stopped{}})
			}()
		}
		p.close()
		p.engine.remove(p.pid)
	}()

	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Actor %s panicked: %v\nStack trace:\n%s\n", p.pid.ID, r, string(debug.Stack()))
			p.stopped.Store(true)
			p.stopOnce.Do(func() { close(p.stopCh) })
		}
	}()

	p.actor = p.props.Produce()
	if p.actor == nil {
		panic(fmt.Sprintf("Actor %s producer returned nil actor", p.pid.ID))
	}

	for {
		select {
		case <-p.stopCh:
			p.stopping()
			return

		case envelope := <-p.mailbox:
			// A stop request wins over anything still queued.
			select {
			case <-p.stopCh:
				p.rejectAsk(envelope)
				p.stopping()
				return
			default:
			}

			switch envelope.Message.(type) {
			case Stopping:
				p.stopping()
				return
			case Stopped:
				fmt.Printf("WARN: Actor %s received unexpected Stopped message via mailbox.\n", p.pid.ID)
				continue
			}

			if p.stopped.Load() {
				p.rejectAsk(envelope)
				continue
			}
			p.invokeReceive(envelope)
		}
	}
}

// stopping invokes the Stopping handler exactly once.
func (p *process) stopping() {
	if p.stopped.CompareAndSwap(false, true) {
		p.invokeReceive(&messageEnvelope{Message: Stopping{}})
	}
}

// close refuses further messages and fails every Ask still waiting in the mailbox.
func (p *process) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for {
		select {
		case envelope := <-p.mailbox:
			p.rejectAsk(envelope)
		default:
			return
		}
	}
}

func (p *process) rejectAsk(envelope *messageEnvelope) {
	if envelope.RequestID != "" {
		p.engine.failFuture(envelope.RequestID, fmt.Errorf("%w: %s", ErrActorStopped, p.pid))
	}
}

// invokeReceive calls the actor's Receive method within a protected context.
// A panic stops the actor; a pending Ask is failed so the asker is not left waiting.
func (p *process) invokeReceive(envelope *messageEnvelope) {
	ctx := &context{
		engine:    p.engine,
		self:      p.pid,
		sender:    envelope.Sender,
		message:   envelope.Message,
		requestID: envelope.RequestID,
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Actor %s panicked during Receive(%T): %v\nStack trace:\n%s\n", p.pid.ID, envelope.Message, r, string(debug.Stack()))
			ctx.Reply(fmt.Errorf("actor %s panicked: %v", p.pid, r))
			if !isSystemMessage(envelope.Message) {
				p.requestStop()
			}
		}
	}()
	p.actor.Receive(ctx)
}
