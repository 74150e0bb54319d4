package router

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"game-overlay/src/messages"
)

var (
	// ErrUnknownContext is returned when no mailbox is registered under the name.
	ErrUnknownContext = errors.New("router: unknown context")
	// ErrMailboxFull is returned when the destination mailbox has no free slot.
	ErrMailboxFull = errors.New("router: mailbox full")
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("router: closed")
)

// mailbox holds information about one execution context's inbox
type mailbox struct {
	ch     chan messages.Envelope
	active bool
}

// Router delivers messages between execution contexts. Delivery is
// fire-and-forget: Post never blocks and never waits for a reply.
type Router struct {
	mailboxes   map[string]*mailbox
	mu          sync.RWMutex
	closed      bool
	logMessages bool
}

// NewRouter creates a new message router
func NewRouter() *Router {
	return &Router{mailboxes: make(map[string]*mailbox)}
}

// Register creates the mailbox for a context
func (r *Router) Register(name string, bufferSize int) (<-chan messages.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if _, exists := r.mailboxes[name]; exists {
		return nil, fmt.Errorf("context %s already registered", name)
	}

	ch := make(chan messages.Envelope, bufferSize)
	r.mailboxes[name] = &mailbox{ch: ch, active: true}

	log.Printf("Router: Registered context %s with buffer size %d", name, bufferSize)
	return ch, nil
}

// Unregister removes a context and releases anything still queued for it
func (r *Router) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mb, exists := r.mailboxes[name]; exists {
		mb.active = false
		close(mb.ch)
		delete(r.mailboxes, name)
		if n := DrainChannel(mb.ch); n > 0 {
			log.Printf("Router: Released %d undelivered messages for %s", n, name)
		}
		log.Printf("Router: Unregistered context %s", name)
	}
}

// Post enqueues env without blocking. On any failure the payload is released
// here, so the caller must treat the operation as not performed and must not
// touch the payload again.
func (r *Router) Post(env messages.Envelope) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.logMessages {
		log.Printf("Router: %s -> %s: %s id=%d", env.From, env.To, env.Message.Type(), env.Message.ID)
	}

	if r.closed {
		env.Message.Release()
		return ErrClosed
	}
	mb, exists := r.mailboxes[env.To]
	if !exists || !mb.active {
		env.Message.Release()
		return fmt.Errorf("%w: %s", ErrUnknownContext, env.To)
	}

	select {
	case mb.ch <- env:
		return nil
	default:
		env.Message.Release()
		return fmt.Errorf("%w: %s dropped %s", ErrMailboxFull, env.To, env.Message.Type())
	}
}

// PostTo is a convenience wrapper around Post
func (r *Router) PostTo(from, to string, msg messages.Message) error {
	return r.Post(messages.Envelope{From: from, To: to, Message: msg})
}

// Pending returns how many messages wait in each mailbox
func (r *Router) Pending() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]int)
	for name, mb := range r.mailboxes {
		if mb.active {
			stats[name] = len(mb.ch)
		}
	}
	return stats
}

// SetMessageLogging enables or disables per-message logging
func (r *Router) SetMessageLogging(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logMessages = enabled
}

// Shutdown closes every mailbox and releases undelivered payloads
func (r *Router) Shutdown() {
	log.Printf("Router: Shutting down...")

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for name, mb := range r.mailboxes {
		if mb.active {
			mb.active = false
			close(mb.ch)
			if n := DrainChannel(mb.ch); n > 0 {
				log.Printf("Router: Released %d undelivered messages for %s", n, name)
			}
		}
	}
	r.mailboxes = make(map[string]*mailbox)

	log.Printf("Router: Shutdown complete")
}

// DrainChannel releases every message queued on ch and returns the count
func DrainChannel(ch <-chan messages.Envelope) int {
	count := 0
	for {
		select {
		case env, ok := <-ch:
			if !ok {
				return count
			}
			env.Message.Release()
			count++
		default:
			return count
		}
	}
}
