// Package publisher provides the audit write side handed to domain services.
package publisher

import (
	"context"
	"sync"

	audit "payouts/pkg/platform/audit"
	"payouts/pkg/requestcontext"
)

// Publisher appends events to an audit store, stamping request-scoped
// metadata so callers only fill in domain fields. By default emission is
// synchronous; WithAsyncBuffer moves persistence onto a background goroutine
// so transfer hot paths never wait on the audit sink.
type Publisher struct {
	store audit.Store

	inbox  chan audit.Event
	wg     sync.WaitGroup
	closed chan struct{}
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with the given buffer size.
// When the buffer is full, Emit falls back to synchronous persistence rather
// than dropping the event.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, closed: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.Actor(ctx)
	}
	// The action-to-category map is the source of truth; never trust the
	// category on an inbound event.
	event.Category = audit.AuditEvent(event.Action).Category()

	if p.inbox != nil {
		select {
		case p.inbox <- event:
			return nil
		default:
		}
	}
	return p.store.Append(ctx, event)
}

// Close stops the async drain goroutine after flushing buffered events.
func (p *Publisher) Close() {
	select {
	case <-p.closed:
		return
	default:
	}
	close(p.closed)
	if p.inbox != nil {
		close(p.inbox)
		p.wg.Wait()
	}
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		// Background persistence uses a fresh context: the request that
		// produced the event may already be done.
		_ = p.store.Append(context.Background(), event)
	}
}
