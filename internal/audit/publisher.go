package audit

import (
	"context"
	"time"
)

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher stamps events and hands them to a store so tests can swap sinks
// easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now()
	}
	if base.Category == "" {
		base.Category = AuditEvent(base.Action).Category()
	}
	return p.store.Append(ctx, base)
}
