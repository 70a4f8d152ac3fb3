package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

const outboxChunk = 100

// Outbox delivers record events that were committed to the graph store's
// outbox. Events are acknowledged only after a successful publish, so every
// event is delivered at least once.
type Outbox struct {
	store     driven.GraphStore
	publisher driven.EventPublisher
}

// NewOutbox creates an outbox. A nil publisher leaves events pending.
func NewOutbox(store driven.GraphStore, publisher driven.EventPublisher) *Outbox {
	return &Outbox{store: store, publisher: publisher}
}

// Deliver publishes freshly committed events and acknowledges them.
// Failures are logged; the events stay pending for the next Flush.
func (o *Outbox) Deliver(ctx context.Context, events []domain.RecordEvent) {
	if o == nil || o.publisher == nil || len(events) == 0 {
		return
	}
	if err := o.publisher.Publish(ctx, events); err != nil {
		logger.Default().Warn("event publish failed, kept in outbox", "events", len(events), logger.ErrAttr(err))
		return
	}
	if err := o.store.AckEvents(ctx, eventIDs(events)); err != nil {
		logger.Default().Warn("event ack failed", "events", len(events), logger.ErrAttr(err))
	}
}

// Flush publishes every pending event. Returns the number delivered.
func (o *Outbox) Flush(ctx context.Context) (int, error) {
	if o == nil || o.publisher == nil {
		return 0, nil
	}
	delivered := 0
	for {
		events, err := o.store.PendingEvents(ctx, outboxChunk)
		if err != nil {
			return delivered, fmt.Errorf("pending events: %w", err)
		}
		if len(events) == 0 {
			return delivered, nil
		}
		if err := o.publisher.Publish(ctx, events); err != nil {
			return delivered, fmt.Errorf("publish: %w", err)
		}
		if err := o.store.AckEvents(ctx, eventIDs(events)); err != nil {
			return delivered, fmt.Errorf("ack events: %w", err)
		}
		delivered += len(events)
		if len(events) < outboxChunk {
			return delivered, nil
		}
	}
}

func eventIDs(events []domain.RecordEvent) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	return ids
}
