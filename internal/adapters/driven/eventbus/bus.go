// Package eventbus provides an in-process driven.EventPublisher that fans
// record events out to registered handlers.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

var _ driven.EventPublisher = (*Bus)(nil)

// Handler consumes a batch of record events.
type Handler func(ctx context.Context, events []domain.RecordEvent) error

type subscription struct {
	name    string
	handler Handler
}

// Bus delivers every published batch to each subscriber in registration order.
// A failing or panicking subscriber fails the Publish call, so the outbox keeps
// the events and redelivers them; subscribers must deduplicate on event ID.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler under name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, handler: h})
}

// Publish implements driven.EventPublisher.
func (b *Bus) Publish(ctx context.Context, events []domain.RecordEvent) error {
	if len(events) == 0 {
		return nil
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := deliver(ctx, s, events); err != nil {
			errs = append(errs, goerr.Wrap(err, "subscriber failed",
				goerr.V("subscriber", s.name), goerr.V("events", len(events))))
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, s subscription, events []domain.RecordEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Default().Error("panic in event subscriber", "subscriber", s.name, "panic", r)
			err = fmt.Errorf("panic in subscriber %s: %v", s.name, r)
		}
	}()
	return s.handler(ctx, events)
}

// LogHandler logs each event at debug level.
func LogHandler() Handler {
	return func(_ context.Context, events []domain.RecordEvent) error {
		log := logger.Default()
		for _, ev := range events {
			log.Debug("record event",
				"id", ev.ID,
				"kind", string(ev.Kind),
				"connector", ev.Connector,
				"external_id", ev.ExternalID,
				"revision", ev.Revision)
		}
		return nil
	}
}

// JSONLinesHandler writes each event as one JSON object per line.
func JSONLinesHandler(w io.Writer) Handler {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(_ context.Context, events []domain.RecordEvent) error {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range events {
			if err := enc.Encode(eventLine{
				ID:         ev.ID,
				Kind:       string(ev.Kind),
				RecordID:   ev.RecordID,
				Connector:  ev.Connector,
				ExternalID: ev.ExternalID,
				Revision:   ev.Revision,
				At:         ev.At,
			}); err != nil {
				return fmt.Errorf("writing event %s: %w", ev.ID, err)
			}
		}
		return nil
	}
}

type eventLine struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	RecordID   string    `json:"record_id"`
	Connector  string    `json:"connector"`
	ExternalID string    `json:"external_id"`
	Revision   string    `json:"revision,omitempty"`
	At         time.Time `json:"at"`
}
