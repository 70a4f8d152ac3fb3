package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

func sampleEvents() []domain.RecordEvent {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []domain.RecordEvent{
		{ID: "e1", Kind: domain.EventRecordCreated, RecordID: "r1", Connector: "gmail", ExternalID: "t1", Revision: "h1", At: at},
		{ID: "e2", Kind: domain.EventRecordUpdated, RecordID: "r2", Connector: "gmail", ExternalID: "t2", Revision: "h2", At: at},
	}
}

func TestBus_PublishFansOutInOrder(t *testing.T) {
	bus := New()
	var order []string
	bus.Subscribe("a", func(_ context.Context, events []domain.RecordEvent) error {
		order = append(order, "a")
		assert.Len(t, events, 2)
		return nil
	})
	bus.Subscribe("b", func(_ context.Context, _ []domain.RecordEvent) error {
		order = append(order, "b")
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), sampleEvents()))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestBus_PublishEmpty(t *testing.T) {
	bus := New()
	called := false
	bus.Subscribe("a", func(context.Context, []domain.RecordEvent) error {
		called = true
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), nil))
	assert.False(t, called)
}

func TestBus_SubscriberErrorFailsPublish(t *testing.T) {
	bus := New()
	boom := errors.New("boom")
	delivered := false
	bus.Subscribe("failing", func(context.Context, []domain.RecordEvent) error { return boom })
	bus.Subscribe("ok", func(context.Context, []domain.RecordEvent) error {
		delivered = true
		return nil
	})

	err := bus.Publish(context.Background(), sampleEvents())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, delivered, "later subscribers still receive the batch")
}

func TestBus_SubscriberPanicIsRecovered(t *testing.T) {
	bus := New()
	bus.Subscribe("panics", func(context.Context, []domain.RecordEvent) error { panic("bad") })

	err := bus.Publish(context.Background(), sampleEvents())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panics")
}

func TestJSONLinesHandler(t *testing.T) {
	var buf bytes.Buffer
	bus := New()
	bus.Subscribe("jsonl", JSONLinesHandler(&buf))
	bus.Subscribe("log", LogHandler())

	require.NoError(t, bus.Publish(context.Background(), sampleEvents()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "e1", first["id"])
	assert.Equal(t, "created", first["kind"])
	assert.Equal(t, "t1", first["external_id"])
	assert.Equal(t, "2024-05-01T12:00:00Z", first["at"])
}
