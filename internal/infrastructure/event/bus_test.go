package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/facturo/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panics     bool
}

func (h *recordingHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *recordingHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	if h.panics {
		panic("handler exploded")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, evt)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func testEvent(eventType string) shared.DomainEvent {
	evt := shared.NewBaseDomainEvent(eventType, "test", uuid.New(), uuid.New())
	return &evt
}

func TestBusPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to a typed subscriber", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		h := &recordingHandler{eventTypes: []string{"document.emitted"}}
		bus.Subscribe(h)

		require.NoError(t, bus.Publish(ctx, testEvent("document.emitted")))
		require.NoError(t, bus.Publish(ctx, testEvent("tenant.created")))

		assert.Equal(t, 1, h.count())
	})

	t.Run("wildcard subscriber sees every event", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		h := &recordingHandler{}
		bus.Subscribe(h)

		require.NoError(t, bus.Publish(ctx, testEvent("document.emitted"), testEvent("tenant.created")))
		assert.Equal(t, 2, h.count())
	})

	t.Run("handler error does not stop delivery", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		failing := &recordingHandler{err: errors.New("boom")}
		healthy := &recordingHandler{}
		bus.Subscribe(failing)
		bus.Subscribe(healthy)

		require.NoError(t, bus.Publish(ctx, testEvent("document.emitted")))
		assert.Equal(t, 1, healthy.count())
	})

	t.Run("handler panic is contained", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		bus.Subscribe(&recordingHandler{panics: true})
		healthy := &recordingHandler{}
		bus.Subscribe(healthy)

		require.NoError(t, bus.Publish(ctx, testEvent("document.emitted")))
		assert.Equal(t, 1, healthy.count())
	})

	t.Run("unsubscribed handler receives nothing further", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		h := &recordingHandler{}
		bus.Subscribe(h)

		require.NoError(t, bus.Publish(ctx, testEvent("document.emitted")))
		bus.Unsubscribe(h)
		require.NoError(t, bus.Publish(ctx, testEvent("document.emitted")))

		assert.Equal(t, 1, h.count())
	})
}

func TestAuditLogHandler(t *testing.T) {
	h := NewAuditLogHandler(zap.NewNop())
	assert.Empty(t, h.EventTypes())
	assert.NoError(t, h.Handle(context.Background(), testEvent("document.emitted")))
}
