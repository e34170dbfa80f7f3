package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func tickEvent(symbol string, last int64) schema.Event {
	return schema.NewEvent(schema.EventTick, schema.Tick{
		Symbol: symbol,
		Last:   decimal.NewFromInt(last),
	})
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	b := New()
	var got atomic.Int64
	b.Subscribe(schema.EventTick, "counter", func(ctx context.Context, event schema.Event) error {
		got.Add(1)
		return nil
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(t.Context(), tickEvent("ACME", 100)))
	}
	assert.Equal(t, int64(3), got.Load())
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	b := New()
	require.NoError(t, b.Publish(t.Context(), tickEvent("ACME", 100)))
	assert.Len(t, b.History(), 1)
}

func TestSubscribeIdempotentPerPair(t *testing.T) {
	b := New()
	var got atomic.Int64
	handler := func(ctx context.Context, event schema.Event) error {
		got.Add(1)
		return nil
	}
	b.Subscribe(schema.EventTick, "counter", handler)
	b.Subscribe(schema.EventTick, "counter", handler)
	require.Equal(t, 1, b.SubscriberCount())

	require.NoError(t, b.Publish(t.Context(), tickEvent("ACME", 100)))
	assert.Equal(t, int64(1), got.Load())
}

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	b := New()
	var got atomic.Int64
	b.Subscribe(schema.EventTick, "counter", func(ctx context.Context, event schema.Event) error {
		got.Add(1)
		return nil
	})
	b.Unsubscribe(schema.EventTick, "counter")
	require.Equal(t, 0, b.SubscriberCount())

	require.NoError(t, b.Publish(t.Context(), tickEvent("ACME", 100)))
	assert.Equal(t, int64(0), got.Load())
}

func TestUnsubscribeUnknownPairIsNoop(t *testing.T) {
	b := New()
	b.Unsubscribe(schema.EventTick, "nobody")
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestHandlerIsolation(t *testing.T) {
	b := New()
	var counted atomic.Int64
	b.Subscribe(schema.EventTick, "panicky", func(ctx context.Context, event schema.Event) error {
		panic("boom")
	})
	b.Subscribe(schema.EventTick, "failing", func(ctx context.Context, event schema.Event) error {
		return errors.New("handler failed")
	})
	b.Subscribe(schema.EventTick, "counter", func(ctx context.Context, event schema.Event) error {
		counted.Add(1)
		return nil
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(t.Context(), tickEvent("ACME", 100)))
	}

	assert.Equal(t, int64(10), counted.Load())
	assert.Equal(t, uint64(20), b.HandlerErrors())
}

func TestPerCallerDeliveryOrder(t *testing.T) {
	b := New()
	var seen []int64
	b.Subscribe(schema.EventTick, "recorder", func(ctx context.Context, event schema.Event) error {
		tick := event.Payload.(schema.Tick)
		seen = append(seen, tick.Last.IntPart())
		return nil
	})

	for i := int64(1); i <= 50; i++ {
		require.NoError(t, b.Publish(t.Context(), tickEvent("ACME", i)))
	}

	require.Len(t, seen, 50)
	for i, last := range seen {
		assert.Equal(t, int64(i+1), last)
	}
}

func TestReentrantPublishFromHandler(t *testing.T) {
	b := New()
	var signals atomic.Int64
	b.Subscribe(schema.EventTick, "emitter", func(ctx context.Context, event schema.Event) error {
		return b.Publish(ctx, schema.NewEvent(schema.EventSignal, schema.Signal{Symbol: "ACME"}))
	})
	b.Subscribe(schema.EventSignal, "counter", func(ctx context.Context, event schema.Event) error {
		signals.Add(1)
		return nil
	})

	require.NoError(t, b.Publish(t.Context(), tickEvent("ACME", 100)))
	assert.Equal(t, int64(1), signals.Load())
}

func TestHistoryBoundedFIFO(t *testing.T) {
	b := NewWithHistory(5)
	for i := int64(1); i <= 8; i++ {
		require.NoError(t, b.Publish(t.Context(), tickEvent("ACME", i)))
	}

	history := b.History()
	require.Len(t, history, 5)
	for i, event := range history {
		tick := event.Payload.(schema.Tick)
		assert.Equal(t, int64(i+4), tick.Last.IntPart())
	}
}

func TestHistoryByType(t *testing.T) {
	b := New()
	require.NoError(t, b.Publish(t.Context(), tickEvent("ACME", 1)))
	require.NoError(t, b.Publish(t.Context(), schema.NewEvent(schema.EventSignal, schema.Signal{Symbol: "ACME"})))
	require.NoError(t, b.Publish(t.Context(), tickEvent("ACME", 2)))

	assert.Len(t, b.HistoryByType(schema.EventTick), 2)
	assert.Len(t, b.HistoryByType(schema.EventSignal), 1)
	assert.Len(t, b.HistoryByType(schema.EventFill), 0)
}

func TestPublishAfterClose(t *testing.T) {
	b := New()
	b.Close()
	err := b.Publish(t.Context(), tickEvent("ACME", 1))
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestConcurrentPublishers(t *testing.T) {
	b := New()
	var got atomic.Int64
	b.Subscribe(schema.EventTick, "counter", func(ctx context.Context, event schema.Event) error {
		got.Add(1)
		return nil
	})

	done := make(chan struct{})
	for p := 0; p < 4; p++ {
		go func(p int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 25; i++ {
				_ = b.Publish(context.Background(), tickEvent(fmt.Sprintf("SYM%d", p), int64(i)))
			}
		}(p)
	}
	for p := 0; p < 4; p++ {
		<-done
	}

	assert.Equal(t, int64(100), got.Load())
	assert.Len(t, b.History(), 100)
}
