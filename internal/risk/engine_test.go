package risk

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/position"
	"main/internal/schema"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func marketOrder(symbol string, side schema.Side, qty int64) schema.OrderRequest {
	return schema.OrderRequest{
		ID:       uuid.New(),
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Type:     schema.OrderTypeMarket,
		Status:   schema.OrderStatusPending,
	}
}

func publishTick(t *testing.T, b *bus.Bus, symbol, last string) {
	t.Helper()
	err := b.Publish(t.Context(), schema.NewEvent(schema.EventTick, schema.Tick{
		Symbol: symbol,
		Last:   dec(last),
	}))
	require.NoError(t, err)
}

func newEngine(t *testing.T, cfg Config) (*bus.Bus, *Engine, *position.Tracker) {
	t.Helper()
	b := bus.New()
	tracker := position.NewTracker(position.DefaultInitialCash)
	tracker.Register(b)
	engine := NewEngine(cfg, tracker)
	engine.Register(b)
	return b, engine, tracker
}

func TestRejectsOversizedOrderValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOrderValue = dec("5000")
	b, _, _ := newEngine(t, cfg)

	var breaches []schema.RiskBreach
	var updates []schema.OrderUpdate
	b.Subscribe(schema.EventRiskBreach, "collector", func(ctx context.Context, event schema.Event) error {
		breaches = append(breaches, event.Payload.(schema.RiskBreach))
		return nil
	})
	b.Subscribe(schema.EventOrderUpdate, "collector", func(ctx context.Context, event schema.Event) error {
		updates = append(updates, event.Payload.(schema.OrderUpdate))
		return nil
	})

	publishTick(t, b, "FOO", "100")
	order := marketOrder("FOO", schema.SideBuy, 100)
	require.NoError(t, b.Publish(t.Context(), schema.NewEvent(schema.EventOrderRequest, order)))

	require.Len(t, breaches, 1)
	assert.Equal(t, schema.RiskRuleMaxOrderValue, breaches[0].Rule)
	assert.Equal(t, order.ID, breaches[0].OrderID)
	require.Len(t, updates, 1)
	assert.Equal(t, schema.OrderStatusRejected, updates[0].Status)
	assert.Equal(t, order.ID, updates[0].OrderID)
}

func TestPassingOrderIsSilent(t *testing.T) {
	cfg := DefaultConfig()
	b, _, _ := newEngine(t, cfg)

	var events int
	b.Subscribe(schema.EventRiskBreach, "collector", func(ctx context.Context, event schema.Event) error {
		events++
		return nil
	})
	b.Subscribe(schema.EventOrderUpdate, "collector", func(ctx context.Context, event schema.Event) error {
		events++
		return nil
	})

	publishTick(t, b, "FOO", "10")
	require.NoError(t, b.Publish(t.Context(), schema.NewEvent(schema.EventOrderRequest, marketOrder("FOO", schema.SideBuy, 10))))
	assert.Equal(t, 0, events)
}

func TestRejectsWithoutReferencePrice(t *testing.T) {
	b, _, _ := newEngine(t, DefaultConfig())

	var breaches []schema.RiskBreach
	b.Subscribe(schema.EventRiskBreach, "collector", func(ctx context.Context, event schema.Event) error {
		breaches = append(breaches, event.Payload.(schema.RiskBreach))
		return nil
	})

	require.NoError(t, b.Publish(t.Context(), schema.NewEvent(schema.EventOrderRequest, marketOrder("NEVER", schema.SideBuy, 1))))
	require.Len(t, breaches, 1)
	assert.Equal(t, schema.RiskRuleMaxOrderValue, breaches[0].Rule)
}

func TestLimitOrderUsesLimitPriceAsReference(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOrderValue = dec("1000")
	_, engine, _ := newEngine(t, cfg)

	limit := dec("50")
	order := marketOrder("FOO", schema.SideBuy, 10)
	order.Type = schema.OrderTypeLimit
	order.LimitPrice = &limit

	_, ok := engine.Check(order)
	assert.True(t, ok, "limit order needs no cached tick")
}

func TestRejectsProjectedPositionSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOrderValue = dec("1000000")
	cfg.MaxPositionSize = 50
	b, engine, tracker := newEngine(t, cfg)

	publishTick(t, b, "FOO", "10")
	_, err := tracker.ApplyFill(schema.Fill{
		ID: uuid.New(), OrderID: uuid.New(),
		Symbol: "FOO", Side: schema.SideBuy, Quantity: 40, Price: dec("10"),
	})
	require.NoError(t, err)

	breach, ok := engine.Check(marketOrder("FOO", schema.SideBuy, 20))
	require.False(t, ok)
	assert.Equal(t, schema.RiskRuleMaxPositionSize, breach.Rule)

	// Selling reduces the long; signed projection passes.
	_, ok = engine.Check(marketOrder("FOO", schema.SideSell, 20))
	assert.True(t, ok)

	// A large enough sell flips past the short limit.
	breach, ok = engine.Check(marketOrder("FOO", schema.SideSell, 100))
	require.False(t, ok)
	assert.Equal(t, schema.RiskRuleMaxPositionSize, breach.Rule)
}

func TestDrawdownLockout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOrderValue = dec("1000000")
	cfg.MaxPositionSize = 1000000
	cfg.MaxDrawdownPct = dec("0.10")
	b, engine, tracker := newEngine(t, cfg)

	// Build equity to a peak, then mark it down 11%.
	_, err := tracker.ApplyFill(schema.Fill{
		ID: uuid.New(), OrderID: uuid.New(),
		Symbol: "FOO", Side: schema.SideBuy, Quantity: 1000, Price: dec("100"),
	})
	require.NoError(t, err)
	publishTick(t, b, "FOO", "100")
	tracker.Snapshot()
	publishTick(t, b, "FOO", "89")

	breach, ok := engine.Check(marketOrder("FOO", schema.SideBuy, 1))
	require.False(t, ok)
	assert.Equal(t, schema.RiskRuleMaxDrawdown, breach.Rule)
}
