package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/position"
	"main/internal/schema"
)

// Config defines the pre-trade limits.
type Config struct {
	MaxOrderValue   decimal.Decimal
	MaxPositionSize int64
	MaxDrawdownPct  decimal.Decimal
}

// DefaultConfig returns the baseline limits.
func DefaultConfig() Config {
	return Config{
		MaxOrderValue:   decimal.NewFromInt(5_000),
		MaxPositionSize: 10_000,
		MaxDrawdownPct:  decimal.NewFromFloat(0.05),
	}
}

// Engine gates order requests against live position and price state.
// It reads the tracker, never mutates it.
type Engine struct {
	cfg     Config
	tracker *position.Tracker

	mu         sync.Mutex
	lastPrices map[string]decimal.Decimal
}

// NewEngine creates a risk engine bound to the tracker's read view.
func NewEngine(cfg Config, tracker *position.Tracker) *Engine {
	return &Engine{
		cfg:        cfg,
		tracker:    tracker,
		lastPrices: make(map[string]decimal.Decimal),
	}
}

// Register subscribes the engine to order requests and ticks.
func (e *Engine) Register(b *bus.Bus) {
	b.Subscribe(schema.EventTick, "risk-engine", func(ctx context.Context, event schema.Event) error {
		tick, ok := event.Payload.(schema.Tick)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		e.mu.Lock()
		e.lastPrices[tick.Symbol] = tick.Last
		e.mu.Unlock()
		return nil
	})
	b.Subscribe(schema.EventOrderRequest, "risk-engine", func(ctx context.Context, event schema.Event) error {
		order, ok := event.Payload.(schema.OrderRequest)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		breach, ok := e.Check(order)
		if ok {
			return nil
		}
		logs.Warnf("risk breach: order=%s rule=%s %s", order.ID, breach.Rule, breach.Message)
		if err := b.Publish(ctx, schema.NewEvent(schema.EventRiskBreach, breach)); err != nil {
			return err
		}
		update := schema.OrderUpdate{
			OrderID:   order.ID,
			Status:    schema.OrderStatusRejected,
			Reason:    breach.Message,
			Timestamp: event.Timestamp,
		}
		return b.Publish(ctx, schema.NewEvent(schema.EventOrderUpdate, update))
	})
}

// Check evaluates all limits for an order. It returns ok=true when the
// order passes; otherwise the breach describes the first failing rule.
func (e *Engine) Check(order schema.OrderRequest) (schema.RiskBreach, bool) {
	reference, ok := e.referencePrice(order)
	if !ok {
		return schema.RiskBreach{
			Rule:    schema.RiskRuleMaxOrderValue,
			Message: fmt.Sprintf("no reference price for %s", order.Symbol),
			OrderID: order.ID,
		}, false
	}

	orderValue := reference.Mul(decimal.NewFromInt(order.Quantity))
	if orderValue.GreaterThan(e.cfg.MaxOrderValue) {
		return schema.RiskBreach{
			Rule:    schema.RiskRuleMaxOrderValue,
			Message: fmt.Sprintf("order value %s exceeds limit %s", orderValue, e.cfg.MaxOrderValue),
			OrderID: order.ID,
		}, false
	}

	var current int64
	if pos, ok := e.tracker.Position(order.Symbol); ok {
		current = pos.Quantity
	}
	projected := current + order.Quantity
	if order.Side == schema.SideSell {
		projected = current - order.Quantity
	}
	if abs(projected) > e.cfg.MaxPositionSize {
		return schema.RiskBreach{
			Rule:    schema.RiskRuleMaxPositionSize,
			Message: fmt.Sprintf("projected position %d exceeds limit %d", projected, e.cfg.MaxPositionSize),
			OrderID: order.ID,
		}, false
	}

	snapshot := e.tracker.Snapshot()
	if snapshot.DrawdownPct.GreaterThanOrEqual(e.cfg.MaxDrawdownPct) {
		return schema.RiskBreach{
			Rule:    schema.RiskRuleMaxDrawdown,
			Message: fmt.Sprintf("drawdown %s breaches limit %s", snapshot.DrawdownPct, e.cfg.MaxDrawdownPct),
			OrderID: order.ID,
		}, false
	}

	return schema.RiskBreach{}, true
}

func (e *Engine) referencePrice(order schema.OrderRequest) (decimal.Decimal, bool) {
	if order.Type == schema.OrderTypeLimit && order.LimitPrice != nil {
		return *order.LimitPrice, true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	price, ok := e.lastPrices[order.Symbol]
	return price, ok
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
