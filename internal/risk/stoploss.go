package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

// StopLossStrategyID tags signals emitted by the stop-loss manager.
const StopLossStrategyID = "stop_loss"

// DefaultStopLossPct is the default distance of the stop from entry.
var DefaultStopLossPct = decimal.NewFromFloat(0.02)

type stopLevel struct {
	stopPrice   decimal.Decimal
	sideToClose schema.Side
	quantity    int64
}

// StopLossManager arms a protective stop for every open position and emits
// a full-strength closing signal when the price crosses it. Stops re-arm on
// position updates, so each armed level fires at most once. Listening on
// position updates rather than fills keeps arming causally behind the
// tracker's own fill handling.
type StopLossManager struct {
	pct decimal.Decimal

	mu        sync.Mutex
	stops     map[string]stopLevel
	triggered map[string]struct{}
}

// NewStopLossManager creates a manager with the given stop distance.
func NewStopLossManager(pct decimal.Decimal) *StopLossManager {
	if pct.IsZero() {
		pct = DefaultStopLossPct
	}
	return &StopLossManager{
		pct:       pct,
		stops:     make(map[string]stopLevel),
		triggered: make(map[string]struct{}),
	}
}

// Register subscribes the manager to position updates and ticks.
func (m *StopLossManager) Register(b *bus.Bus) {
	b.Subscribe(schema.EventPositionUpdate, "stop-loss", func(ctx context.Context, event schema.Event) error {
		pos, ok := event.Payload.(schema.Position)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		m.rearm(pos)
		return nil
	})
	b.Subscribe(schema.EventTick, "stop-loss", func(ctx context.Context, event schema.Event) error {
		tick, ok := event.Payload.(schema.Tick)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		signal, fired := m.evaluate(tick)
		if !fired {
			return nil
		}
		return b.Publish(ctx, schema.NewEvent(schema.EventSignal, signal))
	})
}

func (m *StopLossManager) rearm(pos schema.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos.Quantity == 0 {
		delete(m.stops, pos.Symbol)
		delete(m.triggered, pos.Symbol)
		return
	}

	one := decimal.NewFromInt(1)
	var level stopLevel
	if pos.Quantity > 0 {
		// Long: stop below entry.
		level = stopLevel{
			stopPrice:   pos.AvgEntryPrice.Mul(one.Sub(m.pct)),
			sideToClose: schema.SideSell,
			quantity:    pos.Quantity,
		}
	} else {
		// Short: stop above entry.
		level = stopLevel{
			stopPrice:   pos.AvgEntryPrice.Mul(one.Add(m.pct)),
			sideToClose: schema.SideBuy,
			quantity:    -pos.Quantity,
		}
	}
	m.stops[pos.Symbol] = level
	delete(m.triggered, pos.Symbol)
	logs.Debugf("stop armed: symbol=%s stop=%s close=%s qty=%d",
		pos.Symbol, level.stopPrice, level.sideToClose, level.quantity)
}

func (m *StopLossManager) evaluate(tick schema.Tick) (schema.Signal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	level, ok := m.stops[tick.Symbol]
	if !ok {
		return schema.Signal{}, false
	}
	if _, fired := m.triggered[tick.Symbol]; fired {
		return schema.Signal{}, false
	}

	crossed := false
	if level.sideToClose == schema.SideSell {
		crossed = tick.Last.LessThanOrEqual(level.stopPrice)
	} else {
		crossed = tick.Last.GreaterThanOrEqual(level.stopPrice)
	}
	if !crossed {
		return schema.Signal{}, false
	}

	m.triggered[tick.Symbol] = struct{}{}
	logs.Warnf("stop loss triggered: symbol=%s price=%s stop=%s",
		tick.Symbol, tick.Last, level.stopPrice)
	return schema.Signal{
		StrategyID: StopLossStrategyID,
		Symbol:     tick.Symbol,
		Side:       level.sideToClose,
		Strength:   1.0,
		Timestamp:  time.Now().UTC(),
	}, true
}
