package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

var ErrQuantityOverflow = errors.New("position quantity out of safe range")

// maxAbsQuantity bounds position sizes to the integer range that survives
// conversion through float64-based consumers.
const maxAbsQuantity = int64(1) << 53

// DefaultInitialCash is the starting cash balance.
var DefaultInitialCash = decimal.NewFromInt(100_000)

// Tracker maintains per-symbol positions, realized/unrealized P&L and cash.
// Mutations happen only through bus handlers; readers receive copies.
type Tracker struct {
	mu         sync.Mutex
	positions  map[string]schema.Position
	cash       decimal.Decimal
	peakEquity decimal.Decimal
	fatal      func(error)
}

// NewTracker creates a tracker with the given starting cash.
func NewTracker(initialCash decimal.Decimal) *Tracker {
	return &Tracker{
		positions: make(map[string]schema.Position),
		cash:      initialCash,
		fatal: func(err error) {
			logs.Errorf("position tracker fatal: %+v", err)
		},
	}
}

// OnFatal replaces the callback invoked on unrecoverable state corruption.
func (t *Tracker) OnFatal(fn func(error)) {
	if fn != nil {
		t.fatal = fn
	}
}

// Register subscribes the tracker to fill and tick events.
func (t *Tracker) Register(b *bus.Bus) {
	b.Subscribe(schema.EventFill, "position-tracker", func(ctx context.Context, event schema.Event) error {
		fill, ok := event.Payload.(schema.Fill)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		pos, err := t.ApplyFill(fill)
		if err != nil {
			return err
		}
		return b.Publish(ctx, schema.NewEvent(schema.EventPositionUpdate, pos))
	})
	b.Subscribe(schema.EventTick, "position-tracker", func(ctx context.Context, event schema.Event) error {
		tick, ok := event.Payload.(schema.Tick)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		t.Mark(tick.Symbol, tick.Last)
		return nil
	})
}

// ApplyFill mutates cash and the symbol position according to the fill.
// Fills are authoritative: unknown order ids still apply. Returns the new
// position state.
func (t *Tracker) ApplyFill(fill schema.Fill) (schema.Position, error) {
	if fill.Quantity <= 0 || fill.Price.IsNegative() {
		return schema.Position{}, fmt.Errorf("malformed fill: symbol=%s qty=%d price=%s",
			fill.Symbol, fill.Quantity, fill.Price)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.positions[fill.Symbol]
	if !ok {
		cur = schema.Position{Symbol: fill.Symbol}
	}

	qty := decimal.NewFromInt(fill.Quantity)
	signed := fill.Quantity
	if fill.Side == schema.SideSell {
		signed = -fill.Quantity
	}
	notional := fill.Price.Mul(qty)

	// Buy debits, sell credits. Realized P&L is implicit in the cash delta.
	if signed > 0 {
		t.cash = t.cash.Sub(notional)
	} else {
		t.cash = t.cash.Add(notional)
	}

	newQty := cur.Quantity + signed
	if newQty > maxAbsQuantity || newQty < -maxAbsQuantity {
		err := fmt.Errorf("%w: symbol=%s qty=%d", ErrQuantityOverflow, fill.Symbol, newQty)
		t.fatal(err)
		return schema.Position{}, err
	}

	switch {
	case cur.Quantity == 0 || sameSign(cur.Quantity, signed):
		// Opening or adding: volume-weighted average entry.
		curAbs := decimal.NewFromInt(abs(cur.Quantity))
		total := curAbs.Mul(cur.AvgEntryPrice).Add(notional)
		cur.AvgEntryPrice = total.DivRound(curAbs.Add(qty), schema.PriceScale)
		cur.Quantity = newQty

	case abs(signed) <= abs(cur.Quantity):
		// Reducing or closing: realized P&L on the closed quantity.
		delta := fill.Price.Sub(cur.AvgEntryPrice).Mul(qty)
		if cur.Quantity < 0 {
			delta = delta.Neg()
		}
		cur.RealizedPnL = cur.RealizedPnL.Add(delta)
		cur.Quantity = newQty
		if cur.Quantity == 0 {
			cur.AvgEntryPrice = decimal.Zero
		}

	default:
		// Flipping through zero: close the full current position, then
		// open the remainder on the other side at the fill price.
		closeQty := decimal.NewFromInt(abs(cur.Quantity))
		delta := fill.Price.Sub(cur.AvgEntryPrice).Mul(closeQty)
		if cur.Quantity < 0 {
			delta = delta.Neg()
		}
		cur.RealizedPnL = cur.RealizedPnL.Add(delta)
		cur.Quantity = newQty
		cur.AvgEntryPrice = fill.Price
	}

	if cur.LastMark.IsZero() || cur.Quantity == 0 {
		cur.UnrealizedPnL = decimal.Zero
	} else {
		cur.UnrealizedPnL = cur.LastMark.Sub(cur.AvgEntryPrice).Mul(decimal.NewFromInt(cur.Quantity))
	}

	t.positions[fill.Symbol] = cur
	logs.Debugf("position updated: symbol=%s qty=%d avg=%s realized=%s",
		cur.Symbol, cur.Quantity, cur.AvgEntryPrice, cur.RealizedPnL)
	return cur, nil
}

// Mark updates the symbol's last mark and recomputes unrealized P&L.
// High-frequency path: no event is emitted.
func (t *Tracker) Mark(symbol string, mark decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.positions[symbol]
	if !ok {
		return
	}
	cur.LastMark = mark
	cur.UnrealizedPnL = mark.Sub(cur.AvgEntryPrice).Mul(decimal.NewFromInt(cur.Quantity))
	t.positions[symbol] = cur
}

// Position returns a copy of the symbol's position.
func (t *Tracker) Position(symbol string) (schema.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.positions[symbol]
	return pos, ok
}

// Cash returns the current cash balance.
func (t *Tracker) Cash() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cash
}

// Snapshot computes portfolio totals, updates peak equity and derives the
// current drawdown.
func (t *Tracker) Snapshot() schema.PortfolioSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	totalUnrealized := decimal.Zero
	totalRealized := decimal.Zero
	positionValue := decimal.Zero
	positions := make(map[string]schema.Position, len(t.positions))
	for symbol, pos := range t.positions {
		totalUnrealized = totalUnrealized.Add(pos.UnrealizedPnL)
		totalRealized = totalRealized.Add(pos.RealizedPnL)
		positionValue = positionValue.Add(pos.LastMark.Mul(decimal.NewFromInt(pos.Quantity)))
		positions[symbol] = pos
	}

	equity := t.cash.Add(positionValue)
	if equity.GreaterThan(t.peakEquity) {
		t.peakEquity = equity
	}
	drawdown := decimal.Zero
	if t.peakEquity.IsPositive() {
		drawdown = t.peakEquity.Sub(equity).DivRound(t.peakEquity, schema.PriceScale)
	}

	return schema.PortfolioSnapshot{
		Cash:            t.cash,
		TotalUnrealized: totalUnrealized,
		TotalRealized:   totalRealized,
		TotalEquity:     equity,
		PeakEquity:      t.peakEquity,
		DrawdownPct:     drawdown,
		Positions:       positions,
		SnapshotAt:      time.Now().UTC(),
	}
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
