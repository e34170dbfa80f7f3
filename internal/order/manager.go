package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

var ErrUnknownOrder = errors.New("order not found")

// Config controls order sizing and fill simulation.
type Config struct {
	MaxQtyPerSignal int64
	RiskWait        time.Duration
	SlippageBps     int64
}

// DefaultConfig returns the baseline order manager settings.
func DefaultConfig() Config {
	return Config{
		MaxQtyPerSignal: 100,
		RiskWait:        50 * time.Millisecond,
		SlippageBps:     5,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxQtyPerSignal <= 0 {
		c.MaxQtyPerSignal = 100
	}
	if c.RiskWait <= 0 {
		c.RiskWait = 50 * time.Millisecond
	}
	return c
}

// Manager converts signals into market orders and simulates fills with
// slippage. A fill is only published once the risk window has elapsed
// without a rejection for the order.
type Manager struct {
	cfg Config
	bus *bus.Bus

	mu         sync.Mutex
	orders     map[uuid.UUID]schema.OrderRequest
	lastPrices map[string]decimal.Decimal
	timers     map[uuid.UUID]*time.Timer
	baseCtx    context.Context
	closed     bool
}

// NewManager creates an order manager publishing on the given bus.
func NewManager(cfg Config, b *bus.Bus) *Manager {
	return &Manager{
		cfg:        cfg.withDefaults(),
		bus:        b,
		orders:     make(map[uuid.UUID]schema.OrderRequest),
		lastPrices: make(map[string]decimal.Decimal),
		timers:     make(map[uuid.UUID]*time.Timer),
		baseCtx:    context.Background(),
	}
}

// SetContext sets the context used when fill timers publish.
func (m *Manager) SetContext(ctx context.Context) {
	if ctx != nil {
		m.mu.Lock()
		m.baseCtx = ctx
		m.mu.Unlock()
	}
}

// Register subscribes the manager to signals, ticks and order updates.
func (m *Manager) Register(b *bus.Bus) {
	b.Subscribe(schema.EventSignal, "order-manager", func(ctx context.Context, event schema.Event) error {
		signal, ok := event.Payload.(schema.Signal)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		return m.handleSignal(ctx, signal)
	})
	b.Subscribe(schema.EventTick, "order-manager", func(ctx context.Context, event schema.Event) error {
		tick, ok := event.Payload.(schema.Tick)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		m.mu.Lock()
		m.lastPrices[tick.Symbol] = tick.Last
		m.mu.Unlock()
		return nil
	})
	b.Subscribe(schema.EventOrderUpdate, "order-manager", func(ctx context.Context, event schema.Event) error {
		update, ok := event.Payload.(schema.OrderUpdate)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		if update.Status == schema.OrderStatusRejected {
			m.markRejected(update.OrderID)
		}
		return nil
	})
}

func (m *Manager) handleSignal(ctx context.Context, signal schema.Signal) error {
	quantity := int64(math.Round(signal.Strength * float64(m.cfg.MaxQtyPerSignal)))
	if quantity <= 0 {
		logs.Debugf("signal dropped, zero quantity: strategy=%s symbol=%s strength=%f",
			signal.StrategyID, signal.Symbol, signal.Strength)
		return nil
	}

	order := schema.OrderRequest{
		ID:         uuid.New(),
		Symbol:     signal.Symbol,
		Side:       signal.Side,
		Quantity:   quantity,
		Type:       schema.OrderTypeMarket,
		StrategyID: signal.StrategyID,
		Status:     schema.OrderStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.orders[order.ID] = order
	m.timers[order.ID] = time.AfterFunc(m.cfg.RiskWait, func() {
		m.decide(order.ID)
	})
	m.mu.Unlock()

	logs.Infof("order created: id=%s symbol=%s side=%s qty=%d",
		order.ID, order.Symbol, order.Side, order.Quantity)
	return m.bus.Publish(ctx, schema.NewEvent(schema.EventOrderRequest, order))
}

func (m *Manager) markRejected(orderID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok || order.Status.IsTerminal() {
		return
	}
	order.Status = schema.OrderStatusRejected
	m.orders[orderID] = order
	if timer, ok := m.timers[orderID]; ok {
		timer.Stop()
		delete(m.timers, orderID)
	}
}

// decide runs when the risk window elapses. An order still pending fills
// at the last price with slippage applied; without any observed tick for
// the symbol it is cancelled instead.
func (m *Manager) decide(orderID uuid.UUID) {
	m.mu.Lock()
	delete(m.timers, orderID)
	order, ok := m.orders[orderID]
	if !ok || order.Status != schema.OrderStatusPending {
		m.mu.Unlock()
		return
	}
	ctx := m.baseCtx
	if m.closed {
		order.Status = schema.OrderStatusCancelled
		m.orders[orderID] = order
		m.mu.Unlock()
		return
	}

	last, seen := m.lastPrices[order.Symbol]
	if !seen {
		order.Status = schema.OrderStatusCancelled
		m.orders[orderID] = order
		m.mu.Unlock()
		logs.Warnf("order cancelled, no price observed: id=%s symbol=%s", orderID, order.Symbol)
		m.publishUpdate(ctx, orderID, schema.OrderStatusCancelled, "no price observed")
		return
	}

	order.Status = schema.OrderStatusSubmitted
	fillPrice := applySlippage(last, order.Side, m.cfg.SlippageBps)
	order.Status = schema.OrderStatusFilled
	m.orders[orderID] = order
	m.mu.Unlock()

	fill := schema.Fill{
		ID:       uuid.New(),
		OrderID:  order.ID,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    fillPrice,
		FilledAt: time.Now().UTC(),
	}
	logs.Infof("order filled: id=%s price=%s", order.ID, fill.Price)
	if err := m.bus.Publish(ctx, schema.NewEvent(schema.EventFill, fill)); err != nil {
		logs.Errorf("publish fill: id=%s err=%+v", order.ID, err)
	}
}

func (m *Manager) publishUpdate(ctx context.Context, orderID uuid.UUID, status schema.OrderStatus, reason string) {
	update := schema.OrderUpdate{
		OrderID:   orderID,
		Status:    status,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if err := m.bus.Publish(ctx, schema.NewEvent(schema.EventOrderUpdate, update)); err != nil {
		logs.Errorf("publish order update: id=%s err=%+v", orderID, err)
	}
}

// Order returns a snapshot of the order.
func (m *Manager) Order(orderID uuid.UUID) (schema.OrderRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return schema.OrderRequest{}, ErrUnknownOrder
	}
	return order, nil
}

// Orders returns a snapshot of all orders seen by the manager.
func (m *Manager) Orders() []schema.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schema.OrderRequest, 0, len(m.orders))
	for _, order := range m.orders {
		out = append(out, order)
	}
	return out
}

// Shutdown stops accepting signals, cancels pending fill timers and marks
// their orders cancelled.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	pending := make([]uuid.UUID, 0, len(m.timers))
	for orderID, timer := range m.timers {
		timer.Stop()
		pending = append(pending, orderID)
	}
	m.timers = make(map[uuid.UUID]*time.Timer)
	for _, orderID := range pending {
		order, ok := m.orders[orderID]
		if !ok || order.Status != schema.OrderStatusPending {
			continue
		}
		order.Status = schema.OrderStatusCancelled
		m.orders[orderID] = order
	}
	m.mu.Unlock()
	if len(pending) > 0 {
		logs.Infof("order manager shutdown: cancelled=%d", len(pending))
	}
}

func applySlippage(price decimal.Decimal, side schema.Side, bps int64) decimal.Decimal {
	slip := decimal.New(bps, -4)
	one := decimal.NewFromInt(1)
	if side == schema.SideBuy {
		return price.Mul(one.Add(slip)).Round(schema.PriceScale)
	}
	return price.Mul(one.Sub(slip)).Round(schema.PriceScale)
}
