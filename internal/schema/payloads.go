package schema

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceScale is the fixed fractional scale for prices and cash.
const PriceScale = 6

// Side describes order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// IsAvailable reports whether the side is a known value.
func (s Side) IsAvailable() bool {
	return s == SideBuy || s == SideSell
}

// OrderType describes order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus tracks the lifecycle of an order request.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusSubmitted  OrderStatus = "SUBMITTED"
	OrderStatusFilled     OrderStatus = "FILLED"
	OrderStatusPartFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRejected   OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// RiskRule identifies the pre-trade check that rejected an order.
type RiskRule string

const (
	RiskRuleMaxOrderValue   RiskRule = "MAX_ORDER_VALUE"
	RiskRuleMaxPositionSize RiskRule = "MAX_POSITION_SIZE"
	RiskRuleMaxDrawdown     RiskRule = "MAX_DRAWDOWN"
)

// Tick is a single price observation. Immutable once published.
type Tick struct {
	Symbol    string          `json:"symbol"`
	Last      decimal.Decimal `json:"last"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// Signal is a strategy's intent to trade with an intensity in [0,1].
type Signal struct {
	StrategyID string    `json:"strategy_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Strength   float64   `json:"strength"`
	Timestamp  time.Time `json:"timestamp"`
}

// OrderRequest is an intended trade. LimitPrice is set iff Type is LIMIT.
type OrderRequest struct {
	ID         uuid.UUID        `json:"id"`
	Symbol     string           `json:"symbol"`
	Side       Side             `json:"side"`
	Quantity   int64            `json:"quantity"`
	Type       OrderType        `json:"order_type"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	StrategyID string           `json:"strategy_id"`
	Status     OrderStatus      `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
}

// OrderUpdate reports a status change for an order.
type OrderUpdate struct {
	OrderID   uuid.UUID   `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Fill is the executed result of an accepted order. Immutable.
type Fill struct {
	ID       uuid.UUID       `json:"id"`
	OrderID  uuid.UUID       `json:"order_id"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	FilledAt time.Time       `json:"filled_at"`
}

// Position is the signed per-symbol holding. Quantity < 0 means short.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	LastMark      decimal.Decimal `json:"last_mark"`
}

// PortfolioSnapshot is a point-in-time view of cash, P&L and drawdown.
type PortfolioSnapshot struct {
	Cash            decimal.Decimal     `json:"cash"`
	TotalUnrealized decimal.Decimal     `json:"total_unrealized_pnl"`
	TotalRealized   decimal.Decimal     `json:"total_realized_pnl"`
	TotalEquity     decimal.Decimal     `json:"total_equity"`
	PeakEquity      decimal.Decimal     `json:"peak_equity"`
	DrawdownPct     decimal.Decimal     `json:"drawdown_pct"`
	Positions       map[string]Position `json:"positions"`
	SnapshotAt      time.Time           `json:"snapshot_at"`
}

// RiskBreach reports the rule that blocked an order.
type RiskBreach struct {
	Rule    RiskRule  `json:"rule"`
	Message string    `json:"message"`
	OrderID uuid.UUID `json:"order_id"`
}
