package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the persisted row for an order request, upserted by id.
type Order struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Symbol     string           `gorm:"column:symbol;type:varchar(20);index"`
	Side       string           `gorm:"column:side;type:varchar(4)"`
	Quantity   int64            `gorm:"column:quantity"`
	OrderType  string           `gorm:"column:order_type;type:varchar(10)"`
	LimitPrice *decimal.Decimal `gorm:"column:limit_price;type:numeric(18,6)"`
	StrategyID string           `gorm:"column:strategy_id;type:varchar(50)"`
	Status     string           `gorm:"column:status;type:varchar(20);index"`
	CreatedAt  time.Time        `gorm:"column:created_at;type:timestamptz"`
}

// TableName implements gorm's table naming.
func (Order) TableName() string { return "orders" }

// Fill is the append-only persisted row for an executed fill.
type Fill struct {
	ID       int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID  uuid.UUID       `gorm:"column:order_id;type:uuid;index"`
	Symbol   string          `gorm:"column:symbol;type:varchar(20);index"`
	Side     string          `gorm:"column:side;type:varchar(4)"`
	Quantity int64           `gorm:"column:quantity"`
	Price    decimal.Decimal `gorm:"column:price;type:numeric(18,6)"`
	FilledAt time.Time       `gorm:"column:filled_at;type:timestamptz"`
}

// TableName implements gorm's table naming.
func (Fill) TableName() string { return "fills" }

// Position is the persisted row for a symbol position, upserted by symbol.
type Position struct {
	Symbol        string          `gorm:"column:symbol;type:varchar(20);primaryKey"`
	Quantity      int64           `gorm:"column:quantity"`
	AvgEntryPrice decimal.Decimal `gorm:"column:avg_entry_price;type:numeric(18,6)"`
	RealizedPnL   decimal.Decimal `gorm:"column:realized_pnl;type:numeric(18,6)"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;type:timestamptz"`
}

// TableName implements gorm's table naming.
func (Position) TableName() string { return "positions" }

// Snapshot is the persisted row for a periodic portfolio snapshot.
type Snapshot struct {
	ID              int64           `gorm:"column:id;primaryKey;autoIncrement"`
	TotalEquity     decimal.Decimal `gorm:"column:total_equity;type:numeric(18,6)"`
	TotalUnrealized decimal.Decimal `gorm:"column:total_unrealized_pnl;type:numeric(18,6)"`
	TotalRealized   decimal.Decimal `gorm:"column:total_realized_pnl;type:numeric(18,6)"`
	SnapshotAt      time.Time       `gorm:"column:snapshot_at;type:timestamptz;index"`
}

// TableName implements gorm's table naming.
func (Snapshot) TableName() string { return "portfolio_snapshots" }
