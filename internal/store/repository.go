package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/internal/schema"
)

// Repository persists core events through an idempotent write surface:
// orders upsert by id, fills append, positions upsert by symbol.
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps an open gorm connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the schema.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(&Order{}, &Fill{}, &Position{}, &Snapshot{})
}

// InsertOrder upserts an order row by id.
func (r *Repository) InsertOrder(ctx context.Context, order schema.OrderRequest) error {
	row := Order{
		ID:         order.ID,
		Symbol:     order.Symbol,
		Side:       string(order.Side),
		Quantity:   order.Quantity,
		OrderType:  string(order.Type),
		LimitPrice: order.LimitPrice,
		StrategyID: order.StrategyID,
		Status:     string(order.Status),
		CreatedAt:  order.CreatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

// UpdateOrderStatus sets the status of an existing order row.
func (r *Repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status schema.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", orderID).
		Update("status", string(status)).Error
}

// InsertFill appends a fill row.
func (r *Repository) InsertFill(ctx context.Context, fill schema.Fill) error {
	row := Fill{
		OrderID:  fill.OrderID,
		Symbol:   fill.Symbol,
		Side:     string(fill.Side),
		Quantity: fill.Quantity,
		Price:    fill.Price,
		FilledAt: fill.FilledAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// UpsertPosition writes the symbol's position row.
func (r *Repository) UpsertPosition(ctx context.Context, pos schema.Position) error {
	row := Position{
		Symbol:        pos.Symbol,
		Quantity:      pos.Quantity,
		AvgEntryPrice: pos.AvgEntryPrice,
		RealizedPnL:   pos.RealizedPnL,
		UpdatedAt:     nowUTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "avg_entry_price", "realized_pnl", "updated_at"}),
		}).
		Create(&row).Error
}

// InsertSnapshot appends a portfolio snapshot row.
func (r *Repository) InsertSnapshot(ctx context.Context, snap schema.PortfolioSnapshot) error {
	row := Snapshot{
		TotalEquity:     snap.TotalEquity,
		TotalUnrealized: snap.TotalUnrealized,
		TotalRealized:   snap.TotalRealized,
		SnapshotAt:      snap.SnapshotAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// Orders returns all order rows, most recent first.
func (r *Repository) Orders(ctx context.Context) ([]Order, error) {
	var rows []Order
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// FillsForOrder returns the order's fills in execution order.
func (r *Repository) FillsForOrder(ctx context.Context, orderID uuid.UUID) ([]Fill, error) {
	var rows []Fill
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("filled_at").
		Find(&rows).Error
	return rows, err
}

// Positions returns all persisted position rows.
func (r *Repository) Positions(ctx context.Context) ([]Position, error) {
	var rows []Position
	err := r.db.WithContext(ctx).Find(&rows).Error
	return rows, err
}

// Snapshots returns up to limit snapshot rows, most recent first.
func (r *Repository) Snapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []Snapshot
	err := r.db.WithContext(ctx).
		Order("snapshot_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
