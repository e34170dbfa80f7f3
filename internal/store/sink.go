package store

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

// Sink writes bus events through the repository. Writes are best-effort:
// a failure logs a warning and never blocks the bus.
type Sink struct {
	repo *Repository
}

// NewSink creates a persistence sink over the repository.
func NewSink(repo *Repository) *Sink {
	return &Sink{repo: repo}
}

// Register subscribes the sink to the persisted event types.
func (s *Sink) Register(b *bus.Bus) {
	b.Subscribe(schema.EventOrderRequest, "persistence", func(ctx context.Context, event schema.Event) error {
		order, ok := event.Payload.(schema.OrderRequest)
		if !ok {
			return nil
		}
		if err := s.repo.InsertOrder(ctx, order); err != nil {
			logs.Warnf("persist order failed: id=%s err=%+v", order.ID, err)
		}
		return nil
	})
	b.Subscribe(schema.EventOrderUpdate, "persistence", func(ctx context.Context, event schema.Event) error {
		update, ok := event.Payload.(schema.OrderUpdate)
		if !ok {
			return nil
		}
		if err := s.repo.UpdateOrderStatus(ctx, update.OrderID, update.Status); err != nil {
			logs.Warnf("persist order status failed: id=%s err=%+v", update.OrderID, err)
		}
		return nil
	})
	b.Subscribe(schema.EventFill, "persistence", func(ctx context.Context, event schema.Event) error {
		fill, ok := event.Payload.(schema.Fill)
		if !ok {
			return nil
		}
		if err := s.repo.InsertFill(ctx, fill); err != nil {
			logs.Warnf("persist fill failed: order=%s err=%+v", fill.OrderID, err)
		}
		if err := s.repo.UpdateOrderStatus(ctx, fill.OrderID, schema.OrderStatusFilled); err != nil {
			logs.Warnf("persist fill status failed: order=%s err=%+v", fill.OrderID, err)
		}
		return nil
	})
	b.Subscribe(schema.EventPositionUpdate, "persistence", func(ctx context.Context, event schema.Event) error {
		pos, ok := event.Payload.(schema.Position)
		if !ok {
			return nil
		}
		if err := s.repo.UpsertPosition(ctx, pos); err != nil {
			logs.Warnf("persist position failed: symbol=%s err=%+v", pos.Symbol, err)
		}
		return nil
	})
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
