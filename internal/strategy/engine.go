package strategy

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

// Engine dispatches ticks to registered strategies and publishes the
// signals they produce. Strategies run to completion on a tick before the
// engine moves on; per-strategy ordering matches tick arrival.
type Engine struct {
	mu         sync.Mutex
	strategies []Strategy
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{}
}

// RegisterStrategy adds a strategy to the dispatch list.
func (e *Engine) RegisterStrategy(s Strategy) {
	if s == nil {
		return
	}
	e.mu.Lock()
	e.strategies = append(e.strategies, s)
	e.mu.Unlock()
	logs.Infof("strategy registered: id=%s symbols=%v", s.StrategyID(), s.Symbols())
}

// Register subscribes the engine to tick events.
func (e *Engine) Register(b *bus.Bus) {
	b.Subscribe(schema.EventTick, "strategy-engine", func(ctx context.Context, event schema.Event) error {
		tick, ok := event.Payload.(schema.Tick)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		return e.handleTick(ctx, b, tick)
	})
}

func (e *Engine) handleTick(ctx context.Context, b *bus.Bus, tick schema.Tick) error {
	e.mu.Lock()
	strategies := append([]Strategy(nil), e.strategies...)
	e.mu.Unlock()

	for _, s := range strategies {
		symbols := s.Symbols()
		if len(symbols) > 0 && !slices.Contains(symbols, tick.Symbol) {
			continue
		}
		for _, signal := range s.OnTick(tick) {
			logs.Infof("signal generated: strategy=%s symbol=%s side=%s strength=%f",
				signal.StrategyID, signal.Symbol, signal.Side, signal.Strength)
			if err := b.Publish(ctx, schema.NewEvent(schema.EventSignal, signal)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reset clears the rolling state of every registered strategy.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.strategies {
		s.Reset()
	}
}
