package strategy

import (
	"math"
	"time"

	"main/internal/schema"
)

const minStdev = 1e-9

// MeanReversionConfig holds the mean reversion tunables.
type MeanReversionConfig struct {
	WindowSize int
	EntryZ     float64
}

// DefaultMeanReversionConfig returns the baseline configuration.
func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		WindowSize: 20,
		EntryZ:     2.0,
	}
}

// MeanReversion trades against extremes: when the last price is strictly
// more than EntryZ sample deviations from the rolling mean it signals a
// reversion toward it.
type MeanReversion struct {
	id      string
	symbols []string
	cfg     MeanReversionConfig
	windows map[string]*Window
}

// NewMeanReversion creates a strategy watching the given symbols.
func NewMeanReversion(id string, symbols []string, cfg MeanReversionConfig) *MeanReversion {
	if id == "" {
		id = "mean_reversion"
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.EntryZ <= 0 {
		cfg.EntryZ = 2.0
	}
	return &MeanReversion{
		id:      id,
		symbols: symbols,
		cfg:     cfg,
		windows: make(map[string]*Window),
	}
}

// StrategyID identifies the strategy.
func (s *MeanReversion) StrategyID() string {
	return s.id
}

// Symbols returns the watched symbols.
func (s *MeanReversion) Symbols() []string {
	return s.symbols
}

// OnTick pushes the price into the symbol's window and emits at most one
// signal once the window is full.
func (s *MeanReversion) OnTick(tick schema.Tick) []schema.Signal {
	window, ok := s.windows[tick.Symbol]
	if !ok {
		window = NewWindow(s.cfg.WindowSize)
		s.windows[tick.Symbol] = window
	}

	price, _ := tick.Last.Float64()
	window.Push(price)
	if !window.Full() {
		return nil
	}

	stdev := window.SampleStdev()
	if stdev < minStdev {
		return nil
	}
	z := (price - window.Mean()) / stdev

	var side schema.Side
	switch {
	case z > s.cfg.EntryZ:
		side = schema.SideSell
	case z < -s.cfg.EntryZ:
		side = schema.SideBuy
	default:
		return nil
	}

	return []schema.Signal{{
		StrategyID: s.id,
		Symbol:     tick.Symbol,
		Side:       side,
		Strength:   math.Min(math.Abs(z)/(s.cfg.EntryZ*2), 1.0),
		Timestamp:  time.Now().UTC(),
	}}
}

// Reset clears all rolling windows.
func (s *MeanReversion) Reset() {
	s.windows = make(map[string]*Window)
}
