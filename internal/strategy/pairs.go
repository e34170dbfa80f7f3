package strategy

import (
	"math"
	"time"

	"main/internal/schema"
)

// PairsConfig holds the pairs trading tunables.
type PairsConfig struct {
	WindowSize int
	EntryZ     float64
	ExitZ      float64
}

// DefaultPairsConfig returns the baseline configuration.
func DefaultPairsConfig() PairsConfig {
	return PairsConfig{
		WindowSize: 60,
		EntryZ:     2.0,
		ExitZ:      0.5,
	}
}

// Pairs trades the ratio of two symbols: when the ratio diverges beyond
// EntryZ deviations it opens opposing legs, closing both once the spread
// converges inside ExitZ.
type Pairs struct {
	id       string
	symbolA  string
	symbolB  string
	cfg      PairsConfig
	pricesA  *Window
	pricesB  *Window
	latest   map[string]float64
	// 0 = flat, 1 = long A / short B, -1 = short A / long B
	tradeState int
}

// NewPairs creates a pairs strategy over two symbols.
func NewPairs(id, symbolA, symbolB string, cfg PairsConfig) *Pairs {
	if id == "" {
		id = "pairs"
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 60
	}
	if cfg.EntryZ <= 0 {
		cfg.EntryZ = 2.0
	}
	if cfg.ExitZ <= 0 {
		cfg.ExitZ = 0.5
	}
	return &Pairs{
		id:      id,
		symbolA: symbolA,
		symbolB: symbolB,
		cfg:     cfg,
		pricesA: NewWindow(cfg.WindowSize),
		pricesB: NewWindow(cfg.WindowSize),
		latest:  make(map[string]float64),
	}
}

// StrategyID identifies the strategy.
func (s *Pairs) StrategyID() string {
	return s.id
}

// Symbols returns both legs.
func (s *Pairs) Symbols() []string {
	return []string{s.symbolA, s.symbolB}
}

// OnTick updates the leg windows and evaluates the ratio z-score.
func (s *Pairs) OnTick(tick schema.Tick) []schema.Signal {
	price, _ := tick.Last.Float64()
	s.latest[tick.Symbol] = price

	switch tick.Symbol {
	case s.symbolA:
		s.pricesA.Push(price)
	case s.symbolB:
		s.pricesB.Push(price)
	default:
		return nil
	}

	if !s.pricesA.Full() || !s.pricesB.Full() {
		return nil
	}
	lastA, okA := s.latest[s.symbolA]
	lastB, okB := s.latest[s.symbolB]
	if !okA || !okB || lastB == 0 {
		return nil
	}

	ratios := NewWindow(s.cfg.WindowSize)
	for i := 0; i < s.cfg.WindowSize; i++ {
		b := s.pricesB.At(i)
		if b == 0 {
			return nil
		}
		ratios.Push(s.pricesA.At(i) / b)
	}
	stdev := ratios.SampleStdev()
	if stdev < minStdev {
		return nil
	}
	z := (lastA/lastB - ratios.Mean()) / stdev

	if s.tradeState != 0 && math.Abs(z) < s.cfg.ExitZ {
		signals := s.closeSignals(math.Abs(z))
		s.tradeState = 0
		return signals
	}

	if s.tradeState != 0 {
		return nil
	}
	strength := math.Min(math.Abs(z)/(s.cfg.EntryZ*2), 1.0)
	switch {
	case z > s.cfg.EntryZ:
		// A expensive relative to B: short A, long B.
		s.tradeState = -1
		return s.pairSignals(schema.SideSell, schema.SideBuy, strength)
	case z < -s.cfg.EntryZ:
		// B expensive relative to A: long A, short B.
		s.tradeState = 1
		return s.pairSignals(schema.SideBuy, schema.SideSell, strength)
	default:
		return nil
	}
}

func (s *Pairs) closeSignals(strength float64) []schema.Signal {
	if s.tradeState == 1 {
		return s.pairSignals(schema.SideSell, schema.SideBuy, strength)
	}
	return s.pairSignals(schema.SideBuy, schema.SideSell, strength)
}

func (s *Pairs) pairSignals(sideA, sideB schema.Side, strength float64) []schema.Signal {
	now := time.Now().UTC()
	return []schema.Signal{
		{StrategyID: s.id, Symbol: s.symbolA, Side: sideA, Strength: strength, Timestamp: now},
		{StrategyID: s.id, Symbol: s.symbolB, Side: sideB, Strength: strength, Timestamp: now},
	}
}

// Reset clears both windows and the trade state.
func (s *Pairs) Reset() {
	s.pricesA.Reset()
	s.pricesB.Reset()
	s.latest = make(map[string]float64)
	s.tradeState = 0
}
