package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func feedPair(t *testing.T, s *Pairs, a, b float64) []schema.Signal {
	t.Helper()
	signals := s.OnTick(tick("AAPL", a))
	signals = append(signals, s.OnTick(tick("MSFT", b))...)
	return signals
}

func TestPairsNoSignalUntilBothWindowsFull(t *testing.T) {
	s := NewPairs("pairs", "AAPL", "MSFT", PairsConfig{WindowSize: 10, EntryZ: 2.0, ExitZ: 0.5})
	for i := 0; i < 9; i++ {
		assert.Empty(t, feedPair(t, s, 100+float64(i%3), 50+float64(i%2)))
	}
}

func TestPairsEntryAndExit(t *testing.T) {
	s := NewPairs("pairs", "AAPL", "MSFT", PairsConfig{WindowSize: 10, EntryZ: 2.0, ExitZ: 0.5})

	// Ratio oscillates tightly around 2.0 to build history.
	base := []float64{100, 100.2, 99.8, 100.1, 99.9, 100.05, 99.95, 100.15, 99.85}
	for _, a := range base {
		require.Empty(t, feedPair(t, s, a, 50))
	}

	// A rips away from B: short A, long B.
	signals := feedPair(t, s, 108, 50)
	require.Len(t, signals, 2)
	assert.Equal(t, "AAPL", signals[0].Symbol)
	assert.Equal(t, schema.SideSell, signals[0].Side)
	assert.Equal(t, "MSFT", signals[1].Symbol)
	assert.Equal(t, schema.SideBuy, signals[1].Side)
	assert.Equal(t, signals[0].Strength, signals[1].Strength)

	// While the spread stays wide, no re-entry.
	assert.Empty(t, feedPair(t, s, 108, 50))

	// Convergence closes both legs with opposite sides.
	var closed []schema.Signal
	for i := 0; i < 12 && len(closed) == 0; i++ {
		closed = feedPair(t, s, 100, 50)
	}
	require.Len(t, closed, 2)
	assert.Equal(t, schema.SideBuy, closed[0].Side)
	assert.Equal(t, schema.SideSell, closed[1].Side)
}

func TestPairsIgnoresOtherSymbols(t *testing.T) {
	s := NewPairs("pairs", "AAPL", "MSFT", DefaultPairsConfig())
	assert.Empty(t, s.OnTick(tick("GOOG", 100)))
}

func TestPairsResetClearsTradeState(t *testing.T) {
	s := NewPairs("pairs", "AAPL", "MSFT", PairsConfig{WindowSize: 10, EntryZ: 2.0, ExitZ: 0.5})
	base := []float64{100, 100.2, 99.8, 100.1, 99.9, 100.05, 99.95, 100.15, 99.85}
	for _, a := range base {
		require.Empty(t, feedPair(t, s, a, 50))
	}
	require.Len(t, feedPair(t, s, 108, 50), 2)

	s.Reset()
	assert.Equal(t, 0, s.tradeState)
	assert.Equal(t, 0, s.pricesA.Len())
}
