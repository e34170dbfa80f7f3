package strategy

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func tick(symbol string, last float64) schema.Tick {
	return schema.Tick{
		Symbol: symbol,
		Last:   decimal.NewFromFloat(last),
	}
}

func TestWindowFIFOEviction(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.Push(v)
	}
	require.True(t, w.Full())
	assert.Equal(t, 3.0, w.At(0))
	assert.Equal(t, 4.0, w.At(1))
	assert.Equal(t, 5.0, w.At(2))
	assert.Equal(t, 4.0, w.Mean())
	assert.InDelta(t, 1.0, w.SampleStdev(), 1e-12)
}

func TestWindowEmptyStats(t *testing.T) {
	w := NewWindow(5)
	assert.Equal(t, 0.0, w.Mean())
	assert.Equal(t, 0.0, w.SampleStdev())
	assert.False(t, w.Full())
}

func TestMeanReversionNoSignalUntilWindowFull(t *testing.T) {
	s := NewMeanReversion("mr", []string{"ACME"}, DefaultMeanReversionConfig())
	for i := 0; i < 19; i++ {
		assert.Empty(t, s.OnTick(tick("ACME", 100)))
	}
}

func TestMeanReversionBuyOnDrop(t *testing.T) {
	s := NewMeanReversion("mr", []string{"ACME"}, DefaultMeanReversionConfig())
	for i := 0; i < 19; i++ {
		require.Empty(t, s.OnTick(tick("ACME", 100)))
	}

	signals := s.OnTick(tick("ACME", 90))
	require.Len(t, signals, 1)
	assert.Equal(t, schema.SideBuy, signals[0].Side)
	assert.Equal(t, 1.0, signals[0].Strength)
	assert.Equal(t, "mr", signals[0].StrategyID)
}

func TestMeanReversionSellOnSpike(t *testing.T) {
	s := NewMeanReversion("mr", []string{"ACME"}, DefaultMeanReversionConfig())
	for i := 0; i < 19; i++ {
		require.Empty(t, s.OnTick(tick("ACME", 100)))
	}

	signals := s.OnTick(tick("ACME", 110))
	require.Len(t, signals, 1)
	assert.Equal(t, schema.SideSell, signals[0].Side)
	assert.Equal(t, 1.0, signals[0].Strength)
}

func TestMeanReversionFlatWindowNoSignal(t *testing.T) {
	s := NewMeanReversion("mr", []string{"ACME"}, DefaultMeanReversionConfig())
	for i := 0; i < 25; i++ {
		assert.Empty(t, s.OnTick(tick("ACME", 100)), "zero deviation never signals")
	}
}

func TestMeanReversionExactEntryZNoSignal(t *testing.T) {
	// Derive the exact z of the sequence, then use it as the threshold:
	// strict inequality means equality stays silent.
	prices := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 95}
	w := NewWindow(len(prices))
	for _, p := range prices {
		w.Push(p)
	}
	z := math.Abs((prices[len(prices)-1] - w.Mean()) / w.SampleStdev())

	s := NewMeanReversion("mr", []string{"ACME"}, MeanReversionConfig{
		WindowSize: len(prices),
		EntryZ:     z,
	})
	for _, p := range prices[:len(prices)-1] {
		require.Empty(t, s.OnTick(tick("ACME", p)))
	}
	assert.Empty(t, s.OnTick(tick("ACME", prices[len(prices)-1])))

	// A hair under the same threshold signals.
	s2 := NewMeanReversion("mr", []string{"ACME"}, MeanReversionConfig{
		WindowSize: len(prices),
		EntryZ:     z * 0.999,
	})
	for _, p := range prices[:len(prices)-1] {
		require.Empty(t, s2.OnTick(tick("ACME", p)))
	}
	assert.Len(t, s2.OnTick(tick("ACME", prices[len(prices)-1])), 1)
}

func TestMeanReversionResetReplaysIdentically(t *testing.T) {
	prices := []float64{100, 101, 99, 100, 102, 98, 100, 103, 97, 100, 90}
	cfg := MeanReversionConfig{WindowSize: 10, EntryZ: 2.0}
	s := NewMeanReversion("mr", []string{"ACME"}, cfg)

	run := func() []schema.Signal {
		var out []schema.Signal
		for _, p := range prices {
			out = append(out, s.OnTick(tick("ACME", p))...)
		}
		return out
	}

	first := run()
	s.Reset()
	second := run()

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Side, second[i].Side)
		assert.Equal(t, first[i].Symbol, second[i].Symbol)
		assert.Equal(t, first[i].Strength, second[i].Strength)
	}
}

func TestMeanReversionTracksSymbolsIndependently(t *testing.T) {
	cfg := MeanReversionConfig{WindowSize: 5, EntryZ: 2.0}
	s := NewMeanReversion("mr", []string{"A", "B"}, cfg)

	for i := 0; i < 4; i++ {
		require.Empty(t, s.OnTick(tick("A", 100)))
		require.Empty(t, s.OnTick(tick("B", 50)))
	}
	signals := s.OnTick(tick("A", 80))
	require.Len(t, signals, 1)
	assert.Equal(t, "A", signals[0].Symbol)
}
