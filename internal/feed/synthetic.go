package feed

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

const (
	defaultVolatility = 0.001
	defaultInterval   = 500 * time.Millisecond
	priceFloor        = 0.01
	halfSpreadRatio   = 0.0005
)

// SyntheticConfig controls the synthetic tick generator.
type SyntheticConfig struct {
	Symbols    []string
	Interval   time.Duration
	Volatility float64
	BasePrices map[string]float64
	Seed       int64
}

// Synthetic generates geometric-Brownian-motion ticks for each symbol at a
// fixed interval.
type Synthetic struct {
	cfg    SyntheticConfig
	bus    *bus.Bus
	rng    *rand.Rand
	prices map[string]float64
}

// NewSynthetic creates a synthetic feed publishing on the given bus.
func NewSynthetic(cfg SyntheticConfig, b *bus.Bus) *Synthetic {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = defaultVolatility
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	prices := make(map[string]float64, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		if base, ok := cfg.BasePrices[symbol]; ok && base > 0 {
			prices[symbol] = base
			continue
		}
		prices[symbol] = 100 + rng.Float64()*400
	}
	return &Synthetic{cfg: cfg, bus: b, rng: rng, prices: prices}
}

// Connect is a no-op for the synthetic source.
func (f *Synthetic) Connect(ctx context.Context) error {
	logs.Infof("synthetic feed connected: symbols=%v interval=%s", f.cfg.Symbols, f.cfg.Interval)
	return nil
}

// Run emits one tick per symbol every interval until ctx is done.
func (f *Synthetic) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, symbol := range f.cfg.Symbols {
				if err := f.bus.Publish(ctx, schema.NewEvent(schema.EventTick, f.nextTick(symbol))); err != nil {
					return err
				}
			}
		}
	}
}

// Close is a no-op for the synthetic source.
func (f *Synthetic) Close() {}

// nextTick advances the symbol's random walk and builds the tick.
func (f *Synthetic) nextTick(symbol string) schema.Tick {
	price := f.prices[symbol]
	price += price * f.rng.NormFloat64() * f.cfg.Volatility
	if price < priceFloor {
		price = priceFloor
	}
	f.prices[symbol] = price

	spread := price * halfSpreadRatio
	return schema.Tick{
		Symbol:    symbol,
		Last:      decimal.NewFromFloat(price).Round(schema.PriceScale),
		Bid:       decimal.NewFromFloat(price - spread).Round(schema.PriceScale),
		Ask:       decimal.NewFromFloat(price + spread).Round(schema.PriceScale),
		Volume:    100 + int64(f.rng.Intn(9901)),
		Timestamp: time.Now().UTC(),
	}
}
