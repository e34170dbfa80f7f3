package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"main/internal/api"
	"main/internal/bus"
	"main/internal/feed"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/order"
	"main/internal/position"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/store"
	"main/internal/strategy"
)

// snapshotPersistInterval is the cadence of durable portfolio snapshots.
const snapshotPersistInterval = time.Minute

// App owns the bus and every core service, wired in construction order.
type App struct {
	cfg ops.Config

	bus      *bus.Bus
	tracker  *position.Tracker
	riskEng  *risk.Engine
	stopLoss *risk.StopLossManager
	orders   *order.Manager
	engine   *strategy.Engine
	metrics  *obs.Metrics
	repo     *store.Repository
	sink     *store.Sink
	feed     feed.Feed
	server   *api.Server
}

// New constructs and registers every service. A nil db disables
// persistence: /orders then serves the order manager's in-memory view and
// fill lookups answer that persistence is unavailable.
func New(ctx context.Context, cfg ops.Config, db *gorm.DB) (*App, error) {
	a := &App{cfg: cfg, bus: bus.New()}

	a.tracker = position.NewTracker(decimal.NewFromFloat(cfg.InitialCash))
	a.tracker.Register(a.bus)

	a.riskEng = risk.NewEngine(risk.Config{
		MaxOrderValue:   decimal.NewFromFloat(cfg.MaxOrderValue),
		MaxPositionSize: cfg.MaxPositionSize,
		MaxDrawdownPct:  decimal.NewFromFloat(cfg.MaxDrawdownPct),
	}, a.tracker)
	a.riskEng.Register(a.bus)

	a.stopLoss = risk.NewStopLossManager(decimal.NewFromFloat(cfg.StopLossPct))
	a.stopLoss.Register(a.bus)

	a.orders = order.NewManager(order.Config{
		MaxQtyPerSignal: cfg.MaxQtyPerSignal,
		RiskWait:        cfg.RiskWait,
		SlippageBps:     cfg.SlippageBps,
	}, a.bus)
	a.orders.Register(a.bus)

	if db != nil {
		a.repo = store.NewRepository(db)
		if err := a.repo.Migrate(); err != nil {
			return nil, err
		}
		a.sink = store.NewSink(a.repo)
		a.sink.Register(a.bus)
	}

	a.engine = strategy.NewEngine()
	a.engine.RegisterStrategy(strategy.NewMeanReversion("mean_reversion", cfg.Symbols, strategy.MeanReversionConfig{
		WindowSize: cfg.WindowSize,
		EntryZ:     cfg.EntryZ,
	}))
	if len(cfg.Symbols) >= 2 {
		a.engine.RegisterStrategy(strategy.NewPairs("pairs", cfg.Symbols[0], cfg.Symbols[1], strategy.DefaultPairsConfig()))
	}
	a.engine.Register(a.bus)

	a.metrics = obs.NewMetrics()
	a.metrics.Register(a.bus)

	synthetic := feed.NewSynthetic(feed.SyntheticConfig{
		Symbols:  cfg.Symbols,
		Interval: cfg.TickInterval,
	}, a.bus)
	if cfg.UseSyntheticFeed {
		a.feed = synthetic
	} else {
		a.feed = feed.NewExchange(ctx, cfg.Symbols, a.bus, synthetic)
	}

	server, err := api.NewServer(api.Config{
		Addr:    fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Tracker: a.tracker,
		Orders:  a.orders,
		Repo:    a.repo,
	})
	if err != nil {
		return nil, err
	}
	a.server = server

	return a, nil
}

// Bus exposes the event bus, mainly for tests and tooling.
func (a *App) Bus() *bus.Bus {
	return a.bus
}

// Metrics exposes the metrics collector.
func (a *App) Metrics() *obs.Metrics {
	return a.metrics
}

// Run starts the feed, the API server and the snapshot loop, then blocks
// until ctx is cancelled. Services shut down in reverse construction order.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.tracker.OnFatal(func(err error) {
		logs.Errorf("fatal state corruption, shutting down: %+v", err)
		cancel()
	})
	a.orders.SetContext(runCtx)

	if err := a.feed.Connect(runCtx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return ignoreCancel(a.feed.Run(groupCtx))
	})
	group.Go(func() error {
		return ignoreCancel(a.server.Run(groupCtx))
	})
	if a.repo != nil {
		group.Go(func() error {
			return ignoreCancel(a.snapshotLoop(groupCtx))
		})
	}

	err := group.Wait()
	a.shutdown()
	return err
}

// snapshotLoop persists a portfolio snapshot once a minute.
func (a *App) snapshotLoop(ctx context.Context) error {
	ticker := time.NewTicker(snapshotPersistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := a.tracker.Snapshot()
			if err := a.repo.InsertSnapshot(ctx, snap); err != nil {
				logs.Warnf("persist snapshot failed: %+v", err)
				continue
			}
			logs.Debugf("snapshot persisted: equity=%s", snap.TotalEquity)
		}
	}
}

// shutdown stops services in reverse of construction order.
func (a *App) shutdown() {
	a.feed.Close()
	a.engine.Reset()
	a.orders.Shutdown()
	a.bus.Close()

	snap := a.metrics.Snapshot()
	logs.Infof("shutdown complete: events=%v breaches=%v", snap.EventCounts, snap.RiskRuleCounts)
}

func ignoreCancel(err error) error {
	if err == nil || err == context.Canceled {
		return nil
	}
	return err
}

// PublishTick injects a tick directly, used by tests.
func (a *App) PublishTick(ctx context.Context, tick schema.Tick) error {
	return a.bus.Publish(ctx, schema.NewEvent(schema.EventTick, tick))
}
