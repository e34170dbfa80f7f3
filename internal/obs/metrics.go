package obs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/bus"
	"main/internal/schema"
)

// allEventTypes lists every bus event type for registration and snapshots.
var allEventTypes = []schema.EventType{
	schema.EventTick,
	schema.EventSignal,
	schema.EventOrderRequest,
	schema.EventOrderUpdate,
	schema.EventFill,
	schema.EventPositionUpdate,
	schema.EventRiskBreach,
}

// Metrics collects lightweight counters and latency stats from the bus.
type Metrics struct {
	mu          sync.Mutex
	eventCounts map[schema.EventType]uint64
	riskCounts  map[schema.RiskRule]uint64

	deliveryLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// Observe records one duration sample.
func (s *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	v := uint64(d)
	atomic.AddUint64(&s.count, 1)
	atomic.AddUint64(&s.sum, v)
	for {
		cur := atomic.LoadUint64(&s.min)
		if cur != 0 && cur <= v {
			break
		}
		if atomic.CompareAndSwapUint64(&s.min, cur, v) {
			break
		}
	}
	for {
		cur := atomic.LoadUint64(&s.max)
		if cur >= v {
			break
		}
		if atomic.CompareAndSwapUint64(&s.max, cur, v) {
			break
		}
	}
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the stats values.
func (s *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&s.count)
	snap := LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&s.min)),
		Max:   time.Duration(atomic.LoadUint64(&s.max)),
	}
	if count > 0 {
		snap.Avg = time.Duration(atomic.LoadUint64(&s.sum) / count)
	}
	return snap
}

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	EventCounts     map[schema.EventType]uint64
	RiskRuleCounts  map[schema.RiskRule]uint64
	DeliveryLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{
		eventCounts: make(map[schema.EventType]uint64),
		riskCounts:  make(map[schema.RiskRule]uint64),
	}
}

// Register subscribes the metrics collector to every event type.
func (m *Metrics) Register(b *bus.Bus) {
	for _, eventType := range allEventTypes {
		b.Subscribe(eventType, "metrics", func(ctx context.Context, event schema.Event) error {
			m.observe(event)
			return nil
		})
	}
}

func (m *Metrics) observe(event schema.Event) {
	if !event.Timestamp.IsZero() {
		m.deliveryLatency.Observe(time.Since(event.Timestamp))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventCounts[event.Type]++
	if breach, ok := event.Payload.(schema.RiskBreach); ok {
		m.riskCounts[breach.Rule]++
	}
}

// Snapshot captures the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make(map[schema.EventType]uint64, len(m.eventCounts))
	for k, v := range m.eventCounts {
		events[k] = v
	}
	rules := make(map[schema.RiskRule]uint64, len(m.riskCounts))
	for k, v := range m.riskCounts {
		rules[k] = v
	}
	return Snapshot{
		EventCounts:     events,
		RiskRuleCounts:  rules,
		DeliveryLatency: m.deliveryLatency.Snapshot(),
	}
}
