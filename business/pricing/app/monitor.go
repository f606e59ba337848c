package app

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ndmikkelsen/flashloaner/business/pricing/domain"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

const (
	tracerName = "github.com/ndmikkelsen/flashloaner/business/pricing/app"
	meterName  = "github.com/ndmikkelsen/flashloaner/business/pricing/app"
)

// MonitorConfig holds price monitoring settings.
type MonitorConfig struct {
	PollInterval   time.Duration
	DeltaThreshold decimal.Decimal // spread fraction that triggers DeltaDetected
	StaleThreshold int             // consecutive failures before a pool is stale
	EventBuffer    int
}

// DefaultMonitorConfig returns sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval:   3 * time.Second,
		DeltaThreshold: decimal.RequireFromString("0.003"),
		StaleThreshold: 3,
		EventBuffer:    256,
	}
}

// monitorMetrics holds OTEL metric instruments.
type monitorMetrics struct {
	cycles     metric.Int64Counter
	readErrors metric.Int64Counter
	deltas     metric.Int64Counter
	stalePools metric.Int64Gauge
}

// Monitor polls the configured pools, maintains the latest snapshot per
// pool, and publishes price and delta events. Poll cycles never overlap:
// the next cycle is scheduled only after the previous one finishes.
type Monitor struct {
	config MonitorConfig
	reader PoolReader
	pools  []*domain.PoolDescriptor
	logger logger.LoggerInterface

	mu        sync.RWMutex
	snapshots map[common.Address]*domain.PriceSnapshot
	failures  map[common.Address]int
	stale     map[common.Address]bool

	events chan Event

	tracer  trace.Tracer
	metrics *monitorMetrics
}

// NewMonitor creates a Monitor over the given pools.
func NewMonitor(cfg MonitorConfig, reader PoolReader, pools []*domain.PoolDescriptor, log logger.LoggerInterface) (*Monitor, error) {
	m := &Monitor{
		config:    cfg,
		reader:    reader,
		pools:     pools,
		logger:    log,
		snapshots: make(map[common.Address]*domain.PriceSnapshot),
		failures:  make(map[common.Address]int),
		stale:     make(map[common.Address]bool),
		events:    make(chan Event, cfg.EventBuffer),
		tracer:    otel.Tracer(tracerName),
	}

	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Monitor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	m.metrics = &monitorMetrics{}

	m.metrics.cycles, err = meter.Int64Counter(
		"price_poll_cycles_total",
		metric.WithDescription("Completed poll cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	m.metrics.readErrors, err = meter.Int64Counter(
		"pool_read_errors_total",
		metric.WithDescription("Failed pool reads"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	m.metrics.deltas, err = meter.Int64Counter(
		"price_deltas_total",
		metric.WithDescription("Detected price deltas above threshold"),
		metric.WithUnit("{delta}"),
	)
	if err != nil {
		return err
	}

	m.metrics.stalePools, err = meter.Int64Gauge(
		"stale_pools",
		metric.WithDescription("Number of pools currently marked stale"),
		metric.WithUnit("{pool}"),
	)
	return err
}

// Events returns the monitor's event stream.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Run polls until the context is cancelled. The timer is re-armed only
// after a cycle completes, so a slow cycle delays the next one instead
// of stacking.
func (m *Monitor) Run(ctx context.Context) error {
	return m.RunWithHeads(ctx, nil)
}

// RunWithHeads polls like Run but additionally triggers a cycle on
// every new chain head, so prices follow blocks instead of waiting out
// the interval. heads may be nil; the interval timer is the fallback
// when the head stream stalls.
func (m *Monitor) RunWithHeads(ctx context.Context, heads <-chan uint64) error {
	m.logger.Info(ctx, "price monitor started",
		"pools", len(m.pools),
		"interval", m.config.PollInterval,
		"delta_threshold", m.config.DeltaThreshold.String())

	timer := time.NewTimer(0) // first cycle immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info(ctx, "price monitor stopped")
			return ctx.Err()
		case head, ok := <-heads:
			if !ok {
				heads = nil // stream closed, interval only
				continue
			}
			m.logger.Debug(ctx, "new head, polling", "block", head)
			m.runCycle(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(m.config.PollInterval)
		case <-timer.C:
			m.runCycle(ctx)
			timer.Reset(m.config.PollInterval)
		}
	}
}

// IsStale reports whether a pool is currently marked stale.
func (m *Monitor) IsStale(pool common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stale[pool]
}

// Snapshot returns the latest snapshot for a pool, if any.
func (m *Monitor) Snapshot(pool common.Address) (*domain.PriceSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[pool]
	return snap, ok
}

// Snapshots returns the latest snapshot of every fresh pool.
func (m *Monitor) Snapshots() []*domain.PriceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.PriceSnapshot, 0, len(m.snapshots))
	for addr, snap := range m.snapshots {
		if !m.stale[addr] {
			out = append(out, snap)
		}
	}
	return out
}

func (m *Monitor) runCycle(ctx context.Context) {
	ctx, span := m.tracer.Start(ctx, "monitor.cycle")
	defer span.End()

	for _, pool := range m.pools {
		if ctx.Err() != nil {
			return
		}
		m.pollPool(ctx, pool)
	}

	m.detectDeltas(ctx)
	m.metrics.cycles.Add(ctx, 1)

	m.mu.RLock()
	staleCount := int64(0)
	for _, isStale := range m.stale {
		if isStale {
			staleCount++
		}
	}
	m.mu.RUnlock()
	m.metrics.stalePools.Record(ctx, staleCount)

	span.SetStatus(codes.Ok, "cycle complete")
}

func (m *Monitor) pollPool(ctx context.Context, pool *domain.PoolDescriptor) {
	ctx, span := m.tracer.Start(ctx, "monitor.poll_pool",
		trace.WithAttributes(
			attribute.String("pool", pool.Address.Hex()),
			attribute.String("dex", pool.Kind.String()),
		),
	)
	defer span.End()

	state, err := m.reader.ReadState(ctx, pool)
	if err == nil {
		var price decimal.Decimal
		price, err = domain.SpotPrice(pool.Kind, state, pool.Token0.Decimals, pool.Token1.Decimals)
		if err == nil {
			var snap *domain.PriceSnapshot
			snap, err = domain.NewPriceSnapshot(pool, price, state.BlockNumber)
			if err == nil {
				m.recordSuccess(ctx, pool, snap)
				span.SetStatus(codes.Ok, "polled")
				return
			}
		}
	}

	m.metrics.readErrors.Add(ctx, 1)
	span.RecordError(err)
	m.recordFailure(ctx, pool, err)
}

func (m *Monitor) recordSuccess(ctx context.Context, pool *domain.PoolDescriptor, snap *domain.PriceSnapshot) {
	m.mu.Lock()
	wasStale := m.stale[pool.Address]
	m.failures[pool.Address] = 0
	m.stale[pool.Address] = false
	m.snapshots[pool.Address] = snap
	m.mu.Unlock()

	if wasStale {
		m.logger.Info(ctx, "pool recovered", "pool", pool.Label())
		m.publish(ctx, PoolRecovered{Pool: pool})
	}
	m.publish(ctx, PriceUpdated{Snapshot: snap})
}

func (m *Monitor) recordFailure(ctx context.Context, pool *domain.PoolDescriptor, err error) {
	m.mu.Lock()
	m.failures[pool.Address]++
	count := m.failures[pool.Address]
	crossed := count == m.config.StaleThreshold && !m.stale[pool.Address]
	if crossed {
		m.stale[pool.Address] = true
	}
	m.mu.Unlock()

	m.logger.Warn(ctx, "pool read failed",
		"pool", pool.Label(), "failures", count, "error", err)
	m.publish(ctx, PoolFailed{Pool: pool, Err: err})

	if crossed {
		m.logger.Error(ctx, "pool marked stale",
			"pool", pool.Label(), "failures", count)
		m.publish(ctx, PoolStale{Pool: pool, Failures: count})
	}
}

// detectDeltas emits at most one delta per pair: the spread between
// the lowest and highest fresh price. Intermediate pools never produce
// their own events; the widest spread is the only actionable one.
func (m *Monitor) detectDeltas(ctx context.Context) {
	byPair := make(map[domain.PairKey][]*domain.PriceSnapshot)
	for _, snap := range m.Snapshots() {
		key := snap.Pool.Pair()
		byPair[key] = append(byPair[key], snap)
	}

	for _, snaps := range byPair {
		if len(snaps) < 2 {
			continue
		}

		low, high := snaps[0], snaps[0]
		for _, snap := range snaps[1:] {
			if snap.Price.LessThan(low.Price) {
				low = snap
			}
			if snap.Price.GreaterThan(high.Price) {
				high = snap
			}
		}

		delta, err := domain.NewPriceDelta(low, high)
		if err != nil {
			m.logger.Warn(ctx, "delta construction failed",
				"low", low.Pool.Label(), "high", high.Pool.Label(), "error", err)
			continue
		}
		if !delta.Exceeds(m.config.DeltaThreshold) {
			continue
		}

		m.metrics.deltas.Add(ctx, 1)
		m.logger.Info(ctx, "price delta detected",
			"pair", string(delta.Pair),
			"spread_bps", delta.SpreadBps().StringFixed(1),
			"low", delta.Low.Pool.Label(),
			"high", delta.High.Pool.Label())
		m.publish(ctx, DeltaDetected{Delta: delta})
	}
}

// publish sends without blocking; the cycle must never stall on a slow
// consumer.
func (m *Monitor) publish(ctx context.Context, event Event) {
	select {
	case m.events <- event:
	default:
		m.logger.Warn(ctx, "event dropped, buffer full")
	}
}
