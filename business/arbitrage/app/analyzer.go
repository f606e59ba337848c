// Package app contains the opportunity analysis pipeline for the
// arbitrage context.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ndmikkelsen/flashloaner/business/arbitrage/domain"
	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

const (
	tracerName = "github.com/ndmikkelsen/flashloaner/business/arbitrage/app"
	meterName  = "github.com/ndmikkelsen/flashloaner/business/arbitrage/app"
)

// AnalyzerConfig holds opportunity analysis settings.
type AnalyzerConfig struct {
	InputAmount     decimal.Decimal // probe trade size in base token units
	MinNetProfit    decimal.Decimal
	MaxSlippage     decimal.Decimal // per-swap fraction
	BaseGas         uint64
	PerSwapGas      uint64
	GasPriceGwei    decimal.Decimal
	NativePriceBase decimal.Decimal
	Triangular      bool
	Providers       []domain.ProviderQuote
	EventBuffer     int
}

// DefaultAnalyzerConfig returns sensible defaults.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		InputAmount:     decimal.RequireFromString("10000"),
		MinNetProfit:    decimal.RequireFromString("10"),
		MaxSlippage:     decimal.RequireFromString("0.005"),
		BaseGas:         150000,
		PerSwapGas:      120000,
		GasPriceGwei:    decimal.RequireFromString("20"),
		NativePriceBase: decimal.RequireFromString("2000"),
		EventBuffer:     64,
	}
}

// analyzerMetrics holds OTEL metric instruments.
type analyzerMetrics struct {
	found     metric.Int64Counter
	rejected  metric.Int64Counter
	netProfit metric.Float64Histogram
}

// Analyzer turns price deltas into costed, viable opportunities. Every
// candidate route is validated, costed against the cheapest flash loan
// provider, and compared to the net profit floor before it is emitted.
type Analyzer struct {
	config AnalyzerConfig
	prices PriceSource
	gas    GasEstimator // nil means static model
	logger logger.LoggerInterface

	mu          sync.Mutex
	subscribers []chan Event

	tracer  trace.Tracer
	metrics *analyzerMetrics
}

// NewAnalyzer creates an Analyzer. gas may be nil; the static gas model
// from the config is used then.
func NewAnalyzer(cfg AnalyzerConfig, prices PriceSource, gas GasEstimator, log logger.LoggerInterface) (*Analyzer, error) {
	a := &Analyzer{
		config: cfg,
		prices: prices,
		gas:    gas,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}

	if err := a.initMetrics(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Analyzer) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &analyzerMetrics{}

	a.metrics.found, err = meter.Int64Counter(
		"opportunities_found_total",
		metric.WithDescription("Opportunities that cleared the profit floor"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return err
	}

	a.metrics.rejected, err = meter.Int64Counter(
		"opportunities_rejected_total",
		metric.WithDescription("Candidate routes discarded during analysis"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return err
	}

	a.metrics.netProfit, err = meter.Float64Histogram(
		"opportunity_net_profit",
		metric.WithDescription("Net profit of analyzed routes in base token units"),
	)
	return err
}

// Subscribe registers a new consumer and returns its event channel.
// Every subscriber sees every event.
func (a *Analyzer) Subscribe() <-chan Event {
	ch := make(chan Event, a.config.EventBuffer)
	a.mu.Lock()
	a.subscribers = append(a.subscribers, ch)
	a.mu.Unlock()
	return ch
}

// TriangularEnabled reports whether multi-hop search is configured.
func (a *Analyzer) TriangularEnabled() bool {
	return a.config.Triangular
}

// AnalyzeDelta evaluates the two leg route implied by a price delta.
// Deltas touching a stale pool are dropped without costing.
func (a *Analyzer) AnalyzeDelta(ctx context.Context, delta *pricingDomain.PriceDelta) {
	ctx, span := a.tracer.Start(ctx, "analyzer.analyze_delta",
		trace.WithAttributes(
			attribute.String("pair", string(delta.Pair)),
			attribute.String("spread_bps", delta.SpreadBps().StringFixed(1)),
		),
	)
	defer span.End()

	if a.prices.IsStale(delta.Low.Pool.Address) || a.prices.IsStale(delta.High.Pool.Address) {
		a.logger.Warn(ctx, "delta dropped, stale pool",
			"low", delta.Low.Pool.Label(), "high", delta.High.Pool.Label())
		a.metrics.rejected.Add(ctx, 1)
		a.publish(ctx, OpportunityRejected{Rejection: &domain.Rejection{
			Delta:     delta,
			Reason:    "pool stale",
			Timestamp: time.Now(),
		}})
		span.SetStatus(codes.Ok, "stale pool")
		return
	}

	path, err := domain.TwoLegPath(delta)
	if err != nil {
		span.RecordError(err)
		a.logger.Warn(ctx, "path construction failed", "pair", string(delta.Pair), "error", err)
		a.publish(ctx, AnalysisError{Err: err})
		return
	}

	a.evaluate(ctx, path, delta)
	span.SetStatus(codes.Ok, "analyzed")
}

// AnalyzeTriangular searches fresh snapshots for three pool loops over
// the delta's base token.
func (a *Analyzer) AnalyzeTriangular(ctx context.Context, delta *pricingDomain.PriceDelta) {
	ctx, span := a.tracer.Start(ctx, "analyzer.analyze_triangular")
	defer span.End()

	base := delta.Low.Pool.Token1
	snaps := a.prices.Snapshots()
	if len(snaps) < 3 {
		return
	}

	for i := 0; i < len(snaps); i++ {
		for j := i + 1; j < len(snaps); j++ {
			for k := j + 1; k < len(snaps); k++ {
				path, err := domain.TriangularPath(
					[3]*pricingDomain.PriceSnapshot{snaps[i], snaps[j], snaps[k]}, base)
				if err != nil {
					continue
				}
				if !path.GrossProfit(a.config.InputAmount).IsPositive() {
					continue
				}
				a.evaluate(ctx, path, delta)
			}
		}
	}
	span.SetStatus(codes.Ok, "analyzed")
}

// evaluate costs a validated path and emits the verdict.
func (a *Analyzer) evaluate(ctx context.Context, path *domain.SwapPath, delta *pricingDomain.PriceDelta) {
	input := a.config.InputAmount
	gross := path.GrossProfit(input)
	blockNumber := delta.Low.BlockNumber

	provider, loanFee, err := domain.BestFlashLoanFee(input, a.config.Providers)
	if err != nil {
		a.logger.Error(ctx, "flash loan fee selection failed", "error", err)
		a.publish(ctx, AnalysisError{Err: err})
		return
	}

	breakdown := a.estimateGas(ctx, len(path.Steps))
	costs := domain.NewCostEstimate(
		loanFee,
		breakdown.GasCost,
		breakdown.DataFee,
		domain.EstimateSlippage(input, a.config.MaxSlippage, len(path.Steps)),
	)

	opp := domain.NewOpportunity(path, delta, provider, input, gross, costs, blockNumber)
	net, _ := opp.NetProfit.Float64()
	a.metrics.netProfit.Record(ctx, net)

	if !opp.Viable(a.config.MinNetProfit) {
		shortfall := a.config.MinNetProfit.Sub(opp.NetProfit).
			Div(input).Mul(decimal.NewFromInt(100))
		a.metrics.rejected.Add(ctx, 1)
		a.logger.Debug(ctx, "route rejected",
			"route", path.Label(),
			"gross", gross.StringFixed(6),
			"net", opp.NetProfit.StringFixed(6),
			"floor", a.config.MinNetProfit.String())
		a.publish(ctx, OpportunityRejected{Rejection: &domain.Rejection{
			Path:             path,
			Delta:            delta,
			Reason:           "net profit below floor",
			GrossProfit:      gross,
			NetProfit:        opp.NetProfit,
			ShortfallPercent: shortfall,
			Timestamp:        time.Now(),
		}})
		return
	}

	a.metrics.found.Add(ctx, 1)
	a.logger.Info(ctx, "opportunity found",
		"id", opp.ID,
		"route", path.Label(),
		"provider", provider.Name,
		"net", opp.NetProfit.StringFixed(6),
		"block", blockNumber)
	a.publish(ctx, OpportunityFound{Opportunity: opp})
}

// estimateGas consults the live estimator when present and falls back
// to the static model on absence or failure.
func (a *Analyzer) estimateGas(ctx context.Context, steps int) GasBreakdown {
	if a.gas != nil {
		breakdown, err := a.gas.Estimate(ctx, steps)
		if err == nil {
			return breakdown
		}
		a.logger.Warn(ctx, "gas estimation failed, using static model", "error", err)
	}

	return GasBreakdown{
		GasCost: domain.StaticGasCost(steps, a.config.BaseGas, a.config.PerSwapGas,
			a.config.GasPriceGwei, a.config.NativePriceBase),
		DataFee: decimal.Zero,
	}
}

// publish sends to every subscriber without blocking; analysis must
// never stall on a slow consumer.
func (a *Analyzer) publish(ctx context.Context, event Event) {
	a.mu.Lock()
	subscribers := a.subscribers
	a.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
			a.logger.Warn(ctx, "event dropped, subscriber buffer full")
		}
	}
}
