package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ndmikkelsen/flashloaner/business/blockchain/domain"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
	"github.com/ndmikkelsen/flashloaner/internal/cache"
	"github.com/ndmikkelsen/flashloaner/internal/circuitbreaker"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

// FeeOracleConfig holds configuration for the fee oracle.
type FeeOracleConfig struct {
	RPCURL     string        // Ethereum RPC endpoint
	CacheTTL   time.Duration // How long to cache fee suggestions
	MaxBaseFee *big.Int      // Maximum acceptable base fee (safety)
}

// DefaultFeeOracleConfig returns sensible defaults.
func DefaultFeeOracleConfig(rpcURL string) FeeOracleConfig {
	maxBase := new(big.Int)
	maxBase.SetString("500000000000", 10) // 500 gwei max

	return FeeOracleConfig{
		RPCURL:     rpcURL,
		CacheTTL:   12 * time.Second, // ~1 block
		MaxBaseFee: maxBase,
	}
}

// feeOracleMetrics holds OTEL metric instruments.
type feeOracleMetrics struct {
	feeFetches  metric.Int64Counter
	baseFeeGwei metric.Float64Gauge
	tipCapGwei  metric.Float64Gauge
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
}

// FeeOracle implements the FeeOracle port using go-ethereum.
type FeeOracle struct {
	config FeeOracleConfig
	logger logger.LoggerInterface

	client   *ethclient.Client
	clientMu sync.RWMutex

	// Caching
	feeCache    *cache.Cache[string, *domain.FeeSuggestion]
	feeCacheTTL time.Duration

	// Circuit breaker
	cb *circuitbreaker.CircuitBreaker[*domain.FeeSuggestion]

	// Observability
	tracer  trace.Tracer
	metrics *feeOracleMetrics
}

// NewFeeOracle creates a new fee oracle instance.
func NewFeeOracle(cfg FeeOracleConfig, log logger.LoggerInterface) (*FeeOracle, error) {
	o := &FeeOracle{
		config:      cfg,
		logger:      log,
		feeCache:    cache.New[string, *domain.FeeSuggestion](5 * time.Minute),
		feeCacheTTL: cfg.CacheTTL,
		tracer:      otel.Tracer(tracerName),
	}

	if err := o.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	o.cb = circuitbreaker.New[*domain.FeeSuggestion](circuitbreaker.DefaultConfig("fee-oracle"))

	return o, nil
}

// initMetrics initializes OTEL metric instruments.
func (o *FeeOracle) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	o.metrics = &feeOracleMetrics{}

	o.metrics.feeFetches, err = meter.Int64Counter(
		"fee_fetches_total",
		metric.WithDescription("Total fee suggestion fetch attempts"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	o.metrics.baseFeeGwei, err = meter.Float64Gauge(
		"base_fee_gwei",
		metric.WithDescription("Current base fee in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	o.metrics.tipCapGwei, err = meter.Float64Gauge(
		"tip_cap_gwei",
		metric.WithDescription("Current suggested priority fee in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	o.metrics.cacheHits, err = meter.Int64Counter(
		"fee_cache_hits_total",
		metric.WithDescription("Fee suggestion cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	o.metrics.cacheMisses, err = meter.Int64Counter(
		"fee_cache_misses_total",
		metric.WithDescription("Fee suggestion cache misses"),
		metric.WithUnit("{miss}"),
	)
	return err
}

// Connect establishes connection to the Ethereum node.
func (o *FeeOracle) Connect(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "fees.connect",
		trace.WithAttributes(attribute.String("url", o.config.RPCURL)),
	)
	defer span.End()

	client, err := ethclient.DialContext(ctx, o.config.RPCURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect fee oracle"))
	}

	o.clientMu.Lock()
	o.client = client
	o.clientMu.Unlock()

	span.SetStatus(codes.Ok, "connected")
	o.logger.Info(ctx, "fee oracle connected", "url", o.config.RPCURL)
	return nil
}

// Suggest returns base fee and priority fee suggestions, cached per block.
func (o *FeeOracle) Suggest(ctx context.Context) (*domain.FeeSuggestion, error) {
	ctx, span := o.tracer.Start(ctx, "fees.suggest")
	defer span.End()

	// Check cache first
	if fees, found := o.feeCache.Get(ctx, "current"); found {
		o.metrics.cacheHits.Add(ctx, 1)
		span.AddEvent("cache_hit")
		return fees, nil
	}

	o.metrics.cacheMisses.Add(ctx, 1)
	o.metrics.feeFetches.Add(ctx, 1)

	o.clientMu.RLock()
	client := o.client
	o.clientMu.RUnlock()

	if client == nil {
		err := apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithContext("fee oracle not connected"))
		span.RecordError(err)
		return nil, err
	}

	// Fetch through circuit breaker
	fees, err := o.cb.Execute(func() (*domain.FeeSuggestion, error) {
		header, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
		tipCap, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("tip cap: %w", err)
		}
		return domain.NewFeeSuggestion(header.BaseFee, tipCap), nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeFeeEstimationFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to fetch fee suggestion"))
	}

	// Safety check
	if o.config.MaxBaseFee != nil && fees.BaseFee != nil && fees.BaseFee.Cmp(o.config.MaxBaseFee) > 0 {
		span.AddEvent("base_fee_exceeded_max",
			trace.WithAttributes(attribute.String("wei", fees.BaseFee.String())))
		o.logger.Warn(ctx, "base fee exceeds max", "wei", fees.BaseFee.String())
		fees.BaseFee = o.config.MaxBaseFee
	}

	// Update cache
	o.feeCache.Set(ctx, "current", fees, o.feeCacheTTL)

	// Record metrics
	baseGwei, _ := fees.BaseFeeGwei().Float64()
	tipGwei, _ := fees.TipCapGwei().Float64()
	o.metrics.baseFeeGwei.Record(ctx, baseGwei)
	o.metrics.tipCapGwei.Record(ctx, tipGwei)

	span.SetAttributes(
		attribute.Float64("base_fee_gwei", baseGwei),
		attribute.Float64("tip_cap_gwei", tipGwei),
	)
	span.SetStatus(codes.Ok, "fetched")

	return fees, nil
}

// Close closes the fee oracle.
func (o *FeeOracle) Close() error {
	o.clientMu.Lock()
	defer o.clientMu.Unlock()

	if o.client != nil {
		o.client.Close()
		o.client = nil
	}

	o.feeCache.Close()
	return nil
}
