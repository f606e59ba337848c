// Package ethereum provides on-chain pool state adapters for the pricing context.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	blockchainApp "github.com/ndmikkelsen/flashloaner/business/blockchain/app"
	"github.com/ndmikkelsen/flashloaner/business/pricing/domain"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

const (
	tracerName = "github.com/ndmikkelsen/flashloaner/business/pricing/infra/ethereum"
	meterName  = "github.com/ndmikkelsen/flashloaner/business/pricing/infra/ethereum"
)

// poolReaderMetrics holds OTEL metric instruments.
type poolReaderMetrics struct {
	reads      metric.Int64Counter
	readErrors metric.Int64Counter
}

// PoolReader reads pool state through the blockchain context's chain
// service, decoding per-protocol view calls.
type PoolReader struct {
	chain  *blockchainApp.ChainService
	logger logger.LoggerInterface

	pairABI abi.ABI
	v3ABI   abi.ABI
	lbABI   abi.ABI

	tracer  trace.Tracer
	metrics *poolReaderMetrics
}

// NewPoolReader creates a PoolReader.
func NewPoolReader(chain *blockchainApp.ChainService, log logger.LoggerInterface) (*PoolReader, error) {
	pair, err := abi.JSON(strings.NewReader(pairABI))
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	v3, err := abi.JSON(strings.NewReader(v3PoolABI))
	if err != nil {
		return nil, fmt.Errorf("parse v3 abi: %w", err)
	}
	lb, err := abi.JSON(strings.NewReader(lbPairABI))
	if err != nil {
		return nil, fmt.Errorf("parse lb abi: %w", err)
	}

	r := &PoolReader{
		chain:   chain,
		logger:  log,
		pairABI: pair,
		v3ABI:   v3,
		lbABI:   lb,
		tracer:  otel.Tracer(tracerName),
	}

	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return r, nil
}

func (r *PoolReader) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &poolReaderMetrics{}

	r.metrics.reads, err = meter.Int64Counter(
		"pool_state_reads_total",
		metric.WithDescription("Total pool state reads"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return err
	}

	r.metrics.readErrors, err = meter.Int64Counter(
		"pool_state_read_errors_total",
		metric.WithDescription("Failed pool state reads"),
		metric.WithUnit("{error}"),
	)
	return err
}

// ReadState fetches the current reserves or sqrt price for a pool.
func (r *PoolReader) ReadState(ctx context.Context, pool *domain.PoolDescriptor) (*domain.PoolState, error) {
	ctx, span := r.tracer.Start(ctx, "pool.read_state",
		trace.WithAttributes(
			attribute.String("pool", pool.Address.Hex()),
			attribute.String("dex", pool.Kind.String()),
		),
	)
	defer span.End()

	r.metrics.reads.Add(ctx, 1)

	var (
		state *domain.PoolState
		err   error
	)
	switch pool.Kind {
	case domain.DexUniswapV2, domain.DexSushiSwap:
		state, err = r.readPairReserves(ctx, pool)
	case domain.DexUniswapV3:
		state, err = r.readSlot0(ctx, pool)
	case domain.DexTraderJoeLB:
		state, err = r.readLBReserves(ctx, pool)
	default:
		err = apperror.New(apperror.CodeUnsupportedDex,
			apperror.WithContext(pool.Kind.String()))
	}
	if err != nil {
		r.metrics.readErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, err
	}

	blockNumber, err := r.chain.BlockNumber(ctx)
	if err != nil {
		// A missing block number degrades freshness tracking but the
		// price itself is still usable.
		r.logger.Warn(ctx, "block number unavailable", "error", err)
	}
	state.BlockNumber = blockNumber
	state.ObservedAt = time.Now()

	span.SetStatus(codes.Ok, "read")
	return state, nil
}

func (r *PoolReader) readPairReserves(ctx context.Context, pool *domain.PoolDescriptor) (*domain.PoolState, error) {
	data, err := r.pairABI.Pack("getReserves")
	if err != nil {
		return nil, apperror.New(apperror.CodePoolReadFailed,
			apperror.WithCause(err),
			apperror.WithContext("pack getReserves"))
	}

	output, err := r.chain.CallContract(ctx, pool.Address, data)
	if err != nil {
		return nil, err
	}

	values, err := r.pairABI.Unpack("getReserves", output)
	if err != nil || len(values) < 2 {
		return nil, apperror.New(apperror.CodePoolReadFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("unpack getReserves for %s", pool.Label())))
	}

	reserve0, ok0 := values[0].(*big.Int)
	reserve1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, apperror.New(apperror.CodeInvalidReserves,
			apperror.WithContext("unexpected reserve types"))
	}

	return &domain.PoolState{Reserve0: reserve0, Reserve1: reserve1}, nil
}

func (r *PoolReader) readSlot0(ctx context.Context, pool *domain.PoolDescriptor) (*domain.PoolState, error) {
	data, err := r.v3ABI.Pack("slot0")
	if err != nil {
		return nil, apperror.New(apperror.CodePoolReadFailed,
			apperror.WithCause(err),
			apperror.WithContext("pack slot0"))
	}

	output, err := r.chain.CallContract(ctx, pool.Address, data)
	if err != nil {
		return nil, err
	}

	values, err := r.v3ABI.Unpack("slot0", output)
	if err != nil || len(values) < 1 {
		return nil, apperror.New(apperror.CodePoolReadFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("unpack slot0 for %s", pool.Label())))
	}

	sqrtPriceX96, ok := values[0].(*big.Int)
	if !ok {
		return nil, apperror.New(apperror.CodeInvalidReserves,
			apperror.WithContext("unexpected sqrtPriceX96 type"))
	}

	return &domain.PoolState{SqrtPriceX96: sqrtPriceX96}, nil
}

func (r *PoolReader) readLBReserves(ctx context.Context, pool *domain.PoolDescriptor) (*domain.PoolState, error) {
	data, err := r.lbABI.Pack("getReserves")
	if err != nil {
		return nil, apperror.New(apperror.CodePoolReadFailed,
			apperror.WithCause(err),
			apperror.WithContext("pack lb getReserves"))
	}

	output, err := r.chain.CallContract(ctx, pool.Address, data)
	if err != nil {
		return nil, err
	}

	values, err := r.lbABI.Unpack("getReserves", output)
	if err != nil || len(values) < 2 {
		return nil, apperror.New(apperror.CodePoolReadFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("unpack lb getReserves for %s", pool.Label())))
	}

	reserveX, ok0 := values[0].(*big.Int)
	reserveY, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, apperror.New(apperror.CodeInvalidReserves,
			apperror.WithContext("unexpected lb reserve types"))
	}

	return &domain.PoolState{Reserve0: reserveX, Reserve1: reserveY}, nil
}
