// Package ethereum provides Ethereum blockchain infrastructure adapters.
package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ndmikkelsen/flashloaner/internal/apperror"
	"github.com/ndmikkelsen/flashloaner/internal/circuitbreaker"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
	"github.com/ndmikkelsen/flashloaner/internal/ratelimit"
)

const (
	tracerName = "github.com/ndmikkelsen/flashloaner/business/blockchain/infra/ethereum"
	meterName  = "github.com/ndmikkelsen/flashloaner/business/blockchain/infra/ethereum"
)

// ReaderConfig holds configuration for the chain reader.
type ReaderConfig struct {
	RPCURL         string  // Ethereum HTTP RPC endpoint
	RequestsPerSec float64 // outbound RPC rate cap
	Burst          int
}

// DefaultReaderConfig returns sensible defaults.
func DefaultReaderConfig(rpcURL string) ReaderConfig {
	return ReaderConfig{
		RPCURL:         rpcURL,
		RequestsPerSec: 25,
		Burst:          10,
	}
}

// readerMetrics holds OTEL metric instruments.
type readerMetrics struct {
	calls      metric.Int64Counter
	callErrors metric.Int64Counter
}

// Reader implements ChainReader using go-ethereum over HTTP.
type Reader struct {
	config ReaderConfig
	logger logger.LoggerInterface

	client   *ethclient.Client
	clientMu sync.RWMutex

	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *readerMetrics
}

// NewReader creates a new chain reader.
func NewReader(cfg ReaderConfig, log logger.LoggerInterface) (*Reader, error) {
	r := &Reader{
		config:  cfg,
		logger:  log,
		limiter: ratelimit.NewWithBurst(cfg.RequestsPerSec, cfg.Burst),
		tracer:  otel.Tracer(tracerName),
	}

	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig("eth-reader")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	r.cb = circuitbreaker.New[[]byte](cbCfg)

	return r, nil
}

func (r *Reader) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &readerMetrics{}

	r.metrics.calls, err = meter.Int64Counter(
		"eth_reader_calls_total",
		metric.WithDescription("Total chain read calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	r.metrics.callErrors, err = meter.Int64Counter(
		"eth_reader_errors_total",
		metric.WithDescription("Total chain read failures"),
		metric.WithUnit("{error}"),
	)
	return err
}

// Connect establishes the RPC connection.
func (r *Reader) Connect(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "reader.connect",
		trace.WithAttributes(attribute.String("url", r.config.RPCURL)),
	)
	defer span.End()

	client, err := ethclient.DialContext(ctx, r.config.RPCURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to connect chain reader"))
	}

	r.clientMu.Lock()
	r.client = client
	r.clientMu.Unlock()

	span.SetStatus(codes.Ok, "connected")
	r.logger.Info(ctx, "chain reader connected", "url", r.config.RPCURL)
	return nil
}

// UseClient injects an already-dialed client, used when sharing the
// monolith connection.
func (r *Reader) UseClient(client *ethclient.Client) {
	r.clientMu.Lock()
	r.client = client
	r.clientMu.Unlock()
}

func (r *Reader) getClient() (*ethclient.Client, error) {
	r.clientMu.RLock()
	defer r.clientMu.RUnlock()
	if r.client == nil {
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithContext("chain reader not connected"))
	}
	return r.client, nil
}

// CallContract performs an eth_call against the latest block.
func (r *Reader) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	ctx, span := r.tracer.Start(ctx, "reader.call",
		trace.WithAttributes(
			attribute.String("to", to.Hex()),
			attribute.Int("data_len", len(data)),
		),
	)
	defer span.End()

	client, err := r.getClient()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	r.metrics.calls.Add(ctx, 1)

	result, err := r.cb.Execute(func() ([]byte, error) {
		return client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		r.metrics.callErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "call failed")
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("eth_call to %s", to.Hex())))
	}

	span.SetStatus(codes.Ok, "called")
	return result, nil
}

// BlockNumber returns the latest block number.
func (r *Reader) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, span := r.tracer.Start(ctx, "reader.block_number")
	defer span.End()

	client, err := r.getClient()
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	r.metrics.calls.Add(ctx, 1)

	number, err := client.BlockNumber(ctx)
	if err != nil {
		r.metrics.callErrors.Add(ctx, 1)
		span.RecordError(err)
		return 0, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext("failed to get block number"))
	}

	span.SetAttributes(attribute.Int64("block_number", int64(number)))
	span.SetStatus(codes.Ok, "fetched")
	return number, nil
}

// NonceAt returns the confirmed transaction count for an address.
func (r *Reader) NonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	ctx, span := r.tracer.Start(ctx, "reader.nonce_at",
		trace.WithAttributes(attribute.String("address", addr.Hex())),
	)
	defer span.End()

	client, err := r.getClient()
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	r.metrics.calls.Add(ctx, 1)

	nonce, err := client.NonceAt(ctx, addr, nil)
	if err != nil {
		r.metrics.callErrors.Add(ctx, 1)
		span.RecordError(err)
		return 0, apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("failed to get nonce for %s", addr.Hex())))
	}

	span.SetStatus(codes.Ok, "fetched")
	return nonce, nil
}

// EstimateGas simulates a transaction and returns the gas used.
func (r *Reader) EstimateGas(ctx context.Context, from, to common.Address, data []byte, value *big.Int) (uint64, error) {
	ctx, span := r.tracer.Start(ctx, "reader.estimate_gas",
		trace.WithAttributes(
			attribute.String("to", to.Hex()),
			attribute.Int("data_len", len(data)),
		),
	)
	defer span.End()

	client, err := r.getClient()
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	r.metrics.calls.Add(ctx, 1)

	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		r.metrics.callErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "estimate failed")
		return 0, apperror.New(apperror.CodeFeeEstimationFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("failed to estimate gas for %s", to.Hex())))
	}

	span.SetAttributes(attribute.Int64("gas", int64(gas)))
	span.SetStatus(codes.Ok, "estimated")
	return gas, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	r.clientMu.Lock()
	defer r.clientMu.Unlock()

	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
	return nil
}
