// Package ethereum contains chain-backed adapters for the arbitrage context.
package ethereum

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ndmikkelsen/flashloaner/business/arbitrage/app"
	blockchainApp "github.com/ndmikkelsen/flashloaner/business/blockchain/app"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

const feeTracerName = "github.com/ndmikkelsen/flashloaner/business/arbitrage/infra/ethereum"

// FeeEstimatorConfig holds the route gas model parameters.
type FeeEstimatorConfig struct {
	BaseGas         uint64
	PerSwapGas      uint64
	NativePriceBase decimal.Decimal // native token price in base token units
}

// FeeEstimator prices route gas from the live fee market instead of the
// static gas price assumption.
type FeeEstimator struct {
	config FeeEstimatorConfig
	chain  *blockchainApp.ChainService
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewFeeEstimator creates a FeeEstimator over the chain service.
func NewFeeEstimator(cfg FeeEstimatorConfig, chain *blockchainApp.ChainService, log logger.LoggerInterface) *FeeEstimator {
	return &FeeEstimator{
		config: cfg,
		chain:  chain,
		logger: log,
		tracer: otel.Tracer(feeTracerName),
	}
}

// Estimate prices a route's gas at current base fee plus tip.
func (e *FeeEstimator) Estimate(ctx context.Context, steps int) (app.GasBreakdown, error) {
	ctx, span := e.tracer.Start(ctx, "fee_estimator.estimate")
	defer span.End()

	fees, err := e.chain.SuggestFees(ctx)
	if err != nil {
		span.RecordError(err)
		return app.GasBreakdown{}, apperror.New(apperror.CodeFeeEstimationFailed,
			apperror.WithCause(err))
	}

	gasUnits := decimal.NewFromUint64(e.config.BaseGas + e.config.PerSwapGas*uint64(steps))
	priceGwei := fees.BaseFeeGwei().Add(fees.TipCapGwei())
	nativeCost := gasUnits.Mul(priceGwei).Shift(-9)

	return app.GasBreakdown{
		GasCost: nativeCost.Mul(e.config.NativePriceBase),
		DataFee: decimal.Zero,
	}, nil
}
