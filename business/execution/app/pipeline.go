package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	arbitrageApp "github.com/ndmikkelsen/flashloaner/business/arbitrage/app"
	arbitrageDomain "github.com/ndmikkelsen/flashloaner/business/arbitrage/domain"
	blockchainDomain "github.com/ndmikkelsen/flashloaner/business/blockchain/domain"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

// FeeSource provides the current fee market view for gas settings.
type FeeSource interface {
	SuggestFees(ctx context.Context) (*blockchainDomain.FeeSuggestion, error)
}

// PipelineConfig holds the gas limit model for submissions.
type PipelineConfig struct {
	BaseGas           uint64
	PerSwapGas        uint64
	GasLimitMarginBps int64
}

// Pipeline turns accepted opportunities into submitted transactions:
// allocate a nonce, encode, price gas, submit, and keep the allocator
// in sync with the submission lifecycle.
type Pipeline struct {
	config  PipelineConfig
	builder *Builder
	engine  *Engine
	nonces  *NonceAllocator
	fees    FeeSource
	logger  logger.LoggerInterface
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig, builder *Builder, engine *Engine, nonces *NonceAllocator, fees FeeSource, log logger.LoggerInterface) *Pipeline {
	return &Pipeline{
		config:  cfg,
		builder: builder,
		engine:  engine,
		nonces:  nonces,
		fees:    fees,
		logger:  log,
	}
}

// Run consumes analyzer events until the context is cancelled. The
// engine's lifecycle events drive nonce bookkeeping concurrently.
func (p *Pipeline) Run(ctx context.Context, events <-chan arbitrageApp.Event) error {
	if err := p.nonces.SyncWithChain(ctx); err != nil {
		p.logger.Warn(ctx, "initial nonce sync failed", "error", err)
	}

	go p.trackSubmissions(ctx, p.engine.Subscribe())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info(ctx, "execution pipeline stopped")
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if found, isFound := event.(arbitrageApp.OpportunityFound); isFound {
				p.execute(ctx, found.Opportunity)
			}
		}
	}
}

// execute runs one opportunity through the full submission path.
// Failures are logged and dropped; the next opportunity starts fresh.
func (p *Pipeline) execute(ctx context.Context, opp *arbitrageDomain.Opportunity) {
	alloc, err := p.nonces.NextNonce(ctx)
	if err != nil {
		p.logger.Error(ctx, "nonce allocation failed", "error", err)
		return
	}
	if alloc.Status == PendingStill {
		p.logger.Warn(ctx, "previous submission still pending, skipping",
			"opportunity_id", opp.ID, "nonce", alloc.Nonce)
		return
	}

	tx, err := p.builder.Build(opp)
	if err != nil {
		p.logger.Error(ctx, "transaction build failed",
			"opportunity_id", opp.ID, "error", err)
		return
	}

	fees, err := p.fees.SuggestFees(ctx)
	if err != nil {
		p.logger.Error(ctx, "fee suggestion failed", "error", err)
		return
	}

	gas, err := CalculateGasSettings(fees.BaseFeeGwei(), fees.TipCapGwei(), p.gasLimit(len(tx.Steps)))
	if err != nil {
		p.logger.Error(ctx, "gas settings rejected", "error", err)
		return
	}

	prepared, err := PrepareTransaction(tx, gas, int64(alloc.Nonce))
	if err != nil {
		p.logger.Error(ctx, "transaction preparation failed", "error", err)
		return
	}

	result := p.engine.Execute(ctx, prepared)
	p.logger.Info(ctx, "execution settled",
		"opportunity_id", opp.ID,
		"status", string(result.Status),
		"hash", result.Hash.Hex())
}

// trackSubmissions mirrors the engine lifecycle into the allocator.
func (p *Pipeline) trackSubmissions(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch e := event.(type) {
			case TxSubmitted:
				p.nonces.MarkSubmitted(ctx, e.Hash)
			case TxConfirmed:
				if e.Result.Hash != (common.Hash{}) {
					p.nonces.MarkConfirmed(ctx, e.Result.Hash)
				}
			case TxReverted:
				// The slot was consumed on-chain even though the call
				// reverted.
				p.nonces.MarkConfirmed(ctx, e.Result.Hash)
			}
		}
	}
}

// gasLimit applies the configured safety margin to the static model.
func (p *Pipeline) gasLimit(steps int) uint64 {
	base := p.config.BaseGas + p.config.PerSwapGas*uint64(steps)
	return base * uint64(10000+p.config.GasLimitMarginBps) / 10000
}
