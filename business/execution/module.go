// Package execution implements the execution bounded context: turning
// accepted opportunities into signed, submitted, and tracked
// transactions.
package execution

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	arbitrageDI "github.com/ndmikkelsen/flashloaner/business/arbitrage/di"
	blockchainDI "github.com/ndmikkelsen/flashloaner/business/blockchain/di"
	"github.com/ndmikkelsen/flashloaner/business/execution/app"
	executionDI "github.com/ndmikkelsen/flashloaner/business/execution/di"
	"github.com/ndmikkelsen/flashloaner/business/execution/infra"
	"github.com/ndmikkelsen/flashloaner/business/execution/infra/ethereum"
	"github.com/ndmikkelsen/flashloaner/business/execution/infra/ledger"
	"github.com/ndmikkelsen/flashloaner/business/execution/infra/relay"
	"github.com/ndmikkelsen/flashloaner/business/execution/infra/store"
	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
	"github.com/ndmikkelsen/flashloaner/internal/config"
	"github.com/ndmikkelsen/flashloaner/internal/di"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
	"github.com/ndmikkelsen/flashloaner/internal/monolith"
)

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers all execution services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Signer (private - internal dependency)
	di.RegisterToken(c, executionDI.Signer, func(sr di.ServiceRegistry) *ethereum.Signer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		var submitter ethereum.RawSubmitter
		if cfg.Execution.RelayURL != "" {
			relaySubmitter, err := relay.NewSubmitter(cfg.Execution.RelayURL, log)
			if err != nil {
				panic("failed to create relay submitter: " + err.Error())
			}
			submitter = relaySubmitter
		}

		signer, err := ethereum.NewSigner(ethereum.SignerConfig{
			HTTPURL:    cfg.Ethereum.HTTPURL,
			ChainID:    cfg.Ethereum.ChainID,
			PrivateKey: cfg.Execution.PrivateKey,
		}, submitter, log)
		if err != nil {
			panic("failed to create signer: " + err.Error())
		}
		return signer
	})

	// Register Builder (private - internal dependency)
	di.RegisterToken(c, executionDI.Builder, func(sr di.ServiceRegistry) *app.Builder {
		cfg := sr.Get("config").(*config.Config)

		return app.NewBuilder(app.BuilderConfig{
			ChainID:   cfg.Ethereum.ChainID,
			Executor:  cfg.Execution.ExecutorAddressHex(),
			Adapters:  adaptersFromConfig(cfg.Execution.Adapters),
			Providers: providerAddresses(cfg.Arbitrage.Providers),
		})
	})

	// Register NonceAllocator (private - internal dependency)
	di.RegisterToken(c, executionDI.NonceAllocator, func(sr di.ServiceRegistry) *app.NonceAllocator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		chain := blockchainDI.GetChainService(sr)
		owner := executionDI.GetSigner(sr).From()

		allocator, err := app.NewNonceAllocator(owner, nonceStoreFromConfig(cfg.Nonce, owner), chain, cfg.Nonce.DropTimeout, log)
		if err != nil {
			panic("failed to create nonce allocator: " + err.Error())
		}
		return allocator
	})

	// Register Engine (public - exposed to other modules)
	di.RegisterToken(c, executionDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		signer := executionDI.GetSigner(sr)

		var executionLedger app.Ledger
		if cfg.Ledger.Enabled {
			sqlLedger, err := ledger.Open(cfg.Ledger.Path)
			if err != nil {
				panic("failed to open execution ledger: " + err.Error())
			}
			executionLedger = sqlLedger
		}

		engineCfg := app.DefaultEngineConfig()
		engineCfg.DryRun = cfg.Execution.DryRun
		engineCfg.Sender = signer.From()
		if cfg.Execution.ConfirmationTimeout > 0 {
			engineCfg.ConfirmationTimeout = cfg.Execution.ConfirmationTimeout
		}
		if cfg.Execution.ReplacementBumpBps > 0 {
			engineCfg.ReplacementBumpBps = cfg.Execution.ReplacementBumpBps
		}
		if cfg.Execution.MaxConsecutiveFailures > 0 {
			engineCfg.MaxConsecutiveFailures = cfg.Execution.MaxConsecutiveFailures
		}

		engine, err := app.NewEngine(engineCfg, signer, executionLedger, log)
		if err != nil {
			panic("failed to create engine: " + err.Error())
		}
		return engine
	})

	// Register Reporter (private - internal dependency)
	di.RegisterToken(c, executionDI.Reporter, func(sr di.ServiceRegistry) app.Reporter {
		cfg := sr.Get("config").(*config.Config)
		if cfg.App.UI == "tui" {
			return infra.NewTUIReporter()
		}
		return infra.NewConsoleReporter()
	})

	// Register Pipeline (private - internal dependency)
	di.RegisterToken(c, executionDI.Pipeline, func(sr di.ServiceRegistry) *app.Pipeline {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		chain := blockchainDI.GetChainService(sr)

		return app.NewPipeline(app.PipelineConfig{
			BaseGas:           cfg.Arbitrage.BaseGas,
			PerSwapGas:        cfg.Arbitrage.PerSwapGas,
			GasLimitMarginBps: cfg.Execution.GasLimitMarginBps,
		},
			executionDI.GetBuilder(sr),
			executionDI.GetEngine(sr),
			executionDI.GetNonceAllocator(sr),
			chain,
			log,
		)
	})

	return nil
}

// Startup connects the signer and starts the pipeline on the analyzer's
// event stream.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()

	signer := executionDI.GetSigner(mono.Services())
	if err := signer.Connect(ctx); err != nil {
		return err
	}

	analyzer := arbitrageDI.GetAnalyzer(mono.Services())
	pipeline := executionDI.GetPipeline(mono.Services())
	go pipeline.Run(ctx, analyzer.Subscribe())

	engine := executionDI.GetEngine(mono.Services())
	reporter := executionDI.GetReporter(mono.Services())
	go dispatchEngineEvents(ctx, engine.Subscribe(), reporter)

	log.Info(ctx, "execution module started",
		"sender", signer.From().Hex(),
		"dry_run", cfg.Execution.DryRun)
	return nil
}

// dispatchEngineEvents forwards submission lifecycle events to the
// reporter.
func dispatchEngineEvents(ctx context.Context, events <-chan app.Event, reporter app.Reporter) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch e := event.(type) {
			case app.TxSubmitted:
				reporter.ReportSubmitted(e.Hash, e.Prepared)
			case app.TxConfirmed:
				reporter.ReportResult(e.Result)
			case app.TxReverted:
				reporter.ReportResult(e.Result)
			case app.TxFailed:
				reporter.ReportResult(e.Result)
			case app.ProfitRealized:
				reporter.ReportProfit(e.Record)
			case app.EnginePaused:
				reporter.ReportPaused(e.Reason, e.Failures)
			}
		}
	}
}

// nonceStoreFromConfig selects the persistence backend.
func nonceStoreFromConfig(cfg config.NonceConfig, owner common.Address) app.NonceStore {
	if cfg.Store == "redis" {
		return store.NewRedisStore(cfg.RedisAddr, cfg.RedisDB, owner)
	}
	return store.NewFileStore(cfg.FilePath)
}

// adaptersFromConfig maps configured dex names to adapter addresses.
// Unknown names are a wiring bug and fail loudly.
func adaptersFromConfig(adapters map[string]string) map[pricingDomain.DexKind]common.Address {
	out := make(map[pricingDomain.DexKind]common.Address, len(adapters))
	for name, addr := range adapters {
		kind, err := pricingDomain.ParseDexKind(name)
		if err != nil {
			panic("unknown dex in adapter config: " + name)
		}
		out[kind] = common.HexToAddress(addr)
	}
	return out
}

func providerAddresses(providers []config.ProviderConfig) map[string]common.Address {
	out := make(map[string]common.Address, len(providers))
	for _, p := range providers {
		out[p.Name] = p.AddressHex()
	}
	return out
}
