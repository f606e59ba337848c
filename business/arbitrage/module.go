// Package arbitrage implements the arbitrage bounded context:
// opportunity analysis over detected price deltas.
package arbitrage

import (
	"context"
	"time"

	"github.com/ndmikkelsen/flashloaner/business/arbitrage/app"
	arbitrageDI "github.com/ndmikkelsen/flashloaner/business/arbitrage/di"
	"github.com/ndmikkelsen/flashloaner/business/arbitrage/domain"
	"github.com/ndmikkelsen/flashloaner/business/arbitrage/infra"
	"github.com/ndmikkelsen/flashloaner/business/arbitrage/infra/ethereum"
	blockchainApp "github.com/ndmikkelsen/flashloaner/business/blockchain/app"
	blockchainDI "github.com/ndmikkelsen/flashloaner/business/blockchain/di"
	pricingApp "github.com/ndmikkelsen/flashloaner/business/pricing/app"
	pricingDI "github.com/ndmikkelsen/flashloaner/business/pricing/di"
	"github.com/ndmikkelsen/flashloaner/internal/config"
	"github.com/ndmikkelsen/flashloaner/internal/di"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
	"github.com/ndmikkelsen/flashloaner/internal/monolith"
)

// Module implements the arbitrage bounded context.
type Module struct{}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register GasEstimator (private - internal dependency)
	di.RegisterToken(c, arbitrageDI.GasEstimator, func(sr di.ServiceRegistry) app.GasEstimator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		chain := blockchainDI.GetChainService(sr)

		return ethereum.NewFeeEstimator(ethereum.FeeEstimatorConfig{
			BaseGas:         cfg.Arbitrage.BaseGas,
			PerSwapGas:      cfg.Arbitrage.PerSwapGas,
			NativePriceBase: cfg.Arbitrage.NativePriceBaseDecimal(),
		}, chain, log)
	})

	// Register Reporter (private - internal dependency)
	di.RegisterToken(c, arbitrageDI.Reporter, func(sr di.ServiceRegistry) app.Reporter {
		cfg := sr.Get("config").(*config.Config)
		if cfg.App.UI == "tui" {
			return infra.NewTUIReporter()
		}
		return infra.NewConsoleReporter()
	})

	// Register Analyzer (public - exposed to other modules)
	di.RegisterToken(c, arbitrageDI.Analyzer, func(sr di.ServiceRegistry) *app.Analyzer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		monitor := pricingDI.GetMonitor(sr)
		estimator := arbitrageDI.GetGasEstimator(sr)

		analyzerCfg := app.DefaultAnalyzerConfig()
		analyzerCfg.InputAmount = cfg.Arbitrage.InputAmountDecimal()
		analyzerCfg.MinNetProfit = cfg.Arbitrage.MinNetProfitDecimal()
		analyzerCfg.MaxSlippage = cfg.Arbitrage.MaxSlippageDecimal()
		analyzerCfg.BaseGas = cfg.Arbitrage.BaseGas
		analyzerCfg.PerSwapGas = cfg.Arbitrage.PerSwapGas
		analyzerCfg.GasPriceGwei = cfg.Arbitrage.GasPriceGweiDecimal()
		analyzerCfg.NativePriceBase = cfg.Arbitrage.NativePriceBaseDecimal()
		analyzerCfg.Triangular = cfg.Arbitrage.Triangular
		analyzerCfg.Providers = providersFromConfig(cfg.Arbitrage.Providers)

		analyzer, err := app.NewAnalyzer(analyzerCfg, monitor, estimator, log)
		if err != nil {
			panic("failed to create analyzer: " + err.Error())
		}
		return analyzer
	})

	return nil
}

// Startup wires monitor events into the analyzer and the reporter.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	monitor := pricingDI.GetMonitor(mono.Services())
	analyzer := arbitrageDI.GetAnalyzer(mono.Services())
	reporter := arbitrageDI.GetReporter(mono.Services())

	if err := reporter.Start(ctx); err != nil {
		return err
	}

	go dispatchMonitorEvents(ctx, monitor, analyzer, reporter)
	go dispatchAnalyzerEvents(ctx, analyzer.Subscribe(), reporter, log)
	go watchConnection(ctx, blockchainDI.GetChainService(mono.Services()), reporter)

	log.Info(ctx, "arbitrage module started")
	return nil
}

// watchConnection keeps the reporter's chain connection state current.
func watchConnection(ctx context.Context, chain *blockchainApp.ChainService, reporter app.Reporter) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := string(chain.ConnectionState())
			if state != last {
				reporter.UpdateConnection(state)
				last = state
			}
		}
	}
}

// dispatchMonitorEvents routes price events to the analyzer and keeps
// the reporter's price view current.
func dispatchMonitorEvents(ctx context.Context, monitor *pricingApp.Monitor, analyzer *app.Analyzer, reporter app.Reporter) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-monitor.Events():
			if !ok {
				return
			}
			switch e := event.(type) {
			case pricingApp.PriceUpdated:
				reporter.UpdatePrice(e.Snapshot)
			case pricingApp.DeltaDetected:
				analyzer.AnalyzeDelta(ctx, e.Delta)
				if analyzer.TriangularEnabled() {
					analyzer.AnalyzeTriangular(ctx, e.Delta)
				}
			case pricingApp.PoolStale:
				reporter.UpdatePoolHealth(e.Pool, true)
			case pricingApp.PoolRecovered:
				reporter.UpdatePoolHealth(e.Pool, false)
			}
		}
	}
}

// dispatchAnalyzerEvents forwards analysis verdicts to the reporter.
func dispatchAnalyzerEvents(ctx context.Context, events <-chan app.Event, reporter app.Reporter, log logger.LoggerInterface) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch e := event.(type) {
			case app.OpportunityFound:
				reporter.ReportOpportunity(e.Opportunity)
			case app.OpportunityRejected:
				reporter.ReportRejection(e.Rejection)
			case app.AnalysisError:
				log.Warn(ctx, "analysis failed", "error", e.Err)
			}
		}
	}
}

func providersFromConfig(providers []config.ProviderConfig) []domain.ProviderQuote {
	out := make([]domain.ProviderQuote, 0, len(providers))
	for _, p := range providers {
		out = append(out, domain.ProviderQuote{
			Name: p.Name,
			Fee:  p.FeeDecimal(),
		})
	}
	return out
}
