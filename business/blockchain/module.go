// Package blockchain implements the blockchain bounded context for Ethereum integration.
package blockchain

import (
	"context"

	"github.com/ndmikkelsen/flashloaner/business/blockchain/app"
	blockchainDI "github.com/ndmikkelsen/flashloaner/business/blockchain/di"
	"github.com/ndmikkelsen/flashloaner/business/blockchain/infra/ethereum"
	"github.com/ndmikkelsen/flashloaner/internal/config"
	"github.com/ndmikkelsen/flashloaner/internal/di"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
	"github.com/ndmikkelsen/flashloaner/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register ChainReader (private - internal dependency)
	di.RegisterToken(c, blockchainDI.ChainReader, func(sr di.ServiceRegistry) app.ChainReader {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		readerCfg := ethereum.DefaultReaderConfig(cfg.Ethereum.HTTPURL)
		if cfg.Ethereum.RequestsPerSec > 0 {
			readerCfg.RequestsPerSec = cfg.Ethereum.RequestsPerSec
		}
		reader, err := ethereum.NewReader(readerCfg, log)
		if err != nil {
			panic("failed to create chain reader: " + err.Error())
		}
		return reader
	})

	// Register FeeOracle (private - internal dependency)
	di.RegisterToken(c, blockchainDI.FeeOracle, func(sr di.ServiceRegistry) app.FeeOracle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		oracleCfg := ethereum.DefaultFeeOracleConfig(cfg.Ethereum.HTTPURL)
		oracle, err := ethereum.NewFeeOracle(oracleCfg, log)
		if err != nil {
			panic("failed to create fee oracle: " + err.Error())
		}
		return oracle
	})

	// Register BlockWatcher (private - internal dependency)
	di.RegisterToken(c, blockchainDI.BlockWatcher, func(sr di.ServiceRegistry) app.BlockWatcher {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		watcherCfg := ethereum.DefaultWatcherConfig(cfg.Ethereum.WebSocketURL, cfg.Ethereum.HTTPURL)
		watcherCfg.InitialBackoff = cfg.Ethereum.InitialBackoff
		watcherCfg.MaxBackoff = cfg.Ethereum.MaxBackoff
		watcherCfg.MaxReconnects = cfg.Ethereum.MaxReconnects
		watcher, err := ethereum.NewWatcher(watcherCfg, log)
		if err != nil {
			panic("failed to create block watcher: " + err.Error())
		}
		return watcher
	})

	// Register ChainService (public - exposed to other modules)
	di.RegisterToken(c, blockchainDI.ChainService, func(sr di.ServiceRegistry) *app.ChainService {
		reader := blockchainDI.GetChainReader(sr)
		oracle := blockchainDI.GetFeeOracle(sr)
		watcher := blockchainDI.GetBlockWatcher(sr)
		return app.NewChainService(reader, oracle, watcher)
	})

	return nil
}

// Startup initializes the blockchain module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	reader := blockchainDI.GetChainReader(mono.Services())
	oracle := blockchainDI.GetFeeOracle(mono.Services())

	// Connect services that expose a Connect method
	if connector, ok := reader.(interface{ Connect(context.Context) error }); ok {
		if err := connector.Connect(ctx); err != nil {
			log.Error(ctx, "failed to connect chain reader", "error", err)
			// Don't fail - calls will surface the error
		}
	}

	if connector, ok := oracle.(interface{ Connect(context.Context) error }); ok {
		if err := connector.Connect(ctx); err != nil {
			log.Error(ctx, "failed to connect fee oracle", "error", err)
		}
	}

	log.Info(ctx, "blockchain module started")
	return nil
}
