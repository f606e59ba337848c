// Package pricing implements the pricing bounded context: on-chain pool
// monitoring and price delta detection.
package pricing

import (
	"context"
	"fmt"

	blockchainDI "github.com/ndmikkelsen/flashloaner/business/blockchain/di"
	"github.com/ndmikkelsen/flashloaner/business/pricing/app"
	pricingDI "github.com/ndmikkelsen/flashloaner/business/pricing/di"
	"github.com/ndmikkelsen/flashloaner/business/pricing/domain"
	"github.com/ndmikkelsen/flashloaner/business/pricing/infra/ethereum"
	"github.com/ndmikkelsen/flashloaner/internal/config"
	"github.com/ndmikkelsen/flashloaner/internal/di"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
	"github.com/ndmikkelsen/flashloaner/internal/monolith"
)

// Module implements the pricing bounded context.
type Module struct{}

// RegisterServices registers all pricing services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register PoolReader (private - internal dependency)
	di.RegisterToken(c, pricingDI.PoolReader, func(sr di.ServiceRegistry) app.PoolReader {
		log := sr.Get("logger").(logger.LoggerInterface)
		chain := blockchainDI.GetChainService(sr)

		reader, err := ethereum.NewPoolReader(chain, log)
		if err != nil {
			panic("failed to create pool reader: " + err.Error())
		}
		return reader
	})

	// Register Monitor (public - exposed to other modules)
	di.RegisterToken(c, pricingDI.Monitor, func(sr di.ServiceRegistry) *app.Monitor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		reader := pricingDI.GetPoolReader(sr)

		pools, err := PoolsFromConfig(cfg.Pools)
		if err != nil {
			panic("invalid pool config: " + err.Error())
		}

		monitorCfg := app.DefaultMonitorConfig()
		if cfg.Monitor.PollInterval > 0 {
			monitorCfg.PollInterval = cfg.Monitor.PollInterval
		}
		if cfg.Monitor.StaleThreshold > 0 {
			monitorCfg.StaleThreshold = cfg.Monitor.StaleThreshold
		}
		if cfg.Monitor.EventBuffer > 0 {
			monitorCfg.EventBuffer = cfg.Monitor.EventBuffer
		}
		monitorCfg.DeltaThreshold = cfg.Monitor.DeltaThresholdDecimal()

		monitor, err := app.NewMonitor(monitorCfg, reader, pools, log)
		if err != nil {
			panic("failed to create monitor: " + err.Error())
		}
		return monitor
	})

	return nil
}

// Startup starts the monitor, driven by the chain watcher's new-head
// stream with the poll interval as fallback.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	monitor := pricingDI.GetMonitor(mono.Services())
	chain := blockchainDI.GetChainService(mono.Services())

	var heads chan uint64
	blocks, err := chain.SubscribeBlocks(ctx)
	if err != nil {
		log.Warn(ctx, "block subscription unavailable, polling only", "error", err)
	} else {
		heads = make(chan uint64, 1)
		go func() {
			defer close(heads)
			for {
				select {
				case <-ctx.Done():
					return
				case block, ok := <-blocks:
					if !ok {
						return
					}
					select {
					case heads <- block.Number:
					default: // monitor is mid-cycle, skip the head
					}
				}
			}
		}()
	}

	go func() {
		if err := monitor.RunWithHeads(ctx, heads); err != nil && ctx.Err() == nil {
			log.Error(ctx, "price monitor exited", "error", err)
		}
	}()

	log.Info(ctx, "pricing module started")
	return nil
}

// PoolsFromConfig converts configured pools to domain descriptors.
func PoolsFromConfig(pools []config.PoolConfig) ([]*domain.PoolDescriptor, error) {
	out := make([]*domain.PoolDescriptor, 0, len(pools))
	for i, p := range pools {
		kind, err := domain.ParseDexKind(p.Dex)
		if err != nil {
			return nil, fmt.Errorf("pools[%d]: %w", i, err)
		}
		out = append(out, &domain.PoolDescriptor{
			Name:    p.Name,
			Kind:    kind,
			Address: p.AddressHex(),
			Token0: domain.Token{
				Address:  p.Token0.AddressHex(),
				Symbol:   p.Token0.Symbol,
				Decimals: p.Token0.Decimals,
			},
			Token1: domain.Token{
				Address:  p.Token1.AddressHex(),
				Symbol:   p.Token1.Symbol,
				Decimals: p.Token1.Decimals,
			},
			FeeTier: p.FeeTier,
			BinStep: p.BinStep,
		})
	}
	return out, nil
}
