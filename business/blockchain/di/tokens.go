// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"github.com/ndmikkelsen/flashloaner/business/blockchain/app"
	"github.com/ndmikkelsen/flashloaner/internal/di"
)

// Public service tokens - exposed to other modules
var (
	ChainService = di.NewToken[*app.ChainService]("blockchain.ChainService")
)

// Private dependency tokens - internal to blockchain module
var (
	ChainReader  = di.NewToken[app.ChainReader]("blockchain:chainReader")
	FeeOracle    = di.NewToken[app.FeeOracle]("blockchain:feeOracle")
	BlockWatcher = di.NewToken[app.BlockWatcher]("blockchain:blockWatcher")
)

// Helper functions for type-safe access
func GetChainService(c di.ServiceRegistry) *app.ChainService {
	return di.GetToken(c, ChainService)
}

func GetChainReader(c di.ServiceRegistry) app.ChainReader {
	return di.GetToken(c, ChainReader)
}

func GetFeeOracle(c di.ServiceRegistry) app.FeeOracle {
	return di.GetToken(c, FeeOracle)
}

func GetBlockWatcher(c di.ServiceRegistry) app.BlockWatcher {
	return di.GetToken(c, BlockWatcher)
}
