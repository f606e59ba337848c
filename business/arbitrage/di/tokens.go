// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/ndmikkelsen/flashloaner/business/arbitrage/app"
	"github.com/ndmikkelsen/flashloaner/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Analyzer = di.NewToken[*app.Analyzer]("arbitrage.Analyzer")
)

// Private dependency tokens - internal to arbitrage module
var (
	GasEstimator = di.NewToken[app.GasEstimator]("arbitrage:gasEstimator")
	Reporter     = di.NewToken[app.Reporter]("arbitrage:reporter")
)

// Helper functions for type-safe access
func GetAnalyzer(c di.ServiceRegistry) *app.Analyzer {
	return di.GetToken(c, Analyzer)
}

func GetGasEstimator(c di.ServiceRegistry) app.GasEstimator {
	return di.GetToken(c, GasEstimator)
}

func GetReporter(c di.ServiceRegistry) app.Reporter {
	return di.GetToken(c, Reporter)
}
