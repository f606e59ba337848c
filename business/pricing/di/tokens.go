// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/ndmikkelsen/flashloaner/business/pricing/app"
	"github.com/ndmikkelsen/flashloaner/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Monitor = di.NewToken[*app.Monitor]("pricing.Monitor")
)

// Private dependency tokens - internal to pricing module
var (
	PoolReader = di.NewToken[app.PoolReader]("pricing:poolReader")
)

// Helper functions for type-safe access
func GetMonitor(c di.ServiceRegistry) *app.Monitor {
	return di.GetToken(c, Monitor)
}

func GetPoolReader(c di.ServiceRegistry) app.PoolReader {
	return di.GetToken(c, PoolReader)
}
