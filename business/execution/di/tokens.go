// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/ndmikkelsen/flashloaner/business/execution/app"
	"github.com/ndmikkelsen/flashloaner/business/execution/infra/ethereum"
	"github.com/ndmikkelsen/flashloaner/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Engine = di.NewToken[*app.Engine]("execution.Engine")
)

// Private dependency tokens - internal to execution module
var (
	Builder        = di.NewToken[*app.Builder]("execution:builder")
	Signer         = di.NewToken[*ethereum.Signer]("execution:signer")
	NonceAllocator = di.NewToken[*app.NonceAllocator]("execution:nonceAllocator")
	Pipeline       = di.NewToken[*app.Pipeline]("execution:pipeline")
	Reporter       = di.NewToken[app.Reporter]("execution:reporter")
)

// Helper functions for type-safe access
func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}

func GetBuilder(c di.ServiceRegistry) *app.Builder {
	return di.GetToken(c, Builder)
}

func GetSigner(c di.ServiceRegistry) *ethereum.Signer {
	return di.GetToken(c, Signer)
}

func GetNonceAllocator(c di.ServiceRegistry) *app.NonceAllocator {
	return di.GetToken(c, NonceAllocator)
}

func GetPipeline(c di.ServiceRegistry) *app.Pipeline {
	return di.GetToken(c, Pipeline)
}

func GetReporter(c di.ServiceRegistry) app.Reporter {
	return di.GetToken(c, Reporter)
}
