// Package app contains application services and port definitions for the pricing context.
package app

import (
	"context"

	"github.com/ndmikkelsen/flashloaner/business/pricing/domain"
)

// PoolReader reads raw on-chain state for one pool.
type PoolReader interface {
	// ReadState fetches the current reserves or sqrt price for a pool.
	ReadState(ctx context.Context, pool *domain.PoolDescriptor) (*domain.PoolState, error)
}
