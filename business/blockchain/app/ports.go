// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ndmikkelsen/flashloaner/business/blockchain/domain"
)

// ChainReader defines read access to chain state.
type ChainReader interface {
	// CallContract performs an eth_call against the latest block.
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)

	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// NonceAt returns the confirmed transaction count for an address.
	NonceAt(ctx context.Context, addr common.Address) (uint64, error)

	// EstimateGas simulates a transaction and returns the gas used.
	EstimateGas(ctx context.Context, from, to common.Address, data []byte, value *big.Int) (uint64, error)
}

// FeeOracle provides the current fee market view.
type FeeOracle interface {
	// Suggest returns base fee and priority fee suggestions.
	Suggest(ctx context.Context) (*domain.FeeSuggestion, error)
}

// BlockWatcher defines the interface for observing new blocks.
type BlockWatcher interface {
	// Subscribe starts listening for new blocks and returns a channel of blocks.
	Subscribe(ctx context.Context) (<-chan *domain.Block, error)

	// LatestBlock retrieves the most recent block.
	LatestBlock(ctx context.Context) (*domain.Block, error)

	// State returns the current connection state.
	State() domain.ConnectionState
}
