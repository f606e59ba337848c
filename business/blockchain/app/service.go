// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ndmikkelsen/flashloaner/business/blockchain/domain"
)

// ChainService coordinates chain reads, fee data, and block notifications
// for the other bounded contexts.
type ChainService struct {
	reader  ChainReader
	fees    FeeOracle
	watcher BlockWatcher
}

// NewChainService creates a new ChainService.
func NewChainService(reader ChainReader, fees FeeOracle, watcher BlockWatcher) *ChainService {
	return &ChainService{
		reader:  reader,
		fees:    fees,
		watcher: watcher,
	}
}

// CallContract performs an eth_call against the latest block.
func (s *ChainService) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return s.reader.CallContract(ctx, to, data)
}

// BlockNumber returns the latest block number.
func (s *ChainService) BlockNumber(ctx context.Context) (uint64, error) {
	return s.reader.BlockNumber(ctx)
}

// NonceAt returns the confirmed transaction count for an address.
func (s *ChainService) NonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	return s.reader.NonceAt(ctx, addr)
}

// EstimateGas simulates a transaction and returns the gas used.
func (s *ChainService) EstimateGas(ctx context.Context, from, to common.Address, data []byte, value *big.Int) (uint64, error) {
	return s.reader.EstimateGas(ctx, from, to, data, value)
}

// SuggestFees returns the current fee market view.
func (s *ChainService) SuggestFees(ctx context.Context) (*domain.FeeSuggestion, error) {
	return s.fees.Suggest(ctx)
}

// SubscribeBlocks starts the block subscription and returns the channel.
func (s *ChainService) SubscribeBlocks(ctx context.Context) (<-chan *domain.Block, error) {
	return s.watcher.Subscribe(ctx)
}

// ConnectionState returns the block watcher connection state.
func (s *ChainService) ConnectionState() domain.ConnectionState {
	return s.watcher.State()
}
