package app

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
)

// Event is the union of notifications the engine publishes, at most
// once per occurrence.
type Event interface {
	isEvent()
}

// TxSubmitted is emitted when the signer accepts a transaction.
type TxSubmitted struct {
	Hash     common.Hash
	Prepared *domain.PreparedTransaction
}

// TxConfirmed is emitted when a receipt with success status arrives.
type TxConfirmed struct {
	Result *domain.ExecutionResult
}

// TxReverted is emitted when a receipt with failure status arrives.
type TxReverted struct {
	Result *domain.ExecutionResult
}

// TxFailed is emitted on submission failure or confirmation timeout.
type TxFailed struct {
	Result *domain.ExecutionResult
}

// TxReplaced links a replaced submission to its successor.
type TxReplaced struct {
	OldHash common.Hash
	NewHash common.Hash
}

// EnginePaused is emitted once when the failure breaker trips.
type EnginePaused struct {
	Reason   string
	Failures int
}

// ProfitRealized carries the executor's on-chain profit event for a
// confirmed transaction.
type ProfitRealized struct {
	Record *domain.ProfitRecord
}

func (TxSubmitted) isEvent()    {}
func (TxConfirmed) isEvent()    {}
func (TxReverted) isEvent()     {}
func (TxFailed) isEvent()       {}
func (TxReplaced) isEvent()     {}
func (EnginePaused) isEvent()   {}
func (ProfitRealized) isEvent() {}
