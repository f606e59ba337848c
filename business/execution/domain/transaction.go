// Package domain contains the core domain types for the execution context.
package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ndmikkelsen/flashloaner/internal/apperror"
)

// SwapInstruction is one encoded hop for the on-chain executor. The
// first instruction carries the full borrowed amount; later ones carry
// zero, telling the executor to spend its current balance.
type SwapInstruction struct {
	Adapter   common.Address
	TokenIn   common.Address
	AmountIn  *big.Int
	ExtraData []byte
}

// ArbitrageTransaction is a fully encoded executor call, ready for gas
// and nonce assignment.
type ArbitrageTransaction struct {
	OpportunityID string
	Provider      common.Address // flash loan pool or vault
	BaseToken     common.Address
	LoanAmount    *big.Int
	Steps         []SwapInstruction
	To            common.Address // executor contract
	Calldata      []byte
}

// GasSettings is the EIP-1559 fee triple for a submission.
type GasSettings struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasLimit             uint64
}

// PreparedTransaction binds an encoded transaction to gas settings and
// an allocated nonce.
type PreparedTransaction struct {
	Tx    *ArbitrageTransaction
	Gas   GasSettings
	Nonce uint64
}

// TxStatus is the submission lifecycle state of a tracked transaction.
type TxStatus string

const (
	StatusSubmitted TxStatus = "submitted"
	StatusConfirmed TxStatus = "confirmed"
	StatusReverted  TxStatus = "reverted"
	StatusFailed    TxStatus = "failed"
	StatusReplaced  TxStatus = "replaced"
)

// Terminal reports whether the status admits no further transitions.
func (s TxStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusReverted || s == StatusFailed || s == StatusReplaced
}

// TrackedTransaction is an in-flight or settled submission.
// Replacements counts how many fee-bumped resubmissions have taken
// this transaction's place.
type TrackedTransaction struct {
	Hash         common.Hash
	Prepared     *PreparedTransaction
	Status       TxStatus
	Replacements int
	SubmittedAt  time.Time
}

// ExecutionResult is the terminal outcome of one submission attempt.
type ExecutionResult struct {
	Status       TxStatus
	Hash         common.Hash
	GasUsed      uint64
	GasCost      decimal.Decimal // native units, gasUsed x effective price
	RevertReason string
	Error        string
	Duration     time.Duration
}

// ProfitRecord captures the executor's on-chain profit event for a
// confirmed transaction.
type ProfitRecord struct {
	OpportunityID string
	Hash          common.Hash
	Token         common.Address
	Profit        *big.Int
	BlockNumber   uint64
	Timestamp     time.Time
}

// NonceState is the persisted allocator record. PendingHash and
// SubmittedAtMs are empty in the clean state.
type NonceState struct {
	Nonce         uint64 `json:"nonce"`
	Address       string `json:"address"` // lower-cased
	PendingHash   string `json:"pending_hash,omitempty"`
	SubmittedAtMs int64  `json:"submitted_at_ms,omitempty"`
}

// NewNonceState creates a clean state for an address.
func NewNonceState(addr common.Address) *NonceState {
	return &NonceState{
		Address: strings.ToLower(addr.Hex()),
	}
}

// Pending reports whether a transaction is outstanding.
func (s *NonceState) Pending() bool {
	return s.PendingHash != ""
}

// SubmittedAt returns the pending submission time.
func (s *NonceState) SubmittedAt() time.Time {
	return time.UnixMilli(s.SubmittedAtMs)
}

// ValidateOwner rejects state persisted for a different address.
func (s *NonceState) ValidateOwner(addr common.Address) error {
	if s.Address != strings.ToLower(addr.Hex()) {
		return apperror.New(apperror.CodeNonceStoreCorrupt,
			apperror.WithContext("persisted nonce state belongs to "+s.Address))
	}
	return nil
}
