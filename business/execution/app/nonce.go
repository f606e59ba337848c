package app

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

// NonceStore persists allocator state. Load returns (nil, nil) when no
// state has been persisted yet.
type NonceStore interface {
	Load(ctx context.Context) (*domain.NonceState, error)
	Save(ctx context.Context, state *domain.NonceState) error
}

// TransactionCounter reads the confirmed transaction count for an
// address from the chain.
type TransactionCounter interface {
	NonceAt(ctx context.Context, addr common.Address) (uint64, error)
}

// PendingStatus is the outcome of resolving an outstanding submission
// during allocation.
type PendingStatus string

const (
	PendingNone      PendingStatus = "none"
	PendingConfirmed PendingStatus = "confirmed"
	PendingDropped   PendingStatus = "dropped"
	PendingStill     PendingStatus = "still_pending"
)

// Allocation is the result of a NextNonce call. When Status is
// PendingStill the nonce must not be used; the prior submission is
// still in flight and the caller should retry later.
type Allocation struct {
	Nonce      uint64
	HadPending bool
	Status     PendingStatus
}

// NonceAllocator hands out exactly one valid nonce at a time for a
// single address and survives restarts through the store. Persistence
// failures are logged and swallowed: state is always recoverable from
// the chain, so losing a write must never fail the caller.
type NonceAllocator struct {
	address     common.Address
	store       NonceStore
	counter     TransactionCounter
	dropTimeout time.Duration
	logger      logger.LoggerInterface

	mu    sync.Mutex
	state *domain.NonceState
}

// NewNonceAllocator loads persisted state for the address, rejecting
// state that belongs to a different address.
func NewNonceAllocator(addr common.Address, store NonceStore, counter TransactionCounter, dropTimeout time.Duration, log logger.LoggerInterface) (*NonceAllocator, error) {
	state, err := store.Load(context.Background())
	if err != nil {
		return nil, apperror.New(apperror.CodeNonceStoreCorrupt, apperror.WithCause(err))
	}
	if state == nil {
		state = domain.NewNonceState(addr)
	} else if err := state.ValidateOwner(addr); err != nil {
		return nil, err
	}

	return &NonceAllocator{
		address:     addr,
		store:       store,
		counter:     counter,
		dropTimeout: dropTimeout,
		logger:      log,
		state:       state,
	}, nil
}

// SyncWithChain adopts the on-chain transaction count when it exceeds
// the held nonce, covering transactions submitted outside this process.
func (a *NonceAllocator) SyncWithChain(ctx context.Context) error {
	count, err := a.counter.NonceAt(ctx, a.address)
	if err != nil {
		return apperror.New(apperror.CodeNonceSyncFailed, apperror.WithCause(err))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if count > a.state.Nonce {
		a.logger.Info(ctx, "adopting on-chain nonce",
			"held", a.state.Nonce, "on_chain", count)
		a.state.Nonce = count
		a.persist(ctx)
	}
	return nil
}

// NextNonce resolves any outstanding submission and returns the nonce
// to use. A still-pending submission inside the drop timeout returns
// immediately with PendingStill; the caller decides whether to wait or
// replace.
func (a *NonceAllocator) NextNonce(ctx context.Context) (Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.state.Pending() {
		return Allocation{Nonce: a.state.Nonce, Status: PendingNone}, nil
	}

	count, err := a.counter.NonceAt(ctx, a.address)
	if err != nil {
		return Allocation{}, apperror.New(apperror.CodeNonceSyncFailed, apperror.WithCause(err))
	}

	if count > a.state.Nonce {
		// The pending transaction was mined.
		a.state.Nonce = count
		a.state.PendingHash = ""
		a.state.SubmittedAtMs = 0
		a.persist(ctx)
		return Allocation{Nonce: a.state.Nonce, HadPending: true, Status: PendingConfirmed}, nil
	}

	if time.Since(a.state.SubmittedAt()) >= a.dropTimeout {
		// Abandoned: reuse the slot without incrementing.
		a.logger.Warn(ctx, "pending transaction dropped",
			"hash", a.state.PendingHash, "nonce", a.state.Nonce)
		a.state.PendingHash = ""
		a.state.SubmittedAtMs = 0
		a.persist(ctx)
		return Allocation{Nonce: a.state.Nonce, HadPending: true, Status: PendingDropped}, nil
	}

	return Allocation{Nonce: a.state.Nonce, HadPending: true, Status: PendingStill}, nil
}

// MarkSubmitted records an outstanding submission and persists
// immediately.
func (a *NonceAllocator) MarkSubmitted(ctx context.Context, hash common.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state.PendingHash = hash.Hex()
	a.state.SubmittedAtMs = time.Now().UnixMilli()
	a.persist(ctx)
}

// MarkConfirmed advances the nonce when the confirmed hash matches the
// pending one. A mismatch is ignored; the pending submission is still
// unresolved.
func (a *NonceAllocator) MarkConfirmed(ctx context.Context, hash common.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.PendingHash != hash.Hex() {
		return
	}
	a.state.Nonce++
	a.state.PendingHash = ""
	a.state.SubmittedAtMs = 0
	a.persist(ctx)
}

// Current returns the held nonce without resolving pending state.
func (a *NonceAllocator) Current() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Nonce
}

// persist writes the full state, logging and swallowing failures.
// Callers hold the mutex.
func (a *NonceAllocator) persist(ctx context.Context) {
	snapshot := *a.state
	if err := a.store.Save(ctx, &snapshot); err != nil {
		a.logger.Warn(ctx, "nonce state persist failed", "error", err)
	}
}
