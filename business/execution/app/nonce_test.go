package app

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

var senderAddr = common.HexToAddress("0x4000000000000000000000000000000000000001")

type memoryStore struct {
	state   *domain.NonceState
	saveErr error
	saves   int
}

func (s *memoryStore) Load(context.Context) (*domain.NonceState, error) {
	return s.state, nil
}

func (s *memoryStore) Save(_ context.Context, state *domain.NonceState) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.state = state
	return nil
}

type fakeCounter struct {
	count uint64
	err   error
}

func (c *fakeCounter) NonceAt(context.Context, common.Address) (uint64, error) {
	return c.count, c.err
}

func newTestAllocator(t *testing.T, store *memoryStore, counter *fakeCounter, dropTimeout time.Duration) *NonceAllocator {
	t.Helper()
	a, err := NewNonceAllocator(senderAddr, store, counter, dropTimeout,
		logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatalf("NewNonceAllocator: %v", err)
	}
	return a
}

func TestNonceAllocatorRejectsForeignState(t *testing.T) {
	store := &memoryStore{state: domain.NewNonceState(common.HexToAddress("0xdead"))}

	_, err := NewNonceAllocator(senderAddr, store, &fakeCounter{}, time.Minute,
		logger.New(io.Discard, logger.LevelError, "test", nil))
	if err == nil {
		t.Fatal("expected error for state owned by another address")
	}
}

func TestNonceAllocatorSyncAdoptsHigherCount(t *testing.T) {
	store := &memoryStore{}
	counter := &fakeCounter{count: 42}
	a := newTestAllocator(t, store, counter, time.Minute)

	if err := a.SyncWithChain(context.Background()); err != nil {
		t.Fatalf("SyncWithChain: %v", err)
	}
	if a.Current() != 42 {
		t.Errorf("nonce = %d, want 42", a.Current())
	}

	// A lower on-chain count never rolls the nonce back.
	counter.count = 10
	if err := a.SyncWithChain(context.Background()); err != nil {
		t.Fatalf("SyncWithChain: %v", err)
	}
	if a.Current() != 42 {
		t.Errorf("nonce = %d, want 42 after lower count", a.Current())
	}
}

func TestNonceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	counter := &fakeCounter{count: 5}
	a := newTestAllocator(t, store, counter, time.Minute)

	if err := a.SyncWithChain(ctx); err != nil {
		t.Fatalf("SyncWithChain: %v", err)
	}

	alloc, err := a.NextNonce(ctx)
	if err != nil {
		t.Fatalf("NextNonce: %v", err)
	}
	if alloc.Nonce != 5 || alloc.HadPending || alloc.Status != PendingNone {
		t.Fatalf("alloc = %+v, want clean nonce 5", alloc)
	}

	hash := common.HexToHash("0x01")
	a.MarkSubmitted(ctx, hash)
	if store.state == nil || !store.state.Pending() {
		t.Fatal("submission must be persisted immediately")
	}

	// The transaction mines: on-chain count advances past the held nonce.
	counter.count = 6
	alloc, err = a.NextNonce(ctx)
	if err != nil {
		t.Fatalf("NextNonce: %v", err)
	}
	if !alloc.HadPending || alloc.Status != PendingConfirmed {
		t.Fatalf("alloc = %+v, want confirmed pending", alloc)
	}
	if alloc.Nonce != 6 {
		t.Errorf("nonce = %d, want 6", alloc.Nonce)
	}
}

func TestNonceDropRecovery(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	counter := &fakeCounter{count: 5}
	a := newTestAllocator(t, store, counter, 10*time.Millisecond)

	if err := a.SyncWithChain(ctx); err != nil {
		t.Fatalf("SyncWithChain: %v", err)
	}
	a.MarkSubmitted(ctx, common.HexToHash("0x01"))

	time.Sleep(20 * time.Millisecond)

	// Count unchanged and the timeout elapsed: the slot is reused.
	alloc, err := a.NextNonce(ctx)
	if err != nil {
		t.Fatalf("NextNonce: %v", err)
	}
	if alloc.Status != PendingDropped {
		t.Fatalf("status = %s, want dropped", alloc.Status)
	}
	if alloc.Nonce != 5 {
		t.Errorf("nonce = %d, want 5 (no increment)", alloc.Nonce)
	}
}

func TestNonceStillPending(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	counter := &fakeCounter{count: 5}
	a := newTestAllocator(t, store, counter, time.Hour)

	if err := a.SyncWithChain(ctx); err != nil {
		t.Fatalf("SyncWithChain: %v", err)
	}
	a.MarkSubmitted(ctx, common.HexToHash("0x01"))

	alloc, err := a.NextNonce(ctx)
	if err != nil {
		t.Fatalf("NextNonce: %v", err)
	}
	if alloc.Status != PendingStill {
		t.Fatalf("status = %s, want still_pending", alloc.Status)
	}

	// State unchanged: a later call still sees the pending submission.
	alloc, err = a.NextNonce(ctx)
	if err != nil {
		t.Fatalf("NextNonce: %v", err)
	}
	if alloc.Status != PendingStill || alloc.Nonce != 5 {
		t.Fatalf("alloc = %+v, want unchanged pending", alloc)
	}
}

func TestNonceMarkConfirmed(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	a := newTestAllocator(t, store, &fakeCounter{count: 5}, time.Minute)

	if err := a.SyncWithChain(ctx); err != nil {
		t.Fatalf("SyncWithChain: %v", err)
	}
	a.MarkSubmitted(ctx, common.HexToHash("0x01"))

	// A mismatched hash is ignored.
	a.MarkConfirmed(ctx, common.HexToHash("0x02"))
	if a.Current() != 5 {
		t.Errorf("nonce = %d, want 5 after mismatched confirm", a.Current())
	}

	a.MarkConfirmed(ctx, common.HexToHash("0x01"))
	if a.Current() != 6 {
		t.Errorf("nonce = %d, want 6 after confirm", a.Current())
	}
	if store.state.Pending() {
		t.Error("pending fields must be cleared")
	}
}

func TestNoncePersistFailureSwallowed(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{saveErr: errors.New("disk full")}
	a := newTestAllocator(t, store, &fakeCounter{count: 5}, time.Minute)

	// Persist failures must never surface to callers.
	a.MarkSubmitted(ctx, common.HexToHash("0x01"))

	counter := &fakeCounter{count: 6}
	a.counter = counter
	alloc, err := a.NextNonce(ctx)
	if err != nil {
		t.Fatalf("NextNonce: %v", err)
	}
	if alloc.Status != PendingConfirmed {
		t.Errorf("status = %s, want confirmed", alloc.Status)
	}
}

func TestNonceSyncFailureSurfaces(t *testing.T) {
	store := &memoryStore{}
	counter := &fakeCounter{err: errors.New("rpc down")}
	a := newTestAllocator(t, store, counter, time.Minute)

	if err := a.SyncWithChain(context.Background()); err == nil {
		t.Error("expected error when the chain read fails")
	}
}
