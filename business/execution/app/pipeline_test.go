package app

import (
	"context"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	arbitrageApp "github.com/ndmikkelsen/flashloaner/business/arbitrage/app"
	blockchainDomain "github.com/ndmikkelsen/flashloaner/business/blockchain/domain"
	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

type fakeFees struct {
	baseWei *big.Int
	tipWei  *big.Int
}

func (f *fakeFees) SuggestFees(context.Context) (*blockchainDomain.FeeSuggestion, error) {
	return blockchainDomain.NewFeeSuggestion(f.baseWei, f.tipWei), nil
}

func TestPipelineExecutesOpportunity(t *testing.T) {
	log := logger.New(io.Discard, logger.LevelError, "test", nil)

	allocator, err := NewNonceAllocator(senderAddr,
		&memoryStore{}, &fakeCounter{count: 5}, time.Minute, log)
	if err != nil {
		t.Fatalf("NewNonceAllocator: %v", err)
	}

	txHash := common.HexToHash("0xaaaa")
	signer := &fakeSigner{
		hash: txHash,
		receipt: &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			GasUsed:           300000,
			EffectiveGasPrice: big.NewInt(20_000000000),
			BlockNumber:       big.NewInt(101),
		},
	}
	engine := newTestEngine(t, liveConfig(), signer)

	pipeline := NewPipeline(PipelineConfig{
		BaseGas:           150000,
		PerSwapGas:        120000,
		GasLimitMarginBps: 2000,
	}, testBuilder(), engine, allocator,
		&fakeFees{baseWei: big.NewInt(10_000000000), tipWei: big.NewInt(2_000000000)}, log)

	events := make(chan arbitrageApp.Event, 1)
	events <- arbitrageApp.OpportunityFound{Opportunity: twoLegOpportunity("10000")}
	close(events)

	if err := pipeline.Run(context.Background(), events); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if signer.submits != 1 {
		t.Errorf("submits = %d, want 1", signer.submits)
	}
	status, ok := engine.Status(txHash)
	if !ok || status != domain.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", status)
	}

	// Submission tracking runs concurrently with Run; wait for the
	// confirmed hash to advance the allocator past the synced nonce.
	deadline := time.Now().Add(2 * time.Second)
	for allocator.Current() != 6 {
		if time.Now().After(deadline) {
			t.Fatalf("allocator nonce = %d, want 6", allocator.Current())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPipelineSkipsWhileSubmissionPending(t *testing.T) {
	log := logger.New(io.Discard, logger.LevelError, "test", nil)

	allocator, err := NewNonceAllocator(senderAddr,
		&memoryStore{}, &fakeCounter{count: 5}, time.Minute, log)
	if err != nil {
		t.Fatalf("NewNonceAllocator: %v", err)
	}
	if err := allocator.SyncWithChain(context.Background()); err != nil {
		t.Fatalf("SyncWithChain: %v", err)
	}
	if _, err := allocator.NextNonce(context.Background()); err != nil {
		t.Fatalf("NextNonce: %v", err)
	}
	allocator.MarkSubmitted(context.Background(), common.HexToHash("0xbbbb"))

	signer := &fakeSigner{hash: common.HexToHash("0xcccc")}
	engine := newTestEngine(t, liveConfig(), signer)

	pipeline := NewPipeline(PipelineConfig{
		BaseGas:           150000,
		PerSwapGas:        120000,
		GasLimitMarginBps: 2000,
	}, testBuilder(), engine, allocator,
		&fakeFees{baseWei: big.NewInt(10_000000000), tipWei: big.NewInt(2_000000000)}, log)

	events := make(chan arbitrageApp.Event, 1)
	events <- arbitrageApp.OpportunityFound{Opportunity: twoLegOpportunity("10000")}
	close(events)

	if err := pipeline.Run(context.Background(), events); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if signer.submits != 0 {
		t.Errorf("submits = %d, want 0 while a submission is pending", signer.submits)
	}
}
