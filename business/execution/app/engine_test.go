package app

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

type fakeSigner struct {
	hash       common.Hash
	submitErr  error
	receipt    *types.Receipt
	waitErr    error
	block      bool // WaitMined blocks until the context expires
	submits    int
	revertData []byte
}

func (f *fakeSigner) Submit(context.Context, *domain.PreparedTransaction) (common.Hash, error) {
	f.submits++
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return f.hash, nil
}

func (f *fakeSigner) WaitMined(ctx context.Context, _ common.Hash) (*types.Receipt, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return f.receipt, nil
}

func (f *fakeSigner) RevertData(context.Context, *domain.PreparedTransaction, *big.Int) []byte {
	return f.revertData
}

// providerDataError mimics a geth RPC error that carries revert return
// data alongside the message.
type providerDataError struct {
	msg  string
	data string
}

func (e *providerDataError) Error() string          { return e.msg }
func (e *providerDataError) ErrorData() interface{} { return e.data }

func testPrepared(nonce uint64) *domain.PreparedTransaction {
	return &domain.PreparedTransaction{
		Tx: &domain.ArbitrageTransaction{
			OpportunityID: "opp-1",
			To:            executorAddr,
			LoanAmount:    big.NewInt(10000_000000),
			Calldata:      []byte{0x01, 0x02},
		},
		Gas: domain.GasSettings{
			MaxFeePerGas:         big.NewInt(22_000000000),
			MaxPriorityFeePerGas: big.NewInt(2_000000000),
			GasLimit:             500000,
		},
		Nonce: nonce,
	}
}

func newTestEngine(t *testing.T, cfg EngineConfig, signer Signer) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, signer, nil, logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func liveConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.DryRun = false
	cfg.Sender = senderAddr
	cfg.ConfirmationTimeout = time.Second
	return cfg
}

func drainEvents(events <-chan Event) []Event {
	var out []Event
	for {
		select {
		case e := <-events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestEngineDryRun(t *testing.T) {
	signer := &fakeSigner{}
	cfg := DefaultEngineConfig()
	cfg.DryRun = true
	e := newTestEngine(t, cfg, signer)
	events := e.Subscribe()

	result := e.Execute(context.Background(), testPrepared(5))

	if result.Status != domain.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", result.Status)
	}
	if result.Hash != (common.Hash{}) {
		t.Errorf("hash = %s, want zero hash", result.Hash.Hex())
	}
	if signer.submits != 0 {
		t.Errorf("submits = %d, want 0 in dry run", signer.submits)
	}
	got := drainEvents(events)
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if _, ok := got[0].(TxConfirmed); !ok {
		t.Errorf("event = %T, want TxConfirmed", got[0])
	}
}

func TestEngineSubmitAndConfirm(t *testing.T) {
	hash := common.HexToHash("0xabc1")
	signer := &fakeSigner{
		hash: hash,
		receipt: &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			GasUsed:           300000,
			EffectiveGasPrice: big.NewInt(20_000000000),
			BlockNumber:       big.NewInt(123),
			TxHash:            hash,
		},
	}
	e := newTestEngine(t, liveConfig(), signer)
	events := e.Subscribe()

	result := e.Execute(context.Background(), testPrepared(5))

	if result.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", result.Status)
	}
	// 300000 gas x 20 gwei = 0.006 native units.
	if !result.GasCost.Equal(decimal.RequireFromString("0.006")) {
		t.Errorf("gas cost = %s, want 0.006", result.GasCost)
	}

	if status, ok := e.Status(hash); !ok || status != domain.StatusConfirmed {
		t.Errorf("tracked status = %s, want confirmed", status)
	}

	got := drainEvents(events)
	if len(got) != 2 {
		t.Fatalf("events = %d, want submitted then confirmed", len(got))
	}
	if _, ok := got[0].(TxSubmitted); !ok {
		t.Errorf("first event = %T, want TxSubmitted", got[0])
	}
	if _, ok := got[1].(TxConfirmed); !ok {
		t.Errorf("second event = %T, want TxConfirmed", got[1])
	}
}

func TestEngineRevertedReceipt(t *testing.T) {
	hash := common.HexToHash("0xabc2")
	signer := &fakeSigner{
		hash: hash,
		receipt: &types.Receipt{
			Status:            types.ReceiptStatusFailed,
			GasUsed:           210000,
			EffectiveGasPrice: big.NewInt(20_000000000),
			BlockNumber:       big.NewInt(123),
			TxHash:            hash,
		},
	}
	e := newTestEngine(t, liveConfig(), signer)
	events := e.Subscribe()

	result := e.Execute(context.Background(), testPrepared(5))

	if result.Status != domain.StatusReverted {
		t.Fatalf("status = %s, want reverted", result.Status)
	}
	if result.RevertReason != "execution reverted" {
		t.Errorf("reason = %q", result.RevertReason)
	}
	if result.GasUsed != 210000 {
		t.Errorf("gas used = %d, want 210000", result.GasUsed)
	}
	if status, _ := e.Status(hash); status != domain.StatusReverted {
		t.Errorf("tracked status = %s, want reverted", status)
	}

	got := drainEvents(events)
	if len(got) != 2 {
		t.Fatalf("events = %d, want submitted then reverted", len(got))
	}
	if _, ok := got[1].(TxReverted); !ok {
		t.Errorf("second event = %T, want TxReverted", got[1])
	}
}

func TestEngineRevertedReceiptDecodesReason(t *testing.T) {
	hash := common.HexToHash("0xabc8")
	signer := &fakeSigner{
		hash: hash,
		receipt: &types.Receipt{
			Status:            types.ReceiptStatusFailed,
			GasUsed:           210000,
			EffectiveGasPrice: big.NewInt(20_000000000),
			BlockNumber:       big.NewInt(123),
			TxHash:            hash,
		},
		revertData: crypto.Keccak256([]byte("ContractPaused()"))[:4],
	}
	e := newTestEngine(t, liveConfig(), signer)

	result := e.Execute(context.Background(), testPrepared(5))

	if result.Status != domain.StatusReverted {
		t.Fatalf("status = %s, want reverted", result.Status)
	}
	if result.RevertReason != "contract paused" {
		t.Errorf("reason = %q, want contract paused", result.RevertReason)
	}
}

func TestEngineSubmissionFailureDecodesProviderData(t *testing.T) {
	revertData := crypto.Keccak256([]byte("ContractPaused()"))[:4]
	signer := &fakeSigner{submitErr: &providerDataError{
		msg:  "execution reverted",
		data: "0x" + common.Bytes2Hex(revertData),
	}}
	e := newTestEngine(t, liveConfig(), signer)

	result := e.Execute(context.Background(), testPrepared(5))

	if result.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.RevertReason != "contract paused" {
		t.Errorf("reason = %q, want contract paused", result.RevertReason)
	}
}

func TestEngineConfirmationTimeout(t *testing.T) {
	hash := common.HexToHash("0xabc3")
	signer := &fakeSigner{hash: hash, block: true}
	cfg := liveConfig()
	cfg.ConfirmationTimeout = 10 * time.Millisecond
	e := newTestEngine(t, cfg, signer)

	result := e.Execute(context.Background(), testPrepared(5))

	if result.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Error != "confirmation timed out" {
		t.Errorf("error = %q, want confirmation timed out", result.Error)
	}
	// The tracked entry stays submitted so the operator can replace it.
	if status, _ := e.Status(hash); status != domain.StatusSubmitted {
		t.Errorf("tracked status = %s, want submitted", status)
	}
}

func TestEngineCircuitBreaker(t *testing.T) {
	signer := &fakeSigner{submitErr: errors.New("nonce too low")}
	cfg := liveConfig()
	cfg.MaxConsecutiveFailures = 2
	e := newTestEngine(t, cfg, signer)
	events := e.Subscribe()

	e.Execute(context.Background(), testPrepared(5))
	if e.Paused() {
		t.Fatal("must not pause before the threshold")
	}

	e.Execute(context.Background(), testPrepared(5))
	if !e.Paused() {
		t.Fatal("must pause at exactly the threshold")
	}

	var pausedEvents int
	for _, ev := range drainEvents(events) {
		if _, ok := ev.(EnginePaused); ok {
			pausedEvents++
		}
	}
	if pausedEvents != 1 {
		t.Errorf("paused events = %d, want exactly 1", pausedEvents)
	}

	// While paused, no network I/O happens.
	before := signer.submits
	result := e.Execute(context.Background(), testPrepared(5))
	if result.Status != domain.StatusFailed || result.Error != "execution paused" {
		t.Errorf("result = %+v, want paused failure", result)
	}
	if signer.submits != before {
		t.Error("paused engine must not touch the signer")
	}

	e.Resume(context.Background())
	if e.Paused() {
		t.Error("resume must clear the breaker")
	}
}

func TestEngineConfirmResetsFailures(t *testing.T) {
	hash := common.HexToHash("0xabc4")
	signer := &fakeSigner{submitErr: errors.New("rpc down")}
	cfg := liveConfig()
	cfg.MaxConsecutiveFailures = 2
	e := newTestEngine(t, cfg, signer)

	e.Execute(context.Background(), testPrepared(5))

	signer.submitErr = nil
	signer.hash = hash
	signer.receipt = &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           100000,
		EffectiveGasPrice: big.NewInt(1_000000000),
		BlockNumber:       big.NewInt(123),
		TxHash:            hash,
	}
	e.Execute(context.Background(), testPrepared(6))

	// The counter reset: one more failure must not trip the breaker.
	signer.submitErr = errors.New("rpc down")
	e.Execute(context.Background(), testPrepared(7))
	if e.Paused() {
		t.Error("a confirmed success must reset the failure counter")
	}
}

func TestEngineSpeedUpAndCancellation(t *testing.T) {
	hash := common.HexToHash("0xabc5")
	signer := &fakeSigner{hash: hash, block: true}
	cfg := liveConfig()
	cfg.ConfirmationTimeout = 10 * time.Millisecond
	e := newTestEngine(t, cfg, signer)

	e.Execute(context.Background(), testPrepared(5))

	speedUp, err := e.BuildSpeedUp(hash)
	if err != nil {
		t.Fatalf("BuildSpeedUp: %v", err)
	}
	// 22 gwei x 11500 / 10000 = 25.3 gwei, integer arithmetic.
	if speedUp.Gas.MaxFeePerGas.Cmp(big.NewInt(25_300000000)) != 0 {
		t.Errorf("maxFee = %s, want 25.3 gwei", speedUp.Gas.MaxFeePerGas)
	}
	if speedUp.Gas.MaxPriorityFeePerGas.Cmp(big.NewInt(2_300000000)) != 0 {
		t.Errorf("priority = %s, want 2.3 gwei", speedUp.Gas.MaxPriorityFeePerGas)
	}
	if speedUp.Nonce != 5 {
		t.Errorf("nonce = %d, want 5", speedUp.Nonce)
	}

	cancel, err := e.BuildCancellation(hash)
	if err != nil {
		t.Fatalf("BuildCancellation: %v", err)
	}
	if cancel.Tx.To != senderAddr {
		t.Errorf("to = %s, want sender", cancel.Tx.To.Hex())
	}
	if len(cancel.Tx.Calldata) != 0 {
		t.Error("cancellation must carry no payload")
	}
	if cancel.Gas.GasLimit != 21000 {
		t.Errorf("gas limit = %d, want 21000", cancel.Gas.GasLimit)
	}

	newHash := common.HexToHash("0xabc6")
	if err := e.MarkReplaced(context.Background(), hash, newHash); err != nil {
		t.Fatalf("MarkReplaced: %v", err)
	}
	if status, _ := e.Status(hash); status != domain.StatusReplaced {
		t.Errorf("status = %s, want replaced", status)
	}
	e.mu.Lock()
	replacements := e.tracked[hash].Replacements
	e.mu.Unlock()
	if replacements != 1 {
		t.Errorf("replacements = %d, want 1", replacements)
	}

	// Replacement only operates on submitted transactions.
	if _, err := e.BuildSpeedUp(hash); err == nil {
		t.Error("expected error for replaced transaction")
	}
	if _, err := e.BuildSpeedUp(common.HexToHash("0xffff")); err == nil {
		t.Error("expected error for unknown hash")
	}
}

func TestEngineProfitExtraction(t *testing.T) {
	hash := common.HexToHash("0xabc7")
	profitToken := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	signer := &fakeSigner{
		hash: hash,
		receipt: &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			GasUsed:           300000,
			EffectiveGasPrice: big.NewInt(20_000000000),
			BlockNumber:       big.NewInt(123),
			TxHash:            hash,
			Logs: []*types.Log{
				{
					Address: executorAddr,
					Topics: []common.Hash{
						profitEventTopic,
						common.BytesToHash(profitToken.Bytes()),
					},
					Data: common.LeftPadBytes(big.NewInt(375_650000).Bytes(), 32),
				},
			},
		},
	}
	e := newTestEngine(t, liveConfig(), signer)
	events := e.Subscribe()

	e.Execute(context.Background(), testPrepared(5))

	var record *domain.ProfitRecord
	for _, ev := range drainEvents(events) {
		if p, ok := ev.(ProfitRealized); ok {
			record = p.Record
		}
	}
	if record == nil {
		t.Fatal("expected a profit event")
	}
	if record.Token != profitToken {
		t.Errorf("token = %s, want %s", record.Token.Hex(), profitToken.Hex())
	}
	if record.Profit.Cmp(big.NewInt(375_650000)) != 0 {
		t.Errorf("profit = %s, want 375650000", record.Profit)
	}
	if record.OpportunityID != "opp-1" {
		t.Errorf("opportunity id = %q, want opp-1", record.OpportunityID)
	}
}
