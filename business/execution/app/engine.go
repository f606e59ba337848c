package app

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

const (
	tracerName = "github.com/ndmikkelsen/flashloaner/business/execution/app"
	meterName  = "github.com/ndmikkelsen/flashloaner/business/execution/app"
)

// cancellationGasLimit is the bare transfer cost, enough for a
// self-send that vacates a nonce slot.
const cancellationGasLimit = 21000

// profitEventTopic matches the executor's ArbitrageExecuted event.
var profitEventTopic = common.BytesToHash(crypto.Keccak256([]byte("ArbitrageExecuted(address,uint256)")))

// Signer submits prepared transactions and waits for their receipts.
// Implementations may route the raw transaction through a relay.
type Signer interface {
	Submit(ctx context.Context, tx *domain.PreparedTransaction) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// RevertDataProber is implemented by signers that can recover revert
// return data for a mined transaction, typically by replaying the call
// at the receipt's block. Receipts alone carry no revert payload.
type RevertDataProber interface {
	RevertData(ctx context.Context, prepared *domain.PreparedTransaction, blockNumber *big.Int) []byte
}

// Ledger records settled executions for later accounting. A nil ledger
// disables recording.
type Ledger interface {
	RecordExecution(ctx context.Context, result *domain.ExecutionResult) error
	RecordProfit(ctx context.Context, record *domain.ProfitRecord) error
}

// EngineConfig holds submission lifecycle settings.
type EngineConfig struct {
	DryRun                 bool
	Sender                 common.Address
	ConfirmationTimeout    time.Duration
	ReplacementBumpBps     int64 // fee multiplier in basis points, must exceed 10000
	MaxConsecutiveFailures int
	EventBuffer            int
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DryRun:                 true,
		ConfirmationTimeout:    90 * time.Second,
		ReplacementBumpBps:     11500,
		MaxConsecutiveFailures: 3,
		EventBuffer:            64,
	}
}

// engineMetrics holds OTEL metric instruments.
type engineMetrics struct {
	submissions metric.Int64Counter
	confirmed   metric.Int64Counter
	reverted    metric.Int64Counter
	failed      metric.Int64Counter
	gasCost     metric.Float64Histogram
}

// Engine drives the submission lifecycle state machine:
// submitted -> confirmed | reverted | failed | replaced. A consecutive
// failure breaker pauses the engine until an operator resumes it.
type Engine struct {
	config EngineConfig
	signer Signer
	ledger Ledger
	logger logger.LoggerInterface

	mu          sync.Mutex
	tracked     map[common.Hash]*domain.TrackedTransaction
	failures    int
	paused      bool
	subscribers []chan Event

	tracer  trace.Tracer
	metrics *engineMetrics
}

// NewEngine creates an Engine. ledger may be nil.
func NewEngine(cfg EngineConfig, signer Signer, ledger Ledger, log logger.LoggerInterface) (*Engine, error) {
	e := &Engine{
		config:  cfg,
		signer:  signer,
		ledger:  ledger,
		logger:  log,
		tracked: make(map[common.Hash]*domain.TrackedTransaction),
		tracer:  otel.Tracer(tracerName),
	}

	if err := e.initMetrics(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &engineMetrics{}

	e.metrics.submissions, err = meter.Int64Counter(
		"tx_submissions_total",
		metric.WithDescription("Transactions handed to the signer"),
		metric.WithUnit("{tx}"),
	)
	if err != nil {
		return err
	}

	e.metrics.confirmed, err = meter.Int64Counter(
		"tx_confirmed_total",
		metric.WithDescription("Transactions confirmed on-chain"),
		metric.WithUnit("{tx}"),
	)
	if err != nil {
		return err
	}

	e.metrics.reverted, err = meter.Int64Counter(
		"tx_reverted_total",
		metric.WithDescription("Transactions reverted on-chain"),
		metric.WithUnit("{tx}"),
	)
	if err != nil {
		return err
	}

	e.metrics.failed, err = meter.Int64Counter(
		"tx_failed_total",
		metric.WithDescription("Submission failures and confirmation timeouts"),
		metric.WithUnit("{tx}"),
	)
	if err != nil {
		return err
	}

	e.metrics.gasCost, err = meter.Float64Histogram(
		"tx_gas_cost_native",
		metric.WithDescription("Realized gas cost of confirmed transactions in native units"),
	)
	return err
}

// Subscribe registers a new consumer and returns its event channel.
func (e *Engine) Subscribe() <-chan Event {
	ch := make(chan Event, e.config.EventBuffer)
	e.mu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.mu.Unlock()
	return ch
}

// Paused reports whether the failure breaker has tripped.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Resume clears the breaker and the failure counter.
func (e *Engine) Resume(ctx context.Context) {
	e.mu.Lock()
	e.paused = false
	e.failures = 0
	e.mu.Unlock()
	e.logger.Info(ctx, "execution resumed")
}

// Status returns the tracked status for a hash.
func (e *Engine) Status(hash common.Hash) (domain.TxStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, ok := e.tracked[hash]
	if !ok {
		return "", false
	}
	return tx.Status, true
}

// Execute submits a prepared transaction and waits for its outcome.
// While paused it returns a failed result without any network I/O; in
// dry-run mode it returns a synthetic confirmed result.
func (e *Engine) Execute(ctx context.Context, prepared *domain.PreparedTransaction) *domain.ExecutionResult {
	ctx, span := e.tracer.Start(ctx, "engine.execute",
		trace.WithAttributes(
			attribute.String("opportunity_id", prepared.Tx.OpportunityID),
			attribute.Int64("nonce", int64(prepared.Nonce)),
		),
	)
	defer span.End()

	if e.Paused() {
		result := &domain.ExecutionResult{
			Status: domain.StatusFailed,
			Error:  "execution paused",
		}
		e.publish(ctx, TxFailed{Result: result})
		span.SetStatus(codes.Ok, "paused")
		return result
	}

	if e.config.DryRun {
		return e.executeDryRun(ctx, prepared)
	}

	start := time.Now()

	hash, err := e.signer.Submit(ctx, prepared)
	if err != nil {
		e.recordFailure(ctx)
		e.metrics.failed.Add(ctx, 1)
		span.RecordError(err)
		result := &domain.ExecutionResult{
			Status:       domain.StatusFailed,
			Error:        err.Error(),
			RevertReason: domain.ExtractRevertReason(revertDataFromError(err), "", err.Error()),
			Duration:     time.Since(start),
		}
		e.logger.Error(ctx, "submission failed", "error", err)
		e.publish(ctx, TxFailed{Result: result})
		e.record(ctx, result)
		return result
	}

	e.track(hash, prepared)
	e.metrics.submissions.Add(ctx, 1)
	e.logger.Info(ctx, "transaction submitted",
		"hash", hash.Hex(), "nonce", prepared.Nonce)
	e.publish(ctx, TxSubmitted{Hash: hash, Prepared: prepared})

	return e.awaitReceipt(ctx, hash, prepared, start)
}

// executeDryRun short-circuits with a synthetic confirmed result.
func (e *Engine) executeDryRun(ctx context.Context, prepared *domain.PreparedTransaction) *domain.ExecutionResult {
	result := &domain.ExecutionResult{
		Status: domain.StatusConfirmed,
		Hash:   common.Hash{},
	}
	e.logger.Info(ctx, "dry run, skipping submission",
		"opportunity_id", prepared.Tx.OpportunityID, "nonce", prepared.Nonce)
	e.publish(ctx, TxConfirmed{Result: result})
	e.record(ctx, result)
	return result
}

// awaitReceipt races the signer's wait against the confirmation
// timeout. On timeout the tracked status stays submitted for later
// inspection or replacement.
func (e *Engine) awaitReceipt(ctx context.Context, hash common.Hash, prepared *domain.PreparedTransaction, start time.Time) *domain.ExecutionResult {
	waitCtx, cancel := context.WithTimeout(ctx, e.config.ConfirmationTimeout)
	defer cancel()

	receipt, err := e.signer.WaitMined(waitCtx, hash)
	if err != nil {
		e.recordFailure(ctx)
		e.metrics.failed.Add(ctx, 1)

		msg := "confirmation timed out"
		if waitCtx.Err() == nil {
			msg = err.Error()
		}
		result := &domain.ExecutionResult{
			Status:   domain.StatusFailed,
			Hash:     hash,
			Error:    msg,
			Duration: time.Since(start),
		}
		e.logger.Error(ctx, "confirmation failed", "hash", hash.Hex(), "error", msg)
		e.publish(ctx, TxFailed{Result: result})
		e.record(ctx, result)
		return result
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		return e.settleConfirmed(ctx, hash, prepared, receipt, start)
	}
	return e.settleReverted(ctx, hash, prepared, receipt, start)
}

func (e *Engine) settleConfirmed(ctx context.Context, hash common.Hash, prepared *domain.PreparedTransaction, receipt *types.Receipt, start time.Time) *domain.ExecutionResult {
	e.mu.Lock()
	e.failures = 0
	if tx, ok := e.tracked[hash]; ok {
		tx.Status = domain.StatusConfirmed
	}
	e.mu.Unlock()

	gasCost := realizedGasCost(receipt)
	result := &domain.ExecutionResult{
		Status:   domain.StatusConfirmed,
		Hash:     hash,
		GasUsed:  receipt.GasUsed,
		GasCost:  gasCost,
		Duration: time.Since(start),
	}

	e.metrics.confirmed.Add(ctx, 1)
	cost, _ := gasCost.Float64()
	e.metrics.gasCost.Record(ctx, cost)
	e.logger.Info(ctx, "transaction confirmed",
		"hash", hash.Hex(),
		"gas_used", receipt.GasUsed,
		"gas_cost", gasCost.StringFixed(9))
	e.publish(ctx, TxConfirmed{Result: result})
	e.record(ctx, result)

	if record := e.extractProfit(prepared, receipt); record != nil {
		e.logger.Info(ctx, "profit realized",
			"hash", hash.Hex(), "profit", record.Profit.String())
		e.publish(ctx, ProfitRealized{Record: record})
		if e.ledger != nil {
			if err := e.ledger.RecordProfit(ctx, record); err != nil {
				e.logger.Warn(ctx, "profit ledger write failed", "error",
					apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithCause(err)))
			}
		}
	}
	return result
}

func (e *Engine) settleReverted(ctx context.Context, hash common.Hash, prepared *domain.PreparedTransaction, receipt *types.Receipt, start time.Time) *domain.ExecutionResult {
	e.recordFailure(ctx)
	e.mu.Lock()
	if tx, ok := e.tracked[hash]; ok {
		tx.Status = domain.StatusReverted
	}
	e.mu.Unlock()

	reason := e.probeRevertReason(ctx, prepared, receipt)
	result := &domain.ExecutionResult{
		Status:       domain.StatusReverted,
		Hash:         hash,
		GasUsed:      receipt.GasUsed,
		GasCost:      realizedGasCost(receipt),
		RevertReason: reason,
		Duration:     time.Since(start),
	}

	e.metrics.reverted.Add(ctx, 1)
	e.logger.Error(ctx, "transaction reverted",
		"hash", hash.Hex(), "gas_used", receipt.GasUsed, "reason", reason)
	e.publish(ctx, TxReverted{Result: result})
	e.record(ctx, result)
	return result
}

// BuildSpeedUp rebuilds a submitted transaction with bumped fees and
// the same nonce and payload.
func (e *Engine) BuildSpeedUp(hash common.Hash) (*domain.PreparedTransaction, error) {
	original, err := e.replaceable(hash)
	if err != nil {
		return nil, err
	}

	return &domain.PreparedTransaction{
		Tx:    original.Tx,
		Gas:   bumpGas(original.Gas, e.config.ReplacementBumpBps),
		Nonce: original.Nonce,
	}, nil
}

// BuildCancellation rebuilds a submitted transaction as a zero-value
// self-send that vacates the nonce slot.
func (e *Engine) BuildCancellation(hash common.Hash) (*domain.PreparedTransaction, error) {
	original, err := e.replaceable(hash)
	if err != nil {
		return nil, err
	}

	gas := bumpGas(original.Gas, e.config.ReplacementBumpBps)
	gas.GasLimit = cancellationGasLimit

	return &domain.PreparedTransaction{
		Tx: &domain.ArbitrageTransaction{
			OpportunityID: original.Tx.OpportunityID,
			To:            e.config.Sender,
			LoanAmount:    big.NewInt(0),
			Calldata:      nil,
		},
		Gas:   gas,
		Nonce: original.Nonce,
	}, nil
}

// MarkReplaced transitions the old submission to replaced and links it
// to its successor.
func (e *Engine) MarkReplaced(ctx context.Context, oldHash, newHash common.Hash) error {
	e.mu.Lock()
	tx, ok := e.tracked[oldHash]
	if !ok || tx.Status != domain.StatusSubmitted {
		e.mu.Unlock()
		return apperror.New(apperror.CodeTransactionNotFound,
			apperror.WithContext("no submitted transaction for "+oldHash.Hex()))
	}
	tx.Status = domain.StatusReplaced
	tx.Replacements++
	e.mu.Unlock()

	e.logger.Info(ctx, "transaction replaced",
		"old", oldHash.Hex(), "new", newHash.Hex())
	e.publish(ctx, TxReplaced{OldHash: oldHash, NewHash: newHash})
	return nil
}

// replaceable fetches a tracked transaction still in submitted status.
func (e *Engine) replaceable(hash common.Hash) (*domain.PreparedTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, ok := e.tracked[hash]
	if !ok {
		return nil, apperror.New(apperror.CodeTransactionNotFound,
			apperror.WithContext("unknown transaction "+hash.Hex()))
	}
	if tx.Status != domain.StatusSubmitted {
		return nil, apperror.New(apperror.CodeInvalidState,
			apperror.WithContext("transaction is "+string(tx.Status)+", not submitted"))
	}
	return tx.Prepared, nil
}

func (e *Engine) track(hash common.Hash, prepared *domain.PreparedTransaction) {
	e.mu.Lock()
	e.tracked[hash] = &domain.TrackedTransaction{
		Hash:        hash,
		Prepared:    prepared,
		Status:      domain.StatusSubmitted,
		SubmittedAt: time.Now(),
	}
	e.mu.Unlock()
}

// recordFailure trips the breaker at exactly the configured threshold.
func (e *Engine) recordFailure(ctx context.Context) {
	e.mu.Lock()
	e.failures++
	tripped := e.failures == e.config.MaxConsecutiveFailures && !e.paused
	if tripped {
		e.paused = true
	}
	failures := e.failures
	e.mu.Unlock()

	if tripped {
		e.logger.Error(ctx, "execution paused",
			"consecutive_failures", failures)
		e.publish(ctx, EnginePaused{
			Reason:   "consecutive failure limit reached",
			Failures: failures,
		})
	}
}

// extractProfit scans receipt logs for the executor's profit event.
func (e *Engine) extractProfit(prepared *domain.PreparedTransaction, receipt *types.Receipt) *domain.ProfitRecord {
	for _, log := range receipt.Logs {
		if log.Address != prepared.Tx.To {
			continue
		}
		if len(log.Topics) < 2 || log.Topics[0] != profitEventTopic {
			continue
		}
		return &domain.ProfitRecord{
			OpportunityID: prepared.Tx.OpportunityID,
			Hash:          receipt.TxHash,
			Token:         common.BytesToAddress(log.Topics[1].Bytes()),
			Profit:        new(big.Int).SetBytes(log.Data),
			BlockNumber:   receipt.BlockNumber.Uint64(),
			Timestamp:     time.Now(),
		}
	}
	return nil
}

// record writes the result to the ledger, logging and swallowing
// failures.
func (e *Engine) record(ctx context.Context, result *domain.ExecutionResult) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.RecordExecution(ctx, result); err != nil {
		e.logger.Warn(ctx, "execution ledger write failed", "error",
			apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithCause(err)))
	}
}

// publish sends to every subscriber without blocking.
func (e *Engine) publish(ctx context.Context, event Event) {
	e.mu.Lock()
	subscribers := e.subscribers
	e.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
			e.logger.Warn(ctx, "event dropped, subscriber buffer full")
		}
	}
}

// probeRevertReason recovers the revert reason for a mined-but-failed
// transaction. Decoding is best effort; the generic marker stands in
// when the signer cannot replay the call or the data is opaque.
func (e *Engine) probeRevertReason(ctx context.Context, prepared *domain.PreparedTransaction, receipt *types.Receipt) string {
	if prober, ok := e.signer.(RevertDataProber); ok {
		data := prober.RevertData(ctx, prepared, receipt.BlockNumber)
		if reason := domain.ExtractRevertReason(data, "", ""); reason != "" {
			return reason
		}
	}
	return "execution reverted"
}

// revertDataFromError digs revert return data out of a provider error.
// geth-style providers attach the hex payload through rpc.DataError.
func revertDataFromError(err error) []byte {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return nil
	}
	return domain.ParseRevertHex(hexData)
}

// realizedGasCost converts gasUsed x effective price to native units.
func realizedGasCost(receipt *types.Receipt) decimal.Decimal {
	if receipt.EffectiveGasPrice == nil {
		return decimal.Zero
	}
	wei := new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
	return decimal.NewFromBigInt(wei, -18)
}

// bumpGas scales both fee caps by bps/10000 with integer arithmetic to
// avoid float drift on native-unit amounts.
func bumpGas(gas domain.GasSettings, bps int64) domain.GasSettings {
	bump := func(fee *big.Int) *big.Int {
		out := new(big.Int).Mul(fee, big.NewInt(bps))
		return out.Div(out, big.NewInt(10000))
	}
	return domain.GasSettings{
		MaxFeePerGas:         bump(gas.MaxFeePerGas),
		MaxPriorityFeePerGas: bump(gas.MaxPriorityFeePerGas),
		GasLimit:             gas.GasLimit,
	}
}
