package app

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ndmikkelsen/flashloaner/business/pricing/domain"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

var (
	wethToken = domain.Token{
		Address:  common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Symbol:   "WETH",
		Decimals: 18,
	}
	usdcToken = domain.Token{
		Address:  common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Symbol:   "USDC",
		Decimals: 18, // equal decimals keep reserve math obvious in tests
	}
)

func newTestPool(addr string, kind domain.DexKind) *domain.PoolDescriptor {
	return &domain.PoolDescriptor{
		Name:    "test-" + addr,
		Kind:    kind,
		Address: common.HexToAddress(addr),
		Token0:  wethToken,
		Token1:  usdcToken,
	}
}

// reserveState builds a V2-style state with reserve1/reserve0 = price.
func reserveState(price int64, block uint64) *domain.PoolState {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return &domain.PoolState{
		Reserve0:    unit,
		Reserve1:    new(big.Int).Mul(big.NewInt(price), unit),
		BlockNumber: block,
		ObservedAt:  time.Now(),
	}
}

type fakeReader struct {
	states map[common.Address]*domain.PoolState
	errs   map[common.Address]error
}

func (f *fakeReader) ReadState(_ context.Context, pool *domain.PoolDescriptor) (*domain.PoolState, error) {
	if err := f.errs[pool.Address]; err != nil {
		return nil, err
	}
	state, ok := f.states[pool.Address]
	if !ok {
		return nil, errors.New("no state configured")
	}
	return state, nil
}

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

func newTestMonitor(t *testing.T, reader PoolReader, pools []*domain.PoolDescriptor, cfg MonitorConfig) *Monitor {
	t.Helper()
	m, err := NewMonitor(cfg, reader, pools, testLogger())
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return m
}

func drainEvents(m *Monitor) []Event {
	var out []Event
	for {
		select {
		case ev := <-m.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestMonitor_EmitsDeltaAboveThreshold(t *testing.T) {
	poolA := newTestPool("0x0000000000000000000000000000000000000001", domain.DexUniswapV2)
	poolB := newTestPool("0x0000000000000000000000000000000000000002", domain.DexSushiSwap)

	reader := &fakeReader{states: map[common.Address]*domain.PoolState{
		poolA.Address: reserveState(2000, 100),
		poolB.Address: reserveState(2020, 100),
	}}

	cfg := DefaultMonitorConfig()
	cfg.DeltaThreshold = decimal.RequireFromString("0.003") // 30 bps

	m := newTestMonitor(t, reader, []*domain.PoolDescriptor{poolA, poolB}, cfg)
	m.runCycle(context.Background())

	var deltas []DeltaDetected
	for _, ev := range drainEvents(m) {
		if d, ok := ev.(DeltaDetected); ok {
			deltas = append(deltas, d)
		}
	}

	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta event, got %d", len(deltas))
	}
	want := decimal.RequireFromString("0.01")
	if !deltas[0].Delta.Spread.Equal(want) {
		t.Errorf("spread = %s, want %s", deltas[0].Delta.Spread, want)
	}
}

func TestMonitor_NoDeltaBelowThreshold(t *testing.T) {
	poolA := newTestPool("0x0000000000000000000000000000000000000001", domain.DexUniswapV2)
	poolB := newTestPool("0x0000000000000000000000000000000000000002", domain.DexSushiSwap)

	reader := &fakeReader{states: map[common.Address]*domain.PoolState{
		poolA.Address: reserveState(2000, 100),
		poolB.Address: reserveState(2002, 100),
	}}

	cfg := DefaultMonitorConfig()
	cfg.DeltaThreshold = decimal.RequireFromString("0.003")

	m := newTestMonitor(t, reader, []*domain.PoolDescriptor{poolA, poolB}, cfg)
	m.runCycle(context.Background())

	for _, ev := range drainEvents(m) {
		if _, ok := ev.(DeltaDetected); ok {
			t.Fatal("unexpected delta event below threshold")
		}
	}
}

func TestMonitor_SingleDeltaPerPair(t *testing.T) {
	poolA := newTestPool("0x0000000000000000000000000000000000000001", domain.DexUniswapV2)
	poolB := newTestPool("0x0000000000000000000000000000000000000002", domain.DexSushiSwap)
	poolC := newTestPool("0x0000000000000000000000000000000000000003", domain.DexUniswapV3)

	// Three divergent pools on the same pair: only the widest spread,
	// lowest against highest, is actionable.
	reader := &fakeReader{states: map[common.Address]*domain.PoolState{
		poolA.Address: reserveState(2000, 100),
		poolB.Address: reserveState(2050, 100),
		poolC.Address: reserveState(2100, 100),
	}}

	cfg := DefaultMonitorConfig()
	cfg.DeltaThreshold = decimal.RequireFromString("0.003")

	m := newTestMonitor(t, reader, []*domain.PoolDescriptor{poolA, poolB, poolC}, cfg)
	m.runCycle(context.Background())

	var deltas []DeltaDetected
	for _, ev := range drainEvents(m) {
		if d, ok := ev.(DeltaDetected); ok {
			deltas = append(deltas, d)
		}
	}

	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta event for the pair, got %d", len(deltas))
	}
	if deltas[0].Delta.Low.Pool.Address != poolA.Address {
		t.Errorf("low pool = %s, want %s", deltas[0].Delta.Low.Pool.Address.Hex(), poolA.Address.Hex())
	}
	if deltas[0].Delta.High.Pool.Address != poolC.Address {
		t.Errorf("high pool = %s, want %s", deltas[0].Delta.High.Pool.Address.Hex(), poolC.Address.Hex())
	}
	want := decimal.RequireFromString("0.05")
	if !deltas[0].Delta.Spread.Equal(want) {
		t.Errorf("spread = %s, want %s", deltas[0].Delta.Spread, want)
	}
}

func TestMonitor_PoolFailedOnEveryFailure(t *testing.T) {
	pool := newTestPool("0x0000000000000000000000000000000000000001", domain.DexUniswapV2)

	readErr := errors.New("rpc down")
	reader := &fakeReader{
		states: map[common.Address]*domain.PoolState{},
		errs:   map[common.Address]error{pool.Address: readErr},
	}

	cfg := DefaultMonitorConfig()
	cfg.StaleThreshold = 10 // well above the failure count

	m := newTestMonitor(t, reader, []*domain.PoolDescriptor{pool}, cfg)
	ctx := context.Background()

	m.runCycle(ctx)
	m.runCycle(ctx)
	m.runCycle(ctx)

	failed := 0
	for _, ev := range drainEvents(m) {
		if f, ok := ev.(PoolFailed); ok {
			failed++
			if f.Pool.Address != pool.Address {
				t.Errorf("failed pool = %s, want %s", f.Pool.Address.Hex(), pool.Address.Hex())
			}
			if !errors.Is(f.Err, readErr) {
				t.Errorf("failure error = %v, want %v", f.Err, readErr)
			}
		}
	}
	if failed != 3 {
		t.Errorf("expected 3 pool failure events, got %d", failed)
	}
}

func TestMonitor_HeadTriggersCycle(t *testing.T) {
	pool := newTestPool("0x0000000000000000000000000000000000000001", domain.DexUniswapV2)
	reader := &fakeReader{states: map[common.Address]*domain.PoolState{
		pool.Address: reserveState(2000, 100),
	}}

	cfg := DefaultMonitorConfig()
	cfg.PollInterval = time.Hour // only heads can trigger within the test

	m := newTestMonitor(t, reader, []*domain.PoolDescriptor{pool}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	heads := make(chan uint64, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.RunWithHeads(ctx, heads)
	}()

	// Drain the immediate startup cycle first.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if _, ok := ev.(PriceUpdated); ok {
				goto headCycle
			}
		case <-deadline:
			t.Fatal("no startup cycle within deadline")
		}
	}

headCycle:
	heads <- 101

	deadline = time.After(2 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if _, ok := ev.(PriceUpdated); ok {
				cancel()
				<-done
				return
			}
		case <-deadline:
			t.Fatal("no head-triggered cycle within deadline")
		}
	}
}

func TestMonitor_StaleAfterConsecutiveFailures(t *testing.T) {
	pool := newTestPool("0x0000000000000000000000000000000000000001", domain.DexUniswapV2)

	reader := &fakeReader{
		states: map[common.Address]*domain.PoolState{},
		errs:   map[common.Address]error{pool.Address: errors.New("rpc down")},
	}

	cfg := DefaultMonitorConfig()
	cfg.StaleThreshold = 3

	m := newTestMonitor(t, reader, []*domain.PoolDescriptor{pool}, cfg)
	ctx := context.Background()

	// Two failures: not yet stale.
	m.runCycle(ctx)
	m.runCycle(ctx)
	if m.IsStale(pool.Address) {
		t.Fatal("pool stale before reaching threshold")
	}

	// Third failure crosses the threshold.
	m.runCycle(ctx)
	if !m.IsStale(pool.Address) {
		t.Fatal("pool not stale after threshold failures")
	}

	staleEvents := 0
	for _, ev := range drainEvents(m) {
		if _, ok := ev.(PoolStale); ok {
			staleEvents++
		}
	}
	if staleEvents != 1 {
		t.Errorf("expected exactly 1 stale event, got %d", staleEvents)
	}

	// Further failures do not re-emit.
	m.runCycle(ctx)
	for _, ev := range drainEvents(m) {
		if _, ok := ev.(PoolStale); ok {
			t.Fatal("stale event re-emitted while already stale")
		}
	}
}

func TestMonitor_RecoveryClearsStale(t *testing.T) {
	pool := newTestPool("0x0000000000000000000000000000000000000001", domain.DexUniswapV2)

	readErr := map[common.Address]error{pool.Address: errors.New("rpc down")}
	reader := &fakeReader{
		states: map[common.Address]*domain.PoolState{pool.Address: reserveState(2000, 100)},
		errs:   readErr,
	}

	cfg := DefaultMonitorConfig()
	cfg.StaleThreshold = 2

	m := newTestMonitor(t, reader, []*domain.PoolDescriptor{pool}, cfg)
	ctx := context.Background()

	m.runCycle(ctx)
	m.runCycle(ctx)
	if !m.IsStale(pool.Address) {
		t.Fatal("pool should be stale")
	}

	// Next read succeeds.
	delete(readErr, pool.Address)
	m.runCycle(ctx)

	if m.IsStale(pool.Address) {
		t.Fatal("pool still stale after successful read")
	}

	recovered := false
	for _, ev := range drainEvents(m) {
		if _, ok := ev.(PoolRecovered); ok {
			recovered = true
		}
	}
	if !recovered {
		t.Error("expected recovery event")
	}
}

func TestMonitor_StalePoolExcludedFromDeltas(t *testing.T) {
	poolA := newTestPool("0x0000000000000000000000000000000000000001", domain.DexUniswapV2)
	poolB := newTestPool("0x0000000000000000000000000000000000000002", domain.DexSushiSwap)

	readErr := map[common.Address]error{poolB.Address: errors.New("rpc down")}
	reader := &fakeReader{
		states: map[common.Address]*domain.PoolState{
			poolA.Address: reserveState(2000, 100),
			poolB.Address: reserveState(2100, 100),
		},
		errs: readErr,
	}

	cfg := DefaultMonitorConfig()
	cfg.StaleThreshold = 1

	m := newTestMonitor(t, reader, []*domain.PoolDescriptor{poolA, poolB}, cfg)
	ctx := context.Background()

	// poolB read keeps failing; its (absent) snapshot must not feed deltas.
	m.runCycle(ctx)
	for _, ev := range drainEvents(m) {
		if _, ok := ev.(DeltaDetected); ok {
			t.Fatal("delta computed against stale pool")
		}
	}

	// poolB recovers with the divergent price: now a delta fires.
	delete(readErr, poolB.Address)
	m.runCycle(ctx)

	found := false
	for _, ev := range drainEvents(m) {
		if _, ok := ev.(DeltaDetected); ok {
			found = true
		}
	}
	if !found {
		t.Fatal("expected delta after recovery")
	}
}
