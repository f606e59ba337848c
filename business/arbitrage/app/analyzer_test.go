package app

import (
	"context"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ndmikkelsen/flashloaner/business/arbitrage/domain"
	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
	"github.com/ndmikkelsen/flashloaner/internal/logger"
)

var (
	wethToken = pricingDomain.Token{
		Address:  common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Symbol:   "WETH",
		Decimals: 18,
	}
	usdcToken = pricingDomain.Token{
		Address:  common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Symbol:   "USDC",
		Decimals: 6,
	}
)

type fakePrices struct {
	stale map[common.Address]bool
	snaps []*pricingDomain.PriceSnapshot
}

func (f *fakePrices) IsStale(pool common.Address) bool { return f.stale[pool] }

func (f *fakePrices) Snapshots() []*pricingDomain.PriceSnapshot { return f.snaps }

func newTestPool(addr string, kind pricingDomain.DexKind) *pricingDomain.PoolDescriptor {
	return &pricingDomain.PoolDescriptor{
		Name:    "test-" + addr,
		Kind:    kind,
		Address: common.HexToAddress(addr),
		Token0:  wethToken,
		Token1:  usdcToken,
	}
}

func newTestDelta(t *testing.T, lowPrice, highPrice string) *pricingDomain.PriceDelta {
	t.Helper()

	low, err := pricingDomain.NewPriceSnapshot(
		newTestPool("0xaa", pricingDomain.DexUniswapV2), decimal.RequireFromString(lowPrice), 100)
	if err != nil {
		t.Fatalf("NewPriceSnapshot: %v", err)
	}
	high, err := pricingDomain.NewPriceSnapshot(
		newTestPool("0xbb", pricingDomain.DexSushiSwap), decimal.RequireFromString(highPrice), 100)
	if err != nil {
		t.Fatalf("NewPriceSnapshot: %v", err)
	}

	delta, err := pricingDomain.NewPriceDelta(low, high)
	if err != nil {
		t.Fatalf("NewPriceDelta: %v", err)
	}
	return delta
}

func newTestAnalyzer(t *testing.T, prices PriceSource) *Analyzer {
	t.Helper()

	cfg := DefaultAnalyzerConfig()
	cfg.Providers = []domain.ProviderQuote{
		{Name: "aave_v3", Fee: decimal.RequireFromString("0.0009")},
	}

	a, err := NewAnalyzer(cfg, prices, nil, logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return a
}

func TestAnalyzeDeltaFindsOpportunity(t *testing.T) {
	a := newTestAnalyzer(t, &fakePrices{})
	events := a.Subscribe()

	a.AnalyzeDelta(context.Background(), newTestDelta(t, "2000", "2100"))

	select {
	case event := <-events:
		found, ok := event.(OpportunityFound)
		if !ok {
			t.Fatalf("event = %T, want OpportunityFound", event)
		}
		opp := found.Opportunity
		if !opp.NetProfit.Equal(decimal.RequireFromString("375.65")) {
			t.Errorf("net profit = %s, want 375.65", opp.NetProfit)
		}
		if !opp.NetProfitPercent.Equal(decimal.RequireFromString("3.7565")) {
			t.Errorf("net profit percent = %s, want 3.7565", opp.NetProfitPercent)
		}
		if opp.Delta == nil {
			t.Error("opportunity lost its originating delta")
		}
		if opp.Provider.Name != "aave_v3" {
			t.Errorf("provider = %s, want aave_v3", opp.Provider.Name)
		}
		if opp.BlockNumber != 100 {
			t.Errorf("block = %d, want 100", opp.BlockNumber)
		}
	default:
		t.Fatal("expected an event")
	}
}

func TestAnalyzeDeltaRejectsThinSpread(t *testing.T) {
	a := newTestAnalyzer(t, &fakePrices{})
	events := a.Subscribe()

	a.AnalyzeDelta(context.Background(), newTestDelta(t, "2000", "2020"))

	select {
	case event := <-events:
		rejected, ok := event.(OpportunityRejected)
		if !ok {
			t.Fatalf("event = %T, want OpportunityRejected", event)
		}
		if !rejected.Rejection.GrossProfit.IsPositive() {
			t.Errorf("gross profit = %s, want positive", rejected.Rejection.GrossProfit)
		}
		if rejected.Rejection.NetProfit.IsPositive() {
			t.Errorf("net profit = %s, want negative", rejected.Rejection.NetProfit)
		}
		if !rejected.Rejection.ShortfallPercent.IsPositive() {
			t.Errorf("shortfall percent = %s, want positive", rejected.Rejection.ShortfallPercent)
		}
		if rejected.Rejection.Delta == nil {
			t.Error("rejection lost its originating delta")
		}
	default:
		t.Fatal("expected an event")
	}
}

func TestAnalyzeDeltaStaleGate(t *testing.T) {
	prices := &fakePrices{stale: map[common.Address]bool{
		common.HexToAddress("0xaa"): true,
	}}
	a := newTestAnalyzer(t, prices)
	events := a.Subscribe()

	delta := newTestDelta(t, "2000", "2100")
	a.AnalyzeDelta(context.Background(), delta)

	select {
	case event := <-events:
		rejected, ok := event.(OpportunityRejected)
		if !ok {
			t.Fatalf("event = %T, want OpportunityRejected", event)
		}
		if rejected.Rejection.Reason != "pool stale" {
			t.Errorf("reason = %q, want %q", rejected.Rejection.Reason, "pool stale")
		}
		if rejected.Rejection.Delta != delta {
			t.Error("rejection does not carry the dropped delta")
		}
		if rejected.Rejection.RouteLabel() == "" {
			t.Error("rejection has no route label")
		}
	default:
		t.Fatal("expected a rejection event for the stale delta")
	}
}

func TestAnalyzeDeltaNoProvidersEmitsAnalysisError(t *testing.T) {
	cfg := DefaultAnalyzerConfig()
	cfg.Providers = nil

	a, err := NewAnalyzer(cfg, &fakePrices{}, nil, logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	events := a.Subscribe()

	a.AnalyzeDelta(context.Background(), newTestDelta(t, "2000", "2100"))

	select {
	case event := <-events:
		failed, ok := event.(AnalysisError)
		if !ok {
			t.Fatalf("event = %T, want AnalysisError", event)
		}
		if failed.Err == nil {
			t.Error("analysis error carries no cause")
		}
	default:
		t.Fatal("expected an analysis error without providers")
	}
}

func TestAnalyzeDeltaGasEstimatorFailureFallsBack(t *testing.T) {
	a := newTestAnalyzer(t, &fakePrices{})
	a.gas = failingEstimator{}
	events := a.Subscribe()

	a.AnalyzeDelta(context.Background(), newTestDelta(t, "2000", "2100"))

	select {
	case event := <-events:
		found, ok := event.(OpportunityFound)
		if !ok {
			t.Fatalf("event = %T, want OpportunityFound", event)
		}
		// The static model prices gas at 15.6 base token units.
		if !found.Opportunity.Costs.GasCost.Equal(decimal.RequireFromString("15.6")) {
			t.Errorf("gas cost = %s, want 15.6", found.Opportunity.Costs.GasCost)
		}
	default:
		t.Fatal("expected an event")
	}
}

func TestAnalyzeTriangular(t *testing.T) {
	wbtcToken := pricingDomain.Token{
		Address:  common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"),
		Symbol:   "WBTC",
		Decimals: 8,
	}
	pool := func(addr string, token0, token1 pricingDomain.Token) *pricingDomain.PoolDescriptor {
		return &pricingDomain.PoolDescriptor{
			Name:    "test-" + addr,
			Kind:    pricingDomain.DexUniswapV2,
			Address: common.HexToAddress(addr),
			Token0:  token0,
			Token1:  token1,
		}
	}
	snap := func(p *pricingDomain.PoolDescriptor, price string) *pricingDomain.PriceSnapshot {
		s, err := pricingDomain.NewPriceSnapshot(p, decimal.RequireFromString(price), 100)
		if err != nil {
			t.Fatalf("NewPriceSnapshot: %v", err)
		}
		return s
	}

	// Buying WBTC through WETH costs 30000 USDC, selling it direct
	// earns 31000.
	prices := &fakePrices{snaps: []*pricingDomain.PriceSnapshot{
		snap(pool("0xaa", wethToken, usdcToken), "2000"),
		snap(pool("0xbb", wbtcToken, wethToken), "15"),
		snap(pool("0xcc", wbtcToken, usdcToken), "31000"),
	}}

	a := newTestAnalyzer(t, prices)
	events := a.Subscribe()

	a.AnalyzeTriangular(context.Background(), newTestDelta(t, "2000", "2100"))

	select {
	case event := <-events:
		found, ok := event.(OpportunityFound)
		if !ok {
			t.Fatalf("event = %T, want OpportunityFound", event)
		}
		if got := found.Opportunity.Path.Label(); got != "USDC>WETH>WBTC>USDC" {
			t.Errorf("route = %q, want USDC>WETH>WBTC>USDC", got)
		}
		if len(found.Opportunity.Path.Steps) != 3 {
			t.Errorf("steps = %d, want 3", len(found.Opportunity.Path.Steps))
		}
	default:
		t.Fatal("expected an event")
	}
}

type failingEstimator struct{}

func (failingEstimator) Estimate(context.Context, int) (GasBreakdown, error) {
	return GasBreakdown{}, context.DeadlineExceeded
}
