package domain

import (
	"testing"

	"github.com/shopspring/decimal"

	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
)

// costOpportunity runs the full viability pipeline for a two pool
// spread: path construction, fee selection, static costing.
func costOpportunity(t *testing.T, lowPrice, highPrice string) *Opportunity {
	t.Helper()

	poolA := testPool("0xaa", pricingDomain.DexUniswapV2, testWETH, testUSDC)
	poolB := testPool("0xbb", pricingDomain.DexSushiSwap, testWETH, testUSDC)

	delta, err := pricingDomain.NewPriceDelta(
		mustSnapshot(t, poolA, lowPrice),
		mustSnapshot(t, poolB, highPrice),
	)
	if err != nil {
		t.Fatalf("NewPriceDelta: %v", err)
	}

	path, err := TwoLegPath(delta)
	if err != nil {
		t.Fatalf("TwoLegPath: %v", err)
	}

	input := decimal.RequireFromString("10000")
	provider, loanFee, err := BestFlashLoanFee(input, []ProviderQuote{
		{Name: "aave_v3", Fee: decimal.RequireFromString("0.0009")},
	})
	if err != nil {
		t.Fatalf("BestFlashLoanFee: %v", err)
	}

	costs := NewCostEstimate(
		loanFee,
		StaticGasCost(len(path.Steps), 150000, 120000,
			decimal.RequireFromString("20"), decimal.RequireFromString("2000")),
		decimal.Zero,
		EstimateSlippage(input, decimal.RequireFromString("0.005"), len(path.Steps)),
	)

	return NewOpportunity(path, delta, provider, input, path.GrossProfit(input), costs, 100)
}

func TestOpportunityViability(t *testing.T) {
	minNet := decimal.RequireFromString("10")

	// A 5% spread survives fees, gas and slippage.
	opp := costOpportunity(t, "2000", "2100")
	if !opp.NetProfit.Equal(decimal.RequireFromString("375.65")) {
		t.Errorf("net profit = %s, want 375.65", opp.NetProfit)
	}
	if !opp.Viable(minNet) {
		t.Error("5% spread should be viable")
	}
	if !opp.NetProfitPercent.Equal(decimal.RequireFromString("3.7565")) {
		t.Errorf("net profit percent = %s, want 3.7565", opp.NetProfitPercent)
	}
	if opp.Delta == nil {
		t.Error("opportunity must carry its originating delta")
	}

	// A 1% spread yields gross profit but the costs eat it.
	opp = costOpportunity(t, "2000", "2020")
	if !opp.GrossProfit.IsPositive() {
		t.Errorf("gross profit = %s, want positive", opp.GrossProfit)
	}
	if !opp.NetProfit.Equal(decimal.RequireFromString("-24.35")) {
		t.Errorf("net profit = %s, want -24.35", opp.NetProfit)
	}
	if opp.Viable(minNet) {
		t.Error("1% spread should not clear the profit floor")
	}
}

func TestOpportunityIdentity(t *testing.T) {
	a := costOpportunity(t, "2000", "2100")
	b := costOpportunity(t, "2000", "2100")

	if a.ID == "" || b.ID == "" {
		t.Fatal("opportunities must carry an ID")
	}
	if a.ID == b.ID {
		t.Error("opportunity IDs must be unique")
	}
	if a.BlockNumber != 100 {
		t.Errorf("block number = %d, want 100", a.BlockNumber)
	}
}
