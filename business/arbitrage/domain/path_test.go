package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
)

var (
	testUSDC = pricingDomain.Token{Address: common.HexToAddress("0x01"), Symbol: "USDC", Decimals: 6}
	testWETH = pricingDomain.Token{Address: common.HexToAddress("0x02"), Symbol: "WETH", Decimals: 18}
	testWBTC = pricingDomain.Token{Address: common.HexToAddress("0x03"), Symbol: "WBTC", Decimals: 8}
)

func testPool(addr string, kind pricingDomain.DexKind, token0, token1 pricingDomain.Token) *pricingDomain.PoolDescriptor {
	return &pricingDomain.PoolDescriptor{
		Name:    token0.Symbol + "/" + token1.Symbol,
		Kind:    kind,
		Address: common.HexToAddress(addr),
		Token0:  token0,
		Token1:  token1,
	}
}

func mustSnapshot(t *testing.T, pool *pricingDomain.PoolDescriptor, price string) *pricingDomain.PriceSnapshot {
	t.Helper()
	snap, err := pricingDomain.NewPriceSnapshot(pool, decimal.RequireFromString(price), 100)
	if err != nil {
		t.Fatalf("NewPriceSnapshot: %v", err)
	}
	return snap
}

func TestTwoLegPath(t *testing.T) {
	poolA := testPool("0xaa", pricingDomain.DexUniswapV2, testWETH, testUSDC)
	poolB := testPool("0xbb", pricingDomain.DexSushiSwap, testWETH, testUSDC)

	delta, err := pricingDomain.NewPriceDelta(
		mustSnapshot(t, poolA, "2000"),
		mustSnapshot(t, poolB, "2100"),
	)
	if err != nil {
		t.Fatalf("NewPriceDelta: %v", err)
	}

	path, err := TwoLegPath(delta)
	if err != nil {
		t.Fatalf("TwoLegPath: %v", err)
	}

	if path.BaseToken.Address != testUSDC.Address {
		t.Errorf("base token = %s, want USDC", path.BaseToken.Symbol)
	}
	if got := path.Label(); got != "USDC>WETH>USDC" {
		t.Errorf("label = %q, want USDC>WETH>USDC", got)
	}
	if path.Steps[0].Pool != poolA.Address {
		t.Errorf("first leg should buy at the cheaper pool")
	}
	if path.Steps[1].Pool != poolB.Address {
		t.Errorf("second leg should sell at the richer pool")
	}

	// Buying at 2000 and selling at 2100 returns 1.05x the input.
	gross := path.GrossProfit(decimal.RequireFromString("10000"))
	if !gross.Equal(decimal.RequireFromString("500")) {
		t.Errorf("gross profit = %s, want 500", gross)
	}
}

func TestSwapPathValidate(t *testing.T) {
	poolA := testPool("0xaa", pricingDomain.DexUniswapV2, testWETH, testUSDC)

	step := func(in, out pricingDomain.Token, price string) SwapStep {
		return SwapStep{
			Dex:      poolA.Kind,
			Pool:     poolA.Address,
			TokenIn:  in,
			TokenOut: out,
			Price:    decimal.RequireFromString(price),
		}
	}

	tests := []struct {
		name    string
		path    *SwapPath
		wantErr bool
	}{
		{
			name: "valid two leg loop",
			path: &SwapPath{
				BaseToken: testUSDC,
				Steps: []SwapStep{
					step(testUSDC, testWETH, "0.0005"),
					step(testWETH, testUSDC, "2100"),
				},
			},
		},
		{
			name: "single step",
			path: &SwapPath{
				BaseToken: testUSDC,
				Steps:     []SwapStep{step(testUSDC, testWETH, "0.0005")},
			},
			wantErr: true,
		},
		{
			name: "does not start in base token",
			path: &SwapPath{
				BaseToken: testUSDC,
				Steps: []SwapStep{
					step(testWETH, testUSDC, "2000"),
					step(testUSDC, testWETH, "0.0005"),
				},
			},
			wantErr: true,
		},
		{
			name: "does not close the loop",
			path: &SwapPath{
				BaseToken: testUSDC,
				Steps: []SwapStep{
					step(testUSDC, testWETH, "0.0005"),
					step(testWETH, testWBTC, "0.066"),
				},
			},
			wantErr: true,
		},
		{
			name: "discontiguous hops",
			path: &SwapPath{
				BaseToken: testUSDC,
				Steps: []SwapStep{
					step(testUSDC, testWETH, "0.0005"),
					step(testWBTC, testUSDC, "31000"),
				},
			},
			wantErr: true,
		},
		{
			name: "non-positive price",
			path: &SwapPath{
				BaseToken: testUSDC,
				Steps: []SwapStep{
					step(testUSDC, testWETH, "0.0005"),
					step(testWETH, testUSDC, "0"),
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.path.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTriangularPath(t *testing.T) {
	// WETH at 2000 USDC, WBTC at 15 WETH but only 31000 USDC: buying
	// WBTC through WETH costs 30000, selling it direct earns 31000.
	snaps := [3]*pricingDomain.PriceSnapshot{
		mustSnapshot(t, testPool("0xaa", pricingDomain.DexUniswapV2, testWETH, testUSDC), "2000"),
		mustSnapshot(t, testPool("0xbb", pricingDomain.DexUniswapV2, testWBTC, testWETH), "15"),
		mustSnapshot(t, testPool("0xcc", pricingDomain.DexSushiSwap, testWBTC, testUSDC), "31000"),
	}

	path, err := TriangularPath(snaps, testUSDC)
	if err != nil {
		t.Fatalf("TriangularPath: %v", err)
	}

	if got := path.Label(); got != "USDC>WETH>WBTC>USDC" {
		t.Errorf("label = %q, want USDC>WETH>WBTC>USDC", got)
	}

	one := decimal.NewFromInt(1)
	want := decimal.RequireFromString("31000").
		DivRound(decimal.RequireFromString("30000"), 30)
	got := path.GrossReturn(one)
	if got.Sub(want).Abs().GreaterThan(decimal.RequireFromString("0.000000000001")) {
		t.Errorf("gross return = %s, want ~%s", got, want)
	}
}

func TestTriangularPathNoLoop(t *testing.T) {
	// Three pools over four tokens cannot close a loop on USDC.
	other := pricingDomain.Token{Address: common.HexToAddress("0x04"), Symbol: "DAI", Decimals: 18}

	snaps := [3]*pricingDomain.PriceSnapshot{
		mustSnapshot(t, testPool("0xaa", pricingDomain.DexUniswapV2, testWETH, testUSDC), "2000"),
		mustSnapshot(t, testPool("0xbb", pricingDomain.DexUniswapV2, testWBTC, other), "31000"),
		mustSnapshot(t, testPool("0xcc", pricingDomain.DexSushiSwap, testWBTC, other), "31100"),
	}

	if _, err := TriangularPath(snaps, testUSDC); err == nil {
		t.Fatal("expected error for unclosable loop")
	}
}
