package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	testWETH = Token{
		Address:  common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Symbol:   "WETH",
		Decimals: 18,
	}
	testUSDC = Token{
		Address:  common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Symbol:   "USDC",
		Decimals: 6,
	}
)

func testPool(name string, kind DexKind, addr string) *PoolDescriptor {
	return &PoolDescriptor{
		Name:    name,
		Kind:    kind,
		Address: common.HexToAddress(addr),
		Token0:  testWETH,
		Token1:  testUSDC,
	}
}

func TestNewPriceSnapshot_InverseIsReciprocal(t *testing.T) {
	pool := testPool("v2", DexUniswapV2, "0x0000000000000000000000000000000000000001")

	tests := []string{"2000", "0.0005", "1", "1234.567891234567891234"}
	one := decimal.NewFromInt(1)
	tolerance := decimal.RequireFromString("0.000000000000000001")

	for _, priceStr := range tests {
		t.Run(priceStr, func(t *testing.T) {
			price := decimal.RequireFromString(priceStr)
			snap, err := NewPriceSnapshot(pool, price, 100)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			product := snap.Price.Mul(snap.InversePrice)
			if product.Sub(one).Abs().GreaterThan(tolerance) {
				t.Errorf("price * inverse = %s, want 1 within %s", product, tolerance)
			}
		})
	}
}

func TestNewPriceSnapshot_RejectsNonPositive(t *testing.T) {
	pool := testPool("v2", DexUniswapV2, "0x0000000000000000000000000000000000000001")

	for _, priceStr := range []string{"0", "-1"} {
		if _, err := NewPriceSnapshot(pool, decimal.RequireFromString(priceStr), 100); err == nil {
			t.Errorf("expected error for price %s", priceStr)
		}
	}
}

func TestNewPriceDelta(t *testing.T) {
	poolA := testPool("v2", DexUniswapV2, "0x0000000000000000000000000000000000000001")
	poolB := testPool("v3", DexUniswapV3, "0x0000000000000000000000000000000000000002")

	tests := []struct {
		name       string
		priceA     string
		priceB     string
		wantSpread string
	}{
		{
			name:       "five percent spread",
			priceA:     "2000",
			priceB:     "2100",
			wantSpread: "0.05",
		},
		{
			name:       "one percent spread",
			priceA:     "2000",
			priceB:     "2020",
			wantSpread: "0.01",
		},
		{
			name:       "order independent",
			priceA:     "2100",
			priceB:     "2000",
			wantSpread: "0.05",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapA, err := NewPriceSnapshot(poolA, decimal.RequireFromString(tt.priceA), 100)
			if err != nil {
				t.Fatalf("snapshot a: %v", err)
			}
			snapB, err := NewPriceSnapshot(poolB, decimal.RequireFromString(tt.priceB), 100)
			if err != nil {
				t.Fatalf("snapshot b: %v", err)
			}

			delta, err := NewPriceDelta(snapA, snapB)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			want := decimal.RequireFromString(tt.wantSpread)
			if !delta.Spread.Equal(want) {
				t.Errorf("spread = %s, want %s", delta.Spread, want)
			}
			if delta.Low.Price.GreaterThan(delta.High.Price) {
				t.Error("low snapshot has higher price than high snapshot")
			}
		})
	}
}

func TestNewPriceDelta_SamePoolRejected(t *testing.T) {
	pool := testPool("v2", DexUniswapV2, "0x0000000000000000000000000000000000000001")

	a, _ := NewPriceSnapshot(pool, decimal.RequireFromString("2000"), 100)
	b, _ := NewPriceSnapshot(pool, decimal.RequireFromString("2010"), 100)

	if _, err := NewPriceDelta(a, b); err == nil {
		t.Fatal("expected error for delta across the same pool")
	}
}

func TestNewPriceDelta_DifferentPairsRejected(t *testing.T) {
	poolA := testPool("v2", DexUniswapV2, "0x0000000000000000000000000000000000000001")

	otherToken := Token{
		Address:  common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
		Symbol:   "DAI",
		Decimals: 18,
	}
	poolB := &PoolDescriptor{
		Name:    "other",
		Kind:    DexUniswapV2,
		Address: common.HexToAddress("0x0000000000000000000000000000000000000003"),
		Token0:  testWETH,
		Token1:  otherToken,
	}

	a, _ := NewPriceSnapshot(poolA, decimal.RequireFromString("2000"), 100)
	b, _ := NewPriceSnapshot(poolB, decimal.RequireFromString("2100"), 100)

	if _, err := NewPriceDelta(a, b); err == nil {
		t.Fatal("expected error for snapshots of different pairs")
	}
}

func TestNewPriceDelta_FlippedOrientationRejected(t *testing.T) {
	poolA := testPool("v2", DexUniswapV2, "0x0000000000000000000000000000000000000001")

	// Same pair, but token0 and token1 swapped: prices are reciprocal
	// units and must not be compared.
	poolB := &PoolDescriptor{
		Name:    "flipped",
		Kind:    DexSushiSwap,
		Address: common.HexToAddress("0x0000000000000000000000000000000000000004"),
		Token0:  testUSDC,
		Token1:  testWETH,
	}

	a, _ := NewPriceSnapshot(poolA, decimal.RequireFromString("2000"), 100)
	b, _ := NewPriceSnapshot(poolB, decimal.RequireFromString("0.0005"), 100)

	if _, err := NewPriceDelta(a, b); err == nil {
		t.Fatal("expected error for snapshots with flipped token orientation")
	}
}

func TestPairKey_OrderIndependent(t *testing.T) {
	k1 := NewPairKey(testWETH.Address, testUSDC.Address)
	k2 := NewPairKey(testUSDC.Address, testWETH.Address)
	if k1 != k2 {
		t.Errorf("pair keys differ by argument order: %s vs %s", k1, k2)
	}
}

func TestPriceDelta_Exceeds(t *testing.T) {
	poolA := testPool("v2", DexUniswapV2, "0x0000000000000000000000000000000000000001")
	poolB := testPool("v3", DexUniswapV3, "0x0000000000000000000000000000000000000002")

	a, _ := NewPriceSnapshot(poolA, decimal.RequireFromString("2000"), 100)
	b, _ := NewPriceSnapshot(poolB, decimal.RequireFromString("2020"), 100)
	delta, err := NewPriceDelta(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !delta.Exceeds(decimal.RequireFromString("0.01")) {
		t.Error("1% spread should meet a 1% threshold")
	}
	if delta.Exceeds(decimal.RequireFromString("0.011")) {
		t.Error("1% spread should not exceed a 1.1% threshold")
	}
}
