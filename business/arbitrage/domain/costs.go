package domain

import (
	"github.com/shopspring/decimal"

	"github.com/ndmikkelsen/flashloaner/internal/apperror"
)

// ProviderQuote is one flash loan provider's fee rate.
type ProviderQuote struct {
	Name string
	Fee  decimal.Decimal // fraction of the borrowed amount
}

// CostEstimate is the full cost side of an opportunity, denominated in
// the base token. Total is always the sum of the components.
type CostEstimate struct {
	FlashLoanFee decimal.Decimal
	GasCost      decimal.Decimal
	DataFee      decimal.Decimal // L1 data fee on rollups, zero elsewhere
	Slippage     decimal.Decimal
	Total        decimal.Decimal
}

// NewCostEstimate sums the components so the total can never drift
// from them.
func NewCostEstimate(flashLoanFee, gasCost, dataFee, slippage decimal.Decimal) *CostEstimate {
	return &CostEstimate{
		FlashLoanFee: flashLoanFee,
		GasCost:      gasCost,
		DataFee:      dataFee,
		Slippage:     slippage,
		Total:        flashLoanFee.Add(gasCost).Add(dataFee).Add(slippage),
	}
}

// BestFlashLoanFee picks the cheapest provider for the borrow amount.
func BestFlashLoanFee(input decimal.Decimal, providers []ProviderQuote) (ProviderQuote, decimal.Decimal, error) {
	if len(providers) == 0 {
		return ProviderQuote{}, decimal.Zero, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no flash loan providers configured"))
	}

	best := providers[0]
	for _, p := range providers[1:] {
		if p.Fee.LessThan(best.Fee) {
			best = p
		}
	}
	return best, input.Mul(best.Fee), nil
}

// EstimateSlippage bounds the compounded price impact of a route:
// input * (1 - (1 - maxSlippage)^steps).
func EstimateSlippage(input, maxSlippage decimal.Decimal, steps int) decimal.Decimal {
	if steps <= 0 || !maxSlippage.IsPositive() {
		return decimal.Zero
	}

	one := decimal.NewFromInt(1)
	retained := one.Sub(maxSlippage)
	compounded := retained.Pow(decimal.NewFromInt(int64(steps)))
	return input.Mul(one.Sub(compounded))
}

// StaticGasCost prices a route's gas with the configured static model:
// (baseGas + perSwapGas * steps) * gasPrice, converted to base token
// units via the native token price.
func StaticGasCost(steps int, baseGas, perSwapGas uint64, gasPriceGwei, nativePriceBase decimal.Decimal) decimal.Decimal {
	gasUnits := decimal.NewFromUint64(baseGas + perSwapGas*uint64(steps))
	nativeCost := gasUnits.Mul(gasPriceGwei).Shift(-9) // gwei -> native units
	return nativeCost.Mul(nativePriceBase)
}
