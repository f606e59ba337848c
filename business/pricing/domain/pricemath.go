package domain

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ndmikkelsen/flashloaner/internal/apperror"
)

// pricePrecision is the number of decimal places carried through price
// divisions. It must cover the largest possible decimals gap between
// two ERC-20 tokens (18) with room for the division itself.
const pricePrecision = 36

// q192 is 2^192, the divisor for squared sqrtPriceX96 values.
var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// SpotPrice computes the pool's mid price (token1 per token0, adjusted
// for token decimals) from a raw state observation.
func SpotPrice(kind DexKind, state *PoolState, dec0, dec1 uint8) (decimal.Decimal, error) {
	switch kind {
	case DexUniswapV2, DexSushiSwap, DexTraderJoeLB:
		return PriceFromReserves(state.Reserve0, state.Reserve1, dec0, dec1)
	case DexUniswapV3:
		return PriceFromSqrtPriceX96(state.SqrtPriceX96, dec0, dec1)
	default:
		return decimal.Zero, apperror.New(apperror.CodeUnsupportedDex,
			apperror.WithContext(kind.String()))
	}
}

// PriceFromReserves computes token1-per-token0 from pair reserves:
// (reserve1 / 10^dec1) / (reserve0 / 10^dec0).
func PriceFromReserves(reserve0, reserve1 *big.Int, dec0, dec1 uint8) (decimal.Decimal, error) {
	if reserve0 == nil || reserve1 == nil ||
		reserve0.Sign() <= 0 || reserve1.Sign() <= 0 {
		return decimal.Zero, apperror.New(apperror.CodeInvalidReserves,
			apperror.WithContext("reserves must be positive"))
	}

	r0 := decimal.NewFromBigInt(reserve0, -int32(dec0))
	r1 := decimal.NewFromBigInt(reserve1, -int32(dec1))
	return r1.DivRound(r0, pricePrecision), nil
}

// PriceFromSqrtPriceX96 computes token1-per-token0 from a Uniswap V3
// slot0 sqrtPriceX96 value: (sqrtPriceX96^2 / 2^192) * 10^(dec0-dec1).
func PriceFromSqrtPriceX96(sqrtPriceX96 *big.Int, dec0, dec1 uint8) (decimal.Decimal, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, apperror.New(apperror.CodeInvalidReserves,
			apperror.WithContext("sqrtPriceX96 must be positive"))
	}

	// Square in big.Int space, divide once in decimal space.
	squared := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	ratio := decimal.NewFromBigInt(squared, 0).
		DivRound(decimal.NewFromBigInt(q192, 0), pricePrecision)

	return ratio.Shift(int32(dec0) - int32(dec1)), nil
}
