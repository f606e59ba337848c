package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndmikkelsen/flashloaner/internal/apperror"
)

// PriceSnapshot is one observation of a pool's mid price. Price is
// token1 per token0; InversePrice is its exact reciprocal so either
// trade direction can be read without re-dividing.
type PriceSnapshot struct {
	Pool         *PoolDescriptor
	Price        decimal.Decimal
	InversePrice decimal.Decimal
	BlockNumber  uint64
	Timestamp    time.Time
}

// NewPriceSnapshot builds a snapshot and derives the inverse price.
func NewPriceSnapshot(pool *PoolDescriptor, price decimal.Decimal, blockNumber uint64) (*PriceSnapshot, error) {
	if !price.IsPositive() {
		return nil, apperror.New(apperror.CodePriceCalculationError,
			apperror.WithContext("price must be positive"))
	}

	return &PriceSnapshot{
		Pool:         pool,
		Price:        price,
		InversePrice: decimal.NewFromInt(1).DivRound(price, pricePrecision),
		BlockNumber:  blockNumber,
		Timestamp:    time.Now(),
	}, nil
}

// PriceDelta is a detected divergence between two pools quoting the
// same pair. Low always holds the cheaper snapshot.
type PriceDelta struct {
	Pair      PairKey
	Low       *PriceSnapshot
	High      *PriceSnapshot
	Spread    decimal.Decimal // (high - low) / low, as a fraction
	Timestamp time.Time
}

// NewPriceDelta orders two snapshots of the same pair and computes the
// spread between them. Both pools must quote in the same orientation;
// a pool with token0 and token1 swapped prices the pair in reciprocal
// units and cannot be compared directly.
func NewPriceDelta(a, b *PriceSnapshot) (*PriceDelta, error) {
	if a.Pool.Pair() != b.Pool.Pair() {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("snapshots are for different pairs"))
	}
	if a.Pool.Token0.Address != b.Pool.Token0.Address {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("snapshots have mismatched token orientation"))
	}
	if a.Pool.Address == b.Pool.Address {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("snapshots are from the same pool"))
	}

	low, high := a, b
	if low.Price.GreaterThan(high.Price) {
		low, high = high, low
	}

	spread := high.Price.Sub(low.Price).DivRound(low.Price, pricePrecision)

	return &PriceDelta{
		Pair:      a.Pool.Pair(),
		Low:       low,
		High:      high,
		Spread:    spread,
		Timestamp: time.Now(),
	}, nil
}

// Exceeds reports whether the spread is at or above threshold.
func (d *PriceDelta) Exceeds(threshold decimal.Decimal) bool {
	return d.Spread.GreaterThanOrEqual(threshold)
}

// SpreadBps returns the spread in basis points.
func (d *PriceDelta) SpreadBps() decimal.Decimal {
	return d.Spread.Mul(decimal.NewFromInt(10000))
}
