// Package domain contains the core domain types for the blockchain context.
package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// FeeSuggestion carries the current EIP-1559 fee market view.
type FeeSuggestion struct {
	BaseFee   *big.Int // wei, from the latest header
	TipCap    *big.Int // wei, suggested priority fee
	Timestamp time.Time
}

// NewFeeSuggestion creates a FeeSuggestion stamped with the current time.
func NewFeeSuggestion(baseFee, tipCap *big.Int) *FeeSuggestion {
	return &FeeSuggestion{
		BaseFee:   baseFee,
		TipCap:    tipCap,
		Timestamp: time.Now(),
	}
}

// BaseFeeGwei returns the base fee in gwei.
func (f *FeeSuggestion) BaseFeeGwei() decimal.Decimal {
	return weiToGwei(f.BaseFee)
}

// TipCapGwei returns the priority fee in gwei.
func (f *FeeSuggestion) TipCapGwei() decimal.Decimal {
	return weiToGwei(f.TipCap)
}

func weiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -9)
}
