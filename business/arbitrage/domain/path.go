// Package domain contains the core domain types for the arbitrage context.
package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
)

// SwapStep is one hop of an arbitrage route. Price is quoted as
// TokenOut units per TokenIn unit at the time the route was built.
type SwapStep struct {
	Dex      pricingDomain.DexKind
	Pool     common.Address
	TokenIn  pricingDomain.Token
	TokenOut pricingDomain.Token
	Price    decimal.Decimal
	FeeTier  int
	BinStep  int
}

// SwapPath is a closed route that starts and ends in the base token,
// the token the flash loan is denominated in.
type SwapPath struct {
	Steps     []SwapStep
	BaseToken pricingDomain.Token
}

// Validate checks that the path is a closed loop over the base token
// with contiguous hops.
func (p *SwapPath) Validate() error {
	if len(p.Steps) < 2 {
		return apperror.New(apperror.CodePathConstructionFailed,
			apperror.WithContext("path needs at least two steps"))
	}
	if p.Steps[0].TokenIn.Address != p.BaseToken.Address {
		return apperror.New(apperror.CodePathConstructionFailed,
			apperror.WithContext("path must start in the base token"))
	}
	if p.Steps[len(p.Steps)-1].TokenOut.Address != p.BaseToken.Address {
		return apperror.New(apperror.CodePathConstructionFailed,
			apperror.WithContext("path must end in the base token"))
	}
	for i := 1; i < len(p.Steps); i++ {
		if p.Steps[i].TokenIn.Address != p.Steps[i-1].TokenOut.Address {
			return apperror.New(apperror.CodePathConstructionFailed,
				apperror.WithContext(fmt.Sprintf("step %d input does not match step %d output", i, i-1)))
		}
	}
	for i, s := range p.Steps {
		if !s.Price.IsPositive() {
			return apperror.New(apperror.CodePathConstructionFailed,
				apperror.WithContext(fmt.Sprintf("step %d has non-positive price", i)))
		}
	}
	return nil
}

// GrossReturn chains the step prices over an input amount and returns
// the terminal base-token amount, before any costs.
func (p *SwapPath) GrossReturn(input decimal.Decimal) decimal.Decimal {
	out := input
	for _, step := range p.Steps {
		out = out.Mul(step.Price)
	}
	return out
}

// GrossProfit is GrossReturn minus the input.
func (p *SwapPath) GrossProfit(input decimal.Decimal) decimal.Decimal {
	return p.GrossReturn(input).Sub(input)
}

// Label renders the route as token symbols, e.g. "USDC>WETH>USDC".
func (p *SwapPath) Label() string {
	if len(p.Steps) == 0 {
		return ""
	}
	label := p.Steps[0].TokenIn.Symbol
	for _, s := range p.Steps {
		label += ">" + s.TokenOut.Symbol
	}
	return label
}

// TwoLegPath builds a buy-low/sell-high loop from a price delta. The
// loan is taken in token1 (the quote token): leg one buys token0 at
// the cheaper pool, leg two sells it at the richer pool.
func TwoLegPath(delta *pricingDomain.PriceDelta) (*SwapPath, error) {
	low, high := delta.Low, delta.High
	base := low.Pool.Token1

	path := &SwapPath{
		BaseToken: base,
		Steps: []SwapStep{
			{
				Dex:      low.Pool.Kind,
				Pool:     low.Pool.Address,
				TokenIn:  low.Pool.Token1,
				TokenOut: low.Pool.Token0,
				Price:    low.InversePrice,
				FeeTier:  low.Pool.FeeTier,
				BinStep:  low.Pool.BinStep,
			},
			{
				Dex:      high.Pool.Kind,
				Pool:     high.Pool.Address,
				TokenIn:  high.Pool.Token0,
				TokenOut: high.Pool.Token1,
				Price:    high.Price,
				FeeTier:  high.Pool.FeeTier,
				BinStep:  high.Pool.BinStep,
			},
		},
	}

	if err := path.Validate(); err != nil {
		return nil, err
	}
	return path, nil
}

// directedStep reads a snapshot in one of its two directions.
func directedStep(snap *pricingDomain.PriceSnapshot, zeroToOne bool) SwapStep {
	pool := snap.Pool
	step := SwapStep{
		Dex:     pool.Kind,
		Pool:    pool.Address,
		FeeTier: pool.FeeTier,
		BinStep: pool.BinStep,
	}
	if zeroToOne {
		step.TokenIn = pool.Token0
		step.TokenOut = pool.Token1
		step.Price = snap.Price
	} else {
		step.TokenIn = pool.Token1
		step.TokenOut = pool.Token0
		step.Price = snap.InversePrice
	}
	return step
}

// TriangularPath searches the six orderings and eight orientations of
// three snapshots for a closed loop starting and ending in base.
func TriangularPath(snaps [3]*pricingDomain.PriceSnapshot, base pricingDomain.Token) (*SwapPath, error) {
	orders := [][3]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	one := decimal.NewFromInt(1)
	var best *SwapPath
	var bestReturn decimal.Decimal

	for _, order := range orders {
		for mask := 0; mask < 8; mask++ {
			steps := [3]SwapStep{
				directedStep(snaps[order[0]], mask&1 != 0),
				directedStep(snaps[order[1]], mask&2 != 0),
				directedStep(snaps[order[2]], mask&4 != 0),
			}

			if steps[0].TokenIn.Address != base.Address ||
				steps[2].TokenOut.Address != base.Address ||
				steps[0].TokenOut.Address != steps[1].TokenIn.Address ||
				steps[1].TokenOut.Address != steps[2].TokenIn.Address {
				continue
			}

			path := &SwapPath{
				BaseToken: base,
				Steps:     steps[:],
			}
			if err := path.Validate(); err != nil {
				continue
			}
			// Both loop directions close; keep the profitable one.
			if ret := path.GrossReturn(one); best == nil || ret.GreaterThan(bestReturn) {
				best = path
				bestReturn = ret
			}
		}
	}

	if best == nil {
		return nil, apperror.New(apperror.CodePathConstructionFailed,
			apperror.WithContext("no closed triangular loop over base token"))
	}
	return best, nil
}
