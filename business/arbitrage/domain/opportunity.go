package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
)

// Opportunity is a fully costed arbitrage candidate that cleared the
// profit floor. Delta is the price divergence that triggered the
// analysis; for triangular routes it names the pair that started the
// search, not the route itself.
type Opportunity struct {
	ID               string
	Path             *SwapPath
	Delta            *pricingDomain.PriceDelta
	Provider         ProviderQuote
	InputAmount      decimal.Decimal // base token units to borrow
	GrossProfit      decimal.Decimal
	Costs            *CostEstimate
	NetProfit        decimal.Decimal
	NetProfitPercent decimal.Decimal // net profit relative to input, in percent
	BlockNumber      uint64
	DetectedAt       time.Time
}

// NewOpportunity assembles an opportunity with a fresh ID.
func NewOpportunity(path *SwapPath, delta *pricingDomain.PriceDelta, provider ProviderQuote, input, gross decimal.Decimal, costs *CostEstimate, blockNumber uint64) *Opportunity {
	net := gross.Sub(costs.Total)

	percent := decimal.Zero
	if input.IsPositive() {
		percent = net.Div(input).Mul(decimal.NewFromInt(100))
	}

	return &Opportunity{
		ID:               uuid.NewString(),
		Path:             path,
		Delta:            delta,
		Provider:         provider,
		InputAmount:      input,
		GrossProfit:      gross,
		Costs:            costs,
		NetProfit:        net,
		NetProfitPercent: percent,
		BlockNumber:      blockNumber,
		DetectedAt:       time.Now(),
	}
}

// Viable reports whether net profit clears the floor.
func (o *Opportunity) Viable(minNetProfit decimal.Decimal) bool {
	return o.NetProfit.GreaterThanOrEqual(minNetProfit)
}

// Rejection explains why a candidate route was discarded. Path is nil
// when the delta was dropped before a route could be built, so
// consumers label rejections through RouteLabel. ShortfallPercent is
// the distance to the profit floor relative to the input amount; it is
// zero for rejections that never reached costing.
type Rejection struct {
	Path             *SwapPath
	Delta            *pricingDomain.PriceDelta
	Reason           string
	GrossProfit      decimal.Decimal
	NetProfit        decimal.Decimal
	ShortfallPercent decimal.Decimal
	Timestamp        time.Time
}

// RouteLabel names the rejected route, falling back to the delta's
// pools when no path was built.
func (r *Rejection) RouteLabel() string {
	if r.Path != nil {
		return r.Path.Label()
	}
	if r.Delta != nil {
		return r.Delta.Low.Pool.Label() + " -> " + r.Delta.High.Pool.Label()
	}
	return "unknown route"
}
