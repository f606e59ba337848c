package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/ndmikkelsen/flashloaner/business/arbitrage/domain"
	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
)

// GasBreakdown is a route gas estimate in base token units.
type GasBreakdown struct {
	GasCost decimal.Decimal
	DataFee decimal.Decimal
}

// GasEstimator prices the gas of a route with the given number of
// swaps. Implementations may consult live fee data; the analyzer falls
// back to the static model when no estimator is configured.
type GasEstimator interface {
	Estimate(ctx context.Context, steps int) (GasBreakdown, error)
}

// PriceSource exposes the monitor state the analyzer needs: staleness
// gating and the fresh snapshot set for multi-hop search.
type PriceSource interface {
	IsStale(pool common.Address) bool
	Snapshots() []*pricingDomain.PriceSnapshot
}

// Reporter renders analysis output for an operator, either as plain
// console lines or a terminal dashboard.
type Reporter interface {
	Start(ctx context.Context) error
	ReportOpportunity(opp *domain.Opportunity)
	ReportRejection(rej *domain.Rejection)
	UpdatePrice(snap *pricingDomain.PriceSnapshot)
	UpdatePoolHealth(pool *pricingDomain.PoolDescriptor, stale bool)
	UpdateConnection(state string)
	Stop() error
}
