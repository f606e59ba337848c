package app

import (
	"github.com/ndmikkelsen/flashloaner/business/arbitrage/domain"
)

// Event is the union of notifications the analyzer publishes.
type Event interface {
	isEvent()
}

// OpportunityFound is emitted when a costed route clears the net
// profit floor.
type OpportunityFound struct {
	Opportunity *domain.Opportunity
}

// OpportunityRejected is emitted when a candidate route is discarded.
type OpportunityRejected struct {
	Rejection *domain.Rejection
}

// AnalysisError is emitted when a delta could not be analyzed at all,
// as opposed to a route that was analyzed and rejected.
type AnalysisError struct {
	Err error
}

func (OpportunityFound) isEvent()    {}
func (OpportunityRejected) isEvent() {}
func (AnalysisError) isEvent()       {}
