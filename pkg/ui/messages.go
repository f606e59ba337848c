// Package ui provides the Bubble Tea dashboard for the arbitrage bot.
package ui

import (
	arbitrageDomain "github.com/ndmikkelsen/flashloaner/business/arbitrage/domain"
	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
)

// Message types for dashboard updates

// PriceMsg carries a fresh pool price observation.
type PriceMsg struct {
	Snapshot *pricingDomain.PriceSnapshot
}

// PoolHealthMsg signals a pool staleness transition.
type PoolHealthMsg struct {
	Label string
	Stale bool
}

// OpportunityMsg is sent when a viable opportunity is found.
type OpportunityMsg struct {
	Opportunity *arbitrageDomain.Opportunity
}

// RejectionMsg is sent when a candidate fails the profit floor.
type RejectionMsg struct {
	Rejection *arbitrageDomain.Rejection
}

// ConnectionMsg reports the chain watcher's connection state.
type ConnectionMsg struct {
	State string
}

// ExecutionMsg carries a submission lifecycle transition.
type ExecutionMsg struct {
	Status string // submitted, confirmed, reverted, failed, paused
	Hash   string
	Reason string
}

// ProfitMsg carries a realized on-chain profit.
type ProfitMsg struct {
	Token  string
	Amount string // raw token units
}

// TickMsg drives periodic redraws.
type TickMsg struct{}
