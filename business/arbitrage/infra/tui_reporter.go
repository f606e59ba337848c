package infra

import (
	"context"

	"github.com/ndmikkelsen/flashloaner/business/arbitrage/domain"
	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
	"github.com/ndmikkelsen/flashloaner/pkg/ui"
)

// TUIReporter implements Reporter on the Bubble Tea dashboard.
type TUIReporter struct {
	done chan error
}

// NewTUIReporter creates a TUIReporter.
func NewTUIReporter() *TUIReporter {
	return &TUIReporter{done: make(chan error, 1)}
}

// Start launches the dashboard in the background. The program owns the
// terminal until Stop.
func (r *TUIReporter) Start(ctx context.Context) error {
	go func() {
		r.done <- ui.Run()
	}()
	return nil
}

// ReportOpportunity forwards a viable opportunity to the dashboard.
func (r *TUIReporter) ReportOpportunity(opp *domain.Opportunity) {
	ui.Send(ui.OpportunityMsg{Opportunity: opp})
}

// ReportRejection forwards a rejected candidate to the dashboard.
func (r *TUIReporter) ReportRejection(rej *domain.Rejection) {
	ui.Send(ui.RejectionMsg{Rejection: rej})
}

// UpdatePrice forwards a fresh snapshot to the dashboard.
func (r *TUIReporter) UpdatePrice(snap *pricingDomain.PriceSnapshot) {
	ui.Send(ui.PriceMsg{Snapshot: snap})
}

// UpdatePoolHealth forwards a staleness transition to the dashboard.
func (r *TUIReporter) UpdatePoolHealth(pool *pricingDomain.PoolDescriptor, stale bool) {
	ui.Send(ui.PoolHealthMsg{Label: pool.Label(), Stale: stale})
}

// UpdateConnection forwards the chain connection state to the
// dashboard.
func (r *TUIReporter) UpdateConnection(state string) {
	ui.Send(ui.ConnectionMsg{State: state})
}

// Stop shuts the dashboard down and waits for the terminal to be
// restored.
func (r *TUIReporter) Stop() error {
	ui.Quit()
	return <-r.done
}
