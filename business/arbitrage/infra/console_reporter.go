// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ndmikkelsen/flashloaner/business/arbitrage/domain"
	pricingDomain "github.com/ndmikkelsen/flashloaner/business/pricing/domain"
)

// ConsoleReporter implements Reporter for CLI output.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a new ConsoleReporter.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{
		out: os.Stdout,
	}
}

// Start initializes the console reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	fmt.Fprintln(r.out, "Flash Loan Arbitrage Started")
	fmt.Fprintln(r.out, "============================")
	return nil
}

// ReportOpportunity outputs a viable opportunity to the console.
func (r *ConsoleReporter) ReportOpportunity(opp *domain.Opportunity) {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintln(r.out, "ARBITRAGE OPPORTUNITY DETECTED")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintf(r.out, "ID:             %s\n", opp.ID)
	fmt.Fprintf(r.out, "Block:          #%d\n", opp.BlockNumber)
	fmt.Fprintf(r.out, "Timestamp:      %s\n", opp.DetectedAt.Format(time.RFC3339))
	fmt.Fprintf(r.out, "Route:          %s\n", opp.Path.Label())
	fmt.Fprintf(r.out, "Provider:       %s\n", opp.Provider.Name)
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "TRADE")
	fmt.Fprintf(r.out, "  Borrow:         %s %s\n", opp.InputAmount.StringFixed(4), opp.Path.BaseToken.Symbol)
	fmt.Fprintf(r.out, "  Gross Profit:   %s\n", opp.GrossProfit.StringFixed(4))
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "COSTS")
	fmt.Fprintf(r.out, "  Flash Loan Fee: %s\n", opp.Costs.FlashLoanFee.StringFixed(4))
	fmt.Fprintf(r.out, "  Gas:            %s\n", opp.Costs.GasCost.StringFixed(4))
	if opp.Costs.DataFee.IsPositive() {
		fmt.Fprintf(r.out, "  L1 Data Fee:    %s\n", opp.Costs.DataFee.StringFixed(4))
	}
	fmt.Fprintf(r.out, "  Slippage:       %s\n", opp.Costs.Slippage.StringFixed(4))
	fmt.Fprintf(r.out, "  Total:          %s\n", opp.Costs.Total.StringFixed(4))
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintf(r.out, "NET PROFIT:       %s %s\n", opp.NetProfit.StringFixed(4), opp.Path.BaseToken.Symbol)
	fmt.Fprintln(r.out, "================================================================================")
}

// ReportRejection is a no-op on the console; rejections only show in
// the dashboard.
func (r *ConsoleReporter) ReportRejection(rej *domain.Rejection) {
}

// UpdatePrice outputs nothing; the console only reports opportunities.
func (r *ConsoleReporter) UpdatePrice(snap *pricingDomain.PriceSnapshot) {
}

// UpdatePoolHealth outputs pool staleness transitions.
func (r *ConsoleReporter) UpdatePoolHealth(pool *pricingDomain.PoolDescriptor, stale bool) {
	status := "recovered"
	if stale {
		status = "STALE"
	}
	fmt.Fprintf(r.out, "[%s] %s: %s\n", time.Now().Format("15:04:05"), pool.Label(), status)
}

// UpdateConnection outputs nothing; connection state only shows in the
// dashboard.
func (r *ConsoleReporter) UpdateConnection(state string) {
}

// Stop gracefully shuts down the console reporter.
func (r *ConsoleReporter) Stop() error {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "Flash Loan Arbitrage Stopped")
	return nil
}
