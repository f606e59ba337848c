package infra

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
	"github.com/ndmikkelsen/flashloaner/pkg/ui"
)

// TUIReporter implements Reporter on the Bubble Tea dashboard. The
// dashboard program itself is owned by the arbitrage reporter; this
// adapter only sends messages into it.
type TUIReporter struct{}

// NewTUIReporter creates a TUIReporter.
func NewTUIReporter() *TUIReporter {
	return &TUIReporter{}
}

// ReportSubmitted forwards a submission to the dashboard.
func (r *TUIReporter) ReportSubmitted(hash common.Hash, prepared *domain.PreparedTransaction) {
	ui.Send(ui.ExecutionMsg{Status: string(domain.StatusSubmitted), Hash: hash.Hex()})
}

// ReportResult forwards a settled outcome to the dashboard.
func (r *TUIReporter) ReportResult(result *domain.ExecutionResult) {
	ui.Send(ui.ExecutionMsg{
		Status: string(result.Status),
		Hash:   result.Hash.Hex(),
		Reason: result.RevertReason,
	})
}

// ReportProfit forwards a realized profit to the dashboard.
func (r *TUIReporter) ReportProfit(record *domain.ProfitRecord) {
	ui.Send(ui.ProfitMsg{Token: record.Token.Hex(), Amount: record.Profit.String()})
}

// ReportPaused forwards the breaker trip to the dashboard.
func (r *TUIReporter) ReportPaused(reason string, failures int) {
	ui.Send(ui.ExecutionMsg{Status: "paused", Reason: reason})
}
