// Package infra contains operator-facing adapters for the execution
// context.
package infra

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
)

// ConsoleReporter implements Reporter for CLI output.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a new ConsoleReporter.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

func (r *ConsoleReporter) stamp() string {
	return time.Now().Format("15:04:05")
}

// ReportSubmitted outputs a submission line.
func (r *ConsoleReporter) ReportSubmitted(hash common.Hash, prepared *domain.PreparedTransaction) {
	fmt.Fprintf(r.out, "[%s] SUBMITTED %s nonce=%d\n", r.stamp(), hash.Hex(), prepared.Nonce)
}

// ReportResult outputs the terminal outcome of a submission.
func (r *ConsoleReporter) ReportResult(result *domain.ExecutionResult) {
	switch result.Status {
	case domain.StatusConfirmed:
		fmt.Fprintf(r.out, "[%s] CONFIRMED %s gas=%d cost=%s\n",
			r.stamp(), result.Hash.Hex(), result.GasUsed, result.GasCost.StringFixed(9))
	case domain.StatusReverted:
		fmt.Fprintf(r.out, "[%s] REVERTED %s reason=%q\n",
			r.stamp(), result.Hash.Hex(), result.RevertReason)
	default:
		fmt.Fprintf(r.out, "[%s] FAILED %s error=%q\n",
			r.stamp(), result.Hash.Hex(), result.Error)
	}
}

// ReportProfit outputs a realized profit line.
func (r *ConsoleReporter) ReportProfit(record *domain.ProfitRecord) {
	fmt.Fprintf(r.out, "[%s] PROFIT %s token=%s amount=%s\n",
		r.stamp(), record.Hash.Hex(), record.Token.Hex(), record.Profit.String())
}

// ReportPaused outputs the breaker trip.
func (r *ConsoleReporter) ReportPaused(reason string, failures int) {
	fmt.Fprintf(r.out, "[%s] EXECUTION PAUSED: %s (failures=%d)\n", r.stamp(), reason, failures)
}
