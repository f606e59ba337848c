package app

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
)

// Reporter renders the submission lifecycle for an operator, either as
// plain console lines or a terminal dashboard.
type Reporter interface {
	ReportSubmitted(hash common.Hash, prepared *domain.PreparedTransaction)
	ReportResult(result *domain.ExecutionResult)
	ReportProfit(record *domain.ProfitRecord)
	ReportPaused(reason string, failures int)
}
