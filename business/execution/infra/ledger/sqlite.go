// Package ledger records settled executions and realized profits in a
// local SQLite database.
package ledger

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	hash          TEXT NOT NULL,
	status        TEXT NOT NULL,
	gas_used      INTEGER NOT NULL,
	gas_cost      TEXT NOT NULL,
	revert_reason TEXT,
	error         TEXT,
	duration_ms   INTEGER NOT NULL,
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS profits (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	opportunity_id TEXT NOT NULL,
	hash           TEXT NOT NULL,
	token          TEXT NOT NULL,
	profit         TEXT NOT NULL,
	block_number   INTEGER NOT NULL,
	created_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_hash ON executions(hash);
CREATE INDEX IF NOT EXISTS idx_profits_opportunity ON profits(opportunity_id);
`

// SQLiteLedger implements the engine's ledger over a local database
// file.
type SQLiteLedger struct {
	db *sql.DB
}

// Open opens or creates the ledger database and applies the schema.
func Open(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithCause(err))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithCause(err))
	}
	return &SQLiteLedger{db: db}, nil
}

// RecordExecution appends one settled execution.
func (l *SQLiteLedger) RecordExecution(ctx context.Context, result *domain.ExecutionResult) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO executions (hash, status, gas_used, gas_cost, revert_reason, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.Hash.Hex(),
		string(result.Status),
		result.GasUsed,
		result.GasCost.String(),
		result.RevertReason,
		result.Error,
		result.Duration.Milliseconds(),
		time.Now().UTC(),
	)
	if err != nil {
		return apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithCause(err))
	}
	return nil
}

// RecordProfit appends one realized profit.
func (l *SQLiteLedger) RecordProfit(ctx context.Context, record *domain.ProfitRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO profits (opportunity_id, hash, token, profit, block_number, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.OpportunityID,
		record.Hash.Hex(),
		record.Token.Hex(),
		record.Profit.String(),
		record.BlockNumber,
		record.Timestamp.UTC(),
	)
	if err != nil {
		return apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithCause(err))
	}
	return nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
