package storage

import (
	"context"

	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory)
// and makes testing with mocks straightforward.
type Repository interface {
	StatementRepository
	LedgerRepository
	RunRepository
	Close() error
}

// StatementRepository handles imported statements and their transactions
type StatementRepository interface {
	// SaveStatement stores a statement and all of its transactions atomically
	SaveStatement(ctx context.Context, rec *StatementRecord, txns []BankTransactionRecord) error

	// GetStatement retrieves a statement by ID
	GetStatement(ctx context.Context, id string) (*StatementRecord, error)

	// ListStatements returns statements, newest import first
	ListStatements(ctx context.Context, filter StatementFilter) ([]StatementRecord, error)

	// ListBankTransactions returns a statement's transactions in file order.
	// A zero status returns every transaction.
	ListBankTransactions(ctx context.Context, statementID string, status statement.Status) ([]BankTransactionRecord, error)

	// GetBankTransaction retrieves a bank transaction by ID
	GetBankTransaction(ctx context.Context, id string) (*BankTransactionRecord, error)

	// ResolveBankTransaction moves a PENDING transaction to MATCHED (with
	// ledgerID) or IGNORED (ledgerID empty). Returns ErrNotPending if it was
	// already resolved and ErrLedgerTaken if ledgerID is matched elsewhere.
	ResolveBankTransaction(ctx context.Context, id string, status statement.Status, ledgerID string) error
}

// LedgerRepository handles ledger transactions
type LedgerRepository interface {
	// SaveLedgerTransactions inserts or replaces ledger transactions by ID.
	// It fails with ErrLedgerTaken, storing nothing, if any ID is already
	// matched to a bank transaction.
	SaveLedgerTransactions(ctx context.Context, txns []ledger.Transaction) error

	// GetLedgerTransaction retrieves a ledger transaction by ID
	GetLedgerTransaction(ctx context.Context, id string) (*LedgerRecord, error)

	// ListLedgerTransactions returns ledger transactions in insertion order
	ListLedgerTransactions(ctx context.Context, filter LedgerFilter) ([]LedgerRecord, error)
}

// RunRepository handles reconciliation run history
type RunRepository interface {
	// SaveRun stores a run with its suggestions and returns the run ID
	SaveRun(ctx context.Context, run *ReconciliationRun, suggestions []Suggestion) (int64, error)

	// LatestRun returns the most recent run for a statement
	LatestRun(ctx context.Context, statementID string) (*ReconciliationRun, []Suggestion, error)
}
