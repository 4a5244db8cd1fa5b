package storage

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
)

var (
	// ErrNotFound is returned when a lookup by ID has no row
	ErrNotFound = errors.New("storage: not found")

	// ErrNotPending is returned when a status change targets a bank
	// transaction that has already been matched or ignored
	ErrNotPending = errors.New("storage: bank transaction is not pending")

	// ErrLedgerTaken is returned when a ledger transaction is already
	// confirmed against another bank transaction
	ErrLedgerTaken = errors.New("storage: ledger transaction already matched")
)

// StatementRecord is an imported statement file
type StatementRecord struct {
	ID               string              `json:"id"`
	FileName         string              `json:"file_name,omitempty"`
	FileHash         string              `json:"file_hash"`
	ImportedAt       time.Time           `json:"imported_at"`
	InstitutionID    string              `json:"institution_id"`
	BranchID         string              `json:"branch_id"`
	AccountID        string              `json:"account_id"`
	OpeningBalance   decimal.Decimal     `json:"opening_balance"`
	ClosingBalance   decimal.Decimal     `json:"closing_balance"`
	TransactionCount int                 `json:"transaction_count"`
	Warnings         []statement.Warning `json:"warnings"`
}

// BankTransactionRecord is one stored statement transaction.
// Sequence is the position within its statement, starting at 0.
type BankTransactionRecord struct {
	ID          string `json:"id"`
	StatementID string `json:"statement_id"`
	Sequence    int    `json:"sequence"`
	statement.Transaction
	MatchedLedgerID string    `json:"matched_ledger_id,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LedgerRecord is a stored ledger transaction. MatchedBankID is set once a
// bank transaction has been confirmed against it.
type LedgerRecord struct {
	ledger.Transaction
	CreatedAt     time.Time `json:"created_at"`
	MatchedBankID string    `json:"matched_bank_id,omitempty"`
}

// ReconciliationRun summarizes one matcher pass over a statement
type ReconciliationRun struct {
	ID             int64     `json:"id"`
	StatementID    string    `json:"statement_id"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	Exclusive      bool      `json:"exclusive"`
	Threshold      int       `json:"threshold"`
	BankCount      int       `json:"bank_count"`
	LedgerCount    int       `json:"ledger_count"`
	SuggestedCount int       `json:"suggested_count"`
}

// Suggestion is the matcher's verdict for one bank transaction in a run.
// LedgerTransactionID is empty when nothing reached the threshold.
type Suggestion struct {
	RunID               int64   `json:"run_id"`
	BankTransactionID   string  `json:"bank_transaction_id"`
	LedgerTransactionID string  `json:"ledger_transaction_id,omitempty"`
	Score               int     `json:"score"`
	Candidates          int     `json:"candidates"`
	BasePoints          int     `json:"base_points"`
	DatePoints          int     `json:"date_points"`
	DaysApart           float64 `json:"days_apart"`
	DatesKnown          bool    `json:"dates_known"`
}

// StatementFilter narrows ListStatements
type StatementFilter struct {
	AccountID string // empty = all
	Limit     int    // 0 = default 50
	Offset    int
}

// LedgerFilter narrows ListLedgerTransactions
type LedgerFilter struct {
	Kind           ledger.Kind // zero = both kinds
	ExcludeMatched bool        // skip entries already confirmed against a bank transaction
	Limit          int         // 0 = no limit
	Offset         int
}

const defaultListLimit = 50
