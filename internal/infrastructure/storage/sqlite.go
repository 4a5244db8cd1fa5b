package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/logging"
)

// Storage provides SQLite database access for statements, ledger entries and
// reconciliation runs. It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage opens (or creates) the SQLite database at dbPath and applies
// pending migrations
func NewStorage(dbPath string) (*Storage, error) {
	return NewStorageWithLogger(dbPath, nil)
}

// NewStorageWithLogger is NewStorage with an explicit logger for migration output
func NewStorageWithLogger(dbPath string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the applied migration version
func (s *Storage) SchemaVersion(ctx context.Context) (int64, error) {
	return schemaVersion(ctx, s.db)
}

// ================================================================
// STATEMENTS
// ================================================================

// SaveStatement stores a statement and its transactions in one transaction
func (s *Storage) SaveStatement(ctx context.Context, rec *StatementRecord, txns []BankTransactionRecord) error {
	warnings := rec.Warnings
	if warnings == nil {
		warnings = []statement.Warning{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO statements
			(id, file_name, file_hash, imported_at, institution_id, branch_id, account_id,
			 opening_balance, closing_balance, transaction_count, warnings_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.FileName, rec.FileHash, rec.ImportedAt.UTC(),
			rec.InstitutionID, rec.BranchID, rec.AccountID,
			rec.OpeningBalance, rec.ClosingBalance, len(txns), string(warningsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert statement: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO bank_transactions
			(id, statement_id, sequence, external_id, posted_date, amount, kind,
			 description, declared_type, status, matched_ledger_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, t := range txns {
			_, err := stmt.ExecContext(ctx,
				t.ID, rec.ID, t.Sequence, t.ExternalID, t.PostedDate, t.Amount,
				t.Kind.String(), t.Description, t.DeclaredType, t.Status.String(),
				nullString(t.MatchedLedgerID), t.UpdatedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert bank transaction %d: %w", t.Sequence, err)
			}
		}
		rec.TransactionCount = len(txns)
		return nil
	})
}

const statementColumns = `id, file_name, file_hash, imported_at, institution_id, branch_id,
	account_id, opening_balance, closing_balance, transaction_count, warnings_json`

// GetStatement retrieves a statement by ID
func (s *Storage) GetStatement(ctx context.Context, id string) (*StatementRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statementColumns+` FROM statements WHERE id = ?`, id)
	rec, err := scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListStatements returns statements, newest import first
func (s *Storage) ListStatements(ctx context.Context, filter StatementFilter) ([]StatementRecord, error) {
	query := `SELECT ` + statementColumns + ` FROM statements`
	var args []any
	if filter.AccountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, filter.AccountID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` ORDER BY imported_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []StatementRecord{}
	for rows.Next() {
		rec, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatement(row scanner) (*StatementRecord, error) {
	rec := &StatementRecord{}
	var warningsJSON string
	err := row.Scan(
		&rec.ID, &rec.FileName, &rec.FileHash, &rec.ImportedAt,
		&rec.InstitutionID, &rec.BranchID, &rec.AccountID,
		&rec.OpeningBalance, &rec.ClosingBalance, &rec.TransactionCount, &warningsJSON,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(warningsJSON), &rec.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings for statement %s: %w", rec.ID, err)
	}
	return rec, nil
}

const bankColumns = `id, statement_id, sequence, external_id, posted_date, amount, kind,
	description, declared_type, status, matched_ledger_id, updated_at`

// ListBankTransactions returns a statement's transactions in file order
func (s *Storage) ListBankTransactions(ctx context.Context, statementID string, status statement.Status) ([]BankTransactionRecord, error) {
	query := `SELECT ` + bankColumns + ` FROM bank_transactions WHERE statement_id = ?`
	args := []any{statementID}
	if status != 0 {
		query += ` AND status = ?`
		args = append(args, status.String())
	}
	query += ` ORDER BY sequence`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []BankTransactionRecord{}
	for rows.Next() {
		rec, err := scanBankTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetBankTransaction retrieves a bank transaction by ID
func (s *Storage) GetBankTransaction(ctx context.Context, id string) (*BankTransactionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bankColumns+` FROM bank_transactions WHERE id = ?`, id)
	rec, err := scanBankTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func scanBankTransaction(row scanner) (*BankTransactionRecord, error) {
	rec := &BankTransactionRecord{}
	var kind, status string
	var matched sql.NullString
	err := row.Scan(
		&rec.ID, &rec.StatementID, &rec.Sequence, &rec.ExternalID, &rec.PostedDate,
		&rec.Amount, &kind, &rec.Description, &rec.DeclaredType, &status,
		&matched, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rec.Kind, err = statement.ParseKind(kind); err != nil {
		return nil, err
	}
	if rec.Status, err = statement.ParseStatus(status); err != nil {
		return nil, err
	}
	rec.MatchedLedgerID = matched.String
	return rec, nil
}

// ResolveBankTransaction moves a PENDING transaction to its final status.
// The status guard lives in the UPDATE so two concurrent confirmations
// cannot both succeed.
func (s *Storage) ResolveBankTransaction(ctx context.Context, id string, status statement.Status, ledgerID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_transactions
		SET status = ?, matched_ledger_id = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		status.String(), nullString(ledgerID), time.Now().UTC(), id, statement.Pending.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLedgerTaken
		}
		return fmt.Errorf("update bank transaction %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: either the row is gone or it is no longer pending
	if _, err := s.GetBankTransaction(ctx, id); err != nil {
		return err
	}
	return ErrNotPending
}

// ================================================================
// LEDGER
// ================================================================

// SaveLedgerTransactions inserts or replaces ledger transactions by ID.
// Replacing keeps the original created_at so list order is stable. Entries
// already confirmed against a bank transaction are never replaced; the whole
// batch fails with ErrLedgerTaken.
func (s *Storage) SaveLedgerTransactions(ctx context.Context, txns []ledger.Transaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		matched, err := tx.PrepareContext(ctx,
			`SELECT id FROM bank_transactions WHERE matched_ledger_id = ? LIMIT 1`)
		if err != nil {
			return err
		}
		defer func() { _ = matched.Close() }()

		for _, t := range txns {
			var bankID string
			err := matched.QueryRowContext(ctx, t.ID).Scan(&bankID)
			switch {
			case err == nil:
				return fmt.Errorf("%w: %s is matched to %s", ErrLedgerTaken, t.ID, bankID)
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("check ledger transaction %s: %w", t.ID, err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO ledger_transactions
			(id, kind, amount, description, paid_date, due_date, issue_date, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				amount = excluded.amount,
				description = excluded.description,
				paid_date = excluded.paid_date,
				due_date = excluded.due_date,
				issue_date = excluded.issue_date`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now().UTC()
		for _, t := range txns {
			_, err := stmt.ExecContext(ctx,
				t.ID, t.Kind.String(), t.Amount, t.Description,
				t.PaidDate, t.DueDate, t.IssueDate, now,
			)
			if err != nil {
				return fmt.Errorf("save ledger transaction %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

const ledgerSelect = `
	SELECT l.id, l.kind, l.amount, l.description, l.paid_date, l.due_date, l.issue_date,
	       l.created_at, b.id
	FROM ledger_transactions l
	LEFT JOIN bank_transactions b ON b.matched_ledger_id = l.id`

// GetLedgerTransaction retrieves a ledger transaction by ID
func (s *Storage) GetLedgerTransaction(ctx context.Context, id string) (*LedgerRecord, error) {
	row := s.db.QueryRowContext(ctx, ledgerSelect+` WHERE l.id = ?`, id)
	rec, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListLedgerTransactions returns ledger transactions in insertion order
func (s *Storage) ListLedgerTransactions(ctx context.Context, filter LedgerFilter) ([]LedgerRecord, error) {
	var where []string
	var args []any
	if filter.Kind != 0 {
		where = append(where, "l.kind = ?")
		args = append(args, filter.Kind.String())
	}
	if filter.ExcludeMatched {
		where = append(where, "b.id IS NULL")
	}

	query := ledgerSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY l.created_at, l.rowid"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []LedgerRecord{}
	for rows.Next() {
		rec, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanLedger(row scanner) (*LedgerRecord, error) {
	rec := &LedgerRecord{}
	var kind string
	var matched sql.NullString
	err := row.Scan(
		&rec.ID, &kind, &rec.Amount, &rec.Description,
		&rec.PaidDate, &rec.DueDate, &rec.IssueDate, &rec.CreatedAt, &matched,
	)
	if err != nil {
		return nil, err
	}
	if rec.Kind, err = ledger.ParseKind(kind); err != nil {
		return nil, err
	}
	rec.MatchedBankID = matched.String
	return rec, nil
}

// ================================================================
// RECONCILIATION RUNS
// ================================================================

// SaveRun stores a run with its suggestions and returns the run ID
func (s *Storage) SaveRun(ctx context.Context, run *ReconciliationRun, suggestions []Suggestion) (int64, error) {
	var runID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO reconciliation_runs
			(statement_id, started_at, completed_at, exclusive, threshold,
			 bank_count, ledger_count, suggested_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.StatementID, run.StartedAt.UTC(), run.CompletedAt.UTC(), run.Exclusive,
			run.Threshold, run.BankCount, run.LedgerCount, run.SuggestedCount,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if runID, err = res.LastInsertId(); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO match_suggestions
			(run_id, bank_transaction_id, ledger_transaction_id, score, candidates,
			 base_points, date_points, days_apart, dates_known)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, sg := range suggestions {
			_, err := stmt.ExecContext(ctx,
				runID, sg.BankTransactionID, nullString(sg.LedgerTransactionID), sg.Score,
				sg.Candidates, sg.BasePoints, sg.DatePoints, sg.DaysApart, sg.DatesKnown,
			)
			if err != nil {
				return fmt.Errorf("insert suggestion for %s: %w", sg.BankTransactionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	run.ID = runID
	return runID, nil
}

// LatestRun returns the most recent run for a statement and its suggestions
// in bank transaction order
func (s *Storage) LatestRun(ctx context.Context, statementID string) (*ReconciliationRun, []Suggestion, error) {
	run := &ReconciliationRun{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, statement_id, started_at, completed_at, exclusive, threshold,
		       bank_count, ledger_count, suggested_count
		FROM reconciliation_runs
		WHERE statement_id = ?
		ORDER BY id DESC LIMIT 1`, statementID,
	).Scan(
		&run.ID, &run.StatementID, &run.StartedAt, &run.CompletedAt, &run.Exclusive,
		&run.Threshold, &run.BankCount, &run.LedgerCount, &run.SuggestedCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.run_id, m.bank_transaction_id, m.ledger_transaction_id, m.score, m.candidates,
		       m.base_points, m.date_points, m.days_apart, m.dates_known
		FROM match_suggestions m
		JOIN bank_transactions b ON b.id = m.bank_transaction_id
		WHERE m.run_id = ?
		ORDER BY b.sequence`, run.ID)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	suggestions := []Suggestion{}
	for rows.Next() {
		var sg Suggestion
		var ledgerID sql.NullString
		if err := rows.Scan(
			&sg.RunID, &sg.BankTransactionID, &ledgerID, &sg.Score, &sg.Candidates,
			&sg.BasePoints, &sg.DatePoints, &sg.DaysApart, &sg.DatesKnown,
		); err != nil {
			return nil, nil, err
		}
		sg.LedgerTransactionID = ledgerID.String
		suggestions = append(suggestions, sg)
	}
	return run, suggestions, rows.Err()
}

// ================================================================
// HELPERS
// ================================================================

func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// dsn adds driver options so every pooled connection enforces foreign keys
// and waits on a locked database instead of failing immediately
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// nullString maps "" to SQL NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
