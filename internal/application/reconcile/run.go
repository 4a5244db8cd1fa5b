package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// SuggestionView pairs a pending bank transaction with the matcher's best
// ledger candidate. Suggested is nil when nothing reached the threshold.
type SuggestionView struct {
	BankTransaction storage.BankTransactionRecord `json:"bank_transaction"`
	Suggested       *ledger.Transaction           `json:"suggested,omitempty"`
	Score           int                           `json:"score"`
	Breakdown       matcher.Breakdown             `json:"breakdown"`
	Candidates      int                           `json:"candidates"`
}

// RunResult is a reconciliation run with one view per bank transaction
type RunResult struct {
	Run         *storage.ReconciliationRun `json:"run"`
	Suggestions []SuggestionView           `json:"suggestions"`
}

// Reconcile scores every PENDING transaction of a statement against the
// ledger transactions that are not matched yet, and stores the run.
func (s *Service) Reconcile(ctx context.Context, statementID string) (*RunResult, error) {
	unlock := s.lockStatement(statementID)
	defer unlock()

	if _, err := s.repo.GetStatement(ctx, statementID); err != nil {
		return nil, fmt.Errorf("statement %s: %w", statementID, err)
	}

	started := s.now().UTC()

	pending, err := s.repo.ListBankTransactions(ctx, statementID, statement.Pending)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	open, err := s.repo.ListLedgerTransactions(ctx, storage.LedgerFilter{ExcludeMatched: true})
	if err != nil {
		return nil, fmt.Errorf("list ledger transactions: %w", err)
	}

	bank := make([]statement.Transaction, len(pending))
	for i := range pending {
		bank[i] = pending[i].Transaction
	}
	entries := make([]ledger.Transaction, len(open))
	for i := range open {
		entries[i] = open[i].Transaction
	}

	var results []matcher.MatchResult
	if s.exclusive {
		results = s.matcher.MatchExclusive(bank, entries, nil)
	} else {
		results = s.matcher.Match(bank, entries)
	}

	run := &storage.ReconciliationRun{
		StatementID: statementID,
		StartedAt:   started,
		Exclusive:   s.exclusive,
		Threshold:   s.matcher.Config().SuggestThreshold,
		BankCount:   len(bank),
		LedgerCount: len(entries),
	}
	suggestions := make([]storage.Suggestion, len(results))
	views := make([]SuggestionView, len(results))
	for i, r := range results {
		sg := storage.Suggestion{
			BankTransactionID: pending[i].ID,
			Score:             r.Score,
			Candidates:        r.Candidates,
			BasePoints:        r.Breakdown.BasePoints,
			DatePoints:        r.Breakdown.DatePoints,
			DaysApart:         r.Breakdown.DaysApart,
			DatesKnown:        r.Breakdown.DatesKnown,
		}
		if r.Suggested != nil {
			sg.LedgerTransactionID = r.Suggested.ID
			run.SuggestedCount++
		}
		suggestions[i] = sg
		views[i] = SuggestionView{
			BankTransaction: pending[i],
			Suggested:       r.Suggested,
			Score:           r.Score,
			Breakdown:       r.Breakdown,
			Candidates:      r.Candidates,
		}
	}
	run.CompletedAt = s.now().UTC()

	if _, err := s.repo.SaveRun(ctx, run, suggestions); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	s.logger.Info("reconciliation run complete",
		"statement_id", statementID,
		"run_id", run.ID,
		"pending", run.BankCount,
		"ledger", run.LedgerCount,
		"suggested", run.SuggestedCount,
		"exclusive", run.Exclusive,
		"duration", run.CompletedAt.Sub(started),
	)
	return &RunResult{Run: run, Suggestions: views}, nil
}

// LatestSuggestions returns the most recent run for a statement. Bank
// transactions show their current status, so rows resolved since the run
// are visible as such.
func (s *Service) LatestSuggestions(ctx context.Context, statementID string) (*RunResult, error) {
	run, stored, err := s.repo.LatestRun(ctx, statementID)
	if err != nil {
		return nil, fmt.Errorf("latest run for %s: %w", statementID, err)
	}

	txns, err := s.repo.ListBankTransactions(ctx, statementID, 0)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", statementID, err)
	}
	byID := make(map[string]storage.BankTransactionRecord, len(txns))
	for _, t := range txns {
		byID[t.ID] = t
	}

	views := make([]SuggestionView, 0, len(stored))
	for _, sg := range stored {
		bank, ok := byID[sg.BankTransactionID]
		if !ok {
			continue
		}
		view := SuggestionView{
			BankTransaction: bank,
			Score:           sg.Score,
			Candidates:      sg.Candidates,
			Breakdown: matcher.Breakdown{
				Score:         sg.Score,
				AmountMatched: sg.BasePoints > 0,
				BasePoints:    sg.BasePoints,
				DatePoints:    sg.DatePoints,
				DaysApart:     sg.DaysApart,
				DatesKnown:    sg.DatesKnown,
			},
		}
		if sg.LedgerTransactionID != "" {
			entry, err := s.repo.GetLedgerTransaction(ctx, sg.LedgerTransactionID)
			if err != nil {
				return nil, fmt.Errorf("ledger transaction %s: %w", sg.LedgerTransactionID, err)
			}
			view.Suggested = &entry.Transaction
		}
		views = append(views, view)
	}

	return &RunResult{Run: run, Suggestions: views}, nil
}

// Confirm marks a PENDING bank transaction as MATCHED to a ledger transaction
func (s *Service) Confirm(ctx context.Context, bankID, ledgerID string) (*storage.BankTransactionRecord, error) {
	bank, err := s.repo.GetBankTransaction(ctx, bankID)
	if err != nil {
		return nil, fmt.Errorf("bank transaction %s: %w", bankID, err)
	}

	unlock := s.lockStatement(bank.StatementID)
	defer unlock()

	// status may have changed while waiting for the lock
	bank, err = s.repo.GetBankTransaction(ctx, bankID)
	if err != nil {
		return nil, fmt.Errorf("bank transaction %s: %w", bankID, err)
	}
	entry, err := s.repo.GetLedgerTransaction(ctx, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("ledger transaction %s: %w", ledgerID, err)
	}
	if bank.Status != statement.Pending {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, bankID, bank.Status)
	}
	if !matcher.Compatible(bank.Kind, entry.Kind) {
		return nil, fmt.Errorf("%w: %s with %s", ErrKindMismatch, bank.Kind, entry.Kind)
	}
	if entry.MatchedBankID != "" && entry.MatchedBankID != bankID {
		return nil, fmt.Errorf("%w: %s is matched to %s", ErrLedgerAlreadyMatched, ledgerID, entry.MatchedBankID)
	}

	if err := s.resolve(ctx, bankID, statement.Matched, ledgerID); err != nil {
		return nil, err
	}

	s.logger.Info("bank transaction confirmed",
		"bank_transaction_id", bankID,
		"ledger_transaction_id", ledgerID,
		"amount", bank.Amount.StringFixed(2),
	)
	return s.repo.GetBankTransaction(ctx, bankID)
}

// Ignore marks a PENDING bank transaction as IGNORED
func (s *Service) Ignore(ctx context.Context, bankID string) (*storage.BankTransactionRecord, error) {
	bank, err := s.repo.GetBankTransaction(ctx, bankID)
	if err != nil {
		return nil, fmt.Errorf("bank transaction %s: %w", bankID, err)
	}

	unlock := s.lockStatement(bank.StatementID)
	defer unlock()

	if err := s.resolve(ctx, bankID, statement.Ignored, ""); err != nil {
		return nil, err
	}

	s.logger.Info("bank transaction ignored", "bank_transaction_id", bankID)
	return s.repo.GetBankTransaction(ctx, bankID)
}

// resolve translates storage guard errors into service errors
func (s *Service) resolve(ctx context.Context, bankID string, status statement.Status, ledgerID string) error {
	err := s.repo.ResolveBankTransaction(ctx, bankID, status, ledgerID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotPending):
		return fmt.Errorf("%w: %s", ErrAlreadyResolved, bankID)
	case errors.Is(err, storage.ErrLedgerTaken):
		return fmt.Errorf("%w: %s", ErrLedgerAlreadyMatched, ledgerID)
	default:
		return fmt.Errorf("resolve bank transaction %s: %w", bankID, err)
	}
}
