package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/logging"
)

// StatementSummary is the statement header printed with a report
type StatementSummary struct {
	File           string              `json:"file"`
	Size           int64               `json:"size"`
	InstitutionID  string              `json:"institution_id"`
	AccountID      string              `json:"account_id"`
	OpeningBalance decimal.Decimal     `json:"opening_balance"`
	ClosingBalance decimal.Decimal     `json:"closing_balance"`
	Transactions   int                 `json:"transactions"`
	Warnings       []statement.Warning `json:"warnings,omitempty"`
}

// Report is the outcome of an offline reconcile
type Report struct {
	Statement   StatementSummary      `json:"statement"`
	LedgerCount int                   `json:"ledger_count"`
	Threshold   int                   `json:"threshold"`
	Exclusive   bool                  `json:"exclusive"`
	Suggested   int                   `json:"suggested"`
	Results     []matcher.MatchResult `json:"results"`
}

// RunReconcile matches a statement file against a ledger file in memory.
// Nothing is stored.
func RunReconcile(cfg *config.Config, flags *ReconcileFlags, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	opts, err := reconcile.OptionsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if flags.Threshold > 0 {
		opts.Matcher.SuggestThreshold = flags.Threshold
	}
	exclusive := opts.Exclusive || flags.Exclusive

	data, err := os.ReadFile(flags.StatementPath)
	if err != nil {
		return nil, fmt.Errorf("read statement: %w", err)
	}
	stmt, err := statement.Read(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	for _, w := range stmt.Warnings {
		logger.Debug("statement warning", "block", w.Block, "code", w.Code, "detail", w.Detail)
	}

	entries, err := LoadLedgerFile(flags.LedgerPath)
	if err != nil {
		return nil, err
	}

	m := matcher.NewMatcher(opts.Matcher)
	var results []matcher.MatchResult
	if exclusive {
		results = m.MatchExclusive(stmt.Transactions, entries, nil)
	} else {
		results = m.Match(stmt.Transactions, entries)
	}

	report := &Report{
		Statement: StatementSummary{
			File:           flags.StatementPath,
			Size:           int64(len(data)),
			InstitutionID:  stmt.InstitutionID,
			AccountID:      stmt.AccountID,
			OpeningBalance: stmt.OpeningBalance,
			ClosingBalance: stmt.ClosingBalance,
			Transactions:   len(stmt.Transactions),
			Warnings:       stmt.Warnings,
		},
		LedgerCount: len(entries),
		Threshold:   opts.Matcher.SuggestThreshold,
		Exclusive:   exclusive,
		Results:     results,
	}
	for _, r := range results {
		if r.Suggested != nil {
			report.Suggested++
		}
	}

	logger.Info("offline reconcile complete",
		"transactions", len(results),
		"ledger", len(entries),
		"suggested", report.Suggested,
	)
	return report, nil
}

// LoadLedgerFile reads ledger transactions from a JSON file. The file holds
// either an array or an object with a "transactions" array.
func LoadLedgerFile(path string) ([]ledger.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return ParseLedger(data)
}

// ParseLedger decodes and validates ledger JSON. Every invalid entry is reported.
func ParseLedger(data []byte) ([]ledger.Transaction, error) {
	var entries []ledger.Transaction
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("parse ledger: %w", err)
		}
	} else {
		var wrapped struct {
			Transactions []ledger.Transaction `json:"transactions"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("parse ledger: %w", err)
		}
		entries = wrapped.Transactions
	}

	var result *multierror.Error
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = fmt.Sprintf("L%d", i+1)
		}
		if err := entries[i].Validate(); err != nil {
			result = multierror.Append(result, &reconcile.ValidationError{Index: i, ID: entries[i].ID, Err: err})
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return entries, nil
}
