package reconcile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/patrickmn/go-cache"

	"github.com/eshaffer321/bankrecon/internal/domain/statement"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// ImportResult describes what an upload produced
type ImportResult struct {
	Statement    *storage.StatementRecord        `json:"statement"`
	Transactions []storage.BankTransactionRecord `json:"transactions"`

	// Duplicate is set when the same bytes were imported inside the dedup
	// window; Statement is then the earlier import and nothing new is stored.
	Duplicate bool `json:"duplicate"`

	// ExternalIDs that appeared more than once. They are all stored.
	DuplicateExternalIDs []string `json:"duplicate_external_ids,omitempty"`

	// Number of transaction blocks skipped by the reader
	Dropped int `json:"dropped"`
}

// StatementDetail is a stored statement with its transactions
type StatementDetail struct {
	Statement    *storage.StatementRecord        `json:"statement"`
	Transactions []storage.BankTransactionRecord `json:"transactions"`
}

// ImportStatement reads a statement file and stores it with every
// transaction PENDING.
func (s *Service) ImportStatement(ctx context.Context, fileName string, r io.Reader) (*ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &statement.ReadError{Op: "read", Err: err}
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	s.importMu.Lock()
	defer s.importMu.Unlock()

	if res, ok := s.recentImport(ctx, hash); ok {
		s.logger.Info("duplicate upload ignored",
			"file", fileName,
			"statement_id", res.Statement.ID,
		)
		return res, nil
	}

	parsed, err := statement.Read(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(parsed.Transactions) == 0 && parsed.AccountID == "" {
		return nil, ErrEmptyStatement
	}

	now := s.now().UTC()
	rec := &storage.StatementRecord{
		ID:             s.newID(),
		FileName:       fileName,
		FileHash:       hash,
		ImportedAt:     now,
		InstitutionID:  parsed.InstitutionID,
		BranchID:       parsed.BranchID,
		AccountID:      parsed.AccountID,
		OpeningBalance: parsed.OpeningBalance,
		ClosingBalance: parsed.ClosingBalance,
		Warnings:       parsed.Warnings,
	}

	txns := make([]storage.BankTransactionRecord, len(parsed.Transactions))
	for i, t := range parsed.Transactions {
		txns[i] = storage.BankTransactionRecord{
			ID:          s.newID(),
			StatementID: rec.ID,
			Sequence:    i,
			Transaction: t,
			UpdatedAt:   now,
		}
	}

	if err := s.repo.SaveStatement(ctx, rec, txns); err != nil {
		return nil, fmt.Errorf("save statement: %w", err)
	}
	if s.recent != nil {
		s.recent.Set(hash, rec.ID, cache.DefaultExpiration)
	}

	res := &ImportResult{
		Statement:            rec,
		Transactions:         txns,
		DuplicateExternalIDs: duplicateExternalIDs(parsed.Transactions),
	}
	for _, w := range parsed.Warnings {
		if w.Dropped() {
			res.Dropped++
		}
		s.logger.Warn("statement warning",
			"statement_id", rec.ID,
			"block", w.Block,
			"code", string(w.Code),
			"external_id", w.ExternalID,
			"detail", w.Detail,
		)
	}
	if len(res.DuplicateExternalIDs) > 0 {
		s.logger.Warn("duplicate external ids in statement",
			"statement_id", rec.ID,
			"external_ids", res.DuplicateExternalIDs,
		)
	}

	s.logger.Info("statement imported",
		"statement_id", rec.ID,
		"file", fileName,
		"account", rec.AccountID,
		"transactions", len(txns),
		"dropped", res.Dropped,
		"closing_balance", rec.ClosingBalance.StringFixed(2),
	)
	return res, nil
}

// recentImport returns the earlier import of the same bytes, if still cached
func (s *Service) recentImport(ctx context.Context, hash string) (*ImportResult, bool) {
	if s.recent == nil {
		return nil, false
	}
	v, ok := s.recent.Get(hash)
	if !ok {
		return nil, false
	}

	detail, err := s.GetStatement(ctx, v.(string))
	if err != nil {
		// Statement vanished or storage is failing; import again
		s.recent.Delete(hash)
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("dedup lookup failed", "error", err)
		}
		return nil, false
	}

	return &ImportResult{
		Statement:    detail.Statement,
		Transactions: detail.Transactions,
		Duplicate:    true,
	}, true
}

// GetStatement loads a statement and all of its transactions
func (s *Service) GetStatement(ctx context.Context, id string) (*StatementDetail, error) {
	rec, err := s.repo.GetStatement(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("statement %s: %w", id, err)
	}
	txns, err := s.repo.ListBankTransactions(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", id, err)
	}
	return &StatementDetail{Statement: rec, Transactions: txns}, nil
}

// ListStatements returns imported statements, newest first
func (s *Service) ListStatements(ctx context.Context, filter storage.StatementFilter) ([]storage.StatementRecord, error) {
	return s.repo.ListStatements(ctx, filter)
}

func duplicateExternalIDs(txns []statement.Transaction) []string {
	seen := make(map[string]int, len(txns))
	var dups []string
	for _, t := range txns {
		seen[t.ExternalID]++
		if seen[t.ExternalID] == 2 {
			dups = append(dups, t.ExternalID)
		}
	}
	return dups
}
