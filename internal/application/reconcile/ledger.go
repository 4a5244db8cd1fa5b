package reconcile

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

const (
	maxDescriptionLength = 255
	maxSanitizePasses    = 4
)

// AddLedgerTransactions validates and stores a batch of ledger transactions.
// Entries without an ID get one. Existing IDs are replaced unless already
// matched to a bank transaction (ErrLedgerAlreadyMatched). The whole batch
// is rejected on the first invalid entry.
func (s *Service) AddLedgerTransactions(ctx context.Context, txns []ledger.Transaction) ([]ledger.Transaction, error) {
	clean := make([]ledger.Transaction, len(txns))
	for i, t := range txns {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			t.ID = s.newID()
		}
		t.Description = s.sanitizeDescription(t.Description)
		if err := t.Validate(); err != nil {
			return nil, &ValidationError{Index: i, ID: t.ID, Err: err}
		}
		clean[i] = t
	}

	if len(clean) == 0 {
		return clean, nil
	}
	if err := s.repo.SaveLedgerTransactions(ctx, clean); err != nil {
		if errors.Is(err, storage.ErrLedgerTaken) {
			return nil, fmt.Errorf("%w: %v", ErrLedgerAlreadyMatched, err)
		}
		return nil, fmt.Errorf("save ledger transactions: %w", err)
	}

	s.logger.Info("ledger transactions saved", "count", len(clean))
	return clean, nil
}

// ListLedger returns stored ledger transactions
func (s *Service) ListLedger(ctx context.Context, filter storage.LedgerFilter) ([]storage.LedgerRecord, error) {
	return s.repo.ListLedgerTransactions(ctx, filter)
}

// sanitizeDescription strips markup from free text that ends up in the UI.
// Entities are decoded and the result sanitized again until nothing changes,
// so encoded markup cannot survive as live tags.
func (s *Service) sanitizeDescription(desc string) string {
	out := desc
	stable := false
	for range maxSanitizePasses {
		next := html.UnescapeString(s.sanitizer.Sanitize(out))
		if next == out {
			stable = true
			break
		}
		out = next
	}
	if !stable {
		// still decoding into markup: keep it escaped
		out = s.sanitizer.Sanitize(out)
	}
	out = strings.Join(strings.Fields(out), " ")
	if r := []rune(out); len(r) > maxDescriptionLength {
		out = string(r[:maxDescriptionLength])
	}
	return out
}
