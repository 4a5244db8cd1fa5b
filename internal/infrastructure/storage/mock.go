package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	mu sync.Mutex

	statements  map[string]*StatementRecord
	bankTxns    map[string]*BankTransactionRecord
	bankOrder   map[string][]string // statement ID -> bank transaction IDs in sequence order
	ledgerTxns  map[string]*LedgerRecord
	ledgerOrder []string
	runs        map[string][]mockRun // statement ID -> runs, oldest first
	nextRunID   int64

	// Hooks for test assertions
	SaveStatementCalls int
	ResolveCalls       int
	SaveRunCalls       int
	LastSavedRun       *ReconciliationRun

	// Error injection for testing error paths
	SaveStatementErr error
	SaveLedgerErr    error
	ResolveErr       error
	SaveRunErr       error
	ListLedgerErr    error
}

type mockRun struct {
	run         ReconciliationRun
	suggestions []Suggestion
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		statements: make(map[string]*StatementRecord),
		bankTxns:   make(map[string]*BankTransactionRecord),
		bankOrder:  make(map[string][]string),
		ledgerTxns: make(map[string]*LedgerRecord),
		runs:       make(map[string][]mockRun),
		nextRunID:  1,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// SaveStatement stores copies of the statement and its transactions
func (m *MockRepository) SaveStatement(_ context.Context, rec *StatementRecord, txns []BankTransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveStatementCalls++
	if m.SaveStatementErr != nil {
		return m.SaveStatementErr
	}

	rec.TransactionCount = len(txns)
	copied := *rec
	m.statements[rec.ID] = &copied

	ids := make([]string, 0, len(txns))
	for i := range txns {
		t := txns[i]
		t.StatementID = rec.ID
		m.bankTxns[t.ID] = &t
		ids = append(ids, t.ID)
	}
	sort.SliceStable(ids, func(a, b int) bool {
		return m.bankTxns[ids[a]].Sequence < m.bankTxns[ids[b]].Sequence
	})
	m.bankOrder[rec.ID] = ids
	return nil
}

// GetStatement retrieves a statement by ID
func (m *MockRepository) GetStatement(_ context.Context, id string) (*StatementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.statements[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

// ListStatements returns statements, newest import first
func (m *MockRepository) ListStatements(_ context.Context, filter StatementFilter) ([]StatementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []StatementRecord{}
	for _, rec := range m.statements {
		if filter.AccountID != "" && rec.AccountID != filter.AccountID {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ImportedAt.Equal(out[j].ImportedAt) {
			return out[i].ImportedAt.After(out[j].ImportedAt)
		}
		return out[i].ID < out[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	return page(out, limit, filter.Offset), nil
}

// ListBankTransactions returns a statement's transactions in file order
func (m *MockRepository) ListBankTransactions(_ context.Context, statementID string, status statement.Status) ([]BankTransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []BankTransactionRecord{}
	for _, id := range m.bankOrder[statementID] {
		t := m.bankTxns[id]
		if status != 0 && t.Status != status {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

// GetBankTransaction retrieves a bank transaction by ID
func (m *MockRepository) GetBankTransaction(_ context.Context, id string) (*BankTransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.bankTxns[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *t
	return &copied, nil
}

// ResolveBankTransaction mirrors the SQLite status guard and unique ledger match
func (m *MockRepository) ResolveBankTransaction(_ context.Context, id string, status statement.Status, ledgerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ResolveCalls++
	if m.ResolveErr != nil {
		return m.ResolveErr
	}

	t, ok := m.bankTxns[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != statement.Pending {
		return ErrNotPending
	}
	if ledgerID != "" {
		for _, other := range m.bankTxns {
			if other.MatchedLedgerID == ledgerID {
				return ErrLedgerTaken
			}
		}
	}

	t.Status = status
	t.MatchedLedgerID = ledgerID
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveLedgerTransactions inserts or replaces ledger transactions by ID
func (m *MockRepository) SaveLedgerTransactions(_ context.Context, txns []ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveLedgerErr != nil {
		return m.SaveLedgerErr
	}
	for _, t := range txns {
		if bankID := m.matchedBankIDLocked(t.ID); bankID != "" {
			return fmt.Errorf("%w: %s is matched to %s", ErrLedgerTaken, t.ID, bankID)
		}
	}

	now := time.Now().UTC()
	for _, t := range txns {
		if existing, ok := m.ledgerTxns[t.ID]; ok {
			existing.Transaction = t
			continue
		}
		m.ledgerTxns[t.ID] = &LedgerRecord{Transaction: t, CreatedAt: now}
		m.ledgerOrder = append(m.ledgerOrder, t.ID)
	}
	return nil
}

// GetLedgerTransaction retrieves a ledger transaction by ID
func (m *MockRepository) GetLedgerTransaction(_ context.Context, id string) (*LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.ledgerTxns[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rec
	copied.MatchedBankID = m.matchedBankIDLocked(id)
	return &copied, nil
}

// ListLedgerTransactions returns ledger transactions in insertion order
func (m *MockRepository) ListLedgerTransactions(_ context.Context, filter LedgerFilter) ([]LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListLedgerErr != nil {
		return nil, m.ListLedgerErr
	}

	out := []LedgerRecord{}
	for _, id := range m.ledgerOrder {
		rec := *m.ledgerTxns[id]
		rec.MatchedBankID = m.matchedBankIDLocked(id)
		if filter.Kind != 0 && rec.Kind != filter.Kind {
			continue
		}
		if filter.ExcludeMatched && rec.MatchedBankID != "" {
			continue
		}
		out = append(out, rec)
	}

	if filter.Limit > 0 {
		return page(out, filter.Limit, filter.Offset), nil
	}
	return out, nil
}

func (m *MockRepository) matchedBankIDLocked(ledgerID string) string {
	for _, t := range m.bankTxns {
		if t.MatchedLedgerID == ledgerID {
			return t.ID
		}
	}
	return ""
}

// SaveRun stores a run with its suggestions
func (m *MockRepository) SaveRun(_ context.Context, run *ReconciliationRun, suggestions []Suggestion) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveRunCalls++
	if m.SaveRunErr != nil {
		return 0, m.SaveRunErr
	}

	run.ID = m.nextRunID
	m.nextRunID++
	copied := *run
	m.LastSavedRun = &copied

	stored := make([]Suggestion, len(suggestions))
	for i, sg := range suggestions {
		sg.RunID = run.ID
		stored[i] = sg
	}
	m.runs[run.StatementID] = append(m.runs[run.StatementID], mockRun{run: copied, suggestions: stored})
	return run.ID, nil
}

// LatestRun returns the most recent run for a statement
func (m *MockRepository) LatestRun(_ context.Context, statementID string) (*ReconciliationRun, []Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := m.runs[statementID]
	if len(runs) == 0 {
		return nil, nil, ErrNotFound
	}
	latest := runs[len(runs)-1]
	run := latest.run
	suggestions := append([]Suggestion{}, latest.suggestions...)
	return &run, suggestions, nil
}

func page[T any](items []T, limit, offset int) []T {
	offset = max(offset, 0)
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
