package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
)

// repositories runs the same behavior against SQLite and the in-memory mock
func repositories(t *testing.T) map[string]Repository {
	tmpDB := createTempDB(t)
	t.Cleanup(func() { os.Remove(tmpDB) })

	store, err := NewStorage(tmpDB)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return map[string]Repository{
		"sqlite": store,
		"mock":   NewMockRepository(),
	}
}

func makeStatement(id string, importedAt time.Time) *StatementRecord {
	return &StatementRecord{
		ID:             id,
		FileName:       id + ".ofx",
		FileHash:       "hash-" + id,
		ImportedAt:     importedAt,
		InstitutionID:  "0341",
		BranchID:       "1234",
		AccountID:      "98765-0",
		OpeningBalance: decimal.RequireFromString("1000.00"),
		ClosingBalance: decimal.RequireFromString("1150.25"),
		Warnings: []statement.Warning{
			{Block: 2, Code: statement.WarnMissingField, Detail: "TRNAMT missing"},
		},
	}
}

func makeBankRecord(id string, seq int, amount string, kind statement.Kind) BankTransactionRecord {
	return BankTransactionRecord{
		ID:       id,
		Sequence: seq,
		Transaction: statement.Transaction{
			ExternalID:  "FIT-" + id,
			PostedDate:  "2024-03-0" + string(rune('1'+seq)),
			Amount:      decimal.RequireFromString(amount),
			Kind:        kind,
			Description: "PIX " + id,
			Status:      statement.Pending,
		},
		UpdatedAt: time.Now(),
	}
}

func makeLedgerTxn(id, amount string, kind ledger.Kind) ledger.Transaction {
	return ledger.Transaction{
		ID:          id,
		Kind:        kind,
		Amount:      decimal.RequireFromString(amount),
		Description: "entry " + id,
		DueDate:     "2024-03-01",
	}
}

func seed(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	txns := []BankTransactionRecord{
		makeBankRecord("b2", 1, "50.00", statement.Debit),
		makeBankRecord("b1", 0, "200.25", statement.Credit),
		makeBankRecord("b3", 2, "0.10", statement.Debit),
	}
	require.NoError(t, repo.SaveStatement(ctx, makeStatement("s1", time.Now().Add(-time.Hour)), txns))
	require.NoError(t, repo.SaveLedgerTransactions(ctx, []ledger.Transaction{
		makeLedgerTxn("L1", "200.25", ledger.Income),
		makeLedgerTxn("L2", "50.00", ledger.Expense),
	}))
}

func TestRepository_StatementRoundTrip(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, repo)

			got, err := repo.GetStatement(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "98765-0", got.AccountID)
			assert.Equal(t, 3, got.TransactionCount)
			assert.True(t, decimal.RequireFromString("1150.25").Equal(got.ClosingBalance))
			require.Len(t, got.Warnings, 1)
			assert.Equal(t, statement.WarnMissingField, got.Warnings[0].Code)

			txns, err := repo.ListBankTransactions(ctx, "s1", 0)
			require.NoError(t, err)
			require.Len(t, txns, 3)

			// File order, regardless of insert order
			assert.Equal(t, "b1", txns[0].ID)
			assert.Equal(t, "b2", txns[1].ID)
			assert.Equal(t, "b3", txns[2].ID)

			assert.Equal(t, "s1", txns[0].StatementID)
			assert.Equal(t, statement.Credit, txns[0].Kind)
			assert.Equal(t, statement.Pending, txns[0].Status)
			assert.Equal(t, "200.25", txns[0].Amount.StringFixed(2))
			assert.Equal(t, "0.10", txns[2].Amount.StringFixed(2))
		})
	}
}

func TestRepository_NotFound(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := repo.GetStatement(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = repo.GetBankTransaction(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = repo.GetLedgerTransaction(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)

			_, _, err = repo.LatestRun(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)

			err = repo.ResolveBankTransaction(ctx, "nope", statement.Ignored, "")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRepository_ListStatements(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			older := makeStatement("old", now.Add(-2*time.Hour))
			newer := makeStatement("new", now.Add(-time.Hour))
			other := makeStatement("other", now)
			other.AccountID = "11111-1"

			require.NoError(t, repo.SaveStatement(ctx, older, nil))
			require.NoError(t, repo.SaveStatement(ctx, newer, nil))
			require.NoError(t, repo.SaveStatement(ctx, other, nil))

			all, err := repo.ListStatements(ctx, StatementFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "other", all[0].ID)
			assert.Equal(t, "old", all[2].ID)

			filtered, err := repo.ListStatements(ctx, StatementFilter{AccountID: "98765-0", Limit: 1, Offset: 1})
			require.NoError(t, err)
			require.Len(t, filtered, 1)
			assert.Equal(t, "old", filtered[0].ID)
		})
	}
}

func TestRepository_ResolveBankTransaction(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, repo)

			// Act
			require.NoError(t, repo.ResolveBankTransaction(ctx, "b1", statement.Matched, "L1"))

			// Assert
			b1, err := repo.GetBankTransaction(ctx, "b1")
			require.NoError(t, err)
			assert.Equal(t, statement.Matched, b1.Status)
			assert.Equal(t, "L1", b1.MatchedLedgerID)

			l1, err := repo.GetLedgerTransaction(ctx, "L1")
			require.NoError(t, err)
			assert.Equal(t, "b1", l1.MatchedBankID)

			pending, err := repo.ListBankTransactions(ctx, "s1", statement.Pending)
			require.NoError(t, err)
			assert.Len(t, pending, 2)

			// Already resolved
			err = repo.ResolveBankTransaction(ctx, "b1", statement.Ignored, "")
			assert.ErrorIs(t, err, ErrNotPending)

			// Ledger already used by b1
			err = repo.ResolveBankTransaction(ctx, "b2", statement.Matched, "L1")
			assert.ErrorIs(t, err, ErrLedgerTaken)

			b2, err := repo.GetBankTransaction(ctx, "b2")
			require.NoError(t, err)
			assert.Equal(t, statement.Pending, b2.Status, "failed confirm leaves the row pending")

			require.NoError(t, repo.ResolveBankTransaction(ctx, "b3", statement.Ignored, ""))
			ignored, err := repo.ListBankTransactions(ctx, "s1", statement.Ignored)
			require.NoError(t, err)
			require.Len(t, ignored, 1)
			assert.Equal(t, "b3", ignored[0].ID)
			assert.Empty(t, ignored[0].MatchedLedgerID)
		})
	}
}

func TestRepository_LedgerUpsertAndFilters(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, repo)

			// Replace L2 and add L3
			updated := makeLedgerTxn("L2", "55.00", ledger.Expense)
			updated.PaidDate = "2024-03-02"
			require.NoError(t, repo.SaveLedgerTransactions(ctx, []ledger.Transaction{
				updated,
				makeLedgerTxn("L3", "9.99", ledger.Expense),
			}))

			all, err := repo.ListLedgerTransactions(ctx, LedgerFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"L1", "L2", "L3"}, []string{all[0].ID, all[1].ID, all[2].ID})
			assert.Equal(t, "55.00", all[1].Amount.StringFixed(2))
			assert.Equal(t, "2024-03-02", all[1].PaidDate)

			expenses, err := repo.ListLedgerTransactions(ctx, LedgerFilter{Kind: ledger.Expense})
			require.NoError(t, err)
			assert.Len(t, expenses, 2)

			require.NoError(t, repo.ResolveBankTransaction(ctx, "b1", statement.Matched, "L1"))
			open, err := repo.ListLedgerTransactions(ctx, LedgerFilter{ExcludeMatched: true})
			require.NoError(t, err)
			require.Len(t, open, 2)
			assert.Equal(t, "L2", open[0].ID)

			paged, err := repo.ListLedgerTransactions(ctx, LedgerFilter{Limit: 1, Offset: 2})
			require.NoError(t, err)
			require.Len(t, paged, 1)
			assert.Equal(t, "L3", paged[0].ID)
		})
	}
}

func TestRepository_LedgerUpsertRejectsMatched(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			seed(t, repo)
			require.NoError(t, repo.ResolveBankTransaction(ctx, "b1", statement.Matched, "L1"))

			// Act
			err := repo.SaveLedgerTransactions(ctx, []ledger.Transaction{
				makeLedgerTxn("L3", "9.99", ledger.Expense),
				makeLedgerTxn("L1", "7.00", ledger.Expense),
			})

			// Assert
			assert.ErrorIs(t, err, ErrLedgerTaken)

			l1, err := repo.GetLedgerTransaction(ctx, "L1")
			require.NoError(t, err)
			assert.Equal(t, ledger.Income, l1.Kind)
			assert.Equal(t, "200.25", l1.Amount.StringFixed(2))
			assert.Equal(t, "b1", l1.MatchedBankID)

			_, err = repo.GetLedgerTransaction(ctx, "L3")
			assert.ErrorIs(t, err, ErrNotFound, "nothing from the batch is stored")

			// Unmatched entries can still be replaced
			require.NoError(t, repo.SaveLedgerTransactions(ctx, []ledger.Transaction{
				makeLedgerTxn("L2", "51.00", ledger.Expense),
			}))
		})
	}
}

func TestRepository_Runs(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, repo)

			first := &ReconciliationRun{StatementID: "s1", StartedAt: time.Now(), CompletedAt: time.Now(), Threshold: 80, BankCount: 3}
			_, err := repo.SaveRun(ctx, first, []Suggestion{{BankTransactionID: "b1", Score: 50}})
			require.NoError(t, err)

			second := &ReconciliationRun{
				StatementID:    "s1",
				StartedAt:      time.Now(),
				CompletedAt:    time.Now(),
				Exclusive:      true,
				Threshold:      80,
				BankCount:      3,
				LedgerCount:    2,
				SuggestedCount: 2,
			}
			id, err := repo.SaveRun(ctx, second, []Suggestion{
				{BankTransactionID: "b3", Score: 0, Candidates: 1},
				{BankTransactionID: "b1", LedgerTransactionID: "L1", Score: 100, Candidates: 1, BasePoints: 60, DatePoints: 40, DatesKnown: true},
				{BankTransactionID: "b2", LedgerTransactionID: "L2", Score: 90, Candidates: 1, BasePoints: 60, DatePoints: 30, DaysApart: 1, DatesKnown: true},
			})
			require.NoError(t, err)
			assert.Equal(t, id, second.ID)
			assert.Greater(t, second.ID, first.ID)

			run, suggestions, err := repo.LatestRun(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, second.ID, run.ID)
			assert.True(t, run.Exclusive)
			assert.Equal(t, 2, run.SuggestedCount)

			// Bank transaction order, not insert order
			require.Len(t, suggestions, 3)
			assert.Equal(t, "b1", suggestions[0].BankTransactionID)
			assert.Equal(t, "L1", suggestions[0].LedgerTransactionID)
			assert.Equal(t, 40, suggestions[0].DatePoints)
			assert.Equal(t, 1.0, suggestions[1].DaysApart)
			assert.Empty(t, suggestions[2].LedgerTransactionID)
			assert.Equal(t, id, suggestions[2].RunID)
		})
	}
}
