// Package matcher scores bank statement transactions against ledger
// transactions and suggests the most likely pairing.
//
// Scoring is deterministic:
//   - Amounts must agree within AmountTolerance (1 cent), otherwise the score is 0
//   - An exact amount earns the base score (60)
//   - Date proximity adds +40 (same day), +30 (1 day) or +15 (3 days), and
//     anything further away costs 10 points
//   - The result is clamped to [0, 100]
//
// A ledger transaction is suggested only when the best score reaches the
// threshold (80), i.e. exact amount and at most one day apart.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	results := m.Match(stmt.Transactions, ledgerTxns)
//	for _, r := range results {
//		if r.Suggested != nil {
//			// present r.Suggested for confirmation
//		}
//	}
package matcher

import (
	"math"
	"sync"
	"time"

	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
)

const isoDate = "2006-01-02"

// Matcher matches bank transactions with ledger transactions
type Matcher struct {
	config Config
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) *Matcher {
	return &Matcher{
		config: config,
	}
}

// Config returns the matcher configuration
func (m *Matcher) Config() Config {
	return m.config
}

var defaultMatcher = NewMatcher(DefaultConfig())

// MatchTransactions runs the default matcher.
func MatchTransactions(bank []statement.Transaction, entries []ledger.Transaction) []MatchResult {
	return defaultMatcher.Match(bank, entries)
}

// Score runs the default scoring table for a single pair.
func Score(b statement.Transaction, s ledger.Transaction) int {
	return defaultMatcher.Score(b, s).Score
}

// Compatible reports whether a bank kind may pair with a ledger kind:
// credits with income, debits with expenses.
func Compatible(bank statement.Kind, entry ledger.Kind) bool {
	return (bank == statement.Credit && entry == ledger.Income) ||
		(bank == statement.Debit && entry == ledger.Expense)
}

// Match returns one result per bank transaction, in input order.
func (m *Matcher) Match(bank []statement.Transaction, entries []ledger.Transaction) []MatchResult {
	results := make([]MatchResult, len(bank))

	workers := m.config.Workers
	if workers <= 1 || len(bank) < 2 {
		for i := range bank {
			results[i] = m.best(bank[i], entries)
		}
		return results
	}

	workers = min(workers, len(bank))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = m.best(bank[i], entries)
			}
		}()
	}
	for i := range bank {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// best scans compatible entries in order. Ties keep the earliest entry.
func (m *Matcher) best(b statement.Transaction, entries []ledger.Transaction) MatchResult {
	result := MatchResult{BankTransaction: b}
	bestIdx := -1

	for i := range entries {
		if !Compatible(b.Kind, entries[i].Kind) {
			continue
		}
		result.Candidates++

		bd := m.Score(b, entries[i])
		if bestIdx < 0 || bd.Score > result.Score {
			bestIdx = i
			result.Score = bd.Score
			result.Breakdown = bd
		}
	}

	if bestIdx >= 0 && result.Score >= m.config.SuggestThreshold {
		suggested := entries[bestIdx]
		result.Suggested = &suggested
	}
	return result
}

// Score computes the confidence that b and s are the same movement.
// Kinds are not checked here; Match filters them first.
func (m *Matcher) Score(b statement.Transaction, s ledger.Transaction) Breakdown {
	var bd Breakdown

	if b.Amount.Sub(s.Amount).Abs().GreaterThanOrEqual(m.config.AmountTolerance) {
		return bd
	}
	bd.AmountMatched = true
	bd.BasePoints = m.config.BaseScore

	days, ok := daysBetween(b.PostedDate, s.ReferenceDate())
	bd.DatesKnown = ok
	bd.DaysApart = days
	bd.DatePoints = m.datePoints(days, ok)

	bd.Score = clamp(bd.BasePoints + bd.DatePoints)
	return bd
}

func (m *Matcher) datePoints(days float64, known bool) int {
	if known {
		for _, tier := range m.config.DateTiers {
			if days <= tier.MaxDays {
				return tier.Points
			}
		}
	}
	return m.config.DistantDatePoints
}

// daysBetween returns the absolute distance in days between two ISO dates.
// Unparseable dates (including impossible ones like 2024-01-32) report false.
func daysBetween(a, b string) (float64, bool) {
	ta, err := time.Parse(isoDate, a)
	if err != nil {
		return 0, false
	}
	tb, err := time.Parse(isoDate, b)
	if err != nil {
		return 0, false
	}
	return math.Abs(ta.Sub(tb).Hours() / 24), true
}

func clamp(score int) int {
	return max(MinScore, min(MaxScore, score))
}
