package matcher

import (
	"sort"

	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
)

type scoredPair struct {
	bank  int
	entry int
	bd    Breakdown
}

// MatchExclusive works like Match but never suggests the same ledger
// transaction for two bank transactions. Ledger IDs in used (already
// confirmed elsewhere) are not considered at all.
//
// Pairs at or above the threshold are assigned greedily by score, then bank
// order, then ledger order, so the result is deterministic. A bank
// transaction that loses its best candidate is rescored against what is left.
func (m *Matcher) MatchExclusive(
	bank []statement.Transaction,
	entries []ledger.Transaction,
	used map[string]bool,
) []MatchResult {
	available := make([]ledger.Transaction, 0, len(entries))
	for _, e := range entries {
		if e.ID != "" && used[e.ID] {
			continue
		}
		available = append(available, e)
	}

	var pairs []scoredPair
	for i := range bank {
		for j := range available {
			if !Compatible(bank[i].Kind, available[j].Kind) {
				continue
			}
			bd := m.Score(bank[i], available[j])
			if bd.Score >= m.config.SuggestThreshold {
				pairs = append(pairs, scoredPair{bank: i, entry: j, bd: bd})
			}
		}
	}

	sort.SliceStable(pairs, func(x, y int) bool {
		if pairs[x].bd.Score != pairs[y].bd.Score {
			return pairs[x].bd.Score > pairs[y].bd.Score
		}
		if pairs[x].bank != pairs[y].bank {
			return pairs[x].bank < pairs[y].bank
		}
		return pairs[x].entry < pairs[y].entry
	})

	assigned := make(map[int]scoredPair)
	taken := make(map[int]bool)
	for _, p := range pairs {
		if _, ok := assigned[p.bank]; ok || taken[p.entry] {
			continue
		}
		assigned[p.bank] = p
		taken[p.entry] = true
	}

	remaining := make([]ledger.Transaction, 0, len(available)-len(taken))
	for j := range available {
		if !taken[j] {
			remaining = append(remaining, available[j])
		}
	}

	results := make([]MatchResult, len(bank))
	for i, b := range bank {
		candidates := countCompatible(b.Kind, available)

		p, ok := assigned[i]
		if !ok {
			// Every candidate at or above the threshold is taken, so this
			// cannot produce a suggestion.
			results[i] = m.best(b, remaining)
			results[i].Candidates = candidates
			continue
		}

		suggested := available[p.entry]
		results[i] = MatchResult{
			BankTransaction: b,
			Suggested:       &suggested,
			Score:           p.bd.Score,
			Breakdown:       p.bd,
			Candidates:      candidates,
		}
	}

	return results
}

func countCompatible(kind statement.Kind, entries []ledger.Transaction) int {
	n := 0
	for i := range entries {
		if Compatible(kind, entries[i].Kind) {
			n++
		}
	}
	return n
}
