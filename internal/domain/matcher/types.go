package matcher

import (
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
)

// DateTier awards Points when the bank and ledger dates are at most MaxDays apart.
type DateTier struct {
	MaxDays float64
	Points  int
}

// Config holds matcher configuration
type Config struct {
	AmountTolerance   decimal.Decimal // Amounts differing by this much or more score 0 (default: 0.01)
	BaseScore         int             // Points for an exact amount (default: 60)
	DateTiers         []DateTier      // Checked in order; first tier that fits wins
	DistantDatePoints int             // Applied when no tier fits (default: -10)
	SuggestThreshold  int             // Minimum score for a suggestion (default: 80)
	Workers           int             // >1 scores bank transactions in parallel
}

// DefaultConfig returns the standard scoring table
func DefaultConfig() Config {
	return Config{
		AmountTolerance: decimal.New(1, -2),
		BaseScore:       60,
		DateTiers: []DateTier{
			{MaxDays: 0.5, Points: 40},
			{MaxDays: 1, Points: 30},
			{MaxDays: 3, Points: 15},
		},
		DistantDatePoints: -10,
		SuggestThreshold:  80,
		Workers:           1,
	}
}

// Score bounds. Scores are clamped into this range.
const (
	MinScore = 0
	MaxScore = 100
)

// Breakdown explains how a score was reached.
type Breakdown struct {
	Score         int     `json:"score"`
	AmountMatched bool    `json:"amount_matched"`
	BasePoints    int     `json:"base_points"`
	DatePoints    int     `json:"date_points"`
	DaysApart     float64 `json:"days_apart"`
	DatesKnown    bool    `json:"dates_known"` // false when either date failed to parse
}

// MatchResult is the outcome for one bank transaction.
type MatchResult struct {
	BankTransaction statement.Transaction `json:"bank_transaction"`
	Suggested       *ledger.Transaction   `json:"suggested,omitempty"` // nil below SuggestThreshold
	Score           int                   `json:"score"`
	Breakdown       Breakdown             `json:"breakdown"`  // of the best candidate
	Candidates      int                   `json:"candidates"` // same-direction ledger rows considered
}

// HasSuggestion reports whether a ledger transaction was suggested.
func (r MatchResult) HasSuggestion() bool {
	return r.Suggested != nil
}
