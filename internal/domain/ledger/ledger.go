// Package ledger models the internal financial records a statement is
// reconciled against.
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is the direction of a ledger entry.
type Kind int

const (
	Income Kind = iota + 1
	Expense
)

func (k Kind) String() string {
	switch k {
	case Income:
		return "INCOME"
	case Expense:
		return "EXPENSE"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind converts "INCOME" or "EXPENSE" (any case) into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INCOME":
		return Income, nil
	case "EXPENSE":
		return Expense, nil
	}
	return 0, fmt.Errorf("unknown ledger kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k != Income && k != Expense {
		return nil, fmt.Errorf("invalid ledger kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Transaction is an already-recorded receivable or payable.
// Dates are ISO YYYY-MM-DD strings; any of them may be empty.
type Transaction struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	PaidDate    string          `json:"paid_date,omitempty"`
	DueDate     string          `json:"due_date,omitempty"`
	IssueDate   string          `json:"issue_date,omitempty"`
}

// ReferenceDate is the settlement date if known, else the due date, else
// the issue date.
func (t Transaction) ReferenceDate() string {
	switch {
	case t.PaidDate != "":
		return t.PaidDate
	case t.DueDate != "":
		return t.DueDate
	default:
		return t.IssueDate
	}
}

// Validation errors
var (
	ErrInvalidKind   = errors.New("ledger kind must be INCOME or EXPENSE")
	ErrInvalidAmount = errors.New("ledger amount must be positive")
	ErrNoDate        = errors.New("ledger transaction needs a paid, due or issue date")
)

// Validate checks the invariants callers rely on: a known kind, a positive
// amount and at least one date to reconcile against.
func (t Transaction) Validate() error {
	if t.Kind != Income && t.Kind != Expense {
		return ErrInvalidKind
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if t.ReferenceDate() == "" {
		return ErrNoDate
	}
	return nil
}
