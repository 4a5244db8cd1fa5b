package statement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NoDescription is used when a transaction carries no memo.
const NoDescription = "Sem descrição"

// Kind is the direction of a bank movement.
type Kind int

const (
	Credit Kind = iota + 1
	Debit
)

func (k Kind) String() string {
	switch k {
	case Credit:
		return "CREDIT"
	case Debit:
		return "DEBIT"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind converts "CREDIT" or "DEBIT" (any case) into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREDIT":
		return Credit, nil
	case "DEBIT":
		return Debit, nil
	}
	return 0, fmt.Errorf("unknown transaction kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k != Credit && k != Debit {
		return nil, fmt.Errorf("invalid transaction kind %d", int(k))
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

// Status tracks where a bank transaction is in the reconciliation workflow.
// The reader always produces Pending; other states are set by the caller.
type Status int

const (
	Pending Status = iota + 1
	Matched
	Ignored
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Matched:
		return "MATCHED"
	case Ignored:
		return "IGNORED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus converts PENDING, MATCHED or IGNORED (any case) into a Status.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return Pending, nil
	case "MATCHED":
		return Matched, nil
	case "IGNORED":
		return Ignored, nil
	}
	return 0, fmt.Errorf("unknown reconciliation status %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s < Pending || s > Ignored {
		return nil, fmt.Errorf("invalid reconciliation status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Transaction is a single movement as reported by the bank.
type Transaction struct {
	ExternalID  string          `json:"external_id"`
	PostedDate  string          `json:"posted_date"` // YYYY-MM-DD, not calendar-checked
	Amount      decimal.Decimal `json:"amount"`      // always >= 0
	Kind        Kind            `json:"kind"`
	Description string          `json:"description"`
	Status      Status          `json:"status"`

	// DeclaredType is the raw TRNTYPE value. Kind never depends on it.
	DeclaredType string `json:"declared_type,omitempty"`
}

// SignedAmount returns the amount with credits positive and debits negative.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Kind == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Statement is the parsed content of one statement file.
type Statement struct {
	InstitutionID  string          `json:"institution_id"`
	BranchID       string          `json:"branch_id"`
	AccountID      string          `json:"account_id"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Transactions   []Transaction   `json:"transactions"`
	Warnings       []Warning       `json:"warnings,omitempty"`
}

// DeriveClosingBalance returns opening balance plus every signed amount.
func DeriveClosingBalance(opening decimal.Decimal, txns []Transaction) decimal.Decimal {
	total := opening
	for _, t := range txns {
		total = total.Add(t.SignedAmount())
	}
	return total
}

// WarningCode classifies something the reader tolerated.
type WarningCode string

const (
	WarnMissingField      WarningCode = "missing_field"
	WarnInvalidDate       WarningCode = "invalid_date"
	WarnInvalidAmount     WarningCode = "invalid_amount"
	WarnUnterminatedBlock WarningCode = "unterminated_block"
	WarnKindConflict      WarningCode = "kind_conflict"
)

// Warning describes a transaction block that was dropped or looked suspicious.
// Block is the zero-based position of the block in the file.
type Warning struct {
	Block      int         `json:"block"`
	ExternalID string      `json:"external_id,omitempty"`
	Code       WarningCode `json:"code"`
	Detail     string      `json:"detail"`
}

// Dropped reports whether the warning caused the block to be skipped.
func (w Warning) Dropped() bool {
	return w.Code != WarnKindConflict
}
