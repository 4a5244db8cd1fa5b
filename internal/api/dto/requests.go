package dto

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
)

// LedgerTransactionRequest is one ledger entry in an AddLedgerRequest.
// Amount accepts a JSON number or a numeric string.
type LedgerTransactionRequest struct {
	ID          string      `json:"id" binding:"omitempty,max=64"`
	Kind        string      `json:"kind" binding:"required,oneof=INCOME EXPENSE income expense"`
	Amount      json.Number `json:"amount" binding:"required"`
	Description string      `json:"description" binding:"max=1000"`
	PaidDate    string      `json:"paid_date" binding:"omitempty,datetime=2006-01-02"`
	DueDate     string      `json:"due_date" binding:"omitempty,datetime=2006-01-02"`
	IssueDate   string      `json:"issue_date" binding:"omitempty,datetime=2006-01-02"`
}

// ToDomain converts the request into a ledger transaction
func (r LedgerTransactionRequest) ToDomain() (ledger.Transaction, error) {
	kind, err := ledger.ParseKind(r.Kind)
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount, err := decimal.NewFromString(r.Amount.String())
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("amount %q is not a number", r.Amount.String())
	}
	return ledger.Transaction{
		ID:          r.ID,
		Kind:        kind,
		Amount:      amount,
		Description: r.Description,
		PaidDate:    r.PaidDate,
		DueDate:     r.DueDate,
		IssueDate:   r.IssueDate,
	}, nil
}

// AddLedgerRequest is the body of POST /api/ledger
type AddLedgerRequest struct {
	Transactions []LedgerTransactionRequest `json:"transactions" binding:"required,min=1,max=1000,dive"`
}

// ConfirmRequest is the body of POST /api/bank-transactions/:id/confirm
type ConfirmRequest struct {
	LedgerTransactionID string `json:"ledger_transaction_id" binding:"required"`
}

// StatementListParams represents query parameters for listing statements.
type StatementListParams struct {
	AccountID string `form:"account_id"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

// LedgerListParams represents query parameters for listing ledger transactions.
type LedgerListParams struct {
	Kind      string `form:"kind" binding:"omitempty,oneof=INCOME EXPENSE income expense"`
	Unmatched bool   `form:"unmatched"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

// DefaultStatementListParams returns default values for statement list params.
func DefaultStatementListParams() StatementListParams {
	return StatementListParams{
		Limit: 50,
	}
}

// DefaultLedgerListParams returns default values for ledger list params.
func DefaultLedgerListParams() LedgerListParams {
	return LedgerListParams{
		Limit: 100,
	}
}
