package dto

import (
	"time"

	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a healthy response stamped with the current time.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// StatementListResponse is returned by GET /api/statements.
type StatementListResponse struct {
	Statements []storage.StatementRecord `json:"statements"`
	Limit      int                       `json:"limit"`
	Offset     int                       `json:"offset"`
}

// LedgerListResponse is returned by GET /api/ledger.
type LedgerListResponse struct {
	Transactions []storage.LedgerRecord `json:"transactions"`
	Limit        int                    `json:"limit"`
	Offset       int                    `json:"offset"`
}

// AddLedgerResponse is returned by POST /api/ledger.
type AddLedgerResponse struct {
	Saved        int                  `json:"saved"`
	Transactions []ledger.Transaction `json:"transactions"`
}

// ImportResponse is returned by POST /api/statements.
type ImportResponse = reconcile.ImportResult

// StatementResponse is returned by GET /api/statements/:id.
type StatementResponse = reconcile.StatementDetail

// RunResponse is returned by the reconcile and suggestions endpoints.
type RunResponse = reconcile.RunResult
