package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// LedgerHandler handles ledger transaction requests.
type LedgerHandler struct {
	*Base
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(svc *reconcile.Service, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{Base: NewBase(svc, logger)}
}

// Add handles POST /api/ledger - stores a batch of ledger transactions.
// The batch is all or nothing.
func (h *LedgerHandler) Add(c *gin.Context) {
	var req dto.AddLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return
	}

	txns := make([]ledger.Transaction, 0, len(req.Transactions))
	for i, item := range req.Transactions {
		t, err := item.ToDomain()
		if err != nil {
			h.WriteServiceError(c, "ledger transaction", &reconcile.ValidationError{Index: i, ID: item.ID, Err: err})
			return
		}
		txns = append(txns, t)
	}

	saved, err := h.svc.AddLedgerTransactions(c.Request.Context(), txns)
	if err != nil {
		h.WriteServiceError(c, "ledger transaction", err)
		return
	}

	h.WriteJSON(c, http.StatusCreated, dto.AddLedgerResponse{
		Saved:        len(saved),
		Transactions: saved,
	})
}

// List handles GET /api/ledger - returns stored ledger transactions.
func (h *LedgerHandler) List(c *gin.Context) {
	params := dto.DefaultLedgerListParams()
	if err := c.ShouldBindQuery(&params); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return
	}

	filter := storage.LedgerFilter{
		ExcludeMatched: params.Unmatched,
		Limit:          params.Limit,
		Offset:         params.Offset,
	}
	if params.Kind != "" {
		kind, err := ledger.ParseKind(params.Kind)
		if err != nil {
			h.WriteError(c, http.StatusBadRequest, dto.BadRequestError(err.Error()))
			return
		}
		filter.Kind = kind
	}

	records, err := h.svc.ListLedger(c.Request.Context(), filter)
	if err != nil {
		h.WriteServiceError(c, "ledger transactions", err)
		return
	}
	if records == nil {
		records = []storage.LedgerRecord{}
	}

	h.WriteJSON(c, http.StatusOK, dto.LedgerListResponse{
		Transactions: records,
		Limit:        params.Limit,
		Offset:       params.Offset,
	})
}
