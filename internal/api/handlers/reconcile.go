package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
)

// ReconcileHandler handles reconciliation runs and match decisions.
type ReconcileHandler struct {
	*Base
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(svc *reconcile.Service, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{Base: NewBase(svc, logger)}
}

// Run handles POST /api/statements/:id/reconcile - scores pending
// transactions and returns the new run.
func (h *ReconcileHandler) Run(c *gin.Context) {
	res, err := h.svc.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.WriteServiceError(c, "statement", err)
		return
	}
	h.WriteJSON(c, http.StatusOK, res)
}

// Suggestions handles GET /api/statements/:id/suggestions - returns the
// latest run for the statement.
func (h *ReconcileHandler) Suggestions(c *gin.Context) {
	res, err := h.svc.LatestSuggestions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.WriteServiceError(c, "reconciliation run", err)
		return
	}
	h.WriteJSON(c, http.StatusOK, res)
}

// Confirm handles POST /api/bank-transactions/:id/confirm.
func (h *ReconcileHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return
	}

	rec, err := h.svc.Confirm(c.Request.Context(), c.Param("id"), req.LedgerTransactionID)
	if err != nil {
		h.WriteServiceError(c, "transaction", err)
		return
	}
	h.WriteJSON(c, http.StatusOK, rec)
}

// Ignore handles POST /api/bank-transactions/:id/ignore.
func (h *ReconcileHandler) Ignore(c *gin.Context) {
	rec, err := h.svc.Ignore(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.WriteServiceError(c, "bank transaction", err)
		return
	}
	h.WriteJSON(c, http.StatusOK, rec)
}
