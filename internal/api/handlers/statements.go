package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// UploadField is the multipart field carrying the statement file
const UploadField = "file"

// StatementsHandler handles statement upload and retrieval.
type StatementsHandler struct {
	*Base
	maxUploadMB int
}

// NewStatementsHandler creates a new statements handler. maxUploadMB <= 0
// leaves uploads unbounded.
func NewStatementsHandler(svc *reconcile.Service, logger *slog.Logger, maxUploadMB int) *StatementsHandler {
	return &StatementsHandler{
		Base:        NewBase(svc, logger),
		maxUploadMB: maxUploadMB,
	}
}

// Upload handles POST /api/statements - imports a multipart statement file.
// A repeated upload inside the dedup window answers 200 with the earlier import.
func (h *StatementsHandler) Upload(c *gin.Context) {
	if h.maxUploadMB > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(h.maxUploadMB)<<20)
	}

	header, err := c.FormFile(UploadField)
	if err != nil {
		if isTooLarge(err) {
			h.WriteError(c, http.StatusRequestEntityTooLarge, dto.TooLargeError(h.maxUploadMB))
			return
		}
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("multipart field \"file\" is required"))
		return
	}

	f, err := header.Open()
	if err != nil {
		h.WriteServiceError(c, "statement", err)
		return
	}
	defer f.Close()

	res, err := h.svc.ImportStatement(c.Request.Context(), header.Filename, f)
	if err != nil {
		h.WriteServiceError(c, "statement", err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	h.WriteJSON(c, status, res)
}

// List handles GET /api/statements - returns imported statements, newest first.
func (h *StatementsHandler) List(c *gin.Context) {
	params := dto.DefaultStatementListParams()
	if err := c.ShouldBindQuery(&params); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return
	}

	records, err := h.svc.ListStatements(c.Request.Context(), storage.StatementFilter{
		AccountID: params.AccountID,
		Limit:     params.Limit,
		Offset:    params.Offset,
	})
	if err != nil {
		h.WriteServiceError(c, "statements", err)
		return
	}
	if records == nil {
		records = []storage.StatementRecord{}
	}

	h.WriteJSON(c, http.StatusOK, dto.StatementListResponse{
		Statements: records,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
}

// Get handles GET /api/statements/:id - returns a statement and its transactions.
func (h *StatementsHandler) Get(c *gin.Context) {
	detail, err := h.svc.GetStatement(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.WriteServiceError(c, "statement", err)
		return
	}
	h.WriteJSON(c, http.StatusOK, detail)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
