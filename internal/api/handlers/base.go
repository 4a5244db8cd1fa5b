package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/logging"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// Base provides shared functionality for all handlers.
type Base struct {
	svc    *reconcile.Service
	logger *slog.Logger
}

// NewBase creates a new base handler around the reconciliation service.
func NewBase(svc *reconcile.Service, logger *slog.Logger) *Base {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Base{svc: svc, logger: logger.With(logging.ComponentKey, "api")}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(c *gin.Context, status int, err dto.APIError) {
	c.AbortWithStatusJSON(status, err)
}

// WriteServiceError maps an error returned by the service to a response.
// resource names the thing looked up, for not found messages.
func (b *Base) WriteServiceError(c *gin.Context, resource string, err error) {
	var readErr *statement.ReadError
	var validationErr *reconcile.ValidationError

	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.WriteError(c, http.StatusNotFound, dto.NotFoundError(resource))
	case errors.As(err, &readErr):
		b.WriteError(c, http.StatusBadRequest, dto.BadRequestError(readErr.Error()))
	case errors.As(err, &validationErr):
		b.WriteError(c, http.StatusUnprocessableEntity, dto.ValidationError(validationErr.Error()))
	case errors.Is(err, reconcile.ErrEmptyStatement),
		errors.Is(err, reconcile.ErrKindMismatch):
		b.WriteError(c, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
	case errors.Is(err, reconcile.ErrAlreadyResolved),
		errors.Is(err, reconcile.ErrLedgerAlreadyMatched):
		b.WriteError(c, http.StatusConflict, dto.ConflictError(err.Error()))
	default:
		_ = c.Error(err)
		b.logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		b.WriteError(c, http.StatusInternalServerError, dto.InternalError())
	}
}
