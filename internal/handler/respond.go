package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/openshelf/shop-api/internal/domain/order"
	"github.com/openshelf/shop-api/internal/domain/product"
	"github.com/openshelf/shop-api/internal/objectstore"
)

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.lg.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// respondError maps a domain error onto an HTTP status and message.
// Unexpected errors become an opaque 500 and are logged.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *product.ValidationError
		fieldErr      *order.FieldError
		notFoundErr   *order.ProductNotFoundError
		stockErr      *order.InsufficientStockError
		stateErr      *order.InvalidStateError
	)

	switch {
	case errors.Is(err, product.ErrNotFound), errors.Is(err, order.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validationErr),
		errors.As(err, &fieldErr),
		errors.As(err, &notFoundErr),
		errors.As(err, &stockErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &stateErr):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, objectstore.ErrDisabled):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.lg.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
