package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/greenlanehq/greenlane/internal/checkout"
	"github.com/greenlanehq/greenlane/internal/models"
)

type orderSummary struct {
	ID          string             `json:"id"`
	OrderNumber string             `json:"order_number"`
	Status      models.OrderStatus `json:"status"`
	Total       float64            `json:"total"`
}

type submitResponse struct {
	Success       bool                  `json:"success"`
	Order         *orderSummary         `json:"order,omitempty"`
	Error         string                `json:"error,omitempty"`
	Details       []checkout.FieldIssue `json:"details,omitempty"`
	CorrelationID string                `json:"correlationId"`
}

// SubmitOrder accepts a checkout submission and creates the order.
// There is no dedicated idempotency key on this path; a caller-side
// timeout can still complete server-side, bounded only by the
// order-number uniqueness constraint.
func (h *Handlers) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	correlationID := RequestIDFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, submitResponse{
			Success:       false,
			Error:         "failed to read request body",
			CorrelationID: correlationID,
		})
		return
	}

	req, err := checkout.Validate(body)
	if err != nil {
		var validationErr *checkout.ValidationError
		if errors.As(err, &validationErr) {
			logger.Info("order submission rejected", "issues", len(validationErr.Issues))
			writeJSON(w, http.StatusBadRequest, submitResponse{
				Success:       false,
				Error:         "order validation failed",
				Details:       validationErr.Issues,
				CorrelationID: correlationID,
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, submitResponse{
			Success:       false,
			Error:         "invalid order submission",
			CorrelationID: correlationID,
		})
		return
	}

	order, err := h.processor.Process(ctx, req)
	if err != nil {
		var stockErr *checkout.InsufficientStockError
		if errors.As(err, &stockErr) {
			logger.Info("order rejected for insufficient stock",
				"product_id", stockErr.ProductID, "requested", stockErr.Requested, "available", stockErr.Available)
			writeJSON(w, http.StatusConflict, submitResponse{
				Success:       false,
				Error:         stockErr.Error(),
				CorrelationID: correlationID,
			})
			return
		}

		// Storage details stay server-side; the client gets a generic
		// message.
		logger.Error("order processing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, submitResponse{
			Success:       false,
			Error:         "failed to process order",
			CorrelationID: correlationID,
		})
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		Success: true,
		Order: &orderSummary{
			ID:          order.ID.String(),
			OrderNumber: order.OrderNumber,
			Status:      order.Status,
			Total:       order.Total,
		},
		CorrelationID: correlationID,
	})
}
