package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/greenlanehq/greenlane/internal/db"
	"github.com/greenlanehq/greenlane/internal/models"
)

// statusTransitions maps each operator-reachable status to the source
// states it may be entered from. Anything absent is not settable over
// HTTP (pending is entry-only, paid/failed belong to the webhook).
var statusTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderConfirmed:      {models.OrderPending},
	models.OrderPreparing:      {models.OrderConfirmed},
	models.OrderOutForDelivery: {models.OrderPreparing},
	models.OrderDelivered:      {models.OrderOutForDelivery},
	models.OrderCancelled:      {models.OrderPending, models.OrderConfirmed, models.OrderPreparing},
}

type statusNotice struct {
	updateType string
	message    string
}

var statusNotices = map[models.OrderStatus]statusNotice{
	models.OrderConfirmed:      {"Confirmed", "Your order has been confirmed."},
	models.OrderPreparing:      {"Being prepared", "Your order is being prepared."},
	models.OrderOutForDelivery: {"Out for delivery", "Your order is on its way."},
	models.OrderDelivered:      {"Delivered", "Your order has been delivered. Enjoy!"},
	models.OrderCancelled:      {"Cancelled", "Your order has been cancelled."},
}

type statusUpdateRequest struct {
	Status models.OrderStatus `json:"status"`
}

type statusUpdateResponse struct {
	Success       bool          `json:"success"`
	Order         *orderSummary `json:"order,omitempty"`
	Error         string        `json:"error,omitempty"`
	CorrelationID string        `json:"correlationId"`
}

// UpdateOrderStatus moves an order along the fulfilment state machine.
// It is an operator endpoint guarded by the same bearer token as the
// queue trigger; a successful transition also enqueues the
// customer-facing status notice.
func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	correlationID := RequestIDFromContext(ctx)

	if !h.authorizeOperator(r) {
		logger.Warn("status update rejected: bad bearer token")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusUpdateResponse{
			Success:       false,
			Error:         "invalid order id",
			CorrelationID: correlationID,
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, statusUpdateResponse{
			Success:       false,
			Error:         "invalid request body",
			CorrelationID: correlationID,
		})
		return
	}

	from, ok := statusTransitions[req.Status]
	if !ok {
		writeJSON(w, http.StatusBadRequest, statusUpdateResponse{
			Success:       false,
			Error:         "unsupported status",
			CorrelationID: correlationID,
		})
		return
	}

	if err := h.orderStore.UpdateStatus(ctx, orderID, req.Status, from...); err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			logger.Info("status update rejected", "order_id", orderID, "status", req.Status)
			writeJSON(w, http.StatusConflict, statusUpdateResponse{
				Success:       false,
				Error:         "order is not in a state that allows this transition",
				CorrelationID: correlationID,
			})
			return
		}
		logger.Error("status update failed", "error", err, "order_id", orderID)
		writeJSON(w, http.StatusInternalServerError, statusUpdateResponse{
			Success:       false,
			Error:         "failed to update order status",
			CorrelationID: correlationID,
		})
		return
	}

	order, err := h.orderStore.GetByID(ctx, orderID)
	if err != nil {
		logger.Error("failed to load order after status update", "error", err, "order_id", orderID)
		writeJSON(w, http.StatusInternalServerError, statusUpdateResponse{
			Success:       false,
			Error:         "failed to load order",
			CorrelationID: correlationID,
		})
		return
	}

	if notice, ok := statusNotices[req.Status]; ok {
		if err := h.notifier.StatusChanged(ctx, order, notice.updateType, notice.message); err != nil {
			// The transition already committed; a missed notice is
			// logged, not unwound.
			logger.Error("failed to enqueue status notice", "error", err, "order_id", orderID)
		}
	}

	logger.Info("order status updated", "order_id", orderID, "order_number", order.OrderNumber, "status", order.Status)
	writeJSON(w, http.StatusOK, statusUpdateResponse{
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
