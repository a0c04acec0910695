package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/greenlanehq/greenlane/internal/db"
	"github.com/greenlanehq/greenlane/internal/models"
)

func updateStatus(t *testing.T, f *handlerFixture, authorization, orderID, body string) (*httptest.ResponseRecorder, statusUpdateResponse) {
	t.Helper()

	req := httptest.NewRequest("POST", "/internal/orders/"+orderID+"/status", strings.NewReader(body))
	req = mux.SetURLVars(req, map[string]string{"id": orderID})
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	f.h.UpdateOrderStatus(rec, req)

	var resp statusUpdateResponse
	if rec.Code != http.StatusUnauthorized {
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return rec, resp
}

func TestUpdateOrderStatus_Unauthorized(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec, _ := updateStatus(t, f, "Bearer not-the-token", uuid.New().String(), `{"status":"preparing"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(f.orders.statusCalls) != 0 {
		t.Error("store must not be touched on auth failure")
	}
}

func TestUpdateOrderStatus_InvalidOrderID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec, resp := updateStatus(t, f, "Bearer "+testTriggerToken, "not-a-uuid", `{"status":"preparing"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Error != "invalid order id" {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
}

func TestUpdateOrderStatus_UnsupportedStatus(t *testing.T) {
	t.Parallel()

	tests := []string{"pending", "paid", "shipped", ""}

	for _, status := range tests {
		status := status
		t.Run("status "+status, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			body := fmt.Sprintf(`{"status":%q}`, status)
			rec, resp := updateStatus(t, f, "Bearer "+testTriggerToken, uuid.New().String(), body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if resp.Error != "unsupported status" {
				t.Fatalf("unexpected error: %q", resp.Error)
			}
			if len(f.orders.statusCalls) != 0 {
				t.Error("store must not be touched for an unsupported status")
			}
		})
	}
}

func TestUpdateOrderStatus_TransitionConflict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.orders.updateStatusErr = fmt.Errorf("%w: expected one of [preparing]", db.ErrInvalidStatusTransition)

	rec, resp := updateStatus(t, f, "Bearer "+testTriggerToken, uuid.New().String(), `{"status":"out_for_delivery"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if resp.Success {
		t.Error("response must not report success")
	}
	if len(f.notifier.notices) != 0 {
		t.Error("no notice should be enqueued on a rejected transition")
	}
}

func TestUpdateOrderStatus_StoreErrorIsGeneric(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.orders.updateStatusErr = errors.New("pq: connection reset")

	rec, resp := updateStatus(t, f, "Bearer "+testTriggerToken, uuid.New().String(), `{"status":"preparing"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(resp.Error, "pq:") {
		t.Fatalf("storage detail leaked to client: %q", resp.Error)
	}
}

func TestUpdateOrderStatus_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "GL-260828-A1B2",
		Status:        models.OrderPreparing,
		CustomerEmail: "dana@example.com",
		Total:         53.71,
	}
	f.orders.orders[order.ID] = order

	rec, resp := updateStatus(t, f, "Bearer "+testTriggerToken, order.ID.String(), `{"status":"out_for_delivery"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !resp.Success || resp.Order == nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Order.Status != models.OrderOutForDelivery {
		t.Errorf("status = %q, want %q", resp.Order.Status, models.OrderOutForDelivery)
	}

	if len(f.orders.statusCalls) != 1 {
		t.Fatalf("UpdateStatus called %d times, want 1", len(f.orders.statusCalls))
	}
	call := f.orders.statusCalls[0]
	if call.orderID != order.ID || call.to != models.OrderOutForDelivery {
		t.Fatalf("unexpected transition: %+v", call)
	}
	if len(call.from) != 1 || call.from[0] != models.OrderPreparing {
		t.Fatalf("unexpected source states: %v", call.from)
	}

	if len(f.notifier.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(f.notifier.notices))
	}
	notice := f.notifier.notices[0]
	if notice.orderID != order.ID || notice.updateType != "Out for delivery" {
		t.Fatalf("unexpected notice: %+v", notice)
	}
}

func TestUpdateOrderStatus_NoticeFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: "GL-260828-A1B2",
		Status:      models.OrderPending,
	}
	f.orders.orders[order.ID] = order
	f.notifier.err = errors.New("queue unavailable")

	rec, resp := updateStatus(t, f, "Bearer "+testTriggerToken, order.ID.String(), `{"status":"confirmed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !resp.Success {
		t.Fatal("transition must succeed even when the notice cannot be enqueued")
	}
}
