package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/greenlanehq/greenlane/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func testOrder() *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "GL-260828-A1B2",
		CustomerName:  "Dana Smith",
		CustomerEmail: "dana@example.com",
		Delivery: models.DeliveryAddress{
			Street:       "123 Main St",
			Apartment:    "Apt 4",
			City:         "Denver",
			State:        "CO",
			Zipcode:      "80202",
			Instructions: "Ring the bell twice",
		},
		Subtotal:      45.00,
		Tax:           3.71,
		DeliveryFee:   5.00,
		Total:         53.71,
		PaymentMethod: models.PaymentMethodCash,
		Items: []models.OrderItem{
			{
				Name:       "Blue Dream",
				UnitPrice:  25.00,
				Quantity:   1,
				Weight:     "3.5g",
				StrainType: "hybrid",
				THCPercent: floatPtr(22.5),
				CBDPercent: floatPtr(0.8),
			},
			{
				Name:      "Gummies",
				UnitPrice: 10.00,
				Quantity:  2,
			},
		},
		CreatedAt: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildOrderInfo(t *testing.T) {
	t.Parallel()

	info := BuildOrderInfo(testOrder())

	if info.Total != "$53.71" {
		t.Errorf("total = %q, want $53.71", info.Total)
	}
	if info.Address != "123 Main St, Apt 4, Denver, CO 80202" {
		t.Errorf("unexpected address: %q", info.Address)
	}
	if info.OrderDate != "August 28, 2026" {
		t.Errorf("unexpected order date: %q", info.OrderDate)
	}
	if len(info.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(info.Items))
	}
	if info.Items[0].THC != "22.5%" {
		t.Errorf("THC = %q, want 22.5%%", info.Items[0].THC)
	}
	if info.Items[0].CBD != "0.8%" {
		t.Errorf("CBD = %q, want 0.8%%", info.Items[0].CBD)
	}
	if info.Items[1].THC != "" {
		t.Errorf("missing potency should render empty, got %q", info.Items[1].THC)
	}
	if info.Items[1].LineTotal != "$20.00" {
		t.Errorf("line total = %q, want $20.00", info.Items[1].LineTotal)
	}
}

func TestRender_OrderConfirmation(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	subject, body, err := r.Render(models.KindOrderConfirmation, BuildOrderInfo(testOrder()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if subject != "Order Confirmed - GL-260828-A1B2" {
		t.Errorf("unexpected subject: %q", subject)
	}
	for _, want := range []string{
		"Hi Dana Smith",
		"GL-260828-A1B2",
		"Blue Dream x1",
		"(3.5g)",
		"THC 22.5%",
		"CBD 0.8%",
		"Total:        $53.71",
		"123 Main St, Apt 4, Denver, CO 80202",
		"Delivery instructions: Ring the bell twice",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q\n%s", want, body)
		}
	}
}

func TestRender_ConfirmationOmitsEmptyOptionalFields(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := testOrder()
	order.Delivery.Instructions = ""
	order.Items = order.Items[1:] // gummies only: no weight, strain or potency

	_, body, err := r.Render(models.KindOrderConfirmation, BuildOrderInfo(order))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, absent := range []string{"Delivery instructions", "THC", "CBD"} {
		if strings.Contains(body, absent) {
			t.Errorf("body should not contain %q\n%s", absent, body)
		}
	}
}

func TestRender_AdminAlert(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	subject, body, err := r.Render(models.KindAdminAlert, BuildOrderInfo(testOrder()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if subject != "New Order GL-260828-A1B2 - $53.71" {
		t.Errorf("unexpected subject: %q", subject)
	}
	for _, want := range []string{
		"Payment: cash",
		"[ ] Verify payment status",
		"[ ] Assign a driver",
		"Deliver to: Dana Smith",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q\n%s", want, body)
		}
	}
}

func TestRender_StatusUpdate(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info := BuildOrderInfo(testOrder())
	info.UpdateType = "Out for delivery"
	info.UpdateMessage = "Your order is on its way."

	subject, body, err := r.Render(models.KindStatusUpdate, info)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Order GL-260828-A1B2 - Out for delivery" {
		t.Errorf("unexpected subject: %q", subject)
	}
	if !strings.Contains(body, "Your order is on its way.") {
		t.Errorf("body missing update message\n%s", body)
	}
}

func TestRender_UnknownKind(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := r.Render("no_such_kind", BuildOrderInfo(testOrder())); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
