// Package payments provides payment provider webhook validation.
package payments

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// ProviderName keys ledger entries for this payment provider.
const ProviderName = "stripe"

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// ReadWebhookEvent verifies the HMAC signature over the raw body and
// returns the decoded event. Signature failures are authentication
// failures, not processing failures.
func ReadWebhookEvent(r *http.Request, secret string) (*stripeapi.Event, error) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		return nil, fmt.Errorf("missing stripe signature header")
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature validation failed: %w", err)
	}

	return &event, nil
}

// OrderIDFromEvent extracts the order id threaded through the payment
// intent's metadata at checkout-session creation time.
func OrderIDFromEvent(event *stripeapi.Event) (string, error) {
	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return "", fmt.Errorf("failed to decode payment intent: %w", err)
	}
	orderID := intent.Metadata["order_id"]
	if orderID == "" {
		return "", fmt.Errorf("payment intent %s carries no order_id metadata", intent.ID)
	}
	return orderID, nil
}
