package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/greenlanehq/greenlane/internal/cache"
	"github.com/greenlanehq/greenlane/internal/payments"
)

// webhookIdempotencyTTL is how long processed event ids stay in the
// cache fast path; the ledger guards forever.
const webhookIdempotencyTTL = 24 * time.Hour

// PaymentWebhook applies payment provider events at most once. The
// provider retries on non-2xx, so internal processing errors still
// answer 200; only a bad signature is rejected, with 401.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	event, err := payments.ReadWebhookEvent(r, h.config.PaymentWebhookSecret)
	if err != nil {
		logger.Error("failed to verify payment webhook", "error", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}
	if event.ID == "" {
		logger.Error("payment webhook missing event id")
		http.Error(w, "Missing event ID", http.StatusUnauthorized)
		return
	}

	cacheKey := cache.WebhookKey(payments.ProviderName, event.ID)
	if _, err := h.cacheProvider.Get(ctx, cacheKey); err == nil {
		logger.Info("payment event already processed", "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	recorded, err := h.ledger.Record(ctx, payments.ProviderName, event.ID)
	if err != nil {
		logger.Error("failed to record payment event", "error", err, "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}
	if !recorded {
		logger.Info("payment event already in ledger", "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.applyPaymentEvent(ctx, event); err != nil {
		logger.Error("failed to apply payment event", "error", err, "event_id", event.ID, "type", event.Type)
	} else if err := h.cacheProvider.Set(ctx, cacheKey, "processed", webhookIdempotencyTTL); err != nil {
		logger.Error("failed to cache processed payment event", "error", err, "event_id", event.ID)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) applyPaymentEvent(ctx context.Context, event *stripeapi.Event) error {
	logger := h.loggerFromContext(ctx)

	switch string(event.Type) {
	case payments.EventPaymentSucceeded:
		orderID, err := h.orderIDFromEvent(event)
		if err != nil {
			return err
		}
		if err := h.orderStore.MarkPaid(ctx, orderID); err != nil {
			return err
		}
		order, err := h.orderStore.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := h.notifier.PaymentConfirmed(ctx, order); err != nil {
			// The payment state change already committed; a missed
			// notification is logged, not unwound.
			logger.Error("failed to enqueue payment confirmation", "error", err, "order_id", orderID)
		}
		logger.Info("order payment confirmed", "order_id", orderID, "order_number", order.OrderNumber)
		return nil

	case payments.EventPaymentFailed:
		orderID, err := h.orderIDFromEvent(event)
		if err != nil {
			return err
		}
		if err := h.orderStore.MarkPaymentFailed(ctx, orderID); err != nil {
			return err
		}
		logger.Info("order payment failed", "order_id", orderID)
		return nil

	default:
		logger.Debug("ignoring payment event", "type", event.Type)
		return nil
	}
}

func (h *Handlers) orderIDFromEvent(event *stripeapi.Event) (uuid.UUID, error) {
	raw, err := payments.OrderIDFromEvent(event)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(raw)
}
