package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/greenlanehq/greenlane/internal/logging"
	"github.com/greenlanehq/greenlane/internal/models"
)

type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *models.NotificationJob) error
}

// OrderNotifier translates order lifecycle events into notification
// jobs. Enqueueing happens only after the triggering business event
// has fully committed.
type OrderNotifier struct {
	jobs         JobEnqueuer
	adminEmail   string
	emailEnabled bool
	smsEnabled   bool
	logger       *slog.Logger
}

func NewOrderNotifier(jobs JobEnqueuer, adminEmail string, emailEnabled, smsEnabled bool, logger *slog.Logger) *OrderNotifier {
	return &OrderNotifier{
		jobs:         jobs,
		adminEmail:   adminEmail,
		emailEnabled: emailEnabled,
		smsEnabled:   smsEnabled,
		logger:       logger,
	}
}

// OrderCreated enqueues the post-checkout notifications. Cash orders
// get their confirmation immediately; card orders wait for the payment
// webhook to confirm. The admin alert always goes out.
func (n *OrderNotifier) OrderCreated(ctx context.Context, order *models.Order) error {
	var errs []error

	if order.PaymentMethod == models.PaymentMethodCash {
		errs = append(errs, n.enqueueConfirmation(ctx, order))
	}

	if n.emailEnabled && n.adminEmail != "" {
		errs = append(errs, n.jobs.Enqueue(ctx, &models.NotificationJob{
			Channel:   models.ChannelEmail,
			Kind:      models.KindAdminAlert,
			Recipient: n.adminEmail,
			OrderID:   order.ID,
			Priority:  models.PriorityNormal,
		}))
	}

	return errors.Join(errs...)
}

// PaymentConfirmed enqueues the deferred confirmation once a card
// payment clears.
func (n *OrderNotifier) PaymentConfirmed(ctx context.Context, order *models.Order) error {
	return n.enqueueConfirmation(ctx, order)
}

// StatusChanged enqueues a customer-facing status update notice.
func (n *OrderNotifier) StatusChanged(ctx context.Context, order *models.Order, updateType, message string) error {
	if !n.emailEnabled {
		return nil
	}
	return n.jobs.Enqueue(ctx, &models.NotificationJob{
		Channel:       models.ChannelEmail,
		Kind:          models.KindStatusUpdate,
		Recipient:     order.CustomerEmail,
		OrderID:       order.ID,
		UpdateType:    updateType,
		UpdateMessage: message,
		Priority:      models.PriorityNormal,
	})
}

func (n *OrderNotifier) enqueueConfirmation(ctx context.Context, order *models.Order) error {
	logger := logging.FromContext(ctx, n.logger)
	var errs []error

	if n.emailEnabled {
		errs = append(errs, n.jobs.Enqueue(ctx, &models.NotificationJob{
			Channel:   models.ChannelEmail,
			Kind:      models.KindOrderConfirmation,
			Recipient: order.CustomerEmail,
			OrderID:   order.ID,
			Priority:  models.PriorityHigh,
		}))
	}

	if n.smsEnabled && order.CustomerPhone != "" {
		errs = append(errs, n.jobs.Enqueue(ctx, &models.NotificationJob{
			Channel:   models.ChannelSMS,
			Kind:      models.KindOrderConfirmation,
			Recipient: order.CustomerPhone,
			OrderID:   order.ID,
			Priority:  models.PriorityNormal,
		}))
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error("failed to enqueue confirmation notifications", "error", err, "order_id", order.ID)
		return err
	}
	return nil
}
