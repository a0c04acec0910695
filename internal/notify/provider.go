// Package notify provides outbound messaging: gateway adapters, the
// guarded send client, and notification body rendering.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/greenlanehq/greenlane/internal/models"
)

// Message is one outbound email or SMS.
type Message struct {
	Channel models.NotificationChannel
	To      string
	Subject string
	Body    string
}

type SendResult struct {
	ProviderMessageID string
}

// Provider is a thin adapter over a transactional messaging HTTP API.
type Provider interface {
	Send(ctx context.Context, msg *Message) (*SendResult, error)
	Healthy(ctx context.Context) error
}

// PermanentError marks a send failure that must not be retried:
// validation-class and 4xx-class provider responses.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent send failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was classified as non-retryable.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
