package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentEventStore is the idempotency ledger for inbound webhooks.
// (provider, event_id) is unique; Record reports whether this call was
// the first to see the event.
type PaymentEventStore struct {
	pool *pgxpool.Pool
}

func NewPaymentEventStore(pool *pgxpool.Pool) *PaymentEventStore {
	return &PaymentEventStore{pool: pool}
}

func (s *PaymentEventStore) Record(ctx context.Context, provider, eventID string) (bool, error) {
	query := `
		INSERT INTO payment_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT (provider, event_id) DO NOTHING
	`
	cmdTag, err := s.pool.Exec(ctx, query, provider, eventID)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}
