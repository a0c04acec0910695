package db

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenlanehq/greenlane/internal/models"
)

type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

func (s *AuditStore) Record(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	var detailJSON []byte
	if entry.Detail != nil {
		var err error
		detailJSON, err = json.Marshal(entry.Detail)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO order_audit_log (id, order_id, action, detail)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	return s.pool.QueryRow(ctx, query, entry.ID, entry.OrderID, entry.Action, detailJSON).Scan(&entry.CreatedAt)
}
