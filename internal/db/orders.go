package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenlanehq/greenlane/internal/models"
)

var ErrInvalidStatusTransition = errors.New("invalid order status transition")

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

func (s *OrderStore) InsertHeader(ctx context.Context, order *models.Order) error {
	deliveryJSON, err := json.Marshal(order.Delivery)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (
			id, order_number, user_id, customer_name, customer_email, customer_phone,
			delivery, subtotal, tax, delivery_fee, total,
			payment_method, status, payment_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`
	row := s.pool.QueryRow(ctx, query,
		order.ID, order.OrderNumber, nullText(order.UserID),
		order.CustomerName, order.CustomerEmail, order.CustomerPhone,
		deliveryJSON, order.Subtotal, order.Tax, order.DeliveryFee, order.Total,
		string(order.PaymentMethod), string(order.Status), string(order.PaymentStatus),
	)
	return row.Scan(&order.CreatedAt, &order.UpdatedAt)
}

func (s *OrderStore) InsertItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (
			id, order_id, product_id, name, unit_price, quantity,
			category, strain_type, thc_percent, cbd_percent, weight
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.pool.Exec(ctx, query,
		item.ID, item.OrderID, item.ProductID, item.Name, item.UnitPrice, item.Quantity,
		item.Category, item.StrainType, item.THCPercent, item.CBDPercent, item.Weight,
	)
	return err
}

func (s *OrderStore) DeleteItems(ctx context.Context, orderID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
	return err
}

func (s *OrderStore) Delete(ctx context.Context, orderID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	return err
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	query := `
		SELECT id, order_number, user_id, customer_name, customer_email, customer_phone,
		       delivery, subtotal, tax, delivery_fee, total,
		       payment_method, status, payment_status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	order, err := scanOrder(s.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		return nil, err
	}

	items, err := s.getItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *OrderStore) getItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, name, unit_price, quantity,
		       category, strain_type, thc_percent, cbd_percent, weight
		FROM order_items
		WHERE order_id = $1
		ORDER BY name
	`
	rows, err := s.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity,
			&item.Category, &item.StrainType, &item.THCPercent, &item.CBDPercent, &item.Weight,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkPaid flips payment to paid and confirms the order. Allowed from a
// pending or previously failed payment so provider retries converge.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET payment_status = $1, status = $2, updated_at = NOW()
		WHERE id = $3 AND payment_status IN ('pending', 'failed')
	`
	cmdTag, err := s.pool.Exec(ctx, query, models.PaymentPaid, models.OrderConfirmed, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected payment pending/failed", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkPaymentFailed records a failed charge. The order itself stays
// pending so the customer can retry.
func (s *OrderStore) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET payment_status = $1, updated_at = NOW()
		WHERE id = $2 AND payment_status = 'pending'
	`
	cmdTag, err := s.pool.Exec(ctx, query, models.PaymentFailed, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected payment pending", ErrInvalidStatusTransition)
	}
	return nil
}

// UpdateStatus moves an order along the fulfilment state machine,
// guarding the allowed source states with the WHERE clause.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID uuid.UUID, to models.OrderStatus, from ...models.OrderStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("at least one source status is required")
	}
	fromStates := make([]string, len(from))
	for i, status := range from {
		fromStates[i] = string(status)
	}

	query := `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
	`
	cmdTag, err := s.pool.Exec(ctx, query, to, orderID, fromStates)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected one of %v", ErrInvalidStatusTransition, fromStates)
	}
	return nil
}

func (s *OrderStore) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE created_at >= $1`, since).Scan(&count)
	return count, err
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order        models.Order
		userID       pgtype.Text
		deliveryJSON []byte
	)
	if err := row.Scan(
		&order.ID, &order.OrderNumber, &userID,
		&order.CustomerName, &order.CustomerEmail, &order.CustomerPhone,
		&deliveryJSON, &order.Subtotal, &order.Tax, &order.DeliveryFee, &order.Total,
		&order.PaymentMethod, &order.Status, &order.PaymentStatus,
		&order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if userID.Valid {
		order.UserID = userID.String
	}
	if deliveryJSON != nil {
		if err := json.Unmarshal(deliveryJSON, &order.Delivery); err != nil {
			return nil, err
		}
	}
	return &order, nil
}

func nullText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}
