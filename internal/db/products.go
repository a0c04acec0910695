package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenlanehq/greenlane/internal/models"
)

type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

// GetByIDs returns a lookup of current product records keyed by id.
// Ids without a matching product are simply absent from the map.
func (s *ProductStore) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*models.Product{}, nil
	}

	query := `
		SELECT id, name, price, category, strain_type, thc_percent, cbd_percent, weight, stock_quantity
		FROM products
		WHERE id = ANY($1)
	`
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[uuid.UUID]*models.Product, len(ids))
	for rows.Next() {
		var product models.Product
		if err := rows.Scan(
			&product.ID, &product.Name, &product.Price, &product.Category,
			&product.StrainType, &product.THCPercent, &product.CBDPercent,
			&product.Weight, &product.StockQuantity,
		); err != nil {
			return nil, err
		}
		products[product.ID] = &product
	}
	return products, rows.Err()
}

// DecrementStock subtracts quantity from a tracked product. The guard
// keeps stock non-negative; callers treat a miss as a best-effort
// failure, not an order failure.
func (s *ProductStore) DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - $1
		WHERE id = $2 AND stock_quantity IS NOT NULL AND stock_quantity >= $1
	`
	cmdTag, err := s.pool.Exec(ctx, query, quantity, productID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("stock decrement skipped for product %s: insufficient or untracked stock", productID)
	}
	return nil
}
