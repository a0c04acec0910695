package checkout

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenlanehq/greenlane/internal/logging"
	"github.com/greenlanehq/greenlane/internal/models"
)

type OrderStore interface {
	InsertHeader(ctx context.Context, order *models.Order) error
	InsertItem(ctx context.Context, item *models.OrderItem) error
	DeleteItems(ctx context.Context, orderID uuid.UUID) error
	Delete(ctx context.Context, orderID uuid.UUID) error
}

type ProductStore interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error
}

type AuditStore interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// SuccessHook runs after the order has fully committed. Hook failures
// are logged but never fail the order.
type SuccessHook func(ctx context.Context, order *models.Order) error

// Processor turns a validated order request into a durable order.
// The underlying store offers no multi-statement transaction from this
// execution context, so partial failures are unwound with compensating
// deletes.
type Processor struct {
	orders       OrderStore
	products     ProductStore
	audit        AuditStore
	onSuccess    SuccessHook
	numberPrefix string
	logger       *slog.Logger
	now          func() time.Time
}

func NewProcessor(orders OrderStore, products ProductStore, audit AuditStore, onSuccess SuccessHook, numberPrefix string, logger *slog.Logger) *Processor {
	return &Processor{
		orders:       orders,
		products:     products,
		audit:        audit,
		onSuccess:    onSuccess,
		numberPrefix: numberPrefix,
		logger:       logger,
		now:          time.Now,
	}
}

func (p *Processor) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, p.logger)
}

// Process persists the order, its items and inventory effects, then
// fires the success hook. On error after the header commits, any
// partial state is rolled back best-effort and the original error is
// returned.
func (p *Processor) Process(ctx context.Context, req *OrderRequest) (*models.Order, error) {
	logger := p.loggerFromContext(ctx)

	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   p.generateOrderNumber(),
		UserID:        req.UserID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Delivery:      req.Delivery,
		Subtotal:      req.Subtotal,
		Tax:           req.Tax,
		DeliveryFee:   req.DeliveryFee,
		Total:         req.Total,
		PaymentMethod: req.PaymentMethod,
		Status:        models.OrderPending,
		PaymentStatus: models.PaymentPending,
	}

	// A duplicate order number surfaces here as a unique-constraint
	// violation. No retry: collisions are rare enough to propagate.
	if err := p.orders.InsertHeader(ctx, order); err != nil {
		return nil, &ProcessingError{Step: "insert order", Err: err}
	}

	products, err := p.products.GetByIDs(ctx, distinctProductIDs(req.Items))
	if err != nil {
		p.rollback(ctx, order.ID)
		return nil, &ProcessingError{Step: "fetch products", Err: err}
	}

	for _, reqItem := range req.Items {
		item := buildItem(order.ID, reqItem, products[reqItem.ProductID])
		if products[reqItem.ProductID] == nil {
			logger.Warn("product missing at order time, using client-supplied snapshot",
				"order_id", order.ID, "product_id", reqItem.ProductID)
		}
		if err := p.orders.InsertItem(ctx, item); err != nil {
			p.rollback(ctx, order.ID)
			return nil, &ProcessingError{Step: "insert items", Err: err}
		}
		order.Items = append(order.Items, *item)
	}

	for _, reqItem := range req.Items {
		product := products[reqItem.ProductID]
		if product == nil || product.StockQuantity == nil {
			continue
		}
		if *product.StockQuantity < reqItem.Quantity {
			p.rollback(ctx, order.ID)
			return nil, &InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   reqItem.Quantity,
				Available:   *product.StockQuantity,
			}
		}
	}

	// Inventory is eventually consistent: a failed decrement is logged,
	// not fatal.
	for _, reqItem := range req.Items {
		product := products[reqItem.ProductID]
		if product == nil || product.StockQuantity == nil {
			continue
		}
		if err := p.products.DecrementStock(ctx, product.ID, reqItem.Quantity); err != nil {
			logger.Error("failed to decrement stock",
				"error", err, "order_id", order.ID, "product_id", product.ID, "quantity", reqItem.Quantity)
		}
	}

	if err := p.audit.Record(ctx, &models.AuditEntry{
		OrderID: order.ID,
		Action:  models.ActionOrderCreated,
		Detail: map[string]any{
			"order_number": order.OrderNumber,
			"total":        order.Total,
			"item_count":   len(order.Items),
		},
	}); err != nil {
		logger.Error("failed to write audit entry", "error", err, "order_id", order.ID)
	}

	if p.onSuccess != nil {
		if err := p.onSuccess(ctx, order); err != nil {
			logger.Error("order success hook failed", "error", err, "order_id", order.ID, "order_number", order.OrderNumber)
		}
	}

	logger.Info("order created",
		"order_id", order.ID, "order_number", order.OrderNumber,
		"total", order.Total, "items", len(order.Items), "payment_method", order.PaymentMethod)

	return order, nil
}

// rollback unwinds a partially created order: items first, then the
// header. A rollback failure is unrecoverable and only logged so the
// original error keeps propagating.
func (p *Processor) rollback(ctx context.Context, orderID uuid.UUID) {
	logger := p.loggerFromContext(ctx)
	if err := p.orders.DeleteItems(ctx, orderID); err != nil {
		logger.Error("rollback failed deleting order items", "error", err, "order_id", orderID)
		return
	}
	if err := p.orders.Delete(ctx, orderID); err != nil {
		logger.Error("rollback failed deleting order", "error", err, "order_id", orderID)
	}
}

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateOrderNumber produces PREFIX-YYMMDD-XXXX with a random
// 4-character uppercase alphanumeric suffix. Uniqueness is enforced by
// the storage constraint, not re-verified here.
func (p *Processor) generateOrderNumber() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; fall back
		// to a time-derived suffix rather than panicking.
		nanos := p.now().UnixNano()
		for i := range buf {
			buf[i] = byte(nanos >> (8 * i))
		}
	}
	suffix := make([]byte, 4)
	for i, b := range buf {
		suffix[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", p.numberPrefix, p.now().Format("060102"), suffix)
}

func distinctProductIDs(items []RequestItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func buildItem(orderID uuid.UUID, reqItem RequestItem, product *models.Product) *models.OrderItem {
	item := &models.OrderItem{
		ID:        uuid.New(),
		OrderID:   orderID,
		ProductID: reqItem.ProductID,
		Name:      reqItem.Name,
		UnitPrice: reqItem.Price,
		Quantity:  reqItem.Quantity,
		Weight:    reqItem.Weight,
	}
	if product != nil {
		item.Name = product.Name
		item.UnitPrice = product.Price
		item.Category = product.Category
		item.StrainType = product.StrainType
		item.THCPercent = product.THCPercent
		item.CBDPercent = product.CBDPercent
		if product.Weight != "" {
			item.Weight = product.Weight
		}
	}
	return item
}
