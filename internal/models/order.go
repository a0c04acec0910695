package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderPreparing      OrderStatus = "preparing"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodCard PaymentMethod = "card"
)

// DeliveryAddress is captured at order time. Later profile edits never
// change an existing order's delivery snapshot.
type DeliveryAddress struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Street       string `json:"street"`
	Apartment    string `json:"apartment,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zipcode      string `json:"zipcode"`
	Instructions string `json:"instructions,omitempty"`
	Phone        string `json:"phone"`
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	OrderNumber   string          `json:"order_number"`
	UserID        string          `json:"user_id,omitempty"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone"`
	Delivery      DeliveryAddress `json:"delivery"`
	Subtotal      float64         `json:"subtotal"`
	Tax           float64         `json:"tax"`
	DeliveryFee   float64         `json:"delivery_fee"`
	Total         float64         `json:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Items         []OrderItem     `json:"items,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OrderItem carries product snapshot fields copied from the catalog at
// order time, so historical orders survive later product edits.
type OrderItem struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	UnitPrice  float64   `json:"unit_price"`
	Quantity   int       `json:"quantity"`
	Category   string    `json:"category,omitempty"`
	StrainType string    `json:"strain_type,omitempty"`
	THCPercent *float64  `json:"thc_percent,omitempty"`
	CBDPercent *float64  `json:"cbd_percent,omitempty"`
	Weight     string    `json:"weight,omitempty"`
}

// Product is the catalog record an order item snapshots from.
// StockQuantity is nil for products that do not track inventory.
type Product struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Category      string    `json:"category"`
	StrainType    string    `json:"strain_type,omitempty"`
	THCPercent    *float64  `json:"thc_percent,omitempty"`
	CBDPercent    *float64  `json:"cbd_percent,omitempty"`
	Weight        string    `json:"weight,omitempty"`
	StockQuantity *int      `json:"stock_quantity,omitempty"`
}

type AuditEntry struct {
	ID        uuid.UUID      `json:"id"`
	OrderID   uuid.UUID      `json:"order_id"`
	Action    string         `json:"action"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

const ActionOrderCreated = "ORDER_CREATED"
