package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ParseStatus validates a status string from the transport layer.
func ParseStatus(v string) (Status, error) {
	switch s := Status(v); s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return s, nil
	default:
		return "", errors.Errorf("unknown order status %q", v)
	}
}

// Order represents a customer's purchase with its line items and lifecycle
// status.
type Order struct {
	ID            int64
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	TotalAmount   decimal.Decimal
	Status        Status
	Items         []Item
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Item is one (product, quantity) line within an order. Price is the unit
// price snapshotted at creation time; it is never recomputed from the
// product.
type Item struct {
	ID          int64
	ProductID   int64
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Subtotal    decimal.Decimal
}

// InsufficientStockError indicates a requested quantity exceeds the
// product's available stock.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		name, e.Available, e.Requested)
}

// InvalidStateError indicates an operation is not allowed in the order's
// current status.
type InvalidStateError struct {
	OrderID int64
	Status  Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %d is %s and cannot change state", e.OrderID, e.Status)
}

// FieldError indicates a malformed or missing order request field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return "invalid order " + e.Field + ": " + e.Reason
}

// Repository defines persistence operations for orders. Create and Cancel
// run inside a single transaction that also moves product stock.
type Repository interface {
	List(ctx context.Context) ([]Order, error)
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByOrderNumber(ctx context.Context, number string) (*Order, error)
	ListByStatus(ctx context.Context, status Status) ([]Order, error)
	// Create persists the order and its items, decrementing each product's
	// stock with an atomic floor check. If any item cannot be satisfied the
	// whole transaction rolls back and an InsufficientStockError (or
	// product.ErrNotFound) is returned.
	Create(ctx context.Context, o *Order) error
	// UpdateStatus overwrites the status of an existing order.
	UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error)
	// Cancel restores each item's quantity to its product's stock and sets
	// the order to CANCELLED, in one transaction. It returns
	// InvalidStateError when the order is already terminal.
	Cancel(ctx context.Context, id int64) (*Order, error)
}
