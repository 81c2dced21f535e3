package order

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openshelf/shop-api/internal/domain/product"
)

// ProductNotFoundError indicates a requested line-item product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// Catalog is the slice of the product service the order service needs:
// cached reads for price snapshots and cache invalidation after stock moves.
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*product.Product, error)
	Invalidate(ids ...int64)
}

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Items         []ItemRequest
}

// ItemRequest is one requested (product, quantity) pair.
type ItemRequest struct {
	ProductID int64
	Quantity  int
}

// Validate checks the request fields without touching any store.
func (r CreateRequest) Validate() error {
	if r.CustomerName == "" {
		return &FieldError{Field: "customerName", Reason: "must not be empty"}
	}
	if r.CustomerEmail != "" {
		if _, err := mail.ParseAddress(r.CustomerEmail); err != nil {
			return &FieldError{Field: "customerEmail", Reason: "must be a valid email address"}
		}
	}
	if len(r.Items) == 0 {
		return &FieldError{Field: "items", Reason: "must contain at least one item"}
	}
	for _, item := range r.Items {
		if item.Quantity <= 0 {
			return &FieldError{
				Field:  "items",
				Reason: fmt.Sprintf("quantity must be greater than 0 for product %d", item.ProductID),
			}
		}
	}
	return nil
}

// Service orchestrates order placement, status changes and cancellation,
// enforcing stock invariants against the product catalog.
type Service struct {
	orders  Repository
	catalog Catalog
	lg      *zap.Logger

	now func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(orders Repository, catalog Catalog, lg *zap.Logger) *Service {
	return &Service{
		orders:  orders,
		catalog: catalog,
		lg:      lg,
		now:     time.Now,
	}
}

// List returns every order with its items.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

// GetByID returns a single order or ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id int64) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// GetByOrderNumber returns a single order by its human-readable number.
func (s *Service) GetByOrderNumber(ctx context.Context, number string) (*Order, error) {
	return s.orders.GetByOrderNumber(ctx, number)
}

// ListByStatus returns every order currently in the given status.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Order, error) {
	return s.orders.ListByStatus(ctx, status)
}

// Create places a new order. For each item the product's current price is
// snapshotted into the line, subtotals accumulate into the total, and stock
// is decremented inside one transaction with an atomic floor check. Any
// failing item aborts the whole order; no partial stock changes survive.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	items := make([]Item, len(req.Items))
	total := decimal.Zero
	productIDs := make([]int64, len(req.Items))

	for i, ir := range req.Items {
		p, err := s.catalog.GetByID(ctx, ir.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return nil, &ProductNotFoundError{ProductID: ir.ProductID}
			}
			return nil, errors.Wrapf(err, "get product %d", ir.ProductID)
		}

		// Fast-fail on an obviously short stock. The transaction repeats
		// this check atomically against the live row.
		if p.Stock < ir.Quantity {
			return nil, &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   ir.Quantity,
			}
		}

		subtotal := p.Price.Mul(decimal.NewFromInt(int64(ir.Quantity)))
		items[i] = Item{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    ir.Quantity,
			Price:       p.Price,
			Subtotal:    subtotal,
		}
		total = total.Add(subtotal)
		productIDs[i] = p.ID
	}

	o := &Order{
		OrderNumber:   s.generateOrderNumber(),
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		TotalAmount:   total,
		Status:        StatusPending,
		Items:         items,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}

	// Stock moved; drop the affected cache entries.
	s.catalog.Invalidate(productIDs...)

	s.lg.Info("order placed",
		zap.Int64("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Int("items", len(o.Items)))
	return o, nil
}

// UpdateStatus overwrites the order's status. Orders in a terminal status
// (DELIVERED, CANCELLED) cannot change state again; terminality is enforced
// uniformly here and in Cancel.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error) {
	return s.orders.UpdateStatus(ctx, id, status)
}

// Cancel cancels a non-terminal order, restoring each item's quantity to its
// product's stock exactly once.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	o, err := s.orders.Cancel(ctx, id)
	if err != nil {
		return err
	}

	ids := make([]int64, len(o.Items))
	for i, item := range o.Items {
		ids[i] = item.ProductID
	}
	s.catalog.Invalidate(ids...)

	s.lg.Info("order cancelled",
		zap.Int64("order_id", o.ID),
		zap.String("order_number", o.OrderNumber))
	return nil
}

// generateOrderNumber derives a human-readable order number from the current
// time at second precision. The random suffix keeps concurrent same-second
// orders from colliding on the UNIQUE constraint.
func (s *Service) generateOrderNumber() string {
	u := uuid.New()
	return fmt.Sprintf("ORD-%s-%x", s.now().Format("20060102150405"), u[:2])
}
