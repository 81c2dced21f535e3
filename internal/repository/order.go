package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openshelf/shop-api/internal/domain/order"
	"github.com/openshelf/shop-api/internal/domain/product"
)

const (
	orderColumns = `id, order_number, customer_name, customer_email, customer_phone,
		total_amount, status, created_at, updated_at`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY id`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	listOrdersByStatusSQL = `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY id`

	getOrderForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	listItemsSQL = `SELECT i.id, i.order_id, i.product_id, COALESCE(p.name, ''), i.quantity, i.price, i.subtotal
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.id`

	insertOrderSQL = `INSERT INTO orders (order_number, customer_name, customer_email, customer_phone, total_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	insertItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price, subtotal)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	// The stock predicate is the floor check: concurrent orders serialize on
	// the product row and the decrement only applies when stock covers the
	// requested quantity.
	decrementStockSQL = `UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	restoreStockSQL = `UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1`

	stockSnapshotSQL = `SELECT name, stock FROM products WHERE id = $1`

	// Guarded overwrite: terminal orders never change state again.
	updateStatusSQL = `UPDATE orders
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status NOT IN ('DELIVERED', 'CANCELLED')
		RETURNING ` + orderColumns

	orderStatusSQL = `SELECT status FROM orders WHERE id = $1`

	cancelOrderSQL = `UPDATE orders
		SET status = 'CANCELLED', updated_at = now()
		WHERE id = $1
		RETURNING updated_at`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// List returns all orders with their items.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetByID returns a single order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByOrderNumber returns a single order by its human-readable number.
func (r *OrderRepository) GetByOrderNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumberSQL, number)
}

// ListByStatus returns every order in the given status.
func (r *OrderRepository) ListByStatus(ctx context.Context, status order.Status) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByStatusSQL, status)
	if err != nil {
		return nil, fmt.Errorf("listing orders by status %s: %w", status, err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders by status %s: %w", status, err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Create persists the order and its items and decrements each product's
// stock, all in one transaction. The conditional decrement is the
// authoritative floor check: when it matches no row the transaction rolls
// back, so an order that fails on its third item leaves the first two
// products untouched.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("creating order: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for _, item := range o.Items {
		ct, err := tx.Exec(ctx, decrementStockSQL, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("decrementing stock of product %d: %w", item.ProductID, err)
		}
		if ct.RowsAffected() == 0 {
			return r.stockFailure(ctx, tx, item)
		}
	}

	err = tx.QueryRow(ctx, insertOrderSQL,
		o.OrderNumber, o.CustomerName, o.CustomerEmail, o.CustomerPhone,
		o.TotalAmount, o.Status,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.OrderNumber, err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		err := tx.QueryRow(ctx, insertItemSQL,
			o.ID, item.ProductID, item.Quantity, item.Price, item.Subtotal,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("inserting item for product %d: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("creating order %q: commit: %w", o.OrderNumber, err)
	}
	return nil
}

// stockFailure translates a failed decrement into the precise domain error:
// the product is either missing or short on stock.
func (r *OrderRepository) stockFailure(ctx context.Context, tx pgx.Tx, item order.Item) error {
	var (
		name  string
		stock int
	)
	err := tx.QueryRow(ctx, stockSnapshotSQL, item.ProductID).Scan(&name, &stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("inspecting product %d: %w", item.ProductID, err)
	}
	return &order.InsufficientStockError{
		ProductID:   item.ProductID,
		ProductName: name,
		Available:   stock,
		Requested:   item.Quantity,
	}
}

// UpdateStatus overwrites a non-terminal order's status and returns the
// updated order. It distinguishes a missing order from a terminal one.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateStatusSQL, id, status)
	if err != nil {
		return nil, fmt.Errorf("updating status of order %d: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("updating status of order %d: %w", id, err)
		}

		var current order.Status
		if err := r.pool.QueryRow(ctx, orderStatusSQL, id).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, order.ErrNotFound
			}
			return nil, fmt.Errorf("inspecting order %d: %w", id, err)
		}
		return nil, &order.InvalidStateError{OrderID: id, Status: current}
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// Cancel restores every item's quantity onto its product and marks the order
// CANCELLED, in one transaction. The order row is locked so a concurrent
// double cancel observes the terminal state and fails.
func (r *OrderRepository) Cancel(ctx context.Context, id int64) (*order.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("cancelling order %d: begin: %w", id, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	rows, err := tx.Query(ctx, getOrderForUpdateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking order %d: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %d: %w", id, err)
	}
	if o.Status.Terminal() {
		return nil, &order.InvalidStateError{OrderID: id, Status: o.Status}
	}

	itemRows, err := tx.Query(ctx, listItemsSQL, []int64{id})
	if err != nil {
		return nil, fmt.Errorf("loading items of order %d: %w", id, err)
	}
	items, err := pgx.CollectRows(itemRows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("loading items of order %d: %w", id, err)
	}

	for _, item := range items {
		if _, err := tx.Exec(ctx, restoreStockSQL, item.ProductID, item.Quantity); err != nil {
			return nil, fmt.Errorf("restoring stock of product %d: %w", item.ProductID, err)
		}
	}

	if err := tx.QueryRow(ctx, cancelOrderSQL, id).Scan(&o.UpdatedAt); err != nil {
		return nil, fmt.Errorf("cancelling order %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("cancelling order %d: commit: %w", id, err)
	}

	o.Status = order.StatusCancelled
	o.Items = items
	return &o, nil
}

func (r *OrderRepository) getOne(ctx context.Context, sql string, arg any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// attachItems loads the items of every given order in one query.
func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = &orders[i]
	}

	rows, err := r.pool.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    order.Item
			orderID int64
		)
		err := rows.Scan(&item.ID, &orderID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.Price, &item.Subtotal)
		if err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		if o, ok := index[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		item    order.Item
		orderID int64
	)
	err := row.Scan(&item.ID, &orderID, &item.ProductID, &item.ProductName,
		&item.Quantity, &item.Price, &item.Subtotal)
	return item, err
}
