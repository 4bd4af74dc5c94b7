package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/gemstore/internal/domain/cart"
	"github.com/xenking/gemstore/internal/domain/catalog"
	"github.com/xenking/gemstore/internal/domain/money"
	"github.com/xenking/gemstore/internal/domain/order"
)

const (
	orderColumns = `id, session_id, customer_name, customer_email, customer_phone, shipping_address,
		billing_address, total_amount_cents, status, notes, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders
		(session_id, customer_name, customer_email, customer_phone, shipping_address,
		 billing_address, total_amount_cents, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	insertOrderLineSQL = `INSERT INTO order_items
		(order_id, jewelry_item_id, item_name, item_category, quantity, price_at_time_cents)
		VALUES ($1, $2, $3, $4, $5, $6)`

	decrementStockSQL = `UPDATE jewelry_items
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	orderLinesSQL = `SELECT order_id, jewelry_item_id, item_name, item_category, quantity, price_at_time_cents
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, jewelry_item_id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + orderColumns
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

// InTx runs fn in a READ COMMITTED transaction. Correctness under concurrent
// checkouts comes from the row locks taken by Tx.CartLines and the
// conditional stock decrement, not from the isolation level.
func (r *OrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, orderTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order transaction: %w", err)
	}
	return nil
}

// Get returns an order with its lines.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns orders newest first with their lines.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus sets the order status and returns the updated order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, s order.Status) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateOrderStatusSQL, id, string(s))
	if err != nil {
		return nil, fmt.Errorf("updating order %d status: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("updating order %d status: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) attachLines(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx, orderLinesSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID  int64
			l        order.Line
			category string
			price    int64
		)
		if err := rows.Scan(&orderID, &l.ItemID, &l.ItemName, &category, &l.Quantity, &price); err != nil {
			return fmt.Errorf("scanning order line: %w", err)
		}
		l.ItemCategory = catalog.Category(category)
		l.PriceAtTime = money.Cents(price)

		i := index[orderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading order lines: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                     order.Order
		phone, billing, notes *string
		total                 int64
		status                string
		createdAt, updatedAt  time.Time
	)
	err := row.Scan(
		&o.ID, &o.SessionID, &o.Customer.Name, &o.Customer.Email, &phone, &o.Customer.ShippingAddress,
		&billing, &total, &status, &notes, &createdAt, &updatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Customer.Phone = deref(phone)
	o.Customer.BillingAddress = deref(billing)
	o.Customer.Notes = deref(notes)
	o.Total = money.Cents(total)
	o.Status = order.Status(status)
	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt
	return o, nil
}

// orderTx implements order.Tx on a pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

func (t orderTx) CartLines(ctx context.Context, sessionID string) ([]cart.Line, error) {
	return queryCartLines(ctx, t.tx, sessionID, true)
}

func (t orderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	c := o.Customer
	err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.SessionID, c.Name, c.Email, nullable(c.Phone), c.ShippingAddress,
		nullable(c.BillingAddress), int64(o.Total), string(o.Status), nullable(c.Notes),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

func (t orderTx) InsertLine(ctx context.Context, orderID int64, l order.Line) error {
	_, err := t.tx.Exec(ctx, insertOrderLineSQL,
		orderID, l.ItemID, l.ItemName, string(l.ItemCategory), l.Quantity, int64(l.PriceAtTime),
	)
	if err != nil {
		return fmt.Errorf("inserting order line: %w", err)
	}
	return nil
}

func (t orderTx) DecrementStock(ctx context.Context, itemID int64, qty int) error {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, itemID, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStockConflict
	}
	return nil
}

func (t orderTx) DeleteCartLines(ctx context.Context, sessionID string) error {
	if _, err := t.tx.Exec(ctx, clearCartSQL, sessionID); err != nil {
		return fmt.Errorf("deleting cart lines: %w", err)
	}
	return nil
}
