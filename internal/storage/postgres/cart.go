package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/gemstore/internal/domain/cart"
	"github.com/xenking/gemstore/internal/domain/catalog"
	"github.com/xenking/gemstore/internal/domain/money"
)

const (
	cartLinesSQL = `SELECT c.jewelry_item_id, c.quantity, j.name, j.category, j.price_cents, j.stock_quantity
		FROM cart_items c
		JOIN jewelry_items j ON j.id = c.jewelry_item_id
		WHERE c.session_id = $1
		ORDER BY c.jewelry_item_id`

	// Row locks are taken in item id order so concurrent checkouts sharing
	// items queue instead of deadlocking.
	cartLinesForUpdateSQL = cartLinesSQL + `
		FOR UPDATE OF c, j`

	addCartLineSQL = `INSERT INTO cart_items (session_id, jewelry_item_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, jewelry_item_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()`

	setCartQuantitySQL = `UPDATE cart_items SET quantity = $3, updated_at = now()
		WHERE session_id = $1 AND jewelry_item_id = $2`

	removeCartLineSQL = `DELETE FROM cart_items WHERE session_id = $1 AND jewelry_item_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE session_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Lines returns the session's cart joined with live catalog data.
func (r *CartRepository) Lines(ctx context.Context, sessionID string) ([]cart.Line, error) {
	return queryCartLines(ctx, r.pool, sessionID, false)
}

// Add inserts a line or increases the quantity of an existing one.
func (r *CartRepository) Add(ctx context.Context, sessionID string, itemID int64, qty int) error {
	_, err := r.pool.Exec(ctx, addCartLineSQL, sessionID, itemID, qty)
	if err != nil {
		switch pgErrorCode(err) {
		case codeForeignKeyViolation:
			return cart.ErrItemNotFound
		case codeNumericOutOfRange:
			return cart.ErrInvalidQuantity
		}
		return fmt.Errorf("adding item %d to cart: %w", itemID, err)
	}
	return nil
}

// SetQuantity overwrites the quantity of an existing line.
func (r *CartRepository) SetQuantity(ctx context.Context, sessionID string, itemID int64, qty int) error {
	tag, err := r.pool.Exec(ctx, setCartQuantitySQL, sessionID, itemID, qty)
	if err != nil {
		return fmt.Errorf("updating cart item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

// Remove deletes a single line.
func (r *CartRepository) Remove(ctx context.Context, sessionID string, itemID int64) error {
	tag, err := r.pool.Exec(ctx, removeCartLineSQL, sessionID, itemID)
	if err != nil {
		return fmt.Errorf("removing cart item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

// Clear deletes every line of the session.
func (r *CartRepository) Clear(ctx context.Context, sessionID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, sessionID); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

func queryCartLines(ctx context.Context, q querier, sessionID string, forUpdate bool) ([]cart.Line, error) {
	sql := cartLinesSQL
	if forUpdate {
		sql = cartLinesForUpdateSQL
	}

	rows, err := q.Query(ctx, sql, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying cart lines: %w", err)
	}

	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var (
			l        cart.Line
			category string
			price    int64
		)
		err := row.Scan(&l.ItemID, &l.Quantity, &l.Name, &category, &price, &l.Stock)
		l.Category = catalog.Category(category)
		l.UnitPrice = money.Cents(price)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("querying cart lines: %w", err)
	}
	return lines, nil
}
