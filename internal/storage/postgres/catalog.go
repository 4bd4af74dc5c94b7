package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/gemstore/internal/domain/catalog"
	"github.com/xenking/gemstore/internal/domain/money"
)

const (
	itemColumns = `id, name, description, materials, category, price_cents, stock_quantity,
		image_url, is_featured, created_at, updated_at`

	listItemsSQL = `SELECT ` + itemColumns + `
		FROM jewelry_items
		WHERE ($1::text = '' OR category = $1::text) AND (NOT $2::bool OR is_featured)
		ORDER BY is_featured DESC, id`

	getItemByIDSQL = `SELECT ` + itemColumns + ` FROM jewelry_items WHERE id = $1`

	createItemSQL = `INSERT INTO jewelry_items
		(name, description, materials, category, price_cents, stock_quantity, image_url, is_featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	upsertItemByNameSQL = `INSERT INTO jewelry_items
		(name, description, materials, category, price_cents, stock_quantity, image_url, is_featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			materials = EXCLUDED.materials,
			category = EXCLUDED.category,
			price_cents = EXCLUDED.price_cents,
			stock_quantity = EXCLUDED.stock_quantity,
			image_url = EXCLUDED.image_url,
			is_featured = EXCLUDED.is_featured,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	updateItemSQL = `UPDATE jewelry_items SET
		name = $2, description = $3, materials = $4, category = $5, price_cents = $6,
		stock_quantity = $7, image_url = $8, is_featured = $9, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	deleteItemSQL = `DELETE FROM jewelry_items WHERE id = $1`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// List returns items matching the filter, featured items first.
func (r *CatalogRepository) List(ctx context.Context, f catalog.Filter) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, listItemsSQL, string(f.Category), f.FeaturedOnly)
	if err != nil {
		return nil, fmt.Errorf("listing jewelry items: %w", err)
	}

	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("listing jewelry items: %w", err)
	}
	return items, nil
}

// GetByID returns a single item. It returns catalog.ErrNotFound when no
// matching item exists.
func (r *CatalogRepository) GetByID(ctx context.Context, id int64) (*catalog.Item, error) {
	rows, err := r.pool.Query(ctx, getItemByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting jewelry item %d: %w", id, err)
	}

	item, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting jewelry item %d: %w", id, err)
	}
	return &item, nil
}

// Create inserts a new item and fills in its ID and timestamps.
func (r *CatalogRepository) Create(ctx context.Context, item *catalog.Item) error {
	return r.insert(ctx, createItemSQL, item)
}

// UpsertByName inserts the item or overwrites the one with the same name.
func (r *CatalogRepository) UpsertByName(ctx context.Context, item *catalog.Item) error {
	return r.insert(ctx, upsertItemByNameSQL, item)
}

func (r *CatalogRepository) insert(ctx context.Context, sql string, item *catalog.Item) error {
	err := r.pool.QueryRow(ctx, sql,
		item.Name, item.Description, item.Materials, string(item.Category),
		int64(item.Price), item.StockQuantity, item.ImageURL, item.IsFeatured,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return catalog.ErrDuplicateName
		}
		return fmt.Errorf("creating jewelry item %q: %w", item.Name, err)
	}
	return nil
}

// Update overwrites every admin-editable field of the item.
func (r *CatalogRepository) Update(ctx context.Context, item *catalog.Item) error {
	err := r.pool.QueryRow(ctx, updateItemSQL,
		item.ID, item.Name, item.Description, item.Materials, string(item.Category),
		int64(item.Price), item.StockQuantity, item.ImageURL, item.IsFeatured,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return catalog.ErrNotFound
		case pgErrorCode(err) == codeUniqueViolation:
			return catalog.ErrDuplicateName
		}
		return fmt.Errorf("updating jewelry item %d: %w", item.ID, err)
	}
	return nil
}

// Delete removes an item. Items referenced by order lines cannot be deleted.
func (r *CatalogRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteItemSQL, id)
	if err != nil {
		if pgErrorCode(err) == codeForeignKeyViolation {
			return catalog.ErrInUse
		}
		return fmt.Errorf("deleting jewelry item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanItem(row pgx.CollectableRow) (catalog.Item, error) {
	var (
		item     catalog.Item
		category string
		price    int64
	)
	err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.Materials, &category, &price,
		&item.StockQuantity, &item.ImageURL, &item.IsFeatured, &item.CreatedAt, &item.UpdatedAt,
	)
	item.Category = catalog.Category(category)
	item.Price = money.Cents(price)
	return item, err
}
