package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/gemstore/internal/domain/money"
)

var (
	// ErrNotFound is returned when a requested item does not exist.
	ErrNotFound = errors.New("jewelry item not found")
	// ErrInUse is returned when deleting an item that historical orders reference.
	ErrInUse = errors.New("jewelry item is referenced by orders")
	// ErrDuplicateName is returned when another item already has the name.
	ErrDuplicateName = errors.New("jewelry item name already exists")
)

// Category is the jewelry kind an item is listed under.
type Category string

const (
	CategoryRings     Category = "rings"
	CategoryEarrings  Category = "earrings"
	CategoryNecklaces Category = "necklaces"
	CategoryCufflinks Category = "cufflinks"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryRings, CategoryEarrings, CategoryNecklaces, CategoryCufflinks:
		return true
	}
	return false
}

// Item is a purchasable jewelry piece.
type Item struct {
	ID            int64
	Name          string
	Description   string
	Materials     string
	Category      Category
	Price         money.Cents
	StockQuantity int
	ImageURL      string
	IsFeatured    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidationError describes an invalid item field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// Validate checks the fields admins are allowed to set.
func (i *Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !i.Category.Valid() {
		return &ValidationError{Field: "category", Reason: "must be one of rings, earrings, necklaces, cufflinks"}
	}
	if i.Price < 0 {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if i.StockQuantity < 0 {
		return &ValidationError{Field: "stock_quantity", Reason: "must not be negative"}
	}
	return nil
}

// Filter narrows List results. Zero value lists everything.
type Filter struct {
	Category     Category
	FeaturedOnly bool
}

// Repository defines persistence operations for the jewelry catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Item, error)
	GetByID(ctx context.Context, id int64) (*Item, error)
	// Create assigns ID and timestamps on item.
	Create(ctx context.Context, item *Item) error
	Update(ctx context.Context, item *Item) error
	Delete(ctx context.Context, id int64) error
}
