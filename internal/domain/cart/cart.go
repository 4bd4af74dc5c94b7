// Package cart models guest shopping carts keyed by an opaque session id.
package cart

import (
	"context"
	"math"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/gemstore/internal/domain/catalog"
	"github.com/xenking/gemstore/internal/domain/money"
)

var (
	ErrInvalidSession  = errors.New("session id required")
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 2147483647")
	ErrItemNotFound    = errors.New("jewelry item not found")
	ErrLineNotFound    = errors.New("cart item not found")
)

// Line is one cart entry joined with a snapshot of its catalog item.
type Line struct {
	ItemID   int64
	Quantity int

	Name      string
	Category  catalog.Category
	UnitPrice money.Cents
	Stock     int
}

// Subtotal returns UnitPrice*Quantity.
func (l Line) Subtotal() (money.Cents, error) {
	return l.UnitPrice.Times(l.Quantity)
}

// Summary is a cart as shown to the shopper.
type Summary struct {
	SessionID string
	Lines     []Line
	Subtotal  money.Cents
	ItemCount int
}

// Summarize totals lines in integer cents.
func Summarize(sessionID string, lines []Line) (*Summary, error) {
	s := &Summary{SessionID: sessionID, Lines: lines}
	for _, l := range lines {
		sub, err := l.Subtotal()
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", l.ItemID)
		}
		if s.Subtotal, err = s.Subtotal.Add(sub); err != nil {
			return nil, errors.Wrap(err, "cart subtotal")
		}
		s.ItemCount += l.Quantity
	}
	return s, nil
}

// ValidateSession rejects blank session ids.
func ValidateSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	return nil
}

// MaxQuantity is the largest quantity a cart line can hold.
const MaxQuantity = math.MaxInt32

// ValidateQuantity rejects quantities outside [1, MaxQuantity].
func ValidateQuantity(qty int) error {
	if qty < 1 || qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

// Repository defines persistence operations for cart lines. Each method is
// independent per session; the last write wins.
type Repository interface {
	// Lines returns the session's lines ordered by item id.
	Lines(ctx context.Context, sessionID string) ([]Line, error)
	// Add inserts the item or increases the quantity of an existing line.
	// A sum above MaxQuantity fails with ErrInvalidQuantity.
	Add(ctx context.Context, sessionID string, itemID int64, qty int) error
	SetQuantity(ctx context.Context, sessionID string, itemID int64, qty int) error
	Remove(ctx context.Context, sessionID string, itemID int64) error
	Clear(ctx context.Context, sessionID string) error
}
