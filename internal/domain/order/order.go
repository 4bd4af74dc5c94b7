package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/gemstore/internal/domain/cart"
	"github.com/xenking/gemstore/internal/domain/catalog"
	"github.com/xenking/gemstore/internal/domain/money"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CustomerInfo is the contact and shipping data supplied at checkout.
// Empty optional fields are stored as NULL; an empty BillingAddress means
// "same as shipping" and is resolved by the client.
type CustomerInfo struct {
	Name            string
	Email           string
	Phone           string
	ShippingAddress string
	BillingAddress  string
	Notes           string
}

func (c CustomerInfo) trimmed() CustomerInfo {
	return CustomerInfo{
		Name:            strings.TrimSpace(c.Name),
		Email:           strings.TrimSpace(c.Email),
		Phone:           strings.TrimSpace(c.Phone),
		ShippingAddress: strings.TrimSpace(c.ShippingAddress),
		BillingAddress:  strings.TrimSpace(c.BillingAddress),
		Notes:           strings.TrimSpace(c.Notes),
	}
}

// Order is a placed order. Orders are only created by Service.PlaceOrder.
type Order struct {
	ID        int64
	SessionID string
	Customer  CustomerInfo
	Total     money.Cents
	Status    Status
	Lines     []Line
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line is an immutable record of one item bought in an order. Name and
// Category are copied from the catalog at purchase time.
type Line struct {
	ItemID       int64
	ItemName     string
	ItemCategory catalog.Category
	Quantity     int
	PriceAtTime  money.Cents
}

// Subtotal returns PriceAtTime*Quantity.
func (l Line) Subtotal() (money.Cents, error) {
	return l.PriceAtTime.Times(l.Quantity)
}

// ListFilter narrows admin order listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Tx is the set of primitives an order transaction is built from. All calls
// made through one Tx commit or roll back together.
type Tx interface {
	// CartLines returns the session's cart joined with each item's live price
	// and stock. Implementations lock the item rows until the transaction ends.
	CartLines(ctx context.Context, sessionID string) ([]cart.Line, error)
	// InsertOrder assigns ID and timestamps on o.
	InsertOrder(ctx context.Context, o *Order) error
	InsertLine(ctx context.Context, orderID int64, l Line) error
	// DecrementStock returns ErrStockConflict if stock is lower than qty.
	DecrementStock(ctx context.Context, itemID int64, qty int) error
	DeleteCartLines(ctx context.Context, sessionID string) error
}

// Repository defines persistence operations for orders.
type Repository interface {
	// InTx runs fn in a single transaction, committing only if fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, s Status) (*Order, error)
}

var (
	// ErrEmptyCart is returned when checking out a session without cart lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrStockConflict is returned by Tx.DecrementStock when the conditional
	// update matched no row.
	ErrStockConflict = errors.New("stock changed during checkout")
)

// Shortage describes one cart line that exceeds available stock.
type Shortage struct {
	ItemID    int64
	Name      string
	Requested int
	Available int
}

// InsufficientStockError lists every cart line that cannot be fulfilled.
type InsufficientStockError struct {
	Items []Shortage
}

func (e *InsufficientStockError) Error() string {
	var b strings.Builder
	b.WriteString("insufficient stock")
	for i, it := range e.Items {
		if i > 0 {
			b.WriteString(";")
		}
		fmt.Fprintf(&b, " item %d: requested %d, available %d", it.ItemID, it.Requested, it.Available)
	}
	return b.String()
}

// ValidationError describes malformed checkout or admin input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}
