package order

import (
	"context"
	"net/mail"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/gemstore/internal/domain/cart"
	"github.com/xenking/gemstore/internal/domain/money"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service encapsulates order placement and admin order management.
type Service struct {
	orders Repository

	tracer   trace.Tracer
	placed   metric.Int64Counter
	rejected metric.Int64Counter
}

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Service.
type Option func(*options)

// WithTracerProvider sets the tracer provider used for order spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// NewService creates an order Service backed by the given repository.
func NewService(orders Repository, opts ...Option) (*Service, error) {
	o := options{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter("github.com/xenking/gemstore/internal/domain/order")
	placed, err := meter.Int64Counter("gemstore.orders.placed",
		metric.WithDescription("Orders successfully placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	rejected, err := meter.Int64Counter("gemstore.orders.rejected",
		metric.WithDescription("Checkout attempts that did not produce an order"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}

	return &Service{
		orders:   orders,
		tracer:   o.tracerProvider.Tracer("github.com/xenking/gemstore/internal/domain/order"),
		placed:   placed,
		rejected: rejected,
	}, nil
}

// PlaceOrder converts the session's cart into a pending order. The stock
// check, order and line inserts, stock decrements and cart deletion happen in
// one transaction; on any error nothing is persisted and the cart is kept.
//
// Expected rejections are ErrEmptyCart, *InsufficientStockError and
// *ValidationError. Any other error is a storage failure.
func (s *Service) PlaceOrder(ctx context.Context, sessionID string, info CustomerInfo) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Place")
	defer span.End()

	info = info.trimmed()
	if err := validateCheckout(sessionID, info); err != nil {
		s.reject(ctx, span, "validation", err)
		return nil, err
	}

	var placed *Order
	err := s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		lines, err := tx.CartLines(ctx, sessionID)
		if err != nil {
			return errors.Wrap(err, "load cart")
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}
		if err := checkStock(lines); err != nil {
			return err
		}
		total, err := cartTotal(lines)
		if err != nil {
			return err
		}

		o := &Order{
			SessionID: sessionID,
			Customer:  info,
			Total:     total,
			Status:    StatusPending,
			Lines:     make([]Line, 0, len(lines)),
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}

		for _, l := range lines {
			ol := Line{
				ItemID:       l.ItemID,
				ItemName:     l.Name,
				ItemCategory: l.Category,
				Quantity:     l.Quantity,
				PriceAtTime:  l.UnitPrice,
			}
			if err := tx.InsertLine(ctx, o.ID, ol); err != nil {
				return errors.Wrapf(err, "insert line for item %d", l.ItemID)
			}
			o.Lines = append(o.Lines, ol)
		}

		for _, l := range lines {
			if err := tx.DecrementStock(ctx, l.ItemID, l.Quantity); err != nil {
				if errors.Is(err, ErrStockConflict) {
					return &InsufficientStockError{Items: []Shortage{{
						ItemID:    l.ItemID,
						Name:      l.Name,
						Requested: l.Quantity,
						Available: l.Stock,
					}}}
				}
				return errors.Wrapf(err, "decrement stock of item %d", l.ItemID)
			}
		}

		if err := tx.DeleteCartLines(ctx, sessionID); err != nil {
			return errors.Wrap(err, "clear cart")
		}

		placed = o
		return nil
	})
	if err != nil {
		s.reject(ctx, span, rejectionReason(err), err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("order.id", placed.ID),
		attribute.Int64("order.total_cents", int64(placed.Total)),
		attribute.Int("order.lines", len(placed.Lines)),
	)
	s.placed.Add(ctx, 1)
	return placed, nil
}

// Get returns an order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	return s.orders.Get(ctx, id)
}

// List returns orders newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "unknown status"}
	}
	if f.Offset < 0 {
		return nil, &ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	return s.orders.List(ctx, f)
}

// UpdateStatus moves an order to any known status. No transition graph is
// enforced.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "unknown status"}
	}
	if id <= 0 {
		return nil, ErrNotFound
	}
	return s.orders.UpdateStatus(ctx, id, status)
}

func (s *Service) reject(ctx context.Context, span trace.Span, reason string, err error) {
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	span.SetAttributes(attribute.String("order.rejection", reason))
	if reason == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func rejectionReason(err error) string {
	var (
		stockErr *InsufficientStockError
		valErr   *ValidationError
	)
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.As(err, &valErr):
		return "validation"
	default:
		return "error"
	}
}

func validateCheckout(sessionID string, info CustomerInfo) error {
	if err := cart.ValidateSession(sessionID); err != nil {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if info.Name == "" {
		return &ValidationError{Field: "customer_name", Reason: "must not be empty"}
	}
	if addr, err := mail.ParseAddress(info.Email); err != nil || addr.Address != info.Email {
		return &ValidationError{Field: "customer_email", Reason: "must be a valid email address"}
	}
	if info.ShippingAddress == "" {
		return &ValidationError{Field: "shipping_address", Reason: "must not be empty"}
	}
	return nil
}

// checkStock rejects the whole cart if any line exceeds its item's stock.
func checkStock(lines []cart.Line) error {
	var short []Shortage
	for _, l := range lines {
		if l.Quantity > l.Stock {
			short = append(short, Shortage{
				ItemID:    l.ItemID,
				Name:      l.Name,
				Requested: l.Quantity,
				Available: l.Stock,
			})
		}
	}
	if len(short) > 0 {
		return &InsufficientStockError{Items: short}
	}
	return nil
}

func cartTotal(lines []cart.Line) (money.Cents, error) {
	var total money.Cents
	for _, l := range lines {
		sub, err := l.Subtotal()
		if err != nil {
			return 0, &ValidationError{Field: "quantity", Reason: "order total out of range"}
		}
		if total, err = total.Add(sub); err != nil {
			return 0, &ValidationError{Field: "quantity", Reason: "order total out of range"}
		}
	}
	return total, nil
}
