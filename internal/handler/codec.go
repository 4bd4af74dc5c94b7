package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/gemstore/internal/domain/cart"
	"github.com/xenking/gemstore/internal/domain/catalog"
	"github.com/xenking/gemstore/internal/domain/money"
	"github.com/xenking/gemstore/internal/domain/order"
)

const maxBodyBytes = 1 << 20

// requestError is malformed request input that never reached the domain.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeObject reads a JSON object body, calling field for each key.
func decodeObject(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return badRequest("request body must be a JSON object")
	}
	if err := d.Obj(field); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return reqErr
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// optStr decodes a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeMoney accepts a decimal string ("25.99") or JSON number (25.99).
func decodeMoney(d *jx.Decoder) (money.Cents, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return money.Parse(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return 0, err
		}
		return money.Parse(n.String())
	default:
		return 0, badRequest("price must be a string or number")
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	return n, nil
}

func encodeMoney(e *jx.Encoder, name string, c money.Cents) {
	e.Field(name+"_cents", func(e *jx.Encoder) { e.Int64(int64(c)) })
	e.Field(name, func(e *jx.Encoder) { e.Str(c.String()) })
}

func encodeTime(e *jx.Encoder, name string, t time.Time) {
	e.Field(name, func(e *jx.Encoder) { e.Str(t.UTC().Format(time.RFC3339)) })
}

func encodeOptStr(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) {
		if v == "" {
			e.Null()
			return
		}
		e.Str(v)
	})
}

func encodeItem(e *jx.Encoder, it *catalog.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(it.Description) })
		e.Field("materials", func(e *jx.Encoder) { e.Str(it.Materials) })
		e.Field("category", func(e *jx.Encoder) { e.Str(string(it.Category)) })
		encodeMoney(e, "price", it.Price)
		e.Field("stock_quantity", func(e *jx.Encoder) { e.Int(it.StockQuantity) })
		e.Field("in_stock", func(e *jx.Encoder) { e.Bool(it.StockQuantity > 0) })
		e.Field("image_url", func(e *jx.Encoder) { e.Str(it.ImageURL) })
		e.Field("is_featured", func(e *jx.Encoder) { e.Bool(it.IsFeatured) })
		encodeTime(e, "created_at", it.CreatedAt)
		encodeTime(e, "updated_at", it.UpdatedAt)
	})
}

func encodeCart(e *jx.Encoder, s *cart.Summary) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("session_id", func(e *jx.Encoder) { e.Str(s.SessionID) })
		e.Field("lines", func(e *jx.Encoder) {
			e.ArrStart()
			for _, l := range s.Lines {
				sub, _ := l.Subtotal()
				e.Obj(func(e *jx.Encoder) {
					e.Field("item_id", func(e *jx.Encoder) { e.Int64(l.ItemID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
					e.Field("category", func(e *jx.Encoder) { e.Str(string(l.Category)) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
					encodeMoney(e, "unit_price", l.UnitPrice)
					encodeMoney(e, "subtotal", sub)
					e.Field("stock_quantity", func(e *jx.Encoder) { e.Int(l.Stock) })
				})
			}
			e.ArrEnd()
		})
		e.Field("item_count", func(e *jx.Encoder) { e.Int(s.ItemCount) })
		encodeMoney(e, "subtotal", s.Subtotal)
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("session_id", func(e *jx.Encoder) { e.Str(o.SessionID) })
		e.Field("customer_name", func(e *jx.Encoder) { e.Str(o.Customer.Name) })
		e.Field("customer_email", func(e *jx.Encoder) { e.Str(o.Customer.Email) })
		encodeOptStr(e, "customer_phone", o.Customer.Phone)
		e.Field("shipping_address", func(e *jx.Encoder) { e.Str(o.Customer.ShippingAddress) })
		encodeOptStr(e, "billing_address", o.Customer.BillingAddress)
		encodeOptStr(e, "notes", o.Customer.Notes)
		encodeMoney(e, "total_amount", o.Total)
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("lines", func(e *jx.Encoder) {
			e.ArrStart()
			for _, l := range o.Lines {
				sub, _ := l.Subtotal()
				e.Obj(func(e *jx.Encoder) {
					e.Field("item_id", func(e *jx.Encoder) { e.Int64(l.ItemID) })
					e.Field("item_name", func(e *jx.Encoder) { e.Str(l.ItemName) })
					e.Field("item_category", func(e *jx.Encoder) { e.Str(string(l.ItemCategory)) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
					encodeMoney(e, "price_at_time", l.PriceAtTime)
					encodeMoney(e, "subtotal", sub)
				})
			}
			e.ArrEnd()
		})
		encodeTime(e, "created_at", o.CreatedAt)
		encodeTime(e, "updated_at", o.UpdatedAt)
	})
}
