package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/gemstore/internal/domain/order"
)

// placeOrder checks out the session's cart. The order engine either persists
// the whole order or nothing.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var (
		session string
		info    order.CustomerInfo
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "session_id":
			session, err = d.Str()
		case "customer_name":
			info.Name, err = d.Str()
		case "customer_email":
			info.Email, err = d.Str()
		case "customer_phone":
			info.Phone, err = optStr(d)
		case "shipping_address":
			info.ShippingAddress, err = d.Str()
		case "billing_address":
			info.BillingAddress, err = optStr(d)
		case "notes":
			info.Notes, err = optStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	placed, err := h.orders.PlaceOrder(r.Context(), session, info)
	if err != nil {
		writeError(w, r, err)
		return
	}

	zctx.From(r.Context()).Info("Order placed",
		zap.Int64("order_id", placed.ID),
		zap.Int64("total_cents", int64(placed.Total)),
		zap.Int("lines", len(placed.Lines)),
	)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, placed) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	f := order.ListFilter{Status: order.Status(r.URL.Query().Get("status"))}
	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, r, err)
		return
	}

	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var status order.Status
	err = decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		status = order.Status(s)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if p, ok := principal(r); ok {
		zctx.From(r.Context()).Info("Order status updated",
			zap.Int64("order_id", o.ID),
			zap.String("status", string(o.Status)),
			zap.String("admin", p.Username),
		)
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}
