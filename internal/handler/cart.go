package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/gemstore/internal/domain/cart"
)

func sessionParam(r *http.Request) (string, error) {
	session := chi.URLParam(r, "session")
	if err := cart.ValidateSession(session); err != nil {
		return "", err
	}
	return session, nil
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	session, err := sessionParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, r, session)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	session, err := sessionParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		itemID int64
		qty    = 1
	)
	err = decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "item_id":
			itemID, err = d.Int64()
		case "quantity":
			qty, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if itemID <= 0 {
		writeError(w, r, badRequest("item_id is required"))
		return
	}
	if err := cart.ValidateQuantity(qty); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.carts.Add(r.Context(), session, itemID, qty); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, r, session)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	session, err := sessionParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	qty := 0
	err = decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		qty, err = d.Int()
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := cart.ValidateQuantity(qty); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.carts.SetQuantity(r.Context(), session, itemID, qty); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, r, session)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	session, err := sessionParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.carts.Remove(r.Context(), session, itemID); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, r, session)
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, session string) {
	lines, err := h.carts.Lines(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := cart.Summarize(session, lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, summary) })
}

// clearCart empties the session's cart. An already empty cart is not an error.
func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	session, err := sessionParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.Clear(r.Context(), session); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, r, session)
}
