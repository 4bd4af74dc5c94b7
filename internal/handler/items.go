package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/gemstore/internal/domain/catalog"
	"github.com/xenking/gemstore/internal/domain/money"
)

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.Filter{Category: catalog.Category(q.Get("category"))}
	if f.Category != "" && !f.Category.Valid() {
		writeError(w, r, badRequest("unknown category %q", f.Category))
		return
	}
	if v := q.Get("featured"); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, badRequest("featured must be a boolean"))
			return
		}
		f.FeaturedOnly = featured
	}

	items, err := h.items.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range items {
			encodeItem(e, &items[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := h.items.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItem(e, item) })
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var item catalog.Item
	if err := decodeItem(w, r, &item); err != nil {
		writeError(w, r, err)
		return
	}
	if err := item.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.items.Create(r.Context(), &item); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeItem(e, &item) })
}

// updateItem replaces every editable field of the item.
func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	item := catalog.Item{ID: id}
	if err := decodeItem(w, r, &item); err != nil {
		writeError(w, r, err)
		return
	}
	if err := item.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.items.Update(r.Context(), &item); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItem(e, &item) })
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.items.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeItem(w http.ResponseWriter, r *http.Request, item *catalog.Item) error {
	return decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			item.Name, err = d.Str()
		case "description":
			item.Description, err = optStr(d)
		case "materials":
			item.Materials, err = optStr(d)
		case "category":
			var c string
			c, err = d.Str()
			item.Category = catalog.Category(c)
		case "price":
			if item.Price, err = decodeMoney(d); err != nil {
				return badRequest("price: %v", err)
			}
		case "price_cents":
			var c int64
			c, err = d.Int64()
			item.Price = money.Cents(c)
		case "stock_quantity":
			item.StockQuantity, err = d.Int()
		case "image_url":
			item.ImageURL, err = optStr(d)
		case "is_featured":
			item.IsFeatured, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
}
