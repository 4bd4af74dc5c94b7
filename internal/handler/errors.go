package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/gemstore/internal/domain/auth"
	"github.com/xenking/gemstore/internal/domain/cart"
	"github.com/xenking/gemstore/internal/domain/catalog"
	"github.com/xenking/gemstore/internal/domain/money"
	"github.com/xenking/gemstore/internal/domain/order"
	"github.com/xenking/gemstore/pkg/httpmiddleware"
)

// Rejection reasons reported in 422 checkout responses.
const (
	reasonEmptyCart         = "empty_cart"
	reasonInsufficientStock = "insufficient_stock"
)

// writeError maps domain errors to HTTP responses. Unknown errors are logged
// and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr   *requestError
		itemErr  *catalog.ValidationError
		orderErr *order.ValidationError
		stockErr *order.InsufficientStockError
	)
	switch {
	case errors.As(err, &reqErr):
		httpmiddleware.WriteError(w, http.StatusBadRequest, reqErr.Error())
	case errors.As(err, &itemErr):
		httpmiddleware.WriteError(w, http.StatusBadRequest, itemErr.Error())
	case errors.As(err, &orderErr):
		httpmiddleware.WriteError(w, http.StatusBadRequest, orderErr.Error())
	case errors.Is(err, cart.ErrInvalidSession),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrOverflow):
		httpmiddleware.WriteError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, order.ErrEmptyCart):
		writeRejection(w, reasonEmptyCart, err.Error(), nil)
	case errors.As(err, &stockErr):
		writeRejection(w, reasonInsufficientStock, "insufficient stock", stockErr.Items)

	case errors.Is(err, auth.ErrInvalidCredentials):
		httpmiddleware.WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")

	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, order.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrInUse),
		errors.Is(err, catalog.ErrDuplicateName):
		httpmiddleware.WriteError(w, http.StatusConflict, err.Error())

	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeRejection writes a 422 checkout rejection with its machine-readable
// reason and, for stock failures, every short line.
func writeRejection(w http.ResponseWriter, reason, message string, items []order.Shortage) {
	writeJSON(w, http.StatusUnprocessableEntity, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusUnprocessableEntity) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
			e.Field("reason", func(e *jx.Encoder) { e.Str(reason) })
			if len(items) == 0 {
				return
			}
			e.Field("items", func(e *jx.Encoder) {
				e.ArrStart()
				for _, it := range items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("item_id", func(e *jx.Encoder) { e.Int64(it.ItemID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("requested", func(e *jx.Encoder) { e.Int(it.Requested) })
						e.Field("available", func(e *jx.Encoder) { e.Int(it.Available) })
					})
				}
				e.ArrEnd()
			})
		})
	})
}
