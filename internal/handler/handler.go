// Package handler exposes the storefront and admin HTTP API on a chi router.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/gemstore/internal/domain/auth"
	"github.com/xenking/gemstore/internal/domain/cart"
	"github.com/xenking/gemstore/internal/domain/catalog"
	"github.com/xenking/gemstore/internal/domain/order"
	"github.com/xenking/gemstore/pkg/httpmiddleware"
)

// Orders is the order engine surface used by the API.
type Orders interface {
	PlaceOrder(ctx context.Context, sessionID string, info order.CustomerInfo) (*order.Order, error)
	Get(ctx context.Context, id int64) (*order.Order, error)
	List(ctx context.Context, f order.ListFilter) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error)
}

// Authenticator issues and verifies admin credentials.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*auth.Credential, error)
	Verify(ctx context.Context, token string) (*auth.Principal, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// LoginLimiter is applied to the admin login route only. Nil disables it.
	LoginLimiter httpmiddleware.Middleware
}

// Handler serves the HTTP API, delegating to the domain repositories and
// services.
type Handler struct {
	items  catalog.Repository
	carts  cart.Repository
	orders Orders
	auth   Authenticator

	loginLimiter httpmiddleware.Middleware
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	items catalog.Repository,
	carts cart.Repository,
	orders Orders,
	authn Authenticator,
) *Handler {
	return &Handler{
		items:        items,
		carts:        carts,
		orders:       orders,
		auth:         authn,
		loginLimiter: cfg.LoginLimiter,
	}
}

// Mount registers every API route under /api on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/items", h.listItems)
		r.Get("/items/{id}", h.getItem)

		r.Route("/cart/{session}", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Post("/items", h.addCartItem)
			r.Put("/items/{itemID}", h.updateCartItem)
			r.Delete("/items/{itemID}", h.removeCartItem)
		})

		r.Post("/orders", h.placeOrder)

		r.Route("/admin", func(r chi.Router) {
			login := r.With()
			if h.loginLimiter != nil {
				login = r.With(h.loginLimiter)
			}
			login.Post("/login", h.login)

			r.Group(func(r chi.Router) {
				r.Use(h.RequireAdmin)

				r.Get("/me", h.me)
				r.Post("/items", h.createItem)
				r.Put("/items/{id}", h.updateItem)
				r.Delete("/items/{id}", h.deleteItem)
				r.Get("/orders", h.listOrders)
				r.Get("/orders/{id}", h.getOrder)
				r.Patch("/orders/{id}/status", h.updateOrderStatus)
			})
		})
	})
}

// Router returns a chi router serving the API with middlewares applied to
// every route. Callers may register further routes on it.
func (h *Handler) Router(middlewares ...httpmiddleware.Middleware) chi.Router {
	r := chi.NewRouter()
	for _, m := range middlewares {
		r.Use(m)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.Mount(r)
	return r
}
