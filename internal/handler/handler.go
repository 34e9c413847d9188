// Package handler exposes the storefront over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/freshcart/internal/domain/address"
	"github.com/xenking/freshcart/internal/domain/auth"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/order"
	"github.com/xenking/freshcart/internal/domain/product"
	"github.com/xenking/freshcart/internal/domain/session"
	"github.com/xenking/freshcart/pkg/httpmiddleware"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
	// SiteURL is the public storefront URL used to build referral links.
	SiteURL string
	// HomePath is where affiliate links redirect after staging the coupon.
	HomePath string

	SessionCookie string
	SessionTTL    time.Duration
	SecureCookie  bool
}

// IdempotencyGuard detects resubmitted order requests.
type IdempotencyGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Deps groups the Handler's collaborators.
type Deps struct {
	Products  product.Repository
	Coupons   *coupon.Validator
	Addresses *address.Service
	Orders    *order.Service
	Sessions  session.Store
	Tokens    *auth.Tokens
	// Idempotency is optional.
	Idempotency IdempotencyGuard
}

// Handler serves the storefront API.
type Handler struct {
	cfg Config
	Deps
}

// New constructs a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.HomePath == "" {
		cfg.HomePath = "/"
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "freshcart_session"
	}
	return &Handler{cfg: cfg, Deps: deps}
}

// Routes builds the router. limit guards the coupon endpoints against code
// guessing; pass nil to disable it.
func (h *Handler) Routes(limit httpmiddleware.Middleware) http.Handler {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "Invalid request method.")
	})

	r.Group(func(r chi.Router) {
		r.Use(h.withSession, h.withIdentity)

		r.With(limit).Get("/ref/{code}", h.ApplyAffiliate)
		r.With(limit).Get("/ref/{code}/", h.ApplyAffiliate)

		r.Route("/api", func(r chi.Router) {
			r.Get("/products", h.ListProducts)
			r.Get("/products/{id}", h.GetProduct)

			r.Get("/cart", h.GetCart)
			r.With(limit).Post("/coupons/apply", h.ApplyCoupon)
			r.Post("/coupons/remove", h.RemoveCoupon)

			r.Group(func(r chi.Router) {
				r.Use(requireIdentity)
				r.Get("/addresses", h.ListAddresses)
				r.Post("/addresses", h.AddAddress)
				r.Get("/orders", h.ListOrders)
				r.Post("/orders", h.PlaceOrder)
			})
		})
	})
	return r
}
