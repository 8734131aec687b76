package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/relivv-escrow/api/controllers"
	"github.com/angelmondragon/relivv-escrow/api/middleware"
	"github.com/angelmondragon/relivv-escrow/internal/cart"
	"github.com/angelmondragon/relivv-escrow/internal/checkout"
	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

// Store backs idempotency replay and rate limiting.
type Store interface {
	middleware.ReplayStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type Params struct {
	Config *config.Config
	Logger *logger.Logger
	Store  Store

	Readiness []controllers.ReadinessCheck
	Gatherer  prometheus.Gatherer

	Transactions controllers.TransactionService
	Escrow       interface {
		controllers.EscrowCanceller
		controllers.FundsReleaser
	}
	Checkout       checkout.Service
	CheckoutStatus controllers.CheckoutStatusService
	Cart           cart.Service
	Invoices       controllers.InvoiceService
	StripeWebhook  controllers.StripeWebhookProcessor
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.PublicOrigin),
	)

	idem := middleware.Idempotency(p.Store, middleware.IdempotencyStandard, logg)
	idemCritical := middleware.Idempotency(p.Store, middleware.IdempotencyCritical, logg)
	checkoutLimit := middleware.RateLimit(
		middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.CheckoutWindow, cfg.RateLimit.CheckoutLimit),
		p.Store, logg,
	)
	pollLimit := middleware.RateLimit(
		middleware.NewRateLimitPolicy("checkout-status", cfg.RateLimit.PollWindow, cfg.RateLimit.PollLimit),
		p.Store, logg,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness...))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/api/v1/webhooks/stripe", controllers.StripeWebhook(p.StripeWebhook, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/transactions", func(r chi.Router) {
			r.With(idemCritical).Post("/", controllers.CreateTransaction(p.Transactions, logg))
			r.Get("/", controllers.ListTransactions(p.Transactions, logg))
			r.Get("/{transactionId}", controllers.GetTransaction(p.Transactions, logg))
			r.With(idem).Post("/{transactionId}/delivery", controllers.ConfirmDelivery(p.Transactions, logg))
			r.With(idemCritical).Post("/{transactionId}/cancel", controllers.CancelTransaction(p.Escrow, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.With(checkoutLimit, idemCritical).Post("/product", controllers.CheckoutProduct(p.Checkout, cfg.App.PublicOrigin, logg))
			r.With(checkoutLimit, idemCritical).Post("/cart", controllers.CheckoutCart(p.Checkout, cfg.App.PublicOrigin, logg))
			r.With(pollLimit).Get("/status/{sessionId}", controllers.CheckoutStatus(p.CheckoutStatus, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(p.Cart, logg))
			r.With(idem).Post("/", controllers.CartAdd(p.Cart, logg))
			r.Delete("/", controllers.CartClear(p.Cart, logg))
			r.Delete("/{productId}", controllers.CartRemove(p.Cart, logg))
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", controllers.ListInvoices(p.Invoices, logg))
			r.Get("/{invoiceId}", controllers.GetInvoice(p.Invoices, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
		r.Get("/invoices", controllers.AdminListInvoices(p.Invoices, logg))
	})

	r.Route("/api/internal/v1", func(r chi.Router) {
		r.Use(middleware.InternalToken(cfg.Internal.Token, logg))
		r.Post("/transactions/{transactionId}/release", controllers.InternalReleaseFunds(p.Escrow, logg))
	})

	return r
}
