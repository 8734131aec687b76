// Package app assembles the escrow services shared by the api and cron-worker
// binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/relivv-escrow/internal/cart"
	"github.com/angelmondragon/relivv-escrow/internal/checkout"
	"github.com/angelmondragon/relivv-escrow/internal/escrow"
	"github.com/angelmondragon/relivv-escrow/internal/invoices"
	"github.com/angelmondragon/relivv-escrow/internal/ledger"
	"github.com/angelmondragon/relivv-escrow/internal/notifications"
	"github.com/angelmondragon/relivv-escrow/internal/payments"
	"github.com/angelmondragon/relivv-escrow/internal/products"
	"github.com/angelmondragon/relivv-escrow/internal/reservation"
	"github.com/angelmondragon/relivv-escrow/internal/transactions"
	stripewebhook "github.com/angelmondragon/relivv-escrow/internal/webhooks/stripe"
	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/db"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	"github.com/angelmondragon/relivv-escrow/pkg/metrics"
	"github.com/angelmondragon/relivv-escrow/pkg/outbox"
)

// Store is the Redis surface the services need: webhook dedupe, request
// idempotency and per-session locks.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	LockKey(scope, id string) string
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Store    Store
	Gateway  payments.Gateway
	Registry prometheus.Registerer
	Now      func() time.Time
}

// Components holds every wired service. Fields are safe to share across
// goroutines.
type Components struct {
	Products     *products.Repository
	Transactions *transactions.Repository
	Sessions     *payments.SessionRepository
	Outbox       *outbox.Repository
	Metrics      *metrics.PaymentMetrics

	TransactionService *transactions.Service
	Invoices           *invoices.Service
	Escrow             *escrow.Service
	Reconciler         *payments.Reconciler
	Status             *payments.StatusService
	Sweeper            *payments.Sweeper
	Checkout           checkout.Service
	Cart               cart.Service
	StripeWebhook      *stripewebhook.Service
}

// Build wires repositories and services over one database and store.
func Build(p Params) (*Components, error) {
	switch {
	case p.Config == nil:
		return nil, fmt.Errorf("config required")
	case p.DB == nil:
		return nil, fmt.Errorf("database client required")
	case p.Store == nil:
		return nil, fmt.Errorf("store required")
	case p.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	cfg, conn := p.Config, p.DB.DB()

	c := &Components{
		Products:     products.NewRepository(conn),
		Transactions: transactions.NewRepository(conn),
		Sessions:     payments.NewSessionRepository(conn),
		Outbox:       outbox.NewRepository(conn),
		Metrics:      metrics.NewPaymentMetrics(p.Registry),
	}
	txnLedger := transactions.NewLedger(c.Transactions, cfg.Escrow.ReleaseWindow)

	gate, err := reservation.NewGate(p.DB, c.Products, c.Transactions, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("reservation gate: %w", err)
	}
	if c.Invoices, err = invoices.NewService(invoices.NewRepository(conn)); err != nil {
		return nil, fmt.Errorf("invoices: %w", err)
	}
	moneyLedger, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("money ledger: %w", err)
	}
	notifier, err := notifications.NewEmitter(outbox.NewService(c.Outbox, p.Logger))
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}

	cartRepo := cart.NewRepository(conn)
	if c.TransactionService, err = transactions.NewService(transactions.ServiceParams{
		Tx:       p.DB,
		Repo:     c.Transactions,
		Ledger:   txnLedger,
		Gate:     gate,
		Cart:     cartRepo,
		Notifier: notifier,
		Logger:   p.Logger,
		Now:      p.Now,
	}); err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}

	locker, err := payments.NewRedisSessionLocker(p.Store, cfg.Escrow.SessionLockTTL)
	if err != nil {
		return nil, fmt.Errorf("session locker: %w", err)
	}
	if c.Reconciler, err = payments.NewReconciler(payments.ReconcilerParams{
		Tx:           p.DB,
		Sessions:     c.Sessions,
		Transactions: c.Transactions,
		Ledger:       txnLedger,
		Products:     c.Products,
		Invoices:     c.Invoices,
		MoneyLedger:  moneyLedger,
		Notifier:     notifier,
		Locker:       locker,
		Metrics:      c.Metrics,
		Logger:       p.Logger,
		Now:          p.Now,
	}); err != nil {
		return nil, fmt.Errorf("reconciler: %w", err)
	}

	if c.Escrow, err = escrow.NewService(escrow.ServiceParams{
		Tx:           p.DB,
		Transactions: c.Transactions,
		Ledger:       txnLedger,
		Products:     c.Products,
		Sessions:     c.Sessions,
		Invoices:     c.Invoices,
		MoneyLedger:  moneyLedger,
		Notifier:     notifier,
		Metrics:      c.Metrics,
		Logger:       p.Logger,
		Now:          p.Now,
	}); err != nil {
		return nil, fmt.Errorf("escrow: %w", err)
	}

	if c.Status, err = payments.NewStatusService(c.Sessions, c.Transactions, p.Gateway, c.Reconciler, p.Logger); err != nil {
		return nil, fmt.Errorf("checkout status: %w", err)
	}
	if c.Sweeper, err = payments.NewSweeper(c.Sessions, p.Gateway, c.Reconciler, cfg.Escrow.PaymentSweepAge, cfg.Escrow.PaymentSweepLimit); err != nil {
		return nil, fmt.Errorf("payment sweeper: %w", err)
	}

	if c.Cart, err = cart.NewService(cartRepo, c.Products); err != nil {
		return nil, fmt.Errorf("cart: %w", err)
	}
	if c.Checkout, err = checkout.NewService(checkout.ServiceParams{
		Tx:           p.DB,
		Gate:         gate,
		Products:     c.Products,
		Transactions: c.Transactions,
		Ledger:       txnLedger,
		Sessions:     c.Sessions,
		Cart:         cartRepo,
		Gateway:      p.Gateway,
		Metrics:      c.Metrics,
		Logger:       p.Logger,
		Now:          p.Now,
	}); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	guard, err := stripewebhook.NewIdempotencyGuard(p.Store, cfg.Escrow.WebhookDedupeTTL)
	if err != nil {
		return nil, fmt.Errorf("webhook guard: %w", err)
	}
	if c.StripeWebhook, err = stripewebhook.NewService(stripewebhook.ServiceParams{
		Verifier:   p.Gateway,
		Reconciler: c.Reconciler,
		Guard:      guard,
		Logger:     p.Logger,
	}); err != nil {
		return nil, fmt.Errorf("stripe webhook: %w", err)
	}

	return c, nil
}
