// Package escrowtest wires the escrow components against an in-memory
// database for package tests.
package escrowtest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/internal/invoices"
	"github.com/angelmondragon/relivv-escrow/internal/ledger"
	"github.com/angelmondragon/relivv-escrow/internal/notifications"
	"github.com/angelmondragon/relivv-escrow/internal/payments"
	"github.com/angelmondragon/relivv-escrow/internal/products"
	"github.com/angelmondragon/relivv-escrow/internal/reservation"
	"github.com/angelmondragon/relivv-escrow/internal/transactions"
	"github.com/angelmondragon/relivv-escrow/pkg/db"
	"github.com/angelmondragon/relivv-escrow/pkg/db/dbtest"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	"github.com/angelmondragon/relivv-escrow/pkg/metrics"
	"github.com/angelmondragon/relivv-escrow/pkg/money"
	"github.com/angelmondragon/relivv-escrow/pkg/outbox"
)

// ReleaseWindow is the window the harness ledger uses.
const ReleaseWindow = 72 * time.Hour

// Harness holds real repositories and services over one sqlite database.
type Harness struct {
	Client       *db.Client
	DB           *gorm.DB
	Products     *products.Repository
	Transactions *transactions.Repository
	Ledger       *transactions.Ledger
	Gate         *reservation.Gate
	Invoices     *invoices.Service
	MoneyLedger  ledger.Service
	Notifier     *notifications.Emitter
	Sessions     *payments.SessionRepository
	Reconciler   *payments.Reconciler
	Gateway      *FakeGateway
	Registry     *prometheus.Registry
	Metrics      *metrics.PaymentMetrics

	mu  sync.Mutex
	now time.Time
}

// New builds a harness whose clock starts at 2026-05-04 09:00 UTC.
func New(t testing.TB) *Harness {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	h := &Harness{
		Client:   client,
		DB:       conn,
		Gateway:  &FakeGateway{},
		Registry: prometheus.NewRegistry(),
		now:      time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
	h.Metrics = metrics.NewPaymentMetrics(h.Registry)

	h.Products = products.NewRepository(conn)
	h.Transactions = transactions.NewRepository(conn)
	h.Ledger = transactions.NewLedger(h.Transactions, ReleaseWindow)
	h.Sessions = payments.NewSessionRepository(conn)

	var err error
	if h.Gate, err = reservation.NewGate(client, h.Products, h.Transactions, nil); err != nil {
		t.Fatalf("gate: %v", err)
	}
	if h.Invoices, err = invoices.NewService(invoices.NewRepository(conn)); err != nil {
		t.Fatalf("invoices: %v", err)
	}
	if h.MoneyLedger, err = ledger.NewService(ledger.NewRepository(conn)); err != nil {
		t.Fatalf("money ledger: %v", err)
	}
	if h.Notifier, err = notifications.NewEmitter(outbox.NewService(outbox.NewRepository(conn), logger.Nop())); err != nil {
		t.Fatalf("notifier: %v", err)
	}
	h.Reconciler, err = payments.NewReconciler(payments.ReconcilerParams{
		Tx:           client,
		Sessions:     h.Sessions,
		Transactions: h.Transactions,
		Ledger:       h.Ledger,
		Products:     h.Products,
		Invoices:     h.Invoices,
		MoneyLedger:  h.MoneyLedger,
		Notifier:     h.Notifier,
		Locker:       payments.NewLocalSessionLocker(),
		Metrics:      h.Metrics,
		Now:          h.Now,
	})
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	return h
}

// Now is the harness clock; pass it wherever a component takes a clock.
func (h *Harness) Now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

// Advance moves the clock forward.
func (h *Harness) Advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

// ReservePending reserves n fresh products for buyer and returns the pending transactions.
func (h *Harness) ReservePending(t testing.TB, buyer uuid.UUID, prices ...string) []*models.Transaction {
	t.Helper()
	out := make([]*models.Transaction, 0, len(prices))
	for _, price := range prices {
		product := dbtest.MustCreateProduct(t, h.DB, uuid.New(), price)
		txn, err := h.Gate.Reserve(context.Background(), product.ID, buyer)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		out = append(out, txn)
	}
	return out
}

// OpenSession persists a pending payment session and links txns to it.
func (h *Harness) OpenSession(t testing.TB, buyer uuid.UUID, txns ...*models.Transaction) *models.PaymentSession {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(txns))
	totals := make([]decimal.Decimal, 0, len(txns))
	for _, txn := range txns {
		ids = append(ids, txn.ID)
		totals = append(totals, txn.TotalAmount)
	}
	sessionID := "cs_test_" + uuid.NewString()
	sess := &models.PaymentSession{
		SessionID:     sessionID,
		Provider:      enums.PaymentProviderStripe,
		BuyerID:       buyer,
		Amount:        money.Sum(totals...),
		Currency:      enums.CurrencyEUR,
		PaymentStatus: enums.PaymentStatusPending,
		RedirectURL:   "https://checkout.stripe.test/" + sessionID,
		Source:        enums.CheckoutSourceCart,
	}
	ctx := context.Background()
	err := h.Client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := h.Sessions.WithTx(tx).Create(ctx, sess); err != nil {
			return err
		}
		return h.Transactions.WithTx(tx).LinkSession(ctx, ids, sessionID)
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	for _, txn := range txns {
		txn.PaymentSessionID = &sessionID
	}
	return sess
}

// Hold drives a fresh single-product purchase to held via a paid report.
func (h *Harness) Hold(t testing.TB, buyer uuid.UUID, price string) *models.Transaction {
	t.Helper()
	txns := h.ReservePending(t, buyer, price)
	sess := h.OpenSession(t, buyer, txns...)
	if _, err := h.Reconciler.Reconcile(context.Background(), sess.SessionID, enums.PaymentStatusPaid, payments.SourceWebhook); err != nil {
		t.Fatalf("reconcile paid: %v", err)
	}
	return h.Reload(t, txns[0].ID)
}

// Reload reads the stored transaction.
func (h *Harness) Reload(t testing.TB, id uuid.UUID) *models.Transaction {
	t.Helper()
	return dbtest.MustReload[models.Transaction](t, h.DB, id)
}

// OutboxCount counts outbox rows of one type, optionally for one aggregate.
func (h *Harness) OutboxCount(t testing.TB, eventType enums.OutboxEventType, aggregateID ...uuid.UUID) int64 {
	t.Helper()
	q := h.DB.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType)
	if len(aggregateID) > 0 {
		q = q.Where("aggregate_id = ?", aggregateID[0])
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	return n
}

// LedgerCount counts ledger rows of one type for a transaction.
func (h *Harness) LedgerCount(t testing.TB, transactionID uuid.UUID, eventType enums.LedgerEventType) int64 {
	t.Helper()
	var n int64
	if err := h.DB.Model(&models.LedgerEvent{}).
		Where("transaction_id = ? AND type = ?", transactionID, eventType).
		Count(&n).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	return n
}

// InvoiceCount counts invoices for a transaction.
func (h *Harness) InvoiceCount(t testing.TB, transactionID uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := h.DB.Model(&models.Invoice{}).Where("transaction_id = ?", transactionID).Count(&n).Error; err != nil {
		t.Fatalf("count invoices: %v", err)
	}
	return n
}

// FakeGateway is a payments.Gateway with overridable behaviour.
type FakeGateway struct {
	CreateFn func(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error)
	StatusFn func(ctx context.Context, sessionID string) (enums.PaymentStatus, error)
	VerifyFn func(payload []byte, signature string) (*payments.WebhookEvent, error)

	CreateCalls atomic.Int32
	StatusCalls atomic.Int32
}

func (g *FakeGateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	g.CreateCalls.Add(1)
	if g.CreateFn != nil {
		return g.CreateFn(ctx, req)
	}
	id := "cs_test_" + uuid.NewString()
	return &payments.CheckoutSession{SessionID: id, RedirectURL: "https://checkout.stripe.test/" + id}, nil
}

func (g *FakeGateway) GetStatus(ctx context.Context, sessionID string) (enums.PaymentStatus, error) {
	g.StatusCalls.Add(1)
	if g.StatusFn != nil {
		return g.StatusFn(ctx, sessionID)
	}
	return enums.PaymentStatusPending, nil
}

func (g *FakeGateway) VerifyWebhook(payload []byte, signature string) (*payments.WebhookEvent, error) {
	if g.VerifyFn != nil {
		return g.VerifyFn(payload, signature)
	}
	return &payments.WebhookEvent{}, nil
}
