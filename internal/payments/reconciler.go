package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/internal/ledger"
	"github.com/angelmondragon/relivv-escrow/internal/products"
	"github.com/angelmondragon/relivv-escrow/internal/transactions"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	"github.com/angelmondragon/relivv-escrow/pkg/metrics"
)

// Sources of payment status reports.
const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
	SourceSweep   = "sweep"
)

// Outcome values reported by Reconcile and exported as metric labels.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeStale     = "stale"
	OutcomeLostRace  = "lost_race"
	OutcomeIgnored   = "ignored"
	OutcomeBusy      = "busy"
	OutcomeError     = "error"
)

// ErrSessionBusy is returned while another worker holds the session's
// reconciliation lock.
var ErrSessionBusy = errors.New("payment session is being reconciled")

var lockRetryDelays = []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type invoiceIssuer interface {
	Ensure(ctx context.Context, tx *gorm.DB, txn *models.Transaction, at time.Time) (*models.Invoice, bool, error)
}

type paymentNotifier interface {
	PaymentHeld(ctx context.Context, tx *gorm.DB, txn *models.Transaction, at time.Time) error
	PaymentFailed(ctx context.Context, tx *gorm.DB, txn *models.Transaction, status enums.PaymentStatus, at time.Time) error
	PaymentOrphaned(ctx context.Context, tx *gorm.DB, txn *models.Transaction, sessionID string, at time.Time) error
	InvoiceIssued(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, at time.Time) error
}

// ReconcileResult summarises what one report changed.
type ReconcileResult struct {
	SessionID     string              `json:"session_id"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Outcome       string              `json:"outcome"`
	Held          []uuid.UUID         `json:"held,omitempty"`
	Cancelled     []uuid.UUID         `json:"cancelled,omitempty"`
	Orphaned      []uuid.UUID         `json:"orphaned,omitempty"`
}

// Reconciler is the single writer of payment outcomes.
type Reconciler struct {
	tx       txRunner
	sessions *SessionRepository
	txns     *transactions.Repository
	ledger   *transactions.Ledger
	products *products.Repository
	invoices invoiceIssuer
	money    ledger.Service
	notifier paymentNotifier
	locker   SessionLocker
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

type ReconcilerParams struct {
	Tx           txRunner
	Sessions     *SessionRepository
	Transactions *transactions.Repository
	Ledger       *transactions.Ledger
	Products     *products.Repository
	Invoices     invoiceIssuer
	MoneyLedger  ledger.Service
	Notifier     paymentNotifier
	Locker       SessionLocker
	Metrics      *metrics.PaymentMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

func NewReconciler(p ReconcilerParams) (*Reconciler, error) {
	switch {
	case p.Tx == nil:
		return nil, errors.New("tx runner required")
	case p.Sessions == nil || p.Transactions == nil || p.Products == nil:
		return nil, errors.New("session, transaction and product repositories required")
	case p.Ledger == nil:
		return nil, errors.New("transaction ledger required")
	case p.Invoices == nil:
		return nil, errors.New("invoice issuer required")
	case p.MoneyLedger == nil:
		return nil, errors.New("money ledger required")
	case p.Notifier == nil:
		return nil, errors.New("notifier required")
	case p.Locker == nil:
		return nil, errors.New("session locker required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Reconciler{
		tx:       p.Tx,
		sessions: p.Sessions,
		txns:     p.Transactions,
		ledger:   p.Ledger,
		products: p.Products,
		invoices: p.Invoices,
		money:    p.MoneyLedger,
		notifier: p.Notifier,
		locker:   p.Locker,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      p.Now,
	}, nil
}

// Reconcile merges one status report for sessionID. Reports may arrive any
// number of times and in any order; only the first terminal report for a
// pending session has an effect.
func (r *Reconciler) Reconcile(ctx context.Context, sessionID string, reported enums.PaymentStatus, source string) (*ReconcileResult, error) {
	ctx = r.logg.WithFields(ctx, map[string]any{"session_id": sessionID, "source": source, "reported_status": reported})

	result, err := r.reconcile(ctx, sessionID, reported)
	outcome := OutcomeError
	if result != nil {
		outcome = result.Outcome
	}
	r.metrics.ObserveReconcile(source, outcome)
	if err != nil {
		r.logg.Error(ctx, "payment reconciliation failed", err)
		return nil, err
	}
	switch result.Outcome {
	case OutcomeApplied:
		r.logg.Info(ctx, fmt.Sprintf("payment reconciled: %d held, %d cancelled, %d orphaned",
			len(result.Held), len(result.Cancelled), len(result.Orphaned)))
	case OutcomeStale:
		r.logg.Warn(ctx, fmt.Sprintf("stale payment report ignored, session already %s", result.PaymentStatus))
	}
	return result, nil
}

func (r *Reconciler) reconcile(ctx context.Context, sessionID string, reported enums.PaymentStatus) (*ReconcileResult, error) {
	switch reported {
	case enums.PaymentStatusPaid, enums.PaymentStatusFailed, enums.PaymentStatusExpired:
	case enums.PaymentStatusPending:
		sess, err := r.sessions.FindBySessionID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &ReconcileResult{SessionID: sessionID, PaymentStatus: sess.PaymentStatus, Outcome: OutcomeIgnored}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment status %q", reported))
	}

	sess, err := r.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if outcome, settled := settledOutcome(sess.PaymentStatus, reported); settled {
		return &ReconcileResult{SessionID: sessionID, PaymentStatus: sess.PaymentStatus, Outcome: outcome}, nil
	}

	release, err := r.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return &ReconcileResult{SessionID: sessionID, PaymentStatus: sess.PaymentStatus, Outcome: OutcomeBusy},
			pkgerrors.Wrap(pkgerrors.CodeDependency, ErrSessionBusy, "reconcile payment session")
	}
	defer release()

	result := &ReconcileResult{SessionID: sessionID, PaymentStatus: reported, Outcome: OutcomeApplied}
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		won, err := r.sessions.WithTx(tx).SettleFromPending(ctx, sessionID, reported)
		if err != nil {
			return err
		}
		if !won {
			result.Outcome = OutcomeLostRace
			return nil
		}

		linked, err := r.txns.WithTx(tx).ListBySessionID(ctx, sessionID)
		if err != nil {
			return err
		}
		at := r.now().UTC()
		for i := range linked {
			txn := &linked[i]
			if reported == enums.PaymentStatusPaid {
				err = r.applyPaid(ctx, tx, txn, sessionID, at, result)
			} else {
				err = r.applyFailed(ctx, tx, txn, reported, at, result)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Outcome == OutcomeLostRace {
		// Report the status the winner stored.
		if current, err := r.sessions.FindBySessionID(ctx, sessionID); err == nil {
			result.PaymentStatus = current.PaymentStatus
		}
	}
	return result, nil
}

func settledOutcome(stored, reported enums.PaymentStatus) (string, bool) {
	switch {
	case stored == reported:
		return OutcomeDuplicate, true
	case stored != enums.PaymentStatusPending:
		return OutcomeStale, true
	default:
		return "", false
	}
}

// acquire returns a nil release func when the lock stayed busy.
func (r *Reconciler) acquire(ctx context.Context, sessionID string) (func(), error) {
	for attempt := 0; ; attempt++ {
		release, ok, err := r.locker.Acquire(ctx, sessionID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire payment session lock")
		}
		if ok {
			return release, nil
		}
		if attempt >= len(lockRetryDelays) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelays[attempt]):
		}
	}
}

func (r *Reconciler) applyPaid(ctx context.Context, tx *gorm.DB, txn *models.Transaction, sessionID string, at time.Time, result *ReconcileResult) error {
	if txn.Status != enums.TransactionStatusPending {
		// Cancelled by the buyer before the money landed; needs a manual refund.
		result.Orphaned = append(result.Orphaned, txn.ID)
		r.logg.Warn(r.logg.WithTransactionID(ctx, txn.ID.String()), fmt.Sprintf("payment landed on %s transaction", txn.Status))
		return r.notifier.PaymentOrphaned(ctx, tx, txn, sessionID, at)
	}

	if err := r.ledger.Apply(ctx, tx, txn, enums.TransactionEventPaymentSucceeded, at); err != nil {
		return err
	}
	invoice, issued, err := r.invoices.Ensure(ctx, tx, txn, at)
	if err != nil {
		return err
	}
	if _, err := r.money.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
		TransactionID: txn.ID,
		Type:          enums.LedgerEventTypePaymentHeld,
		Amount:        txn.TotalAmount,
		Currency:      txn.Currency,
		Metadata:      map[string]any{"session_id": sessionID},
	}); err != nil {
		return err
	}
	if err := r.notifier.PaymentHeld(ctx, tx, txn, at); err != nil {
		return err
	}
	if issued {
		if err := r.notifier.InvoiceIssued(ctx, tx, invoice, at); err != nil {
			return err
		}
	}
	result.Held = append(result.Held, txn.ID)
	return nil
}

func (r *Reconciler) applyFailed(ctx context.Context, tx *gorm.DB, txn *models.Transaction, status enums.PaymentStatus, at time.Time, result *ReconcileResult) error {
	if txn.Status != enums.TransactionStatusPending {
		return nil
	}
	if err := r.ledger.Apply(ctx, tx, txn, enums.TransactionEventPaymentFailed, at); err != nil {
		return err
	}
	if _, err := r.products.WithTx(tx).ReleaseReservation(ctx, txn.ProductID, txn.ID); err != nil {
		return err
	}
	if err := r.notifier.PaymentFailed(ctx, tx, txn, status, at); err != nil {
		return err
	}
	result.Cancelled = append(result.Cancelled, txn.ID)
	return nil
}
