// Package escrow moves held funds out of escrow: to the seller once delivery
// is confirmed and the release window has passed, or back to the buyer.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/internal/ledger"
	"github.com/angelmondragon/relivv-escrow/internal/payments"
	"github.com/angelmondragon/relivv-escrow/internal/products"
	"github.com/angelmondragon/relivv-escrow/internal/transactions"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
	"github.com/angelmondragon/relivv-escrow/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type invoiceService interface {
	Ensure(ctx context.Context, tx *gorm.DB, txn *models.Transaction, at time.Time) (*models.Invoice, bool, error)
	MarkRefunded(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (bool, error)
}

type escrowNotifier interface {
	FundsReleased(ctx context.Context, tx *gorm.DB, txn *models.Transaction, at time.Time) error
	TransactionClosed(ctx context.Context, tx *gorm.DB, txn *models.Transaction, actorID uuid.UUID, refund decimal.Decimal, at time.Time) error
	InvoiceIssued(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, at time.Time) error
}

// ReleaseResult reports the outcome of a release attempt.
type ReleaseResult struct {
	Transaction     *models.Transaction `json:"transaction"`
	AlreadyReleased bool                `json:"already_released"`
}

// CancelResult reports the outcome of a cancellation.
type CancelResult struct {
	Transaction      *models.Transaction `json:"transaction"`
	RefundAmount     decimal.Decimal     `json:"refund_amount"`
	AlreadyProcessed bool                `json:"already_processed"`
}

// ReleaseDueResult counts one scheduler pass.
type ReleaseDueResult struct {
	Scanned  int
	Released int
}

// ExpireResult counts one reservation expiry pass.
type ExpireResult struct {
	Scanned int
	Expired int
}

type Service struct {
	tx       txRunner
	txns     *transactions.Repository
	ledger   *transactions.Ledger
	products *products.Repository
	sessions *payments.SessionRepository
	invoices invoiceService
	money    ledger.Service
	notifier escrowNotifier
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

type ServiceParams struct {
	Tx           txRunner
	Transactions *transactions.Repository
	Ledger       *transactions.Ledger
	Products     *products.Repository
	Sessions     *payments.SessionRepository
	Invoices     invoiceService
	MoneyLedger  ledger.Service
	Notifier     escrowNotifier
	Metrics      *metrics.PaymentMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Tx == nil:
		return nil, errors.New("tx runner required")
	case p.Transactions == nil || p.Products == nil || p.Sessions == nil:
		return nil, errors.New("transaction, product and session repositories required")
	case p.Ledger == nil:
		return nil, errors.New("transaction ledger required")
	case p.Invoices == nil:
		return nil, errors.New("invoice service required")
	case p.MoneyLedger == nil:
		return nil, errors.New("money ledger required")
	case p.Notifier == nil:
		return nil, errors.New("notifier required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{
		tx:       p.Tx,
		txns:     p.Transactions,
		ledger:   p.Ledger,
		products: p.Products,
		sessions: p.Sessions,
		invoices: p.Invoices,
		money:    p.MoneyLedger,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      p.Now,
	}, nil
}

// Release pays the seller out of escrow. It is idempotent: a completed
// transaction returns AlreadyReleased without side effects.
func (s *Service) Release(ctx context.Context, id uuid.UUID) (*ReleaseResult, error) {
	ctx = s.logg.WithTransactionID(ctx, id.String())

	var result *ReleaseResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.txns.WithTx(tx).FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if txn.Status == enums.TransactionStatusCompleted {
			result = &ReleaseResult{Transaction: txn, AlreadyReleased: true}
			return nil
		}

		now := s.now().UTC()
		if err := releasable(txn, now); err != nil {
			return err
		}
		if err := s.ledger.Apply(ctx, tx, txn, enums.TransactionEventRelease, now); err != nil {
			return err
		}

		invoice, issued, err := s.invoices.Ensure(ctx, tx, txn, now)
		if err != nil {
			return err
		}
		if issued {
			if err := s.notifier.InvoiceIssued(ctx, tx, invoice, now); err != nil {
				return err
			}
		}
		if _, err := s.money.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
			TransactionID: txn.ID,
			Type:          enums.LedgerEventTypeVendorPayout,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			Metadata:      map[string]any{"seller_id": txn.SellerID.String()},
		}); err != nil {
			return err
		}
		if _, err := s.money.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
			TransactionID: txn.ID,
			Type:          enums.LedgerEventTypeCommissionEarned,
			Amount:        txn.Commission,
			Currency:      txn.Currency,
		}); err != nil {
			return err
		}
		if err := s.notifier.FundsReleased(ctx, tx, txn, now); err != nil {
			return err
		}
		result = &ReleaseResult{Transaction: txn}
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			// A concurrent releaser may have won; report its result.
			if current, findErr := s.txns.FindByID(ctx, id); findErr == nil && current.Status == enums.TransactionStatusCompleted {
				return &ReleaseResult{Transaction: current, AlreadyReleased: true}, nil
			}
		}
		return nil, err
	}

	if !result.AlreadyReleased {
		s.metrics.IncReleased()
		s.logg.Info(ctx, "escrow funds released")
	}
	return result, nil
}

func releasable(txn *models.Transaction, now time.Time) error {
	if txn.Status != enums.TransactionStatusHeld {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only held funds can be released").
			WithDetails(map[string]any{"status": txn.Status})
	}
	if txn.DeliveryStatus != enums.DeliveryStatusConfirmed || txn.AutoReleaseAt == nil {
		return pkgerrors.New(pkgerrors.CodeNotYetEligible, "delivery has not been confirmed").
			WithDetails(map[string]any{"delivery_status": txn.DeliveryStatus})
	}
	if now.Before(*txn.AutoReleaseAt) {
		return pkgerrors.New(pkgerrors.CodeNotYetEligible, "release window has not elapsed").
			WithDetails(map[string]any{"auto_release_at": txn.AutoReleaseAt.UTC()})
	}
	return nil
}

// ReleaseDue releases up to limit eligible transactions. Failures are
// collected and the pass continues.
func (s *Service) ReleaseDue(ctx context.Context, now time.Time, limit int) (ReleaseDueResult, error) {
	var result ReleaseDueResult
	if limit <= 0 {
		limit = 100
	}
	due, err := s.txns.ListReleaseDue(ctx, now.UTC(), limit)
	if err != nil {
		return result, err
	}

	var errs error
	for _, txn := range due {
		if ctx.Err() != nil {
			return result, multierr.Append(errs, ctx.Err())
		}
		result.Scanned++
		res, err := s.Release(ctx, txn.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release %s: %w", txn.ID, err))
			continue
		}
		if !res.AlreadyReleased {
			result.Released++
		}
	}
	return result, errs
}

// ExpireUnpaid cancels pending transactions created before cutoff for which no
// payment session was ever opened, and puts their products back on sale.
// These are left behind by abandoned or interrupted checkouts.
func (s *Service) ExpireUnpaid(ctx context.Context, cutoff time.Time, limit int) (ExpireResult, error) {
	var result ExpireResult
	if limit <= 0 {
		limit = 100
	}
	stale, err := s.txns.ListUnpaidBefore(ctx, cutoff, limit)
	if err != nil {
		return result, err
	}

	var errs error
	for _, candidate := range stale {
		if ctx.Err() != nil {
			return result, multierr.Append(errs, ctx.Err())
		}
		result.Scanned++
		expired, err := s.expireUnpaid(ctx, candidate.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", candidate.ID, err))
			continue
		}
		if expired {
			result.Expired++
		}
	}
	return result, errs
}

func (s *Service) expireUnpaid(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx = s.logg.WithTransactionID(ctx, id.String())
	expired := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.txns.WithTx(tx).FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// A checkout may have linked a session since the scan.
		if txn.Status != enums.TransactionStatusPending || txn.PaymentSessionID != nil {
			return nil
		}
		if _, err := s.cancelPending(ctx, tx, txn, uuid.Nil); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err == nil && expired {
		s.logg.Info(ctx, "unpaid reservation expired")
	}
	return expired, err
}

// Cancel refunds held funds or cancels a pending transaction on behalf of
// its buyer or seller. Repeating a cancellation returns the stored result.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID) (*CancelResult, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{"transaction_id": id.String(), "actor_id": actorID.String()})

	var result *CancelResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.txns.WithTx(tx).FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !txn.IsParty(actorID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer or seller can cancel")
		}

		switch txn.Status {
		case enums.TransactionStatusRefunded:
			result = &CancelResult{Transaction: txn, RefundAmount: refundAmount(txn), AlreadyProcessed: true}
			return nil
		case enums.TransactionStatusCancelled:
			result = &CancelResult{Transaction: txn, RefundAmount: decimal.Zero, AlreadyProcessed: true}
			return nil
		case enums.TransactionStatusHeld:
			result, err = s.refund(ctx, tx, txn, actorID)
			return err
		case enums.TransactionStatusPending:
			result, err = s.cancelPending(ctx, tx, txn, actorID)
			return err
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "completed transactions cannot be cancelled").
				WithDetails(map[string]any{"status": txn.Status})
		}
	})
	if err != nil {
		return nil, err
	}
	if !result.AlreadyProcessed {
		s.logg.Info(s.logg.WithField(ctx, "status", result.Transaction.Status), "transaction closed")
	}
	return result, nil
}

func refundAmount(txn *models.Transaction) decimal.Decimal {
	return txn.Amount.Add(txn.Commission)
}

func (s *Service) refund(ctx context.Context, tx *gorm.DB, txn *models.Transaction, actorID uuid.UUID) (*CancelResult, error) {
	now := s.now().UTC()
	if err := s.ledger.Apply(ctx, tx, txn, enums.TransactionEventRefund, now); err != nil {
		return nil, err
	}
	amount := refundAmount(txn)

	if _, err := s.invoices.MarkRefunded(ctx, tx, txn.ID); err != nil {
		return nil, err
	}
	if txn.PaymentSessionID != nil {
		if err := s.refundSessionIfClosed(ctx, tx, *txn.PaymentSessionID); err != nil {
			return nil, err
		}
	}
	if _, err := s.money.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
		TransactionID: txn.ID,
		Type:          enums.LedgerEventTypeRefund,
		Amount:        amount,
		Currency:      txn.Currency,
		Metadata:      map[string]any{"actor_id": actorID.String()},
	}); err != nil {
		return nil, err
	}
	if _, err := s.products.WithTx(tx).ReleaseReservation(ctx, txn.ProductID, txn.ID); err != nil {
		return nil, err
	}
	if err := s.notifier.TransactionClosed(ctx, tx, txn, actorID, amount, now); err != nil {
		return nil, err
	}
	return &CancelResult{Transaction: txn, RefundAmount: amount}, nil
}

// refundSessionIfClosed marks the session refunded once none of its
// transactions still carries money.
func (s *Service) refundSessionIfClosed(ctx context.Context, tx *gorm.DB, sessionID string) error {
	linked, err := s.txns.WithTx(tx).ListBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, other := range linked {
		if other.Status != enums.TransactionStatusRefunded && other.Status != enums.TransactionStatusCancelled {
			return nil
		}
	}
	_, err = s.sessions.WithTx(tx).MarkRefunded(ctx, sessionID)
	return err
}

func (s *Service) cancelPending(ctx context.Context, tx *gorm.DB, txn *models.Transaction, actorID uuid.UUID) (*CancelResult, error) {
	now := s.now().UTC()
	if err := s.ledger.Apply(ctx, tx, txn, enums.TransactionEventCancel, now); err != nil {
		return nil, err
	}
	if _, err := s.products.WithTx(tx).ReleaseReservation(ctx, txn.ProductID, txn.ID); err != nil {
		return nil, err
	}
	if err := s.notifier.TransactionClosed(ctx, tx, txn, actorID, decimal.Zero, now); err != nil {
		return nil, err
	}
	return &CancelResult{Transaction: txn, RefundAmount: decimal.Zero}, nil
}
