package transactions

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

// Ledger is the single writer of transaction status. Every caller (reconciler,
// release, refund, delivery) goes through Apply so the state table and the
// version guard are enforced in one place.
type Ledger struct {
	repo          *Repository
	releaseWindow time.Duration
}

func NewLedger(repo *Repository, releaseWindow time.Duration) *Ledger {
	return &Ledger{repo: repo, releaseWindow: releaseWindow}
}

// ReleaseWindow is the delay between delivery confirmation and auto-release.
func (l *Ledger) ReleaseWindow() time.Duration {
	return l.releaseWindow
}

// Apply moves txn through event inside tx. txn must be the row as last read;
// a concurrent writer makes the update fail with STATE_CONFLICT and leaves the
// stored row untouched. On success txn reflects the stored row.
func (l *Ledger) Apply(ctx context.Context, tx *gorm.DB, txn *models.Transaction, event enums.TransactionEvent, at time.Time) error {
	next, err := Transition(txn.Status, event)
	if err != nil {
		return err
	}
	at = at.UTC()

	changes := map[string]any{"status": next}
	switch next {
	case enums.TransactionStatusCompleted:
		changes["completed_at"] = at
	case enums.TransactionStatusCancelled:
		changes["cancelled_at"] = at
	case enums.TransactionStatusRefunded:
		changes["refunded_at"] = at
	}

	if err := l.repo.WithTx(tx).Update(ctx, txn, changes); err != nil {
		return err
	}

	txn.Status = next
	switch next {
	case enums.TransactionStatusCompleted:
		txn.CompletedAt = &at
	case enums.TransactionStatusCancelled:
		txn.CancelledAt = &at
	case enums.TransactionStatusRefunded:
		txn.RefundedAt = &at
	}
	return nil
}

// ApplyDelivery records the buyer's delivery report. Confirmation starts the
// release clock; a dispute clears it so the release job skips the row.
func (l *Ledger) ApplyDelivery(ctx context.Context, tx *gorm.DB, txn *models.Transaction, outcome enums.DeliveryOutcome, at time.Time) error {
	if txn.Status != enums.TransactionStatusHeld {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery can only be reported while funds are held").
			WithDetails(map[string]any{"status": txn.Status})
	}
	next, err := DeliveryTransition(txn.DeliveryStatus, outcome)
	if err != nil {
		return err
	}
	at = at.UTC()

	changes := map[string]any{"delivery_status": next}
	var confirmedAt, releaseAt *time.Time
	if next == enums.DeliveryStatusConfirmed {
		release := at.Add(l.releaseWindow)
		confirmedAt, releaseAt = &at, &release
		changes["delivery_confirmed_at"] = at
		changes["auto_release_at"] = release
	} else {
		confirmedAt = txn.DeliveryConfirmedAt
		changes["auto_release_at"] = nil
	}

	if err := l.repo.WithTx(tx).Update(ctx, txn, changes); err != nil {
		return err
	}
	txn.DeliveryStatus = next
	txn.DeliveryConfirmedAt = confirmedAt
	txn.AutoReleaseAt = releaseAt
	return nil
}
