// Package notifications enqueues the lifecycle messages buyers and sellers
// receive. Delivery (push, email) belongs to the notification service that
// consumes the Pub/Sub topics; this package only writes outbox rows.
package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	"github.com/angelmondragon/relivv-escrow/pkg/outbox"
	"github.com/angelmondragon/relivv-escrow/pkg/outbox/payloads"
)

type outboxWriter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

// Emitter writes each notification at most once per (event, aggregate).
type Emitter struct {
	outbox outboxWriter
}

func NewEmitter(writer outboxWriter) (*Emitter, error) {
	if writer == nil {
		return nil, fmt.Errorf("outbox writer required")
	}
	return &Emitter{outbox: writer}, nil
}

func ref(txn *models.Transaction) payloads.TransactionRef {
	return payloads.TransactionRef{
		TransactionID: txn.ID,
		ProductID:     txn.ProductID,
		BuyerID:       txn.BuyerID,
		SellerID:      txn.SellerID,
		Status:        txn.Status,
	}
}

func sessionOf(txn *models.Transaction) string {
	if txn.PaymentSessionID == nil {
		return ""
	}
	return *txn.PaymentSessionID
}

func (e *Emitter) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, id uuid.UUID, actor *outbox.ActorRef, data any, at time.Time) error {
	_, err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   id,
		Actor:         actor,
		Data:          data,
		OccurredAt:    at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", eventType, id, err)
	}
	return nil
}

// PaymentHeld is the buyer's purchase confirmation and the seller's "ship it".
func (e *Emitter) PaymentHeld(ctx context.Context, tx *gorm.DB, txn *models.Transaction, at time.Time) error {
	return e.emit(ctx, tx, enums.EventPaymentHeld, enums.AggregateTransaction, txn.ID, nil, payloads.PaymentHeldEvent{
		TransactionRef:   ref(txn),
		PaymentSessionID: sessionOf(txn),
		TotalAmount:      txn.TotalAmount,
		Currency:         txn.Currency,
		HeldAt:           at.UTC(),
	}, at)
}

func (e *Emitter) PaymentFailed(ctx context.Context, tx *gorm.DB, txn *models.Transaction, status enums.PaymentStatus, at time.Time) error {
	return e.emit(ctx, tx, enums.EventPaymentFailed, enums.AggregateTransaction, txn.ID, nil, payloads.PaymentFailedEvent{
		TransactionRef:   ref(txn),
		PaymentSessionID: sessionOf(txn),
		PaymentStatus:    status,
	}, at)
}

// PaymentOrphaned flags captured money for a transaction that was already closed.
func (e *Emitter) PaymentOrphaned(ctx context.Context, tx *gorm.DB, txn *models.Transaction, sessionID string, at time.Time) error {
	return e.emit(ctx, tx, enums.EventPaymentOrphaned, enums.AggregateTransaction, txn.ID, nil, payloads.PaymentOrphanedEvent{
		TransactionRef:   ref(txn),
		PaymentSessionID: sessionID,
		TotalAmount:      txn.TotalAmount,
		Currency:         txn.Currency,
	}, at)
}

func (e *Emitter) InvoiceIssued(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, at time.Time) error {
	return e.emit(ctx, tx, enums.EventInvoiceIssued, enums.AggregateInvoice, invoice.ID, nil, payloads.InvoiceIssuedEvent{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		TransactionID: invoice.TransactionID,
		BuyerID:       invoice.BuyerID,
		SellerID:      invoice.SellerID,
		TotalAmount:   invoice.TotalAmount,
		VATAmount:     invoice.VATAmount,
		Currency:      invoice.Currency,
	}, at)
}

// DeliveryUpdated picks the confirmed or disputed event from txn.DeliveryStatus.
func (e *Emitter) DeliveryUpdated(ctx context.Context, tx *gorm.DB, txn *models.Transaction, at time.Time) error {
	eventType := enums.EventDeliveryConfirmed
	if txn.DeliveryStatus == enums.DeliveryStatusDisputed {
		eventType = enums.EventDeliveryDisputed
	}
	return e.emit(ctx, tx, eventType, enums.AggregateTransaction, txn.ID, &outbox.ActorRef{UserID: txn.BuyerID, Role: string(enums.PartyRoleBuyer)}, payloads.DeliveryUpdatedEvent{
		TransactionRef: ref(txn),
		DeliveryStatus: txn.DeliveryStatus,
		ConfirmedAt:    txn.DeliveryConfirmedAt,
		AutoReleaseAt:  txn.AutoReleaseAt,
	}, at)
}

func (e *Emitter) FundsReleased(ctx context.Context, tx *gorm.DB, txn *models.Transaction, at time.Time) error {
	return e.emit(ctx, tx, enums.EventFundsReleased, enums.AggregateTransaction, txn.ID, nil, payloads.FundsReleasedEvent{
		TransactionRef: ref(txn),
		PayoutAmount:   txn.Amount,
		Commission:     txn.Commission,
		Currency:       txn.Currency,
		ReleasedAt:     at.UTC(),
	}, at)
}

// TransactionClosed covers both refunds of held money and pre-payment
// cancellations; the event type follows txn.Status.
func (e *Emitter) TransactionClosed(ctx context.Context, tx *gorm.DB, txn *models.Transaction, actorID uuid.UUID, refund decimal.Decimal, at time.Time) error {
	eventType := enums.EventTransactionCancelled
	if txn.Status == enums.TransactionStatusRefunded {
		eventType = enums.EventTransactionRefunded
	}
	var actor *outbox.ActorRef
	if actorID != uuid.Nil {
		role := enums.PartyRoleSeller
		if actorID == txn.BuyerID {
			role = enums.PartyRoleBuyer
		}
		actor = &outbox.ActorRef{UserID: actorID, Role: string(role)}
	}
	return e.emit(ctx, tx, eventType, enums.AggregateTransaction, txn.ID, actor, payloads.TransactionClosedEvent{
		TransactionRef: ref(txn),
		ActorID:        actorID,
		RefundAmount:   refund,
		Currency:       txn.Currency,
		ClosedAt:       at.UTC(),
	}, at)
}
