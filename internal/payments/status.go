package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/relivv-escrow/internal/transactions"
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

// pollTimeout bounds a shared status poll. The poll outlives any single
// caller, since other pollers may be waiting on it.
const pollTimeout = 15 * time.Second

type statusReconciler interface {
	Reconcile(ctx context.Context, sessionID string, reported enums.PaymentStatus, source string) (*ReconcileResult, error)
}

// CheckoutStatus is what the buyer's success page polls.
type CheckoutStatus struct {
	SessionID     string               `json:"session_id"`
	PaymentStatus enums.PaymentStatus  `json:"payment_status"`
	Source        enums.CheckoutSource `json:"source"`
	Transactions  []models.Transaction `json:"transactions"`
}

// StatusService answers checkout status polls. Concurrent polls for one
// session share a single gateway round trip.
type StatusService struct {
	sessions   *SessionRepository
	txns       *transactions.Repository
	gateway    Gateway
	reconciler statusReconciler
	group      singleflight.Group
	logg       *logger.Logger
}

func NewStatusService(sessions *SessionRepository, txns *transactions.Repository, gateway Gateway, reconciler statusReconciler, logg *logger.Logger) (*StatusService, error) {
	if sessions == nil || txns == nil {
		return nil, errors.New("session and transaction repositories required")
	}
	if gateway == nil {
		return nil, errors.New("gateway required")
	}
	if reconciler == nil {
		return nil, errors.New("reconciler required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &StatusService{sessions: sessions, txns: txns, gateway: gateway, reconciler: reconciler, logg: logg}, nil
}

// GetCheckoutStatus returns the session's status for its buyer, asking the
// gateway first while the session is still pending.
func (s *StatusService) GetCheckoutStatus(ctx context.Context, sessionID string, buyerID uuid.UUID) (*CheckoutStatus, error) {
	sess, err := s.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "checkout session belongs to another buyer")
	}

	if sess.PaymentStatus == enums.PaymentStatusPending {
		_, err, _ := s.group.Do(sessionID, func() (any, error) {
			pollCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pollTimeout)
			defer cancel()
			reported, err := s.gateway.GetStatus(pollCtx, sessionID)
			if err != nil {
				return nil, err
			}
			if reported == enums.PaymentStatusPending {
				return nil, nil
			}
			return s.reconciler.Reconcile(pollCtx, sessionID, reported, SourcePoll)
		})
		if err != nil {
			if !errors.Is(err, ErrSessionBusy) {
				return nil, err
			}
			// Another worker is settling the session; report what is stored.
			s.logg.Warn(s.logg.WithSessionID(ctx, sessionID), "status poll skipped, session busy")
		}
		if sess, err = s.sessions.FindBySessionID(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	linked, err := s.txns.ListBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &CheckoutStatus{
		SessionID:     sess.SessionID,
		PaymentStatus: sess.PaymentStatus,
		Source:        sess.Source,
		Transactions:  linked,
	}, nil
}
