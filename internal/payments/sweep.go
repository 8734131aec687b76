package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
)

// SweepResult counts what one sweep pass did.
type SweepResult struct {
	Checked int
	Settled int
}

// Sweeper polls the gateway for sessions whose webhook never arrived.
type Sweeper struct {
	sessions   *SessionRepository
	gateway    Gateway
	reconciler statusReconciler
	minAge     time.Duration
	limit      int
}

func NewSweeper(sessions *SessionRepository, gateway Gateway, reconciler statusReconciler, minAge time.Duration, limit int) (*Sweeper, error) {
	if sessions == nil || gateway == nil || reconciler == nil {
		return nil, errors.New("sessions, gateway and reconciler required")
	}
	if minAge <= 0 {
		minAge = 15 * time.Minute
	}
	return &Sweeper{sessions: sessions, gateway: gateway, reconciler: reconciler, minAge: minAge, limit: limit}, nil
}

// Sweep checks pending sessions older than the configured age. One failing
// session does not stop the others; all failures are returned together.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult
	pending, err := s.sessions.ListPendingBefore(ctx, now.Add(-s.minAge), s.limit)
	if err != nil {
		return result, err
	}

	var errs error
	for _, sess := range pending {
		if ctx.Err() != nil {
			return result, multierr.Append(errs, ctx.Err())
		}
		result.Checked++
		reported, err := s.gateway.GetStatus(ctx, sess.SessionID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("session %s: %w", sess.SessionID, err))
			continue
		}
		if reported == enums.PaymentStatusPending {
			continue
		}
		res, err := s.reconciler.Reconcile(ctx, sess.SessionID, reported, SourceSweep)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("session %s: %w", sess.SessionID, err))
			continue
		}
		if res.Outcome == OutcomeApplied {
			result.Settled++
		}
	}
	return result, errs
}
