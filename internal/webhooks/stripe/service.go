// Package stripewebhook turns verified gateway notifications into payment
// reconciliations.
package stripewebhook

import (
	"context"
	"fmt"

	"github.com/angelmondragon/relivv-escrow/internal/payments"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

type verifier interface {
	VerifyWebhook(payload []byte, signature string) (*payments.WebhookEvent, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, sessionID string, reported enums.PaymentStatus, source string) (*payments.ReconcileResult, error)
}

type guard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type ServiceParams struct {
	Verifier   verifier
	Reconciler reconciler
	Guard      guard
	Logger     *logger.Logger
}

type Service struct {
	verifier   verifier
	reconciler reconciler
	guard      guard
	logg       *logger.Logger
}

// Outcome summarizes how one delivery was handled.
type Outcome struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	Result    string `json:"result,omitempty"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook verifier required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment reconciler required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Service{
		verifier:   params.Verifier,
		reconciler: params.Reconciler,
		guard:      params.Guard,
		logg:       params.Logger,
	}, nil
}

// Process verifies the signed payload and reconciles the session it reports.
// Any error means the delivery was not applied and the gateway should retry.
func (s *Service) Process(ctx context.Context, payload []byte, signature string) (*Outcome, error) {
	event, err := s.verifier.VerifyWebhook(payload, signature)
	if err != nil {
		return nil, err
	}
	out := &Outcome{EventID: event.ID, EventType: event.Type}
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": event.Type})

	if !event.Relevant {
		out.Ignored = true
		return out, nil
	}

	seen, err := s.guard.Claim(ctx, event.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
	}
	if seen {
		out.Duplicate = true
		return out, nil
	}

	res, err := s.HandleEvent(ctx, event)
	if err != nil {
		if fErr := s.guard.Forget(ctx, event.ID); fErr != nil {
			s.logg.Error(ctx, "failed to drop webhook claim", fErr)
		}
		return nil, err
	}
	out.Result = res.Outcome
	s.logg.Info(ctx, fmt.Sprintf("stripe event processed: %s", res.Outcome))
	return out, nil
}

// HandleEvent reconciles an already verified event.
func (s *Service) HandleEvent(ctx context.Context, event *payments.WebhookEvent) (*payments.ReconcileResult, error) {
	if event == nil || event.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event carries no checkout session")
	}
	return s.reconciler.Reconcile(ctx, event.SessionID, event.Status, payments.SourceWebhook)
}
