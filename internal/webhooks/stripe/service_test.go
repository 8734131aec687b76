package stripewebhook_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/relivv-escrow/internal/escrowtest"
	"github.com/angelmondragon/relivv-escrow/internal/payments"
	stripewebhook "github.com/angelmondragon/relivv-escrow/internal/webhooks/stripe"
	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("relivv:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *inMemoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

type fixture struct {
	h     *escrowtest.Harness
	store *inMemoryStore
	svc   *stripewebhook.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := escrowtest.New(t)
	store := newInMemoryStore()
	guard, err := stripewebhook.NewIdempotencyGuard(store, time.Hour)
	require.NoError(t, err)
	svc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Verifier:   h.Gateway,
		Reconciler: h.Reconciler,
		Guard:      guard,
	})
	require.NoError(t, err)
	return &fixture{h: h, store: store, svc: svc}
}

func (f *fixture) deliver(event payments.WebhookEvent) {
	f.h.Gateway.VerifyFn = func([]byte, string) (*payments.WebhookEvent, error) {
		ev := event
		return &ev, nil
	}
}

func TestProcessPaidEventHoldsFundsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	txns := f.h.ReservePending(t, buyer, "80.00")
	sess := f.h.OpenSession(t, buyer, txns...)
	f.deliver(payments.WebhookEvent{
		ID:        "evt_paid",
		Type:      "checkout.session.completed",
		SessionID: sess.SessionID,
		Status:    enums.PaymentStatusPaid,
		Relevant:  true,
	})

	out, err := f.svc.Process(ctx, []byte(`{}`), "t=1,v1=sig")
	require.NoError(t, err)
	require.Equal(t, payments.OutcomeApplied, out.Result)
	require.Equal(t, enums.TransactionStatusHeld, f.h.Reload(t, txns[0].ID).Status)

	again, err := f.svc.Process(ctx, []byte(`{}`), "t=1,v1=sig")
	require.NoError(t, err)
	require.True(t, again.Duplicate)
	require.EqualValues(t, 1, f.h.OutboxCount(t, enums.EventPaymentHeld, txns[0].ID))
}

func TestProcessRedeliveryWithNewEventIDIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	txns := f.h.ReservePending(t, buyer, "15.00")
	sess := f.h.OpenSession(t, buyer, txns...)

	for _, id := range []string{"evt_a", "evt_b"} {
		f.deliver(payments.WebhookEvent{ID: id, SessionID: sess.SessionID, Status: enums.PaymentStatusPaid, Relevant: true})
		_, err := f.svc.Process(ctx, nil, "sig")
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, f.h.LedgerCount(t, txns[0].ID, enums.LedgerEventTypePaymentHeld))
}

func TestProcessExpiredEventReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := uuid.New()
	txns := f.h.ReservePending(t, buyer, "25.00")
	sess := f.h.OpenSession(t, buyer, txns...)
	f.deliver(payments.WebhookEvent{ID: "evt_exp", SessionID: sess.SessionID, Status: enums.PaymentStatusExpired, Relevant: true})

	out, err := f.svc.Process(ctx, nil, "sig")
	require.NoError(t, err)
	require.Equal(t, payments.OutcomeApplied, out.Result)
	require.Equal(t, enums.TransactionStatusCancelled, f.h.Reload(t, txns[0].ID).Status)
}

func TestProcessIgnoresIrrelevantEvents(t *testing.T) {
	f := newFixture(t)
	f.deliver(payments.WebhookEvent{ID: "evt_other", Type: "customer.created"})

	out, err := f.svc.Process(context.Background(), nil, "sig")
	require.NoError(t, err)
	require.True(t, out.Ignored)
	require.Zero(t, f.store.len())
}

func TestProcessRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.h.Gateway.VerifyFn = func([]byte, string) (*payments.WebhookEvent, error) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verify stripe signature")
	}

	_, err := f.svc.Process(context.Background(), nil, "bad")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Zero(t, f.store.len())
}

func TestProcessUnknownSessionForgetsClaimForRetry(t *testing.T) {
	f := newFixture(t)
	f.deliver(payments.WebhookEvent{ID: "evt_early", SessionID: "cs_missing", Status: enums.PaymentStatusPaid, Relevant: true})

	_, err := f.svc.Process(context.Background(), nil, "sig")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
	require.Zero(t, f.store.len(), "claim must be dropped so the gateway retry is processed")
}

func TestProcessGuardFailureIsRetryable(t *testing.T) {
	h := escrowtest.New(t)
	svc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Verifier:   h.Gateway,
		Reconciler: h.Reconciler,
		Guard:      failingGuard{},
	})
	require.NoError(t, err)
	h.Gateway.VerifyFn = func([]byte, string) (*payments.WebhookEvent, error) {
		return &payments.WebhookEvent{ID: "evt", SessionID: "cs", Status: enums.PaymentStatusPaid, Relevant: true}, nil
	}

	_, err = svc.Process(context.Background(), nil, "sig")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.True(t, pkgerrors.MetadataFor(pkgerrors.CodeDependency).Retryable)
}

func TestNewIdempotencyGuardValidates(t *testing.T) {
	_, err := stripewebhook.NewIdempotencyGuard(nil, time.Hour)
	require.Error(t, err)
	_, err = stripewebhook.NewIdempotencyGuard(newInMemoryStore(), 0)
	require.Error(t, err)
}

type failingGuard struct{}

func (failingGuard) Claim(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func (failingGuard) Forget(context.Context, string) error { return nil }
