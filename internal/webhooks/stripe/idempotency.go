package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ClaimStore is the redis surface the guard needs.
type ClaimStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

const defaultGuardScope = "stripe_webhook"

// IdempotencyGuard remembers processed gateway event ids. A claim that is not
// followed by successful processing must be forgotten so the retry runs.
type IdempotencyGuard struct {
	store ClaimStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store ClaimStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: defaultGuardScope}, nil
}

// Claim marks eventID as in progress and reports whether it was seen before.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (seen bool, err error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim webhook event: %w", err)
	}
	return !set, nil
}

// Forget drops the claim on eventID.
func (g *IdempotencyGuard) Forget(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
