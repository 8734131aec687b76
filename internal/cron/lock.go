package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/relivv-escrow/pkg/instance"
)

const defaultLockTTL = 10 * time.Minute

// ReleaseFunc gives back a lock obtained from TryAcquire.
type ReleaseFunc func(ctx context.Context) error

// Lock makes a cron cycle exclusive across worker replicas. TryAcquire
// returns a nil ReleaseFunc when another replica holds the lock.
type Lock interface {
	TryAcquire(ctx context.Context) (ReleaseFunc, error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock stores an owner token under key with SET NX. The TTL bounds how
// long a crashed worker can block the next cycle.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("cron lock: store is nil")
	case key == "":
		return nil, errors.New("cron lock: empty key")
	case ttl <= 0:
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TryAcquire(ctx context.Context) (ReleaseFunc, error) {
	token := fmt.Sprintf("%s:%s", instance.GetID(), uuid.NewString())
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("cron lock %s: %w", l.key, err)
	}
	if !won {
		return nil, nil
	}
	return func(ctx context.Context) error {
		// A lock that expired and was taken over stays with its new owner.
		if _, err := l.store.ReleaseIfOwner(ctx, l.key, token); err != nil {
			return fmt.Errorf("cron unlock %s: %w", l.key, err)
		}
		return nil
	}, nil
}
