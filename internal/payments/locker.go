package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/relivv-escrow/pkg/instance"
)

const lockScope = "payment_session"

// SessionLocker serialises reconciliation per gateway session. Acquire
// reports false when another worker holds the lock.
type SessionLocker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), ok bool, err error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// RedisSessionLocker holds a SETNX lock with an owner token so only the
// holder can release it. The TTL bounds how long a crashed worker blocks others.
type RedisSessionLocker struct {
	store lockStore
	ttl   time.Duration
}

func NewRedisSessionLocker(store lockStore, ttl time.Duration) (*RedisSessionLocker, error) {
	if store == nil {
		return nil, errors.New("redis store required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisSessionLocker{store: store, ttl: ttl}, nil
}

func (l *RedisSessionLocker) Acquire(ctx context.Context, sessionID string) (func(), bool, error) {
	key := l.store.LockKey(lockScope, sessionID)
	owner := instance.GetID() + ":" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The caller's context may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_, _ = l.store.ReleaseIfOwner(releaseCtx, key, owner)
	}
	return release, true, nil
}

// LocalSessionLocker is an in-process locker for single-instance runs and tests.
type LocalSessionLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalSessionLocker() *LocalSessionLocker {
	return &LocalSessionLocker{held: map[string]struct{}{}}
}

func (l *LocalSessionLocker) Acquire(_ context.Context, sessionID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[sessionID]; busy {
		return nil, false, nil
	}
	l.held[sessionID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, sessionID)
			l.mu.Unlock()
		})
	}, true, nil
}
