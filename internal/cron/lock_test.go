package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLockStore struct {
	values map[string]string
	ttl    time.Duration
	err    error
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: map[string]string{}}
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	f.ttl = ttl
	return true, nil
}

func (f *fakeLockStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	if f.values[key] != owner {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := newFakeLockStore()
	first, err := NewRedisLock(store, "relivv:lock:cron", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "relivv:lock:cron", time.Minute)
	require.NoError(t, err)

	release, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	require.NotNil(t, release)
	require.Equal(t, defaultLockTTL, store.ttl)

	blocked, err := second.TryAcquire(ctx)
	require.NoError(t, err)
	require.Nil(t, blocked)

	require.NoError(t, release(ctx))
	again, err := second.TryAcquire(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
}

func TestRedisLockReleaseLeavesNewOwnerAlone(t *testing.T) {
	ctx := context.Background()
	store := newFakeLockStore()
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)

	release, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	store.values["k"] = "someone-else"

	require.NoError(t, release(ctx))
	require.Equal(t, "someone-else", store.values["k"])
}

func TestRedisLockPropagatesStoreErrors(t *testing.T) {
	store := newFakeLockStore()
	store.err = errors.New("connection refused")
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)
	_, err = lock.TryAcquire(context.Background())
	require.ErrorContains(t, err, "connection refused")
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Minute)
	require.Error(t, err)
	_, err = NewRedisLock(newFakeLockStore(), "", time.Minute)
	require.Error(t, err)
}
