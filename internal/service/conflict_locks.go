package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/noah-isme/sma-schedule-conflicts/pkg/errors"
)

// keyedMutex serialises work per key. Entries are dropped once no holder or waiter remains.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// EventLocker guarantees at most one writer per scheduled event.
type EventLocker interface {
	LockEvent(ctx context.Context, eventID int64) (func(), error)
}

// LocalEventLocker serialises event writers inside one process.
type LocalEventLocker struct {
	locks *keyedMutex
}

// NewLocalEventLocker constructs an in-process event locker.
func NewLocalEventLocker() *LocalEventLocker {
	return &LocalEventLocker{locks: newKeyedMutex()}
}

// LockEvent acquires the event lock.
func (l *LocalEventLocker) LockEvent(ctx context.Context, eventID int64) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.locks.Lock(eventLockKey(eventID)), nil
}

// lockBackend is implemented by the Redis cache repository.
type lockBackend interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// DistributedEventLocker holds event locks in Redis so API replicas and the CLI exclude each other.
type DistributedEventLocker struct {
	backend lockBackend
	ttl     time.Duration
	retry   time.Duration
}

// NewDistributedEventLocker constructs a Redis backed locker.
func NewDistributedEventLocker(backend lockBackend, ttl time.Duration) *DistributedEventLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DistributedEventLocker{backend: backend, ttl: ttl, retry: 50 * time.Millisecond}
}

// LockEvent polls until the lock is acquired or ctx ends.
func (l *DistributedEventLocker) LockEvent(ctx context.Context, eventID int64) (func(), error) {
	key := eventLockKey(eventID)
	token := uuid.NewString()
	for {
		ok, err := l.backend.AcquireLock(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return func() {
				_ = l.backend.ReleaseLock(context.Background(), key, token)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, appErrors.Wrap(ctx.Err(), appErrors.ErrEventLocked.Code, appErrors.ErrEventLocked.Status, appErrors.ErrEventLocked.Message)
		case <-time.After(l.retry):
		}
	}
}

func eventLockKey(eventID int64) string {
	return fmt.Sprintf("locks:scheduled_event:%d", eventID)
}
