package lock

import (
	"context"
	"sync"
	"time"
)

// Locker is the distributed-lock port. Acquire is try-once and
// non-blocking; locks are advisory and expire after their ttl, so
// holders of long operations must Extend. Release and Extend only act
// when the caller still holds the lock (token compare), never on a
// lock re-acquired by someone else after expiry.
type Locker interface {
	Acquire(ctx context.Context, resourceID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, resourceID string) (bool, error)
	Extend(ctx context.Context, resourceID string, ttl time.Duration) (bool, error)
	IsLocked(ctx context.Context, resourceID string) (bool, error)
}

type localEntry struct {
	expiresAt time.Time
}

// LocalLocker implements Locker for a single process. It gives tests
// and one-node demos the same TTL semantics as the Redis locker
// without the backing store.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]localEntry
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]localEntry)}
}

// Acquire takes the lock unless a live one exists.
func (l *LocalLocker) Acquire(ctx context.Context, resourceID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.locks[resourceID]; ok && time.Now().Before(entry.expiresAt) {
		return false, nil
	}
	l.locks[resourceID] = localEntry{expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// Release drops the lock if it is still live.
func (l *LocalLocker) Release(ctx context.Context, resourceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[resourceID]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(l.locks, resourceID)
		return false, nil
	}
	delete(l.locks, resourceID)
	return true, nil
}

// Extend pushes out the expiry of a live lock.
func (l *LocalLocker) Extend(ctx context.Context, resourceID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[resourceID]
	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	l.locks[resourceID] = localEntry{expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// IsLocked reports whether a live lock exists.
func (l *LocalLocker) IsLocked(ctx context.Context, resourceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[resourceID]
	return ok && time.Now().Before(entry.expiresAt), nil
}
