package lock

import (
	"context"
	"fmt"
	"sync"
)

// Release gives a held lock back. It is safe to call once.
type Release func()

// Locker serializes work on one resource key across requests.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// ProductBoostKey guards the check-charge-grant sequence of a product's boost.
func ProductBoostKey(productID int64) string {
	return fmt.Sprintf("wallet:lock:boost:product:%d", productID)
}

// UserSubscriptionKey guards the check-charge-grant sequence of a user's
// subscription.
func UserSubscriptionKey(userID int64) string {
	return fmt.Sprintf("wallet:lock:subscription:user:%d", userID)
}

// LocalLocker is an in-process Locker for single-instance deployments and
// tests. Entries are dropped once no goroutine holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(key, e)
		})
	}, nil
}

func (l *LocalLocker) unref(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
