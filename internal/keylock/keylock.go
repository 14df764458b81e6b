// Package keylock serialises work per access key so that a quota check and
// the increment that follows it cannot interleave with another request for
// the same key.
package keylock

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout is returned when the lock could not be acquired before the
// context ended.
var ErrLockTimeout = errors.New("keylock: timed out waiting for lock")

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

// Locker acquires exclusive per-key locks.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Memory is an in-process Locker for single-instance deployments.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*memoryLock
}

type memoryLock struct {
	ch   chan struct{}
	refs int
}

// NewMemory creates an in-process Locker.
func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*memoryLock)}
}

// Lock blocks until the key is free or ctx is done.
func (m *Memory) Lock(ctx context.Context, key string) (Unlock, error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &memoryLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, l)
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.release(key, l)
		})
	}, nil
}

func (m *Memory) release(key string, l *memoryLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// held returns the number of keys with waiters or holders.
func (m *Memory) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
