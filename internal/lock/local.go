package lock

import (
	"context"
	"sync"
)

// LocalLocker is an in-process Locker for single-instance deployments and tests.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(m.Unlock) }, true, nil
}

var _ Locker = (*LocalLocker)(nil)
