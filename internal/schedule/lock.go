package schedule

import (
	"context"
	"fmt"
	"sync"
)

// Locker guards the check-then-append critical section of a commit.
// The section is keyed by (doctor, date): commits against different
// schedule days never contend.
type Locker interface {
	WithScheduleLock(ctx context.Context, doctorID int64, date string, fn func(ctx context.Context) error) error
}

// MutexLocker serializes commits per (doctor, date) inside a single
// process. It is the default when no Redis is configured.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MutexLocker) WithScheduleLock(ctx context.Context, doctorID int64, date string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("%d|%s", doctorID, date)

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	return fn(ctx)
}
