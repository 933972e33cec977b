package repository

import (
	"context"
	"sync"
)

// LocalCategoryLocker serializes mutations within one process using a
// channel-based mutex per category so waiters can give up on ctx
type LocalCategoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalCategoryLocker() *LocalCategoryLocker {
	return &LocalCategoryLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalCategoryLocker) Lock(ctx context.Context, category string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[category]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[category] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
