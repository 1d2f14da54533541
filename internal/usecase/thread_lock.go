package usecase

import (
	"context"
	"fmt"
	"sync"
)

// ThreadLocker serializes turns per thread. Without it, two concurrent
// posts to the same thread would both seed from the same stored history
// and append conflicting message batches.
type ThreadLocker struct {
	mu    sync.Mutex
	locks map[string]*threadMutex
}

type threadMutex struct {
	mu       sync.Mutex
	refCount int
}

// NewThreadLocker creates an empty locker.
func NewThreadLocker() *ThreadLocker {
	return &ThreadLocker{locks: make(map[string]*threadMutex)}
}

// Lock acquires the lock for the given thread ID, blocking until it is
// free or the context ends. The returned unlock function must be called
// exactly once when the turn is done.
func (tl *ThreadLocker) Lock(ctx context.Context, threadID string) (unlock func(), err error) {
	tl.mu.Lock()
	tm, ok := tl.locks[threadID]
	if !ok {
		tm = &threadMutex{}
		tl.locks[threadID] = tm
	}
	tm.refCount++
	tl.mu.Unlock()

	release := func() {
		tm.mu.Unlock()
		tl.mu.Lock()
		tm.refCount--
		if tm.refCount == 0 {
			delete(tl.locks, threadID)
		}
		tl.mu.Unlock()
	}

	acquired := make(chan struct{})
	go func() {
		tm.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return release, nil
	case <-ctx.Done():
		// The goroutine above may still grab the mutex after we give up;
		// hand it straight back so the thread is not locked forever.
		go func() {
			<-acquired
			release()
		}()
		return nil, fmt.Errorf("thread lock: %w", ctx.Err())
	}
}

// ActiveCount reports how many threads currently hold or wait on a lock.
func (tl *ThreadLocker) ActiveCount() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return len(tl.locks)
}
