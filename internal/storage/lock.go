package storage

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedLock hands out one exclusive slot per user id. Entries are reference
// counted and dropped when nobody holds or waits for them.
type keyedLock struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: make(map[int64]*slot)}
}

// Lock blocks until the slot for id is free or ctx is done.
func (k *keyedLock) Lock(ctx context.Context, id int64) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[id]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		k.slots[id] = s
	}
	s.refs++
	k.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		k.release(id, s)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.sem.Release(1)
			k.release(id, s)
		})
	}, nil
}

func (k *keyedLock) release(id int64, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, id)
	}
}

func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
