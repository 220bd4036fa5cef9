// Package lock provides key-scoped mutual exclusion used to serialise version
// allocation and submission transitions.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotAcquired is returned when a lock could not be obtained before the context ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Release frees a held lock. It is safe to call more than once.
type Release func()

// Locker hands out exclusive locks per key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
	TryAcquire(ctx context.Context, key string) (Release, bool, error)
}

// SubmissionVersionKey scopes version allocation to a (project, document type) pair.
func SubmissionVersionKey(projectID, documentTypeID uint) string {
	return fmt.Sprintf("submission-version:%d:%d", projectID, documentTypeID)
}

// SubmissionKey scopes transitions of a single submission row.
func SubmissionKey(submissionID uint) string {
	return fmt.Sprintf("submission:%d", submissionID)
}

// FinalResultKey scopes computation and release of a project's final result.
func FinalResultKey(projectID uint) string {
	return fmt.Sprintf("final-result:%d", projectID)
}

// DeadlineSweepKey is the lease held by the replica running the deadline sweep.
const DeadlineSweepKey = "deadline-sweep"

// KeyedMutex is an in-process Locker. Idle keys are dropped from the table.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty in-process lock table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

func (k *KeyedMutex) ref(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *KeyedMutex) unref(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *KeyedMutex) release(key string, s *slot) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.unref(key, s)
		})
	}
}

// Acquire blocks until key is free or ctx is done.
func (k *KeyedMutex) Acquire(ctx context.Context, key string) (Release, error) {
	s := k.ref(key)

	select {
	case s.ch <- struct{}{}:
		return k.release(key, s), nil
	case <-ctx.Done():
		k.unref(key, s)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}
}

// TryAcquire takes key only if it is free right now.
func (k *KeyedMutex) TryAcquire(_ context.Context, key string) (Release, bool, error) {
	s := k.ref(key)

	select {
	case s.ch <- struct{}{}:
		return k.release(key, s), true, nil
	default:
		k.unref(key, s)
		return nil, false, nil
	}
}

// Held reports how many keys currently have holders or waiters.
func (k *KeyedMutex) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
