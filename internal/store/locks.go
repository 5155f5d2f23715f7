package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/efreitasn/minibroker/internal/domain"
)

const numLockShards = 64

// rowLock is a one-slot semaphore. Holding the slot means holding the row.
type rowLock struct {
	ch   chan struct{}
	refs int
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*rowLock
}

// lockTable hands out exclusive row locks keyed by string. Entries exist
// only while someone holds or waits on them.
type lockTable struct {
	shards [numLockShards]lockShard
}

func newLockTable() *lockTable {
	t := &lockTable{}
	for i := range t.shards {
		t.shards[i].locks = make(map[string]*rowLock)
	}
	return t
}

func (t *lockTable) shard(key string) *lockShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.shards[h.Sum32()%numLockShards]
}

func (t *lockTable) ref(key string) *rowLock {
	sh := t.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	l, ok := sh.locks[key]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		sh.locks[key] = l
	}
	l.refs++
	return l
}

func (t *lockTable) unref(key string, l *rowLock) {
	sh := t.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(sh.locks, key)
	}
}

// acquire blocks until key is held, wait elapses, or ctx is done. A
// timeout yields *domain.ContentionError.
func (t *lockTable) acquire(ctx context.Context, key string, wait time.Duration) error {
	l := t.ref(key)

	select {
	case l.ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-timer.C:
		t.unref(key, l)
		return &domain.ContentionError{Resource: key, Wait: wait}
	case <-ctx.Done():
		t.unref(key, l)
		return fmt.Errorf("waiting for lock on %s: %w", key, ctx.Err())
	}
}

// release frees a key previously returned by acquire.
func (t *lockTable) release(key string) {
	sh := t.shard(key)
	sh.mu.Lock()
	l, ok := sh.locks[key]
	sh.mu.Unlock()
	if !ok {
		return
	}
	<-l.ch
	t.unref(key, l)
}

// size returns the number of live entries. Used by tests.
func (t *lockTable) size() int {
	n := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		n += len(sh.locks)
		sh.mu.Unlock()
	}
	return n
}
