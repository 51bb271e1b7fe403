// Package queue implements the per-guild queue subsystem (C4): a
// bounded in-memory window with overflow to persistent storage and
// content-based deduplication. Staging of raw intents that arrive
// mid-resolution is the session engine's job, not the queue's — see
// Engine.pendingRaw.
package queue

import (
	"context"
	"math/rand"
	"sync"

	"github.com/nyxbot/voiceengine/internal/domain"
)

// OverflowStore persists the continuation of a guild's queue beyond
// the in-memory cap. Implementations are transactional (internal/database).
type OverflowStore interface {
	Push(ctx context.Context, guildID string, records []*domain.SongRecord) error
	PopBatch(ctx context.Context, guildID string, n int) ([]*domain.SongRecord, error)
	Count(ctx context.Context, guildID string) (int, error)
	Clear(ctx context.Context, guildID string) error
}

// OverflowInfo is the overflow cursor: the in-memory count and the total
// count (memory plus store). No last-updated time is kept.
type OverflowInfo struct {
	InMemoryCount int
	TotalCount    int
}

// Queue is the bounded deque for one guild. Cap defaults to 3.
type Queue struct {
	guildID string
	store   OverflowStore
	cap     int
	batch   int

	mu    sync.RWMutex
	items []*domain.SongRecord
	seen  map[string]bool // dedupKey of every record currently in memory or overflow
}

// New creates a queue for guildID with the given in-memory cap and
// overflow refill batch size.
func New(guildID string, store OverflowStore, cap, batchSize int) *Queue {
	if cap <= 0 {
		cap = 3
	}
	if batchSize <= 0 {
		batchSize = 3
	}
	return &Queue{
		guildID: guildID,
		store:   store,
		cap:     cap,
		batch:   batchSize,
		items:   make([]*domain.SongRecord, 0, cap),
		seen:    make(map[string]bool),
	}
}

func dedupKey(r *domain.SongRecord) string {
	if r.StreamKey != "" {
		return "k:" + r.StreamKey
	}
	return "t:" + r.Title
}

// Enqueue appends records, spilling the overflow beyond cap into the
// overflow store; without a store, records beyond cap are discarded.
// A record is silently skipped when its dedup key is already present:
// its streamKey, or its title when it has no streamKey. Records with
// different streamKeys are both kept even when their titles match, and
// source URLs are not compared.
func (q *Queue) Enqueue(ctx context.Context, records []*domain.SongRecord) error {
	q.mu.Lock()

	fresh := make([]*domain.SongRecord, 0, len(records))
	for _, r := range records {
		key := dedupKey(r)
		if q.seen[key] {
			continue
		}
		q.seen[key] = true
		fresh = append(fresh, r)
	}

	var overflow []*domain.SongRecord
	room := q.cap - len(q.items)
	if room < 0 {
		room = 0
	}
	if room >= len(fresh) {
		q.items = append(q.items, fresh...)
	} else {
		q.items = append(q.items, fresh[:room]...)
		overflow = fresh[room:]
	}
	if q.store == nil {
		for _, r := range overflow {
			delete(q.seen, dedupKey(r))
		}
		overflow = nil
	}
	q.mu.Unlock()

	if len(overflow) > 0 {
		return q.store.Push(ctx, q.guildID, overflow)
	}
	return nil
}

// Dequeue pops the head record, refilling from overflow when the
// in-memory window drops to half capacity or below.
func (q *Queue) Dequeue(ctx context.Context) (*domain.SongRecord, error) {
	q.mu.Lock()
	var head *domain.SongRecord
	if len(q.items) > 0 {
		head = q.items[0]
		q.items = q.items[1:]
		delete(q.seen, dedupKey(head))
	}
	needsRefill := q.store != nil && len(q.items) <= q.cap/2
	q.mu.Unlock()

	if needsRefill {
		batch, err := q.store.PopBatch(ctx, q.guildID, q.batch)
		if err != nil {
			return head, err
		}
		if len(batch) > 0 {
			q.mu.Lock()
			for _, r := range batch {
				q.seen[dedupKey(r)] = true
				q.items = append(q.items, r)
			}
			q.mu.Unlock()
		}
	}

	return head, nil
}

// Peek returns the head record without removing it.
func (q *Queue) Peek() *domain.SongRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Snapshot returns a copy of the in-memory window for rendering.
func (q *Queue) Snapshot() []*domain.SongRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*domain.SongRecord, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the in-memory count.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Info returns the overflow cursor, consulting the store for the
// total count.
func (q *Queue) Info(ctx context.Context) (OverflowInfo, error) {
	q.mu.RLock()
	inMem := len(q.items)
	q.mu.RUnlock()

	total := inMem
	if q.store != nil {
		overflowCount, err := q.store.Count(ctx, q.guildID)
		if err != nil {
			return OverflowInfo{InMemoryCount: inMem, TotalCount: total}, err
		}
		total += overflowCount
	}
	return OverflowInfo{InMemoryCount: inMem, TotalCount: total}, nil
}

// Shuffle performs a Fisher-Yates permutation of the in-memory window
// only (overflow is untouched) and reports whether the head changed,
// so the caller (session engine) can invalidate the stale preload.
// No-op when fewer than two items are in memory, per law L1.
func (q *Queue) Shuffle() (headChanged bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) < 2 {
		return false
	}
	oldHead := q.items[0]

	for i := len(q.items) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		q.items[i], q.items[j] = q.items[j], q.items[i]
	}

	return q.items[0] != oldHead
}

// Clear empties the in-memory window and dedup set, and clears the
// overflow store.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	q.items = q.items[:0]
	q.seen = make(map[string]bool)
	q.mu.Unlock()

	if q.store != nil {
		return q.store.Clear(ctx, q.guildID)
	}
	return nil
}
