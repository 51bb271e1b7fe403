package queue_test

import (
	"context"
	"testing"

	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/domain/valueobjects"
	"github.com/nyxbot/voiceengine/internal/queue"
)

func newRecord(streamKey, title string) *domain.SongRecord {
	return domain.NewSongRecord(domain.ContentHash(streamKey), title, "", 0, "", valueobjects.RecordSourceYouTubeTrack, streamKey, domain.Requester{UserID: "u1"})
}

func TestQueueEnqueueRespectsCap(t *testing.T) {
	q := queue.New("g1", nil, 3, 3)
	ctx := context.Background()

	err := q.Enqueue(ctx, []*domain.SongRecord{
		newRecord("a", "A"), newRecord("b", "B"), newRecord("c", "C"), newRecord("d", "D"),
	})
	if err != nil {
		t.Fatalf("enqueue without store should not error on overflow: %v", err)
	}

	if q.Len() != 3 {
		t.Errorf("expected in-memory len 3, got %d", q.Len())
	}
}

func TestQueueDedup(t *testing.T) {
	q := queue.New("g1", nil, 3, 3)
	ctx := context.Background()

	_ = q.Enqueue(ctx, []*domain.SongRecord{newRecord("a", "A")})
	_ = q.Enqueue(ctx, []*domain.SongRecord{newRecord("a", "A")})

	if q.Len() != 1 {
		t.Errorf("expected dedup to collapse to 1 item, got %d", q.Len())
	}
}

func TestQueueDequeueOrder(t *testing.T) {
	q := queue.New("g1", nil, 3, 3)
	ctx := context.Background()

	_ = q.Enqueue(ctx, []*domain.SongRecord{newRecord("a", "A"), newRecord("b", "B")})

	first, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first == nil || first.Title != "A" {
		t.Errorf("expected A first, got %+v", first)
	}

	second, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second == nil || second.Title != "B" {
		t.Errorf("expected B second, got %+v", second)
	}
}

func TestQueueShuffleNoOpBelowTwo(t *testing.T) {
	q := queue.New("g1", nil, 3, 3)
	ctx := context.Background()
	_ = q.Enqueue(ctx, []*domain.SongRecord{newRecord("a", "A")})

	if changed := q.Shuffle(); changed {
		t.Error("shuffle on a single-item queue must be a no-op")
	}
}

func TestQueueShuffleIsPermutation(t *testing.T) {
	q := queue.New("g1", nil, 5, 3)
	ctx := context.Background()
	before := []*domain.SongRecord{newRecord("a", "A"), newRecord("b", "B"), newRecord("c", "C"), newRecord("d", "D")}
	_ = q.Enqueue(ctx, before)

	q.Shuffle()
	after := q.Snapshot()

	if len(after) != len(before) {
		t.Fatalf("expected same length, got %d vs %d", len(after), len(before))
	}
	beforeSet := make(map[string]bool)
	for _, r := range before {
		beforeSet[r.ID] = true
	}
	for _, r := range after {
		if !beforeSet[r.ID] {
			t.Errorf("shuffle introduced unknown record %s", r.ID)
		}
	}
}

func TestQueueClear(t *testing.T) {
	q := queue.New("g1", nil, 3, 3)
	ctx := context.Background()
	_ = q.Enqueue(ctx, []*domain.SongRecord{newRecord("a", "A")})

	if err := q.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 {
		t.Error("expected empty queue after clear")
	}
}

func TestQueueThreadSafety(t *testing.T) {
	q := queue.New("g1", nil, 3, 3)
	ctx := context.Background()
	_ = q.Enqueue(ctx, []*domain.SongRecord{newRecord("seed", "Seed")})

	done := make(chan bool, 40)
	for i := 0; i < 20; i++ {
		go func(n int) {
			_, _ = q.Dequeue(ctx)
			done <- true
		}(i)
	}
	for i := 0; i < 20; i++ {
		go func() {
			_ = q.Len()
			_ = q.Snapshot()
			done <- true
		}()
	}
	for i := 0; i < 40; i++ {
		<-done
	}
}
