package settingscache

import (
	"context"
	"testing"
	"time"

	"github.com/nyxbot/voiceengine/internal/domain"
)

type fakeStore struct {
	rows map[string]*domain.GuildSettings
	gets int
	ups  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*domain.GuildSettings)}
}

func (f *fakeStore) Get(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	f.gets++
	return f.rows[guildID], nil
}

func (f *fakeStore) Upsert(ctx context.Context, settings *domain.GuildSettings) error {
	f.ups++
	cp := *settings
	f.rows[settings.GuildID] = &cp
	return nil
}

func TestGetCreatesDefaultRowOnMiss(t *testing.T) {
	store := newFakeStore()
	c := New(store, time.Minute, 10)

	settings, err := c.Get(context.Background(), "g1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.MaxDurationSec != 900 {
		t.Fatalf("expected default settings to be created and returned, got %+v", settings)
	}
	if store.ups != 1 {
		t.Fatalf("expected the default row to be persisted once, got %d upserts", store.ups)
	}
}

func TestGetIsCachedBetweenCalls(t *testing.T) {
	store := newFakeStore()
	store.rows["g1"] = domain.DefaultSettings("g1")
	c := New(store, time.Minute, 10)

	if _, err := c.Get(context.Background(), "g1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), "g1"); err != nil {
		t.Fatal(err)
	}
	if store.gets != 1 {
		t.Fatalf("expected the second Get to be served from cache, got %d store reads", store.gets)
	}
}

func TestUpdateWritesThroughAndInvalidates(t *testing.T) {
	store := newFakeStore()
	store.rows["g1"] = domain.DefaultSettings("g1")
	c := New(store, time.Minute, 10)

	updated, err := c.Update(context.Background(), "g1", func(s *domain.GuildSettings) {
		s.MaxDurationSec = 120
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.MaxDurationSec != 120 {
		t.Fatalf("expected mutated value to be returned, got %d", updated.MaxDurationSec)
	}
	if store.rows["g1"].MaxDurationSec != 120 {
		t.Fatal("expected Update to write through to the store")
	}

	again, err := c.Get(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	if again.MaxDurationSec != 120 {
		t.Fatal("expected the cache to reflect the written-through value")
	}
}

func TestExpiredEntryIsReloaded(t *testing.T) {
	store := newFakeStore()
	store.rows["g1"] = domain.DefaultSettings("g1")
	c := New(store, time.Millisecond, 10)

	if _, err := c.Get(context.Background(), "g1"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := c.Get(context.Background(), "g1"); err != nil {
		t.Fatal(err)
	}
	if store.gets != 2 {
		t.Fatalf("expected expiry to force a reload, got %d store reads", store.gets)
	}
}

func TestFIFOEvictionDropsOldestRegardlessOfReads(t *testing.T) {
	store := newFakeStore()
	for _, g := range []string{"g1", "g2", "g3"} {
		store.rows[g] = domain.DefaultSettings(g)
	}
	c := New(store, time.Minute, 2)

	ctx := context.Background()
	if _, err := c.Get(ctx, "g1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "g2"); err != nil {
		t.Fatal(err)
	}
	// Re-reading g1 must NOT protect it from eviction under FIFO.
	if _, err := c.Get(ctx, "g1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "g3"); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.lookup("g1"); ok {
		t.Fatal("expected g1 to have been evicted as the oldest insertion despite being re-read")
	}
	if _, ok := c.lookup("g2"); !ok {
		t.Fatal("expected g2 to still be cached")
	}
}
