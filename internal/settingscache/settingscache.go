// Package settingscache implements C11: a bounded, TTL-backed cache in
// front of the guild-settings store. A miss loads the row from the
// store, creating and persisting a default row if none exists yet; an
// update writes through to the store before invalidating the cached
// entry, so the next read always reflects what was just written.
package settingscache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/nyxbot/voiceengine/internal/domain"
)

const (
	defaultTTL      = 5 * time.Minute
	defaultCapacity = 50
)

// Store persists GuildSettings rows. internal/database implements this
// against the guild_settings table.
type Store interface {
	Get(ctx context.Context, guildID string) (*domain.GuildSettings, error)
	Upsert(ctx context.Context, settings *domain.GuildSettings) error
}

type entry struct {
	guildID   string
	settings  *domain.GuildSettings
	expiresAt time.Time
}

// Cache is a FIFO-eviction cache over a settings Store. Unlike an LRU
// cache it does not reorder entries on read: a hot guild's row is no
// more likely to be evicted than a cold one, since a guild that goes
// quiet for a few minutes still deserves its TTL to simply expire
// rather than being pushed out early by busier guilds.
type Cache struct {
	store    Store
	ttl      time.Duration
	capacity int

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = oldest insertion
}

// New creates a settings cache. ttl <= 0 defaults to 5 minutes, cap <=
// 0 defaults to 50 entries.
func New(store Store, ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Cache{
		store:    store,
		ttl:      ttl,
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns guildID's settings, loading (and, if absent, creating)
// the row from the store on a cache miss or expiry.
func (c *Cache) Get(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	if settings, ok := c.lookup(guildID); ok {
		return settings, nil
	}

	settings, err := c.store.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = domain.DefaultSettings(guildID)
		if err := c.store.Upsert(ctx, settings); err != nil {
			return nil, err
		}
	}

	c.insert(guildID, settings)
	return settings, nil
}

// Update applies mutate to the guild's current settings, persists the
// result, and replaces the cache entry with the written value, so the
// next Get returns it without reading the store.
func (c *Cache) Update(ctx context.Context, guildID string, mutate func(*domain.GuildSettings)) (*domain.GuildSettings, error) {
	current, err := c.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}

	updated := *current
	mutate(&updated)

	if err := c.store.Upsert(ctx, &updated); err != nil {
		return nil, err
	}

	c.invalidate(guildID)
	c.insert(guildID, &updated)
	return &updated, nil
}

// Invalidate drops guildID's cached entry, if any, without touching
// the store.
func (c *Cache) Invalidate(guildID string) {
	c.invalidate(guildID)
}

func (c *Cache) lookup(guildID string) (*domain.GuildSettings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[guildID]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, guildID)
		return nil, false
	}
	return e.settings, true
}

func (c *Cache) insert(guildID string, settings *domain.GuildSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[guildID]; ok {
		c.order.Remove(elem)
		delete(c.items, guildID)
	}

	e := &entry{guildID: guildID, settings: settings, expiresAt: time.Now().Add(c.ttl)}
	elem := c.order.PushBack(e)
	c.items[guildID] = elem

	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).guildID)
	}
}

func (c *Cache) invalidate(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[guildID]; ok {
		c.order.Remove(elem)
		delete(c.items, guildID)
	}
}
