package bot

import (
	"context"
	"sync"

	"github.com/nyxbot/voiceengine/internal/domain"
)

// memorySettingsStore is the settingscache.Store used when no
// DATABASE_URL is configured: settings live only for the process
// lifetime, same tradeoff the teacher's file-based playlist fallback
// makes for playlists when no database is available.
type memorySettingsStore struct {
	mu   sync.Mutex
	rows map[string]*domain.GuildSettings
}

func newMemorySettingsStore() *memorySettingsStore {
	return &memorySettingsStore{rows: make(map[string]*domain.GuildSettings)}
}

func (s *memorySettingsStore) Get(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[guildID]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (s *memorySettingsStore) Upsert(ctx context.Context, settings *domain.GuildSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *settings
	s.rows[settings.GuildID] = &copied
	return nil
}
