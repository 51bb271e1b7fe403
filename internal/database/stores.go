package database

// Adapters binding the hand-written Queries layer to the core's
// injected Store interfaces (settingscache.Store, messageref.Store,
// queue.OverflowStore), so those packages depend only on their own
// narrow interfaces rather than on this package directly.

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/domain/valueobjects"
)

func sourceFromString(s string) valueobjects.RecordSource {
	return valueobjects.RecordSource(s)
}

// SettingsStore adapts *DB to settingscache.Store.
type SettingsStore struct {
	db *DB
}

func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	row, err := s.db.Queries.GetGuildSettings(ctx, guildID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	voiceChannelID := ""
	if row.VoiceChannelID != nil {
		voiceChannelID = *row.VoiceChannelID
	}
	return &domain.GuildSettings{
		GuildID:          row.GuildID,
		VoiceChannelID:   voiceChannelID,
		VoiceTimeoutMin:  row.VoiceTimeoutMinutes,
		QueueDisplayMode: row.QueueDisplayMode,
		MaxDurationSec:   row.MaxDurationSeconds,
		SlashCommands:    domain.SurfaceAccess{Level: domain.AccessLevel(row.SlashCommandsAccess), RoleIDs: row.SlashCommandsRoles},
		Components:       domain.SurfaceAccess{Level: domain.AccessLevel(row.ComponentsAccess), RoleIDs: row.ComponentsRoles},
		BotControls:      domain.SurfaceAccess{Level: domain.AccessLevel(row.BotControlsAccess), RoleIDs: row.BotControlsRoles},
	}, nil
}

func (s *SettingsStore) Upsert(ctx context.Context, settings *domain.GuildSettings) error {
	if _, err := s.db.Queries.UpsertGuild(ctx, UpsertGuildParams{ID: settings.GuildID}); err != nil {
		return err
	}

	var voiceChannelID *string
	if settings.VoiceChannelID != "" {
		voiceChannelID = &settings.VoiceChannelID
	}
	return s.db.Queries.UpsertGuildSettings(ctx, UpsertGuildSettingsParams{
		GuildID:             settings.GuildID,
		VoiceChannelID:      voiceChannelID,
		VoiceTimeoutMinutes: settings.VoiceTimeoutMin,
		QueueDisplayMode:    settings.QueueDisplayMode,
		SlashCommandsAccess: string(settings.SlashCommands.Level),
		ComponentsAccess:    string(settings.Components.Level),
		BotControlsAccess:   string(settings.BotControls.Level),
		SlashCommandsRoles:  settings.SlashCommands.RoleIDs,
		ComponentsRoles:     settings.Components.RoleIDs,
		BotControlsRoles:    settings.BotControls.RoleIDs,
		MaxDurationSeconds:  settings.MaxDurationSec,
	})
}

// MessageRefStore adapts *DB to messageref.Store.
type MessageRefStore struct {
	db *DB
}

func NewMessageRefStore(db *DB) *MessageRefStore {
	return &MessageRefStore{db: db}
}

func (s *MessageRefStore) Upsert(ctx context.Context, ref domain.MessageRef) error {
	if _, err := s.db.Queries.UpsertGuild(ctx, UpsertGuildParams{ID: ref.GuildID}); err != nil {
		return err
	}
	return s.db.Queries.UpsertMessageRef(ctx, UpsertMessageRefParams{
		GuildID:   ref.GuildID,
		Type:      string(ref.Role),
		ChannelID: ref.ChannelID,
		MessageID: ref.MessageID,
	})
}

func (s *MessageRefStore) Get(ctx context.Context, guildID string, role domain.MessageRole) (*domain.MessageRef, error) {
	row, err := s.db.Queries.GetMessageRef(ctx, guildID, string(role))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.MessageRef{
		GuildID:   row.GuildID,
		Role:      domain.MessageRole(row.Type),
		ChannelID: row.ChannelID,
		MessageID: row.MessageID,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *MessageRefStore) Delete(ctx context.Context, guildID string, role domain.MessageRole) error {
	return s.db.Queries.DeleteMessageRef(ctx, guildID, string(role))
}

// overflowRecordDTO is the JSON shape persisted for a queue entry once
// it spills past the in-memory cap. Only the immutable fields travel;
// Preload is reconstructed fresh (PreloadNotStarted) when a record is
// popped back into memory, since a preload artifact from a prior
// process lifetime is never still valid.
type overflowRecordDTO struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	DurationMs   int64  `json:"durationMs"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Source       string `json:"source"`
	StreamKey    string `json:"streamKey"`
	RequesterID  string `json:"requesterId"`
	RequesterTag string `json:"requesterTag"`
	AvatarRef    string `json:"avatarRef"`
}

func toOverflowDTO(r *domain.SongRecord) overflowRecordDTO {
	return overflowRecordDTO{
		ID:           r.ID,
		Title:        r.Title,
		Artist:       r.Artist,
		DurationMs:   r.DurationMs,
		ThumbnailURL: r.ThumbnailURL,
		Source:       string(r.Source),
		StreamKey:    r.StreamKey,
		RequesterID:  r.RequestedBy.UserID,
		RequesterTag: r.RequestedBy.DisplayName,
		AvatarRef:    r.RequestedBy.AvatarRef,
	}
}

func (dto overflowRecordDTO) toRecord() *domain.SongRecord {
	return domain.NewSongRecord(
		dto.ID, dto.Title, dto.Artist, dto.DurationMs, dto.ThumbnailURL,
		sourceFromString(dto.Source), dto.StreamKey,
		domain.Requester{UserID: dto.RequesterID, DisplayName: dto.RequesterTag, AvatarRef: dto.AvatarRef},
	)
}

// OverflowStore adapts *DB to queue.OverflowStore, keeping the
// guild's overflow tail as a JSON array in guild_queues.lazy_load_queue.
// Each call reads, modifies and writes inside one transaction. The
// read takes no row lock, so two concurrent calls for the same guild
// can still overwrite each other; that is avoided in practice because
// the session engine's single inbox goroutine is the only caller per
// guild.
type OverflowStore struct {
	db *DB
}

func NewOverflowStore(db *DB) *OverflowStore {
	return &OverflowStore{db: db}
}

func (s *OverflowStore) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(s.db.Queries.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *OverflowStore) Push(ctx context.Context, guildID string, records []*domain.SongRecord) error {
	return s.withTx(ctx, func(q *Queries) error {
		raw, err := q.GetLazyLoadQueue(ctx, guildID)
		if err != nil {
			return err
		}
		var existing []overflowRecordDTO
		if err := json.Unmarshal(raw, &existing); err != nil {
			return err
		}
		for _, r := range records {
			existing = append(existing, toOverflowDTO(r))
		}
		encoded, err := json.Marshal(existing)
		if err != nil {
			return err
		}
		return q.SetLazyLoadQueue(ctx, guildID, encoded)
	})
}

func (s *OverflowStore) PopBatch(ctx context.Context, guildID string, n int) ([]*domain.SongRecord, error) {
	var popped []*domain.SongRecord
	err := s.withTx(ctx, func(q *Queries) error {
		raw, err := q.GetLazyLoadQueue(ctx, guildID)
		if err != nil {
			return err
		}
		var existing []overflowRecordDTO
		if err := json.Unmarshal(raw, &existing); err != nil {
			return err
		}
		if n > len(existing) {
			n = len(existing)
		}
		for _, dto := range existing[:n] {
			popped = append(popped, dto.toRecord())
		}
		remaining := existing[n:]
		encoded, err := json.Marshal(remaining)
		if err != nil {
			return err
		}
		return q.SetLazyLoadQueue(ctx, guildID, encoded)
	})
	if err != nil {
		return nil, err
	}
	return popped, nil
}

func (s *OverflowStore) Count(ctx context.Context, guildID string) (int, error) {
	raw, err := s.db.Queries.GetLazyLoadQueue(ctx, guildID)
	if err != nil {
		return 0, err
	}
	var existing []overflowRecordDTO
	if err := json.Unmarshal(raw, &existing); err != nil {
		return 0, err
	}
	return len(existing), nil
}

func (s *OverflowStore) Clear(ctx context.Context, guildID string) error {
	return s.db.Queries.SetLazyLoadQueue(ctx, guildID, []byte("[]"))
}

// MetadataCache adapts *DB to resolver.MetadataCache: a fire-and-forget
// write of play stats into audio_metadata after a successful resolve.
type MetadataCache struct {
	db *DB
}

func NewMetadataCache(db *DB) *MetadataCache {
	return &MetadataCache{db: db}
}

func (m *MetadataCache) RecordPlay(ctx context.Context, entry domain.AudioMetadataEntry) error {
	var thumb, uploader, source *string
	if entry.ThumbnailURL != "" {
		thumb = &entry.ThumbnailURL
	}
	if entry.Uploader != "" {
		uploader = &entry.Uploader
	}
	if entry.SourceURL != "" {
		source = &entry.SourceURL
	}
	return m.db.Queries.RecordAudioPlay(ctx, RecordAudioPlayParams{
		QueryHash:       entry.QueryHash,
		Title:           entry.Title,
		DurationSeconds: entry.DurationSec,
		ThumbnailURL:    thumb,
		Uploader:        uploader,
		SourceURL:       source,
	})
}
