package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so Queries can
// run against a bare pool or inside a transaction via WithTx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX with the hand-written query methods the core's
// Store interfaces (settingscache.Store, messageref.Store,
// queue.OverflowStore, the playlist repository) are adapted against.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to pool (or, via WithTx, a transaction).
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to tx instead of the original pool.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// --- guilds -----------------------------------------------------------

type Guild struct {
	ID        string
	Name      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UpsertGuildParams struct {
	ID   string
	Name *string
}

func (q *Queries) UpsertGuild(ctx context.Context, arg UpsertGuildParams) (*Guild, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO guilds (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = COALESCE(EXCLUDED.name, guilds.name), updated_at = now()
		RETURNING id, name, created_at, updated_at`, arg.ID, arg.Name)
	var g Guild
	if err := row.Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// --- guild_settings -----------------------------------------------------

type GuildSettingsRow struct {
	GuildID             string
	VoiceChannelID      *string
	VoiceTimeoutMinutes int
	QueueDisplayMode    string
	SlashCommandsAccess string
	ComponentsAccess    string
	BotControlsAccess   string
	SlashCommandsRoles  []string
	ComponentsRoles     []string
	BotControlsRoles    []string
	MaxDurationSeconds  int
}

func (q *Queries) GetGuildSettings(ctx context.Context, guildID string) (*GuildSettingsRow, error) {
	row := q.db.QueryRow(ctx, `
		SELECT guild_id, voice_channel_id, voice_timeout_minutes, queue_display_mode,
		       slash_commands_access, components_access, bot_controls_access,
		       slash_commands_roles, components_roles, bot_controls_roles, max_duration_seconds
		FROM guild_settings WHERE guild_id = $1`, guildID)
	var r GuildSettingsRow
	if err := row.Scan(&r.GuildID, &r.VoiceChannelID, &r.VoiceTimeoutMinutes, &r.QueueDisplayMode,
		&r.SlashCommandsAccess, &r.ComponentsAccess, &r.BotControlsAccess,
		&r.SlashCommandsRoles, &r.ComponentsRoles, &r.BotControlsRoles, &r.MaxDurationSeconds); err != nil {
		return nil, err
	}
	return &r, nil
}

type UpsertGuildSettingsParams GuildSettingsRow

func (q *Queries) UpsertGuildSettings(ctx context.Context, arg UpsertGuildSettingsParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO guild_settings (guild_id, voice_channel_id, voice_timeout_minutes, queue_display_mode,
		       slash_commands_access, components_access, bot_controls_access,
		       slash_commands_roles, components_roles, bot_controls_roles, max_duration_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (guild_id) DO UPDATE SET
		       voice_channel_id = EXCLUDED.voice_channel_id,
		       voice_timeout_minutes = EXCLUDED.voice_timeout_minutes,
		       queue_display_mode = EXCLUDED.queue_display_mode,
		       slash_commands_access = EXCLUDED.slash_commands_access,
		       components_access = EXCLUDED.components_access,
		       bot_controls_access = EXCLUDED.bot_controls_access,
		       slash_commands_roles = EXCLUDED.slash_commands_roles,
		       components_roles = EXCLUDED.components_roles,
		       bot_controls_roles = EXCLUDED.bot_controls_roles,
		       max_duration_seconds = EXCLUDED.max_duration_seconds,
		       updated_at = now()`,
		arg.GuildID, arg.VoiceChannelID, arg.VoiceTimeoutMinutes, arg.QueueDisplayMode,
		arg.SlashCommandsAccess, arg.ComponentsAccess, arg.BotControlsAccess,
		arg.SlashCommandsRoles, arg.ComponentsRoles, arg.BotControlsRoles, arg.MaxDurationSeconds)
	return err
}

// --- message_refs -------------------------------------------------------

type MessageRefRow struct {
	GuildID   string
	Type      string
	ChannelID string
	MessageID string
	UpdatedAt time.Time
}

func (q *Queries) GetMessageRef(ctx context.Context, guildID, refType string) (*MessageRefRow, error) {
	row := q.db.QueryRow(ctx, `
		SELECT guild_id, type, channel_id, message_id, updated_at
		FROM message_refs WHERE guild_id = $1 AND type = $2`, guildID, refType)
	var r MessageRefRow
	if err := row.Scan(&r.GuildID, &r.Type, &r.ChannelID, &r.MessageID, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

type UpsertMessageRefParams struct {
	GuildID   string
	Type      string
	ChannelID string
	MessageID string
}

func (q *Queries) UpsertMessageRef(ctx context.Context, arg UpsertMessageRefParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO message_refs (guild_id, type, channel_id, message_id)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (guild_id, type) DO UPDATE SET
		       channel_id = EXCLUDED.channel_id, message_id = EXCLUDED.message_id, updated_at = now()`,
		arg.GuildID, arg.Type, arg.ChannelID, arg.MessageID)
	return err
}

func (q *Queries) DeleteMessageRef(ctx context.Context, guildID, refType string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM message_refs WHERE guild_id = $1 AND type = $2`, guildID, refType)
	return err
}

// --- guild_queues (overflow) --------------------------------------------

func (q *Queries) GetLazyLoadQueue(ctx context.Context, guildID string) ([]byte, error) {
	row := q.db.QueryRow(ctx, `SELECT lazy_load_queue FROM guild_queues WHERE guild_id = $1`, guildID)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == pgx.ErrNoRows {
			return []byte("[]"), nil
		}
		return nil, err
	}
	return raw, nil
}

func (q *Queries) SetLazyLoadQueue(ctx context.Context, guildID string, raw []byte) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO guild_queues (guild_id, lazy_load_queue) VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET lazy_load_queue = EXCLUDED.lazy_load_queue, last_updated = now()`,
		guildID, raw)
	return err
}

// --- audio_metadata ------------------------------------------------------

type AudioMetadataRow struct {
	QueryHash          string
	Title              string
	DurationSeconds    int
	ThumbnailURL       *string
	Uploader           *string
	SourceURL          *string
	StreamURL          *string
	StreamURLExpiresAt *time.Time
	PlayCount          int
	LastPlayedAt       *time.Time
}

func (q *Queries) GetAudioMetadata(ctx context.Context, queryHash string) (*AudioMetadataRow, error) {
	row := q.db.QueryRow(ctx, `
		SELECT query_hash, title, duration_seconds, thumbnail_url, uploader, source_url,
		       stream_url, stream_url_expires_at, play_count, last_played_at
		FROM audio_metadata WHERE query_hash = $1`, queryHash)
	var r AudioMetadataRow
	if err := row.Scan(&r.QueryHash, &r.Title, &r.DurationSeconds, &r.ThumbnailURL, &r.Uploader,
		&r.SourceURL, &r.StreamURL, &r.StreamURLExpiresAt, &r.PlayCount, &r.LastPlayedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

type RecordAudioPlayParams struct {
	QueryHash       string
	Title           string
	DurationSeconds int
	ThumbnailURL    *string
	Uploader        *string
	SourceURL       *string
}

// RecordAudioPlay upserts the metadata row and bumps play_count/last_played_at,
// used as a fire-and-forget write after a successful resolve.
func (q *Queries) RecordAudioPlay(ctx context.Context, arg RecordAudioPlayParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO audio_metadata (query_hash, title, duration_seconds, thumbnail_url, uploader, source_url, play_count, last_played_at)
		VALUES ($1,$2,$3,$4,$5,$6,1,now())
		ON CONFLICT (query_hash) DO UPDATE SET
		       play_count = audio_metadata.play_count + 1,
		       last_played_at = now(),
		       title = EXCLUDED.title,
		       duration_seconds = EXCLUDED.duration_seconds`,
		arg.QueryHash, arg.Title, arg.DurationSeconds, arg.ThumbnailURL, arg.Uploader, arg.SourceURL)
	return err
}

// --- saved_playlists / playlist_entries ---------------------------------

type Playlist struct {
	ID        uuid.UUID
	GuildID   *string
	Name      string
	CreatedBy *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PlaylistEntry struct {
	ID            uuid.UUID
	PlaylistID    uuid.UUID
	OriginalInput string
	SourceType    string
	Title         *string
	AddedAt       time.Time
}

func (q *Queries) ListPlaylistsByGuild(ctx context.Context, guildID *string) ([]*Playlist, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, guild_id, name, created_by, created_at, updated_at
		FROM saved_playlists WHERE guild_id IS NOT DISTINCT FROM $1 ORDER BY name`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Playlist
	for rows.Next() {
		var p Playlist
		if err := rows.Scan(&p.ID, &p.GuildID, &p.Name, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

type GetPlaylistByNameAndGuildParams struct {
	Name    string
	GuildID *string
}

func (q *Queries) GetPlaylistByNameAndGuild(ctx context.Context, arg GetPlaylistByNameAndGuildParams) (*Playlist, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, guild_id, name, created_by, created_at, updated_at
		FROM saved_playlists WHERE name = $1 AND guild_id IS NOT DISTINCT FROM $2`, arg.Name, arg.GuildID)
	var p Playlist
	if err := row.Scan(&p.ID, &p.GuildID, &p.Name, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

type CreatePlaylistParams struct {
	Name    string
	GuildID *string
}

func (q *Queries) CreatePlaylist(ctx context.Context, arg CreatePlaylistParams) (*Playlist, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO saved_playlists (name, guild_id) VALUES ($1, $2)
		RETURNING id, guild_id, name, created_by, created_at, updated_at`, arg.Name, arg.GuildID)
	var p Playlist
	if err := row.Scan(&p.ID, &p.GuildID, &p.Name, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

type UpdatePlaylistNameParams struct {
	ID   uuid.UUID
	Name string
}

func (q *Queries) UpdatePlaylistName(ctx context.Context, arg UpdatePlaylistNameParams) error {
	_, err := q.db.Exec(ctx, `UPDATE saved_playlists SET name = $2, updated_at = now() WHERE id = $1`, arg.ID, arg.Name)
	return err
}

type DeletePlaylistByNameParams struct {
	Name    string
	GuildID *string
}

func (q *Queries) DeletePlaylistByName(ctx context.Context, arg DeletePlaylistByNameParams) error {
	_, err := q.db.Exec(ctx, `DELETE FROM saved_playlists WHERE name = $1 AND guild_id IS NOT DISTINCT FROM $2`, arg.Name, arg.GuildID)
	return err
}

type PlaylistExistsParams struct {
	Name    string
	GuildID *string
}

func (q *Queries) PlaylistExists(ctx context.Context, arg PlaylistExistsParams) (bool, error) {
	row := q.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM saved_playlists WHERE name = $1 AND guild_id IS NOT DISTINCT FROM $2)`, arg.Name, arg.GuildID)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (q *Queries) ListPlaylistEntries(ctx context.Context, playlistID uuid.UUID) ([]*PlaylistEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, playlist_id, original_input, source_type, title, added_at
		FROM playlist_entries WHERE playlist_id = $1 ORDER BY added_at`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PlaylistEntry
	for rows.Next() {
		var e PlaylistEntry
		if err := rows.Scan(&e.ID, &e.PlaylistID, &e.OriginalInput, &e.SourceType, &e.Title, &e.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

type AddPlaylistEntryParams struct {
	PlaylistID    uuid.UUID
	OriginalInput string
	SourceType    string
	Title         *string
}

func (q *Queries) AddPlaylistEntry(ctx context.Context, arg AddPlaylistEntryParams) (*PlaylistEntry, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO playlist_entries (playlist_id, original_input, source_type, title)
		VALUES ($1,$2,$3,$4)
		RETURNING id, playlist_id, original_input, source_type, title, added_at`,
		arg.PlaylistID, arg.OriginalInput, arg.SourceType, arg.Title)
	var e PlaylistEntry
	if err := row.Scan(&e.ID, &e.PlaylistID, &e.OriginalInput, &e.SourceType, &e.Title, &e.AddedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (q *Queries) DeletePlaylistEntriesByPlaylistID(ctx context.Context, playlistID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM playlist_entries WHERE playlist_id = $1`, playlistID)
	return err
}

// --- guild_gifs -----------------------------------------------------------

type GuildGifsRow struct {
	GuildID       string
	GifURLs       []string
	UseCustomGifs bool
}

func (q *Queries) GetGuildGifs(ctx context.Context, guildID string) (*GuildGifsRow, error) {
	row := q.db.QueryRow(ctx, `SELECT guild_id, gif_urls, use_custom_gifs FROM guild_gifs WHERE guild_id = $1`, guildID)
	var r GuildGifsRow
	if err := row.Scan(&r.GuildID, &r.GifURLs, &r.UseCustomGifs); err != nil {
		return nil, err
	}
	return &r, nil
}
