// Package resolver implements C2: turning a PlayIntent into an
// ordered list of SongRecord, bridging Spotify intents to YouTube
// search queries and enforcing the guild's duration limit.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/domain/valueobjects"
	apperrors "github.com/nyxbot/voiceengine/internal/errors"
	"github.com/nyxbot/voiceengine/internal/process"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

// PlayIntent is what the dispatcher hands the resolver: a parsed
// intent kind plus the raw user input.
type PlayIntent struct {
	Kind      valueobjects.PlayIntentKind
	Raw       string
	Requester domain.Requester
}

// Result is the resolver's output for one intent: the records to
// enqueue plus any non-fatal, user-visible warnings (e.g. "50 skipped").
type Result struct {
	Records  []*domain.SongRecord
	Warnings []string
}

const defaultResolveTimeout = 30 * time.Second

// MetadataCache receives a fire-and-forget notification after a
// successful resolve, for the play-count/last-played bookkeeping backed
// by the audio_metadata table. It is write-only: never consulted to
// gate or short-circuit resolution itself.
type MetadataCache interface {
	RecordPlay(ctx context.Context, entry domain.AudioMetadataEntry) error
}

// Resolver turns play intents into SongRecords.
type Resolver struct {
	runner  *process.Runner
	spotify *spotifyClient
	logger  *logger.Logger
	cache   MetadataCache

	playlistTitleTimeout     time.Duration
	playlistEnumerateTimeout time.Duration
	spotifyTimeout           time.Duration
}

// New creates a resolver. spotifyClientID/Secret may be empty, in
// which case spotify-* intents fail with ErrServiceUnavailable rather
// than being silently treated as YouTube.
func New(runner *process.Runner, spotifyClientID, spotifyClientSecret string, log *logger.Logger, playlistTitleTimeout, playlistEnumerateTimeout, spotifyTimeout time.Duration) *Resolver {
	r := &Resolver{
		runner:                   runner,
		logger:                   log,
		playlistTitleTimeout:     playlistTitleTimeout,
		playlistEnumerateTimeout: playlistEnumerateTimeout,
		spotifyTimeout:           spotifyTimeout,
	}
	if spotifyClientID != "" && spotifyClientSecret != "" {
		r.spotify = newSpotifyClient(spotifyClientID, spotifyClientSecret, log)
	}
	return r
}

// SetMetadataCache wires the optional play-count bookkeeping sink.
// Left nil, resolution proceeds exactly as before.
func (r *Resolver) SetMetadataCache(cache MetadataCache) {
	r.cache = cache
}

// recordPlay fires the metadata cache write in its own goroutine so a
// slow or unavailable store never adds latency to a resolve.
func (r *Resolver) recordPlay(entry domain.AudioMetadataEntry) {
	if r.cache == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.cache.RecordPlay(ctx, entry); err != nil {
			r.logger.WithError(err).WithField("queryHash", entry.QueryHash).Debug("failed to record audio metadata play")
		}
	}()
}

// ClassifyIntent inspects raw user input and decides which of the
// five PlayIntentKind values the dispatcher/engine should resolve it
// as, before a Resolver ever sees it.
func ClassifyIntent(raw string) valueobjects.PlayIntentKind {
	if IsSpotifyURL(raw) {
		if kind, _, err := ParseSpotifyURL(raw); err == nil && kind == "playlist" {
			return valueobjects.IntentSpotifyPlaylist
		}
		return valueobjects.IntentSpotifyTrack
	}
	if IsYouTubeURL(raw) {
		if IsYouTubePlaylistURL(raw) {
			return valueobjects.IntentYouTubePlaylist
		}
		return valueobjects.IntentYouTubeTrack
	}
	return valueobjects.IntentSearch
}

// Resolve dispatches on intent.Kind and applies the guild's duration
// limit to every resulting record before returning.
func (r *Resolver) Resolve(ctx context.Context, guildID string, intent PlayIntent, maxDurationSec int) (*Result, error) {
	switch intent.Kind {
	case valueobjects.IntentSpotifyPlaylist:
		return r.resolveSpotifyPlaylist(ctx, guildID, intent, maxDurationSec)
	case valueobjects.IntentSpotifyTrack:
		return r.resolveSpotifyTrack(ctx, guildID, intent, maxDurationSec)
	case valueobjects.IntentYouTubePlaylist:
		return r.resolveYouTubePlaylist(ctx, guildID, intent, maxDurationSec)
	case valueobjects.IntentYouTubeTrack:
		return r.resolveYouTubeTrack(ctx, guildID, intent, maxDurationSec)
	case valueobjects.IntentSearch:
		return r.resolveSearch(ctx, guildID, intent, maxDurationSec)
	default:
		return nil, apperrors.NewTypedError(apperrors.ErrUnsupportedURL, apperrors.CategoryMedia, "unrecognized play intent", nil)
	}
}

func (r *Resolver) requireSpotify() error {
	if r.spotify == nil {
		return apperrors.NewTypedError(apperrors.ErrServiceUnavailable, apperrors.CategoryNetwork, "Spotify is not configured on this bot", nil)
	}
	return nil
}

func (r *Resolver) resolveSpotifyTrack(ctx context.Context, guildID string, intent PlayIntent, maxDurationSec int) (*Result, error) {
	if err := r.requireSpotify(); err != nil {
		return nil, err
	}
	_, id, err := ParseSpotifyURL(intent.Raw)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, r.spotifyTimeout)
	defer cancel()
	track, err := r.spotify.fetchTrack(cctx, id)
	if err != nil {
		return nil, err
	}

	record := spotifyRecordFromTrack(track, intent.Requester)
	return r.applyDurationLimit([]*domain.SongRecord{record}, nil, maxDurationSec)
}

func (r *Resolver) resolveSpotifyPlaylist(ctx context.Context, guildID string, intent PlayIntent, maxDurationSec int) (*Result, error) {
	if err := r.requireSpotify(); err != nil {
		return nil, err
	}
	_, id, err := ParseSpotifyURL(intent.Raw)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, r.spotifyTimeout)
	defer cancel()
	tracks, dropped, err := r.spotify.fetchPlaylistTracks(cctx, id)
	if err != nil {
		return nil, err
	}

	var warnings []string
	if dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("%d skipped", dropped))
	}

	records := make([]*domain.SongRecord, 0, len(tracks))
	for i := range tracks {
		records = append(records, spotifyRecordFromTrack(&tracks[i], intent.Requester))
	}
	return r.applyDurationLimit(records, warnings, maxDurationSec)
}

// spotifyRecordFromTrack bridges a Spotify track to a YouTube-searchable
// SongRecord. The detailed query (artist, title, album, "official
// audio") narrows the match more reliably than the plain query when
// process.Runner lazily resolves this string as a ytsearch query at
// decode time.
func spotifyRecordFromTrack(t *spotifyTrack, requester domain.Requester) *domain.SongRecord {
	query := t.detailedSearchQuery()
	artist := t.artistName()
	streamKey := "ytsearch1:" + query
	return domain.NewSongRecord(
		domain.ContentHash(query),
		t.Name,
		artist,
		int64(t.DurationMs),
		"",
		valueobjects.RecordSourceSpotifyTrack,
		streamKey,
		requester,
	)
}

func (r *Resolver) resolveYouTubeTrack(ctx context.Context, guildID string, intent PlayIntent, maxDurationSec int) (*Result, error) {
	cctx, cancel := context.WithTimeout(ctx, defaultResolveTimeout)
	defer cancel()

	meta, streamKey, err := r.runner.ResolveInfo(cctx, guildID, intent.Raw, defaultResolveTimeout)
	if err != nil {
		return nil, err
	}

	queryHash := domain.ContentHash(streamKey)
	record := domain.NewSongRecord(
		queryHash,
		meta.Title,
		meta.Uploader,
		int64(meta.Duration*1000),
		meta.Thumbnail,
		valueobjects.RecordSourceYouTubeTrack,
		streamKey,
		intent.Requester,
	)
	r.recordPlay(domain.AudioMetadataEntry{
		QueryHash:    queryHash,
		Title:        meta.Title,
		DurationSec:  int(meta.Duration),
		ThumbnailURL: meta.Thumbnail,
		Uploader:     meta.Uploader,
		SourceURL:    intent.Raw,
	})
	return r.applyDurationLimit([]*domain.SongRecord{record}, nil, maxDurationSec)
}

func (r *Resolver) resolveSearch(ctx context.Context, guildID string, intent PlayIntent, maxDurationSec int) (*Result, error) {
	cctx, cancel := context.WithTimeout(ctx, defaultResolveTimeout)
	defer cancel()

	streamKey := "ytsearch1:" + intent.Raw
	meta, _, err := r.runner.ResolveInfo(cctx, guildID, streamKey, defaultResolveTimeout)
	if err != nil {
		return nil, err
	}

	searchHash := domain.ContentHash(streamKey)
	record := domain.NewSongRecord(
		searchHash,
		meta.Title,
		meta.Uploader,
		int64(meta.Duration*1000),
		meta.Thumbnail,
		valueobjects.RecordSourceSearch,
		streamKey,
		intent.Requester,
	)
	r.recordPlay(domain.AudioMetadataEntry{
		QueryHash:    searchHash,
		Title:        meta.Title,
		DurationSec:  int(meta.Duration),
		ThumbnailURL: meta.Thumbnail,
		Uploader:     meta.Uploader,
		SourceURL:    intent.Raw,
	})
	return r.applyDurationLimit([]*domain.SongRecord{record}, nil, maxDurationSec)
}

func (r *Resolver) resolveYouTubePlaylist(ctx context.Context, guildID string, intent PlayIntent, maxDurationSec int) (*Result, error) {
	title, err := r.runner.ResolvePlaylistTitle(ctx, guildID, intent.Raw, r.playlistTitleTimeout)
	if err != nil {
		return nil, err
	}
	r.logger.WithField("playlist", title).Debug("resolving playlist entries")

	entries, err := r.runner.ResolvePlaylistEntries(ctx, guildID, intent.Raw, r.playlistEnumerateTimeout)
	if err != nil {
		return nil, err
	}

	records := make([]*domain.SongRecord, 0, len(entries))
	for _, e := range entries {
		streamURL := e.URL
		if streamURL == "" && e.ID != "" {
			streamURL = "https://www.youtube.com/watch?v=" + e.ID
		}
		if streamURL == "" {
			continue
		}
		records = append(records, domain.NewSongRecord(
			domain.ContentHash(streamURL),
			e.Title,
			"",
			int64(e.Duration*1000),
			"",
			valueobjects.RecordSourceYouTubeTrack,
			streamURL,
			intent.Requester,
		))
	}
	return r.applyDurationLimit(records, nil, maxDurationSec)
}

// applyDurationLimit drops records whose known duration exceeds the
// guild's limit, surfacing a DurationLimitExceeded-flavored error only
// when a single-track intent (len==1) is entirely rejected; for
// playlists, over-limit tracks are excluded instead, with a summary
// warning appended naming how many were dropped and the limit applied.
func (r *Resolver) applyDurationLimit(records []*domain.SongRecord, warnings []string, maxDurationSec int) (*Result, error) {
	if len(records) == 1 && records[0].ExceedsLimit(maxDurationSec) {
		return nil, apperrors.NewTypedError(apperrors.ErrDurationLimit, apperrors.CategoryMedia, "track exceeds the server's duration limit", map[string]any{
			"durationMs":     records[0].DurationMs,
			"maxDurationSec": maxDurationSec,
		})
	}

	kept := make([]*domain.SongRecord, 0, len(records))
	overLimit := 0
	for _, rec := range records {
		if rec.ExceedsLimit(maxDurationSec) {
			overLimit++
			continue
		}
		kept = append(kept, rec)
	}
	if overLimit > 0 {
		warnings = append(warnings, fmt.Sprintf("%d dropped over the %ds duration limit", overLimit, maxDurationSec))
	}
	return &Result{Records: kept, Warnings: warnings}, nil
}
