// Package domain holds the aggregate types the session engine operates
// on: SongRecord, GuildSettings, MessageRef and AudioMetadataEntry.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/nyxbot/voiceengine/internal/domain/valueobjects"
)

// Requester identifies who queued a SongRecord.
type Requester struct {
	UserID      string
	DisplayName string
	AvatarRef   string
}

// Preload is the mutable portion of a SongRecord, owned exclusively by
// the preloader (C3). State is monotone forward except a reset to
// PreloadNotStarted on failure.
type Preload struct {
	State            valueobjects.PreloadState
	TempArtifact     string
	ProcessedArtifact string
	VolumeAppliedPct int
}

// SongRecord is immutable after creation except for its Preload field.
type SongRecord struct {
	ID           string
	Title        string
	Artist       string
	DurationMs   int64
	ThumbnailURL string
	Source       valueobjects.RecordSource
	StreamKey    string
	RequestedBy  Requester

	mu      sync.RWMutex
	preload Preload
}

// NewSongRecord builds a SongRecord. id should be ContentHash(normalizedQuery)
// when the normalized query is already known; callers resolving async may
// pass a uuid placeholder and re-key later.
func NewSongRecord(id, title, artist string, durationMs int64, thumbnailURL string, source valueobjects.RecordSource, streamKey string, requester Requester) *SongRecord {
	return &SongRecord{
		ID:           id,
		Title:        title,
		Artist:       artist,
		DurationMs:   durationMs,
		ThumbnailURL: thumbnailURL,
		Source:       source,
		StreamKey:    streamKey,
		RequestedBy:  requester,
		preload:      Preload{State: valueobjects.PreloadNotStarted},
	}
}

// ContentHash produces the stable id for a normalized query, used so
// that repeated requests for the same input collapse to the same
// SongRecord.ID for dedup/caching purposes.
func ContentHash(normalizedQuery string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(normalizedQuery))))
	return hex.EncodeToString(sum[:])[:32]
}

// DisplayName returns "Artist - Title" when an artist is known.
func (s *SongRecord) DisplayName() string {
	if s.Artist != "" {
		return s.Artist + " - " + s.Title
	}
	return s.Title
}

// DurationFormatted renders DurationMs as MM:SS, "00:00" if unknown.
func (s *SongRecord) DurationFormatted() string {
	if s.DurationMs <= 0 {
		return "00:00"
	}
	total := s.DurationMs / 1000
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// ExceedsLimit reports whether this record's duration exceeds
// maxDurationSec (0 = unlimited, never exceeded).
func (s *SongRecord) ExceedsLimit(maxDurationSec int) bool {
	if maxDurationSec <= 0 || s.DurationMs <= 0 {
		return false
	}
	return s.DurationMs > int64(maxDurationSec)*1000
}

// Preload returns a snapshot of the preload sub-state.
func (s *SongRecord) Preload() Preload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preload
}

// MarkPreloadInProgress transitions preload.state to in-progress.
func (s *SongRecord) MarkPreloadInProgress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preload.State = valueobjects.PreloadInProgress
}

// MarkPreloadReady records a successfully decoded artifact.
func (s *SongRecord) MarkPreloadReady(processedArtifact string, volumeAppliedPct int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preload.State = valueobjects.PreloadReady
	s.preload.ProcessedArtifact = processedArtifact
	s.preload.VolumeAppliedPct = volumeAppliedPct
}

// MarkPreloadFailed resets preload to not-started after cleanup, per
// the monotone-forward-except-on-failure invariant.
func (s *SongRecord) MarkPreloadFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preload = Preload{State: valueobjects.PreloadNotStarted}
}

// PreloadStaleForVolume reports whether a ready artifact was decoded at
// a different volume than currentVolumePct and must be re-decoded.
func (s *SongRecord) PreloadStaleForVolume(currentVolumePct int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preload.State == valueobjects.PreloadReady && s.preload.VolumeAppliedPct != currentVolumePct
}
