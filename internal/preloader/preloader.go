// Package preloader implements C3: decoding the head-of-queue track
// into a ready artifact concurrently with whatever is currently
// playing, so the next transition into Playing is instant. Preloader
// mutates a SongRecord's own preload fields directly rather than
// keeping a parallel bookkeeping structure — the spec calls for
// "strictly lightweight references on the song record", and
// SongRecord.preload is already its own mutex-guarded sub-state for
// exactly that reason. Policy decisions about *when* to preload (head
// only, never during a shuffle, re-decode on volume change) belong to
// the session engine that owns the queue; this package only knows how
// to start, cancel and query one decode.
package preloader

import (
	"context"
	"sync"
	"time"

	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/domain/valueobjects"
	"github.com/nyxbot/voiceengine/internal/process"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

// Preloader drives at most one in-flight decode per guild.
type Preloader struct {
	runner *process.Runner
	logger *logger.Logger

	mu     sync.Mutex
	active map[string]*inflight
}

type inflight struct {
	streamKey string
	cancel    context.CancelFunc
}

// New creates a preloader backed by runner.
func New(runner *process.Runner, log *logger.Logger) *Preloader {
	return &Preloader{
		runner: runner,
		logger: log,
		active: make(map[string]*inflight),
	}
}

// Start begins decoding record in the background at volumePct, unless
// it is already ready at that volume or already in progress. Returns
// immediately; record.Preload().State reflects progress as it changes.
func (p *Preloader) Start(ctx context.Context, guildID string, record *domain.SongRecord, volumePct int, timeout time.Duration) {
	if record == nil {
		return
	}

	current := record.Preload()
	if current.State == valueobjects.PreloadReady && !record.PreloadStaleForVolume(volumePct) {
		return
	}

	p.mu.Lock()
	if existing, ok := p.active[guildID]; ok {
		if existing.streamKey == record.StreamKey && current.State == valueobjects.PreloadInProgress {
			p.mu.Unlock()
			return
		}
		existing.cancel()
		delete(p.active, guildID)
	}
	dctx, cancel := context.WithCancel(ctx)
	p.active[guildID] = &inflight{streamKey: record.StreamKey, cancel: cancel}
	p.mu.Unlock()

	record.MarkPreloadInProgress()

	go func() {
		defer func() {
			p.mu.Lock()
			if cur, ok := p.active[guildID]; ok && cur.streamKey == record.StreamKey {
				delete(p.active, guildID)
			}
			p.mu.Unlock()
		}()

		artifact, _, err := p.runner.Decode(dctx, guildID, record.StreamKey, volumePct, timeout)
		if err != nil {
			if dctx.Err() == nil {
				p.logger.WithError(err).WithField("guild", guildID).Warn("preload failed")
			}
			record.MarkPreloadFailed()
			return
		}
		record.MarkPreloadReady(artifact, volumePct)
	}()
}

// Cancel stops guildID's in-flight preload, if any, and resets the
// record's preload to not-started so it falls back to a lazy decode at
// play time. Used
// on shuffle (the head changed identity) and on session teardown.
func (p *Preloader) Cancel(guildID string, record *domain.SongRecord) {
	p.mu.Lock()
	if existing, ok := p.active[guildID]; ok {
		existing.cancel()
		delete(p.active, guildID)
	}
	p.mu.Unlock()

	if record != nil {
		record.MarkPreloadFailed()
	}
}

// Get returns record's preloaded artifact path when its preload is
// ready and its StreamKey equals streamKey.
func (p *Preloader) Get(record *domain.SongRecord, streamKey string) (string, bool) {
	if record == nil {
		return "", false
	}
	pl := record.Preload()
	if pl.State != valueobjects.PreloadReady || record.StreamKey != streamKey {
		return "", false
	}
	return pl.ProcessedArtifact, true
}

// DeleteArtifact removes a completed preload's temp file once the
// engine reports playback has finished with it.
func (p *Preloader) DeleteArtifact(path string) {
	p.runner.DeleteArtifact(path)
}
