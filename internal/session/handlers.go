package session

import (
	"context"

	"github.com/nyxbot/voiceengine/internal/domain"
	apperrors "github.com/nyxbot/voiceengine/internal/errors"
	"github.com/nyxbot/voiceengine/internal/resolver"
	"github.com/nyxbot/voiceengine/internal/voice"
)

// handlePlay drives idle->querying on the first Play, stages anything
// that arrives while a head resolution is already in flight, and lets
// a Play that arrives once a track is already playing resolve straight
// into the queue without touching session.State at all.
func (e *Engine) handlePlay(cmd Command) error {
	if cmd.VoiceChannelID != "" {
		if err := e.conn.Connect(e.discordSes, cmd.VoiceChannelID); err != nil {
			return err
		}
		e.session.VoiceChannelID = cmd.VoiceChannelID
	}

	switch e.session.State {
	case StateQuerying, StateLoading:
		if len(e.pendingRaw) < e.pendingCap {
			e.pendingRaw = append(e.pendingRaw, stagedPlay{intent: cmd.Intent})
		}
		return nil
	case StateDestroyed:
		return apperrors.NewTypedError(apperrors.ErrNoActiveSession, apperrors.CategorySession, "this session has ended", nil)
	case StateIdle:
		e.session.State = StateQuerying
		e.session.SearchQuery = cmd.Intent.RawQuery
		e.gen++
		e.startResolve(e.gen, cmd.Intent, true)
	default: // Playing, Paused
		e.startResolve(e.gen, cmd.Intent, false)
	}
	e.publishSnapshot()
	return nil
}

// startResolve runs the resolver in the background and posts the
// result back through events, tagged with gen so a later Skip/Stop can
// invalidate it. isHead marks the very request that is allowed to
// drive the querying->loading transition; every other concurrently
// staged request just lands in the queue once it resolves.
func (e *Engine) startResolve(gen uint64, intent PlayRequest, isHead bool) {
	settings := e.currentSettings()
	go func() {
		res, err := e.resolver.Resolve(context.Background(), e.guildID, resolver.PlayIntent{
			Kind:      intent.Kind,
			Raw:       intent.RawQuery,
			Requester: intent.Requester,
		}, settings.MaxDurationSec)
		e.events <- resolveResult{gen: gen, isHead: isHead, result: res, err: err}
	}()
}

func (e *Engine) onResolved(v resolveResult) {
	if v.err != nil {
		e.session.LastError = v.err
		if v.isHead {
			staged := e.pendingRaw
			e.pendingRaw = nil
			for _, sp := range staged {
				e.startResolve(e.gen, sp.intent, false)
			}
			if e.queue.Len() == 0 {
				e.session.State = StateIdle
				e.session.SearchQuery = ""
			} else {
				e.advanceQueue()
			}
		}
		e.publishSnapshot()
		return
	}

	ctx := context.Background()
	_ = e.queue.Enqueue(ctx, v.result.Records)

	if !v.isHead {
		// A non-head resolve can land after the session has already
		// gone idle (natural end with an empty queue, Stop, etc). With
		// nothing else to pull it out of the queue, the newly enqueued
		// record would otherwise sit stranded under an armed idle
		// timer, so kick playback off it directly.
		if e.session.State == StateIdle {
			e.dequeueNextOrIdle(ctx)
		}
		e.publishSnapshot()
		return
	}

	staged := e.pendingRaw
	e.pendingRaw = nil
	for _, sp := range staged {
		e.startResolve(e.gen, sp.intent, false)
	}

	e.dequeueNextOrIdle(ctx)
	e.publishSnapshot()
}

// dequeueNextOrIdle dequeues the next record and begins decoding it,
// staying/returning to idle if the queue is still empty. Used both by
// the head resolve's own querying->loading tail and by a non-head
// resolve landing while the engine already sits idle.
func (e *Engine) dequeueNextOrIdle(ctx context.Context) {
	head, _ := e.queue.Dequeue(ctx)
	if head == nil {
		e.session.State = StateIdle
		e.session.SearchQuery = ""
		return
	}
	e.session.State = StateLoading
	e.session.SearchQuery = ""
	e.gen++
	e.beginDecodeHead(e.gen, head)
}

// beginDecodeHead uses an already-ready preload if one matches the
// current volume, otherwise falls back to a live decode — the same
// fallback the failure semantics call for when a preload goes stale or
// errors out before play time.
func (e *Engine) beginDecodeHead(gen uint64, record *domain.SongRecord) {
	volume := e.session.VolumePct
	if artifact, ok := e.preloader.Get(record, record.StreamKey); ok && !record.PreloadStaleForVolume(volume) {
		e.events <- decodeReady{gen: gen, record: record, artifact: artifact}
		return
	}

	go func() {
		artifact, _, err := e.runner.Decode(context.Background(), e.guildID, record.StreamKey, volume, e.decodeTimeouts.Live)
		e.events <- decodeReady{gen: gen, record: record, artifact: artifact, err: err}
	}()
}

func (e *Engine) onDecodeReady(v decodeReady) {
	if v.err != nil {
		e.session.LastError = v.err
		e.advanceQueue()
		e.publishSnapshot()
		return
	}

	gen := v.gen
	record := v.record
	cb := func(reason voice.EndReason, err error) {
		e.events <- playbackEnded{gen: gen, record: record, reason: reason, err: err}
	}

	if err := e.player.PlayArtifact(context.Background(), v.artifact, cb); err != nil {
		e.session.LastError = err
		e.advanceQueue()
		e.publishSnapshot()
		return
	}

	e.currentArtifact = v.artifact
	e.session.NowPlaying = record
	e.session.State = StatePlaying
	e.session.JustShuffled = false
	e.session.LastError = nil

	if next := e.queue.Peek(); next != nil {
		e.preloader.Start(context.Background(), e.guildID, next, e.session.VolumePct, e.decodeTimeouts.Preload)
	}
	e.publishSnapshot()
}

// onPlaybackEnded fires when the current stream ends on its own —
// finished naturally or failed — and advances the queue. A stream
// halted by Skip, Stop or Destroy never reaches here: each bumps gen
// before stopping the player, so handleEvent discards its end event.
func (e *Engine) onPlaybackEnded(v playbackEnded) {
	if v.err != nil {
		e.session.LastError = v.err
	}
	e.advanceQueue()
	e.publishSnapshot()
}

// advanceQueue moves the finished track into history, cleans up its
// temp artifact, and either begins decoding the next head or returns
// the session to idle.
func (e *Engine) advanceQueue() {
	if e.currentArtifact != "" {
		e.preloader.DeleteArtifact(e.currentArtifact)
		e.currentArtifact = ""
	}
	if e.session.NowPlaying != nil {
		e.session.pushHistory(e.session.NowPlaying)
	}
	e.session.NowPlaying = nil

	ctx := context.Background()
	next, _ := e.queue.Dequeue(ctx)
	if next == nil {
		e.session.State = StateIdle
		return
	}
	e.session.State = StateLoading
	e.gen++
	e.beginDecodeHead(e.gen, next)
}

// advance is CmdAdvanceDueToEnd's entry point: an externally-observed
// end of playback (e.g. a coordinator-level watchdog) that should be
// treated exactly like a natural end.
func (e *Engine) advance() error {
	e.advanceQueue()
	e.publishSnapshot()
	return nil
}

func (e *Engine) handleSkip() error {
	if e.session.State != StatePlaying && e.session.State != StatePaused {
		return nil
	}
	e.gen++ // invalidate whatever decode/resolve was tied to the skipped head
	if e.player.IsPlaying() {
		e.player.Stop()
	}
	e.advanceQueue()
	e.publishSnapshot()
	return nil
}

// handleStop clears the queue and returns to idle without advancing —
// unlike Skip, nothing is popped to replace the stopped track.
func (e *Engine) handleStop() error {
	e.gen++
	if e.player.IsPlaying() {
		e.player.Stop()
	}
	if e.currentArtifact != "" {
		e.preloader.DeleteArtifact(e.currentArtifact)
		e.currentArtifact = ""
	}
	if head := e.queue.Peek(); head != nil {
		e.preloader.Cancel(e.guildID, head)
	}
	_ = e.queue.Clear(context.Background())
	e.pendingRaw = nil
	e.session.NowPlaying = nil
	e.session.SearchQuery = ""
	e.session.State = StateIdle
	e.publishSnapshot()
	return nil
}

func (e *Engine) handlePause() error {
	if e.session.State != StatePlaying {
		return apperrors.NewTypedError(apperrors.ErrNoActiveSession, apperrors.CategorySession, "nothing is playing", nil)
	}
	e.player.Pause()
	e.session.State = StatePaused
	e.publishSnapshot()
	return nil
}

func (e *Engine) handleResume() error {
	if e.session.State != StatePaused {
		return apperrors.NewTypedError(apperrors.ErrNoActiveSession, apperrors.CategorySession, "nothing is paused", nil)
	}
	e.player.Resume()
	e.session.State = StatePlaying
	e.publishSnapshot()
	return nil
}

// handleShuffle permutes the in-memory queue window. A no-op when
// fewer than two tracks are queued, per the queue's own law. When the
// head changes identity, the old head's stale preload is cancelled so
// the new head gets preloaded in its place.
func (e *Engine) handleShuffle() error {
	oldHead := e.queue.Peek()
	changed := e.queue.Shuffle()
	if !changed {
		return nil
	}
	if oldHead != nil {
		e.preloader.Cancel(e.guildID, oldHead)
	}
	e.session.JustShuffled = true
	if newHead := e.queue.Peek(); newHead != nil && e.session.State == StatePlaying {
		e.preloader.Start(context.Background(), e.guildID, newHead, e.session.VolumePct, e.decodeTimeouts.Preload)
	}
	e.publishSnapshot()
	return nil
}

// handleSetVolume does not change the track already playing (the
// player scales nothing itself — volume is baked into the decode); the
// new level applies from the next track on. The queue head's preload
// is restarted at the new level, and beginDecodeHead falls back to a
// live decode if the head's preload still carries the old level.
func (e *Engine) handleSetVolume(volumePct int) error {
	if volumePct < 0 {
		volumePct = 0
	}
	if volumePct > 100 {
		volumePct = 100
	}
	e.session.VolumePct = volumePct
	if head := e.queue.Peek(); head != nil {
		e.preloader.Start(context.Background(), e.guildID, head, volumePct, e.decodeTimeouts.Preload)
	}
	e.publishSnapshot()
	return nil
}

func (e *Engine) handleSetMuted(muted bool) error {
	e.session.Muted = muted
	if e.conn.IsConnected() {
		_ = e.conn.Speaking(!muted && e.session.State == StatePlaying)
	}
	e.publishSnapshot()
	return nil
}

// handleDestroy tears the session down entirely: stop playback, clear
// the queue, drop the voice connection. Used for both
// CmdExternalDisconnect (the gateway reported we left the channel) and
// CmdAdminReset (an operator forced a reset).
func (e *Engine) handleDestroy() error {
	e.teardown()
	e.session.State = StateDestroyed
	e.publishSnapshot()
	return nil
}

// teardown releases everything the engine holds that outlives a
// single command: the in-flight preload, the voice connection, and
// the current playback artifact. Idempotent.
func (e *Engine) teardown() {
	e.gen++
	if e.player.IsPlaying() {
		e.player.Stop()
	}
	if e.currentArtifact != "" {
		e.preloader.DeleteArtifact(e.currentArtifact)
		e.currentArtifact = ""
	}
	if head := e.queue.Peek(); head != nil {
		e.preloader.Cancel(e.guildID, head)
	}
	_ = e.queue.Clear(context.Background())
	_ = e.conn.Disconnect()
}
