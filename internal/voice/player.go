package voice

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonas747/ogg"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

// EndReason tells the caller why playback stopped, so the session
// engine can decide whether to advance the queue or surface an error.
type EndReason int

const (
	EndCompleted EndReason = iota
	EndStopped
	EndError
)

// Callback is invoked exactly once when a Play call's stream ends.
type Callback func(reason EndReason, err error)

// Player paces decoded Opus/OGG frames from a source reader onto a
// voice Connection at the 20ms real-time rate Discord expects. The
// source is either a preloaded artifact file (the common case, opened
// by PlayArtifact) or any other OGG/Opus reader (PlayStream), since
// both the preloader's artifacts and a live yt-dlp|ffmpeg pipe produce
// the same container format.
type Player struct {
	conn   *Connection
	logger *logger.Logger

	mu         sync.Mutex
	stopSignal chan struct{}
	playing    atomic.Bool
	paused     atomic.Bool
}

// NewPlayer creates a player bound to conn.
func NewPlayer(conn *Connection, log *logger.Logger) *Player {
	return &Player{conn: conn, logger: log}
}

// PlayArtifact opens path (an OGG/Opus file produced by process.Runner.Decode)
// and streams it. The file is not removed; deleting it is left to the caller.
func (p *Player) PlayArtifact(ctx context.Context, path string, callback Callback) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return p.PlayStream(ctx, f, callback)
}

// PlayStream streams OGG/Opus frames read from source until EOF, the
// source errors, or Stop is called. source is closed when playback ends.
func (p *Player) PlayStream(ctx context.Context, source io.ReadCloser, callback Callback) error {
	p.mu.Lock()
	if p.playing.Load() {
		p.mu.Unlock()
		source.Close()
		return ErrAlreadyPlaying
	}
	p.stopSignal = make(chan struct{})
	stop := p.stopSignal
	p.playing.Store(true)
	p.paused.Store(false)
	p.mu.Unlock()

	if !p.conn.IsConnected() {
		p.playing.Store(false)
		source.Close()
		return ErrNotConnected
	}

	go p.stream(ctx, source, stop, callback)
	return nil
}

func (p *Player) stream(ctx context.Context, source io.ReadCloser, stop chan struct{}, callback Callback) {
	defer source.Close()
	defer p.playing.Store(false)
	defer p.paused.Store(false)

	if err := p.conn.Speaking(true); err != nil {
		p.logger.WithError(err).Warn("failed to set speaking state")
	}
	defer p.conn.Speaking(false)

	vc := p.conn.Raw()
	if vc == nil {
		p.finish(callback, EndError, ErrNotConnected)
		return
	}

	decoder := ogg.NewPacketDecoder(ogg.NewDecoder(source))
	skipHeaders := 2
	frameCount := 0
	startTime := time.Now()
	const frameInterval = 20 * time.Millisecond

	for {
		select {
		case <-stop:
			p.finish(callback, EndStopped, nil)
			return
		case <-ctx.Done():
			p.finish(callback, EndStopped, ctx.Err())
			return
		default:
		}

		packet, _, err := decoder.Decode()
		if err != nil {
			if err == io.EOF {
				p.finish(callback, EndCompleted, nil)
				return
			}
			p.finish(callback, EndError, err)
			return
		}

		if skipHeaders > 0 {
			skipHeaders--
			continue
		}
		if len(packet) == 0 {
			continue
		}
		frameCount++

		for p.paused.Load() {
			select {
			case <-stop:
				p.finish(callback, EndStopped, nil)
				return
			case <-time.After(frameInterval):
			}
		}

		expected := startTime.Add(time.Duration(frameCount) * frameInterval)
		if now := time.Now(); now.Before(expected) {
			time.Sleep(expected.Sub(now))
		}

		select {
		case vc.OpusSend <- packet:
		case <-stop:
			p.finish(callback, EndStopped, nil)
			return
		}
	}
}

func (p *Player) finish(callback Callback, reason EndReason, err error) {
	if callback != nil {
		callback(reason, err)
	}
}

// Stop halts the current stream, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing.Load() || p.stopSignal == nil {
		return
	}
	select {
	case <-p.stopSignal:
	default:
		close(p.stopSignal)
	}
}

// Pause suspends frame sending without tearing down the stream.
func (p *Player) Pause() {
	p.paused.Store(true)
	_ = p.conn.Speaking(false)
}

// Resume un-suspends frame sending.
func (p *Player) Resume() {
	p.paused.Store(false)
	_ = p.conn.Speaking(true)
}

// IsPlaying reports whether a stream is currently active (paused or not).
func (p *Player) IsPlaying() bool { return p.playing.Load() }

// IsPaused reports whether the active stream is paused.
func (p *Player) IsPaused() bool { return p.paused.Load() }
