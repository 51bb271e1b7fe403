package session

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/preloader"
	"github.com/nyxbot/voiceengine/internal/process"
	"github.com/nyxbot/voiceengine/internal/queue"
	"github.com/nyxbot/voiceengine/internal/resolver"
	"github.com/nyxbot/voiceengine/internal/voice"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

const inboxCapacity = 32

// resolveResult and playbackEnded are posted onto the engine's
// internal event channel by goroutines the engine itself spawned
// (resolution, decode-then-play). gen guards against acting on a
// stale result from an operation a later command has superseded.
type resolveResult struct {
	gen    uint64
	isHead bool
	result *resolver.Result
	err    error
}

type playbackEnded struct {
	gen    uint64
	record *domain.SongRecord
	reason voice.EndReason
	err    error
}

// stagedPlay is a Play request that arrived while the engine was
// already querying or loading a head track. It is drained once that
// resolution settles, so a burst of Plays never starts two
// resolutions racing for the same head slot.
type stagedPlay struct {
	intent PlayRequest
}

type decodeReady struct {
	gen      uint64
	record   *domain.SongRecord
	artifact string
	err      error
}

// DecodeTimeouts configures how long the engine waits for the various
// decode paths before giving up.
type DecodeTimeouts struct {
	Preload time.Duration
	Live    time.Duration
}

// Engine owns one GuildSession exclusively and drains commands from
// its inbox on a single goroutine, per the spec's "one execution
// context per guild" scheduling model.
type Engine struct {
	guildID string
	logger  *logger.Logger

	resolver   *resolver.Resolver
	preloader  *preloader.Preloader
	runner     *process.Runner
	conn       *voice.Connection
	player     *voice.Player
	discordSes *discordgo.Session

	queue   *queue.Queue
	session *GuildSession

	decodeTimeouts DecodeTimeouts
	pendingCap     int

	settingsMu sync.RWMutex
	settings   *domain.GuildSettings

	inbox  chan Command
	events chan any
	quit   chan struct{}
	gen    uint64

	// currentArtifact is the temp file backing session.NowPlaying, set
	// when a decode succeeds and removed once that track stops playing
	// (naturally, via Skip, or via Stop), whichever comes first.
	currentArtifact string

	// pendingRaw holds Play requests that arrived while a head
	// resolution was already in flight.
	pendingRaw []stagedPlay

	snapshotMu sync.RWMutex
	onSnapshot func(Snapshot)
}

// New creates an engine for guildID. Call Run to start its goroutine.
func New(
	guildID string,
	log *logger.Logger,
	res *resolver.Resolver,
	pre *preloader.Preloader,
	runner *process.Runner,
	discordSes *discordgo.Session,
	q *queue.Queue,
	settings *domain.GuildSettings,
	historyCap, defaultVolumePct, pendingCap int,
	decodeTimeouts DecodeTimeouts,
) *Engine {
	if settings == nil {
		settings = domain.DefaultSettings(guildID)
	}
	if pendingCap <= 0 {
		pendingCap = 50
	}
	e := &Engine{
		guildID:        guildID,
		logger:         log,
		resolver:       res,
		preloader:      pre,
		runner:         runner,
		discordSes:     discordSes,
		queue:          q,
		session:        NewGuildSession(guildID, historyCap, defaultVolumePct),
		settings:       settings,
		decodeTimeouts: decodeTimeouts,
		pendingCap:     pendingCap,
		inbox:          make(chan Command, inboxCapacity),
		events:         make(chan any, inboxCapacity),
		quit:           make(chan struct{}),
	}
	e.conn = voice.NewConnection(guildID, log)
	e.player = voice.NewPlayer(e.conn, log)
	return e
}

// OnSnapshot registers a hook invoked with a fresh Snapshot after
// every state transition (the coordinator, C6, wires this to its UI
// recompute step).
func (e *Engine) OnSnapshot(fn func(Snapshot)) {
	e.snapshotMu.Lock()
	defer e.snapshotMu.Unlock()
	e.onSnapshot = fn
}

// UpdateSettings swaps in fresh guild settings (e.g. after a C11 cache
// refresh). Read by the engine goroutine on its next command.
func (e *Engine) UpdateSettings(s *domain.GuildSettings) {
	e.settingsMu.Lock()
	defer e.settingsMu.Unlock()
	e.settings = s
}

func (e *Engine) currentSettings() *domain.GuildSettings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return e.settings
}

// Submit enqueues a command. Blocks only if the inbox is full.
func (e *Engine) Submit(cmd Command) {
	e.inbox <- cmd
}

// Snapshot returns the current state for rendering, safe to call from
// any goroutine.
func (e *Engine) Snapshot() Snapshot {
	info, _ := e.queue.Info(context.Background())
	return e.session.snapshot(e.queue.Len(), info.TotalCount)
}

func (e *Engine) publishSnapshot() {
	e.snapshotMu.RLock()
	fn := e.onSnapshot
	e.snapshotMu.RUnlock()
	if fn != nil {
		fn(e.Snapshot())
	}
}

// Run drives the command loop until Shutdown is called. Intended to be
// launched with `go engine.Run()`.
func (e *Engine) Run() {
	for {
		select {
		case <-e.quit:
			return
		case cmd := <-e.inbox:
			e.handleCommand(cmd)
		case ev := <-e.events:
			e.handleEvent(ev)
		}
	}
}

// Shutdown stops the engine's goroutine and releases its voice
// connection and any in-flight preload, per AdminReset/ExternalDisconnect.
func (e *Engine) Shutdown() {
	e.teardown()
	close(e.quit)
}

func (e *Engine) handleCommand(cmd Command) {
	switch cmd.Kind {
	case CmdPlay:
		cmd.reply(e.handlePlay(cmd))
	case CmdSkip:
		cmd.reply(e.handleSkip())
	case CmdStop:
		cmd.reply(e.handleStop())
	case CmdPause:
		cmd.reply(e.handlePause())
	case CmdResume:
		cmd.reply(e.handleResume())
	case CmdShuffle:
		cmd.reply(e.handleShuffle())
	case CmdSetVolume:
		cmd.reply(e.handleSetVolume(cmd.VolumePct))
	case CmdSetMuted:
		cmd.reply(e.handleSetMuted(cmd.Muted))
	case CmdAdvanceDueToEnd:
		cmd.reply(e.advance())
	case CmdExternalDisconnect, CmdAdminReset:
		cmd.reply(e.handleDestroy())
	}
}

func (e *Engine) handleEvent(ev any) {
	switch v := ev.(type) {
	case resolveResult:
		// Only the head resolve is gen-gated: it drives the
		// querying/loading transition and must be discarded once a
		// Skip/Stop/natural-advance invalidates that generation. A
		// non-head resolve is just adding a track to the queue behind
		// whatever is currently playing, which stays valid no matter
		// how many transitions happened while it was in flight.
		if v.isHead && v.gen != e.gen {
			return
		}
		e.onResolved(v)
	case decodeReady:
		if v.gen != e.gen {
			return
		}
		e.onDecodeReady(v)
	case playbackEnded:
		if v.gen != e.gen {
			return
		}
		e.onPlaybackEnded(v)
	}
}
