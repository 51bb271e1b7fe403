// Package bot wires C1 through C11 together into one running process:
// one discordgo session, one process runner, one resolver/preloader
// pair, a lazily-created session engine per guild, the state
// coordinator gating commands into those engines, the idle supervisor
// watching their snapshots, the interaction dispatcher routing Discord
// events into coordinator submissions, and the message-ref manager
// publishing each resulting snapshot back as the guild's pinned
// playback_controls message.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/nyxbot/voiceengine/internal/config"
	"github.com/nyxbot/voiceengine/internal/coordinator"
	"github.com/nyxbot/voiceengine/internal/database"
	"github.com/nyxbot/voiceengine/internal/dispatcher"
	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/domain/repositories"
	"github.com/nyxbot/voiceengine/internal/messageref"
	"github.com/nyxbot/voiceengine/internal/preloader"
	"github.com/nyxbot/voiceengine/internal/process"
	"github.com/nyxbot/voiceengine/internal/queue"
	"github.com/nyxbot/voiceengine/internal/resolver"
	"github.com/nyxbot/voiceengine/internal/session"
	"github.com/nyxbot/voiceengine/internal/settingscache"
	"github.com/nyxbot/voiceengine/internal/supervisor"
	"github.com/nyxbot/voiceengine/internal/ui"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

// MusicBot owns every long-lived component and the per-guild engines
// they're wired around.
type MusicBot struct {
	config  *config.Config
	logger  *logger.Logger
	session *discordgo.Session
	db      *database.DB

	runner     *process.Runner
	resolver   *resolver.Resolver
	preloader  *preloader.Preloader
	coord      *coordinator.Coordinator
	settings   *settingscache.Cache
	supervisor *supervisor.Supervisor
	msgRefs    *messageref.Manager
	dispatch   *dispatcher.Dispatcher
	playlists  *repositories.DatabasePlaylistRepository

	coordCtx    context.Context
	coordCancel context.CancelFunc

	guildsMu sync.Mutex
	guilds   map[string]*session.Engine

	channelsMu sync.RWMutex
	channels   map[string]string // guildID -> last channel an interaction arrived on
}

// New wires every component and registers the Discord event handlers,
// but does not open the gateway connection or register commands; call
// Start for that.
func New(cfg *config.Config, log *logger.Logger) (*MusicBot, error) {
	sess, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	sess.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent
	sess.StateEnabled = true
	sess.State = discordgo.NewState()

	var db *database.DB
	var settingsStore settingscache.Store
	var refStore messageref.Store
	var overflowStore queue.OverflowStore
	var metaCache resolver.MetadataCache

	if cfg.HasDatabase() {
		ctx := context.Background()
		db, err = database.Connect(ctx, database.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		settingsStore = database.NewSettingsStore(db)
		refStore = database.NewMessageRefStore(db)
		overflowStore = database.NewOverflowStore(db)
		metaCache = database.NewMetadataCache(db)
		log.Info("database configured: settings, message refs, queue overflow, and play-count tracking are all durable")
	} else {
		settingsStore = newMemorySettingsStore()
		log.Info("no DATABASE_URL set: guild settings and message refs are in-memory only, queued tracks beyond the in-memory cap are discarded, play-count tracking is disabled")
	}

	runner := process.NewRunner(log, cfg.MaxConcurrentProcessesPerGuild, "")
	res := resolver.New(
		runner,
		cfg.SpotifyClientID, cfg.SpotifyClientSecret,
		log,
		secToDuration(cfg.PlaylistTitleTimeoutSec),
		secToDuration(cfg.PlaylistEnumerateTimeoutSec),
		secToDuration(cfg.SpotifyTimeoutSec),
	)
	if metaCache != nil {
		res.SetMetadataCache(metaCache)
	}
	pre := preloader.New(runner, log)

	coord := coordinator.New(log)
	settings := settingscache.New(settingsStore, durationFromMin(cfg.SettingsCacheTTLMin), cfg.SettingsCacheCapacity)
	msgRefs := messageref.New(sess, refStore, log)

	b := &MusicBot{
		config:     cfg,
		logger:     log,
		session:    sess,
		db:         db,
		runner:     runner,
		resolver:   res,
		preloader:  pre,
		coord:      coord,
		settings:   settings,
		msgRefs:    msgRefs,
		guilds:     make(map[string]*session.Engine),
		channels:   make(map[string]string),
	}
	b.supervisor = supervisor.New(log, b.idleTimeoutFor, b.safeToDisconnect, b.fireIdleTimeout)
	coord.OnUIState(b.onUIState)
	if db != nil {
		b.playlists = repositories.NewDatabasePlaylistRepository(db)
	}

	b.dispatch = dispatcher.New(sess, coord, settings, log)
	registerHandlers(b, overflowStore)

	sess.AddHandler(b.onReady)
	sess.AddHandler(b.dispatch.HandleInteraction)

	return b, nil
}

func secToDuration(sec int) time.Duration { return time.Duration(sec) * time.Second }

func durationFromMin(min int) time.Duration { return time.Duration(min) * time.Minute }

// Start opens the gateway connection, starts the coordinator's
// background sweep, and registers slash commands.
func (b *MusicBot) Start(ctx context.Context) error {
	b.coordCtx, b.coordCancel = context.WithCancel(ctx)
	go b.coord.Run(b.coordCtx, 0)

	b.logger.Info("opening Discord connection")
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	b.logger.Info("registering slash commands")
	if _, err := b.session.ApplicationCommandBulkOverwrite(b.config.AppID, b.config.GuildID, slashCommands); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	return nil
}

// Stop tears down every guild's engine, stops the coordinator sweep,
// closes the database, and closes the Discord session.
func (b *MusicBot) Stop() {
	b.logger.Info("shutting down")

	b.guildsMu.Lock()
	for guildID, eng := range b.guilds {
		eng.Shutdown()
		b.coord.UnregisterEngine(guildID)
	}
	b.guilds = make(map[string]*session.Engine)
	b.guildsMu.Unlock()

	if b.coordCancel != nil {
		b.coordCancel()
	}
	b.coord.Stop()
	b.runner.Shutdown()

	if b.db != nil {
		b.db.Close()
	}

	if err := b.session.Close(); err != nil {
		b.logger.WithError(err).Error("failed to close Discord session")
	}
}

func (b *MusicBot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	b.logger.WithField("user", event.User.Username).WithField("guilds", len(event.Guilds)).Info("bot is ready")
	if err := s.UpdateGameStatus(0, "/play — "+b.config.BotName); err != nil {
		b.logger.WithError(err).Warn("failed to update status")
	}
}

// ensureEngine returns guildID's engine, creating and registering it
// with the coordinator on first use. Per the spec, a GuildSession
// exists from first accepted play until idle-timeout or admin reset —
// here the engine itself is created a little earlier, on first
// interaction, but stays fully idle (and eligible for the C9 timer)
// until a play actually lands.
func (b *MusicBot) ensureEngine(guildID string, overflowStore queue.OverflowStore) *session.Engine {
	b.guildsMu.Lock()
	defer b.guildsMu.Unlock()

	if eng, ok := b.guilds[guildID]; ok {
		return eng
	}

	settings, err := b.settings.Get(context.Background(), guildID)
	if err != nil || settings == nil {
		settings = domain.DefaultSettings(guildID)
	}

	q := queue.New(guildID, overflowStore, b.config.QueueCap, b.config.OverflowBatchSize)
	eng := session.New(
		guildID, b.logger, b.resolver, b.preloader, b.runner, b.session, q, settings,
		b.config.HistoryCap, 50, b.config.PendingCap,
		session.DecodeTimeouts{Preload: secToDuration(30), Live: secToDuration(30)},
	)
	b.guilds[guildID] = eng
	b.coord.RegisterEngine(guildID, eng)
	go eng.Run()
	return eng
}

func (b *MusicBot) setChannel(guildID, channelID string) {
	b.channelsMu.Lock()
	b.channels[guildID] = channelID
	b.channelsMu.Unlock()
}

func (b *MusicBot) channelFor(guildID string) string {
	b.channelsMu.RLock()
	defer b.channelsMu.RUnlock()
	return b.channels[guildID]
}

// onUIState is the coordinator's single fan-out point: every accepted
// transition republishes the pinned control message and re-evaluates
// the idle supervisor's arm/clear state.
func (b *MusicBot) onUIState(guildID string, snap session.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload := ui.Render(snap)
	if err := b.msgRefs.Publish(ctx, guildID, b.channelFor(guildID), payload); err != nil {
		b.logger.WithError(err).WithField("guild", guildID).Warn("failed to publish playback controls")
	}

	if snap.State == session.StateIdle && snap.QueueLen == 0 {
		b.supervisor.Arm(guildID)
	} else {
		b.supervisor.Clear(guildID)
	}

	if snap.State == session.StateDestroyed {
		b.msgRefs.Clear(ctx, guildID, "")
	}
}

// idleTimeoutFor satisfies supervisor.SettingsFunc: read fresh per
// fire, never cached at arm time, so a live settings change takes
// effect on the next tick.
func (b *MusicBot) idleTimeoutFor(guildID string) time.Duration {
	settings, err := b.settings.Get(context.Background(), guildID)
	if err != nil || settings == nil {
		return durationFromMin(b.config.VoiceTimeoutMin)
	}
	return durationFromMin(settings.VoiceTimeoutMin)
}

// safeToDisconnect satisfies supervisor.SafetyCheckFunc: re-verify at
// expiry that the engine is still idle with an empty queue before
// tearing anything down.
func (b *MusicBot) safeToDisconnect(guildID string) bool {
	b.guildsMu.Lock()
	eng, ok := b.guilds[guildID]
	b.guildsMu.Unlock()
	if !ok {
		return false
	}
	snap := eng.Snapshot()
	return snap.State == session.StateIdle && snap.QueueLen == 0
}

// fireIdleTimeout satisfies supervisor.FireFunc: submits the
// engine-internal disconnect, which bypasses the coordinator's rate
// limiter since requesterID is empty.
func (b *MusicBot) fireIdleTimeout(guildID string) {
	_ = b.coord.Submit(guildID, "", coordinator.PriorityCritical, session.Command{Kind: session.CmdExternalDisconnect})
}
