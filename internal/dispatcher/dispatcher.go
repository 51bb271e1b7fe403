// Package dispatcher implements C10: it classifies inbound Discord
// interactions (application command / message component / modal
// submit), maps each to a registered handler, enforces the
// settings-cache permission predicate per surface, and turns the
// result into commands submitted through the state coordinator (C6).
// Signature verification of the inbound request is the gateway
// client's concern, not this package's — discordgo authenticates the
// websocket session once at connect time and this dispatcher only
// ever sees already-trusted events.
package dispatcher

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/nyxbot/voiceengine/internal/coordinator"
	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/resolver"
	"github.com/nyxbot/voiceengine/internal/session"
	"github.com/nyxbot/voiceengine/internal/settingscache"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

// Surface identifies which of GuildSettings' three access predicates
// gates a given interaction.
type Surface int

const (
	SurfaceSlashCommand Surface = iota
	SurfaceComponent
	SurfaceBotControl
)

// ackTimeout is the platform's mandated acknowledgement window; every
// handler either replies or defers within this budget.
const ackTimeout = 3 * time.Second

// CommandHandler answers a slash-command interaction.
type CommandHandler func(ctx context.Context, d *Dispatcher, i *discordgo.InteractionCreate) error

// ComponentHandler answers a message-component (button/select) interaction.
type ComponentHandler func(ctx context.Context, d *Dispatcher, i *discordgo.InteractionCreate, parts []string) error

// registeredCommand pairs a handler with the surface that gates it.
type registeredCommand struct {
	surface Surface
	handler CommandHandler
}

type registeredComponent struct {
	surface Surface
	handler ComponentHandler
}

// Dispatcher routes verified interactions into the engine/coordinator
// pipeline.
type Dispatcher struct {
	session     *discordgo.Session
	coordinator *coordinator.Coordinator
	settings    *settingscache.Cache
	logger      *logger.Logger

	commands   map[string]registeredCommand
	components map[string]registeredComponent
	modals     map[string]CommandHandler
}

// New creates a dispatcher with empty routing tables; callers register
// handlers with RegisterCommand/RegisterComponent/RegisterModal before
// wiring HandleInteraction to the session.
func New(sess *discordgo.Session, coord *coordinator.Coordinator, settings *settingscache.Cache, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		session:     sess,
		coordinator: coord,
		settings:    settings,
		logger:      log,
		commands:    make(map[string]registeredCommand),
		components:  make(map[string]registeredComponent),
		modals:      make(map[string]CommandHandler),
	}
}

// RegisterCommand maps an application command name to its handler.
func (d *Dispatcher) RegisterCommand(name string, surface Surface, handler CommandHandler) {
	d.commands[name] = registeredCommand{surface: surface, handler: handler}
}

// RegisterComponent maps a custom_id prefix (the segment before the
// first ":") to its handler. The full custom_id is split on ":" and
// passed to the handler as parts.
func (d *Dispatcher) RegisterComponent(prefix string, surface Surface, handler ComponentHandler) {
	d.components[prefix] = registeredComponent{surface: surface, handler: handler}
}

// RegisterModal maps a modal custom_id to its handler.
func (d *Dispatcher) RegisterModal(customID string, handler CommandHandler) {
	d.modals[customID] = handler
}

// HandleInteraction is registered once with discordgo.Session.AddHandler
// and fans every InteractionCreate event out to the right table.
func (d *Dispatcher) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("panic", r).Error("recovered from panic in interaction dispatch")
			_ = d.replyEphemeral(i, "an internal error occurred")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionPing:
		_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
	case discordgo.InteractionApplicationCommand:
		d.dispatchCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		d.dispatchComponent(ctx, i)
	case discordgo.InteractionModalSubmit:
		d.dispatchModal(ctx, i)
	}
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name
	reg, ok := d.commands[name]
	if !ok {
		_ = d.replyEphemeral(i, "unknown interaction")
		return
	}
	if !d.allowed(ctx, i, reg.surface) {
		_ = d.replyEphemeral(i, "you don't have permission to use this")
		return
	}
	if err := reg.handler(ctx, d, i); err != nil {
		d.logger.WithError(err).WithField("command", name).Error("command handler failed")
	}
}

func (d *Dispatcher) dispatchComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	parts := strings.Split(customID, ":")
	reg, ok := d.components[parts[0]]
	if !ok {
		_ = d.replyEphemeral(i, "unknown interaction")
		return
	}
	if !d.allowed(ctx, i, reg.surface) {
		_ = d.replyEphemeral(i, "you don't have permission to use this")
		return
	}
	if err := reg.handler(ctx, d, i, parts); err != nil {
		d.logger.WithError(err).WithField("custom_id", customID).Error("component handler failed")
	}
}

func (d *Dispatcher) dispatchModal(ctx context.Context, i *discordgo.InteractionCreate) {
	customID := i.ModalSubmitData().CustomID
	handler, ok := d.modals[customID]
	if !ok {
		_ = d.replyEphemeral(i, "unknown interaction")
		return
	}
	if err := handler(ctx, d, i); err != nil {
		d.logger.WithError(err).WithField("custom_id", customID).Error("modal handler failed")
	}
}

// allowed evaluates the settings-cache predicate for the given
// surface; a settings load failure fails open to "everyone", since a
// transient store error shouldn't lock every guild out of its bot.
func (d *Dispatcher) allowed(ctx context.Context, i *discordgo.InteractionCreate, surface Surface) bool {
	settings, err := d.settings.Get(ctx, i.GuildID)
	if err != nil {
		d.logger.WithError(err).WithField("guild", i.GuildID).Warn("settings load failed during permission check, allowing")
		return true
	}

	isOwner := false
	if guild, err := d.session.State.Guild(i.GuildID); err == nil {
		isOwner = guild.OwnerID == i.Member.User.ID
	}
	roleIDs := i.Member.Roles

	access := settings.SlashCommands
	switch surface {
	case SurfaceComponent:
		access = settings.Components
	case SurfaceBotControl:
		access = settings.BotControls
	}
	return access.Allows(isOwner, roleIDs)
}

// SubmitPlay builds a PlayRequest from a raw query and submits a
// CmdPlay through the coordinator, immediately acknowledging the
// interaction with a deferred response so the 3s budget is met while
// resolution happens in the background. The pinned playback_controls
// message picks up the resulting Querying state once the engine
// publishes its next snapshot.
func (d *Dispatcher) SubmitPlay(i *discordgo.InteractionCreate, rawQuery, voiceChannelID string, priority coordinator.Priority) error {
	if err := d.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		return err
	}

	requester := domain.Requester{
		UserID:      i.Member.User.ID,
		DisplayName: i.Member.User.Username,
		AvatarRef:   i.Member.User.Avatar,
	}
	intent := session.PlayRequest{
		RawQuery:  rawQuery,
		Kind:      resolver.ClassifyIntent(rawQuery),
		Requester: requester,
	}

	cmd := session.Command{
		Kind:           session.CmdPlay,
		Intent:         intent,
		VoiceChannelID: voiceChannelID,
	}
	return d.coordinator.Submit(i.GuildID, requester.UserID, priority, cmd)
}

// SubmitTransport submits a transport-control command (skip, stop,
// pause, resume, shuffle) on behalf of the interacting user.
func (d *Dispatcher) SubmitTransport(i *discordgo.InteractionCreate, kind session.CommandKind, priority coordinator.Priority) error {
	return d.coordinator.Submit(i.GuildID, i.Member.User.ID, priority, session.Command{Kind: kind})
}

func (d *Dispatcher) replyEphemeral(i *discordgo.InteractionCreate, message string) error {
	return d.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: message,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}
