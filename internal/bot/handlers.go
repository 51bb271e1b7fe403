package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/nyxbot/voiceengine/internal/coordinator"
	"github.com/nyxbot/voiceengine/internal/dispatcher"
	apperrors "github.com/nyxbot/voiceengine/internal/errors"
	"github.com/nyxbot/voiceengine/internal/queue"
	"github.com/nyxbot/voiceengine/internal/session"
)

// slashCommands is the application command set registered on Start,
// grounded on the teacher's own command list but trimmed to the
// transport/search surface the engine actually exposes (playlist
// management stays on the database-backed repository, unchanged).
var slashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "play",
		Description: "Play a song, URL, or playlist",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "YouTube/Spotify URL or search query",
				Required:    true,
			},
		},
	},
	{Name: "pause", Description: "Pause the current song"},
	{Name: "resume", Description: "Resume playback"},
	{Name: "skip", Description: "Skip the current song"},
	{Name: "stop", Description: "Stop playback and clear the queue"},
	{Name: "shuffle", Description: "Shuffle the queue"},
	{Name: "playlists", Description: "List this server's saved playlists"},
}

// registerHandlers wires every slash command and playback_controls
// button into the dispatcher's routing tables.
func registerHandlers(b *MusicBot, overflowStore queue.OverflowStore) {
	b.dispatch.RegisterCommand("play", dispatcher.SurfaceSlashCommand, b.handlePlay(overflowStore))
	b.dispatch.RegisterCommand("pause", dispatcher.SurfaceSlashCommand, b.transportHandler(session.CmdPause))
	b.dispatch.RegisterCommand("resume", dispatcher.SurfaceSlashCommand, b.transportHandler(session.CmdResume))
	b.dispatch.RegisterCommand("skip", dispatcher.SurfaceSlashCommand, b.transportHandler(session.CmdSkip))
	b.dispatch.RegisterCommand("stop", dispatcher.SurfaceSlashCommand, b.transportHandler(session.CmdStop))
	b.dispatch.RegisterCommand("shuffle", dispatcher.SurfaceSlashCommand, b.transportHandler(session.CmdShuffle))

	b.dispatch.RegisterComponent("playback", dispatcher.SurfaceComponent, b.handlePlaybackButton())
	b.dispatch.RegisterCommand("playlists", dispatcher.SurfaceSlashCommand, b.handleListPlaylists())
}

// handleListPlaylists reads the guild's saved_playlists rows through
// the database-backed playlist repository. Unavailable (ephemeral
// reply) when the bot is running without a database.
func (b *MusicBot) handleListPlaylists() dispatcher.CommandHandler {
	return func(ctx context.Context, d *dispatcher.Dispatcher, i *discordgo.InteractionCreate) error {
		if b.playlists == nil {
			return b.respondEphemeral(i, "no database configured, so there are no saved playlists")
		}
		names, err := b.playlists.List(i.GuildID)
		if err != nil {
			return b.respondEphemeral(i, "failed to list playlists")
		}
		if len(names) == 0 {
			return b.respondEphemeral(i, "no saved playlists yet")
		}
		msg := "Saved playlists:\n"
		for _, n := range names {
			msg += "• " + n + "\n"
		}
		return b.respondEphemeral(i, msg)
	}
}

// handlePlay resolves the user's current voice channel, ensures the
// guild's engine exists, and forwards the query to the coordinator.
// SubmitPlay itself sends the deferred acknowledgement.
func (b *MusicBot) handlePlay(overflowStore queue.OverflowStore) dispatcher.CommandHandler {
	return func(ctx context.Context, d *dispatcher.Dispatcher, i *discordgo.InteractionCreate) error {
		b.setChannel(i.GuildID, i.ChannelID)

		channelID, err := getUserVoiceChannel(b.session, i.GuildID, i.Member.User.ID)
		if err != nil {
			return b.respondEphemeral(i, "you must be in a voice channel to use /play")
		}

		b.ensureEngine(i.GuildID, overflowStore)

		query := i.ApplicationCommandData().Options[0].StringValue()
		if err := d.SubmitPlay(i, query, channelID, coordinator.PriorityNormal); err != nil {
			// SubmitPlay has already sent the deferred ack by this
			// point, so the failure has to go out as a follow-up.
			return b.followUpEphemeral(i, apperrors.GetUserMessage(err))
		}
		return nil
	}
}

// transportHandler builds a CommandHandler for a bare transport
// command (skip/stop/pause/resume/shuffle) triggered by slash command.
// The resulting state change reaches the user through the pinned
// playback_controls message, so this only needs to ack the interaction.
func (b *MusicBot) transportHandler(kind session.CommandKind) dispatcher.CommandHandler {
	return func(ctx context.Context, d *dispatcher.Dispatcher, i *discordgo.InteractionCreate) error {
		if err := d.SubmitTransport(i, kind, coordinator.PriorityHigh); err != nil {
			return b.respondEphemeral(i, apperrors.GetUserMessage(err))
		}
		return b.respondEphemeral(i, "done")
	}
}

// handlePlaybackButton maps the playback_controls message's button
// custom_ids ("playback:<action>") onto the same transport commands.
func (b *MusicBot) handlePlaybackButton() dispatcher.ComponentHandler {
	actions := map[string]session.CommandKind{
		"pause":   session.CmdPause,
		"resume":  session.CmdResume,
		"skip":    session.CmdSkip,
		"stop":    session.CmdStop,
		"shuffle": session.CmdShuffle,
	}
	return func(ctx context.Context, d *dispatcher.Dispatcher, i *discordgo.InteractionCreate, parts []string) error {
		if len(parts) < 2 {
			return b.respondEphemeral(i, "unrecognized control")
		}
		kind, ok := actions[parts[1]]
		if !ok {
			return b.respondEphemeral(i, "unrecognized control")
		}
		if err := d.SubmitTransport(i, kind, coordinator.PriorityHigh); err != nil {
			return b.respondEphemeral(i, apperrors.GetUserMessage(err))
		}
		return b.acknowledgeComponent(i)
	}
}

func getUserVoiceChannel(s *discordgo.Session, guildID, userID string) (string, error) {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return "", err
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, nil
		}
	}
	return "", fmt.Errorf("user not in a voice channel")
}

func (b *MusicBot) respondEphemeral(i *discordgo.InteractionCreate, message string) error {
	return b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: message,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *MusicBot) followUpEphemeral(i *discordgo.InteractionCreate, message string) error {
	_, err := b.session.FollowupMessageCreate(i.Interaction, false, &discordgo.WebhookParams{
		Content: message,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	return err
}

// acknowledgeComponent defers a button click without sending a new
// message — the pinned playback_controls message itself is edited in
// place once the engine's resulting snapshot flows through onUIState.
func (b *MusicBot) acknowledgeComponent(i *discordgo.InteractionCreate) error {
	return b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}
