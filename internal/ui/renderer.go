// Package ui implements C8: a pure mapping from a session Snapshot to
// the chat platform's message payload, with no side effects and no
// knowledge of how the payload gets sent or edited (that's C7).
package ui

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/nyxbot/voiceengine/internal/session"
)

// Kind is the tagged variant a Snapshot renders as.
type Kind int

const (
	KindQuerying Kind = iota
	KindLoading
	KindPlaying
	KindPaused
	KindIdle
	KindError
)

const (
	colorPrimary = 0x5865F2
	colorSuccess = 0x57F287
	colorWarning = 0xFEE75C
	colorError   = 0xED4245
	colorInfo    = 0x3498DB
)

// loadingGIFs is the small fixed set the spec allows cycling through
// while a track resolves; picked deterministically off the guild id so
// renders stay pure (no randomness, no clock).
var loadingGIFs = []string{
	"https://media.tenor.com/search-spin.gif",
	"https://media.tenor.com/vinyl-spin.gif",
	"https://media.tenor.com/loading-notes.gif",
}

// MessagePayload is what C7 sends or edits the pinned
// playback_controls message with.
type MessagePayload struct {
	Embed      *discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

// Render maps a Snapshot to its MessagePayload. Pure: same Snapshot in,
// byte-identical payload out.
func Render(snap session.Snapshot) MessagePayload {
	kind := classify(snap)
	embed := buildEmbed(kind, snap)
	components := buildButtons(kind, snap)
	return MessagePayload{Embed: embed, Components: components}
}

func classify(snap session.Snapshot) Kind {
	if snap.LastError != nil {
		return KindError
	}
	switch snap.State {
	case session.StateQuerying:
		return KindQuerying
	case session.StateLoading:
		return KindLoading
	case session.StatePlaying:
		return KindPlaying
	case session.StatePaused:
		return KindPaused
	default:
		return KindIdle
	}
}

func buildEmbed(kind Kind, snap session.Snapshot) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Color: colorPrimary}

	switch kind {
	case KindQuerying:
		embed.Color = colorInfo
		embed.Title = "Searching"
		embed.Description = fmt.Sprintf("Looking for **%s**...", snap.SearchQuery)
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: loadingGIF(snap.GuildID)}
	case KindLoading:
		embed.Color = colorInfo
		embed.Title = "Loading"
		embed.Description = "Preparing the next track..."
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: loadingGIF(snap.GuildID)}
	case KindPlaying, KindPaused:
		embed.Color = colorSuccess
		if kind == KindPaused {
			embed.Color = colorWarning
		}
		title := "Nothing playing"
		duration := "00:00"
		if snap.NowPlaying != nil {
			title = snap.NowPlaying.DisplayName()
			duration = snap.NowPlaying.DurationFormatted()
			if snap.NowPlaying.ThumbnailURL != "" {
				embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: snap.NowPlaying.ThumbnailURL}
			}
		}
		status := "Now Playing"
		if kind == KindPaused {
			status = "Paused"
		}
		embed.Title = status
		embed.Description = title
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "Duration", Value: duration, Inline: true},
			&discordgo.MessageEmbedField{Name: "Volume", Value: volumeBar(snap.VolumePct), Inline: true},
			&discordgo.MessageEmbedField{Name: "Up Next", Value: queueSummary(snap), Inline: false},
		)
	case KindError:
		embed.Color = colorError
		embed.Title = "Something went wrong"
		embed.Description = snap.LastError.Error()
	default: // KindIdle
		embed.Color = colorPrimary
		embed.Title = "Idle"
		if snap.VoiceChannelID != "" {
			embed.Description = "Connected and waiting. Use /play to queue a song."
		} else {
			embed.Description = "Not connected to a voice channel."
		}
	}

	return embed
}

// volumeBar renders a 10-block proportional bar over the 0-100 range.
func volumeBar(volumePct int) string {
	pct := volumePct
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct / 10
	var b strings.Builder
	for i := 0; i < 10; i++ {
		if i < filled {
			b.WriteRune('█')
		} else {
			b.WriteRune('░')
		}
	}
	fmt.Fprintf(&b, " %d%%", volumePct)
	return b.String()
}

func queueSummary(snap session.Snapshot) string {
	if snap.QueueLen == 0 {
		return "Nothing queued"
	}
	if snap.OverflowTotal > snap.QueueLen {
		return fmt.Sprintf("%d tracks (%d more in overflow)", snap.QueueLen, snap.OverflowTotal-snap.QueueLen)
	}
	return fmt.Sprintf("%d tracks", snap.QueueLen)
}

func loadingGIF(guildID string) string {
	if len(loadingGIFs) == 0 {
		return ""
	}
	sum := 0
	for _, r := range guildID {
		sum += int(r)
	}
	return loadingGIFs[sum%len(loadingGIFs)]
}

// buildButtons templates the control row per variant: Skip/Stop need
// active audio, Shuffle needs at least two queued tracks, and
// Play/Pause flip label and style with Paused.
func buildButtons(kind Kind, snap session.Snapshot) []discordgo.MessageComponent {
	hasActiveAudio := kind == KindPlaying || kind == KindPaused
	playPauseLabel := "Pause"
	playPauseStyle := discordgo.PrimaryButton
	playPauseID := "playback:pause"
	if kind == KindPaused {
		playPauseLabel = "Resume"
		playPauseStyle = discordgo.SuccessButton
		playPauseID = "playback:resume"
	}

	buttons := []discordgo.MessageComponent{
		discordgo.Button{
			Label:    playPauseLabel,
			Style:    playPauseStyle,
			CustomID: playPauseID,
			Disabled: !hasActiveAudio,
		},
		discordgo.Button{
			Label:    "Skip",
			Style:    discordgo.SecondaryButton,
			CustomID: "playback:skip",
			Disabled: !hasActiveAudio,
		},
		discordgo.Button{
			Label:    "Stop",
			Style:    discordgo.DangerButton,
			CustomID: "playback:stop",
			Disabled: !hasActiveAudio,
		},
		discordgo.Button{
			Label:    "Shuffle",
			Style:    discordgo.SecondaryButton,
			CustomID: "playback:shuffle",
			Disabled: snap.QueueLen < 2,
		},
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: buttons},
	}
}
