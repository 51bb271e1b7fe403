package domain

import "time"

// MessageRole names the control surfaces a session keeps a durable
// reference to, so state transitions always edit the same message.
type MessageRole string

const (
	RolePlaybackControls MessageRole = "playback_controls"
	RoleQueueMessage      MessageRole = "queue_message"
	RoleErrorEmbed        MessageRole = "error_embed"
	RoleLoadingMessage    MessageRole = "loading_message"
)

// MessageRef is the durable (guildId, role) -> (channelId, messageId)
// pointer persisted by the message-reference manager (C7).
type MessageRef struct {
	GuildID   string
	Role      MessageRole
	ChannelID string
	MessageID string
	UpdatedAt time.Time
}
