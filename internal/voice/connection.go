// Package voice owns the per-guild Discord voice connection and the
// player that paces decoded Opus frames onto it (C1's playback half —
// process.Runner produces artifacts, voice streams them).
package voice

import (
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	apperrors "github.com/nyxbot/voiceengine/internal/errors"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

var (
	// ErrNotConnected is returned by operations that require an active voice connection.
	ErrNotConnected = errors.New("voice: not connected")
	// ErrAlreadyPlaying is returned when Play is called while a stream is already active.
	ErrAlreadyPlaying = errors.New("voice: already playing")
)

// Connection wraps a discordgo voice connection for one guild.
type Connection struct {
	guildID   string
	channelID string
	vc        *discordgo.VoiceConnection
	logger    *logger.Logger
	mu        sync.RWMutex
}

// NewConnection creates an unconnected voice connection handle for guildID.
func NewConnection(guildID string, log *logger.Logger) *Connection {
	return &Connection{guildID: guildID, logger: log}
}

// Connect joins channelID, moving from any other channel first. Blocks
// up to 10s for the gateway to report the connection ready.
func (c *Connection) Connect(session *discordgo.Session, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc != nil && c.vc.Ready {
		if c.channelID == channelID {
			return nil
		}
		if err := c.disconnectLocked(); err != nil {
			c.logger.WithError(err).Warn("failed to disconnect before moving channel")
		}
	}

	vc, err := session.ChannelVoiceJoin(c.guildID, channelID, false, true)
	if err != nil {
		return apperrors.NewTypedError(apperrors.ErrVoiceConnectFailed, apperrors.CategorySession, "failed to join voice channel", map[string]any{"error": err.Error()})
	}

	deadline := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !vc.Ready {
		select {
		case <-deadline:
			vc.Disconnect()
			return apperrors.NewTypedError(apperrors.ErrVoiceConnectFailed, apperrors.CategorySession, "voice connection not ready after 10s", nil)
		case <-ticker.C:
		}
	}

	c.vc = vc
	c.channelID = channelID
	c.logger.WithField("channel", channelID).Info("connected to voice channel")
	return nil
}

// Disconnect leaves the current channel, if any.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked()
}

func (c *Connection) disconnectLocked() error {
	if c.vc == nil {
		return nil
	}
	err := c.vc.Disconnect()
	c.vc = nil
	c.channelID = ""
	return err
}

// IsConnected reports whether the gateway has confirmed readiness.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vc != nil && c.vc.Ready
}

// ChannelID returns the currently-joined channel, or "".
func (c *Connection) ChannelID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channelID
}

// Raw returns the underlying discordgo connection for frame sending.
func (c *Connection) Raw() *discordgo.VoiceConnection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vc
}

// Speaking toggles the speaking indicator.
func (c *Connection) Speaking(speaking bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vc == nil {
		return ErrNotConnected
	}
	return c.vc.Speaking(speaking)
}
