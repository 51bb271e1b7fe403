// Package messageref implements C7: a durable (guildId, role) ->
// (channelId, messageId) map, read through an in-memory cache with a
// persistent store behind it, plus the edit-vs-resend decision that
// keeps a guild's pinned control message alive across message deletion
// and webhook expiry.
package messageref

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/nyxbot/voiceengine/internal/domain"
	apperrors "github.com/nyxbot/voiceengine/internal/errors"
	"github.com/nyxbot/voiceengine/internal/ui"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

// Store persists MessageRefs. internal/database implements this
// against the message_refs table.
type Store interface {
	Upsert(ctx context.Context, ref domain.MessageRef) error
	Get(ctx context.Context, guildID string, role domain.MessageRole) (*domain.MessageRef, error)
	Delete(ctx context.Context, guildID string, role domain.MessageRole) error
}

// Manager is the message-reference manager. Safe for concurrent use
// across guilds; per-guild operations are serialized by a single
// RWMutex since ref lookups are cheap and rarely contended across the
// whole process.
type Manager struct {
	session *discordgo.Session
	store   Store
	logger  *logger.Logger

	mu    sync.RWMutex
	cache map[string]domain.MessageRef // key: guildID + ":" + role
}

// New creates a manager. store may be nil, in which case refs are kept
// in-memory only (useful for tests and for a bot running without a
// database configured).
func New(session *discordgo.Session, store Store, log *logger.Logger) *Manager {
	return &Manager{
		session: session,
		store:   store,
		logger:  log,
		cache:   make(map[string]domain.MessageRef),
	}
}

func cacheKey(guildID string, role domain.MessageRole) string {
	return guildID + ":" + string(role)
}

// Get reads a ref, checking the in-memory cache before falling back to
// the store.
func (m *Manager) Get(ctx context.Context, guildID string, role domain.MessageRole) (*domain.MessageRef, bool) {
	m.mu.RLock()
	ref, ok := m.cache[cacheKey(guildID, role)]
	m.mu.RUnlock()
	if ok {
		return &ref, true
	}

	if m.store == nil {
		return nil, false
	}
	stored, err := m.store.Get(ctx, guildID, role)
	if err != nil || stored == nil {
		return nil, false
	}

	m.mu.Lock()
	m.cache[cacheKey(guildID, role)] = *stored
	m.mu.Unlock()
	return stored, true
}

// set writes through: the in-memory cache always updates, and a store
// failure is logged but does not undo the in-memory write — a stale
// durable row is recoverable, a silently dropped in-memory ref is not
// (the next edit would just fail again).
func (m *Manager) set(ctx context.Context, ref domain.MessageRef) {
	m.mu.Lock()
	m.cache[cacheKey(ref.GuildID, ref.Role)] = ref
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	if err := m.store.Upsert(ctx, ref); err != nil {
		m.logger.WithError(err).WithField("guild", ref.GuildID).WithField("role", string(ref.Role)).Warn("failed to persist message reference")
	}
}

// Clear removes a guild's ref for role, or every role for the guild
// when role is empty.
func (m *Manager) Clear(ctx context.Context, guildID string, role domain.MessageRole) {
	m.mu.Lock()
	if role == "" {
		for key := range m.cache {
			if len(key) > len(guildID) && key[:len(guildID)] == guildID && key[len(guildID)] == ':' {
				delete(m.cache, key)
			}
		}
	} else {
		delete(m.cache, cacheKey(guildID, role))
	}
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	roles := []domain.MessageRole{role}
	if role == "" {
		roles = []domain.MessageRole{domain.RolePlaybackControls, domain.RoleQueueMessage, domain.RoleErrorEmbed, domain.RoleLoadingMessage}
	}
	for _, r := range roles {
		if err := m.store.Delete(ctx, guildID, r); err != nil {
			m.logger.WithError(err).WithField("guild", guildID).Warn("failed to delete message reference")
		}
	}
}

// Validate probes whether ref still points at an editable message,
// distinguishing "edit in place" from "send new and store" for the
// caller.
func (m *Manager) Validate(ctx context.Context, ref domain.MessageRef) bool {
	if ref.ChannelID == "" || ref.MessageID == "" {
		return false
	}
	_, err := m.session.ChannelMessage(ref.ChannelID, ref.MessageID)
	if err != nil {
		if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
				return false
			}
		}
		return false
	}
	return true
}

// Publish edits the guild's playback_controls message in place when
// the ref is still valid, or sends a fresh message and stores the new
// ref otherwise.
func (m *Manager) Publish(ctx context.Context, guildID, fallbackChannelID string, payload ui.MessagePayload) error {
	role := domain.RolePlaybackControls

	if ref, ok := m.Get(ctx, guildID, role); ok && m.Validate(ctx, *ref) {
		embeds := []*discordgo.MessageEmbed{payload.Embed}
		_, err := m.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			ID:         ref.MessageID,
			Channel:    ref.ChannelID,
			Embeds:     &embeds,
			Components: &payload.Components,
		})
		if err == nil {
			return nil
		}
		m.logger.WithError(err).WithField("guild", guildID).Warn("edit failed, sending a fresh message")
	}

	if fallbackChannelID == "" {
		return apperrors.NewTypedError(apperrors.ErrChannelNotFound, apperrors.CategorySession, "no channel to post the control message in", nil)
	}

	msg, err := m.session.ChannelMessageSendComplex(fallbackChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{payload.Embed},
		Components: payload.Components,
	})
	if err != nil {
		return apperrors.NewTypedError(apperrors.ErrChannelNotFound, apperrors.CategorySession, "failed to send control message", map[string]any{"error": err.Error()})
	}

	m.set(ctx, domain.MessageRef{GuildID: guildID, Role: role, ChannelID: fallbackChannelID, MessageID: msg.ID})
	return nil
}
