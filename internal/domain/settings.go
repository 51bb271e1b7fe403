package domain

// AccessLevel controls which users may use a given command surface.
type AccessLevel string

const (
	AccessServerOwner AccessLevel = "server_owner"
	AccessRoles       AccessLevel = "roles"
	AccessEveryone    AccessLevel = "everyone"
)

// SurfaceAccess pairs an access level with the role ids it applies to
// when AccessLevel is AccessRoles.
type SurfaceAccess struct {
	Level   AccessLevel
	RoleIDs []string
}

// GuildSettings is the persisted per-guild configuration row.
type GuildSettings struct {
	GuildID          string
	VoiceChannelID   string
	VoiceTimeoutMin  int
	QueueDisplayMode string // "chat" | "menu"
	MaxDurationSec   int    // 0 = unlimited
	SlashCommands    SurfaceAccess
	Components       SurfaceAccess
	BotControls      SurfaceAccess
}

// DefaultSettings returns the settings row created when a guild is
// first seen, per the spec's documented defaults.
func DefaultSettings(guildID string) *GuildSettings {
	return &GuildSettings{
		GuildID:          guildID,
		VoiceTimeoutMin:  5,
		QueueDisplayMode: "chat",
		MaxDurationSec:   900,
		SlashCommands:    SurfaceAccess{Level: AccessEveryone},
		Components:       SurfaceAccess{Level: AccessEveryone},
		BotControls:      SurfaceAccess{Level: AccessEveryone},
	}
}

// Allows evaluates whether a user holding roleIDs is permitted to use
// the given surface, per the boolean predicate the core calls into
// (permission lookup itself is an external collaborator; this is the
// pure evaluation of an already-fetched SurfaceAccess).
func (a SurfaceAccess) Allows(isOwner bool, userRoleIDs []string) bool {
	switch a.Level {
	case AccessEveryone:
		return true
	case AccessServerOwner:
		return isOwner
	case AccessRoles:
		if isOwner {
			return true
		}
		have := make(map[string]bool, len(userRoleIDs))
		for _, r := range userRoleIDs {
			have[r] = true
		}
		for _, r := range a.RoleIDs {
			if have[r] {
				return true
			}
		}
		return false
	default:
		return false
	}
}
