package session

import (
	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/domain/valueobjects"
)

// CommandKind discriminates the payload carried by a Command.
type CommandKind int

const (
	CmdPlay CommandKind = iota
	CmdSkip
	CmdStop
	CmdPause
	CmdResume
	CmdShuffle
	CmdSetVolume
	CmdSetMuted
	CmdAdvanceDueToEnd
	CmdExternalDisconnect
	CmdAdminReset
)

// Command is one entry on a guild's command inbox. Only the fields
// relevant to Kind are populated.
type Command struct {
	Kind CommandKind

	// CmdPlay
	Intent         PlayRequest
	VoiceChannelID string

	// CmdSetVolume
	VolumePct int

	// CmdSetMuted
	Muted bool

	// Done, if non-nil, is closed once the engine has processed this
	// command, so a caller that needs to block for the result can.
	Done chan error
}

// PlayRequest is the resolver input plus where to connect, attached to
// a CmdPlay command. Kind is resolved by resolver.ClassifyIntent
// before the command is built, since that classification is pure and
// the dispatcher (C10) can log/gate on it before it ever hits the
// engine's inbox.
type PlayRequest struct {
	RawQuery  string
	Kind      valueobjects.PlayIntentKind
	Requester domain.Requester
}

func (c *Command) reply(err error) {
	if c.Done != nil {
		c.Done <- err
		close(c.Done)
	}
}
