// Package session implements C5, the per-guild session engine: one
// execution context per guild owns a GuildSession exclusively, and
// every mutation to it happens inside that context in response to a
// command read off the guild's inbox.
package session

import (
	"time"

	"github.com/nyxbot/voiceengine/internal/domain"
)

// State is where a GuildSession sits in the playback lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateQuerying  State = "querying"
	StateLoading   State = "loading"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateDestroyed State = "destroyed"
)

// transitions enumerates the lifecycle's allowed edges, exposed through
// CanTransition. The coordinator (C6) does not consult it when gating
// commands; the engine's handlers set State directly.
var transitions = map[State]map[State]bool{
	StateIdle:     {StateQuerying: true, StateLoading: true, StateIdle: true, StateDestroyed: true},
	StateQuerying: {StateLoading: true, StateIdle: true, StateDestroyed: true},
	StateLoading:  {StatePlaying: true, StateIdle: true, StateDestroyed: true},
	StatePlaying:  {StatePaused: true, StateIdle: true, StateLoading: true, StateDestroyed: true},
	StatePaused:   {StatePlaying: true, StateIdle: true, StateLoading: true, StateDestroyed: true},
}

// CanTransition reports whether moving from 'from' to 'to' is one of
// the transition table's allowed edges.
func CanTransition(from, to State) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// GuildSession is the per-guild aggregate the engine owns exclusively.
// Reads from other goroutines (the UI coordinator) must go through
// Snapshot, never these fields directly.
type GuildSession struct {
	GuildID        string
	State          State
	VoiceChannelID string

	NowPlaying   *domain.SongRecord
	History      []*domain.SongRecord
	HistoryCap   int
	SearchQuery  string // set while Querying, for the UI's "Searching for X" line

	VolumePct    int
	Muted        bool
	JustShuffled bool

	LastError error
	CreatedAt time.Time
}

// NewGuildSession creates an idle session for guildID.
func NewGuildSession(guildID string, historyCap, defaultVolumePct int) *GuildSession {
	return &GuildSession{
		GuildID:    guildID,
		State:      StateIdle,
		HistoryCap: historyCap,
		VolumePct:  defaultVolumePct,
		CreatedAt:  time.Now(),
	}
}

// pushHistory appends to history, trimming from the front once HistoryCap
// is exceeded so queue.length+history.length stays bounded.
func (g *GuildSession) pushHistory(record *domain.SongRecord) {
	if record == nil {
		return
	}
	g.History = append(g.History, record)
	if g.HistoryCap > 0 && len(g.History) > g.HistoryCap {
		g.History = g.History[len(g.History)-g.HistoryCap:]
	}
}

// Snapshot is an immutable, UI-safe copy of a GuildSession at a point
// in time, plus the queue depth needed to render button disabled-states.
type Snapshot struct {
	GuildID        string
	State          State
	VoiceChannelID string
	NowPlaying     *domain.SongRecord
	QueueLen       int
	OverflowTotal  int
	SearchQuery    string
	VolumePct      int
	Muted          bool
	LastError      error
}

func (g *GuildSession) snapshot(queueLen, overflowTotal int) Snapshot {
	return Snapshot{
		GuildID:        g.GuildID,
		State:          g.State,
		VoiceChannelID: g.VoiceChannelID,
		NowPlaying:     g.NowPlaying,
		QueueLen:       queueLen,
		OverflowTotal:  overflowTotal,
		SearchQuery:    g.SearchQuery,
		VolumePct:      g.VolumePct,
		Muted:          g.Muted,
		LastError:      g.LastError,
	}
}
