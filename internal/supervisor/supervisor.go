// Package supervisor implements C9: the per-guild voice idle timer.
// Armed whenever a guild's player goes idle with an empty queue,
// cleared the moment that stops being true. On expiry it re-checks
// that the guild is still actually idle before tearing anything down,
// since "expiry" and "still idle" can race against a Play that landed
// just before the timer fired.
package supervisor

import (
	"sync"
	"time"

	"github.com/nyxbot/voiceengine/pkg/logger"
)

// pollInterval is how often an armed timer re-reads the guild's
// configured timeout, so a live settings change takes effect without
// needing to re-arm. Var rather than const so tests can shrink it.
var pollInterval = 10 * time.Second

// SettingsFunc returns the current idle-timeout for guildID, read
// fresh on every poll rather than cached at arm time.
type SettingsFunc func(guildID string) time.Duration

// SafetyCheckFunc reports whether guildID is still safe to tear down
// (i.e. still idle) at the moment the timer would fire.
type SafetyCheckFunc func(guildID string) bool

// FireFunc performs the actual teardown once a timer fires and the
// safety check passes.
type FireFunc func(guildID string)

// Supervisor owns one armable timer per guild.
type Supervisor struct {
	logger      *logger.Logger
	settings    SettingsFunc
	safetyCheck SafetyCheckFunc
	fire        FireFunc

	mu     sync.Mutex
	timers map[string]chan struct{}
}

// New creates a supervisor. settings, safetyCheck and fire are called
// from the supervisor's own per-guild goroutines, never concurrently
// for the same guild.
func New(log *logger.Logger, settings SettingsFunc, safetyCheck SafetyCheckFunc, fire FireFunc) *Supervisor {
	return &Supervisor{
		logger:      log,
		settings:    settings,
		safetyCheck: safetyCheck,
		fire:        fire,
		timers:      make(map[string]chan struct{}),
	}
}

// Arm (re)starts guildID's idle timer. Calling Arm on an already-armed
// guild restarts the clock from now.
func (s *Supervisor) Arm(guildID string) {
	s.mu.Lock()
	s.clearLocked(guildID)
	stop := make(chan struct{})
	s.timers[guildID] = stop
	s.mu.Unlock()

	go s.watch(guildID, stop)
}

// Clear cancels guildID's idle timer, if any. Called when the queue
// becomes non-empty, playback resumes, the guild disconnects, or an
// admin resets the session.
func (s *Supervisor) Clear(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(guildID)
}

func (s *Supervisor) clearLocked(guildID string) {
	if stop, ok := s.timers[guildID]; ok {
		close(stop)
		delete(s.timers, guildID)
	}
}

func (s *Supervisor) watch(guildID string, stop chan struct{}) {
	armedAt := time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			timeout := s.settings(guildID)
			if timeout <= 0 || time.Since(armedAt) < timeout {
				continue
			}

			s.mu.Lock()
			_, stillArmed := s.timers[guildID]
			if stillArmed {
				delete(s.timers, guildID)
			}
			s.mu.Unlock()
			if !stillArmed {
				return
			}

			if !s.safetyCheck(guildID) {
				s.logger.WithField("guild", guildID).Debug("idle timer fired but guild is no longer idle, skipping teardown")
				return
			}
			s.fire(guildID)
			return
		}
	}
}
