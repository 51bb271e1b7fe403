// Package coordinator implements C6: the cross-cutting policy layer
// wrapped around the session engine. It does not own playback state
// itself (the engine's GuildSession already serializes every mutation
// through its own inbox) — it decides whether an incoming command gets
// forwarded to that inbox now, deferred, or rejected, and it re-emits
// the engine's snapshots as UI update events once a command lands.
package coordinator

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/nyxbot/voiceengine/internal/errors"
	"github.com/nyxbot/voiceengine/internal/session"
	"github.com/nyxbot/voiceengine/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Priority ranks a command's right to preempt another guild's
// in-progress state lock. Lower numeric value wins.
type Priority int

const (
	PriorityCritical Priority = iota // shutdown/reset
	PriorityHigh                     // admin skip/stop
	PriorityNormal                   // regular play/pause
	PriorityLow                      // background
)

const (
	deferredCap     = 16
	deferredTTL     = 60 * time.Second
	rateLimitWindow = 10 * time.Second
	rateLimitMax    = 10
	lockTTL         = 5 * time.Second
)

// lockEntry is the {priority, requesterId, since} record held per
// guild; the session's state is not tracked here.
type lockEntry struct {
	priority    Priority
	requesterID string
	since       time.Time
}

func (l *lockEntry) expired(now time.Time) bool {
	return now.Sub(l.since) > lockTTL
}

// deferredEntry is a command a lower-priority caller tried to submit
// while a higher-priority one held the lock; replayed once the holder
// releases or its TTL lapses.
type deferredEntry struct {
	priority    Priority
	requesterID string
	cmd         session.Command
	enqueuedAt  time.Time
}

// engineHandle is what the coordinator needs from a registered guild:
// somewhere to forward accepted commands and a way to hear about
// resulting snapshots.
type engineHandle struct {
	submit func(session.Command)
}

// Coordinator gates commands bound for per-guild engines behind state
// locks, a bounded deferred-change queue, and a per-user rate limiter,
// then fans the engine's resulting snapshots out to whatever the
// caller wired up as the UI/message-ref update path.
type Coordinator struct {
	logger *logger.Logger

	mu       sync.Mutex
	engines  map[string]*engineHandle
	locks    map[string]*lockEntry
	deferred map[string][]*deferredEntry

	rlMu   sync.Mutex
	rlHits map[string][]time.Time // key: guildID + ":" + userID

	uiMu      sync.RWMutex
	onUIState func(guildID string, snap session.Snapshot)

	stop chan struct{}
}

// New creates a coordinator. Call Run to start its periodic sweep.
func New(log *logger.Logger) *Coordinator {
	return &Coordinator{
		logger:   log,
		engines:  make(map[string]*engineHandle),
		locks:    make(map[string]*lockEntry),
		deferred: make(map[string][]*deferredEntry),
		rlHits:   make(map[string][]time.Time),
		stop:     make(chan struct{}),
	}
}

// OnUIState registers the callback invoked after every accepted
// transition with a fresh Snapshot, so the caller can drive C8 (render)
// and C7 (edit the pinned message) from one place.
func (c *Coordinator) OnUIState(fn func(guildID string, snap session.Snapshot)) {
	c.uiMu.Lock()
	defer c.uiMu.Unlock()
	c.onUIState = fn
}

// RegisterEngine wires a guild's engine into the coordinator: accepted
// commands are forwarded to it, and its snapshots are republished
// through OnUIState.
func (c *Coordinator) RegisterEngine(guildID string, eng *session.Engine) {
	eng.OnSnapshot(func(snap session.Snapshot) {
		c.uiMu.RLock()
		fn := c.onUIState
		c.uiMu.RUnlock()
		if fn != nil {
			fn(guildID, snap)
		}
	})

	c.mu.Lock()
	c.engines[guildID] = &engineHandle{submit: eng.Submit}
	c.mu.Unlock()
}

// UnregisterEngine drops a guild's registration (e.g. after Destroy),
// along with any lock and deferred entries it was holding.
func (c *Coordinator) UnregisterEngine(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.engines, guildID)
	delete(c.locks, guildID)
	delete(c.deferred, guildID)
}

// Submit is the gate: rate-limits user-attributable commands, checks
// the guild's state lock for preemption, and either forwards the
// command immediately, defers it, or rejects it with a typed error.
// requesterID is empty for engine-internal submissions (AdvanceDueToEnd,
// supervisor-driven Destroy), which bypass the rate limiter per the
// spec's "engine-internal transitions bypass the limit" rule.
func (c *Coordinator) Submit(guildID, requesterID string, priority Priority, cmd session.Command) error {
	if requesterID != "" {
		if !c.allowRate(guildID, requesterID) {
			return apperrors.NewTypedError(apperrors.ErrRateLimited, apperrors.CategoryNetwork, "too many requests, slow down", map[string]any{"retryAfterSec": int(rateLimitWindow.Seconds())})
		}
	}

	c.mu.Lock()
	handle, ok := c.engines[guildID]
	if !ok {
		c.mu.Unlock()
		return apperrors.NewTypedError(apperrors.ErrNoActiveSession, apperrors.CategorySession, "no session for this server", nil)
	}

	now := time.Now()
	held, hasLock := c.locks[guildID]
	if hasLock && !held.expired(now) && priority > held.priority {
		// Lower-priority than the current holder: defer rather than
		// preempt.
		c.deferLocked(guildID, priority, requesterID, cmd, now)
		c.mu.Unlock()
		return nil
	}

	c.locks[guildID] = &lockEntry{priority: priority, requesterID: requesterID, since: now}
	submit := handle.submit
	c.mu.Unlock()

	submit(cmd)
	return nil
}

// deferLocked appends to guildID's bounded deferred queue, dropping the
// oldest entry to make room rather than refusing the newest one — the
// newest request is the one most likely to still be relevant by the
// time the lock clears. Caller must hold c.mu.
func (c *Coordinator) deferLocked(guildID string, priority Priority, requesterID string, cmd session.Command, now time.Time) {
	q := c.deferred[guildID]
	if len(q) >= deferredCap {
		q = q[1:]
	}
	q = append(q, &deferredEntry{priority: priority, requesterID: requesterID, cmd: cmd, enqueuedAt: now})
	c.deferred[guildID] = q
}

// allowRate applies a 10-events-per-10s sliding window per (guild,user).
func (c *Coordinator) allowRate(guildID, userID string) bool {
	key := guildID + ":" + userID
	now := time.Now()
	cutoff := now.Add(-rateLimitWindow)

	c.rlMu.Lock()
	defer c.rlMu.Unlock()

	hits := c.rlHits[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rateLimitMax {
		c.rlHits[key] = kept
		return false
	}
	c.rlHits[key] = append(kept, now)
	return true
}

// Run starts the periodic sweep (locks, deferred entries, rate-limit
// windows) on interval until ctx is cancelled or Stop is called.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// Stop ends the sweep loop started by Run.
func (c *Coordinator) Stop() {
	close(c.stop)
}

// sweep reaps expired locks, deferred entries past their 60s TTL, and
// stale rate-limit windows concurrently — the three reap passes are
// independent of each other, so structured fan-out trades nothing for
// the extra goroutines.
func (c *Coordinator) sweep(ctx context.Context) {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { c.reapLocks(); return nil })
	g.Go(func() error { c.reapDeferred(); return nil })
	g.Go(func() error { c.reapRateLimits(); return nil })
	_ = g.Wait()
}

func (c *Coordinator) reapLocks() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for guildID, l := range c.locks {
		if l.expired(now) {
			delete(c.locks, guildID)
			c.replayDeferredLocked(guildID)
		}
	}
}

// replayDeferredLocked forwards guildID's highest-priority deferred
// entry once its lock clears. Caller must hold c.mu.
func (c *Coordinator) replayDeferredLocked(guildID string) {
	q := c.deferred[guildID]
	if len(q) == 0 {
		return
	}
	best := 0
	for i, e := range q {
		if e.priority < q[best].priority {
			best = i
		}
	}
	entry := q[best]
	c.deferred[guildID] = append(q[:best], q[best+1:]...)

	handle, ok := c.engines[guildID]
	if !ok {
		return
	}
	c.locks[guildID] = &lockEntry{priority: entry.priority, requesterID: entry.requesterID, since: time.Now()}
	handle.submit(entry.cmd)
}

func (c *Coordinator) reapDeferred() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for guildID, q := range c.deferred {
		kept := q[:0]
		for _, e := range q {
			if now.Sub(e.enqueuedAt) <= deferredTTL {
				kept = append(kept, e)
			}
		}
		c.deferred[guildID] = kept
	}
}

func (c *Coordinator) reapRateLimits() {
	now := time.Now()
	cutoff := now.Add(-rateLimitWindow)
	c.rlMu.Lock()
	defer c.rlMu.Unlock()
	for key, hits := range c.rlHits {
		kept := hits[:0]
		for _, t := range hits {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(c.rlHits, key)
		} else {
			c.rlHits[key] = kept
		}
	}
}
