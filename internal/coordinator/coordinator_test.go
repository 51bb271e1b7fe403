package coordinator

import (
	"testing"
	"time"

	"github.com/nyxbot/voiceengine/internal/session"
)

func newTestCoordinator(guildID string) (*Coordinator, *[]session.Command) {
	c := New(nil)
	var received []session.Command
	c.engines[guildID] = &engineHandle{submit: func(cmd session.Command) {
		received = append(received, cmd)
	}}
	return c, &received
}

func TestSubmitForwardsWhenUnlocked(t *testing.T) {
	c, received := newTestCoordinator("g1")
	if err := c.Submit("g1", "user1", PriorityNormal, session.Command{Kind: session.CmdPlay}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*received) != 1 {
		t.Fatalf("expected command to be forwarded, got %d", len(*received))
	}
}

func TestSubmitDefersLowerPriorityUnderLock(t *testing.T) {
	c, received := newTestCoordinator("g1")
	if err := c.Submit("g1", "admin", PriorityHigh, session.Command{Kind: session.CmdStop}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Submit("g1", "user1", PriorityNormal, session.Command{Kind: session.CmdPlay}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*received) != 1 {
		t.Fatalf("expected the NORMAL command to be deferred, not forwarded; got %d forwarded", len(*received))
	}
	if len(c.deferred["g1"]) != 1 {
		t.Fatalf("expected one deferred entry, got %d", len(c.deferred["g1"]))
	}
}

func TestSubmitPreemptsWithHigherPriority(t *testing.T) {
	c, received := newTestCoordinator("g1")
	if err := c.Submit("g1", "user1", PriorityNormal, session.Command{Kind: session.CmdPlay}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Submit("g1", "admin", PriorityHigh, session.Command{Kind: session.CmdStop}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*received) != 2 {
		t.Fatalf("expected the HIGH command to preempt and forward immediately, got %d forwarded", len(*received))
	}
}

func TestSubmitUnknownGuildFails(t *testing.T) {
	c := New(nil)
	err := c.Submit("ghost", "user1", PriorityNormal, session.Command{Kind: session.CmdPlay})
	if err == nil {
		t.Fatal("expected an error for an unregistered guild")
	}
}

func TestAllowRateLimitsBurst(t *testing.T) {
	c := New(nil)
	for i := 0; i < rateLimitMax; i++ {
		if !c.allowRate("g1", "u1") {
			t.Fatalf("request %d should have been allowed within the burst window", i)
		}
	}
	if c.allowRate("g1", "u1") {
		t.Fatal("expected the 11th request within the window to be rate-limited")
	}
}

func TestAllowRateIsolatedPerUser(t *testing.T) {
	c := New(nil)
	for i := 0; i < rateLimitMax; i++ {
		c.allowRate("g1", "u1")
	}
	if !c.allowRate("g1", "u2") {
		t.Fatal("a different user in the same guild should not share the exhausted window")
	}
}

func TestReapLocksReplaysDeferredEntry(t *testing.T) {
	c, received := newTestCoordinator("g1")
	c.locks["g1"] = &lockEntry{priority: PriorityHigh, requesterID: "admin", since: time.Now().Add(-2 * lockTTL)}
	c.deferred["g1"] = []*deferredEntry{{priority: PriorityNormal, requesterID: "user1", cmd: session.Command{Kind: session.CmdPlay}, enqueuedAt: time.Now()}}

	c.reapLocks()

	if len(*received) != 1 {
		t.Fatalf("expected the deferred command to be replayed after the lock expired, got %d", len(*received))
	}
	if len(c.deferred["g1"]) != 0 {
		t.Fatalf("expected the deferred queue to drain, got %d remaining", len(c.deferred["g1"]))
	}
}

func TestReapDeferredDropsExpiredEntries(t *testing.T) {
	c := New(nil)
	c.deferred["g1"] = []*deferredEntry{
		{priority: PriorityNormal, enqueuedAt: time.Now().Add(-2 * deferredTTL)},
		{priority: PriorityNormal, enqueuedAt: time.Now()},
	}
	c.reapDeferred()
	if len(c.deferred["g1"]) != 1 {
		t.Fatalf("expected exactly one surviving entry, got %d", len(c.deferred["g1"]))
	}
}
