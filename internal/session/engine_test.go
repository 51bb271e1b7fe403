package session

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateQuerying, true},
		{StateIdle, StatePlaying, false},
		{StateQuerying, StateLoading, true},
		{StateQuerying, StatePlaying, false},
		{StateLoading, StatePlaying, true},
		{StatePlaying, StatePaused, true},
		{StatePlaying, StateLoading, true},
		{StatePaused, StatePlaying, true},
		{StatePaused, StateQuerying, false},
		{StateDestroyed, StateIdle, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestGuildSessionPushHistoryIgnoresNil(t *testing.T) {
	g := NewGuildSession("g1", 2, 100)
	for i := 0; i < 5; i++ {
		g.pushHistory(nil) // nil is a no-op, verifies it never panics
	}
	if len(g.History) != 0 {
		t.Fatalf("expected nil pushes to be ignored, got %d entries", len(g.History))
	}
}

func TestNewGuildSessionStartsIdle(t *testing.T) {
	g := NewGuildSession("g1", 5, 80)
	if g.State != StateIdle {
		t.Fatalf("expected new session to start idle, got %s", g.State)
	}
	if g.VolumePct != 80 {
		t.Fatalf("expected default volume to carry through, got %d", g.VolumePct)
	}
}
