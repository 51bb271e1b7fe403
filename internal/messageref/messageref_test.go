package messageref

import (
	"context"
	"testing"

	"github.com/nyxbot/voiceengine/internal/domain"
)

func TestGetMissesWithoutStore(t *testing.T) {
	m := New(nil, nil, nil)
	if _, ok := m.Get(context.Background(), "g1", domain.RolePlaybackControls); ok {
		t.Fatal("expected a miss with no store and nothing cached")
	}
}

func TestSetPopulatesCache(t *testing.T) {
	m := New(nil, nil, nil)
	ref := domain.MessageRef{GuildID: "g1", Role: domain.RolePlaybackControls, ChannelID: "c1", MessageID: "m1"}
	m.set(context.Background(), ref)

	got, ok := m.Get(context.Background(), "g1", domain.RolePlaybackControls)
	if !ok {
		t.Fatal("expected a cache hit after set")
	}
	if got.ChannelID != "c1" || got.MessageID != "m1" {
		t.Fatalf("unexpected ref: %+v", got)
	}
}

func TestClearRemovesOneRole(t *testing.T) {
	m := New(nil, nil, nil)
	m.set(context.Background(), domain.MessageRef{GuildID: "g1", Role: domain.RolePlaybackControls, ChannelID: "c1", MessageID: "m1"})
	m.set(context.Background(), domain.MessageRef{GuildID: "g1", Role: domain.RoleQueueMessage, ChannelID: "c1", MessageID: "m2"})

	m.Clear(context.Background(), "g1", domain.RolePlaybackControls)

	if _, ok := m.Get(context.Background(), "g1", domain.RolePlaybackControls); ok {
		t.Fatal("expected playback_controls ref to be cleared")
	}
	if _, ok := m.Get(context.Background(), "g1", domain.RoleQueueMessage); !ok {
		t.Fatal("expected queue_message ref to survive clearing a different role")
	}
}

func TestClearAllRolesForGuild(t *testing.T) {
	m := New(nil, nil, nil)
	m.set(context.Background(), domain.MessageRef{GuildID: "g1", Role: domain.RolePlaybackControls, ChannelID: "c1", MessageID: "m1"})
	m.set(context.Background(), domain.MessageRef{GuildID: "g1", Role: domain.RoleQueueMessage, ChannelID: "c1", MessageID: "m2"})
	m.set(context.Background(), domain.MessageRef{GuildID: "g2", Role: domain.RolePlaybackControls, ChannelID: "c2", MessageID: "m3"})

	m.Clear(context.Background(), "g1", "")

	if _, ok := m.Get(context.Background(), "g1", domain.RolePlaybackControls); ok {
		t.Fatal("expected g1's playback_controls ref to be cleared")
	}
	if _, ok := m.Get(context.Background(), "g1", domain.RoleQueueMessage); ok {
		t.Fatal("expected g1's queue_message ref to be cleared")
	}
	if _, ok := m.Get(context.Background(), "g2", domain.RolePlaybackControls); !ok {
		t.Fatal("expected g2's ref to survive clearing g1")
	}
}

func TestValidateRejectsEmptyRef(t *testing.T) {
	m := New(nil, nil, nil)
	if m.Validate(context.Background(), domain.MessageRef{}) {
		t.Fatal("expected an empty ref to fail validation without touching the session")
	}
}
