package ui

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/domain/valueobjects"
	"github.com/nyxbot/voiceengine/internal/session"
)

func TestRenderIdleShowsNoActiveButtons(t *testing.T) {
	snap := session.Snapshot{GuildID: "g1", State: session.StateIdle}
	payload := Render(snap)
	if len(payload.Components) != 1 {
		t.Fatalf("expected one action row, got %d", len(payload.Components))
	}
	if payload.Embed.Title != "Idle" {
		t.Fatalf("expected Idle title, got %q", payload.Embed.Title)
	}
	row, ok := payload.Components[0].(discordgo.ActionsRow)
	if !ok {
		t.Fatalf("expected an action row, got %T", payload.Components[0])
	}
	for _, c := range row.Components {
		if b, ok := c.(discordgo.Button); ok && !b.Disabled {
			t.Errorf("expected %q to be disabled while idle", b.Label)
		}
	}
}

func TestRenderPlayingShowsNowPlaying(t *testing.T) {
	record := domain.NewSongRecord("id1", "Song", "Artist", 180000, "", valueobjects.RecordSourceYouTubeTrack, "key", domain.Requester{})
	snap := session.Snapshot{GuildID: "g1", State: session.StatePlaying, NowPlaying: record, VolumePct: 50, QueueLen: 2}
	payload := Render(snap)
	if payload.Embed.Title != "Now Playing" {
		t.Fatalf("expected Now Playing title, got %q", payload.Embed.Title)
	}
	if payload.Embed.Description != "Artist - Song" {
		t.Fatalf("expected display name in description, got %q", payload.Embed.Description)
	}
}

func TestRenderErrorTakesPrecedence(t *testing.T) {
	snap := session.Snapshot{GuildID: "g1", State: session.StatePlaying, LastError: errTest{}}
	payload := Render(snap)
	if payload.Embed.Title != "Something went wrong" {
		t.Fatalf("expected error variant to win over Playing, got %q", payload.Embed.Title)
	}
}

func TestVolumeBarClampsAboveHundred(t *testing.T) {
	bar := volumeBar(200)
	if bar != "██████████ 200%" {
		t.Fatalf("expected a fully-filled bar with the raw percent label, got %q", bar)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	snap := session.Snapshot{GuildID: "g1", State: session.StateQuerying, SearchQuery: "test"}
	a := Render(snap)
	b := Render(snap)
	if a.Embed.Description != b.Embed.Description || a.Embed.Thumbnail.URL != b.Embed.Thumbnail.URL {
		t.Fatal("expected Render to be pure/deterministic for the same snapshot")
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
