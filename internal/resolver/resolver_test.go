package resolver

import (
	"testing"

	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/domain/valueobjects"
)

func TestParseSpotifyURL(t *testing.T) {
	cases := []struct {
		url      string
		wantKind string
		wantID   string
		wantErr  bool
	}{
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", "track", "4uLU6hMCjMI75M1A2tKUQC", false},
		{"https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", "playlist", "37i9dQZF1DXcBWIGoYBM5M", false},
		{"https://example.com/not-spotify", "", "", true},
	}
	for _, c := range cases {
		kind, id, err := ParseSpotifyURL(c.url)
		if c.wantErr {
			if err == nil {
				t.Errorf("expected error for %s", c.url)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", c.url, err)
		}
		if kind != c.wantKind || id != c.wantID {
			t.Errorf("ParseSpotifyURL(%s) = (%s,%s), want (%s,%s)", c.url, kind, id, c.wantKind, c.wantID)
		}
	}
}

func TestIsSpotifyURL(t *testing.T) {
	if !IsSpotifyURL("https://open.spotify.com/track/abc") {
		t.Error("expected spotify URL to be recognized")
	}
	if IsSpotifyURL("https://youtube.com/watch?v=abc") {
		t.Error("expected non-spotify URL to be rejected")
	}
}

func TestSpotifyTrackSearchQueries(t *testing.T) {
	track := &spotifyTrack{Name: "Song"}
	track.Artists = append(track.Artists, struct {
		Name string `json:"name"`
	}{Name: "Artist"})
	track.Album.Name = "Album"

	if got := track.searchQuery(); got != "Artist - Song" {
		t.Errorf("searchQuery() = %q", got)
	}
	if got := track.detailedSearchQuery(); got != "Artist - Song Album official audio" {
		t.Errorf("detailedSearchQuery() = %q", got)
	}
}

func TestSpotifyTrackSearchQueryWithoutArtist(t *testing.T) {
	track := &spotifyTrack{Name: "Song"}
	if got := track.searchQuery(); got != "Song" {
		t.Errorf("searchQuery() without artist = %q", got)
	}
}

func TestApplyDurationLimitRejectsSingleOverLimitTrack(t *testing.T) {
	r := &Resolver{}
	record := domain.NewSongRecord("id", "Too Long", "", 20*60*1000, "", valueobjects.RecordSourceYouTubeTrack, "k", domain.Requester{})

	_, err := r.applyDurationLimit([]*domain.SongRecord{record}, nil, 900)
	if err == nil {
		t.Fatal("expected duration-limit error for a single over-limit track")
	}
}

func TestApplyDurationLimitFiltersPlaylistTracksWithSummaryWarning(t *testing.T) {
	r := &Resolver{}
	short := domain.NewSongRecord("id1", "Short", "", 3*60*1000, "", valueobjects.RecordSourceYouTubeTrack, "k1", domain.Requester{})
	long := domain.NewSongRecord("id2", "Long", "", 20*60*1000, "", valueobjects.RecordSourceYouTubeTrack, "k2", domain.Requester{})

	result, err := r.applyDurationLimit([]*domain.SongRecord{short, long}, []string{"pre-existing warning"}, 900)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].Title != "Short" {
		t.Errorf("expected only the short track to survive, got %+v", result.Records)
	}
	if len(result.Warnings) != 2 || result.Warnings[0] != "pre-existing warning" {
		t.Errorf("expected the existing warning preserved plus one summary warning, got %v", result.Warnings)
	}
}

func TestApplyDurationLimitUnlimitedWhenZero(t *testing.T) {
	r := &Resolver{}
	long := domain.NewSongRecord("id", "Long", "", 20*60*1000, "", valueobjects.RecordSourceYouTubeTrack, "k", domain.Requester{})

	result, err := r.applyDurationLimit([]*domain.SongRecord{long}, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error with unlimited duration: %v", err)
	}
	if len(result.Records) != 1 {
		t.Error("expected the track to survive when maxDurationSec is 0")
	}
}
