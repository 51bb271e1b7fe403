package voice_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/nyxbot/voiceengine/internal/voice"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "text"})
}

func TestPlayerRejectsUnconnected(t *testing.T) {
	conn := voice.NewConnection("g1", testLogger())
	player := voice.NewPlayer(conn, testLogger())

	err := player.PlayStream(context.Background(), io.NopCloser(strings.NewReader("not ogg")), nil)
	if err != voice.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestPlayerStopIsIdempotent(t *testing.T) {
	player := voice.NewPlayer(voice.NewConnection("g1", testLogger()), testLogger())
	player.Stop()
	player.Stop()
}

func TestPlayerPauseResumeFlags(t *testing.T) {
	player := voice.NewPlayer(voice.NewConnection("g1", testLogger()), testLogger())
	if player.IsPlaying() || player.IsPaused() {
		t.Fatal("new player should not report playing or paused")
	}
	player.Pause()
	if !player.IsPaused() {
		t.Error("expected paused after Pause")
	}
	player.Resume()
	if player.IsPaused() {
		t.Error("expected unpaused after Resume")
	}
}
