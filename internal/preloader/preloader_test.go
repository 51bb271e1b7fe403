package preloader_test

import (
	"testing"

	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/domain/valueobjects"
	"github.com/nyxbot/voiceengine/internal/preloader"
	"github.com/nyxbot/voiceengine/internal/process"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func newRecord(streamKey string) *domain.SongRecord {
	return domain.NewSongRecord(domain.ContentHash(streamKey), "Title", "", 0, "", valueobjects.RecordSourceYouTubeTrack, streamKey, domain.Requester{UserID: "u1"})
}

func TestPreloaderGetMissesBeforeReady(t *testing.T) {
	pl := preloader.New(process.NewRunner(testLogger(), 2, ""), testLogger())
	record := newRecord("a")

	if _, ok := pl.Get(record, "a"); ok {
		t.Error("expected no artifact before preload completes")
	}
}

func TestPreloaderGetReturnsReadyArtifact(t *testing.T) {
	pl := preloader.New(process.NewRunner(testLogger(), 2, ""), testLogger())
	record := newRecord("a")
	record.MarkPreloadReady("/tmp/fake.ogg", 50)

	path, ok := pl.Get(record, "a")
	if !ok || path != "/tmp/fake.ogg" {
		t.Fatalf("expected ready artifact, got %q ok=%v", path, ok)
	}

	if _, ok := pl.Get(record, "different-key"); ok {
		t.Error("expected no match for a different stream key")
	}
}

func TestPreloaderCancelResetsStateWithoutPanicWhenIdle(t *testing.T) {
	pl := preloader.New(process.NewRunner(testLogger(), 2, ""), testLogger())
	record := newRecord("a")
	record.MarkPreloadInProgress()

	pl.Cancel("g1", record)

	if record.Preload().State != valueobjects.PreloadNotStarted {
		t.Errorf("expected cancel to reset state, got %s", record.Preload().State)
	}
}
