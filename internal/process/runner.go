// Package process is the process runner (C1): it launches, supervises
// and reaps yt-dlp and ffmpeg child processes with per-guild
// concurrency caps and per-call deadlines, and never lets audio bytes
// cross its boundary in memory — only file paths.
package process

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	apperrors "github.com/nyxbot/voiceengine/internal/errors"
	"github.com/nyxbot/voiceengine/pkg/logger"
	"golang.org/x/sync/semaphore"
)

// Metadata is the subset of yt-dlp's JSON output the resolver needs.
type Metadata struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpage_url"`
}

// PlaylistEntry is one row of a --flat-playlist enumeration.
type PlaylistEntry struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Duration float64 `json:"duration"`
}

// Runner owns per-guild concurrency caps and process lifecycle for
// yt-dlp/ffmpeg invocations.
type Runner struct {
	logger   *logger.Logger
	maxPerGuild int64
	tempDir  string

	mu   sync.Mutex
	sems map[string]*semaphore.Weighted

	shutdownMu sync.Mutex
	children   map[*os.Process]struct{}
	shutdown   bool
}

// NewRunner creates a process runner. maxPerGuild is the per-guild
// concurrent subprocess cap (default 2 per the spec).
func NewRunner(log *logger.Logger, maxPerGuild int, tempDir string) *Runner {
	if maxPerGuild <= 0 {
		maxPerGuild = 2
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Runner{
		logger:      log,
		maxPerGuild: int64(maxPerGuild),
		tempDir:     tempDir,
		sems:        make(map[string]*semaphore.Weighted),
		children:    make(map[*os.Process]struct{}),
	}
}

func (r *Runner) guildSem(guildID string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	sem, ok := r.sems[guildID]
	if !ok {
		sem = semaphore.NewWeighted(r.maxPerGuild)
		r.sems[guildID] = sem
	}
	return sem
}

func (r *Runner) trackChild(p *os.Process) {
	r.shutdownMu.Lock()
	defer r.shutdownMu.Unlock()
	if r.shutdown {
		p.Kill()
		return
	}
	r.children[p] = struct{}{}
}

func (r *Runner) untrackChild(p *os.Process) {
	r.shutdownMu.Lock()
	defer r.shutdownMu.Unlock()
	delete(r.children, p)
}

// Shutdown kills every tracked child process. Called from SIGINT/SIGTERM.
func (r *Runner) Shutdown() {
	r.shutdownMu.Lock()
	defer r.shutdownMu.Unlock()
	r.shutdown = true
	for p := range r.children {
		_ = p.Kill()
	}
	r.children = make(map[*os.Process]struct{})
}

// ResolveInfo runs `yt-dlp --dump-json` against a direct URL or search
// query, returning metadata and the canonical streamKey.
func (r *Runner) ResolveInfo(ctx context.Context, guildID, query string, timeout time.Duration) (*Metadata, string, error) {
	sem := r.guildSem(guildID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, "", apperrors.NewTypedError(apperrors.ErrProcessingTimeout, apperrors.CategoryMedia, "too many concurrent resolutions for this server", nil)
	}
	defer sem.Release(1)

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"--dump-json", "--no-playlist", "--format", "bestaudio/best",
		"--no-check-certificate", "--geo-bypass", "--no-warnings", query,
	}
	out, err := r.run(cctx, "yt-dlp", args...)
	if err != nil {
		return nil, "", r.classify(err, cctx)
	}

	idx := bytes.IndexByte(out, '{')
	if idx < 0 {
		return nil, "", apperrors.NewTypedError(apperrors.ErrInvalidResponse, apperrors.CategoryMedia, "yt-dlp returned no metadata", nil)
	}

	var meta Metadata
	if err := json.Unmarshal(out[idx:], &meta); err != nil {
		return nil, "", apperrors.NewTypedError(apperrors.ErrInvalidResponse, apperrors.CategoryMedia, "failed to parse yt-dlp output", map[string]any{"error": err.Error()})
	}

	streamKey := meta.WebpageURL
	if streamKey == "" {
		streamKey = query
	}
	return &meta, streamKey, nil
}

// ResolvePlaylistTitle fetches only the playlist's title within the
// 15s budget the spec assigns to this step.
func (r *Runner) ResolvePlaylistTitle(ctx context.Context, guildID, url string, timeout time.Duration) (string, error) {
	sem := r.guildSem(guildID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return "", apperrors.NewTypedError(apperrors.ErrProcessingTimeout, apperrors.CategoryMedia, "too many concurrent resolutions for this server", nil)
	}
	defer sem.Release(1)

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := r.run(cctx, "yt-dlp", "--dump-single-json", "--flat-playlist", "--playlist-items", "1:0", url)
	if err != nil {
		return "", r.classify(err, cctx)
	}

	idx := bytes.IndexByte(out, '{')
	if idx < 0 {
		return "Playlist", nil
	}
	var payload struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(out[idx:], &payload); err != nil || payload.Title == "" {
		return "Playlist", nil
	}
	return payload.Title, nil
}

// ResolvePlaylistEntries enumerates a playlist's entries (--flat-playlist)
// within the 45s budget. Tolerates per-line parse failures.
func (r *Runner) ResolvePlaylistEntries(ctx context.Context, guildID, url string, timeout time.Duration) ([]PlaylistEntry, error) {
	sem := r.guildSem(guildID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.NewTypedError(apperrors.ErrProcessingTimeout, apperrors.CategoryMedia, "too many concurrent resolutions for this server", nil)
	}
	defer sem.Release(1)

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := r.run(cctx, "yt-dlp", "--dump-json", "--flat-playlist", "--no-warnings", url)
	if err != nil {
		return nil, r.classify(err, cctx)
	}

	var entries []PlaylistEntry
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e PlaylistEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *Runner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBinaryMissing, err)
	}
	r.trackChild(cmd.Process)
	defer r.untrackChild(cmd.Process)

	err := cmd.Wait()
	return stdout.Bytes(), err
}

func (r *Runner) classify(err error, ctx context.Context) error {
	if ctx.Err() != nil {
		return apperrors.NewTypedError(apperrors.ErrProcessingTimeout, apperrors.CategoryMedia, "media lookup timed out", nil)
	}
	return apperrors.NewTypedError(apperrors.ErrMediaUnavailable, apperrors.CategoryMedia, "media unavailable or restricted", map[string]any{"error": err.Error()})
}
