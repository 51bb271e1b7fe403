package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/nyxbot/voiceengine/internal/errors"
)

// Decode pipes yt-dlp's bestaudio output through ffmpeg (Opus/OGG,
// 48kHz stereo, volume-scaled to volumePct) into a fresh temp file and
// returns its path. Piping yt-dlp into ffmpeg rather than letting
// ffmpeg fetch the URL directly avoids the 403s YouTube's CDN returns
// for direct requests from ffmpeg.
func (r *Runner) Decode(ctx context.Context, guildID, streamKey string, volumePct int, timeout time.Duration) (string, *Metadata, error) {
	sem := r.guildSem(guildID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return "", nil, apperrors.NewTypedError(apperrors.ErrProcessingTimeout, apperrors.CategoryMedia, "too many concurrent decodes for this server", nil)
	}
	defer sem.Release(1)

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	artifactPath := filepath.Join(r.tempDir, fmt.Sprintf("voiceengine-%s.ogg", uuid.NewString()))
	outFile, err := os.Create(artifactPath)
	if err != nil {
		return "", nil, apperrors.NewTypedError(apperrors.ErrFilesystem, apperrors.CategorySystem, "failed to create temp artifact", map[string]any{"error": err.Error()})
	}
	defer outFile.Close()

	ytDlpCmd := exec.CommandContext(cctx, "yt-dlp",
		"-f", "bestaudio/best", "-o", "-", "--no-playlist",
		"--no-check-certificate", "--geo-bypass", "--quiet", "--no-warnings", streamKey)
	ytDlpStdout, err := ytDlpCmd.StdoutPipe()
	if err != nil {
		return "", nil, apperrors.NewTypedError(apperrors.ErrSubprocessCreate, apperrors.CategorySystem, "failed to open yt-dlp stdout", nil)
	}

	volume := float64(volumePct) / 100.0
	if volume <= 0 {
		volume = 0.01
	}
	ffmpegCmd := exec.CommandContext(cctx, "ffmpeg",
		"-i", "pipe:0",
		"-reconnect", "1", "-reconnect_at_eof", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "2",
		"-map", "0:a",
		"-af", fmt.Sprintf("volume=%.2f", volume),
		"-acodec", "libopus", "-f", "ogg", "-compression_level", "5",
		"-ar", "48000", "-ac", "2", "-b:a", "128000",
		"-application", "audio", "-frame_duration", "20", "-loglevel", "error",
		"pipe:1")
	ffmpegCmd.Stdin = ytDlpStdout
	ffmpegCmd.Stdout = outFile

	ytDlpStderr, _ := ytDlpCmd.StderrPipe()
	ffmpegStderr, _ := ffmpegCmd.StderrPipe()

	if err := ytDlpCmd.Start(); err != nil {
		return "", nil, apperrors.NewTypedError(apperrors.ErrSubprocessCreate, apperrors.CategorySystem, "failed to start yt-dlp", map[string]any{"error": err.Error()})
	}
	r.trackChild(ytDlpCmd.Process)
	defer r.untrackChild(ytDlpCmd.Process)

	if err := ffmpegCmd.Start(); err != nil {
		_ = ytDlpCmd.Process.Kill()
		return "", nil, apperrors.NewTypedError(apperrors.ErrSubprocessCreate, apperrors.CategorySystem, "failed to start ffmpeg", map[string]any{"error": err.Error()})
	}
	r.trackChild(ffmpegCmd.Process)
	defer r.untrackChild(ffmpegCmd.Process)

	go r.drainStderr(ytDlpStderr, "yt-dlp")
	go r.drainStderr(ffmpegStderr, "ffmpeg")

	waitErr := ffmpegCmd.Wait()
	_ = ytDlpCmd.Process.Kill()
	_ = ytDlpCmd.Wait()

	if waitErr != nil {
		os.Remove(artifactPath)
		if cctx.Err() != nil {
			return "", nil, apperrors.NewTypedError(apperrors.ErrProcessingTimeout, apperrors.CategoryMedia, "decode timed out", nil)
		}
		return "", nil, apperrors.NewTypedError(apperrors.ErrMediaUnavailable, apperrors.CategoryMedia, "decode failed", map[string]any{"error": waitErr.Error()})
	}

	return artifactPath, nil, nil
}

func (r *Runner) drainStderr(rc io.ReadCloser, label string) {
	if rc == nil {
		return
	}
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		r.logger.WithField(label, scanner.Text()).Debug("subprocess output")
	}
}

// DeleteArtifact removes a temp artifact file, logging on failure
// rather than propagating — cleanup failure should not block playback.
func (r *Runner) DeleteArtifact(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.WithError(err).WithField("path", path).Warn("failed to clean up temp artifact")
	}
}
