package services

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// stderrTailBytes bounds how much ffmpeg stderr is kept for error messages.
const stderrTailBytes = 4096

// ---------------------------------------------------------------------------
// FFmpegService is the only place that executes ffmpeg and ffprobe.
// Callers hand it complete argument lists; it owns process lifetime,
// cancellation and error capture.
// ---------------------------------------------------------------------------

type FFmpegService struct {
	ffmpegBin  string
	ffprobeBin string
	tempDir    string
}

// TranscodeError is returned when an ffmpeg or ffprobe process fails.
// Stderr holds the tail of the process output.
type TranscodeError struct {
	Bin    string
	Args   []string
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", filepath.Base(e.Bin), e.Err)
	if e.Stderr != "" {
		msg += ": " + lastLine(e.Stderr)
	}
	return msg
}

func (e *TranscodeError) Unwrap() error { return e.Err }

func NewFFmpegService(tempDir, ffmpegBin, ffprobeBin string) (*FFmpegService, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}

	return &FFmpegService{
		ffmpegBin:  ffmpegBin,
		ffprobeBin: ffprobeBin,
		tempDir:    tempDir,
	}, nil
}

// CheckBinaries verifies ffmpeg and ffprobe are resolvable on PATH.
func (s *FFmpegService) CheckBinaries() error {
	for _, bin := range []string{s.ffmpegBin, s.ffprobeBin} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s binary not found: %w", bin, err)
		}
	}
	return nil
}

// Transcode runs ffmpeg with the given arguments. Output files are always
// overwritten and stdin is never read, so a run cannot block on a prompt.
func (s *FFmpegService) Transcode(ctx context.Context, args []string) error {
	full := append([]string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}, args...)

	start := time.Now()
	log.Debug().Str("cmd", s.ffmpegBin).Strs("args", full).Msg("ffmpeg start")

	if _, err := s.run(ctx, s.ffmpegBin, full); err != nil {
		return err
	}

	log.Debug().Dur("elapsed", time.Since(start)).Msg("ffmpeg done")
	return nil
}

// ProbeDuration returns the container duration of a media file in seconds.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	output, err := s.run(ctx, s.ffprobeBin, args)
	if err != nil {
		return 0, err
	}

	return parseProbeDuration(output)
}

func (s *FFmpegService) run(ctx context.Context, bin string, args []string) (string, error) {
	var stdout bytes.Buffer
	stderr := &tailBuffer{max: stderrTailBytes}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return "", &TranscodeError{Bin: bin, Args: args, Stderr: stderr.String(), Err: err}
	}

	return stdout.String(), nil
}

// parseProbeDuration parses ffprobe's bare duration output.
func parseProbeDuration(output string) (float64, error) {
	raw := strings.TrimSpace(output)
	if raw == "" || raw == "N/A" {
		return 0, fmt.Errorf("no duration reported")
	}
	// ffprobe prints one line per format section; the first is authoritative.
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}

	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", raw, err)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}

	return d, nil
}

// TempDir is the directory intermediate artifacts are written to.
func (s *FFmpegService) TempDir() string {
	return s.tempDir
}

// tailBuffer keeps only the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(string(b.buf))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
