package slideshow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// writeConcatList writes an ffmpeg concat-demuxer list file. Paths are made
// absolute since the demuxer resolves relative entries against the list file.
func writeConcatList(listPath string, clips []string) error {
	var sb strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			return fmt.Errorf("failed to resolve clip path %s: %w", clip, err)
		}
		sb.WriteString("file '" + strings.ReplaceAll(abs, "'", `'\''`) + "'\n")
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	return nil
}

func concatCopyArgs(listPath, output string) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		output,
	}
}

func concatReencodeArgs(listPath, output string) []string {
	args := []string{"-f", "concat", "-safe", "0", "-i", listPath}
	args = append(args, deliveryArgs()...)
	return append(args, output)
}

func singleClipArgs(clip, output string) []string {
	args := []string{"-i", clip}
	args = append(args, deliveryArgs()...)
	return append(args, output)
}

// concatClips joins clips in order into output. A single clip is re-encoded at
// delivery settings; several clips are stream-copied, falling back to a full
// re-encode if the copy fails.
func concatClips(ctx context.Context, t Transcoder, logger zerolog.Logger, clips []string, listPath, output string) error {
	if len(clips) == 0 {
		return &MergeError{Stage: "concat", Err: fmt.Errorf("no clips to merge")}
	}
	if len(clips) == 1 {
		if err := t.Transcode(ctx, singleClipArgs(clips[0], output)); err != nil {
			return &MergeError{Stage: "single", Err: err}
		}
		return nil
	}

	if err := writeConcatList(listPath, clips); err != nil {
		return &MergeError{Stage: "concat", Err: err}
	}

	err := t.Transcode(ctx, concatCopyArgs(listPath, output))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &MergeError{Stage: "concat", Err: err}
	}

	logger.Warn().Err(err).Msg("stream-copy concat failed, re-encoding")
	if err := t.Transcode(ctx, concatReencodeArgs(listPath, output)); err != nil {
		return &MergeError{Stage: "concat-reencode", Err: err}
	}
	return nil
}
