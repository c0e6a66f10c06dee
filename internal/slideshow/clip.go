package slideshow

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"

	fg "github.com/bobarin/storyreel/internal/filtergraph"
)

// ClipSpec describes one scene clip to encode.
type ClipSpec struct {
	SceneIndex int
	ImagePath  string
	AudioPath  string // empty means silent
	Duration   float64
	OutputPath string
}

// BuildClip encodes a still image plus optional narration into a clip of
// exactly spec.Duration seconds at the common resolution, frame rate and audio
// format, so clips can later be stream-copied together.
func BuildClip(ctx context.Context, t Transcoder, spec ClipSpec) error {
	if err := checkImage(spec.SceneIndex, spec.ImagePath); err != nil {
		return err
	}
	if d := spec.Duration; d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return &ClipBuildError{SceneIndex: spec.SceneIndex, Err: fmt.Errorf("invalid clip duration %v", d)}
	}
	if err := t.Transcode(ctx, clipArgs(spec)); err != nil {
		return &ClipBuildError{SceneIndex: spec.SceneIndex, Err: err}
	}
	return nil
}

func checkImage(sceneIndex int, path string) error {
	if path == "" {
		return &MissingAssetError{SceneIndex: sceneIndex}
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return &MissingAssetError{SceneIndex: sceneIndex, Path: path}
	}
	return nil
}

func clipArgs(spec ClipSpec) []string {
	dur := fg.FormatSeconds(spec.Duration)

	args := []string{
		"-loop", "1",
		"-framerate", strconv.Itoa(FrameRate),
		"-t", dur,
		"-i", spec.ImagePath,
	}
	if spec.AudioPath != "" {
		args = append(args, "-i", spec.AudioPath)
	} else {
		args = append(args,
			"-f", "lavfi",
			"-t", dur,
			"-i", fg.ANullSrc("stereo", AudioSampleRate).String(),
		)
	}

	var g fg.Graph
	g.Add([]string{fg.StreamLabel(0, "v")}, []string{"v"},
		fg.ScaleToFit(FrameWidth, FrameHeight),
		fg.PadCenter(FrameWidth, FrameHeight, "black"),
		fg.SetSAR(),
		fg.FPS(FrameRate),
		fg.Format("yuv420p"),
	)
	// Narration shorter than the floor is padded with silence, longer is cut.
	g.Add([]string{fg.StreamLabel(1, "a")}, []string{"a"},
		fg.AResample(AudioSampleRate),
		fg.APad(spec.Duration),
		fg.ATrim(spec.Duration),
	)

	args = append(args,
		"-filter_complex", g.String(),
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-r", strconv.Itoa(FrameRate),
	)
	args = append(args, audioEncodeArgs()...)
	args = append(args, "-t", dur, spec.OutputPath)
	return args
}

// audioEncodeArgs is the audio format shared by every clip and output.
func audioEncodeArgs() []string {
	return []string{
		"-c:a", "aac",
		"-b:a", AudioBitrate,
		"-ar", strconv.Itoa(AudioSampleRate),
		"-ac", "2",
	}
}

// deliveryArgs are the encode settings for the published file.
func deliveryArgs() []string {
	args := []string{
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(FrameRate),
	}
	args = append(args, audioEncodeArgs()...)
	return append(args, "-movflags", "+faststart")
}
