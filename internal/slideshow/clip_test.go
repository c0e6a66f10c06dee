package slideshow

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolveDuration(t *testing.T) {
	tests := []struct {
		probed   float64
		hasAudio bool
		want     float64
	}{
		{0, false, DefaultSceneDuration},
		{8, false, DefaultSceneDuration},
		{0, true, DefaultSceneDuration},
		{-2, true, DefaultSceneDuration},
		{1.2, true, MinSceneDuration},
		{3, true, 3},
		{7.25, true, 7.25},
	}
	for _, tt := range tests {
		if got := ResolveDuration(tt.probed, tt.hasAudio); got != tt.want {
			t.Errorf("ResolveDuration(%v, %v) = %v, want %v", tt.probed, tt.hasAudio, got, tt.want)
		}
	}
}

func TestClipArgsWithNarration(t *testing.T) {
	got := clipArgs(ClipSpec{
		ImagePath:  "/in/img.png",
		AudioPath:  "/in/voice.mp3",
		Duration:   4.5,
		OutputPath: "/tmp/clip.mp4",
	})

	want := []string{
		"-loop", "1", "-framerate", "30", "-t", "4.5", "-i", "/in/img.png",
		"-i", "/in/voice.mp3",
		"-filter_complex",
		"[0:v]scale=w=1920:h=1080:force_original_aspect_ratio=decrease," +
			"pad=w=1920:h=1080:x=(ow-iw)/2:y=(oh-ih)/2:color=black," +
			"setsar=sar=1,fps=fps=30,format=pix_fmts=yuv420p[v];" +
			"[1:a]aresample=44100,apad=whole_dur=4.5,atrim=duration=4.5[a]",
		"-map", "[v]", "-map", "[a]",
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-r", "30",
		"-c:a", "aac", "-b:a", "128k", "-ar", "44100", "-ac", "2",
		"-t", "4.5", "/tmp/clip.mp4",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestClipArgsSilent(t *testing.T) {
	got := strings.Join(clipArgs(ClipSpec{ImagePath: "img.png", Duration: 5, OutputPath: "out.mp4"}), " ")
	if !strings.Contains(got, "-f lavfi -t 5 -i anullsrc=channel_layout=stereo:sample_rate=44100") {
		t.Errorf("expected silent audio source, got %s", got)
	}
}

func TestBuildClipMissingImage(t *testing.T) {
	fake := &fakeTranscoder{}
	err := BuildClip(context.Background(), fake, ClipSpec{
		SceneIndex: 2,
		ImagePath:  filepath.Join(t.TempDir(), "nope.png"),
		Duration:   5,
		OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
	})

	var missing *MissingAssetError
	if !errors.As(err, &missing) || missing.SceneIndex != 2 {
		t.Fatalf("expected MissingAssetError for scene 2, got %v", err)
	}
	if fake.callCount() != 0 {
		t.Error("transcoder should not be called")
	}
}

func TestBuildClipRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "img.png")
	if err := os.WriteFile(img, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}

	for _, d := range []float64{0, -2, math.NaN(), math.Inf(1)} {
		fake := &fakeTranscoder{}
		err := BuildClip(context.Background(), fake, ClipSpec{
			SceneIndex: 1,
			ImagePath:  img,
			Duration:   d,
			OutputPath: filepath.Join(dir, "out.mp4"),
		})

		var clipErr *ClipBuildError
		if !errors.As(err, &clipErr) || clipErr.SceneIndex != 1 {
			t.Errorf("duration %v: expected ClipBuildError for scene 1, got %v", d, err)
		}
		if n := fake.callCount(); n != 0 {
			t.Errorf("duration %v: transcoder called %d times", d, n)
		}
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	clips := []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "it's.mp4")}

	if err := writeConcatList(list, clips); err != nil {
		t.Fatalf("writeConcatList: %v", err)
	}
	data, err := os.ReadFile(list)
	if err != nil {
		t.Fatal(err)
	}

	want := "file '" + clips[0] + "'\n" +
		"file '" + filepath.Join(dir, `it'\''s.mp4`) + "'\n"
	if string(data) != want {
		t.Errorf("got\n%s\nwant\n%s", data, want)
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateProbingDurations, true},
		{StateIdle, StateMerging, false},
		{StateMerging, StateDone, true},
		{StateMerging, StateCaptioning, true},
		{StateCaptioning, StateFailed, true},
		{StateDone, StateFailed, false},
		{StateFailed, StateIdle, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}
