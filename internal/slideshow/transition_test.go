package slideshow

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestTransitionOffsets(t *testing.T) {
	got := TransitionOffsets([]float64{4, 5, 6, 3}, 0.5)
	want := []float64{0, 3.5, 8, 13.5}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestMergedDuration(t *testing.T) {
	durations := []float64{4, 5, 6}
	if got := MergedDuration(durations, 0.5, false); got != 15 {
		t.Errorf("concat duration = %v, want 15", got)
	}
	if got := MergedDuration(durations, 0.5, true); got != 14 {
		t.Errorf("transition duration = %v, want 14", got)
	}
	if got := MergedDuration([]float64{4}, 0.5, true); got != 4 {
		t.Errorf("single clip duration = %v, want 4", got)
	}
}

// The last xfade must end exactly where the merged video ends.
func TestTransitionOffsetsMatchMergedDuration(t *testing.T) {
	durations := []float64{3, 7.25, 4, 5.5, 3}
	d := 0.75
	offsets := TransitionOffsets(durations, d)
	last := len(durations) - 1

	end := offsets[last] + durations[last]
	if math.Abs(end-MergedDuration(durations, d, true)) > 1e-9 {
		t.Errorf("timeline ends at %v, merged duration is %v", end, MergedDuration(durations, d, true))
	}
}

func TestBuildTransitionGraph(t *testing.T) {
	g, err := BuildTransitionGraph([]float64{4, 4}, TransitionWipeLeft, 0.5, false)
	if err != nil {
		t.Fatalf("BuildTransitionGraph: %v", err)
	}
	want := "[0:v][1:v]xfade=transition=wipeleft:duration=0.5:offset=3.5[vout];" +
		"[0:a][1:a]concat=n=2:v=0:a=1[aout]"
	if got := g.String(); got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestBuildTransitionGraphCrossfadeAudio(t *testing.T) {
	g, err := BuildTransitionGraph([]float64{4, 4, 4}, TransitionFade, 0.5, true)
	if err != nil {
		t.Fatalf("BuildTransitionGraph: %v", err)
	}
	want := "[0:v][1:v]xfade=transition=fade:duration=0.5:offset=3.5[v1];" +
		"[v1][2:v]xfade=transition=fade:duration=0.5:offset=7[vout];" +
		"[0:a][1:a]acrossfade=d=0.5[a1];" +
		"[a1][2:a]acrossfade=d=0.5[aout]"
	if got := g.String(); got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestBuildTransitionGraphErrors(t *testing.T) {
	tests := []struct {
		name      string
		durations []float64
		kind      TransitionKind
		d         float64
	}{
		{"single clip", []float64{4}, TransitionFade, 0.5},
		{"unknown kind", []float64{4, 4}, "zoom", 0.5},
		{"clip shorter than transition", []float64{4, 0.4}, TransitionFade, 0.5},
	}
	for _, tt := range tests {
		if _, err := BuildTransitionGraph(tt.durations, tt.kind, tt.d, false); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}
