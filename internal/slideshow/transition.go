package slideshow

import (
	"fmt"
	"strconv"

	fg "github.com/bobarin/storyreel/internal/filtergraph"
)

// TransitionOffsets returns, for each clip, the time on the merged timeline at
// which it starts fading in. Each cross-fade overlaps two clips by d, so
// offset[i] = offset[i-1] + durations[i-1] - d and offset[0] = 0.
func TransitionOffsets(durations []float64, d float64) []float64 {
	offsets := make([]float64, len(durations))
	for i := 1; i < len(durations); i++ {
		offsets[i] = offsets[i-1] + durations[i-1] - d
	}
	return offsets
}

// MergedDuration is the length of the merged video: the sum of clip durations,
// less one transition overlap per adjacent pair when transitions are used.
func MergedDuration(durations []float64, d float64, transitions bool) float64 {
	var total float64
	for _, v := range durations {
		total += v
	}
	if transitions && len(durations) > 1 {
		total -= float64(len(durations)-1) * d
	}
	return total
}

// BuildTransitionGraph chains N-1 binary xfade filters over N clip inputs and
// joins their audio, producing [vout] and [aout]. Audio is concatenated, or
// cross-faded in step with the video when crossfadeAudio is set.
func BuildTransitionGraph(durations []float64, kind TransitionKind, d float64, crossfadeAudio bool) (*fg.Graph, error) {
	n := len(durations)
	if n < 2 {
		return nil, fmt.Errorf("transitions need at least 2 clips, got %d", n)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown transition %q", kind)
	}
	for i, v := range durations {
		if v <= d {
			return nil, fmt.Errorf("clip %d duration %.3fs does not exceed transition %.3fs", i, v, d)
		}
	}

	offsets := TransitionOffsets(durations, d)
	g := &fg.Graph{}

	prev := fg.StreamLabel(0, "v")
	for i := 1; i < n; i++ {
		out := "v" + strconv.Itoa(i)
		if i == n-1 {
			out = "vout"
		}
		g.Add([]string{prev, fg.StreamLabel(i, "v")}, []string{out}, fg.XFade(string(kind), d, offsets[i]))
		prev = out
	}

	if !crossfadeAudio {
		inputs := make([]string, n)
		for i := range inputs {
			inputs[i] = fg.StreamLabel(i, "a")
		}
		g.Add(inputs, []string{"aout"}, fg.ConcatAudio(n))
		return g, nil
	}

	prev = fg.StreamLabel(0, "a")
	for i := 1; i < n; i++ {
		out := "a" + strconv.Itoa(i)
		if i == n-1 {
			out = "aout"
		}
		g.Add([]string{prev, fg.StreamLabel(i, "a")}, []string{out}, fg.ACrossfade(d))
		prev = out
	}
	return g, nil
}

// transitionArgs encodes clips through graph into output. Concatenated audio
// runs longer than the cross-faded video, so the output is cut to the shortest
// stream.
func transitionArgs(clips []string, graph *fg.Graph, output string) []string {
	var args []string
	for _, c := range clips {
		args = append(args, "-i", c)
	}
	args = append(args,
		"-filter_complex", graph.String(),
		"-map", "[vout]",
		"-map", "[aout]",
	)
	args = append(args, deliveryArgs()...)
	return append(args, "-shortest", output)
}
