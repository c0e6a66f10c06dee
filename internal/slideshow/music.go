package slideshow

import (
	fg "github.com/bobarin/storyreel/internal/filtergraph"
)

// musicMixArgs lays music under the narration of input. The mix lasts as long
// as the shorter of the two audio streams; video is stream-copied.
func musicMixArgs(input, music string, volume float64, output string) []string {
	var g fg.Graph
	g.Add([]string{fg.StreamLabel(1, "a")}, []string{"music"}, fg.Volume(volume))
	g.Add([]string{fg.StreamLabel(0, "a"), "music"}, []string{"aout"}, fg.AMix(2, "shortest"))

	args := []string{
		"-i", input,
		"-i", music,
		"-filter_complex", g.String(),
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
	}
	args = append(args, audioEncodeArgs()...)
	return append(args, "-movflags", "+faststart", output)
}
