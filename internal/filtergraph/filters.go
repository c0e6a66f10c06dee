package filtergraph

import (
	"fmt"
	"strconv"
)

// Typed constructors for the filters the slideshow renderer needs.

// ScaleToFit scales into a w x h box keeping the source aspect ratio.
func ScaleToFit(w, h int) Filter {
	return New("scale").SetInt("w", w).SetInt("h", h).Set("force_original_aspect_ratio", "decrease")
}

// PadCenter pads to exactly w x h with the given color, content centered.
func PadCenter(w, h int, color string) Filter {
	return New("pad").SetInt("w", w).SetInt("h", h).
		Set("x", "(ow-iw)/2").Set("y", "(oh-ih)/2").Set("color", color)
}

// SetSAR forces square pixels so concatenated clips share a sample aspect ratio.
func SetSAR() Filter {
	return New("setsar").Set("sar", "1")
}

// FPS resamples to a constant frame rate.
func FPS(rate int) Filter {
	return New("fps").SetInt("fps", rate)
}

// Format converts to the given pixel format.
func Format(pixFmt string) Filter {
	return New("format").Set("pix_fmts", pixFmt)
}

// APad pads audio with silence up to wholeDur seconds.
func APad(wholeDur float64) Filter {
	return New("apad").SetFloat("whole_dur", wholeDur)
}

// ATrim cuts audio to the given duration.
func ATrim(duration float64) Filter {
	return New("atrim").SetFloat("duration", duration)
}

// AResample normalizes sample rate.
func AResample(rate int) Filter {
	return New("aresample").SetInt("", rate)
}

// XFade is a binary video cross-fade starting at offset seconds into the first input.
func XFade(transition string, duration, offset float64) Filter {
	return New("xfade").Set("transition", transition).
		SetFloat("duration", duration).SetFloat("offset", offset)
}

// ACrossfade is a binary audio cross-fade over duration seconds.
func ACrossfade(duration float64) Filter {
	return New("acrossfade").SetFloat("d", duration)
}

// ConcatAudio joins n audio-only segments.
func ConcatAudio(n int) Filter {
	return New("concat").SetInt("n", n).SetInt("v", 0).SetInt("a", 1)
}

// Volume scales audio amplitude.
func Volume(v float64) Filter {
	return New("volume").Set("volume", strconv.FormatFloat(v, 'f', -1, 64))
}

// AMix mixes inputs audio streams; duration is longest, shortest or first.
func AMix(inputs int, duration string) Filter {
	return New("amix").SetInt("inputs", inputs).Set("duration", duration)
}

// ANullSrc is a lavfi silent audio source.
func ANullSrc(channelLayout string, sampleRate int) Filter {
	return New("anullsrc").Set("channel_layout", channelLayout).SetInt("sample_rate", sampleRate)
}

// Between returns a half-open time gate expression t in [start, end).
func Between(start, end float64) string {
	return fmt.Sprintf("gte(t,%s)*lt(t,%s)", FormatSeconds(start), FormatSeconds(end))
}

// DrawText overlays text. enable is a time expression such as Between(0, 3).
type DrawText struct {
	Text        string
	FontFile    string
	FontColor   string
	FontSize    int
	BorderWidth int
	BorderColor string
	X, Y        string
	Enable      string
}

// Filter converts the options into a drawtext filter. Text expansion is disabled
// so '%' in captions is rendered literally.
func (d DrawText) Filter() Filter {
	f := New("drawtext")
	if d.FontFile != "" {
		f = f.Set("fontfile", d.FontFile)
	}
	f = f.Set("text", d.Text).Set("expansion", "none").
		Set("fontcolor", d.FontColor).SetInt("fontsize", d.FontSize).
		SetInt("borderw", d.BorderWidth).Set("bordercolor", d.BorderColor).
		Set("x", d.X).Set("y", d.Y)
	if d.Enable != "" {
		f = f.Set("enable", d.Enable)
	}
	return f
}
