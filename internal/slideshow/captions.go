package slideshow

import (
	"strconv"
	"strings"
	"unicode/utf8"

	fg "github.com/bobarin/storyreel/internal/filtergraph"
)

const (
	CaptionLineWidth = 100
	CaptionMaxLines  = 2
)

// Caption is a text overlay shown during [Start, End).
type Caption struct {
	SceneIndex int
	Text       string
	Start      float64
	End        float64
}

// CaptionStyle controls drawtext rendering.
type CaptionStyle struct {
	FontFile     string
	FontColor    string
	FontSize     int
	BorderWidth  int
	BorderColor  string
	BottomMargin int
}

// DefaultCaptionStyle is white 28px text with a black outline, bottom-centered.
func DefaultCaptionStyle() CaptionStyle {
	return CaptionStyle{
		FontColor:    "white",
		FontSize:     28,
		BorderWidth:  3,
		BorderColor:  "black",
		BottomMargin: 120,
	}
}

// BuildCaptions lays out one caption per scene on the merged timeline. Windows
// are back to back: scene i starts where scene i-1 ends, so windows never
// overlap and together cover [0, total duration).
func BuildCaptions(scenes []Scene) []Caption {
	captions := make([]Caption, 0, len(scenes))
	var start float64
	for _, s := range scenes {
		end := start + s.Duration
		captions = append(captions, Caption{
			SceneIndex: s.Index,
			Text:       WrapCaption(s.CaptionText(), CaptionLineWidth, CaptionMaxLines),
			Start:      start,
			End:        end,
		})
		start = end
	}
	return captions
}

// WrapCaption collapses whitespace and greedily wraps text at word boundaries
// into at most maxLines lines of at most width characters. Text beyond the last
// line is dropped. A single word longer than width is kept whole.
func WrapCaption(text string, width, maxLines int) string {
	words := strings.Fields(text)
	if len(words) == 0 || maxLines <= 0 {
		return ""
	}

	var lines []string
	current := words[0]
	for _, w := range words[1:] {
		if utf8.RuneCountInString(current)+1+utf8.RuneCountInString(w) > width {
			lines = append(lines, current)
			if len(lines) == maxLines {
				return strings.Join(lines, "\n")
			}
			current = w
			continue
		}
		current += " " + w
	}
	lines = append(lines, current)
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return strings.Join(lines, "\n")
}

// CaptionFilters renders captions as drawtext filters for a single -vf chain.
func CaptionFilters(captions []Caption, style CaptionStyle) []fg.Filter {
	filters := make([]fg.Filter, 0, len(captions))
	for _, c := range captions {
		if c.Text == "" || c.End <= c.Start {
			continue
		}
		filters = append(filters, fg.DrawText{
			Text:        c.Text,
			FontFile:    style.FontFile,
			FontColor:   style.FontColor,
			FontSize:    style.FontSize,
			BorderWidth: style.BorderWidth,
			BorderColor: style.BorderColor,
			X:           "(w-text_w)/2",
			Y:           "h-" + strconv.Itoa(style.BottomMargin),
			Enable:      fg.Between(c.Start, c.End),
		}.Filter())
	}
	return filters
}

func captionArgs(input, output string, filters []fg.Filter) []string {
	args := []string{"-i", input, "-vf", fg.Join(filters...)}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-movflags", "+faststart",
		output,
	)
	return args
}
