package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	maxSceneDescription = 600
	sentenceSplitMin    = 300 // scripts shorter than this stay one scene when the model fails
	maxSentencesPerBeat = 3
	maxBeatLength       = 250
)

// SceneSplitter cuts an unbroken script into scene blocks.
type SceneSplitter interface {
	SplitScenes(ctx context.Context, script string, characters []string) ([]string, error)
}

// Segmenter turns a script into ordered scenes. The splitter is only consulted
// when the script has no blank-line or "Scene ..." breaks; it may be nil.
type Segmenter struct {
	splitter SceneSplitter
}

func NewSegmenter(splitter SceneSplitter) *Segmenter {
	return &Segmenter{splitter: splitter}
}

func (s *Segmenter) Segment(ctx context.Context, script string, analysis *models.Analysis) []models.Scene {
	var names []string
	if analysis != nil {
		for _, c := range analysis.Characters {
			names = append(names, c.Name)
		}
	}

	blocks := SplitBlocks(script)
	if len(blocks) <= 1 {
		blocks = s.splitUnbroken(ctx, script, names)
	}

	scenes := make([]models.Scene, 0, len(blocks))
	for i, block := range blocks {
		scenes = append(scenes, models.Scene{
			Index:        i,
			Title:        fmt.Sprintf("Scene %d", i+1),
			Description:  truncateRunes(block, maxSceneDescription),
			Action:       InferAction(block),
			Setting:      analysis.Location(),
			Characters:   ExtractCharacters(block, names),
			DurationHint: InferDuration(block),
		})
	}
	return scenes
}

func (s *Segmenter) splitUnbroken(ctx context.Context, script string, names []string) []string {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil
	}

	if s.splitter != nil {
		blocks, err := s.splitter.SplitScenes(ctx, script, names)
		if err == nil {
			log.Info().Int("scenes", len(blocks)).Msg("model segmented script")
			return blocks
		}
		log.Warn().Err(err).Msg("model segmentation failed, falling back to sentences")
	}

	if len(script) > sentenceSplitMin {
		return SplitBySentences(script)
	}
	return []string{script}
}

var blockBreak = regexp.MustCompile(`(?im)\n\s*\n|^\s*Scene\b[^\n]*\n`)

// SplitBlocks splits on blank lines and "Scene ..." header lines.
func SplitBlocks(script string) []string {
	script = strings.ReplaceAll(script, "\r\n", "\n")
	var blocks []string
	for _, b := range blockBreak.Split(script, -1) {
		if b = strings.TrimSpace(b); b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

var (
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)
	locationChange  = regexp.MustCompile(`(?i)\b(arrived|entered|reached|went to|moved to|traveled to|inside|outside)\b`)
	timeChange      = regexp.MustCompile(`(?i)\b(later|meanwhile|next|then|suddenly|after|when)\b`)
	actionChange    = regexp.MustCompile(`(?i)\b(found|discovered|saw|met|began|started|escaped|ran)\b`)
)

// SplitBySentences groups sentences into beats, breaking on a change of place,
// time or action, after three sentences, or once a beat passes 250 characters.
func SplitBySentences(text string) []string {
	var sentences []string
	end := 0
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		sentences = append(sentences, text[loc[0]:loc[1]])
		end = loc[1]
	}
	if rest := strings.TrimSpace(text[end:]); rest != "" {
		sentences = append(sentences, rest)
	}
	if len(sentences) == 0 {
		sentences = []string{text}
	}

	var beats []string
	var current strings.Builder
	count := 0
	for i, raw := range sentences {
		sentence := strings.TrimSpace(raw)
		current.WriteString(sentence)
		current.WriteByte(' ')
		count++

		brk := locationChange.MatchString(sentence) ||
			timeChange.MatchString(sentence) ||
			actionChange.MatchString(sentence) ||
			count >= maxSentencesPerBeat ||
			current.Len() > maxBeatLength ||
			i == len(sentences)-1

		if brk {
			if beat := strings.TrimSpace(current.String()); beat != "" {
				beats = append(beats, beat)
			}
			current.Reset()
			count = 0
		}
	}

	if len(beats) == 0 && strings.TrimSpace(text) != "" {
		beats = append(beats, strings.TrimSpace(text))
	}
	return beats
}

// ExtractCharacters returns the known names mentioned in text, matched
// case-insensitively on word boundaries, in the order they are known.
func ExtractCharacters(text string, names []string) []string {
	present := []string{}
	seen := make(map[string]bool)
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		re, err := regexp.Compile(`(?i)(^|\b)` + regexp.QuoteMeta(name) + `(\b|:)`)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			present = append(present, name)
			seen[name] = true
		}
	}
	return present
}

var (
	actionShot       = regexp.MustCompile(`(?i)\b(runs?|chases?|fight|explosion)\b`)
	conversationShot = regexp.MustCompile(`(?i)\b(whisper|talks?|dialogue|conversation)\b`)
	trackingShot     = regexp.MustCompile(`(?i)\b(walks?|travels?|journey)\b`)
)

// InferAction picks a camera treatment from the verbs in a scene.
func InferAction(text string) string {
	switch {
	case actionShot.MatchString(text):
		return "dynamic action shot"
	case conversationShot.MatchString(text):
		return "two-shot conversation"
	case trackingShot.MatchString(text):
		return "tracking shot"
	default:
		return "static shot with gentle camera movement"
	}
}

// InferDuration is the word count divided by 12, rounded and clamped to [3, 10].
func InferDuration(text string) int {
	words := len(strings.Fields(text))
	d := int(math.Round(float64(words) / 12))
	if d < 3 {
		return 3
	}
	if d > 10 {
		return 10
	}
	return d
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
