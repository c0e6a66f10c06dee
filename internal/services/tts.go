package services

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData  []byte
	DurationMs int
	Format     string // "mp3", "wav", etc.
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	// GenerateSpeech converts text to audio. voiceStyle is a human-readable
	// description of the speaker ("young girl voice"); providers may ignore it.
	GenerateSpeech(ctx context.Context, text, voiceStyle string) (*TTSResponse, error)
}

// GeneratedAudio is a scene narration file on local disk.
type GeneratedAudio struct {
	Path       string
	URL        string
	DurationMs int
}

// VoiceService writes scene narration under <output>/audio. Missing text, a
// missing provider or a provider failure all yield no audio and no error; the
// renderer lays silence under such scenes.
type VoiceService struct {
	tts       TTSService
	dir       string
	urlPrefix string
}

func NewVoiceService(tts TTSService, outputDir, urlPrefix string) (*VoiceService, error) {
	dir := filepath.Join(outputDir, "audio")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}
	return &VoiceService{
		tts:       tts,
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/") + "/audio",
	}, nil
}

// GenerateSceneAudio voices the scene's narration. It returns nil when the
// scene ends up silent.
func (s *VoiceService) GenerateSceneAudio(ctx context.Context, jobID uuid.UUID, scene models.Scene, analysis *models.Analysis) (*GeneratedAudio, error) {
	text := strings.TrimSpace(scene.NarrationText())
	if text == "" {
		log.Info().Int("scene", scene.Index).Msg("no narration text, scene stays silent")
		return nil, nil
	}
	if s.tts == nil {
		return nil, nil
	}

	resp, err := s.tts.GenerateSpeech(ctx, text, sceneVoiceStyle(scene, analysis))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Int("scene", scene.Index).Msg("speech generation failed, scene stays silent")
		return nil, nil
	}

	format := resp.Format
	if format == "" {
		format = "mp3"
	}
	filename := fmt.Sprintf("scene_%d_%s.%s", scene.Index, jobID.String()[:8], format)
	out := &GeneratedAudio{
		Path:       filepath.Join(s.dir, filename),
		URL:        path.Join(s.urlPrefix, filename),
		DurationMs: resp.DurationMs,
	}
	if err := os.WriteFile(out.Path, resp.AudioData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write scene audio: %w", err)
	}

	log.Info().Int("scene", scene.Index).Str("path", out.Path).Int("estimated_ms", out.DurationMs).Msg("scene audio ready")
	return out, nil
}

// sceneVoiceStyle uses the first character in the scene that the analysis knows.
func sceneVoiceStyle(scene models.Scene, analysis *models.Analysis) string {
	for _, name := range scene.Characters {
		if c := analysis.Character(name); c != nil {
			return c.VoiceStyle
		}
	}
	return "neutral voice"
}

// estimateAudioDuration estimates duration based on text length and speed.
// Narration pace is ~140 words per minute at speed 1.0.
func estimateAudioDuration(text string, speed float64) int {
	if speed <= 0 {
		speed = 1
	}
	words := len(strings.Fields(text))
	minutes := float64(words) / (140.0 * speed)
	return int(minutes * 60 * 1000)
}
