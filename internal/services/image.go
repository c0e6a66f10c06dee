package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultArtStyle     = "anime style, soft pastel colors"
	consistencyKeywords = "consistent character design, same character throughout, model sheet style"
	qualityKeywords     = "detailed, professional illustration, high quality"
	placeholderBaseURL  = "https://placehold.co"
	placeholderSize     = 1024
	maxPlaceholderLabel = 40
	placeholderTimeout  = 20 * time.Second
)

// ImageProvider renders one picture from a text prompt.
type ImageProvider interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
	Name() string
}

// GeneratedImage is a scene picture on local disk.
type GeneratedImage struct {
	Path        string
	URL         string
	Placeholder bool
}

// ImageService writes scene images under <output>/images. A provider failure
// never fails the scene: a placeholder picture is written instead.
type ImageService struct {
	provider       ImageProvider
	dir            string
	urlPrefix      string
	client         *http.Client
	placeholderURL string
}

func NewImageService(provider ImageProvider, outputDir, urlPrefix string) (*ImageService, error) {
	dir := filepath.Join(outputDir, "images")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %w", err)
	}
	return &ImageService{
		provider:       provider,
		dir:            dir,
		urlPrefix:      strings.TrimRight(urlPrefix, "/") + "/images",
		client:         &http.Client{Timeout: placeholderTimeout},
		placeholderURL: placeholderBaseURL,
	}, nil
}

// GenerateSceneImage renders the scene and stores it as scene_<index>_<job>.png.
func (s *ImageService) GenerateSceneImage(ctx context.Context, jobID uuid.UUID, scene models.Scene, analysis *models.Analysis) (*GeneratedImage, error) {
	prompt := BuildImagePrompt(scene, analysis)
	filename := fmt.Sprintf("scene_%d_%s.png", scene.Index, jobID.String()[:8])
	out := &GeneratedImage{
		Path: filepath.Join(s.dir, filename),
		URL:  path.Join(s.urlPrefix, filename),
	}

	var data []byte
	var err error
	if s.provider != nil {
		data, err = s.provider.GenerateImage(ctx, prompt)
		if err == nil && len(data) == 0 {
			err = fmt.Errorf("%s returned an empty image", s.provider.Name())
		}
		if err != nil {
			log.Warn().Err(err).Str("provider", s.provider.Name()).Int("scene", scene.Index).Msg("image generation failed, using placeholder")
		}
	} else {
		err = fmt.Errorf("no image provider configured")
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		data = s.placeholder(ctx, sceneLabel(scene))
		out.Placeholder = true
	}

	if err := os.WriteFile(out.Path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write scene image: %w", err)
	}

	log.Info().Int("scene", scene.Index).Str("path", out.Path).Bool("placeholder", out.Placeholder).Msg("scene image ready")
	return out, nil
}

// BuildImagePrompt joins the scene description, the traits of the characters
// present, the art style and the consistency and quality keywords.
func BuildImagePrompt(scene models.Scene, analysis *models.Analysis) string {
	desc := scene.Description
	if desc == "" {
		desc = scene.Title
	}
	if desc == "" {
		desc = "a scene"
	}

	var chars []string
	for _, name := range scene.Characters {
		c := analysis.Character(name)
		if c == nil {
			continue
		}
		var traits []string
		for _, t := range []string{c.Appearance, c.Clothing} {
			if t != "" {
				traits = append(traits, t)
			}
		}
		if c.Age != "" && c.Age != "unknown" {
			traits = append(traits, "age "+c.Age)
		}
		if len(traits) == 0 {
			chars = append(chars, c.Name)
			continue
		}
		chars = append(chars, c.Name+": "+strings.Join(traits, ", "))
	}

	style := analysis.ArtStyle()
	if style == "" {
		style = defaultArtStyle
	}

	parts := []string{desc}
	if len(chars) > 0 {
		parts = append(parts, "Characters: "+strings.Join(chars, ". "))
	}
	parts = append(parts, "Art style: "+style, consistencyKeywords, qualityKeywords)
	return strings.Join(parts, ". ")
}

func sceneLabel(scene models.Scene) string {
	label := scene.Title
	if label == "" {
		label = fmt.Sprintf("Scene %d", scene.Index+1)
	}
	return truncateRunes(label, maxPlaceholderLabel)
}

// placeholder fetches a labelled card from placehold.co, or draws a plain one
// when that is unreachable.
func (s *ImageService) placeholder(ctx context.Context, label string) []byte {
	u := fmt.Sprintf("%s/%dx%d/png?text=%s", s.placeholderURL, placeholderSize, placeholderSize, url.QueryEscape(label))
	data, err := s.fetch(ctx, u)
	if err == nil {
		return data
	}
	log.Warn().Err(err).Msg("placeholder service unavailable, drawing locally")
	return solidPNG(placeholderSize, placeholderSize, color.RGBA{R: 0x2b, G: 0x2d, B: 0x42, A: 0xff})
}

func (s *ImageService) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("placeholder returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("placeholder returned empty body")
	}
	return data, nil
}

func solidPNG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	_ = png.Encode(&buf, img) // in-memory encode of an RGBA image does not fail
	return buf.Bytes()
}
