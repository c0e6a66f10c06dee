package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const defaultGeminiImageModel = "imagen-3.0-generate-002"

// GeminiService renders scene images with Imagen through the Gemini API.
type GeminiService struct {
	client *genai.Client
	model  string
}

var _ ImageProvider = (*GeminiService)(nil)

func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	if model == "" {
		model = defaultGeminiImageModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiService{client: client, model: model}, nil
}

func (s *GeminiService) Name() string { return "gemini" }

// GenerateImage returns the bytes of a single 16:9 image for the prompt.
func (s *GeminiService) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := s.client.Models.GenerateImages(ctx, s.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    "16:9",
	})
	if err != nil {
		return nil, fmt.Errorf("imagen request failed: %w", err)
	}

	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("imagen returned no images")
	}

	data := resp.GeneratedImages[0].Image.ImageBytes
	log.Debug().Str("model", s.model).Int("bytes", len(data)).Msg("imagen image generated")
	return data, nil
}
