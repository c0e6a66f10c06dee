package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const pollinationsBaseURL = "https://image.pollinations.ai"

// PollinationsService renders images through the free Pollinations endpoint.
// No API key; the prompt travels in the URL path.
type PollinationsService struct {
	baseURL string
	client  *http.Client
}

var _ ImageProvider = (*PollinationsService)(nil)

func NewPollinationsService() *PollinationsService {
	return &PollinationsService{
		baseURL: pollinationsBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *PollinationsService) Name() string { return "pollinations" }

func (s *PollinationsService) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	u := fmt.Sprintf("%s/prompt/%s?width=1024&height=1024&nologo=true&model=flux",
		s.baseURL, url.PathEscape(prompt))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pollinations request: %w", err)
	}

	log.Debug().Str("prompt", truncateString(prompt, 120)).Msg("pollinations request")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pollinations request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pollinations returned status %d: %s", resp.StatusCode, string(body))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("pollinations returned %s instead of an image", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read pollinations image: %w", err)
	}
	return data, nil
}
