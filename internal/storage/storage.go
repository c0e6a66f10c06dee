package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// Upload timeout per attempt; final videos can be a few hundred MB
	uploadTimeout = 300 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Storage publishes finished videos to a Supabase Storage bucket.
type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	retryBase  time.Duration
}

func New(url, serviceKey, bucket string) *Storage {
	return &Storage{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryBase: baseRetryDelay,
	}
}

// Upload uploads a file to Supabase Storage with retries and exponential backoff.
// Uses PUT with Content-Length and x-upsert so re-publishing a job overwrites.
func (s *Storage) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, objectPath)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay(attempt)
			log.Warn().Err(lastErr).Int("attempt", attempt).Str("path", objectPath).Dur("wait", delay).Msg("storage upload retry")

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		retryable, err := s.put(ctx, url, data, contentType)
		if err == nil {
			if attempt > 0 {
				log.Info().Int("attempt", attempt+1).Str("path", objectPath).Msg("storage upload succeeded after retry")
			}
			return nil
		}
		lastErr = err
		if !retryable {
			return lastErr
		}
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

// put performs one upload attempt and reports whether a failure is worth retrying.
func (s *Storage) put(ctx context.Context, url string, data []byte, contentType string) (bool, error) {
	// Each attempt gets its own timeout, bounded by the caller's ctx
	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	req.ContentLength = int64(len(data))

	resp, err := s.client.Do(req)
	if err != nil {
		return isRetryableError(err), fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return false, nil
	}

	body, _ := io.ReadAll(resp.Body)
	return isRetryableStatus(resp.StatusCode),
		fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
}

// UploadFile uploads a file from a local path
func (s *Storage) UploadFile(ctx context.Context, objectPath, localPath string, contentType string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", localPath, err)
	}

	return s.Upload(ctx, objectPath, data, contentType)
}

// PublishVideo uploads a rendered video for a job and returns its public URL.
func (s *Storage) PublishVideo(ctx context.Context, jobID uuid.UUID, localPath string) (string, error) {
	objectPath := s.ObjectPath(jobID, filepath.Base(localPath))
	if err := s.UploadFile(ctx, objectPath, localPath, "video/mp4"); err != nil {
		return "", err
	}
	return s.GetPublicURL(objectPath), nil
}

// GetPublicURL returns the public URL for a file
func (s *Storage) GetPublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, objectPath)
}

// ObjectPath creates the bucket path for a job's file
func (s *Storage) ObjectPath(jobID uuid.UUID, filename string) string {
	return path.Join(jobID.String(), "final", filename)
}

// retryDelay calculates exponential backoff with jitter: base * 2^(attempt-1) + random jitter
func (s *Storage) retryDelay(attempt int) time.Duration {
	delay := float64(s.retryBase) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// Add up to 25% jitter
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
