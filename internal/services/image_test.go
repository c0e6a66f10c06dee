package services

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/google/uuid"
)

type fakeImageProvider struct {
	data   []byte
	err    error
	prompt string
}

func (f *fakeImageProvider) Name() string { return "fake" }

func (f *fakeImageProvider) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	f.prompt = prompt
	return f.data, f.err
}

func newTestImageService(t *testing.T, provider ImageProvider, placeholder http.Handler) *ImageService {
	t.Helper()
	svc, err := NewImageService(provider, t.TempDir(), "/output")
	if err != nil {
		t.Fatal(err)
	}
	if placeholder != nil {
		srv := httptest.NewServer(placeholder)
		t.Cleanup(srv.Close)
		svc.placeholderURL = srv.URL
	} else {
		svc.placeholderURL = "http://127.0.0.1:0"
	}
	return svc
}

func TestBuildImagePrompt(t *testing.T) {
	analysis := &models.Analysis{
		Characters: []models.Character{
			{Name: "Mai", Appearance: "short black hair", Clothing: "red scarf", Age: "10"},
			{Name: "Ghost", Age: "unknown"},
		},
		Setting: models.JSONB{"artStyle": "watercolor"},
	}
	scene := models.Scene{Description: "Mai waves at the ghost", Characters: []string{"Mai", "Ghost", "Nobody"}}

	got := BuildImagePrompt(scene, analysis)
	want := "Mai waves at the ghost. Characters: Mai: short black hair, red scarf, age 10. Ghost. " +
		"Art style: watercolor. " + consistencyKeywords + ". " + qualityKeywords
	if got != want {
		t.Errorf("BuildImagePrompt =\n%q\nwant\n%q", got, want)
	}
}

func TestBuildImagePromptDefaults(t *testing.T) {
	got := BuildImagePrompt(models.Scene{Title: "Scene 3"}, nil)
	if !strings.HasPrefix(got, "Scene 3. Art style: "+defaultArtStyle) {
		t.Errorf("unexpected prompt %q", got)
	}
	if strings.Contains(got, "Characters:") {
		t.Errorf("no characters expected in %q", got)
	}
}

func TestGenerateSceneImage(t *testing.T) {
	provider := &fakeImageProvider{data: []byte("png-bytes")}
	svc := newTestImageService(t, provider, nil)
	jobID := uuid.MustParse("12345678-aaaa-bbbb-cccc-1234567890ab")

	img, err := svc.GenerateSceneImage(context.Background(), jobID, models.Scene{Index: 2, Description: "A lantern"}, nil)
	if err != nil {
		t.Fatalf("GenerateSceneImage: %v", err)
	}

	if filepath.Base(img.Path) != "scene_2_12345678.png" || img.URL != "/output/images/scene_2_12345678.png" {
		t.Errorf("unexpected location %q %q", img.Path, img.URL)
	}
	if img.Placeholder {
		t.Error("provider image should not be marked as placeholder")
	}
	data, _ := os.ReadFile(img.Path)
	if string(data) != "png-bytes" {
		t.Errorf("unexpected file content %q", data)
	}
	if !strings.HasPrefix(provider.prompt, "A lantern. Art style:") {
		t.Errorf("unexpected prompt %q", provider.prompt)
	}
}

func TestGenerateSceneImageUsesPlaceholderService(t *testing.T) {
	var gotQuery string
	placeholder := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("text")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("placeholder"))
	})
	svc := newTestImageService(t, &fakeImageProvider{err: errors.New("quota exceeded")}, placeholder)

	img, err := svc.GenerateSceneImage(context.Background(), uuid.New(), models.Scene{Index: 0, Title: "Scene 1"}, nil)
	if err != nil {
		t.Fatalf("GenerateSceneImage: %v", err)
	}
	if !img.Placeholder {
		t.Error("expected placeholder")
	}
	if gotQuery != "Scene 1" {
		t.Errorf("placeholder label = %q", gotQuery)
	}
	data, _ := os.ReadFile(img.Path)
	if string(data) != "placeholder" {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestGenerateSceneImageDrawsLocalPlaceholder(t *testing.T) {
	svc := newTestImageService(t, nil, nil)

	img, err := svc.GenerateSceneImage(context.Background(), uuid.New(), models.Scene{Index: 1}, nil)
	if err != nil {
		t.Fatalf("GenerateSceneImage: %v", err)
	}
	data, err := os.ReadFile(img.Path)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("local placeholder is not a png: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != placeholderSize || b.Dy() != placeholderSize {
		t.Errorf("unexpected placeholder size %v", b)
	}
}

func TestPollinationsRequest(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	p := NewPollinationsService()
	p.baseURL = srv.URL

	data, err := p.GenerateImage(context.Background(), "a cat, anime style")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(data) != "jpeg" {
		t.Errorf("unexpected data %q", data)
	}
	if gotPath != "/prompt/a cat, anime style" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotQuery != "width=1024&height=1024&nologo=true&model=flux" {
		t.Errorf("unexpected query %q", gotQuery)
	}
}

func TestPollinationsRejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>busy</html>"))
	}))
	defer srv.Close()

	p := NewPollinationsService()
	p.baseURL = srv.URL
	if _, err := p.GenerateImage(context.Background(), "x"); err == nil {
		t.Error("expected error for html response")
	}
}
