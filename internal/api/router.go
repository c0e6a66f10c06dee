package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// BackendAPIKey must be sent in X-API-Key or Authorization: Bearer <key>.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string

	// OutputDir is served under /output so rendered images, narration and
	// final videos are reachable by their URLs. Empty disables it.
	OutputDir string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	if cfg.OutputDir != "" {
		files := http.StripPrefix("/output/", http.FileServer(http.Dir(cfg.OutputDir)))
		r.Get("/output/*", files.ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		r.Post("/workflow", h.Workflow)

		r.Post("/jobs", h.CreateJob)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", h.GetJob)
			r.Put("/analysis", h.UpdateAnalysis)
			r.Post("/segment", h.Segment)
			r.Put("/scenes", h.UpdateScenes)
			r.Post("/images", h.GenerateImages)
			r.Post("/audio", h.GenerateAudio)
			r.Post("/render", h.Render)
		})
	})

	return r
}

func allowedOrigins(list string) []string {
	var out []string
	for _, o := range strings.Split(list, ",") {
		if s := strings.TrimSpace(o); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
