package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/storyreel/internal/api"
	"github.com/bobarin/storyreel/internal/config"
	"github.com/bobarin/storyreel/internal/db"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/bobarin/storyreel/internal/services"
	"github.com/bobarin/storyreel/internal/slideshow"
	"github.com/bobarin/storyreel/internal/storage"
	"github.com/bobarin/storyreel/internal/worker"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)
	log.Info().Msg("starting storyreel API")

	ctx := context.Background()

	var store db.Store
	if cfg.DatabaseURL != "" {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		store = database
		log.Info().Msg("connected to database")
	} else {
		store = db.NewMemoryStore()
		log.Warn().Msg("no DATABASE_URL set, jobs are kept in memory")
	}

	var broker queue.Broker
	if cfg.RedisURL != "" {
		q, err := queue.New(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to queue")
		}
		broker = q
		log.Info().Msg("connected to Redis queue")
	} else {
		broker = queue.NewMemoryQueue(256)
		log.Warn().Msg("no REDIS_URL set, using in-process queue")
	}
	defer broker.Close()

	handler := api.NewHandler(store, broker)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		OutputDir:          cfg.OutputDir,
	})

	if cfg.BackendAPIKey != "" {
		log.Info().Msg("API key authentication enabled")
	} else {
		log.Warn().Msg("no BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		w, err := newWorker(ctx, cfg, store, broker)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize worker")
		}

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(ctx)
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	go func() {
		log.Info().Str("port", cfg.APIPort).Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	if workerCancel != nil {
		workerCancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// newWorker builds the generation services and the render pipeline. Providers
// without credentials are left out and the worker degrades around them.
func newWorker(ctx context.Context, cfg *config.Config, store db.Store, broker queue.Broker) (*worker.Worker, error) {
	ffmpegSvc, err := services.NewFFmpegService(cfg.TempDir, cfg.FFmpegBin, cfg.FFprobeBin)
	if err != nil {
		return nil, err
	}
	if err := ffmpegSvc.CheckBinaries(); err != nil {
		return nil, err
	}

	pipeline, err := slideshow.New(ffmpegSvc, slideshow.Config{
		TempDir:       ffmpegSvc.TempDir(),
		OutputDir:     cfg.OutputDir,
		URLPrefix:     "/output/final",
		ProbeTimeout:  cfg.ProbeTimeout,
		EncodeTimeout: cfg.EncodeTimeout,
		CaptionStyle:  slideshow.CaptionStyle{FontFile: cfg.CaptionFontFile},
	})
	if err != nil {
		return nil, err
	}

	deps := worker.Deps{
		Store:               store,
		Broker:              broker,
		Renderer:            pipeline,
		BackgroundMusicPath: cfg.BackgroundMusicPath,
	}

	var splitter services.SceneSplitter
	if cfg.OpenAIKey != "" {
		openaiSvc := services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel)
		deps.Analyzer = openaiSvc
		splitter = openaiSvc
		log.Info().Str("model", cfg.OpenAIModel).Msg("script analysis: OpenAI")
	} else {
		log.Warn().Msg("no OPENAI_API_KEY set, scripts are segmented without a model")
	}
	deps.Segmenter = services.NewSegmenter(splitter)

	var provider services.ImageProvider
	switch cfg.ImageProvider {
	case "gemini":
		gemini, err := services.NewGeminiService(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		provider = gemini
	default:
		provider = services.NewPollinationsService()
	}
	log.Info().Str("provider", provider.Name()).Msg("image provider")

	images, err := services.NewImageService(provider, cfg.OutputDir, "/output")
	if err != nil {
		return nil, err
	}
	deps.Images = images

	var tts services.TTSService
	if cfg.ElevenLabsKey != "" {
		tts = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		log.Info().Str("voice", cfg.ElevenLabsVoiceID).Msg("narration: ElevenLabs")
	} else {
		log.Warn().Msg("no ELEVENLABS_API_KEY set, scenes will be silent")
	}
	voices, err := services.NewVoiceService(tts, cfg.OutputDir, "/output")
	if err != nil {
		return nil, err
	}
	deps.Voices = voices

	if cfg.SupabaseEnabled() {
		deps.Publisher = storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		log.Info().Str("bucket", cfg.SupabaseStorageBucket).Msg("publishing final videos to Supabase")
	}

	return worker.New(deps), nil
}
