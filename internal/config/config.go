package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database (empty = in-memory job store)
	DatabaseURL string

	// Redis (empty = in-process queue)
	RedisURL string

	// Supabase (optional: final videos are also published here when set)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// OpenAI (script analysis and scene segmentation)
	OpenAIKey   string
	OpenAIModel string

	// Images
	ImageProvider string // "gemini" or "pollinations"
	GeminiKey     string
	GeminiModel   string

	// ElevenLabs (narration)
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Rendering
	OutputDir           string
	TempDir             string
	FFmpegBin           string
	FFprobeBin          string
	ProbeTimeout        time.Duration
	EncodeTimeout       time.Duration
	CaptionFontFile     string
	BackgroundMusicPath string // Path to default background music file (empty = no music)

	// Worker
	MaxConcurrentJobs int

	// Logging
	LogLevel  string
	LogFormat string // "console" or "json"
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "storyreel-videos"),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		ImageProvider:         getEnv("IMAGE_PROVIDER", "pollinations"),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_IMAGE_MODEL", "imagen-3.0-generate-002"),
		ElevenLabsKey:         getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		OutputDir:             getEnv("OUTPUT_DIR", "output"),
		TempDir:               getEnv("TEMP_DIR", "/tmp/storyreel"),
		FFmpegBin:             getEnv("FFMPEG_BIN", "ffmpeg"),
		FFprobeBin:            getEnv("FFPROBE_BIN", "ffprobe"),
		ProbeTimeout:          getEnvDuration("PROBE_TIMEOUT", 15*time.Second),
		EncodeTimeout:         getEnvDuration("ENCODE_TIMEOUT", 10*time.Minute),
		CaptionFontFile:       getEnv("CAPTION_FONT_FILE", ""),
		BackgroundMusicPath:   getEnv("BACKGROUND_MUSIC_PATH", ""),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 2),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks combinations that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.ImageProvider {
	case "pollinations":
	case "gemini":
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when IMAGE_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("IMAGE_PROVIDER must be gemini or pollinations, got %q", c.ImageProvider)
	}

	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}

	if c.OutputDir == "" || c.TempDir == "" {
		return fmt.Errorf("OUTPUT_DIR and TEMP_DIR must not be empty")
	}

	if c.ProbeTimeout <= 0 || c.EncodeTimeout <= 0 {
		return fmt.Errorf("PROBE_TIMEOUT and ENCODE_TIMEOUT must be positive")
	}

	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}

	return nil
}

// SupabaseEnabled reports whether final videos should be published to storage.
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "5m") or bare seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs := getEnvFloat(key, -1); secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
