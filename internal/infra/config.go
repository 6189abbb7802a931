package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// StoragePath is the root of the movie cache on disk; StorageBaseURL is
	// the public prefix artifact keys are served under.
	StoragePath    string
	StorageBaseURL string

	FFmpegBin           string
	CompositorBin       string
	EncoderProfilesPath string

	GeoIPDBPath string

	DefaultWindow    time.Duration
	GlobalMaxFrames  int
	PlaybackSeconds  int
	MaxFrameRate     float64
	MinVideoBytes    int64
	MaxWidth         int
	MaxHeight        int
	MinRegionArcsec  float64
	RegenStaleness   time.Duration
	WorkerPollEvery  time.Duration
	AllowedOrigins   []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		StoragePath:         getEnv("STORAGE_PATH", "./data"),
		FFmpegBin:           getEnv("FFMPEG_BIN", "ffmpeg"),
		CompositorBin:       getEnv("COMPOSITOR_BIN", "frame-compositor"),
		EncoderProfilesPath: os.Getenv("ENCODER_PROFILES_PATH"),
		GeoIPDBPath:         os.Getenv("GEOIP_DB_PATH"),
		DefaultWindow:       time.Hour * time.Duration(getEnvInt("DEFAULT_WINDOW_HOURS", 24)),
		GlobalMaxFrames:     getEnvInt("GLOBAL_MAX_FRAMES", 300),
		PlaybackSeconds:     getEnvInt("PLAYBACK_SECONDS", 20),
		MaxFrameRate:        getEnvFloat("MAX_FRAME_RATE", 30),
		MinVideoBytes:       int64(getEnvInt("MIN_VIDEO_BYTES", 1000)),
		MaxWidth:            getEnvInt("MAX_WIDTH", 1920),
		MaxHeight:           getEnvInt("MAX_HEIGHT", 1200),
		MinRegionArcsec:     getEnvFloat("MIN_REGION_ARCSEC", 1),
		RegenStaleness:      time.Hour * time.Duration(getEnvInt("REGEN_STALENESS_HOURS", 1)),
		WorkerPollEvery:     time.Second * time.Duration(getEnvInt("WORKER_POLL_SECONDS", 2)),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}
	cfg.StorageBaseURL = getEnv("STORAGE_BASE_URL", "http://localhost:"+cfg.Port+"/static")
	cfg.AllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", "*"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.GlobalMaxFrames <= 0 {
		return nil, fmt.Errorf("GLOBAL_MAX_FRAMES must be positive")
	}
	if cfg.PlaybackSeconds <= 0 {
		return nil, fmt.Errorf("PLAYBACK_SECONDS must be positive")
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
