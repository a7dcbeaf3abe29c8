package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv  string
	Port    string
	DataDir string

	// JobsDir, ArtifactsDir and EventsDir default to subdirectories of DataDir.
	JobsDir      string
	ArtifactsDir string
	EventsDir    string
	ScratchDir   string

	PresetDir      string
	WatchPresets   bool
	DefaultEngine  string
	EngineTimeout  time.Duration // zero means unbounded
	SDWebUIBaseURL string

	BedrockEnabled bool
	BedrockRegion  string
	BedrockModelID string

	// DatabaseURL switches job history to Postgres when set.
	DatabaseURL string

	GeoIPDBPath string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	CORSAllowedOrigins []string
	DefaultLocale      string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "development"),
		Port:    getEnv("PORT", "8080"),
		DataDir: dataDir,

		JobsDir:      getEnv("JOBS_DIR", filepath.Join(dataDir, "jobs")),
		ArtifactsDir: getEnv("ARTIFACTS_DIR", filepath.Join(dataDir, "artifacts")),
		EventsDir:    getEnv("EVENTS_DIR", filepath.Join(dataDir, "events")),
		ScratchDir:   getEnv("SCRATCH_DIR", filepath.Join(dataDir, "scratch")),

		PresetDir:      getEnv("PRESET_DIR", "./configs/presets"),
		WatchPresets:   getEnvBool("PRESET_WATCH", false),
		DefaultEngine:  getEnv("DEFAULT_ENGINE", "local"),
		EngineTimeout:  time.Second * time.Duration(getEnvInt("ENGINE_TIMEOUT_SECONDS", 0)),
		SDWebUIBaseURL: getEnv("SDWEBUI_BASE_URL", "http://127.0.0.1:7860"),

		BedrockEnabled: getEnvBool("BEDROCK_ENABLED", false),
		BedrockRegion:  getEnv("BEDROCK_REGION", "us-east-1"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", "stability.stable-diffusion-xl-v1"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "en"),
	}

	if cfg.PresetDir == "" {
		return nil, fmt.Errorf("PRESET_DIR is required")
	}

	return cfg, nil
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

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
