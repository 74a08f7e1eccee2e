package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/femi-ajayi/transfer-extractor/constants"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Cache    CacheConfig
	Vision   VisionConfig
	LLM      LLMConfig
	Extract  ExtractConfig
	Registry RegistryConfig
	Imaging  ImagingConfig
	Ingest   IngestConfig
	Queue    QueueConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// CacheConfig selects and configures the extraction cache store
type CacheConfig struct {
	Backend       string // memory | redis | sql
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLDriver     string // sqlite | pgx
	SQLDSN        string
}

// VisionConfig configures the primary vision OCR backend
type VisionConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// LLMConfig configures the secondary context-aware LLM backend
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// ExtractConfig holds orchestrator tunables
type ExtractConfig struct {
	QualityThreshold float64
	PrimaryTimeout   time.Duration
	SecondaryTimeout time.Duration
}

// RegistryConfig points at optional bank registry sources merged over the
// built-in table
type RegistryConfig struct {
	YAMLPath string
	XLSXPath string
}

// ImagingConfig holds image acquisition settings
type ImagingConfig struct {
	MaxImageMB       int
	HeicConverter    string
	ArtifactCacheDir string
	FetchTimeout     time.Duration
}

// IngestConfig holds drop-folder watcher settings
type IngestConfig struct {
	WatchDirs   []string
	Debounce    time.Duration
	InitialScan bool
}

// QueueConfig holds async worker pool settings
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "memory"),
			TTL:           getEnvAsDuration("CACHE_TTL", constants.CacheTTLDefault),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			SQLDriver:     getEnv("CACHE_DB_DRIVER", "sqlite"),
			SQLDSN:        getEnv("CACHE_DB_DSN", ""),
		},
		Vision: VisionConfig{
			APIKey:    getEnv("ANTHROPIC_API_KEY", ""),
			BaseURL:   getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			Model:     getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
			MaxTokens: getEnvAsInt("ANTHROPIC_MAX_TOKENS", 1024),
			Timeout:   getEnvAsDuration("ANTHROPIC_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat64("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Extract: ExtractConfig{
			QualityThreshold: getEnvAsFloat64("QUALITY_THRESHOLD", constants.QualityThresholdDefault),
			PrimaryTimeout:   getEnvAsDuration("PRIMARY_TIMEOUT", constants.PrimaryTimeoutDefault),
			SecondaryTimeout: getEnvAsDuration("SECONDARY_TIMEOUT", constants.SecondaryTimeoutDefault),
		},
		Registry: RegistryConfig{
			YAMLPath: getEnv("BANKS_YAML", ""),
			XLSXPath: getEnv("BANKS_XLSX", ""),
		},
		Imaging: ImagingConfig{
			MaxImageMB:       getEnvAsInt("MAX_IMAGE_MB", constants.MaxImageMBDefault),
			HeicConverter:    getEnv("HEIC_CONVERTER", "magick"),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
			FetchTimeout:     getEnvAsDuration("IMAGE_FETCH_TIMEOUT", 10*time.Second),
		},
		Ingest: IngestConfig{
			WatchDirs:   getEnvAsSlice("WATCH_DIRS", nil),
			Debounce:    getEnvAsDuration("WATCH_DEBOUNCE", 500*time.Millisecond),
			InitialScan: getEnvAsBool("WATCH_INITIAL_SCAN", true),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("QUEUE_WORKERS", 4),
			Size:           getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("QUEUE_PROCESS_TIMEOUT", 2*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Vision.APIKey == "" && c.LLM.APIKey == "" {
		return NewAppError(CodeConfig, "at least one of ANTHROPIC_API_KEY or OPENAI_API_KEY is required", ErrInvalidInput)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "sql":
	default:
		return NewAppError(CodeConfig, "CACHE_BACKEND must be one of: memory | redis | sql", ErrInvalidInput)
	}
	if c.Cache.Backend == "sql" && c.Cache.SQLDSN == "" {
		return NewAppError(CodeConfig, "CACHE_DB_DSN is required when CACHE_BACKEND=sql", ErrInvalidInput)
	}
	if c.Cache.TTL <= 0 {
		return NewAppError(CodeConfig, "CACHE_TTL must be positive", ErrInvalidInput)
	}
	if c.Extract.QualityThreshold < 0 || c.Extract.QualityThreshold > 100 {
		return NewAppError(CodeConfig, "QUALITY_THRESHOLD must be within [0,100]", ErrInvalidInput)
	}
	return nil
}
