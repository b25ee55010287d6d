// Package config loads cutline settings from an optional .env file and the
// process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"cutline/internal/pkg/logger"
)

// Config holds every setting of the API process.
type Config struct {
	HTTPPort string
	Log      LogConfig

	CORSAllowedOrigins []string

	// RenderServiceURL is the base URL of the render worker.
	RenderServiceURL string
	StatusFallback   bool

	Stream StreamConfig

	RecordTTL       time.Duration
	JanitorInterval time.Duration

	Redis RedisConfig
	// DatabaseURL enables the ingest journal when set.
	DatabaseURL string

	Storage StorageConfig

	InstanceID string
}

type LogConfig struct {
	Level     string
	Format    string
	AddSource bool
}

// StreamConfig tunes push delivery.
type StreamConfig struct {
	GraceWindow  time.Duration
	Heartbeat    time.Duration
	WriteTimeout time.Duration
	QueueSize    int
}

// RedisConfig configures the cross-replica relay. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// StorageConfig selects the caption sidecar backend. An empty Provider
// disables sidecars.
type StorageConfig struct {
	Provider  string
	LocalRoot string
	GDrive    GDriveConfig
	S3        S3Config
}

type GDriveConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FolderID     string
}

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Load reads envFile when it exists and then builds a Config from the
// environment. A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	var p parser
	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		Log: LogConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			AddSource: p.bool("LOG_SOURCE", false),
		},
		CORSAllowedOrigins: getEnvCSV("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		RenderServiceURL:   strings.TrimRight(getEnv("RENDER_SERVICE_URL", "http://localhost:3001"), "/"),
		StatusFallback:     p.bool("STATUS_FALLBACK", true),
		Stream: StreamConfig{
			GraceWindow:  p.duration("STREAM_GRACE_WINDOW", time.Second),
			Heartbeat:    p.duration("STREAM_HEARTBEAT", 15*time.Second),
			WriteTimeout: p.duration("STREAM_WRITE_TIMEOUT", 10*time.Second),
			QueueSize:    p.int("STREAM_QUEUE_SIZE", 64),
		},
		RecordTTL:       p.duration("RECORD_TTL", time.Hour),
		JanitorInterval: p.duration("JANITOR_INTERVAL", time.Minute),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       p.int("REDIS_DB", 0),
			Channel:  getEnv("RELAY_CHANNEL", "cutline:job-updates"),
		},
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Storage: StorageConfig{
			Provider:  strings.ToLower(getEnv("STORAGE_PROVIDER", "")),
			LocalRoot: getEnv("STORAGE_LOCAL_ROOT", "./data/storage"),
			GDrive: GDriveConfig{
				ClientID:     getEnv("GDRIVE_CLIENT_ID", ""),
				ClientSecret: getEnv("GDRIVE_CLIENT_SECRET", ""),
				RefreshToken: getEnv("GDRIVE_REFRESH_TOKEN", ""),
				FolderID:     getEnv("GDRIVE_FOLDER_ID", ""),
			},
			S3: S3Config{
				Endpoint:  getEnv("S3_ENDPOINT", "localhost:9000"),
				Region:    getEnv("S3_REGION", "us-east-1"),
				Bucket:    getEnv("S3_BUCKET", "cutline"),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
				UseSSL:    p.bool("S3_USE_SSL", false),
			},
		},
		InstanceID: getEnv("INSTANCE_ID", uuid.NewString()),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}
	if c.Stream.QueueSize < 1 {
		return fmt.Errorf("STREAM_QUEUE_SIZE must be at least 1, got %d", c.Stream.QueueSize)
	}
	if c.Stream.Heartbeat <= 0 {
		return fmt.Errorf("STREAM_HEARTBEAT must be positive")
	}
	if c.RecordTTL < 0 {
		return fmt.Errorf("RECORD_TTL must not be negative")
	}
	switch c.Storage.Provider {
	case "", "localfs", "gdrive", "s3":
	default:
		return fmt.Errorf("unknown STORAGE_PROVIDER: %s", c.Storage.Provider)
	}
	return nil
}

// RelayEnabled reports whether a Redis address is configured.
func (c *Config) RelayEnabled() bool { return c.Redis.Addr != "" }

// JournalEnabled reports whether a database is configured.
func (c *Config) JournalEnabled() bool { return c.DatabaseURL != "" }

// parser records the first malformed value it sees.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (p *parser) bool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) int(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getEnvCSV(key string, def []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
