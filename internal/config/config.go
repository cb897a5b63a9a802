package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (saved filters, cross-instance fan-out)
	Redis RedisConfig

	// Object storage for export artifacts
	Storage StorageConfig

	// Kafka event stream
	Kafka KafkaConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// Collaboration session timings
	Collaboration CollaborationConfig

	// Feature flags
	Features FeaturesConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string // applied at startup when set
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	EventsChannel string
}

// StorageConfig holds S3-compatible object storage configuration
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// KafkaConfig holds Kafka configuration. An empty broker list disables the sink.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// CollaborationConfig holds the delays of a collaboration session
type CollaborationConfig struct {
	TypingTimeout    time.Duration
	AutoReadDelay    time.Duration
	ExportTick       time.Duration
	ExportResetDelay time.Duration
	MetricsInterval  time.Duration
	RetryBaseDelay   time.Duration
	CursorRate       float64 // cursor updates per second accepted from one client
}

// FeaturesConfig holds the capability flags
type FeaturesConfig struct {
	AIInsights    bool
	Export        bool
	Collaboration bool
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	UserRPS           float64 // Per-user limit on authenticated routes
	UserBurst         int
	UpgradeRPS        float64 // Stricter limit for websocket upgrades
	UpgradeBurst      int
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	InstanceID  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			MigrationsPath:  getEnvOrDefault("DB_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            getIntOrDefault("REDIS_DB", 0),
			EventsChannel: getEnvOrDefault("REDIS_EVENTS_CHANNEL", "ups-collab:events"),
		},
		Storage: StorageConfig{
			Endpoint:  getEnvOrDefault("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey: os.Getenv("STORAGE_ACCESS_KEY"),
			SecretKey: os.Getenv("STORAGE_SECRET_KEY"),
			Bucket:    getEnvOrDefault("STORAGE_BUCKET", "ups-exports"),
			Region:    getEnvOrDefault("STORAGE_REGION", "us-east-1"),
			UseSSL:    getBoolOrDefault("STORAGE_USE_SSL", false),
		},
		Kafka: KafkaConfig{
			Brokers:      getStringSliceOrDefault("KAFKA_BROKERS", []string{}),
			Topic:        getEnvOrDefault("KAFKA_TOPIC", "ups-collab.events"),
			WriteTimeout: getDurationOrDefault("KAFKA_WRITE_TIMEOUT", 5*time.Second),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: getDurationOrDefault("JWT_ACCESS_TOKEN_TTL", 1*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 10),
			BurstSize:         getIntOrDefault("RATE_LIMIT_BURST", 20),
			UserRPS:           getFloatOrDefault("RATE_LIMIT_USER_RPS", 5),
			UserBurst:         getIntOrDefault("RATE_LIMIT_USER_BURST", 10),
			UpgradeRPS:        getFloatOrDefault("RATE_LIMIT_WS_RPS", 1),
			UpgradeBurst:      getIntOrDefault("RATE_LIMIT_WS_BURST", 5),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  getStringSliceOrDefault("WS_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getDurationOrDefault("WS_PING_INTERVAL", 54*time.Second),
			PongWait:        getDurationOrDefault("WS_PONG_WAIT", 60*time.Second),
		},
		Collaboration: CollaborationConfig{
			TypingTimeout:    getDurationOrDefault("COLLAB_TYPING_TIMEOUT", 3*time.Second),
			AutoReadDelay:    getDurationOrDefault("COLLAB_AUTO_READ_DELAY", 10*time.Second),
			ExportTick:       getDurationOrDefault("COLLAB_EXPORT_TICK", 200*time.Millisecond),
			ExportResetDelay: getDurationOrDefault("COLLAB_EXPORT_RESET_DELAY", 1*time.Second),
			MetricsInterval:  getDurationOrDefault("COLLAB_METRICS_INTERVAL", 5*time.Second),
			RetryBaseDelay:   getDurationOrDefault("COLLAB_RETRY_BASE_DELAY", 1*time.Second),
			CursorRate:       getFloatOrDefault("COLLAB_CURSOR_RATE", 20),
		},
		Features: FeaturesConfig{
			AIInsights:    getBoolOrDefault("FEATURE_AI_INSIGHTS", false),
			Export:        getBoolOrDefault("FEATURE_EXPORT", true),
			Collaboration: getBoolOrDefault("FEATURE_COLLABORATION", true),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "ups-collab"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
			InstanceID:  getEnvOrDefault("INSTANCE_ID", defaultInstanceID()),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "REDIS_ADDR is required")
	}

	if c.Storage.Bucket == "" {
		errs = append(errs, "STORAGE_BUCKET is required")
	}

	// Security validations
	if c.App.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}
	}

	// Logical validations
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}

	if c.Collaboration.TypingTimeout <= 0 || c.Collaboration.AutoReadDelay <= 0 ||
		c.Collaboration.ExportTick <= 0 || c.Collaboration.MetricsInterval <= 0 {
		errs = append(errs, "COLLAB_* durations must be positive")
	}

	if c.Collaboration.CursorRate <= 0 {
		errs = append(errs, "COLLAB_CURSOR_RATE must be positive")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "ups-collab"
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, DB: %s, Redis: %s, Storage: %s/%s, Kafka: %v, JWT: [REDACTED], RateLimit: %v, Features: %+v, Environment: %s}",
		c.Server.Port,
		redactURL(c.Database.URL),
		c.Redis.Addr,
		c.Storage.Endpoint,
		c.Storage.Bucket,
		c.Kafka.Brokers,
		c.RateLimit.Enabled,
		c.Features,
		c.App.Environment,
	)
}

// redactURL redacts sensitive parts of a database URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	// Very basic redaction - in production you'd want something more robust
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
