package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"fraclaims/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	S3     S3Config
	Log    LogConfig
	CORS   CORSConfig
	Queue  QueueConfig
	Engine EngineConfig
	Guard  GuardConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
	Ledger LedgerConfig
	Email  EmailConfig
}

// EngineConfig holds settings for the external OCR/entity-extraction engine.
// It is passed explicitly to the transfer client, the status listener and the coordinator.
type EngineConfig struct {
	BaseURL        string                `mapstructure:"base_url"`
	ExtractPath    string                `mapstructure:"extract_path"`
	FileField      string                `mapstructure:"file_field"`
	Protocol       domain.EngineProtocol `mapstructure:"protocol"`
	IdleTimeout    time.Duration         `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration         `mapstructure:"request_timeout"`
	MaxRetries     int                   `mapstructure:"max_retries"`
	RetryBackoff   time.Duration         `mapstructure:"retry_backoff"`
}

// StatusURL returns the status channel URL for a document.
func (e *EngineConfig) StatusURL(documentID string) string {
	base := strings.TrimSuffix(e.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/" + documentID
}

// ExtractURL returns the submission endpoint URL.
func (e *EngineConfig) ExtractURL() string {
	return strings.TrimSuffix(e.BaseURL, "/") + e.ExtractPath
}

// QueueConfig holds processing queue worker settings.
type QueueConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	PollIntervalSecs int  `mapstructure:"poll_interval_secs"`
	Concurrency      int  `mapstructure:"concurrency"`
}

// GuardConfig selects the in-flight guard implementation.
type GuardConfig struct {
	Backend  string        `mapstructure:"backend"` // memory or redis
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// KafkaConfig holds outcome event publishing settings.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LedgerConfig holds notarization settings.
type LedgerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SigningKey string `mapstructure:"signing_key"`
	Issuer     string `mapstructure:"issuer"`
}

// EmailConfig holds reviewer notification settings.
type EmailConfig struct {
	Provider      string `mapstructure:"provider"`
	Region        string `mapstructure:"region"`
	FromAddress   string `mapstructure:"from_address"`
	FromName      string `mapstructure:"from_name"`
	ReviewerEmail string `mapstructure:"reviewer_email"`
	FrontendURL   string `mapstructure:"frontend_url"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from environment variables with the FRACLAIMS_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FRACLAIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "fraclaims")
	v.SetDefault("db.password", "fraclaims_secret")
	v.SetDefault("db.name", "fraclaims_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "ap-south-1")
	v.SetDefault("s3.bucket", "fraclaims-documents")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.max_file_size_mb", 25)

	v.SetDefault("log.level", "debug")

	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Queue defaults
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.poll_interval_secs", 5)
	v.SetDefault("queue.concurrency", 4)

	// Engine defaults
	v.SetDefault("engine.base_url", "http://localhost:8000")
	v.SetDefault("engine.extract_path", "/ocr/extract-text")
	v.SetDefault("engine.file_field", "file")
	v.SetDefault("engine.protocol", string(domain.ProtocolSync))
	v.SetDefault("engine.idle_timeout", "60s")
	v.SetDefault("engine.request_timeout", "120s")
	v.SetDefault("engine.max_retries", 2)
	v.SetDefault("engine.retry_backoff", "500ms")

	// Guard defaults
	v.SetDefault("guard.backend", "memory")
	v.SetDefault("guard.lease_ttl", "10m")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "document.outcomes")

	// Ledger defaults
	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.signing_key", "change-me-in-production")
	v.SetDefault("ledger.issuer", "fraclaims")

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "ap-south-1")
	v.SetDefault("email.from_address", "noreply@fraclaims.local")
	v.SetDefault("email.from_name", "FRA Claims")
	v.SetDefault("email.reviewer_email", "")
	v.SetDefault("email.frontend_url", "http://localhost:3000")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":               "FRACLAIMS_SERVER_PORT",
		"server.read_timeout":       "FRACLAIMS_SERVER_READ_TIMEOUT",
		"server.write_timeout":      "FRACLAIMS_SERVER_WRITE_TIMEOUT",
		"server.environment":        "FRACLAIMS_SERVER_ENVIRONMENT",
		"db.host":                   "FRACLAIMS_DB_HOST",
		"db.port":                   "FRACLAIMS_DB_PORT",
		"db.user":                   "FRACLAIMS_DB_USER",
		"db.password":               "FRACLAIMS_DB_PASSWORD",
		"db.name":                   "FRACLAIMS_DB_NAME",
		"db.sslmode":                "FRACLAIMS_DB_SSLMODE",
		"db.max_open":               "FRACLAIMS_DB_MAX_OPEN",
		"db.max_idle":               "FRACLAIMS_DB_MAX_IDLE",
		"s3.region":                 "FRACLAIMS_S3_REGION",
		"s3.bucket":                 "FRACLAIMS_S3_BUCKET",
		"s3.endpoint":               "FRACLAIMS_S3_ENDPOINT",
		"s3.access_key":             "FRACLAIMS_S3_ACCESS_KEY",
		"s3.secret_key":             "FRACLAIMS_S3_SECRET_KEY",
		"s3.max_file_size_mb":       "FRACLAIMS_S3_MAX_FILE_SIZE_MB",
		"log.level":                 "FRACLAIMS_LOG_LEVEL",
		"cors.allowed_origins":      "FRACLAIMS_CORS_ALLOWED_ORIGINS",
		"queue.enabled":             "FRACLAIMS_QUEUE_ENABLED",
		"queue.poll_interval_secs":  "FRACLAIMS_QUEUE_POLL_INTERVAL_SECS",
		"queue.concurrency":         "FRACLAIMS_QUEUE_CONCURRENCY",
		"engine.base_url":           "FRACLAIMS_ENGINE_BASE_URL",
		"engine.extract_path":       "FRACLAIMS_ENGINE_EXTRACT_PATH",
		"engine.file_field":         "FRACLAIMS_ENGINE_FILE_FIELD",
		"engine.protocol":           "FRACLAIMS_ENGINE_PROTOCOL",
		"engine.idle_timeout":       "FRACLAIMS_ENGINE_IDLE_TIMEOUT",
		"engine.request_timeout":    "FRACLAIMS_ENGINE_REQUEST_TIMEOUT",
		"engine.max_retries":        "FRACLAIMS_ENGINE_MAX_RETRIES",
		"engine.retry_backoff":      "FRACLAIMS_ENGINE_RETRY_BACKOFF",
		"guard.backend":             "FRACLAIMS_GUARD_BACKEND",
		"guard.lease_ttl":           "FRACLAIMS_GUARD_LEASE_TTL",
		"redis.addr":                "FRACLAIMS_REDIS_ADDR",
		"redis.password":            "FRACLAIMS_REDIS_PASSWORD",
		"redis.db":                  "FRACLAIMS_REDIS_DB",
		"redis.pool_size":           "FRACLAIMS_REDIS_POOL_SIZE",
		"kafka.enabled":             "FRACLAIMS_KAFKA_ENABLED",
		"kafka.brokers":             "FRACLAIMS_KAFKA_BROKERS",
		"kafka.topic":               "FRACLAIMS_KAFKA_TOPIC",
		"ledger.enabled":            "FRACLAIMS_LEDGER_ENABLED",
		"ledger.signing_key":        "FRACLAIMS_LEDGER_SIGNING_KEY",
		"ledger.issuer":             "FRACLAIMS_LEDGER_ISSUER",
		"email.provider":            "FRACLAIMS_EMAIL_PROVIDER",
		"email.region":              "FRACLAIMS_EMAIL_REGION",
		"email.from_address":        "FRACLAIMS_EMAIL_FROM_ADDRESS",
		"email.from_name":           "FRACLAIMS_EMAIL_FROM_NAME",
		"email.reviewer_email":      "FRACLAIMS_EMAIL_REVIEWER_EMAIL",
		"email.frontend_url":        "FRACLAIMS_EMAIL_FRONTEND_URL",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if FRACLAIMS_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("FRACLAIMS_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		MaxFileSizeMB: v.GetInt64("s3.max_file_size_mb"),
	}
	cfg.Log = LogConfig{
		Level: v.GetString("log.level"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}
	cfg.Queue = QueueConfig{
		Enabled:          v.GetBool("queue.enabled"),
		PollIntervalSecs: v.GetInt("queue.poll_interval_secs"),
		Concurrency:      v.GetInt("queue.concurrency"),
	}

	cfg.Engine = EngineConfig{
		BaseURL:        v.GetString("engine.base_url"),
		ExtractPath:    v.GetString("engine.extract_path"),
		FileField:      v.GetString("engine.file_field"),
		Protocol:       domain.EngineProtocol(strings.ToLower(v.GetString("engine.protocol"))),
		IdleTimeout:    v.GetDuration("engine.idle_timeout"),
		RequestTimeout: v.GetDuration("engine.request_timeout"),
		MaxRetries:     v.GetInt("engine.max_retries"),
		RetryBackoff:   v.GetDuration("engine.retry_backoff"),
	}
	if !domain.ValidEngineProtocols[cfg.Engine.Protocol] {
		return nil, fmt.Errorf("invalid engine protocol %q: must be sync or async", cfg.Engine.Protocol)
	}
	if cfg.Engine.IdleTimeout <= 0 {
		return nil, fmt.Errorf("engine idle timeout must be positive, got %s", cfg.Engine.IdleTimeout)
	}
	if cfg.Engine.MaxRetries < 0 {
		return nil, fmt.Errorf("engine max retries must not be negative, got %d", cfg.Engine.MaxRetries)
	}

	cfg.Guard = GuardConfig{
		Backend:  v.GetString("guard.backend"),
		LeaseTTL: v.GetDuration("guard.lease_ttl"),
	}
	cfg.Redis = RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
		PoolSize: v.GetInt("redis.pool_size"),
	}
	cfg.Kafka = KafkaConfig{
		Enabled: v.GetBool("kafka.enabled"),
		Brokers: splitList(v.GetString("kafka.brokers")),
		Topic:   v.GetString("kafka.topic"),
	}
	cfg.Ledger = LedgerConfig{
		Enabled:    v.GetBool("ledger.enabled"),
		SigningKey: v.GetString("ledger.signing_key"),
		Issuer:     v.GetString("ledger.issuer"),
	}
	cfg.Email = EmailConfig{
		Provider:      v.GetString("email.provider"),
		Region:        v.GetString("email.region"),
		FromAddress:   v.GetString("email.from_address"),
		FromName:      v.GetString("email.from_name"),
		ReviewerEmail: v.GetString("email.reviewer_email"),
		FrontendURL:   v.GetString("email.frontend_url"),
	}

	return cfg, nil
}

// splitList parses a comma-separated string, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
