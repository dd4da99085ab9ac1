package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Conflicts ConflictsConfig
	Scans     ScanConfig
	Exports   ExportConfig
	Swagger   bool
	Metrics   bool
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ConflictsConfig tunes the detection and resolution engine.
type ConflictsConfig struct {
	DetectionWorkers   int
	ScanTimeout        time.Duration
	SuggestionCacheTTL time.Duration
	StaleAfter         time.Duration
	EventLockTTL       time.Duration
}

// ScanConfig controls background plan scans.
type ScanConfig struct {
	Cron        string
	Workers     int
	BufferSize  int
	MaxRetries  int
	RetryDelay  time.Duration
	ClearBefore bool
}

// ExportConfig configures where conflict reports are written.
type ExportConfig struct {
	StorageDir string
	LinkTTL    time.Duration
	MinIO      MinIOConfig
}

// MinIOConfig holds object storage credentials. Empty endpoint disables uploads.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Swagger = v.GetBool("ENABLE_SWAGGER")
	cfg.Metrics = v.GetBool("ENABLE_METRICS")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Conflicts = ConflictsConfig{
		DetectionWorkers:   v.GetInt("CONFLICT_DETECTION_WORKERS"),
		ScanTimeout:        parseDuration(v.GetString("CONFLICT_SCAN_TIMEOUT"), 2*time.Minute),
		SuggestionCacheTTL: parseDuration(v.GetString("CONFLICT_SUGGESTION_CACHE_TTL"), 5*time.Minute),
		StaleAfter:         parseDuration(v.GetString("CONFLICT_STALE_AFTER"), 30*24*time.Hour),
		EventLockTTL:       parseDuration(v.GetString("CONFLICT_EVENT_LOCK_TTL"), 30*time.Second),
	}

	cfg.Scans = ScanConfig{
		Cron:        v.GetString("CONFLICT_SCAN_CRON"),
		Workers:     v.GetInt("CONFLICT_SCAN_QUEUE_WORKERS"),
		BufferSize:  v.GetInt("CONFLICT_SCAN_QUEUE_BUFFER"),
		MaxRetries:  v.GetInt("CONFLICT_SCAN_RETRIES"),
		RetryDelay:  parseDuration(v.GetString("CONFLICT_SCAN_RETRY_DELAY"), 5*time.Second),
		ClearBefore: v.GetBool("CONFLICT_SCAN_CLEAR_DETECTED"),
	}

	cfg.Exports = ExportConfig{
		StorageDir: v.GetString("EXPORT_STORAGE_DIR"),
		LinkTTL:    parseDuration(v.GetString("EXPORT_LINK_TTL"), 24*time.Hour),
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("ENABLE_SWAGGER", true)
	v.SetDefault("ENABLE_METRICS", true)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_schedule")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CONFLICT_DETECTION_WORKERS", 4)
	v.SetDefault("CONFLICT_SCAN_TIMEOUT", "2m")
	v.SetDefault("CONFLICT_SUGGESTION_CACHE_TTL", "5m")
	v.SetDefault("CONFLICT_STALE_AFTER", "720h")
	v.SetDefault("CONFLICT_EVENT_LOCK_TTL", "30s")

	v.SetDefault("CONFLICT_SCAN_CRON", "")
	v.SetDefault("CONFLICT_SCAN_QUEUE_WORKERS", 1)
	v.SetDefault("CONFLICT_SCAN_QUEUE_BUFFER", 16)
	v.SetDefault("CONFLICT_SCAN_RETRIES", 2)
	v.SetDefault("CONFLICT_SCAN_RETRY_DELAY", "5s")
	v.SetDefault("CONFLICT_SCAN_CLEAR_DETECTED", true)

	v.SetDefault("EXPORT_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORT_LINK_TTL", "24h")
	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "conflict-reports")
	v.SetDefault("MINIO_USE_SSL", false)
}

// isMissingFile reports whether viper failed because the explicit .env file is absent.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
