// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gurkanbulca/collabdesk/internal/middleware"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	Media       MediaConfig
	ObjectStore ObjectStoreConfig
	Storage     StorageConfig
	Leaderboard LeaderboardConfig
	Validation  ValidationLimits
	Log         LogConfig
}

type ServerConfig struct {
	GRPCPort         string
	HTTPPort         string
	Environment      string
	AutoMigrate      bool
	EnableReflection bool
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type MongoConfig struct {
	URI          string
	Database     string
	WatchChanges bool
	// Transactions requires a replica set or sharded cluster
	Transactions bool
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	LeaderboardTTL time.Duration
}

// MediaConfig configures the Cloudinary upload backend
type MediaConfig struct {
	CloudName    string
	UploadPreset string
	APIBase      string
}

// ObjectStoreConfig configures the Supabase storage backend
type ObjectStoreConfig struct {
	URL        string
	ServiceKey string
	Bucket     string
	Folder     string
}

type StorageConfig struct {
	UseMockBackends bool
	UploadTimeout   time.Duration
}

type LeaderboardConfig struct {
	RefreshInterval time.Duration
}

type ValidationLimits struct {
	MaxNotesLength   int
	MaxCommentLength int
	MaxLinkLength    int
	MaxBulkSize      int
	MaxFileBytes     int
}

type LogConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			GRPCPort:         getEnv("GRPC_PORT", "50051"),
			HTTPPort:         getEnv("HTTP_PORT", "8080"),
			Environment:      getEnv("ENVIRONMENT", "development"),
			AutoMigrate:      getEnvAsBool("AUTO_MIGRATE", true),
			EnableReflection: getEnvAsBool("ENABLE_REFLECTION", false),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", DriverPostgres),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "collabdesk"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Mongo: MongoConfig{
			URI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:     getEnv("MONGO_DB_NAME", "collabdesk"),
			WatchChanges: getEnvAsBool("MONGO_WATCH_CHANGES", false),
			Transactions: getEnvAsBool("MONGO_TRANSACTIONS", false),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			LeaderboardTTL: getEnvAsDuration("LEADERBOARD_CACHE_TTL", 5*time.Minute),
		},
		Media: MediaConfig{
			CloudName:    getEnv("CLOUDINARY_CLOUD_NAME", ""),
			UploadPreset: getEnv("CLOUDINARY_UPLOAD_PRESET", ""),
			APIBase:      getEnv("CLOUDINARY_API_BASE", "https://api.cloudinary.com/v1_1"),
		},
		ObjectStore: ObjectStoreConfig{
			URL:        getEnv("SUPABASE_URL", ""),
			ServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:     getEnv("SUPABASE_BUCKET", "submissions"),
			Folder:     getEnv("SUPABASE_FOLDER", "deliverables"),
		},
		Storage: StorageConfig{
			UseMockBackends: getEnvAsBool("STORAGE_MOCK", false),
			UploadTimeout:   getEnvAsDuration("UPLOAD_TIMEOUT", 60*time.Second),
		},
		Leaderboard: LeaderboardConfig{
			RefreshInterval: getEnvAsDuration("LEADERBOARD_REFRESH_INTERVAL", 15*time.Minute),
		},
		Validation: ValidationLimits{
			MaxNotesLength:   getEnvAsInt("MAX_NOTES_LENGTH", 5000),
			MaxCommentLength: getEnvAsInt("MAX_COMMENT_LENGTH", 5000),
			MaxLinkLength:    getEnvAsInt("MAX_LINK_LENGTH", 2048),
			MaxBulkSize:      getEnvAsInt("MAX_BULK_SIZE", 100),
			MaxFileBytes:     getEnvAsInt("MAX_FILE_BYTES", 50<<20),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}, nil
}

// ValidateConfig rejects configurations the server cannot start with
func (c *Config) ValidateConfig() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			errs = append(errs, errors.New("DB_HOST and DB_NAME are required for postgres"))
		}
	case DriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DB_NAME are required for mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}

	if !c.Storage.UseMockBackends && !c.IsDevelopment() {
		if c.Media.CloudName == "" || c.Media.UploadPreset == "" {
			errs = append(errs, errors.New("CLOUDINARY_CLOUD_NAME and CLOUDINARY_UPLOAD_PRESET are required"))
		}
		if c.ObjectStore.URL == "" || c.ObjectStore.ServiceKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY are required"))
		}
	}

	if c.Leaderboard.RefreshInterval <= 0 {
		errs = append(errs, errors.New("LEADERBOARD_REFRESH_INTERVAL must be positive"))
	}
	if c.Validation.MaxBulkSize <= 0 {
		errs = append(errs, errors.New("MAX_BULK_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Environment, "development")
}

// UseMockStorage reports whether uploads go to in-memory backends
func (c *Config) UseMockStorage() bool {
	return c.Storage.UseMockBackends || (c.IsDevelopment() && c.Media.CloudName == "")
}

// ToValidationConfig converts limits to the middleware configuration
func (c *Config) ToValidationConfig() *middleware.ValidationConfig {
	return &middleware.ValidationConfig{
		MaxNotesLength:   c.Validation.MaxNotesLength,
		MaxCommentLength: c.Validation.MaxCommentLength,
		MaxLinkLength:    c.Validation.MaxLinkLength,
		MaxBulkSize:      c.Validation.MaxBulkSize,
		MaxFileBytes:     c.Validation.MaxFileBytes,
	}
}

// ToLoggerConfig converts log settings to the logger configuration
func (c *Config) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.Log.Level,
		File:        c.Log.File,
		Development: c.IsDevelopment(),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	// Try parsing as duration string (e.g., "15m", "24h")
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}

	return defaultValue
}
