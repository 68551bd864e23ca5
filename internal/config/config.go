// internal/config/config.go
package config

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	App       AppConfig
	Cache     CacheConfig
	Storage   StorageConfig
	Forecast  ForecastConfig
	Scheduler SchedulerConfig
	Events    EventsConfig
	Tracing   TracingConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// MaxConcurrentOps bounds in-flight transactions per process.
	MaxConcurrentOps int64
	AutoMigrate      bool
	MigrationsPath   string
}

type AppConfig struct {
	LogLevel string
	DataDir  string
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	ForecastTTLSeconds int
}

// StorageConfig points at an S3-compatible bucket for purchase-order exports.
type StorageConfig struct {
	Enabled   bool
	Provider  string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

// ForecastConfig carries the pipeline tunables.
type ForecastConfig struct {
	Workers             int
	DefaultHorizon      int
	Retention           int
	ValidityDays        int
	ServiceLevel        float64
	StdDevFallbackRatio float64
	DefaultLeadTimeDays int
	AlertCooldownDays   int
	PODefaultQuantity   int
}

type SchedulerConfig struct {
	Enabled   bool
	Interval  time.Duration
	AutoBatch bool
	LockTTL   time.Duration
}

// EventsConfig points the alert and batch event publisher at Kafka.
type EventsConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Protocol    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults(viper.GetViper())

		// Read from environment variables
		viper.AutomaticEnv()

		instance = fromViper(viper.GetViper())

		ensureDir(instance.App.DataDir)
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 120)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("DB_DRIVER", "pgx")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "replenish")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONCURRENT_OPS", 10)
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("DB_MIGRATIONS_PATH", "scripts/migrations")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_DATA_DIR", "./data/output")

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_FORECAST_TTL_SECONDS", 3600)

	v.SetDefault("STORAGE_ENABLED", false)
	v.SetDefault("STORAGE_PROVIDER", "minio")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_BUCKET", "purchase-orders")
	v.SetDefault("STORAGE_USE_SSL", false)
	v.SetDefault("STORAGE_PREFIX", "exports")

	v.SetDefault("PIPELINE_WORKERS", 5)
	v.SetDefault("FORECAST_DEFAULT_HORIZON", 30)
	v.SetDefault("FORECAST_RETENTION", 5)
	v.SetDefault("FORECAST_VALIDITY_DAYS", 7)
	v.SetDefault("SERVICE_LEVEL_DEFAULT", 0.95)
	v.SetDefault("STDDEV_FALLBACK_RATIO", 0.20)
	v.SetDefault("LEAD_TIME_DEFAULT_DAYS", 7)
	v.SetDefault("ALERT_DEFAULT_COOLDOWN_DAYS", 7)
	v.SetDefault("PO_DEFAULT_QUANTITY", 100)

	v.SetDefault("SCAN_ENABLED", false)
	v.SetDefault("SCAN_INTERVAL", "1h")
	v.SetDefault("SCAN_AUTO_BATCH", false)
	v.SetDefault("SCAN_LOCK_TTL", "10m")

	v.SetDefault("EVENTS_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA_TOPIC", "replenish.events")
	v.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_INSECURE", true)
	v.SetDefault("OTEL_SERVICE_NAME", "autopo-replenish")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:           v.GetString("DB_DRIVER"),
			Host:             v.GetString("DB_HOST"),
			Port:             v.GetString("DB_PORT"),
			User:             v.GetString("DB_USER"),
			Password:         v.GetString("DB_PASSWORD"),
			DBName:           v.GetString("DB_NAME"),
			SSLMode:          v.GetString("DB_SSLMODE"),
			MaxConcurrentOps: v.GetInt64("DB_MAX_CONCURRENT_OPS"),
			AutoMigrate:      v.GetBool("DB_AUTO_MIGRATE"),
			MigrationsPath:   v.GetString("DB_MIGRATIONS_PATH"),
		},
		App: AppConfig{
			LogLevel: v.GetString("LOG_LEVEL"),
			DataDir:  v.GetString("APP_DATA_DIR"),
		},
		Cache: CacheConfig{
			Enabled:            v.GetBool("CACHE_ENABLED"),
			RedisURL:           v.GetString("REDIS_URL"),
			RedisHost:          v.GetString("REDIS_HOST"),
			RedisPort:          v.GetString("REDIS_PORT"),
			RedisPassword:      v.GetString("REDIS_PASSWORD"),
			RedisDB:            v.GetInt("REDIS_DB"),
			ForecastTTLSeconds: v.GetInt("CACHE_FORECAST_TTL_SECONDS"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("STORAGE_ENABLED"),
			Provider:  v.GetString("STORAGE_PROVIDER"),
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			Region:    v.GetString("STORAGE_REGION"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
			Prefix:    v.GetString("STORAGE_PREFIX"),
		},
		Forecast: ForecastConfig{
			Workers:             v.GetInt("PIPELINE_WORKERS"),
			DefaultHorizon:      v.GetInt("FORECAST_DEFAULT_HORIZON"),
			Retention:           v.GetInt("FORECAST_RETENTION"),
			ValidityDays:        v.GetInt("FORECAST_VALIDITY_DAYS"),
			ServiceLevel:        v.GetFloat64("SERVICE_LEVEL_DEFAULT"),
			StdDevFallbackRatio: v.GetFloat64("STDDEV_FALLBACK_RATIO"),
			DefaultLeadTimeDays: v.GetInt("LEAD_TIME_DEFAULT_DAYS"),
			AlertCooldownDays:   v.GetInt("ALERT_DEFAULT_COOLDOWN_DAYS"),
			PODefaultQuantity:   v.GetInt("PO_DEFAULT_QUANTITY"),
		},
		Scheduler: SchedulerConfig{
			Enabled:   v.GetBool("SCAN_ENABLED"),
			Interval:  v.GetDuration("SCAN_INTERVAL"),
			AutoBatch: v.GetBool("SCAN_AUTO_BATCH"),
			LockTTL:   v.GetDuration("SCAN_LOCK_TTL"),
		},
		Events: EventsConfig{
			Enabled:      v.GetBool("EVENTS_ENABLED"),
			Brokers:      v.GetStringSlice("KAFKA_BROKERS"),
			Topic:        v.GetString("KAFKA_TOPIC"),
			WriteTimeout: v.GetDuration("KAFKA_WRITE_TIMEOUT"),
		},
		Tracing: TracingConfig{
			Enabled:     v.GetBool("OTEL_ENABLED"),
			Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Protocol:    v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL"),
			Insecure:    v.GetBool("OTEL_INSECURE"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
			SampleRatio: v.GetFloat64("OTEL_SAMPLE_RATIO"),
		},
	}
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
