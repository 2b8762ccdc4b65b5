// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Cache      CacheConfig      `json:"cache"`
	Broker     BrokerConfig     `json:"broker"`
	Poller     PollerConfig     `json:"poller"`
	Reconciler ReconcilerConfig `json:"reconciler"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	EnableMetrics   bool          `json:"enable_metrics"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	Provider    string        `json:"provider"`
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl"`
}

// BrokerConfig controls provider selection and the adapter call path
type BrokerConfig struct {
	CallTimeout           time.Duration `json:"call_timeout"`
	MaxFallbackProviders  int           `json:"max_fallback_providers"`
	BreakerErrorThreshold int           `json:"breaker_error_threshold"` // percent
	BreakerMinVolume      int           `json:"breaker_min_volume"`
	BreakerResetTimeout   time.Duration `json:"breaker_reset_timeout"`
	BreakerWindow         time.Duration `json:"breaker_window"`
	HealthWindowSize      int           `json:"health_window_size"`
	HealthSnapshotTTL     time.Duration `json:"health_snapshot_ttl"`
	ActivationTTL         time.Duration `json:"activation_ttl"`
}

// PollerConfig controls the polling scheduler
type PollerConfig struct {
	Interval       time.Duration `json:"interval"`
	BatchSize      int           `json:"batch_size"`
	MaxConcurrency int           `json:"max_concurrency"`
}

// ReconcilerConfig controls the reconciliation worker
type ReconcilerConfig struct {
	Interval       time.Duration `json:"interval"`
	LockTTL        time.Duration `json:"lock_ttl"`
	StuckThreshold time.Duration `json:"stuck_threshold"`
	SweepLimit     int           `json:"sweep_limit"`
}

type LoggingConfig struct {
	Level    string `json:"level"`
	Output   string `json:"output"`
	FilePath string `json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type DeploymentConfig struct {
	Domain      string `json:"domain"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

// LoadProductionConfig loads configuration from environment variables (and an
// optional .env file) with sensible defaults
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "uwabami"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 10*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024),
			EnableMetrics:   getEnvBool("SERVER_ENABLE_METRICS", true),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			Provider:    getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "uwabami:"),
			DefaultTTL:  getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Broker: BrokerConfig{
			CallTimeout:           getEnvDuration("BROKER_CALL_TIMEOUT", 45*time.Second),
			MaxFallbackProviders:  getEnvInt("BROKER_MAX_FALLBACK_PROVIDERS", 3),
			BreakerErrorThreshold: getEnvInt("BROKER_BREAKER_ERROR_THRESHOLD", 50),
			BreakerMinVolume:      getEnvInt("BROKER_BREAKER_MIN_VOLUME", 5),
			BreakerResetTimeout:   getEnvDuration("BROKER_BREAKER_RESET_TIMEOUT", 30*time.Second),
			BreakerWindow:         getEnvDuration("BROKER_BREAKER_WINDOW", 60*time.Second),
			HealthWindowSize:      getEnvInt("BROKER_HEALTH_WINDOW_SIZE", 50),
			HealthSnapshotTTL:     getEnvDuration("BROKER_HEALTH_SNAPSHOT_TTL", 30*time.Second),
			ActivationTTL:         getEnvDuration("BROKER_ACTIVATION_TTL", 20*time.Minute),
		},
		Poller: PollerConfig{
			Interval:       getEnvDuration("POLLER_INTERVAL", 2*time.Second),
			BatchSize:      getEnvInt("POLLER_BATCH_SIZE", 50),
			MaxConcurrency: getEnvInt("POLLER_MAX_CONCURRENCY", 50),
		},
		Reconciler: ReconcilerConfig{
			Interval:       getEnvDuration("RECONCILER_INTERVAL", 1*time.Minute),
			LockTTL:        getEnvDuration("RECONCILER_LOCK_TTL", 2*time.Minute),
			StuckThreshold: getEnvDuration("RECONCILER_STUCK_THRESHOLD", 10*time.Minute),
			SweepLimit:     getEnvInt("RECONCILER_SWEEP_LIMIT", 200),
		},
		Logging: LoggingConfig{
			Level:    getEnvString("LOG_LEVEL", "info"),
			Output:   getEnvString("LOG_OUTPUT", "stdout"),
			FilePath: getEnvString("LOG_FILE_PATH", "data/app.log"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Deployment: DeploymentConfig{
			Domain:      getEnvString("DOMAIN", "localhost"),
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}

	if cfg.Broker.CallTimeout <= 0 {
		errors = append(errors, "BROKER_CALL_TIMEOUT must be positive")
	}
	if cfg.Broker.BreakerErrorThreshold <= 0 || cfg.Broker.BreakerErrorThreshold > 100 {
		errors = append(errors, "BROKER_BREAKER_ERROR_THRESHOLD must be between 1 and 100")
	}
	if cfg.Broker.BreakerMinVolume <= 0 {
		errors = append(errors, "BROKER_BREAKER_MIN_VOLUME must be positive")
	}
	if cfg.Broker.MaxFallbackProviders < 1 {
		errors = append(errors, "BROKER_MAX_FALLBACK_PROVIDERS must be at least 1")
	}

	if cfg.Poller.BatchSize <= 0 {
		errors = append(errors, "POLLER_BATCH_SIZE must be positive")
	}
	if cfg.Poller.MaxConcurrency <= 0 {
		errors = append(errors, "POLLER_MAX_CONCURRENCY must be positive")
	}

	if cfg.Reconciler.Interval <= 0 {
		errors = append(errors, "RECONCILER_INTERVAL must be positive")
	}
	if cfg.Reconciler.LockTTL <= cfg.Reconciler.Interval/2 {
		errors = append(errors, "RECONCILER_LOCK_TTL must comfortably exceed half the interval")
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
