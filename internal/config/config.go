// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
	RetentionDays    int           `mapstructure:"retention_days"`
}

// SchedulerConfig contains monitoring scheduler configuration
type SchedulerConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	Workers         int           `mapstructure:"workers"`
	EvaluateTimeout time.Duration `mapstructure:"evaluate_timeout"`
}

// EvaluatorConfig contains rule evaluation configuration
type EvaluatorConfig struct {
	MinimumSentVolume int64 `mapstructure:"minimum_sent_volume"`
}

// DeliveryConfig contains webhook delivery configuration
type DeliveryConfig struct {
	Workers              int           `mapstructure:"workers"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	BatchSize            int           `mapstructure:"batch_size"`
	BaseRetryDelay       time.Duration `mapstructure:"base_retry_delay"`
	MaxRetryDelay        time.Duration `mapstructure:"max_retry_delay"`
	MaxResponseBodyBytes int           `mapstructure:"max_response_body_bytes"`
	MaxFailures          int64         `mapstructure:"max_failures"` // 0 disables auto-deactivation
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("CAMPAIGN_WATCH")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "campaign-watch")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/campaign-watch.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")
	viper.SetDefault("storage.retention_days", 90)

	// Scheduler defaults
	viper.SetDefault("scheduler.tick_interval", "5m")
	viper.SetDefault("scheduler.workers", 4)
	viper.SetDefault("scheduler.evaluate_timeout", "60s")

	// Evaluator defaults
	viper.SetDefault("evaluator.minimum_sent_volume", 50)

	// Delivery defaults
	viper.SetDefault("delivery.workers", 2)
	viper.SetDefault("delivery.poll_interval", "10s")
	viper.SetDefault("delivery.batch_size", 50)
	viper.SetDefault("delivery.base_retry_delay", "2s")
	viper.SetDefault("delivery.max_retry_delay", "30s")
	viper.SetDefault("delivery.max_response_body_bytes", 1024)
	viper.SetDefault("delivery.max_failures", 0)

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler tick interval must be positive")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler workers must be positive")
	}
	if c.Delivery.Workers <= 0 {
		return fmt.Errorf("delivery workers must be positive")
	}
	if c.Evaluator.MinimumSentVolume < 0 {
		return fmt.Errorf("minimum sent volume must not be negative")
	}
	return nil
}
