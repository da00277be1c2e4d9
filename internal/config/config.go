package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultBatchLimit bounds how many sources one trigger invocation processes
	DefaultBatchLimit = 5
	// DefaultCandidateCap bounds how many candidate items one source run processes
	DefaultCandidateCap = 10
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Inference InferenceConfig `yaml:"inference"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds the optional outcome-event publisher configuration.
// When Enabled is false the scheduler skips event publishing entirely.
type RabbitMQConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	User              string        `yaml:"user"`
	Password          string        `yaml:"password"`
	VHost             string        `yaml:"vhost"`
	Exchange          string        `yaml:"exchange"`
	RoutingKey        string        `yaml:"routing_key"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// IngestConfig holds batch scheduler and pipeline configuration
type IngestConfig struct {
	TriggerSecret    string        `yaml:"trigger_secret"`
	BatchLimit       int           `yaml:"batch_limit"`
	MaxBatchLimit    int           `yaml:"max_batch_limit"`
	SourceTimeout    time.Duration `yaml:"source_timeout"`
	CandidateCap     int           `yaml:"candidate_cap"`
	QualityThreshold int           `yaml:"quality_threshold"`
	UserAgent        string        `yaml:"user_agent"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
}

// InferenceConfig holds the structured-generation backend configuration
type InferenceConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	Model            string        `yaml:"model"`
	APIKey           string        `yaml:"api_key"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxResponseBytes int64         `yaml:"max_response_bytes"`
}

// RateLimitConfig holds the sliding-window budgets for external calls.
// Page fetches and inference calls draw from separate budgets.
type RateLimitConfig struct {
	Fetch     BudgetConfig `yaml:"fetch"`
	Inference BudgetConfig `yaml:"inference"`
}

// BudgetConfig is one sliding-window request budget
type BudgetConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// applyDefaults fills optional knobs that have sane defaults
func (c *Config) applyDefaults() {
	if c.Ingest.BatchLimit <= 0 {
		c.Ingest.BatchLimit = DefaultBatchLimit
	}
	if c.Ingest.MaxBatchLimit <= 0 {
		c.Ingest.MaxBatchLimit = 50
	}
	if c.Ingest.CandidateCap <= 0 {
		c.Ingest.CandidateCap = DefaultCandidateCap
	}
	if c.Ingest.SourceTimeout <= 0 {
		c.Ingest.SourceTimeout = 90 * time.Second
	}
	if c.Ingest.FetchTimeout <= 0 {
		c.Ingest.FetchTimeout = 30 * time.Second
	}
	if c.Ingest.UserAgent == "" {
		c.Ingest.UserAgent = "dealerscan-ingest/1.0"
	}
	if c.Inference.Timeout <= 0 {
		c.Inference.Timeout = 45 * time.Second
	}
	if c.Inference.MaxResponseBytes <= 0 {
		c.Inference.MaxResponseBytes = 256 * 1024
	}
	if c.RateLimit.Fetch.MaxRequests <= 0 {
		c.RateLimit.Fetch.MaxRequests = 60
	}
	if c.RateLimit.Fetch.Window <= 0 {
		c.RateLimit.Fetch.Window = time.Minute
	}
	if c.RateLimit.Inference.MaxRequests <= 0 {
		c.RateLimit.Inference.MaxRequests = 30
	}
	if c.RateLimit.Inference.Window <= 0 {
		c.RateLimit.Inference.Window = time.Minute
	}
}

// Validate checks if the configuration is valid. Missing required values
// abort startup before any batch work can begin.
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Ingest.TriggerSecret == "" {
		return fmt.Errorf("ingest trigger_secret is required")
	}

	if c.Ingest.QualityThreshold < 0 || c.Ingest.QualityThreshold > 100 {
		return fmt.Errorf("ingest quality_threshold must be between 0 and 100, got %d", c.Ingest.QualityThreshold)
	}

	if c.Inference.Endpoint == "" {
		return fmt.Errorf("inference endpoint is required")
	}

	if c.Inference.Model == "" {
		return fmt.Errorf("inference model is required")
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required when rabbitmq is enabled")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange == "" {
			return fmt.Errorf("rabbitmq exchange is required when rabbitmq is enabled")
		}
	}

	return nil
}
