package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	ListenAddr string           `yaml:"listen_addr" env:"LISTEN_ADDR"`
	LogLevel   string           `yaml:"log_level" env:"LOG_LEVEL"`
	Server     ServerConfig     `yaml:"server"`
	Decrypt    DecryptConfig    `yaml:"decrypt"`
	Session    SessionConfig    `yaml:"session"`
	Source     SourceConfig     `yaml:"source"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Audit      AuditConfig      `yaml:"audit"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"SERVER_READ_HEADER_TIMEOUT"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes" env:"SERVER_MAX_HEADER_BYTES"`
}

// DecryptConfig holds snapshot decryption configuration.
type DecryptConfig struct {
	// MaxSnapshotBytes bounds uploaded snapshot bodies.
	MaxSnapshotBytes int64 `yaml:"max_snapshot_bytes" env:"DECRYPT_MAX_SNAPSHOT_BYTES"`
	// PassphraseSalt is a hex-encoded salt. When set, secrets that are not
	// hex key material are stretched with PBKDF2-SHA512 before the key search.
	PassphraseSalt string `yaml:"passphrase_salt" env:"DECRYPT_PASSPHRASE_SALT"`
}

// SessionConfig holds the in-memory snapshot session registry configuration.
type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions" env:"SESSION_MAX_SESSIONS"`
	TTL         time.Duration `yaml:"ttl" env:"SESSION_TTL"`
}

// SourceConfig holds object-store credentials for s3:// snapshot locations.
// All fields are optional; local file paths need no source configuration.
type SourceConfig struct {
	Endpoint  string `yaml:"endpoint" env:"SOURCE_S3_ENDPOINT"`
	Region    string `yaml:"region" env:"SOURCE_S3_REGION"`
	AccessKey string `yaml:"access_key" env:"SOURCE_S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SOURCE_S3_SECRET_KEY"`
}

// SummarizerConfig holds conversation summarizer configuration.
type SummarizerConfig struct {
	Enabled    bool          `yaml:"enabled" env:"SUMMARIZER_ENABLED"`
	APIKey     string        `yaml:"api_key" env:"SUMMARIZER_API_KEY"`
	Model      string        `yaml:"model" env:"SUMMARIZER_MODEL"`
	MaxRetries int           `yaml:"max_retries" env:"SUMMARIZER_MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"SUMMARIZER_RETRY_DELAY"`
}

// AuditConfig holds audit logging configuration.
type AuditConfig struct {
	Enabled   bool `yaml:"enabled" env:"AUDIT_ENABLED"`
	MaxEvents int  `yaml:"max_events" env:"AUDIT_MAX_EVENTS"` // Max events to keep in memory
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" env:"TRACING_ENABLED"`
	ServiceName    string  `yaml:"service_name" env:"TRACING_SERVICE_NAME"`
	ServiceVersion string  `yaml:"service_version" env:"TRACING_SERVICE_VERSION"`
	Exporter       string  `yaml:"exporter" env:"TRACING_EXPORTER"` // stdout or otlp
	OtlpEndpoint   string  `yaml:"otlp_endpoint" env:"TRACING_OTLP_ENDPOINT"`
	SamplingRatio  float64 `yaml:"sampling_ratio" env:"TRACING_SAMPLING_RATIO"`
}

// LoadConfig loads configuration from a file and environment variables.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Server: ServerConfig{
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
		},
		Decrypt: DecryptConfig{
			MaxSnapshotBytes: 512 * 1024 * 1024, // 512MB default
		},
		Session: SessionConfig{
			MaxSessions: 32,
			TTL:         30 * time.Minute,
		},
		Source: SourceConfig{
			Region: "us-east-1",
		},
		Summarizer: SummarizerConfig{
			Enabled:    false,
			Model:      "gemini-2.0-flash-exp",
			MaxRetries: 3,
			RetryDelay: 2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:   false,
			MaxEvents: 10000,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			ServiceName:    "snapshot-engine",
			ServiceVersion: "dev",
			Exporter:       "stdout",
			SamplingRatio:  1.0,
		},
	}

	// Load from file if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	loadFromEnv(config)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromEnv loads configuration values from environment variables.
func loadFromEnv(config *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		config.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	// Server timeouts from environment
	if v := os.Getenv("SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("SERVER_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.IdleTimeout = d
		}
	}
	if v := os.Getenv("SERVER_READ_HEADER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ReadHeaderTimeout = d
		}
	}
	if v := os.Getenv("SERVER_MAX_HEADER_BYTES"); v != "" {
		var maxBytes int
		if _, err := fmt.Sscanf(v, "%d", &maxBytes); err == nil && maxBytes > 0 {
			config.Server.MaxHeaderBytes = maxBytes
		}
	}
	// Decryption configuration
	if v := os.Getenv("DECRYPT_MAX_SNAPSHOT_BYTES"); v != "" {
		var maxBytes int64
		if _, err := fmt.Sscanf(v, "%d", &maxBytes); err == nil && maxBytes > 0 {
			config.Decrypt.MaxSnapshotBytes = maxBytes
		}
	}
	if v := os.Getenv("DECRYPT_PASSPHRASE_SALT"); v != "" {
		config.Decrypt.PassphraseSalt = v
	}
	// Session registry configuration
	if v := os.Getenv("SESSION_MAX_SESSIONS"); v != "" {
		var maxSessions int
		if _, err := fmt.Sscanf(v, "%d", &maxSessions); err == nil && maxSessions > 0 {
			config.Session.MaxSessions = maxSessions
		}
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Session.TTL = d
		}
	}
	// Source configuration
	if v := os.Getenv("SOURCE_S3_ENDPOINT"); v != "" {
		config.Source.Endpoint = v
	}
	if v := os.Getenv("SOURCE_S3_REGION"); v != "" {
		config.Source.Region = v
	}
	if v := os.Getenv("SOURCE_S3_ACCESS_KEY"); v != "" {
		config.Source.AccessKey = v
	}
	if v := os.Getenv("SOURCE_S3_SECRET_KEY"); v != "" {
		config.Source.SecretKey = v
	}
	// Summarizer configuration
	if v := os.Getenv("SUMMARIZER_ENABLED"); v != "" {
		config.Summarizer.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SUMMARIZER_API_KEY"); v != "" {
		config.Summarizer.APIKey = v
	}
	if v := os.Getenv("SUMMARIZER_MODEL"); v != "" {
		config.Summarizer.Model = v
	}
	if v := os.Getenv("SUMMARIZER_MAX_RETRIES"); v != "" {
		var retries int
		if _, err := fmt.Sscanf(v, "%d", &retries); err == nil && retries >= 0 {
			config.Summarizer.MaxRetries = retries
		}
	}
	if v := os.Getenv("SUMMARIZER_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Summarizer.RetryDelay = d
		}
	}
	// Audit configuration
	if v := os.Getenv("AUDIT_ENABLED"); v != "" {
		config.Audit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AUDIT_MAX_EVENTS"); v != "" {
		var maxEvents int
		if _, err := fmt.Sscanf(v, "%d", &maxEvents); err == nil && maxEvents > 0 {
			config.Audit.MaxEvents = maxEvents
		}
	}
	// Tracing configuration
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		config.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACING_SERVICE_NAME"); v != "" {
		config.Tracing.ServiceName = v
	}
	if v := os.Getenv("TRACING_SERVICE_VERSION"); v != "" {
		config.Tracing.ServiceVersion = v
	}
	if v := os.Getenv("TRACING_EXPORTER"); v != "" {
		config.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACING_OTLP_ENDPOINT"); v != "" {
		config.Tracing.OtlpEndpoint = v
	}
	if v := os.Getenv("TRACING_SAMPLING_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil && ratio >= 0.0 && ratio <= 1.0 {
			config.Tracing.SamplingRatio = ratio
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	if c.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[c.LogLevel] {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel)
		}
	}

	if c.Decrypt.MaxSnapshotBytes <= 0 {
		return fmt.Errorf("decrypt.max_snapshot_bytes must be positive")
	}
	if c.Decrypt.PassphraseSalt != "" {
		if _, err := hex.DecodeString(c.Decrypt.PassphraseSalt); err != nil {
			return fmt.Errorf("invalid decrypt.passphrase_salt: %w", err)
		}
	}

	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session.max_sessions must be positive")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}

	// Credentials are paired: one without the other is a misconfiguration
	// rather than anonymous access.
	if (c.Source.AccessKey == "") != (c.Source.SecretKey == "") {
		return fmt.Errorf("source.access_key and source.secret_key must be set together")
	}

	if c.Summarizer.Enabled && c.Summarizer.APIKey == "" {
		return fmt.Errorf("summarizer.api_key is required when summarizer is enabled")
	}

	// Validate tracing configuration
	if c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			return fmt.Errorf("tracing.service_name is required when tracing is enabled")
		}
		validExporters := map[string]bool{
			"stdout": true,
			"otlp":   true,
		}
		if !validExporters[c.Tracing.Exporter] {
			return fmt.Errorf("invalid tracing.exporter: %s (must be stdout or otlp)", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRatio < 0.0 || c.Tracing.SamplingRatio > 1.0 {
			return fmt.Errorf("tracing.sampling_ratio must be between 0.0 and 1.0")
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.OtlpEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is otlp")
		}
	}

	return nil
}
