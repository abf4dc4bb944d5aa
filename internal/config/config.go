// Package config provides YAML-based configuration for the scan client.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	// Local HTTP surface for the presentation layer
	Server ServerConfig `yaml:"server"`

	// Remote classification service
	Backend BackendConfig `yaml:"backend"`

	// Digest computation
	Hashing HashingConfig `yaml:"hashing"`

	// Staging of files selected through the web surface
	Storage StorageConfig `yaml:"storage"`

	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int    `yaml:"port"`
	BindAddress          string `yaml:"bind_address"`
	EnableCORS           bool   `yaml:"enable_cors"`
	AllowOrigins         string `yaml:"allow_origins"`
	ReadTimeout          int    `yaml:"read_timeout_seconds"`
	WriteTimeout         int    `yaml:"write_timeout_seconds"`
	IdleTimeout          int    `yaml:"idle_timeout_seconds"`
	BodyLimit            string `yaml:"body_limit"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
}

// BackendConfig contains classification service settings
type BackendConfig struct {
	BaseURL             string `yaml:"base_url"`
	ScanTimeoutSeconds  int    `yaml:"scan_timeout_seconds"`
	QueryTimeoutSeconds int    `yaml:"query_timeout_seconds"`
	// MaxBatchBytes mirrors the service's request body limit.
	MaxBatchBytes int64  `yaml:"max_batch_bytes"`
	UserAgent     string `yaml:"user_agent"`
}

// HashingConfig contains digest settings
type HashingConfig struct {
	Workers int `yaml:"workers"`
}

// StorageConfig contains staging settings
type StorageConfig struct {
	StagingDirectory string `yaml:"staging_directory"`
}

// LoggingConfig contains log settings
type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error | off
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8089,
			BindAddress:          "127.0.0.1",
			EnableCORS:           true,
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         30,
			IdleTimeout:          120,
			BodyLimit:            "1G",
			EnableRequestLogging: true,
		},
		Backend: BackendConfig{
			BaseURL:             "http://localhost:8000",
			ScanTimeoutSeconds:  300,
			QueryTimeoutSeconds: 10,
			MaxBatchBytes:       1 << 30,
			UserAgent:           "apkscan",
		},
		Hashing: HashingConfig{
			Workers: runtime.NumCPU(),
		},
		Storage: StorageConfig{
			StagingDirectory: "./data/staging",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is
// created with the defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Unmarshal over the defaults so omitted keys keep their default.
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# APK scan client configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if u := os.Getenv("APKSCAN_BACKEND_URL"); u != "" {
		c.Backend.BaseURL = u
	}

	if dir := os.Getenv("APKSCAN_STAGING_DIR"); dir != "" {
		c.Storage.StagingDirectory = dir
	}

	if level := os.Getenv("APKSCAN_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.StagingDirectory) {
		c.Storage.StagingDirectory = filepath.Join(configDir, c.Storage.StagingDirectory)
	}
}

// Validate checks values that would otherwise fail at first use.
func (c *AppConfig) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Backend.ScanTimeoutSeconds <= 0 {
		return fmt.Errorf("backend.scan_timeout_seconds must be positive")
	}
	if c.Backend.QueryTimeoutSeconds <= 0 {
		return fmt.Errorf("backend.query_timeout_seconds must be positive")
	}
	if c.Backend.MaxBatchBytes < 0 {
		return fmt.Errorf("backend.max_batch_bytes must not be negative")
	}
	return nil
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetStagingDir returns the absolute staging directory path
func (c *AppConfig) GetStagingDir() string {
	return c.Storage.StagingDirectory
}

// ScanTimeout returns the per-request timeout for batch scans.
func (c *AppConfig) ScanTimeout() time.Duration {
	return time.Duration(c.Backend.ScanTimeoutSeconds) * time.Second
}

// QueryTimeout returns the per-request timeout for lookups and pings.
func (c *AppConfig) QueryTimeout() time.Duration {
	return time.Duration(c.Backend.QueryTimeoutSeconds) * time.Second
}
