// Package config provides configuration management for the CloudCut engine.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	// Default values
	DefaultPort      = 8898
	DefaultLogLevel  = "info"
	DefaultDataDir   = ".cloudcut"
	DefaultCloudName = "cloudcut-demo"

	// Environment variable names
	EnvPort     = "CLOUDCUT_PORT"
	EnvLogLevel = "CLOUDCUT_LOG_LEVEL"
	EnvDataDir  = "CLOUDCUT_DATA_DIR"

	// Asset store / signing environment variable names
	EnvSigningSecret = "CLOUDCUT_SIGNING_SECRET"
	EnvAPIKey        = "CLOUDCUT_API_KEY"
	EnvCloudName     = "CLOUDCUT_CLOUD_NAME"
	EnvUploadBaseURL = "CLOUDCUT_UPLOAD_BASE_URL"
	EnvUploadToken   = "CLOUDCUT_UPLOAD_TOKEN"
	EnvAuthToken     = "CLOUDCUT_AUTH_TOKEN"

	// Database filename
	DBFilename = "cloudcut.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	BlobDir() string
	SigningSecret() string
	APIKey() string
	CloudName() string
	UploadBaseURL() string
	UploadToken() string
	AuthToken() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string

	signingSecret string
	apiKey        string
	cloudName     string
	uploadBaseURL string
	uploadToken   string
	authToken     string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:      DefaultPort,
		logLevel:  DefaultLogLevel,
		dataDir:   defaultDataDir(),
		cloudName: DefaultCloudName,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.signingSecret = os.Getenv(EnvSigningSecret)
	cfg.apiKey = os.Getenv(EnvAPIKey)
	if cn := os.Getenv(EnvCloudName); cn != "" {
		cfg.cloudName = cn
	}
	cfg.uploadBaseURL = os.Getenv(EnvUploadBaseURL)
	cfg.uploadToken = os.Getenv(EnvUploadToken)
	cfg.authToken = os.Getenv(EnvAuthToken)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// BlobDir returns the directory where exported blobs are cached locally
func (c *EnvConfig) BlobDir() string {
	return filepath.Join(c.dataDir, "blobs")
}

// SigningSecret returns the server-held upload signing secret
func (c *EnvConfig) SigningSecret() string {
	return c.signingSecret
}

// APIKey returns the public upload API key echoed in signed parameters
func (c *EnvConfig) APIKey() string {
	return c.apiKey
}

// CloudName returns the asset store tenant name
func (c *EnvConfig) CloudName() string {
	return c.cloudName
}

// UploadBaseURL returns the remote asset store base URL, empty for local store
func (c *EnvConfig) UploadBaseURL() string {
	return c.uploadBaseURL
}

// UploadToken returns the bearer token for the remote asset store
func (c *EnvConfig) UploadToken() string {
	return c.uploadToken
}

// AuthToken returns the bearer token the control API requires, empty to
// serve unauthenticated (local development)
func (c *EnvConfig) AuthToken() string {
	return c.authToken
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
