// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ServerConfig holds settings for the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" mapstructure:"read_header_timeout"`

	// ShutdownTimeout bounds graceful shutdown after a signal.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// MaxUploadBytes caps the request body size. Zero disables the cap.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`

	// RateLimit is the number of requests per minute allowed per client IP
	// on the conversion endpoint. Zero disables limiting.
	RateLimit int `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`

	// CORSOrigins lists allowed origins for cross-origin requests.
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" mapstructure:"cors_origins"`
}

// StagingConfig holds settings for temporary upload files.
type StagingConfig struct {
	// Dir is where uploads are staged. Empty means an extract-server
	// subdirectory of the OS temp directory.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// SweepAge is the minimum age of leftover staged files removed at startup.
	SweepAge time.Duration `json:"sweep_age" yaml:"sweep_age" mapstructure:"sweep_age"`
}

// ConversionBackend identifies the document conversion tool.
type ConversionBackend string

const (
	BackendAuto       ConversionBackend = "auto"
	BackendNative     ConversionBackend = "native"
	BackendMarkitdown ConversionBackend = "markitdown"
	BackendService    ConversionBackend = "service"
)

// ConversionConfig holds settings for the conversion stage.
type ConversionConfig struct {
	// Backend selects the conversion tool: auto, native, markitdown, or service.
	Backend ConversionBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Timeout bounds a single conversion. Zero means no timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// Image is the container image used by the markitdown backend.
	Image string `json:"image" yaml:"image" mapstructure:"image"`

	// ServiceURL is the endpoint of a remote conversion service.
	ServiceURL string `json:"service_url,omitempty" yaml:"service_url,omitempty" mapstructure:"service_url"`

	// ServiceAPIKey is sent as a bearer token to the remote service.
	ServiceAPIKey string `json:"service_api_key,omitempty" yaml:"service_api_key,omitempty" mapstructure:"service_api_key"`

	// MaxRetries is the number of retries on 429/503 from the remote service (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// AuditConfig holds settings for the conversion audit log.
type AuditConfig struct {
	// Path is the SQLite database file. Empty disables auditing.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is json or console.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups all settings for the server and CLI.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server" mapstructure:"server"`
	Staging    StagingConfig    `json:"staging" yaml:"staging" mapstructure:"staging"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion" mapstructure:"conversion"`
	Audit      AuditConfig      `json:"audit" yaml:"audit" mapstructure:"audit"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}
