// Package config provides configuration loading and validation for the
// audit service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Config is the full service configuration. It can be loaded from a JSON
// file, overridden by environment variables, and finally by CLI flags.
type Config struct {
	// Server
	Port int `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`

	// Storage
	StorageBackend string `json:"storage_backend,omitempty" validate:"omitempty,oneof=fs s3 postgres"`
	DataDir        string `json:"data_dir,omitempty"`
	CacheSize      int    `json:"cache_size,omitempty" validate:"omitempty,min=0"`

	// S3 backend
	S3Bucket    string `json:"s3_bucket,omitempty"`
	S3Prefix    string `json:"s3_prefix,omitempty"`
	S3Region    string `json:"s3_region,omitempty"`
	S3Endpoint  string `json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3PathStyle bool   `json:"s3_path_style,omitempty"`

	// Postgres backend
	DatabaseURL string `json:"database_url,omitempty"`

	// Collaborator
	APIKey        string `json:"api_key,omitempty"`
	FastModel     string `json:"fast_model,omitempty"`
	PrimaryModel  string `json:"primary_model,omitempty"`
	FallbackModel string `json:"fallback_model,omitempty"`

	// API auth. Empty secret disables bearer-token checks.
	AuthSecret string `json:"auth_secret,omitempty"`

	// Behavior
	Verbose bool `json:"verbose,omitempty"`
}

// Defaults returns the built-in configuration baseline.
func Defaults() Config {
	return Config{
		Port:           8080,
		StorageBackend: "fs",
		DataDir:        "data",
		CacheSize:      256,
	}
}

// Load reads a JSON config file. Returns an error if the file cannot be read
// or parsed.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overlays environment variables onto the config. Environment wins
// over file values; CLI flags are applied after this and win over both.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("REGAUDIT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("REGAUDIT_STORAGE_BACKEND"); v != "" {
		c.StorageBackend = v
	}
	if v := os.Getenv("REGAUDIT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("REGAUDIT_S3_BUCKET"); v != "" {
		c.S3Bucket = v
	}
	if v := os.Getenv("REGAUDIT_S3_PREFIX"); v != "" {
		c.S3Prefix = v
	}
	if v := os.Getenv("REGAUDIT_S3_REGION"); v != "" {
		c.S3Region = v
	}
	if v := os.Getenv("REGAUDIT_S3_ENDPOINT"); v != "" {
		c.S3Endpoint = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REGAUDIT_AUTH_SECRET"); v != "" {
		c.AuthSecret = v
	}
}

// MergeWithDefaults returns a new Config with unset fields filled from
// defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.StorageBackend == "" {
		result.StorageBackend = defaults.StorageBackend
	}
	if result.DataDir == "" {
		result.DataDir = defaults.DataDir
	}
	if result.CacheSize == 0 {
		result.CacheSize = defaults.CacheSize
	}
	if result.S3Bucket == "" {
		result.S3Bucket = defaults.S3Bucket
	}
	if result.S3Region == "" {
		result.S3Region = defaults.S3Region
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.AuthSecret == "" {
		result.AuthSecret = defaults.AuthSecret
	}
	// Bool fields: cannot distinguish unset from false, so CLI flags always
	// win for those.
	return result
}

var validate = validator.New()

// Validate checks field values and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("config error: field %q fails %q validation", f.Field(), f.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}

	switch c.StorageBackend {
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("config error: 's3_bucket' is required for the s3 backend")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config error: 'database_url' is required for the postgres backend")
		}
	}
	return nil
}
