// Package config loads the fieldscout YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Model    ModelConfig    `yaml:"model"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Advisor  AdvisorConfig  `yaml:"advisor"`
	Watch    WatchConfig    `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
	// RateLimit is the sustained requests per second allowed on analyze and
	// advice routes; RateBurst is the bucket size.
	RateLimit      float64 `yaml:"rate_limit" validate:"gte=0"`
	RateBurst      int     `yaml:"rate_burst" validate:"gte=0"`
	MaxUploadBytes int64   `yaml:"max_upload_bytes" validate:"gt=0"`
}

// StorageConfig holds the database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" validate:"required"`
}

// ModelConfig describes the classifier and its bundled artifacts.
type ModelConfig struct {
	Backend           string `yaml:"backend" validate:"oneof=onnx mock"`
	ModelPath         string `yaml:"model_path" validate:"required_if=Backend onnx"`
	LabelsPath        string `yaml:"labels_path" validate:"required"`
	CalibrationPath   string `yaml:"calibration_path"`
	SharedLibraryPath string `yaml:"shared_library_path"`
	Version           string `yaml:"version"`
	InputSize         int    `yaml:"input_size" validate:"min=1,max=4096"`
	MaxDecodeDim      int    `yaml:"max_decode_dim" validate:"min=1"`
	MaxPixels         int64  `yaml:"max_pixels" validate:"gte=0"`
	Layout            string `yaml:"layout" validate:"oneof=nhwc nchw"`
	ScaleToUnit       bool   `yaml:"scale_to_unit"`
	CacheSize         int    `yaml:"cache_size" validate:"gte=0"`
}

// AnalysisConfig holds defaults for analysis requests.
type AnalysisConfig struct {
	TopK int `yaml:"top_k" validate:"min=1"`
}

// AdvisorConfig holds knowledge base and generator settings.
type AdvisorConfig struct {
	KnowledgePath string       `yaml:"knowledge_path" validate:"required"`
	TopKDocs      int          `yaml:"top_k_docs" validate:"min=1"`
	Generator     string       `yaml:"generator" validate:"oneof=template openai"`
	OpenAI        OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig configures the optional chat completion generator. The API key
// is read from the environment variable named by APIKeyEnv, never from the file.
type OpenAIConfig struct {
	BaseURL        string  `yaml:"base_url" validate:"omitempty,url"`
	Model          string  `yaml:"model"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Temperature    float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int     `yaml:"max_tokens" validate:"gte=0"`
	TimeoutSeconds int     `yaml:"timeout_seconds" validate:"gte=0"`
}

// APIKey returns the key from the configured environment variable.
func (o OpenAIConfig) APIKey() string {
	return os.Getenv(o.APIKeyEnv)
}

// Timeout returns the completion timeout.
func (o OpenAIConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// WatchConfig holds inbox directory settings.
type WatchConfig struct {
	Directories    []string `yaml:"directories"`
	Extensions     []string `yaml:"extensions"`
	Recursive      *bool    `yaml:"recursive"`
	AutoAnalyze    bool     `yaml:"auto_analyze"`
	DebounceMillis int      `yaml:"debounce_ms" validate:"gte=0"`
	DefaultFieldID string   `yaml:"default_field_id"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Debounce returns the debounce interval.
func (w *WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMillis) * time.Millisecond
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ExpandPaths(&cfg, filepath.Dir(path))
	return &cfg, nil
}

// ExpandPaths makes every configured path absolute.
func ExpandPaths(cfg *Config, configDir string) {
	for _, p := range []*string{
		&cfg.Storage.DatabasePath,
		&cfg.Model.ModelPath,
		&cfg.Model.LabelsPath,
		&cfg.Model.CalibrationPath,
		&cfg.Model.SharedLibraryPath,
		&cfg.Advisor.KnowledgePath,
	} {
		*p = expandPath(*p, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
}

var validate = validator.New()

// Validate checks field constraints and returns all violations in one error.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
