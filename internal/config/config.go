// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for bookshelf.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// .env files, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - $BOOKSHELF_HOME/config.toml (default ~/.bookshelf/config.toml)
//   - $BOOKSHELF_HOME/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/bookshelf-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete bookshelf configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Backend connection
	API APIConfig `toml:"api" json:"api"`

	// Sign-in persistence
	Session SessionConfig `toml:"session" json:"session"`

	// Client-side upload constraints
	Upload UploadConfig `toml:"upload" json:"upload"`

	// Document ingestion polling
	Parsing ParsingConfig `toml:"parsing" json:"parsing"`

	// Terminal UI
	UI UIConfig `toml:"ui" json:"ui"`

	// Log output
	Log LogConfig `toml:"log" json:"log"`
}

// APIConfig configures the REST client.
type APIConfig struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000"
	BaseURL string `toml:"base_url" json:"base_url"`
	// Carrier selects how the session travels: "cookie" or "bearer"
	Carrier string `toml:"carrier" json:"carrier"`
	// TimeoutSecs bounds a single request
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxRetries applies to idempotent reads only. 0 disables retries.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
	// RequestsPerSecond caps outbound request rate (0 = unlimited)
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
}

// SessionConfig configures credential persistence.
type SessionConfig struct {
	// RememberMe is the default for the login form's remember-me toggle
	RememberMe bool `toml:"remember_me" json:"remember_me"`
	// RememberDays is the persisted credential lifetime when the token carries no expiry
	RememberDays int `toml:"remember_days" json:"remember_days"`
}

// UploadConfig configures client-side upload validation.
type UploadConfig struct {
	// MaxSizeMB is the per-file size limit
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb"`
	// Concurrency is the number of files uploaded at once
	Concurrency int `toml:"concurrency" json:"concurrency"`
}

// ParsingConfig configures parse-status polling.
type ParsingConfig struct {
	PollIntervalSecs int `toml:"poll_interval_secs" json:"poll_interval_secs"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// RevealIntervalMs is the typewriter tick for newly arrived replies
	RevealIntervalMs int `toml:"reveal_interval_ms" json:"reveal_interval_ms"`
	// RevealChunk is the number of runes revealed per tick
	RevealChunk int `toml:"reveal_chunk" json:"reveal_chunk"`
	// WordWrap is the markdown wrap width (0 = terminal width)
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
	// PageSize is the number of rows per table page
	PageSize int `toml:"page_size" json:"page_size"`
}

// LogConfig configures the log file.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// File is the log path; relative paths live in the config directory
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		API: APIConfig{
			BaseURL:           "http://localhost:8000",
			Carrier:           "cookie",
			TimeoutSecs:       30,
			MaxRetries:        0,
			RequestsPerSecond: 10,
		},
		Session: SessionConfig{
			RememberMe:   false,
			RememberDays: 7,
		},
		Upload: UploadConfig{
			MaxSizeMB:   20,
			Concurrency: 3,
		},
		Parsing: ParsingConfig{
			PollIntervalSecs: 5,
		},
		UI: UIConfig{
			Theme:            "dark",
			RevealIntervalMs: 15,
			RevealChunk:      2,
			WordWrap:         80,
			PageSize:         10,
		},
		Log: LogConfig{
			Level: "info",
			File:  "bookshelf.log",
		},
	}
}

// Timeout returns the request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// PollInterval returns the parse-status polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Parsing.PollIntervalSecs) * time.Second
}

// RevealInterval returns the typewriter tick interval.
func (c *Config) RevealInterval() time.Duration {
	return time.Duration(c.UI.RevealIntervalMs) * time.Millisecond
}

// MaxUploadBytes returns the per-file upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxSizeMB) * 1024 * 1024
}

// RememberFor returns the fallback lifetime of a persisted credential.
func (c *Config) RememberFor() time.Duration {
	return time.Duration(c.Session.RememberDays) * 24 * time.Hour
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the bookshelf configuration directory path.
// BOOKSHELF_HOME overrides the default ~/.bookshelf.
func ConfigDir() (string, error) {
	if dir := os.Getenv("BOOKSHELF_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".bookshelf"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DataPath resolves name inside the config directory unless it is absolute.
func DataPath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions tightens config files to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads .env from the working directory and the config directory.
// Existing environment variables always win.
func LoadDotEnv() {
	candidates := []string{".env"}
	if dir, err := ConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// .env files and environment overrides are applied last.
func Load() (*Config, error) {
	LoadDotEnv()

	cfg := Default()
	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	cfg, err := finish(Default())
	if err != nil {
		return nil, err
	}
	// Defaults are usable even when a file was unreadable.
	return cfg, loadErr
}

// finish applies env overrides, migration, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.Migrate(); err != nil {
		return nil, fmt.Errorf("config migration failed: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# bookshelf configuration file\n")
	b.WriteString("# Generated by bookshelf - edit with care\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "api.base_url",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port]", c.API.BaseURL),
		})
	}

	switch strings.ToLower(c.API.Carrier) {
	case "cookie", "bearer":
	default:
		errs = append(errs, ValidationError{
			Field:   "api.carrier",
			Message: fmt.Sprintf("invalid carrier '%s', must be one of: cookie, bearer", c.API.Carrier),
		})
	}

	if c.API.TimeoutSecs < 1 || c.API.TimeoutSecs > 600 {
		errs = append(errs, ValidationError{Field: "api.timeout_secs", Message: "must be between 1 and 600"})
	}
	if c.API.MaxRetries < 0 || c.API.MaxRetries > 10 {
		errs = append(errs, ValidationError{Field: "api.max_retries", Message: "must be between 0 and 10"})
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "api.requests_per_second", Message: "must not be negative"})
	}
	if c.Session.RememberDays < 1 || c.Session.RememberDays > 365 {
		errs = append(errs, ValidationError{Field: "session.remember_days", Message: "must be between 1 and 365"})
	}
	if c.Upload.MaxSizeMB < 1 || c.Upload.MaxSizeMB > 1024 {
		errs = append(errs, ValidationError{Field: "upload.max_size_mb", Message: "must be between 1 and 1024"})
	}
	if c.Upload.Concurrency < 1 || c.Upload.Concurrency > 16 {
		errs = append(errs, ValidationError{Field: "upload.concurrency", Message: "must be between 1 and 16"})
	}
	if c.Parsing.PollIntervalSecs < 1 {
		errs = append(errs, ValidationError{Field: "parsing.poll_interval_secs", Message: "must be at least 1"})
	}

	switch strings.ToLower(c.UI.Theme) {
	case "dark", "light", "auto":
	default:
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}
	if c.UI.RevealIntervalMs < 1 || c.UI.RevealIntervalMs > 1000 {
		errs = append(errs, ValidationError{Field: "ui.reveal_interval_ms", Message: "must be between 1 and 1000"})
	}
	if c.UI.RevealChunk < 1 {
		errs = append(errs, ValidationError{Field: "ui.reveal_chunk", Message: "must be at least 1"})
	}
	if c.UI.PageSize < 1 {
		errs = append(errs, ValidationError{Field: "ui.page_size", Message: "must be at least 1"})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that have no meaningful zero.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	if c.API.Carrier == "" {
		c.API.Carrier = d.API.Carrier
	}
	if c.API.TimeoutSecs == 0 {
		c.API.TimeoutSecs = d.API.TimeoutSecs
	}
	if c.Session.RememberDays == 0 {
		c.Session.RememberDays = d.Session.RememberDays
	}
	if c.Upload.MaxSizeMB == 0 {
		c.Upload.MaxSizeMB = d.Upload.MaxSizeMB
	}
	if c.Upload.Concurrency == 0 {
		c.Upload.Concurrency = d.Upload.Concurrency
	}
	if c.Parsing.PollIntervalSecs == 0 {
		c.Parsing.PollIntervalSecs = d.Parsing.PollIntervalSecs
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.RevealIntervalMs == 0 {
		c.UI.RevealIntervalMs = d.UI.RevealIntervalMs
	}
	if c.UI.RevealChunk == 0 {
		c.UI.RevealChunk = d.UI.RevealChunk
	}
	if c.UI.PageSize == 0 {
		c.UI.PageSize = d.UI.PageSize
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.File == "" {
		c.Log.File = d.Log.File
	}
}

// Migrate normalizes values written by older versions.
func (c *Config) Migrate() error {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	c.API.Carrier = strings.ToLower(strings.TrimSpace(c.API.Carrier))
	// "token" was the pre-1.0 name for the bearer carrier.
	if c.API.Carrier == "token" {
		c.API.Carrier = "bearer"
	}
	c.UI.Theme = strings.ToLower(c.UI.Theme)
	c.Log.Level = strings.ToLower(c.Log.Level)
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - BOOKSHELF_API_URL: overrides api.base_url
//   - BOOKSHELF_CARRIER: overrides api.carrier
//   - BOOKSHELF_LOG_LEVEL: overrides log.level
//   - BOOKSHELF_REMEMBER_ME: "1" or "true" enables session.remember_me
//   - BOOKSHELF_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BOOKSHELF_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("BOOKSHELF_CARRIER"); v != "" {
		c.API.Carrier = v
	}
	if v := os.Getenv("BOOKSHELF_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("BOOKSHELF_REMEMBER_ME"); v != "" {
		c.Session.RememberMe = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("BOOKSHELF_THEME"); v != "" {
		c.UI.Theme = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "api.base_url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "ui.theme").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks dot-separated parts matching toml tags.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if strings.EqualFold(tag, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("toml"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, prefix+name+".", keys)
			continue
		}
		*keys = append(*keys, prefix+name)
	}
}

// Clone returns a copy of the configuration. Config has no reference fields.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns an indented JSON view of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
