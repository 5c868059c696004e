// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
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

	"github.com/jeranaias/ocli/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete ocli configuration.
type Config struct {
	// Model is the default model for chat turns
	Model string `toml:"model"`

	Ollama  OllamaConfig  `toml:"ollama"`
	Stream  StreamConfig  `toml:"stream"`
	Tools   ToolsConfig   `toml:"tools"`
	Cache   CacheConfig   `toml:"cache"`
	Context ContextConfig `toml:"context"`
	MCP     MCPConfig     `toml:"mcp"`
	Logging LoggingConfig `toml:"logging"`
}

// OllamaConfig contains inference server settings.
type OllamaConfig struct {
	// URL is the server base URL
	URL string `toml:"url"`

	// ConnectTimeout bounds dialing and response headers. Streams
	// themselves have no deadline.
	ConnectTimeout time.Duration `toml:"connect_timeout"`
}

// StreamConfig contains streaming display settings.
type StreamConfig struct {
	// BatchSize is the number of tokens between progress updates
	BatchSize int `toml:"batch_size"`

	// BufferSize is the output buffer size in bytes
	BufferSize int `toml:"buffer_size"`

	// PreviewLines is how many lines of tool output are shown
	PreviewLines int `toml:"preview_lines"`

	// StrictToolCalls shows malformed tool calls as errors instead of
	// dropping them
	StrictToolCalls bool `toml:"strict_tool_calls"`
}

// ToolsConfig contains built-in tool settings.
type ToolsConfig struct {
	BackupSuffix string `toml:"backup_suffix"`
	Shell        string `toml:"shell"`

	// MaxOutput truncates tool output, in bytes
	MaxOutput int `toml:"max_output"`
}

// CacheConfig contains response cache settings.
type CacheConfig struct {
	Enabled  bool `toml:"enabled"`
	Capacity int  `toml:"capacity"`
}

// ContextConfig contains conversation settings.
type ContextConfig struct {
	// MaxTokens is the estimated token budget of the message history
	MaxTokens int `toml:"max_tokens"`

	// SessionDir holds the session database, relative to the working
	// directory unless absolute
	SessionDir string `toml:"session_dir"`

	// AutosaveEvery saves the session after every N messages (0 = only on exit)
	AutosaveEvery int `toml:"autosave_every"`
}

// MCPConfig contains MCP server settings.
type MCPConfig struct {
	ConfigFile  string        `toml:"config_file"`
	CallTimeout time.Duration `toml:"call_timeout"`
}

// LoggingConfig contains log settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `toml:"level"`

	// File is the log path; empty means ~/.ocli/ocli.log
	File string `toml:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: "deepseek-coder:6.7b",
		Ollama: OllamaConfig{
			URL:            "http://localhost:11434",
			ConnectTimeout: 5 * time.Second,
		},
		Stream: StreamConfig{
			BatchSize:    20,
			BufferSize:   512,
			PreviewLines: 5,
		},
		Tools: ToolsConfig{
			BackupSuffix: ".backup",
			Shell:        "sh",
			MaxOutput:    30000,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Capacity: 100,
		},
		Context: ContextConfig{
			MaxTokens:     8000,
			SessionDir:    ".ocli",
			AutosaveEvery: 5,
		},
		MCP: MCPConfig{
			ConfigFile:  filepath.Join(".ocli", "mcp_servers.json"),
			CallTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the ocli configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ocli"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LogPath returns the log file path for c.
func (c *Config) LogPath() (string, error) {
	if c.Logging.File != "" {
		return c.Logging.File, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ocli.log"), nil
}

// SessionDBPath returns the session database path.
func (c *Config) SessionDBPath() string {
	return filepath.Join(c.Context.SessionDir, "sessions.db")
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the default config file. A missing file yields the defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path with full validation. A missing
// file yields the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values; unknown keys are rejected.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = d.Ollama.URL
	}
	if c.Ollama.ConnectTimeout == 0 {
		c.Ollama.ConnectTimeout = d.Ollama.ConnectTimeout
	}
	if c.Stream.BatchSize == 0 {
		c.Stream.BatchSize = d.Stream.BatchSize
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = d.Stream.BufferSize
	}
	if c.Stream.PreviewLines == 0 {
		c.Stream.PreviewLines = d.Stream.PreviewLines
	}
	if c.Tools.BackupSuffix == "" {
		c.Tools.BackupSuffix = d.Tools.BackupSuffix
	}
	if c.Tools.Shell == "" {
		c.Tools.Shell = d.Tools.Shell
	}
	if c.Tools.MaxOutput == 0 {
		c.Tools.MaxOutput = d.Tools.MaxOutput
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = d.Cache.Capacity
	}
	if c.Context.MaxTokens == 0 {
		c.Context.MaxTokens = d.Context.MaxTokens
	}
	if c.Context.SessionDir == "" {
		c.Context.SessionDir = d.Context.SessionDir
	}
	if c.MCP.ConfigFile == "" {
		c.MCP.ConfigFile = d.MCP.ConfigFile
	}
	if c.MCP.CallTimeout == 0 {
		c.MCP.CallTimeout = d.MCP.CallTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration to path atomically.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# ocli configuration file\n")
	buf.WriteString("# Generated by ocli - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
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

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate validates the configuration and returns any errors as
// ValidationErrors.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Model) == "" {
		add("model", "must not be empty")
	}

	if u, err := url.Parse(c.Ollama.URL); err != nil {
		add("ollama.url", "invalid URL: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("ollama.url", "scheme must be http or https, got '%s'", u.Scheme)
	} else if u.Host == "" {
		add("ollama.url", "missing host")
	}
	if c.Ollama.ConnectTimeout < 0 {
		add("ollama.connect_timeout", "must not be negative")
	}

	if c.Stream.BatchSize <= 0 {
		add("stream.batch_size", "must be positive, got %d", c.Stream.BatchSize)
	}
	if c.Stream.BufferSize <= 0 {
		add("stream.buffer_size", "must be positive, got %d", c.Stream.BufferSize)
	}
	if c.Stream.PreviewLines <= 0 {
		add("stream.preview_lines", "must be positive, got %d", c.Stream.PreviewLines)
	}

	if strings.TrimSpace(c.Tools.Shell) == "" {
		add("tools.shell", "must not be empty")
	}
	if c.Tools.MaxOutput <= 0 {
		add("tools.max_output", "must be positive, got %d", c.Tools.MaxOutput)
	}

	if c.Cache.Capacity <= 0 {
		add("cache.capacity", "must be at least 1, got %d", c.Cache.Capacity)
	}

	if c.Context.MaxTokens <= 0 {
		add("context.max_tokens", "must be positive, got %d", c.Context.MaxTokens)
	}
	if c.Context.AutosaveEvery < 0 {
		add("context.autosave_every", "must not be negative")
	}

	if c.MCP.CallTimeout <= 0 {
		add("mcp.call_timeout", "must be positive, got %s", c.MCP.CallTimeout)
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - OCLI_MODEL: overrides model
//   - OCLI_OLLAMA_URL: overrides ollama.url
//   - OCLI_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("OCLI_MODEL"); model != "" {
		c.Model = model
	}
	if u := os.Getenv("OCLI_OLLAMA_URL"); u != "" {
		c.Ollama.URL = u
	}
	if level := os.Getenv("OCLI_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Keys lists every configuration key in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("toml")
		if f.Type.Kind() != reflect.Struct {
			keys = append(keys, name)
			continue
		}
		for j := 0; j < f.Type.NumField(); j++ {
			keys = append(keys, name+"."+f.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// field resolves a dot-notation key to its struct field.
func (c *Config) field(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// Get retrieves a configuration value using dot notation (e.g., "stream.batch_size").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.field(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.field(key)
	if err != nil {
		return err
	}
	if !field.CanSet() || field.Kind() == reflect.Struct {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		if field.Type() == durationType {
			d, err := time.ParseDuration(strVal)
			if err != nil {
				return fmt.Errorf("invalid duration value: %v", err)
			}
			field.SetInt(int64(d))
			return nil
		}
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
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String && field.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance. It loads the default
// config file on first access and falls back to defaults on error.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil || cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
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
