// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

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
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/util"
)

// CurrentVersion is the config file format version written by Save.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete calliope configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Server   ServerConfig   `toml:"server" json:"server"`
	Protocol ProtocolConfig `toml:"protocol" json:"protocol"`
	Chat     ChatConfig     `toml:"chat" json:"chat"`
	History  HistoryConfig  `toml:"history" json:"history"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
	UI       UIConfig       `toml:"ui" json:"ui"`
	Logging  LoggingConfig  `toml:"logging" json:"logging"`
}

// ServerConfig describes the chat server and its endpoints.
type ServerConfig struct {
	BaseURL    string `toml:"base_url" json:"base_url"`
	ChatPath   string `toml:"chat_path" json:"chat_path"`
	UploadPath string `toml:"upload_path" json:"upload_path"`
	ChatsPath  string `toml:"chats_path" json:"chats_path"`
	// MemoriesPath is the saved-memory endpoint.
	MemoriesPath string `toml:"memories_path" json:"memories_path"`

	// SessionCookie is sent as the "session" cookie. Secret.
	SessionCookie string `toml:"session_cookie" json:"session_cookie"`
	// APIToken is sent as a bearer token. Secret.
	APIToken string `toml:"api_token" json:"api_token"`

	RequestsPerSecond  float64 `toml:"requests_per_second" json:"requests_per_second"`
	ConnectTimeoutSecs int     `toml:"connect_timeout_secs" json:"connect_timeout_secs"`
	// MaxRetries is the attempt count for idempotent reads.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// ConnectTimeout returns the non-streaming request timeout.
func (s ServerConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutSecs) * time.Second
}

// ProtocolConfig selects the stream dialect.
type ProtocolConfig struct {
	// Version is "typed", "legacy" or "auto".
	Version string `toml:"version" json:"version"`
}

// ChatConfig holds per-turn defaults.
type ChatConfig struct {
	ResearchMode       bool   `toml:"research_mode" json:"research_mode"`
	UseSearch          bool   `toml:"use_search" json:"use_search"`
	RetainedMessages   int    `toml:"retained_messages" json:"retained_messages"`
	CancellationNotice string `toml:"cancellation_notice" json:"cancellation_notice"`
}

// HistoryConfig configures the local chat list cache.
type HistoryConfig struct {
	// CachePath is the SQLite file. Empty means <config dir>/history.db.
	CachePath string `toml:"cache_path" json:"cache_path"`
}

// StorageConfig configures local transcripts.
type StorageConfig struct {
	// TranscriptDir is empty for <config dir>/transcripts.
	TranscriptDir    string `toml:"transcript_dir" json:"transcript_dir"`
	MaxConversations int    `toml:"max_conversations" json:"max_conversations"`
}

// UIConfig contains user interface settings.
type UIConfig struct {
	// Theme is "auto", "dark" or "light".
	Theme    string `toml:"theme" json:"theme"`
	Markdown bool   `toml:"markdown" json:"markdown"`
	WordWrap int    `toml:"word_wrap" json:"word_wrap"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
	// File receives JSON logs. Empty disables file logging.
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			BaseURL:            "http://localhost:5000",
			ChatPath:           "/api/chat",
			UploadPath:         "/api/upload",
			ChatsPath:          "/api/chats",
			MemoriesPath:       "/api/memories",
			RequestsPerSecond:  5,
			ConnectTimeoutSecs: 60,
			MaxRetries:         3,
		},
		Protocol: ProtocolConfig{
			Version: string(protocol.VersionAuto),
		},
		Chat: ChatConfig{
			RetainedMessages:   50,
			CancellationNotice: "Response cancelled.",
		},
		Storage: StorageConfig{
			MaxConversations: 100,
		},
		UI: UIConfig{
			Theme:    "auto",
			Markdown: true,
			WordWrap: 100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the calliope configuration directory. CALLIOPE_HOME
// overrides the ~/.calliope default.
func ConfigDir() (string, error) {
	if dir := os.Getenv("CALLIOPE_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".calliope"), nil
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

// FilePath returns the config file Load reads: config.toml, or config.json
// when only the JSON file exists.
func FilePath() (string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// HistoryCachePath resolves the history cache location.
func (c *Config) HistoryCachePath() (string, error) {
	if c.History.CachePath != "" {
		return expandHome(c.History.CachePath), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// TranscriptDir resolves the transcript directory.
func (c *Config) TranscriptDir() (string, error) {
	if c.Storage.TranscriptDir != "" {
		return expandHome(c.Storage.TranscriptDir), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "transcripts"), nil
}

// LogFile resolves the log file path, or "" when file logging is off.
func (c *Config) LogFile() string {
	return expandHome(c.Logging.File)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files hold the session cookie and API token; keep them 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config directory. TOML is tried first,
// then JSON, then the built-in defaults. Environment overrides are applied
// last. A broken file falls back to defaults and its error is returned
// alongside the usable config.
func Load() (*Config, error) {
	var loadErr error

	candidates := []struct {
		path func() (string, error)
		load func(*Config, string) error
		kind string
	}{
		{ConfigPathTOML, LoadTOML, "TOML"},
		{ConfigPathJSON, LoadJSON, "JSON"},
	}
	for _, c := range candidates {
		path, err := c.path()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg := Default()
		if err := c.load(cfg, path); err != nil {
			loadErr = fmt.Errorf("failed to load %s config: %w", c.kind, err)
			continue
		}
		if err := finish(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg := Default()
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadJSON decodes a JSON file over cfg.
// SECURITY: Checks and fixes file permissions on load.
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
	return fillDefaults(cfg)
}

// LoadFromPath loads configuration from a specific file. Unlike Load, a
// missing or broken file is an error.
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

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish runs the post-decode pipeline shared by every loader.
func finish(cfg *Config) error {
	cfg.ApplyEnvOverrides()
	if err := cfg.Migrate(); err != nil {
		return fmt.Errorf("config migration failed: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// fillDefaults fills in string fields a file left blank.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = defaults.Server.BaseURL
	}
	if cfg.Server.ChatPath == "" {
		cfg.Server.ChatPath = defaults.Server.ChatPath
	}
	if cfg.Server.UploadPath == "" {
		cfg.Server.UploadPath = defaults.Server.UploadPath
	}
	if cfg.Server.ChatsPath == "" {
		cfg.Server.ChatsPath = defaults.Server.ChatsPath
	}
	if cfg.Server.MemoriesPath == "" {
		cfg.Server.MemoriesPath = defaults.Server.MemoriesPath
	}
	if cfg.Protocol.Version == "" {
		cfg.Protocol.Version = defaults.Protocol.Version
	}
	if cfg.Chat.CancellationNotice == "" {
		cfg.Chat.CancellationNotice = defaults.Chat.CancellationNotice
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// SECURITY: The file may have existed with wider permissions.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# calliope configuration file")
	fmt.Fprintln(file, "# Generated by calliope - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Save writes cfg to path, as JSON when path ends in .json and as TOML
// otherwise.
func Save(cfg *Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
}

// LoadFile decodes path into cfg without environment overrides, picking the
// format from the extension the way Save does.
func LoadFile(cfg *Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return LoadJSON(cfg, path)
	}
	return LoadTOML(cfg, path)
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0o600); err != nil {
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

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Server
	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, ValidationError{"server.base_url", "must be an absolute URL"})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{"server.base_url", "scheme must be http or https"})
	}
	for field, p := range map[string]string{
		"server.chat_path":     c.Server.ChatPath,
		"server.upload_path":   c.Server.UploadPath,
		"server.chats_path":    c.Server.ChatsPath,
		"server.memories_path": c.Server.MemoriesPath,
	} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, ValidationError{field, "must start with /"})
		}
	}
	if c.Server.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{"server.requests_per_second", "must not be negative"})
	}
	if c.Server.ConnectTimeoutSecs < 0 || c.Server.ConnectTimeoutSecs > 3600 {
		errs = append(errs, ValidationError{"server.connect_timeout_secs", "must be between 0 and 3600"})
	}
	if c.Server.MaxRetries < 0 || c.Server.MaxRetries > 10 {
		errs = append(errs, ValidationError{"server.max_retries", "must be between 0 and 10"})
	}

	// Protocol
	if _, err := protocol.ParseVersion(c.Protocol.Version); err != nil {
		errs = append(errs, ValidationError{"protocol.version", "must be typed, legacy or auto"})
	}

	// Chat
	if c.Chat.RetainedMessages < 0 {
		errs = append(errs, ValidationError{"chat.retained_messages", "must not be negative"})
	}

	// Storage
	if c.Storage.MaxConversations < 0 {
		errs = append(errs, ValidationError{"storage.max_conversations", "must not be negative"})
	}

	// UI
	switch c.UI.Theme {
	case "auto", "dark", "light":
	default:
		errs = append(errs, ValidationError{"ui.theme", "must be auto, dark or light"})
	}
	if c.UI.WordWrap < 0 {
		errs = append(errs, ValidationError{"ui.word_wrap", "must not be negative"})
	}

	// Logging
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{"logging.level", "must be debug, info, warn or error"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults replaces zero numeric values with their defaults.
func (c *Config) SetDefaults() {
	defaults := Default()
	if err := fillDefaults(c); err != nil {
		return
	}
	if c.Server.RequestsPerSecond == 0 {
		c.Server.RequestsPerSecond = defaults.Server.RequestsPerSecond
	}
	if c.Server.ConnectTimeoutSecs == 0 {
		c.Server.ConnectTimeoutSecs = defaults.Server.ConnectTimeoutSecs
	}
	if c.Server.MaxRetries == 0 {
		c.Server.MaxRetries = defaults.Server.MaxRetries
	}
	if c.Chat.RetainedMessages == 0 {
		c.Chat.RetainedMessages = defaults.Chat.RetainedMessages
	}
	if c.Storage.MaxConversations == 0 {
		c.Storage.MaxConversations = defaults.Storage.MaxConversations
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.UI.Theme = strings.ToLower(c.UI.Theme)
}

// Migrate rewrites values from older config files.
func (c *Config) Migrate() error {
	// "v2" and "v1" were the dialect names before typed/legacy.
	switch strings.ToLower(c.Protocol.Version) {
	case "v2", "sse":
		c.Protocol.Version = string(protocol.VersionTyped)
	case "v1":
		c.Protocol.Version = string(protocol.VersionLegacy)
	}
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - CALLIOPE_SERVER: overrides server.base_url
//   - CALLIOPE_SESSION: overrides server.session_cookie
//   - CALLIOPE_TOKEN: overrides server.api_token
//   - CALLIOPE_PROTOCOL: overrides protocol.version
//   - CALLIOPE_RESEARCH: "1" or "true" turns research mode on
//   - CALLIOPE_SEARCH: "1" or "true" turns web search on
//   - CALLIOPE_THEME: overrides ui.theme
//   - CALLIOPE_LOG_LEVEL: overrides logging.level
//   - CALLIOPE_LOG_FILE: overrides logging.file
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CALLIOPE_SERVER"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("CALLIOPE_SESSION"); v != "" {
		c.Server.SessionCookie = v
	}
	if v := os.Getenv("CALLIOPE_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
	if v := os.Getenv("CALLIOPE_PROTOCOL"); v != "" {
		c.Protocol.Version = v
	}
	if v := os.Getenv("CALLIOPE_RESEARCH"); v != "" {
		c.Chat.ResearchMode = envBool(v)
	}
	if v := os.Getenv("CALLIOPE_SEARCH"); v != "" {
		c.Chat.UseSearch = envBool(v)
	}
	if v := os.Getenv("CALLIOPE_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("CALLIOPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CALLIOPE_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

func envBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "chat.use_search").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
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

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
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

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent. "base_url" becomes "BaseUrl", which matches BaseURL
// case-insensitively.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
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
			field.SetBool(lower == "1" || lower == "true" || lower == "yes" || lower == "on")
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
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"server.base_url",
		"server.chat_path",
		"server.upload_path",
		"server.chats_path",
		"server.memories_path",
		"server.session_cookie",
		"server.api_token",
		"server.requests_per_second",
		"server.connect_timeout_secs",
		"server.max_retries",
		"protocol.version",
		"chat.research_mode",
		"chat.use_search",
		"chat.retained_messages",
		"chat.cancellation_notice",
		"history.cache_path",
		"storage.transcript_dir",
		"storage.max_conversations",
		"ui.theme",
		"ui.markdown",
		"ui.word_wrap",
		"logging.level",
		"logging.file",
	}
}

// Clone creates a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a JSON rendering for debugging.
// SECURITY: Session cookie and API token are redacted.
func (c *Config) String() string {
	safe := c.Redacted()
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// Redacted returns a copy with secrets replaced.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.Server.SessionCookie != "" {
		safe.Server.SessionCookie = "[REDACTED]"
	}
	if safe.Server.APIToken != "" {
		safe.Server.APIToken = "[REDACTED]"
	}
	return safe
}

// IsSecretKey reports whether a dot-notation key holds a credential.
func IsSecretKey(key string) bool {
	switch strings.ToLower(key) {
	case "server.session_cookie", "server.api_token":
		return true
	}
	return false
}
