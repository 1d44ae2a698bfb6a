// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for forgechat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.forgechat/config.toml
//   - ~/.forgechat/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/provider"
	"github.com/jeranaias/forgechat/internal/security"
	"github.com/jeranaias/forgechat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete forgechat configuration.
type Config struct {
	// General settings
	Version string `toml:"version" json:"version"`
	// DefaultProvider is the provider used when none is named: "anthropic",
	// "google", or "local".
	DefaultProvider string `toml:"default_provider" json:"default_provider"`

	// Provider configuration
	Anthropic AnthropicConfig `toml:"anthropic" json:"anthropic"`
	Google    GoogleConfig    `toml:"google" json:"google"`
	Local     LocalConfig     `toml:"local" json:"local"`

	// Proxy configuration
	Proxy ProxyConfig `toml:"proxy" json:"proxy"`

	// State configuration
	State StateConfig `toml:"state" json:"state"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// AnthropicConfig contains Anthropic provider configuration.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. May be keyring-sealed (ENC: prefix).
	APIKey string `toml:"api_key" json:"api_key"`
	// Model is the default Anthropic model.
	Model string `toml:"model" json:"model"`
	// MaxTokens caps the response length; the Anthropic API requires it.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
}

// GoogleConfig contains Google (Gemini) provider configuration.
type GoogleConfig struct {
	// APIKey is the Google AI API key. May be keyring-sealed (ENC: prefix).
	APIKey string `toml:"api_key" json:"api_key"`
	// Model is the default Gemini model.
	Model string `toml:"model" json:"model"`
}

// LocalConfig contains local OpenAI-compatible endpoint configuration.
type LocalConfig struct {
	// BaseURL is the endpoint root, e.g. http://127.0.0.1:11434/v1
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey is optional; most local servers ignore it.
	APIKey string `toml:"api_key" json:"api_key"`
	// Model is the default local model.
	Model string `toml:"model" json:"model"`
}

// ProxyConfig contains provider-proxy configuration.
type ProxyConfig struct {
	// Origin is an external proxy URL. Empty means chat surfaces start an
	// in-process proxy on an ephemeral port.
	Origin string `toml:"origin" json:"origin"`
	// Port is the listen port for `forgechat serve`.
	Port int `toml:"port" json:"port"`
}

// StateConfig contains persistence configuration.
type StateConfig struct {
	// Dir overrides the state directory (default ~/.forgechat/state).
	Dir string `toml:"dir" json:"dir"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders assistant prose through glamour when true.
	Markdown bool `toml:"markdown" json:"markdown"`
	// ArtifactPanel opens the artifact side panel on startup.
	ArtifactPanel bool `toml:"artifact_panel" json:"artifact_panel"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// DefaultMaxTokens is the response cap sent to Anthropic when the config
// does not name one.
const DefaultMaxTokens = 4096

// defaultProxyPort matches the `forgechat serve` default bind.
const defaultProxyPort = 8787

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:         "1.0.0",
		DefaultProvider: "anthropic",

		Anthropic: AnthropicConfig{
			APIKey:    "",
			Model:     model.DefaultModelFor("anthropic"),
			MaxTokens: DefaultMaxTokens,
		},

		Google: GoogleConfig{
			APIKey: "",
			Model:  model.DefaultModelFor("google"),
		},

		Local: LocalConfig{
			BaseURL: "http://127.0.0.1:11434/v1",
			APIKey:  "",
			Model:   model.DefaultModelFor("local"),
		},

		Proxy: ProxyConfig{
			Origin: "",
			Port:   defaultProxyPort,
		},

		State: StateConfig{
			Dir: "",
		},

		UI: UIConfig{
			Theme:         "dark",
			Markdown:      true,
			ArtifactPanel: false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the forgechat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".forgechat"), nil
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

// EnsureConfigDir ensures the config directory exists.
// The directory holds key material, so it must be owner-only.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// StateDir returns the state directory, honouring the configured override.
func (c *Config) StateDir() (string, error) {
	if c.State.Dir != "" {
		return c.State.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
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

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
				cfg = Default() // discard any partially decoded state
			} else {
				return finishLoad(cfg)
			}
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
				cfg = Default()
			} else {
				return finishLoad(cfg)
			}
		}
	}

	cfg, err = finishLoad(cfg)
	if err != nil {
		return nil, err
	}
	// Defaults with the load error kept for informational purposes.
	return cfg, loadErr
}

// finishLoad applies env overrides, fills gaps, and validates.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
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

	return finishLoad(cfg)
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.DefaultProvider == "" {
		c.DefaultProvider = defaults.DefaultProvider
	}

	if c.Anthropic.Model == "" {
		c.Anthropic.Model = defaults.Anthropic.Model
	}
	if c.Anthropic.MaxTokens == 0 {
		c.Anthropic.MaxTokens = defaults.Anthropic.MaxTokens
	}

	if c.Google.Model == "" {
		c.Google.Model = defaults.Google.Model
	}

	if c.Local.BaseURL == "" {
		c.Local.BaseURL = defaults.Local.BaseURL
	}
	if c.Local.Model == "" {
		c.Local.Model = defaults.Local.Model
	}

	if c.Proxy.Port == 0 {
		c.Proxy.Port = defaults.Proxy.Port
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
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

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# forgechat configuration file")
	fmt.Fprintln(&buf, "# Generated by forgechat - edit with care")
	fmt.Fprintln(&buf, "#")
	fmt.Fprintln(&buf, "# Documentation: https://github.com/jeranaias/forgechat")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFilePrivate(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFilePrivate(path, data, 0600); err != nil {
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
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	validProviders := map[string]bool{"anthropic": true, "google": true, "local": true}
	if !validProviders[strings.ToLower(c.DefaultProvider)] {
		errs = append(errs, ValidationError{
			Field:   "default_provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: anthropic, google, local", c.DefaultProvider),
		})
	}

	if c.Anthropic.MaxTokens < 1 || c.Anthropic.MaxTokens > 200000 {
		errs = append(errs, ValidationError{
			Field:   "anthropic.max_tokens",
			Message: fmt.Sprintf("must be 1-200000, got %d", c.Anthropic.MaxTokens),
		})
	}

	if c.Local.BaseURL != "" {
		if err := validateHTTPURL(c.Local.BaseURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "local.base_url",
				Message: err.Error(),
			})
		}
	}

	if c.Proxy.Origin != "" {
		if err := validateHTTPURL(c.Proxy.Origin); err != nil {
			errs = append(errs, ValidationError{
				Field:   "proxy.origin",
				Message: err.Error(),
			})
		}
	}

	if c.Proxy.Port < 1 || c.Proxy.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "proxy.port",
			Message: fmt.Sprintf("must be 1-65535, got %d", c.Proxy.Port),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateHTTPURL rejects values that are not absolute http(s) URLs.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL '%s': scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL '%s': missing host", raw)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported variables:
//   - FORGECHAT_PROVIDER: overrides default_provider
//   - FORGECHAT_MODEL: overrides the default provider's model
//   - FORGECHAT_ANTHROPIC_API_KEY: overrides anthropic.api_key
//   - FORGECHAT_GOOGLE_API_KEY: overrides google.api_key
//   - FORGECHAT_LOCAL_API_KEY: overrides local.api_key
//   - FORGECHAT_LOCAL_URL: overrides local.base_url
//   - FORGECHAT_PROXY_ORIGIN: overrides proxy.origin
//   - FORGECHAT_PORT: overrides proxy.port
//   - FORGECHAT_STATE_DIR: overrides state.dir
//   - FORGECHAT_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	// Provider first: FORGECHAT_MODEL targets the (possibly overridden)
	// default provider.
	if p := os.Getenv("FORGECHAT_PROVIDER"); p != "" {
		c.DefaultProvider = p
	}

	if m := os.Getenv("FORGECHAT_MODEL"); m != "" {
		switch strings.ToLower(c.DefaultProvider) {
		case "google":
			c.Google.Model = m
		case "local":
			c.Local.Model = m
		default:
			c.Anthropic.Model = m
		}
	}

	if key := os.Getenv("FORGECHAT_ANTHROPIC_API_KEY"); key != "" {
		c.Anthropic.APIKey = key
	}
	if key := os.Getenv("FORGECHAT_GOOGLE_API_KEY"); key != "" {
		c.Google.APIKey = key
	}
	if key := os.Getenv("FORGECHAT_LOCAL_API_KEY"); key != "" {
		c.Local.APIKey = key
	}

	if u := os.Getenv("FORGECHAT_LOCAL_URL"); u != "" {
		c.Local.BaseURL = u
	}

	if origin := os.Getenv("FORGECHAT_PROXY_ORIGIN"); origin != "" {
		c.Proxy.Origin = origin
	}

	if port := os.Getenv("FORGECHAT_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Proxy.Port = n
		}
	}

	if dir := os.Getenv("FORGECHAT_STATE_DIR"); dir != "" {
		c.State.Dir = dir
	}

	if theme := os.Getenv("FORGECHAT_THEME"); theme != "" {
		c.UI.Theme = theme
	}
}

// =============================================================================
// PROVIDER HELPERS
// =============================================================================

// ProviderKey returns the plaintext API key for a provider. Keyring-sealed
// values (ENC: prefix) are decrypted; plaintext values, including env
// overrides, pass through. A nil keyring is acceptable for plaintext keys.
func (c *Config) ProviderKey(p provider.Provider, kr *security.Keyring) (string, error) {
	var raw string
	switch p {
	case provider.Anthropic:
		raw = c.Anthropic.APIKey
	case provider.Google:
		raw = c.Google.APIKey
	case provider.Local:
		raw = c.Local.APIKey
	default:
		return "", fmt.Errorf("unknown provider: %q", p)
	}
	return kr.Decrypt(raw)
}

// SetProviderKey stores a (typically keyring-sealed) API key for a provider.
func (c *Config) SetProviderKey(p provider.Provider, value string) error {
	switch p {
	case provider.Anthropic:
		c.Anthropic.APIKey = value
	case provider.Google:
		c.Google.APIKey = value
	case provider.Local:
		c.Local.APIKey = value
	default:
		return fmt.Errorf("unknown provider: %q", p)
	}
	return nil
}

// ModelFor returns the configured model for a provider.
func (c *Config) ModelFor(p provider.Provider) string {
	switch p {
	case provider.Anthropic:
		return c.Anthropic.Model
	case provider.Google:
		return c.Google.Model
	case provider.Local:
		return c.Local.Model
	default:
		return ""
	}
}

// =============================================================================
// COPY / DEBUG OUTPUT
// =============================================================================

// Clone creates a copy of the configuration. Config holds no reference
// types, so a value copy is a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts API keys so the output is safe to log or display.
func (c *Config) String() string {
	safe := c.Clone()

	if safe.Anthropic.APIKey != "" {
		safe.Anthropic.APIKey = "[REDACTED]"
	}
	if safe.Google.APIKey != "" {
		safe.Google.APIKey = "[REDACTED]"
	}
	if safe.Local.APIKey != "" {
		safe.Local.APIKey = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(safe, "", "  ")
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
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
