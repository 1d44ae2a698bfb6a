// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for forgechat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - AnthropicConfig / GoogleConfig / LocalConfig: per-provider settings
//   - ProxyConfig: proxy origin and serve port
//   - UIConfig: theme and rendering behavior
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (FORGECHAT_*)
//   - ~/.forgechat/config.toml
//   - ~/.forgechat/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	model := cfg.Anthropic.Model
//	port := cfg.Proxy.Port
package config
