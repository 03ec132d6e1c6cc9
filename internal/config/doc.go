// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for calliope.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure
//   - ServerConfig: Chat server URL, endpoint paths and credentials
//   - ChatConfig: Per-turn defaults (research mode, web search)
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (CALLIOPE_*)
//   - ~/.calliope/config.toml
//   - ~/.calliope/config.json
//   - Built-in defaults
//
// CALLIOPE_HOME moves the whole directory.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := transport.NewClient(cfg.Server.BaseURL)
package config
