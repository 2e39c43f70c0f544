// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for bookshelf.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: backend URL, session carrier, timeouts and rate limit
//   - UploadConfig: client-side upload limits
//   - UIConfig: theme, typewriter reveal speed, table paging
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (BOOKSHELF_*), including values from .env files
//   - $BOOKSHELF_HOME/config.toml
//   - $BOOKSHELF_HOME/config.json
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
// Follow edits while the TUI runs:
//
//	path, _ := config.ConfigPathTOML()
//	_ = config.Watch(ctx, path, 0, func(cfg *config.Config, err error) { ... })
package config
