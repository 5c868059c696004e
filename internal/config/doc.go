// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for ocli.
//
// # Key Types
//
//   - Config: main configuration structure with all settings
//   - ValidationErrors: every problem found by Validate
//   - Watcher: reloads the config file when it changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (OCLI_MODEL, OCLI_OLLAMA_URL, OCLI_LOG_LEVEL)
//   - ~/.ocli/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//
//	w, err := config.Watch(ctx, path, 0, func(cfg *config.Config, err error) {
//	    // apply cfg.Model
//	})
//	defer w.Close()
package config
