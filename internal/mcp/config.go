// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeranaias/ocli/internal/util"
)

// ServerConfig describes one stdio MCP server.
type ServerConfig struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Validate checks that the server can be started.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return errors.New("server name is required")
	}
	if c.Command == "" {
		return fmt.Errorf("server %s: command is required", c.Name)
	}
	return nil
}

// Config is the contents of the servers file.
type Config struct {
	Servers []ServerConfig `json:"servers"`
}

// Find returns the named server.
func (c *Config) Find(name string) (ServerConfig, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ServerConfig{}, false
}

// LoadConfig reads the servers file at path. A missing file is created with
// an empty server list. Invalid server entries are skipped and reported in
// the returned warnings.
func LoadConfig(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := &Config{Servers: []ServerConfig{}}
		if err := writeDefault(path, cfg); err != nil {
			return nil, nil, err
		}
		return cfg, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw struct {
		Servers []json.RawMessage `json:"servers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg := &Config{Servers: make([]ServerConfig, 0, len(raw.Servers))}
	var warnings []string
	for i, entry := range raw.Servers {
		var s ServerConfig
		if err := json.Unmarshal(entry, &s); err != nil {
			warnings = append(warnings, fmt.Sprintf("server %d: %v", i, err))
			continue
		}
		if err := s.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("server %d: %v", i, err))
			continue
		}
		cfg.Servers = append(cfg.Servers, s)
	}
	return cfg, warnings, nil
}

func writeDefault(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	return util.WriteFileAtomic(path, data, 0644)
}
