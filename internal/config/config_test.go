// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets the override variables for the duration of a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OCLI_MODEL", "OCLI_OLLAMA_URL", "OCLI_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "deepseek-coder:6.7b", cfg.Model)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.URL)
	assert.Equal(t, 5*time.Second, cfg.Ollama.ConnectTimeout)
	assert.Equal(t, 20, cfg.Stream.BatchSize)
	assert.Equal(t, 512, cfg.Stream.BufferSize)
	assert.Equal(t, 5, cfg.Stream.PreviewLines)
	assert.False(t, cfg.Stream.StrictToolCalls)
	assert.Equal(t, ".backup", cfg.Tools.BackupSuffix)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 100, cfg.Cache.Capacity)
	assert.Equal(t, 8000, cfg.Context.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.MCP.CallTimeout)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join(".ocli", "sessions.db"), cfg.SessionDBPath())
}

func TestConfig_LoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestConfig_LoadPartialFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
model = "llama3"

[stream]
strict_tool_calls = true
batch_size = 10

[mcp]
call_timeout = "45s"
`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "llama3", cfg.Model)
	assert.True(t, cfg.Stream.StrictToolCalls)
	assert.Equal(t, 10, cfg.Stream.BatchSize)
	assert.Equal(t, 512, cfg.Stream.BufferSize)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 45*time.Second, cfg.MCP.CallTimeout)
}

func TestConfig_LoadRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[stream]\nbatchsize = 3\n")
	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.batchsize")
}

func TestConfig_LoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[cache]\ncapacity = -1\n")
	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "cache.capacity", verrs[0].Field)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("OCLI_MODEL", "qwen2.5-coder")
	t.Setenv("OCLI_OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("OCLI_LOG_LEVEL", "debug")

	path := writeConfig(t, `model = "llama3"`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "qwen2.5-coder", cfg.Model)
	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"empty model", func(c *Config) { c.Model = " " }, "model"},
		{"ftp url", func(c *Config) { c.Ollama.URL = "ftp://localhost" }, "ollama.url"},
		{"no host", func(c *Config) { c.Ollama.URL = "http://" }, "ollama.url"},
		{"zero batch", func(c *Config) { c.Stream.BatchSize = 0 }, "stream.batch_size"},
		{"zero buffer", func(c *Config) { c.Stream.BufferSize = 0 }, "stream.buffer_size"},
		{"zero capacity", func(c *Config) { c.Cache.Capacity = 0 }, "cache.capacity"},
		{"zero max tokens", func(c *Config) { c.Context.MaxTokens = 0 }, "context.max_tokens"},
		{"zero call timeout", func(c *Config) { c.MCP.CallTimeout = 0 }, "mcp.call_timeout"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"empty shell", func(c *Config) { c.Tools.Shell = "" }, "tools.shell"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestConfig_ValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Model = ""
	cfg.Stream.BatchSize = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, "model: must not be empty; stream.batch_size: must be positive, got -1", err.Error())
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Model = "mistral"
	cfg.Ollama.ConnectTimeout = 9 * time.Second
	cfg.Cache.Enabled = false

	require.NoError(t, SaveTOML(cfg, path))
	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# ocli configuration file")
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("stream.batch_size")
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	require.NoError(t, cfg.Set("stream.batch_size", "7"))
	assert.Equal(t, 7, cfg.Stream.BatchSize)

	require.NoError(t, cfg.Set("mcp.call_timeout", "1m"))
	assert.Equal(t, time.Minute, cfg.MCP.CallTimeout)

	require.NoError(t, cfg.Set("stream.strict_tool_calls", "true"))
	assert.True(t, cfg.Stream.StrictToolCalls)

	require.NoError(t, cfg.Set("model", "phi3"))
	assert.Equal(t, "phi3", cfg.Model)

	require.NoError(t, cfg.Set("cache.capacity", 3))
	assert.Equal(t, 3, cfg.Cache.Capacity)

	assert.Error(t, cfg.Set("stream.batch_size", "many"))
	assert.Error(t, cfg.Set("model", 5))
	assert.Error(t, cfg.Set("stream", "x"))
	_, err = cfg.Get("nope.nothing")
	assert.Error(t, err)
	_, err = cfg.Get("model.inner")
	assert.Error(t, err)
}

func TestConfig_Keys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "model")
	assert.Contains(t, keys, "stream.strict_tool_calls")
	assert.Contains(t, keys, "mcp.call_timeout")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Stream.BatchSize = 99
	assert.Equal(t, 20, cfg.Stream.BatchSize)
}

func TestConfig_LogPath(t *testing.T) {
	cfg := Default()
	cfg.Logging.File = "/tmp/x.log"
	p, err := cfg.LogPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.log", p)
}

// =============================================================================
// GLOBAL
// =============================================================================

func TestConfig_ConcurrentAccess(t *testing.T) {
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

func TestConfig_SetGlobalOverwrites(t *testing.T) {
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	_ = Global()
	custom := Default()
	custom.Model = "custom-model"
	SetGlobal(custom)

	assert.Equal(t, "custom-model", Global().Model)
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatchReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `model = "first"`)

	got := make(chan *Config, 4)
	w, err := Watch(context.Background(), path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			got <- cfg
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`model = "second"`), 0644))

	select {
	case cfg := <-got:
		assert.Equal(t, "second", cfg.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatchStopsOnContextCancel(t *testing.T) {
	path := writeConfig(t, `model = "x"`)
	ctx, cancel := context.WithCancel(context.Background())

	w, err := Watch(ctx, path, 0, func(*Config, error) {})
	require.NoError(t, err)
	cancel()

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.NoError(t, w.Close())
}
