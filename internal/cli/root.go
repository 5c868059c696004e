// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/ocli/internal/config"
	"github.com/jeranaias/ocli/internal/mcp"
	"github.com/jeranaias/ocli/internal/ollama"
)

// BuildInfo is set at build time.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// options are the persistent flags.
type options struct {
	configPath string
	model      string
	session    string
	verbose    bool
	noCache    bool
}

// Execute runs the command line and returns the process exit code.
func Execute(info BuildInfo) int {
	root := NewRootCommand(info)
	if err := root.ExecuteContext(context.Background()); err != nil {
		NewDisplay(os.Stdout, os.Stderr, ColorsEnabled()).Error(err)
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree. Without a subcommand it starts
// the chat REPL.
func NewRootCommand(info BuildInfo) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ocli",
		Short: "Tool-calling coding assistant for a local Ollama server",
		Long: `ocli chats with a model served by Ollama and lets it read, write and
search files and run shell commands through inline tool calls.

Examples:
  ocli                                  start an interactive chat
  ocli -m qwen2.5-coder:7b -s work      chat with a model in session "work"
  ocli ask "summarize main.go"          one turn, then exit
  ocli tools run list_directory path=.  run a tool directly
  ocli config set model llama3.1        change the default model`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.ocli/config.toml)")
	flags.StringVarP(&opts.model, "model", "m", "", "model to use (overrides config)")
	flags.StringVarP(&opts.session, "session", "s", "", "session name (default \""+DefaultSessionName+"\")")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "write debug logs to stderr")
	flags.BoolVar(&opts.noCache, "no-cache", false, "disable the response cache")

	root.AddCommand(
		newChatCommand(opts),
		newAskCommand(opts),
		newToolsCommand(opts),
		newSessionsCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(info),
	)
	return root
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// configFile returns the config file in use.
func (o *options) configFile() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.ConfigPath()
}

// loadConfig loads the config file and applies flag overrides.
func (o *options) loadConfig() (*config.Config, string, error) {
	path, err := o.configFile()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, path, err
	}
	o.applyFlags(cfg)
	config.SetGlobal(cfg)
	return cfg, path, nil
}

func (o *options) applyFlags(cfg *config.Config) {
	if o.model != "" {
		cfg.Model = o.model
	}
	if o.noCache {
		cfg.Cache.Enabled = false
	}
}

// backend holds what every session-running command needs.
type backend struct {
	cfg     *config.Config
	cfgPath string
	logger  *zap.Logger
	client  *ollama.Client
}

func newBackend(opts *options) (*backend, error) {
	cfg, path, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, opts.verbose)
	if err != nil {
		return nil, err
	}
	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:        cfg.Ollama.URL,
		ConnectTimeout: cfg.Ollama.ConnectTimeout,
		DefaultModel:   cfg.Model,
	})
	return &backend{cfg: cfg, cfgPath: path, logger: logger, client: client}, nil
}

// openMCP loads the MCP server list. Problems are logged; a missing or
// empty list yields nil.
func (rt *backend) openMCP() *mcp.Pool {
	mcfg, warnings, err := mcp.LoadConfig(rt.cfg.MCP.ConfigFile)
	for _, w := range warnings {
		rt.logger.Warn("MCP config", zap.String("warning", w))
	}
	if err != nil {
		rt.logger.Warn("MCP config not loaded", zap.String("path", rt.cfg.MCP.ConfigFile), zap.Error(err))
		return nil
	}
	if len(mcfg.Servers) == 0 {
		return nil
	}
	return mcp.NewPool(mcfg,
		mcp.WithCallTimeout(rt.cfg.MCP.CallTimeout),
		mcp.WithLogger(rt.logger.Named("mcp")))
}

func (rt *backend) close() {
	_ = rt.logger.Sync()
}

func (rt *backend) checkServer(ctx context.Context) error {
	if err := rt.client.CheckRunning(ctx); err != nil {
		return fmt.Errorf("cannot reach Ollama at %s: %w", rt.cfg.Ollama.URL, err)
	}
	return nil
}
