// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/ocli/internal/config"
	"github.com/jeranaias/ocli/internal/session"
)

func newChatCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session (default)",
		Long: `Start an interactive chat session.

Type a message to send it to the model, or a slash command such as /help,
/read <file> or /model <name>. exit, quit or Ctrl+D saves the session and
quits; Ctrl+C cancels the answer being streamed.

The config file is watched while chatting: changing the model there
switches the model for the next turn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}
}

func runChat(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()

	rt, err := newBackend(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.checkServer(ctx); err != nil {
		return err
	}

	store, err := session.OpenSQLiteStore(rt.cfg.SessionDBPath())
	if err != nil {
		return err
	}

	app, err := NewApp(ctx, AppOptions{
		Config:    rt.cfg,
		Generator: rt.client,
		Lister:    rt.client,
		Store:     store,
		MCP:       rt.openMCP(),
		Session:   opts.session,
		Out:       cmd.OutOrStdout(),
		ErrOut:    cmd.ErrOrStderr(),
		Styled:    ColorsEnabled(),
		Logger:    rt.logger,
	})
	if err != nil {
		store.Close()
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			rt.logger.Warn("shutdown", zap.Error(err))
		}
	}()

	if w := watchConfig(ctx, rt, opts, app); w != nil {
		defer w.Close()
	}

	var in LineReader
	if IsTTY() {
		in = newLinerReader(historyPath(), app.Completer().Line)
	} else {
		in = newScanReader(cmd.InOrStdin(), nil)
	}
	defer in.Close()

	return app.RunREPL(ctx, in)
}

// watchConfig reloads the config file into app while it runs. Flags keep
// precedence over the file. Returns nil when the file cannot be watched.
func watchConfig(ctx context.Context, rt *backend, opts *options, app *App) *config.Watcher {
	if err := os.MkdirAll(filepath.Dir(rt.cfgPath), 0o700); err != nil {
		rt.logger.Warn("config watch disabled", zap.Error(err))
		return nil
	}
	w, err := config.Watch(ctx, rt.cfgPath, config.DefaultWatchDebounce, func(cfg *config.Config, err error) {
		if err != nil {
			rt.logger.Warn("config reload failed", zap.String("path", rt.cfgPath), zap.Error(err))
			return
		}
		opts.applyFlags(cfg)
		config.SetGlobal(cfg)
		app.QueueReload(cfg)
	})
	if err != nil {
		rt.logger.Warn("config watch disabled", zap.Error(err))
		return nil
	}
	return w
}

// historyPath is the REPL history file.
func historyPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "history")
}
