// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ocli/internal/session"
)

func newAskCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Stream a single answer and exit",
		Long: `Send one message, stream the answer (running any tool calls) and exit.

The prompt is read from standard input when no argument is given or the
argument is "-". With --session the turn is added to that saved session;
otherwise nothing is persisted. The exit status is non-zero when the turn
fails.`,
		Example: `  ocli ask "list the go files here"
  git diff | ocli ask -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := askPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return runAsk(cmd, opts, prompt)
		},
	}
}

// askPrompt joins the arguments, or reads stdin for none or "-".
func askPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("empty prompt")
	}
	return prompt, nil
}

func runAsk(cmd *cobra.Command, opts *options, prompt string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rt, err := newBackend(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	appOpts := AppOptions{
		Config:    rt.cfg,
		Generator: rt.client,
		Lister:    rt.client,
		Session:   opts.session,
		Out:       cmd.OutOrStdout(),
		ErrOut:    cmd.ErrOrStderr(),
		Styled:    ColorsEnabled(),
		Logger:    rt.logger,
	}
	if opts.session != "" {
		store, err := session.OpenSQLiteStore(rt.cfg.SessionDBPath())
		if err != nil {
			return err
		}
		appOpts.Store = store
	}

	app, err := NewApp(ctx, appOpts)
	if err != nil {
		if appOpts.Store != nil {
			appOpts.Store.Close()
		}
		return err
	}
	defer app.Close()

	if _, err := app.Turn(ctx, prompt); err != nil {
		return err
	}
	return app.Save(ctx)
}
