// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ocli/internal/session"
)

func newSessionsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "List saved sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(store session.Store) error {
				return listSessions(cmd, store)
			})
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <name>",
			Short: "Print a session's messages",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(opts, func(store session.Store) error {
					return showSession(cmd, store, args[0])
				})
			},
		},
		&cobra.Command{
			Use:     "delete <name>",
			Aliases: []string{"rm"},
			Short:   "Delete a saved session",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(opts, func(store session.Store) error {
					if err := store.Delete(cmd.Context(), args[0]); err != nil {
						return fmt.Errorf("delete %s: %w", args[0], err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Deleted session %s\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

// withStore opens the configured session store for fn.
func withStore(opts *options, fn func(session.Store) error) error {
	cfg, _, err := opts.loadConfig()
	if err != nil {
		return err
	}
	store, err := session.OpenSQLiteStore(cfg.SessionDBPath())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func listSessions(cmd *cobra.Command, store session.Store) error {
	metas, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(metas) == 0 {
		fmt.Fprintln(out, "📚 No saved sessions")
		return nil
	}
	fmt.Fprintf(out, "%-20s %-24s %5s  %-16s  %s\n", "NAME", "MODEL", "MSGS", "UPDATED", "PREVIEW")
	for _, m := range metas {
		fmt.Fprintf(out, "%-20s %-24s %5d  %-16s  %s\n",
			m.Name, m.Model, m.MessageCount, m.UpdatedAt.Format("2006-01-02 15:04"), m.Preview)
	}
	return nil
}

func showSession(cmd *cobra.Command, store session.Store, name string) error {
	metas, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	found := false
	for _, m := range metas {
		if m.Name == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", session.ErrNotFound, name)
	}

	conv, err := store.Load(cmd.Context(), name, 0)
	if err != nil {
		return err
	}
	printConversation(cmd.OutOrStdout(), conv)
	return nil
}

func printConversation(out io.Writer, conv *session.Conversation) {
	fmt.Fprintf(out, "Session %s (%s), model %s\n", conv.Name, conv.ID, conv.Model)
	for _, m := range conv.Messages {
		label := "You"
		if m.Role == session.RoleAssistant {
			label = "AI"
		}
		fmt.Fprintf(out, "\n[%s] %s:\n%s\n", m.Timestamp.Format("15:04:05"), label, m.Content)
	}
	if summary := conv.Summary(); summary != "" {
		fmt.Fprintln(out)
		fmt.Fprint(out, summary)
	}
}
