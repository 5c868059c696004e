// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ocli/internal/tools"
)

func newToolsCommand(opts *options) *cobra.Command {
	var showPrompt bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			reg := toolRegistry(cfg.Tools.BackupSuffix, cfg.Tools.Shell, cfg.Tools.MaxOutput)
			out := cmd.OutOrStdout()
			if showPrompt {
				fmt.Fprint(out, reg.Prompt())
				return nil
			}
			for _, t := range reg.All() {
				fmt.Fprintf(out, "%-16s %s\n", t.Name, t.Description)
				for _, p := range t.Parameters {
					req := "optional"
					if p.Required {
						req = "required"
					}
					fmt.Fprintf(out, "  %-14s %s (%s, %s)\n", p.Name, p.Description, p.Type, req)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPrompt, "prompt", false, "print the tool block sent to the model")
	cmd.AddCommand(newToolsRunCommand(opts))
	return cmd
}

func newToolsRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run <tool> [param=value ...]",
		Short: "Run a tool directly",
		Example: `  ocli tools run read_file path=go.mod
  ocli tools run execute_bash "command=ls -la"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			call, err := parseToolCall(args)
			if err != nil {
				return err
			}

			reg := toolRegistry(cfg.Tools.BackupSuffix, cfg.Tools.Shell, cfg.Tools.MaxOutput)
			exec := tools.NewExecutor(reg, tools.WithMaxOutput(cfg.Tools.MaxOutput))
			result := exec.Execute(cmd.Context(), call)
			if !result.Success {
				return errors.New(result.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Output)
			return nil
		},
	}
}

func toolRegistry(backupSuffix, shell string, maxOutput int) *tools.Registry {
	return tools.NewRegistryWithConfig(tools.Config{
		BackupSuffix: backupSuffix,
		Shell:        shell,
		MaxOutput:    maxOutput,
	})
}

// parseToolCall reads "<tool> key=value ..." arguments.
func parseToolCall(args []string) (tools.ToolCall, error) {
	call := tools.ToolCall{Name: args[0], Params: make(map[string]interface{})}
	for _, arg := range args[1:] {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return call, fmt.Errorf("invalid parameter %q, want key=value", arg)
		}
		call.Params[key] = value
	}
	return call, nil
}
