// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// BashExecutor implements execute_bash. A non-zero exit status is still a
// successful execution; only a failure to run the shell is an error.
type BashExecutor struct {
	// Shell is invoked as `<Shell> -c <command>` (default "sh")
	Shell string

	// WorkDir is the working directory for commands (default: inherited)
	WorkDir string
}

// Execute runs "command" and reports its exit code, stdout and stderr.
func (e *BashExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	command, ok := stringParam(params, "command")
	if !ok {
		return failure("Missing 'command' parameter"), nil
	}

	shell := e.Shell
	if shell == "" {
		shell = DefaultConfig().Shell
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	if e.WorkDir != "" {
		cmd.Dir = e.WorkDir
	}
	configureProcessGroup(cmd)
	// Children that inherit the pipes must not keep Wait blocked forever.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return failure("Failed to execute: %v", ctxErr), nil
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return failure("Failed to execute: %v", err), nil
	}

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	out := fmt.Sprintf("Exit: %d\nStdout: %s\nStderr: %s",
		code,
		bytes.ToValidUTF8(stdout.Bytes(), []byte("�")),
		bytes.ToValidUTF8(stderr.Bytes(), []byte("�")))
	return success(out), nil
}
