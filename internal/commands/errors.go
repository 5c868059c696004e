// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrExit is returned by /exit. The REPL saves the session and stops.
var ErrExit = errors.New("exit requested")

// Hint returns the suggestion attached to err, if any.
func Hint(err error) string {
	var h interface{ Hint() string }
	if errors.As(err, &h) {
		return h.Hint()
	}
	return ""
}

// =============================================================================
// UNKNOWN COMMAND
// =============================================================================

// UnknownCommandError is returned for a name that is not registered.
type UnknownCommandError struct {
	Name       string
	Suggestion string
}

func (e *UnknownCommandError) Error() string {
	return "Unknown command: " + e.Name
}

// Hint suggests the closest command, or /help.
func (e *UnknownCommandError) Hint() string {
	if e.Suggestion != "" {
		return "Did you mean " + e.Suggestion + "?"
	}
	return "Type /help for available commands"
}

// =============================================================================
// FILE ERROR
// =============================================================================

// FileError reports a file a command could not read.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	if errors.Is(e.Err, os.ErrNotExist) {
		return "File not found: " + e.Path
	}
	return fmt.Sprintf("Failed to read %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Hint points at the parent directory when it exists.
func (e *FileError) Hint() string {
	if !errors.Is(e.Err, os.ErrNotExist) {
		return ""
	}
	dir := filepath.Dir(e.Path)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return "Directory exists. Did you mean a file in " + dir + "?"
	}
	return "Check the path and try again"
}

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// ValidationError represents an argument validation error.
type ValidationError struct {
	Command  string
	Arg      string
	Message  string
	Got      string
	Expected string
	Usage    string
}

func (e *ValidationError) Error() string {
	msg := e.Command + ": " + e.Message
	if e.Arg != "" {
		msg += " for argument '" + e.Arg + "'"
	}
	if e.Got != "" {
		msg += " (got: " + e.Got + ")"
	}
	if e.Expected != "" {
		msg += " - expected: " + e.Expected
	}
	return msg
}

// Hint shows the usage line.
func (e *ValidationError) Hint() string {
	if e.Usage == "" {
		return ""
	}
	return "Usage: " + e.Usage
}
