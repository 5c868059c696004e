// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jeranaias/ocli/internal/util"
)

// =============================================================================
// READ
// =============================================================================

// ReadExecutor implements read_file.
type ReadExecutor struct{}

// Execute reads the whole file at "path" as text.
func (e *ReadExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	path, ok := stringParam(params, "path")
	if !ok {
		return failure("Missing 'path' parameter"), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return failure("Failed to read %s: %v", path, err), nil
	}
	if !utf8.Valid(data) {
		return failure("Failed to read %s: file is not valid UTF-8 text", path), nil
	}

	result := success(string(data))
	result.BytesRead = int64(len(data))
	return result, nil
}

// =============================================================================
// WRITE
// =============================================================================

// WriteExecutor implements write_file. An existing target is copied to
// path+BackupSuffix before it is overwritten; if that copy fails nothing is
// written.
type WriteExecutor struct {
	BackupSuffix string
}

// Execute writes "content" to "path".
func (e *WriteExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	path, ok := stringParam(params, "path")
	if !ok {
		return failure("Missing 'path' parameter"), nil
	}
	content, ok := stringParam(params, "content")
	if !ok {
		return failure("Missing 'content' parameter"), nil
	}

	suffix := e.BackupSuffix
	if suffix == "" {
		suffix = DefaultConfig().BackupSuffix
	}

	perm := os.FileMode(0644)
	var backup string
	if info, err := os.Stat(path); err == nil {
		backup = path + suffix
		if err := util.CopyFile(path, backup); err != nil {
			return failure("Failed to create backup: %v", err), nil
		}
		perm = info.Mode().Perm()
	}

	if err := util.WriteFileAtomic(path, []byte(content), perm); err != nil {
		return failure("Failed to write %s: %v", path, err), nil
	}

	result := success("Wrote to " + path)
	result.BytesWritten = int64(len(content))
	result.BackupPath = backup
	return result, nil
}

// =============================================================================
// LIST
// =============================================================================

// ListExecutor implements list_directory.
type ListExecutor struct{}

// Execute lists the immediate entries of "path", one name per line.
func (e *ListExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	path, ok := stringParam(params, "path")
	if !ok {
		return failure("Missing 'path' parameter"), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return failure("Failed to list %s: %v", path, err), nil
	}

	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString(entry.Name())
		sb.WriteByte('\n')
	}
	return success(sb.String()), nil
}
