// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SearchExecutor implements search_files: a recursive find-by-name under
// "directory" (default "."). A pattern without a slash is matched against
// entry names; a pattern with a slash is matched against the path relative
// to the search root, so "**" works as in other glob tools.
type SearchExecutor struct{}

// Execute prints every matching path, one per line.
func (e *SearchExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	pattern, ok := stringParam(params, "pattern")
	if !ok {
		return failure("Missing 'pattern' parameter"), nil
	}
	dir, ok := stringParam(params, "directory")
	if !ok || dir == "" {
		dir = "."
	}

	if !doublestar.ValidatePattern(pattern) {
		return failure("Failed to search: invalid pattern %q", pattern), nil
	}
	matchPath := strings.Contains(pattern, "/")

	var sb strings.Builder
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			// Unreadable subtrees are skipped, as find does.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		subject := d.Name()
		if matchPath {
			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				return nil
			}
			subject = filepath.ToSlash(rel)
		}

		if matched, _ := doublestar.Match(pattern, subject); matched {
			sb.WriteString(path)
			sb.WriteByte('\n')
		}
		return nil
	})
	if err != nil {
		return failure("Failed to search: %v", err), nil
	}

	return success(sb.String()), nil
}
