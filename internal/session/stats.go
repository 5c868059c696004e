// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"

	"github.com/jeranaias/ocli/internal/tools"
)

// Stats counts activity in the current process. It is not persisted.
type Stats struct {
	MessagesSent     int
	FilesRead        int
	FilesWritten     int
	CommandsExecuted int
	CacheHits        int
}

// RecordTool counts a successful tool run by name. Failed runs and
// unrelated tools are ignored.
func (s *Stats) RecordTool(name string, success bool) {
	if !success {
		return
	}
	switch name {
	case tools.ReadFile:
		s.FilesRead++
	case tools.WriteFile:
		s.FilesWritten++
	case tools.ExecuteBash:
		s.CommandsExecuted++
	}
}

// Display renders the counters.
func (s Stats) Display() string {
	return fmt.Sprintf("📊 Session Statistics\n\nMessages: %d\nFiles Read: %d\nFiles Written: %d\nCommands: %d\nCache Hits: %d",
		s.MessagesSent, s.FilesRead, s.FilesWritten, s.CommandsExecuted, s.CacheHits)
}
