// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import (
	"errors"
	"strings"
)

var (
	// ErrServerNotFound is returned for a server name not in the config.
	ErrServerNotFound = errors.New("MCP server not found")

	// ErrToolNotFound is returned for a tool no connected server offers.
	ErrToolNotFound = errors.New("MCP tool not found")

	// ErrTimeout marks a call that exceeded the pool's call timeout.
	ErrTimeout = errors.New("MCP call timeout")
)

// FormatError renders err with a hint for the common failure kinds.
func FormatError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		return "❌ " + msg + "\n💡 Use /mcp list to see available tools"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "timeout"):
		return "❌ " + msg + "\n💡 Check if MCP server is running"
	default:
		return "❌ " + msg
	}
}
