// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"github.com/jeranaias/ocli/internal/toolcall"
	"github.com/jeranaias/ocli/internal/tools"
	"github.com/jeranaias/ocli/internal/util"
)

// Formatter renders the non-model parts of a turn. Returned strings are
// written through the Pump's output buffer as-is.
type Formatter interface {
	// AssistantPrefix starts model output, and resumes it after tools ran
	AssistantPrefix() string

	// ToolStart announces a call about to execute
	ToolStart(call tools.ToolCall) string

	// ToolResult shows a finished call; preview caps the lines of output
	ToolResult(run ToolRun, preview int) string

	// Malformed shows a span that failed to decode (strict mode only)
	Malformed(err *toolcall.ParseError) string
}

// PlainFormatter renders without color.
type PlainFormatter struct{}

func (PlainFormatter) AssistantPrefix() string {
	return "AI: "
}

func (PlainFormatter) ToolStart(call tools.ToolCall) string {
	return "🔧 Executing: " + call.Name + "\n"
}

func (PlainFormatter) ToolResult(run ToolRun, preview int) string {
	if run.Result.Success {
		return "✅ Result: " + util.FirstLines(run.Result.Output, preview) + "\n"
	}
	return "❌ Error: " + run.Result.Error + "\n"
}

func (PlainFormatter) Malformed(err *toolcall.ParseError) string {
	return "❌ Error: Invalid tool call: " + err.Err.Error() + "\n"
}
