// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/ocli/internal/commands"
	"github.com/jeranaias/ocli/internal/ollama"
	"github.com/jeranaias/ocli/internal/stream"
	"github.com/jeranaias/ocli/internal/toolcall"
	"github.com/jeranaias/ocli/internal/tools"
)

func TestMain(m *testing.M) {
	ForceColorsEnabled(false)
	os.Exit(m.Run())
}

func TestStyledFormatterMatchesPlainWithoutColor(t *testing.T) {
	styled := StyledFormatter{Highlight: true}
	plain := stream.PlainFormatter{}

	ok := stream.ToolRun{
		Call:   tools.ToolCall{Name: tools.ReadFile, Params: map[string]interface{}{"path": "main.go"}},
		Result: tools.Result{Success: true, Output: "package main\n\nfunc main() {}\n"},
	}
	failed := stream.ToolRun{
		Call:   tools.ToolCall{Name: tools.ExecuteBash},
		Result: tools.Result{Error: "exit status 1"},
	}
	malformed := &toolcall.ParseError{Payload: "{", Err: errors.New("unexpected end of JSON input")}

	assert.Equal(t, plain.AssistantPrefix(), styled.AssistantPrefix())
	assert.Equal(t, plain.ToolStart(ok.Call), styled.ToolStart(ok.Call))
	assert.Equal(t, plain.ToolResult(ok, 2), styled.ToolResult(ok, 2))
	assert.Equal(t, plain.ToolResult(failed, 2), styled.ToolResult(failed, 2))
	assert.Equal(t, plain.Malformed(malformed), styled.Malformed(malformed))
}

func TestStyledFormatterTruncatesWideLines(t *testing.T) {
	f := StyledFormatter{Width: 10}
	run := stream.ToolRun{
		Call:   tools.ToolCall{Name: tools.ExecuteBash},
		Result: tools.Result{Success: true, Output: "abcdefghijklmnop\nshort"},
	}
	assert.Equal(t, "✅ Result: abcdefghi…\nshort\n", f.ToolResult(run, 5))
}

func TestErrorHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not running", fmt.Errorf("cannot reach Ollama: %w", ollama.ErrNotRunning), "Start the server with: ollama serve"},
		{"model not found", ollama.ErrModelNotFound, "Pull the model with: ollama pull <model>, or pick one with /model"},
		{"command hint", &commands.UnknownCommandError{Name: "hlep", Suggestion: "/help"}, "Did you mean /help?"},
		{"plain", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorHint(tt.err))
		})
	}
}

func TestDisplayError(t *testing.T) {
	var out, errOut bytes.Buffer
	d := NewDisplay(&out, &errOut, false)

	d.Error(&commands.UnknownCommandError{Name: "nope"})
	assert.Empty(t, out.String())
	assert.Equal(t, "❌ Error: Unknown command: nope\n💡 Type /help for available commands\n", errOut.String())
}

func TestDisplayPlainMarkdown(t *testing.T) {
	d := NewDisplay(&bytes.Buffer{}, &bytes.Buffer{}, false)
	assert.Equal(t, "# Title", d.Markdown("# Title"))
	assert.Equal(t, "You: ", d.Prompt())
}
