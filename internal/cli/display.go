// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromastyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/ocli/internal/commands"
	"github.com/jeranaias/ocli/internal/ollama"
	"github.com/jeranaias/ocli/internal/stream"
	"github.com/jeranaias/ocli/internal/toolcall"
	"github.com/jeranaias/ocli/internal/tools"
	"github.com/jeranaias/ocli/internal/util"
)

// =============================================================================
// STREAM FORMATTER
// =============================================================================

// StyledFormatter renders the pump's banners with lipgloss styles. Text is
// identical to stream.PlainFormatter when colors are disabled, apart from
// preview lines cut to Width.
type StyledFormatter struct {
	// Width truncates each preview line to this many columns (0 = no limit)
	Width int

	// Highlight colors read_file previews by the file's language
	Highlight bool
}

var _ stream.Formatter = StyledFormatter{}

func (f StyledFormatter) AssistantPrefix() string {
	return render(assistantStyle, "AI:") + " "
}

func (f StyledFormatter) ToolStart(call tools.ToolCall) string {
	return "🔧 " + render(toolStyle, "Executing: "+call.Name) + "\n"
}

func (f StyledFormatter) ToolResult(run stream.ToolRun, preview int) string {
	if !run.Result.Success {
		return "❌ " + render(errorStyle, "Error:") + " " + run.Result.Error + "\n"
	}
	return "✅ " + render(successStyle, "Result:") + " " + f.preview(run, preview) + "\n"
}

func (f StyledFormatter) Malformed(err *toolcall.ParseError) string {
	return "❌ " + render(errorStyle, "Error:") + " Invalid tool call: " + err.Err.Error() + "\n"
}

func (f StyledFormatter) preview(run stream.ToolRun, n int) string {
	text := util.FirstLines(run.Result.Output, n)
	if f.Width > 0 {
		lines := strings.Split(text, "\n")
		for i, line := range lines {
			lines[i] = runewidth.Truncate(line, f.Width, "…")
		}
		text = strings.Join(lines, "\n")
	}
	if f.Highlight && ColorsEnabled() && run.Call.Name == tools.ReadFile {
		path, _ := run.Call.GetString("path")
		text = highlightCode(text, path)
	}
	return text
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// highlightCode colors code for a 256-color terminal. The lexer is chosen
// by file name, then by content; unknown code is returned unchanged.
func highlightCode(code, path string) string {
	var lexer chroma.Lexer
	if path != "" {
		lexer = lexers.Match(filepath.Base(path))
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		return code
	}
	lexer = chroma.Coalesce(lexer)

	style := chromastyles.Get("monokai")
	if style == nil {
		style = chromastyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	out := buf.String()
	if !strings.HasSuffix(code, "\n") {
		out = strings.TrimRight(out, "\n")
	}
	return out
}

// =============================================================================
// DISPLAY
// =============================================================================

// Display writes everything the REPL prints that is not model output.
type Display struct {
	out    io.Writer
	errOut io.Writer
	md     *glamour.TermRenderer
}

// NewDisplay creates a display. When styled, lipgloss uses the terminal's
// color profile and markdown is rendered with glamour; otherwise markdown
// is printed as-is.
func NewDisplay(out, errOut io.Writer, styled bool) *Display {
	d := &Display{out: out, errOut: errOut}
	if !styled {
		return d
	}
	lipgloss.SetColorProfile(GetColorProfile())
	if r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(GetTerminalWidth()-4),
	); err == nil {
		d.md = r
	}
	return d
}

// Markdown renders md for the terminal. Returns md unchanged when rendering
// is unavailable.
func (d *Display) Markdown(md string) string {
	if d.md == nil {
		return md
	}
	out, err := d.md.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Println writes a line to the output.
func (d *Display) Println(s string) {
	fmt.Fprintln(d.out, s)
}

// Banner prints the session header.
func (d *Display) Banner(model, session string) {
	fmt.Fprintln(d.out, render(welcomeStyle, fmt.Sprintf("🤖 OCLI - Using %s (Session: %s)", model, session)))
	fmt.Fprintln(d.out, render(dimStyle, "Type /help for commands, exit to quit."))
	fmt.Fprintln(d.out)
}

// Prompt returns the input prompt.
func (d *Display) Prompt() string {
	return render(promptStyle, "You:") + " "
}

// Stats prints the throughput of a finished turn.
func (d *Display) Stats(s stream.StreamStats) {
	fmt.Fprintln(d.out, render(dimStyle, "("+s.Format()+")"))
}

// Error prints err and its hint, if any.
func (d *Display) Error(err error) {
	fmt.Fprintln(d.errOut, "❌ "+render(errorStyle, "Error:")+" "+err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(d.errOut, render(dimStyle, "💡 "+hint))
	}
}

// errorHint suggests a fix for the errors users can act on.
func errorHint(err error) string {
	if hint := commands.Hint(err); hint != "" {
		return hint
	}
	switch {
	case ollama.IsNotRunning(err):
		return "Start the server with: ollama serve"
	case ollama.IsModelNotFound(err):
		return "Pull the model with: ollama pull <model>, or pick one with /model"
	case ollama.IsTimeout(err):
		return "The server did not respond in time; check [ollama] url in the config"
	}
	return ""
}
