// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/ocli/internal/commands"
)

// ErrInterrupted is returned by a LineReader when the user presses Ctrl+C
// at the prompt.
var ErrInterrupted = errors.New("input interrupted")

// LineReader reads user input one line at a time. Prompt returns io.EOF
// when input ends.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// =============================================================================
// LINER INPUT
// =============================================================================

// linerReader is the interactive reader: line editing, history and tab
// completion.
type linerReader struct {
	line        *liner.State
	historyFile string
}

// newLinerReader creates a line editor. History is loaded from
// historyFile when it exists and written back on Close.
func newLinerReader(historyFile string, complete func(string) []string) *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if complete != nil {
		line.SetCompleter(complete)
	}

	r := &linerReader{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", ErrInterrupted
	}
	return input, err
}

func (r *linerReader) AppendHistory(line string) {
	r.line.AppendHistory(line)
}

// Close saves history with owner-only permissions and restores the
// terminal.
func (r *linerReader) Close() error {
	var saveErr error
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0o700); err == nil {
		f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err == nil {
			_, saveErr = r.line.WriteHistory(f)
			f.Close()
		} else {
			saveErr = err
		}
	}
	if err := r.line.Close(); err != nil {
		return err
	}
	return saveErr
}

// =============================================================================
// PLAIN INPUT
// =============================================================================

// scanReader reads lines from a non-terminal, such as a pipe.
type scanReader struct {
	sc  *bufio.Scanner
	out io.Writer // prompt destination; nil prints no prompt
}

func newScanReader(in io.Reader, out io.Writer) *scanReader {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &scanReader{sc: sc, out: out}
}

func (r *scanReader) Prompt(prompt string) (string, error) {
	if r.out != nil {
		fmt.Fprint(r.out, prompt)
	}
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.sc.Text(), nil
}

func (r *scanReader) AppendHistory(string) {}

func (r *scanReader) Close() error { return nil }

// =============================================================================
// REPL
// =============================================================================

// isExitWord reports input that ends the session without a slash.
func isExitWord(input string) bool {
	switch strings.ToLower(input) {
	case "exit", "quit", "q":
		return true
	}
	return false
}

// RunREPL reads input until exit or end of input, running slash commands
// and turns. Ctrl+C during a turn cancels that turn only. The session is
// saved on the way out.
func (a *App) RunREPL(ctx context.Context, in LineReader) error {
	a.display.Banner(a.pump.Model(), a.conv.Name)

	for ctx.Err() == nil {
		line, err := in.Prompt(a.display.Prompt())
		if errors.Is(err, ErrInterrupted) {
			a.display.Println(render(dimStyle, "(type exit to quit)"))
			continue
		}
		if errors.Is(err, io.EOF) {
			a.display.Println("")
			break
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		in.AppendHistory(input)

		if isExitWord(input) {
			break
		}

		if commands.IsCommand(input) {
			err := a.Command(ctx, input)
			if errors.Is(err, commands.ErrExit) {
				break
			}
			if err != nil {
				a.display.Error(err)
			}
			continue
		}

		a.runTurn(ctx, input)
	}

	if err := a.Save(ctx); err != nil {
		a.display.Error(err)
		return err
	}
	a.display.Println("💾 Session saved. Goodbye!")
	return nil
}

// runTurn runs one turn with Ctrl+C bound to its context.
func (a *App) runTurn(ctx context.Context, input string) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	resp, err := a.Turn(turnCtx, input)
	if err != nil {
		if turnCtx.Err() != nil && ctx.Err() == nil {
			a.display.Println(render(dimStyle, "[Cancelled]"))
			a.logger.Info("turn cancelled", zap.Int("tokens", resp.Stats.TokenCount))
			return
		}
		a.display.Error(err)
		a.logger.Error("turn failed", zap.Error(err))
		return
	}
	if resp.Stats.TokenCount > 0 {
		a.display.Stats(resp.Stats)
	}
}
