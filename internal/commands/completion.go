// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// =============================================================================
// COMPLETER
// =============================================================================

// Completion is a single completion candidate.
type Completion struct {
	Value       string
	Description string
	Score       int
}

// Completer handles tab completion for commands and arguments.
type Completer struct {
	registry *Registry

	// Callbacks for dynamic completion, set by the application
	ModelsFn   func() []string // available models
	SessionsFn func() []string // saved session names
	ToolsFn    func() []string // MCP and built-in tool names
}

// NewCompleter creates a new completer with the given registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns completions for the end of input, best first.
func (c *Completer) Complete(input string) []Completion {
	if !strings.HasPrefix(strings.TrimLeft(input, " "), "/") {
		return nil
	}
	input = strings.TrimLeft(input, " ")

	parts := splitCommandLine(input)
	trailingSpace := strings.HasSuffix(input, " ")

	// Still typing the command name?
	if len(parts) <= 1 && !trailingSpace {
		partial := ""
		if len(parts) == 1 {
			partial = parts[0]
		}
		return c.completeCommands(partial)
	}

	cmd := c.registry.Get(parts[0])
	if cmd == nil {
		return nil
	}

	argIndex := len(parts) - 2
	partial := parts[len(parts)-1]
	if trailingSpace {
		argIndex++
		partial = ""
	}
	return c.completeArg(cmd, argIndex, partial)
}

// Line adapts Complete to line editors that replace the whole line: each
// candidate is the input with its last word completed.
func (c *Completer) Line(line string) []string {
	completions := c.Complete(line)
	if len(completions) == 0 {
		return nil
	}

	head := line
	if i := strings.LastIndexByte(line, ' '); i >= 0 {
		head = line[:i+1]
	} else {
		head = ""
	}

	lines := make([]string, len(completions))
	for i, comp := range completions {
		lines[i] = head + comp.Value
	}
	return lines
}

// =============================================================================
// COMMAND COMPLETION
// =============================================================================

func (c *Completer) completeCommands(partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		if strings.HasPrefix(cmd.Name, partial) {
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
		}
		for _, alias := range cmd.Aliases {
			if strings.HasPrefix(alias, partial) {
				completions = append(completions, Completion{
					Value:       alias,
					Description: cmd.Description,
					Score:       calculateScore(alias, partial) - 10, // aliases rank below names
				})
			}
		}
	}

	sortCompletions(completions)
	return completions
}

// =============================================================================
// ARGUMENT COMPLETION
// =============================================================================

func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}

	arg := cmd.Args[argIndex]
	switch arg.Type {
	case ArgTypeModel:
		return completeFromList(callList(c.ModelsFn), partial)
	case ArgTypeSession:
		return completeFromList(callList(c.SessionsFn), partial)
	case ArgTypeTool:
		return completeFromList(callList(c.ToolsFn), partial)
	case ArgTypeFile:
		return completeFiles(partial)
	case ArgTypeEnum:
		return completeFromList(arg.Values, partial)
	default:
		return nil
	}
}

func callList(fn func() []string) []string {
	if fn == nil {
		return nil
	}
	return fn()
}

// completeFiles lists entries of the partial path's directory. Directories
// get a trailing separator; hidden files only match an explicit dot.
func completeFiles(partial string) []Completion {
	dir, prefix := filepath.Split(partial)
	readDir := dir
	if readDir == "" {
		readDir = "."
	}

	entries, err := os.ReadDir(readDir)
	if err != nil {
		return nil
	}

	var completions []Completion
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
			continue
		}
		value := dir + name
		score := calculateScore(name, prefix)
		if e.IsDir() {
			value += string(filepath.Separator)
			score += 5
		}
		completions = append(completions, Completion{Value: value, Score: score})
	}

	sortCompletions(completions)
	return completions
}

func completeFromList(values []string, partial string) []Completion {
	var completions []Completion
	lower := strings.ToLower(partial)
	for _, value := range values {
		if strings.HasPrefix(strings.ToLower(value), lower) {
			completions = append(completions, Completion{
				Value: value,
				Score: calculateScore(value, partial),
			})
		}
	}
	sortCompletions(completions)
	return completions
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// calculateScore ranks a prefix match. Exact matches score highest, then
// shorter values.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100
	if value == partial {
		return score + 100
	}
	if strings.HasPrefix(value, partial) {
		score += 50
		score += 20 - len(value)
	}
	score -= len(value) / 2
	return score
}

// sortCompletions sorts completions by score (descending), then alphabetically.
func sortCompletions(completions []Completion) {
	sort.Slice(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}
