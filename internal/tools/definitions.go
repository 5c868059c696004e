// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Tool defines an invocable operation.
type Tool struct {
	// Name is the unique identifier the model uses in a tool call
	Name string

	// Description is rendered into the tool-usage prompt block
	Description string

	// Parameters are declared in prompt order
	Parameters []Parameter

	// Executor performs the operation
	Executor ToolExecutor
}

// Parameter defines a single tool parameter.
type Parameter struct {
	Name        string
	Type        string // "string", "number", "boolean", "object", "array"
	Description string
	Required    bool
}

// ToolExecutor is implemented by every tool.
//
// Execution failures that the model should see are reported through the
// returned Result. A non-nil error is reserved for failures of the executor
// itself and is converted to an error Result by the Executor.
type ToolExecutor interface {
	Execute(ctx context.Context, params map[string]interface{}) (Result, error)
}

// ExecutorFunc adapts a function to the ToolExecutor interface.
type ExecutorFunc func(ctx context.Context, params map[string]interface{}) (Result, error)

// Execute calls f(ctx, params).
func (f ExecutorFunc) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	return f(ctx, params)
}

// =============================================================================
// TOOL CALL
// =============================================================================

// ToolCall is a decoded invocation request. The JSON shape matches the
// payload the model writes between tool-call delimiters.
type ToolCall struct {
	Name   string                 `json:"tool"`
	Params map[string]interface{} `json:"parameters"`
}

// GetString returns a string parameter and whether it was present as a string.
func (c ToolCall) GetString(name string) (string, bool) {
	return stringParam(c.Params, name)
}

func stringParam(params map[string]interface{}, name string) (string, bool) {
	v, ok := params[name]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// =============================================================================
// RESULT
// =============================================================================

// Result is the outcome of a tool execution. Exactly one of Output (when
// Success) or Error (otherwise) carries the text shown to the user.
type Result struct {
	// Success distinguishes Success(text) from Error(message)
	Success bool

	// Output is the tool's output for a successful execution
	Output string

	// Error is the message for a failed execution
	Error string

	// Duration is how long execution took
	Duration time.Duration

	// Truncated indicates Output was cut to the executor's size limit
	Truncated bool

	// BytesRead/BytesWritten for file operations
	BytesRead    int64
	BytesWritten int64

	// BackupPath is set by write_file when an existing file was backed up
	BackupPath string
}

// Text returns Output for a success and Error otherwise.
func (r Result) Text() string {
	if r.Success {
		return r.Output
	}
	return r.Error
}

func success(output string) Result {
	return Result{Success: true, Output: output}
}

func failure(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// =============================================================================
// TOOL REGISTRY
// =============================================================================

// Registry holds the available tools in registration order.
type Registry struct {
	tools []*Tool
	index map[string]*Tool
}

// NewRegistry creates a registry holding the built-in tools with default
// settings.
func NewRegistry() *Registry {
	return NewRegistryWithConfig(DefaultConfig())
}

// NewRegistryWithConfig creates a registry holding the built-in tools
// configured by cfg.
func NewRegistryWithConfig(cfg Config) *Registry {
	r := &Registry{index: make(map[string]*Tool)}
	for _, tool := range Builtins(cfg) {
		r.Register(tool)
	}
	return r
}

// Register adds a tool. A tool with the same name replaces the earlier one
// in place.
func (r *Registry) Register(tool *Tool) {
	if r.index == nil {
		r.index = make(map[string]*Tool)
	}
	if _, exists := r.index[tool.Name]; exists {
		for i, t := range r.tools {
			if t.Name == tool.Name {
				r.tools[i] = tool
			}
		}
	} else {
		r.tools = append(r.tools, tool)
	}
	r.index[tool.Name] = tool
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.index[name]
}

// All returns the tools in registration order.
func (r *Registry) All() []*Tool {
	out := make([]*Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name
	}
	return names
}
