// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/ocli/internal/util"
)

// =============================================================================
// EXECUTION RECORD
// =============================================================================

// ExecutionRecord tracks one tool execution.
type ExecutionRecord struct {
	ToolName  string
	Params    map[string]interface{}
	Result    Result
	Timestamp time.Time
	Duration  time.Duration
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor dispatches tool calls to registered tools.
//
// Execute never panics and never returns a Go error: unknown tools, missing
// parameters and I/O failures all come back as an error Result. Calls are
// independent; the caller decides ordering.
type Executor struct {
	registry    *Registry
	logger      *zap.Logger
	maxOutput   int
	cancelGrace time.Duration

	mu      sync.Mutex
	history []ExecutionRecord
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxOutput caps the bytes of Output kept in a Result (0 = no cap).
func WithMaxOutput(n int) ExecutorOption {
	return func(e *Executor) { e.maxOutput = n }
}

// DefaultCancelGrace is how long Execute waits for a tool to stop after its
// context is cancelled.
const DefaultCancelGrace = 5 * time.Second

// WithCancelGrace sets how long a cancelled call waits for its tool to
// return before reporting it as still running.
func WithCancelGrace(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.cancelGrace = d
		}
	}
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:    registry,
		logger:      zap.NewNop(),
		maxOutput:   DefaultConfig().MaxOutput,
		cancelGrace: DefaultCancelGrace,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs a single tool call.
func (e *Executor) Execute(ctx context.Context, call ToolCall) Result {
	start := time.Now()

	tool := e.registry.Get(call.Name)
	if tool == nil {
		result := failure("Unknown tool: %s", call.Name)
		e.finish(call, start, &result)
		return result
	}

	if err := validateParams(tool, call.Params); err != nil {
		result := failure("%s", err.Error())
		e.finish(call, start, &result)
		return result
	}

	// The tool runs on its own goroutine so that a tool ignoring a cancelled
	// context cannot block the caller past the grace period. Within the
	// grace period the tool's own result is reported, so the Result matches
	// what the tool actually did.
	resultCh := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- failure("tool %s panicked: %v", call.Name, r)
			}
		}()
		result, err := tool.Executor.Execute(ctx, call.Params)
		if err != nil {
			result = failure("%s", err.Error())
		}
		resultCh <- result
	}()

	var result Result
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		grace := time.NewTimer(e.cancelGrace)
		select {
		case result = <-resultCh:
		case <-grace.C:
			result = failure("tool execution cancelled: %v (%s is still running; its changes may still be applied)",
				ctx.Err(), call.Name)
		}
		grace.Stop()
	}

	e.finish(call, start, &result)
	return result
}

// ExecuteBatch runs calls sequentially in the given order. A failed call does
// not stop the ones after it.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []ToolCall) []Result {
	results := make([]Result, len(calls))
	for i, call := range calls {
		results[i] = e.Execute(ctx, call)
	}
	return results
}

func (e *Executor) finish(call ToolCall, start time.Time, result *Result) {
	result.Duration = time.Since(start)

	if result.Success && e.maxOutput > 0 {
		if out, cut := util.TruncateBytes(result.Output, e.maxOutput); cut {
			result.Output = out + fmt.Sprintf("\n... [output truncated at %d bytes]", e.maxOutput)
			result.Truncated = true
		}
	}

	e.logger.Debug("tool executed",
		zap.String("tool", call.Name),
		zap.Bool("success", result.Success),
		zap.Duration("duration", result.Duration),
		zap.Bool("truncated", result.Truncated))

	e.addToHistory(ExecutionRecord{
		ToolName:  call.Name,
		Params:    call.Params,
		Result:    *result,
		Timestamp: start,
		Duration:  result.Duration,
	})
}

// History returns a copy of the execution history.
func (e *Executor) History() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ExecutionRecord, len(e.history))
	copy(out, e.history)
	return out
}

// ClearHistory clears the execution history.
func (e *Executor) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

func (e *Executor) addToHistory(record ExecutionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	const maxHistorySize = 1000
	if len(e.history) >= maxHistorySize {
		e.history = e.history[len(e.history)-maxHistorySize+1:]
	}
	e.history = append(e.history, record)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a missing or mistyped parameter.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// validateParams checks the declared parameters before the tool runs.
func validateParams(tool *Tool, params map[string]interface{}) error {
	for _, param := range tool.Parameters {
		val, exists := params[param.Name]
		if !exists || val == nil {
			if param.Required {
				return &ValidationError{
					Param:   param.Name,
					Message: fmt.Sprintf("Missing '%s' parameter", param.Name),
				}
			}
			continue
		}
		if !matchesType(param.Type, val) {
			return &ValidationError{
				Param:   param.Name,
				Message: fmt.Sprintf("Invalid '%s' parameter: expected %s", param.Name, param.Type),
			}
		}
	}
	return nil
}

func matchesType(typ string, val interface{}) bool {
	switch typ {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		switch val.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]interface{})
		return ok
	case "object":
		_, ok := val.(map[string]interface{})
		return ok
	}
	return true
}

// =============================================================================
// EXECUTION STATISTICS
// =============================================================================

// ExecutionStats summarizes the execution history.
type ExecutionStats struct {
	TotalExecutions int
	Successful      int
	Failed          int
	TotalDuration   time.Duration
	AvgDuration     time.Duration
	ByTool          map[string]int
}

// Stats returns statistics about the execution history.
func (e *Executor) Stats() ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := ExecutionStats{
		TotalExecutions: len(e.history),
		ByTool:          make(map[string]int),
	}
	for _, record := range e.history {
		if record.Result.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		stats.TotalDuration += record.Duration
		stats.ByTool[record.ToolName]++
	}
	if stats.TotalExecutions > 0 {
		stats.AvgDuration = stats.TotalDuration / time.Duration(stats.TotalExecutions)
	}
	return stats
}
