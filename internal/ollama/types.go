// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"fmt"
	"time"
)

// =============================================================================
// GENERATE API
// =============================================================================

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	System  string   `json:"system,omitempty"`
	Options *Options `json:"options,omitempty"`
}

// Options are model parameters passed through to the server.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
	Seed        int     `json:"seed,omitempty"`
}

// GenerateResponse is one object of a generate response. A streaming
// response is a sequence of these, one per line, the last with Done set.
type GenerateResponse struct {
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
	Response   string    `json:"response"`
	Done       bool      `json:"done"`
	DoneReason string    `json:"done_reason,omitempty"`

	TotalDuration      int64 `json:"total_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

// =============================================================================
// MODEL API
// =============================================================================

// ModelInfo describes a locally available model.
type ModelInfo struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
}

// FormatSize returns the model size in human-readable units.
func (m ModelInfo) FormatSize() string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case m.Size >= gb:
		return fmt.Sprintf("%.1f GB", float64(m.Size)/gb)
	case m.Size >= mb:
		return fmt.Sprintf("%.1f MB", float64(m.Size)/mb)
	case m.Size >= kb:
		return fmt.Sprintf("%.1f KB", float64(m.Size)/kb)
	}
	return fmt.Sprintf("%d B", m.Size)
}

// ListModelsResponse is the body of GET /api/tags.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// OllamaError is the error body returned by the server.
type OllamaError struct {
	Error string `json:"error"`
}
