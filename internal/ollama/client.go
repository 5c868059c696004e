// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type       ErrorType
	Message    string
	StatusCode int // set for ErrTypeHTTPStatus and ErrTypeModelNotFound
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by type so that errors.Is(err, ErrNotRunning)
// holds for any not-running error.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t == e || (t.Message == "" && t.Type == e.Type)
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeCanceled
	ErrTypeModelNotFound
	ErrTypeHTTPStatus
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// String returns the error type name.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeNotRunning:
		return "not_running"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeCanceled:
		return "canceled"
	case ErrTypeModelNotFound:
		return "model_not_found"
	case ErrTypeHTTPStatus:
		return "http_status"
	case ErrTypeConnection:
		return "connection"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is checks.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout}
	ErrCanceled      = &ClientError{Type: ErrTypeCanceled}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the server base URL (default: http://localhost:11434)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// ConnectTimeout bounds dialing for every request, including streams
	// (default: 5s). Streams have no overall deadline.
	ConnectTimeout time.Duration

	// DefaultModel is used when a request names no model
	DefaultModel string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        "http://localhost:11434",
		Timeout:        30 * time.Second,
		ConnectTimeout: 5 * time.Second,
		DefaultModel:   "deepseek-coder:6.7b",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API. It is safe for
// concurrent use; the underlying connection pool is shared.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a new client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new client. Zero fields take defaults.
func NewClientWithConfig(config *ClientConfig) *Client {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaults.DefaultModel
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &Client{
		config:     &cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		// No client timeout: a stream lasts as long as the caller's context.
		streamClient: &http.Client{Transport: transport},
	}
}

// Config returns a copy of the client configuration.
func (c *Client) Config() ClientConfig {
	return *c.config
}

// DefaultModel returns the model used when a request names none.
func (c *Client) DefaultModel() string {
	return c.config.DefaultModel
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that the server is reachable.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// ListModels retrieves the locally available models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return result.Models, nil
}

// =============================================================================
// GENERATE
// =============================================================================

// GenerateStream issues a streaming generate request and returns the
// response body once the server has answered with a success status. The
// caller must close the body.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) (io.ReadCloser, error) {
	if req.Model == "" {
		req.Model = c.config.DefaultModel
	}
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer drainAndClose(resp.Body)
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// transportError classifies a failed round trip.
func transportError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &ClientError{Type: ErrTypeCanceled, Message: "request cancelled", Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running", Cause: err}
	}
	return &ClientError{Type: ErrTypeConnection, Message: "request failed", Cause: err}
}

// statusError builds the error for a non-success status. The message is
// "HTTP <code>" followed by the server's error text when it sent one.
func statusError(resp *http.Response) error {
	msg := fmt.Sprintf("HTTP %d", resp.StatusCode)

	var ollamaErr OllamaError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &ollamaErr); err == nil && ollamaErr.Error != "" {
		msg += ": " + ollamaErr.Error
	}

	typ := ErrTypeHTTPStatus
	if resp.StatusCode == http.StatusNotFound {
		typ = ErrTypeModelNotFound
	}
	return &ClientError{Type: typ, Message: msg, StatusCode: resp.StatusCode}
}

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}

// IsNotRunning checks if an error indicates the server is not running.
func IsNotRunning(err error) bool {
	return errors.Is(err, ErrNotRunning)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}

func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, r)
	r.Close()
}
