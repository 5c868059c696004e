// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/ocli/internal/ollama"
	"github.com/jeranaias/ocli/internal/toolcall"
	"github.com/jeranaias/ocli/internal/tools"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Generator opens a streaming generate request. *ollama.Client implements it.
type Generator interface {
	GenerateStream(ctx context.Context, req ollama.GenerateRequest) (io.ReadCloser, error)
}

// ToolRunner executes one tool call. *tools.Executor implements it.
type ToolRunner interface {
	Execute(ctx context.Context, call tools.ToolCall) tools.Result
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds per-pump settings.
type Config struct {
	// Model is sent with every request
	Model string

	// BatchSize is the number of tokens between progress samples (default 20)
	BatchSize int

	// BufferSize is the output buffer size in bytes (default 512)
	BufferSize int

	// PreviewLines caps the lines of tool output shown inline (default 5)
	PreviewLines int

	// StrictToolCalls surfaces malformed tool-call payloads as inline errors
	// instead of dropping them
	StrictToolCalls bool

	// Options are passed through to the server
	Options *ollama.Options
}

// DefaultConfig returns the default pump configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:    20,
		BufferSize:   512,
		PreviewLines: 5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.PreviewLines <= 0 {
		c.PreviewLines = d.PreviewLines
	}
	return c
}

// Hooks observe a run. All hooks are called synchronously on the run's
// goroutine and may be nil.
type Hooks struct {
	OnState      func(State)
	OnProgress   func(StreamStats)
	OnToolResult func(ToolRun)
}

// =============================================================================
// RESULT
// =============================================================================

// ToolRun pairs an executed call with its result.
type ToolRun struct {
	Call   tools.ToolCall
	Result tools.Result
}

// Response is the outcome of a run. On failure it holds whatever arrived
// before the error.
type Response struct {
	// Text is the full model response, tool-call markup included
	Text string

	// Stats is the final throughput sample
	Stats StreamStats

	// ToolRuns are the executed calls in execution order
	ToolRuns []ToolRun

	// State is StateCompleted or StateFailed
	State State

	// Malformed counts tool-call spans that failed to decode
	Malformed int

	// SkippedLines counts stream lines that could not be decoded
	SkippedLines int

	// DoneReason and EvalCount come from the server's final line
	DoneReason string
	EvalCount  int
}

// =============================================================================
// PUMP
// =============================================================================

// Pump streams model output to a writer and executes embedded tool calls.
// Every Run owns its own buffers, so a Pump can be reused across turns.
type Pump struct {
	gen       Generator
	runner    ToolRunner
	out       io.Writer
	cfg       Config
	logger    *zap.Logger
	formatter Formatter
	hooks     Hooks
	now       func() time.Time
}

// Option configures a Pump.
type Option func(*Pump)

// WithLogger sets the pump's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pump) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFormatter replaces the plain formatter.
func WithFormatter(f Formatter) Option {
	return func(p *Pump) {
		if f != nil {
			p.formatter = f
		}
	}
}

// WithHooks installs run observers.
func WithHooks(h Hooks) Option {
	return func(p *Pump) { p.hooks = h }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pump) { p.now = now }
}

// New creates a pump writing rendered output to out.
func New(gen Generator, runner ToolRunner, out io.Writer, cfg Config, opts ...Option) *Pump {
	p := &Pump{
		gen:       gen,
		runner:    runner,
		out:       out,
		cfg:       cfg.withDefaults(),
		logger:    zap.NewNop(),
		formatter: PlainFormatter{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetModel changes the model for subsequent runs.
func (p *Pump) SetModel(model string) {
	p.cfg.Model = model
}

// Model returns the model used for runs.
func (p *Pump) Model() string {
	return p.cfg.Model
}

// Run streams one response for prompt. The returned Response is never nil.
// A transport failure is returned as the error with Response.State set to
// StateFailed; tool failures are not errors.
func (p *Pump) Run(ctx context.Context, prompt string) (*Response, error) {
	r := &run{
		pump:    p,
		out:     bufio.NewWriterSize(p.out, p.cfg.BufferSize),
		scanner: toolcall.NewScanner(),
		resp:    &Response{},
		start:   p.now(),
	}

	r.setState(StateConnecting)
	body, err := p.gen.GenerateStream(ctx, ollama.GenerateRequest{
		Model:   p.cfg.Model,
		Prompt:  prompt,
		Stream:  true,
		Options: p.cfg.Options,
	})
	if err != nil {
		return r.fail(err)
	}
	defer body.Close()

	p.logger.Debug("stream opened", zap.String("model", p.cfg.Model), zap.Int("prompt_bytes", len(prompt)))
	r.setState(StateStreaming)
	r.write(p.formatter.AssistantPrefix())

	dec := ollama.NewLineDecoder(body)
	dec.OnSkip = func(line []byte) {
		p.logger.Debug("skipped undecodable stream line", zap.Int("bytes", len(line)))
	}

	for {
		chunk, err := dec.Next()
		if errors.Is(err, io.EOF) {
			p.logger.Warn("stream ended without done flag", zap.String("model", p.cfg.Model))
			break
		}
		if err != nil {
			r.resp.SkippedLines = dec.Skipped()
			return r.fail(err)
		}
		if chunk.Error != "" {
			r.resp.SkippedLines = dec.Skipped()
			return r.fail(&ollama.ClientError{Type: ollama.ErrTypeInvalidResponse, Message: chunk.Error})
		}

		if chunk.HasResponse && chunk.Response != "" {
			r.token(ctx, chunk.Response)
		}

		if chunk.Done {
			r.resp.DoneReason = chunk.DoneReason
			r.resp.EvalCount = chunk.EvalCount
			break
		}
	}

	r.resp.SkippedLines = dec.Skipped()
	return r.complete()
}

// =============================================================================
// RUN STATE
// =============================================================================

// run is the state of a single Run call. The scanner, output buffer and
// full-response accumulator belong to it alone.
type run struct {
	pump    *Pump
	out     *bufio.Writer
	scanner *toolcall.Scanner
	full    strings.Builder
	resp    *Response
	start   time.Time
	state   State
	tokens  int
}

func (r *run) setState(s State) {
	r.state = s
	if r.pump.hooks.OnState != nil {
		r.pump.hooks.OnState(s)
	}
}

func (r *run) write(s string) {
	if s == "" {
		return
	}
	// bufio.Writer errors are sticky and surface on the next flush.
	_, _ = r.out.WriteString(s)
}

func (r *run) flush() error {
	return r.out.Flush()
}

func (r *run) stats() StreamStats {
	return statsSince(r.tokens, r.start, r.pump.now())
}

// token handles one non-empty response fragment.
func (r *run) token(ctx context.Context, text string) {
	r.tokens++
	r.full.WriteString(text)

	r.dispatch(ctx, r.scanner.Write(text))

	if r.tokens%r.pump.cfg.BatchSize == 0 {
		r.progress()
	}
}

func (r *run) progress() {
	s := r.stats()
	if r.pump.hooks.OnProgress != nil {
		r.pump.hooks.OnProgress(s)
	}
}

// dispatch renders text segments and executes calls in segment order.
func (r *run) dispatch(ctx context.Context, segs []toolcall.Segment) {
	p := r.pump
	for _, seg := range segs {
		switch seg.Kind {
		case toolcall.SegmentText:
			r.resume()
			r.write(seg.Text)

		case toolcall.SegmentCall:
			r.enterDispatch()
			r.write(p.formatter.ToolStart(seg.Call))
			r.flush()

			result := p.runner.Execute(ctx, seg.Call)
			run := ToolRun{Call: seg.Call, Result: result}
			r.resp.ToolRuns = append(r.resp.ToolRuns, run)

			p.logger.Info("tool call",
				zap.String("tool", seg.Call.Name),
				zap.Bool("success", result.Success),
				zap.Duration("duration", result.Duration))

			r.write(p.formatter.ToolResult(run, p.cfg.PreviewLines))
			r.flush()
			if p.hooks.OnToolResult != nil {
				p.hooks.OnToolResult(run)
			}

		case toolcall.SegmentMalformed:
			r.resp.Malformed++
			p.logger.Debug("dropped malformed tool call",
				zap.Int("payload_bytes", len(seg.Text)),
				zap.Error(seg.Err))
			if p.cfg.StrictToolCalls {
				r.enterDispatch()
				r.write(p.formatter.Malformed(seg.Err))
				r.flush()
			}
		}
	}
	r.resume()
}

// enterDispatch moves to ToolDispatch, flushing pending text first.
func (r *run) enterDispatch() {
	if r.state == StateToolDispatch {
		return
	}
	r.write("\n\n")
	r.flush()
	r.setState(StateToolDispatch)
}

// resume returns from ToolDispatch to Streaming.
func (r *run) resume() {
	if r.state != StateToolDispatch {
		return
	}
	r.write("\n" + r.pump.formatter.AssistantPrefix())
	r.setState(StateStreaming)
}

func (r *run) complete() (*Response, error) {
	r.setState(StateDraining)
	r.write(r.scanner.Drain())
	r.write("\n")
	flushErr := r.flush()

	r.resp.Text = r.full.String()
	r.resp.Stats = r.stats()
	r.resp.State = StateCompleted
	r.setState(StateCompleted)
	if r.pump.hooks.OnProgress != nil {
		r.pump.hooks.OnProgress(r.resp.Stats)
	}

	r.pump.logger.Info("stream completed",
		zap.String("model", r.pump.cfg.Model),
		zap.Int("tokens", r.resp.Stats.TokenCount),
		zap.Float64("tokens_per_second", r.resp.Stats.TokensPerSecond),
		zap.Int("tool_calls", len(r.resp.ToolRuns)),
		zap.Int("malformed_tool_calls", r.resp.Malformed),
		zap.Int("skipped_lines", r.resp.SkippedLines))

	if flushErr != nil {
		return r.resp, flushErr
	}
	return r.resp, nil
}

func (r *run) fail(err error) (*Response, error) {
	// Whatever was rendered stays rendered.
	if r.state != StateConnecting {
		r.write(r.scanner.Drain())
		r.write("\n")
	}
	r.flush()

	r.resp.Text = r.full.String()
	r.resp.Stats = r.stats()
	r.resp.State = StateFailed
	r.setState(StateFailed)

	r.pump.logger.Error("stream failed",
		zap.String("model", r.pump.cfg.Model),
		zap.Int("tokens", r.tokens),
		zap.Error(err))
	return r.resp, err
}
