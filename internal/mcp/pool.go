// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultCallTimeout bounds each call made through a Pool.
const DefaultCallTimeout = 30 * time.Second

// ToolInfo is a tool together with the server that offers it.
type ToolInfo struct {
	Server string
	ToolSpec
}

// CallRequest names a tool to call. Server may be empty, in which case the
// tool is looked up across all servers.
type CallRequest struct {
	Server string
	Tool   string
	Args   map[string]any
}

// CallResult is the outcome of one request. Exactly one of Output and Err
// is meaningful.
type CallResult struct {
	Request  CallRequest
	Output   string
	Err      error
	Duration time.Duration
}

// =============================================================================
// POOL
// =============================================================================

// Pool manages connections to the configured servers. Servers are started
// on first use and stay connected until Close.
type Pool struct {
	cfg     *Config
	dial    Dialer
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	conns   map[string]Conn
	dialing singleflight.Group
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithDialer replaces the stdio dialer.
func WithDialer(d Dialer) PoolOption {
	return func(p *Pool) {
		if d != nil {
			p.dial = d
		}
	}
}

// WithCallTimeout sets the per-call timeout.
func WithCallTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the pool's logger.
func WithLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a pool for cfg's servers without starting any of them.
func NewPool(cfg *Config, opts ...PoolOption) *Pool {
	if cfg == nil {
		cfg = &Config{}
	}
	p := &Pool{
		cfg:     cfg,
		dial:    Dial,
		timeout: DefaultCallTimeout,
		logger:  zap.NewNop(),
		conns:   make(map[string]Conn),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Servers returns the configured server names.
func (p *Pool) Servers() []string {
	names := make([]string, len(p.cfg.Servers))
	for i, s := range p.cfg.Servers {
		names[i] = s.Name
	}
	return names
}

// Connected returns the names of servers with a live connection, sorted.
func (p *Pool) Connected() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.conns))
	for name := range p.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// conn returns the named server's connection, starting it if needed.
// Concurrent first uses of a server share one dial; the pool lock is not
// held while dialing.
func (p *Pool) conn(ctx context.Context, name string) (Conn, error) {
	p.mu.Lock()
	c, ok := p.conns[name]
	p.mu.Unlock()
	if ok {
		return c, nil
	}
	sc, ok := p.cfg.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}

	v, err, _ := p.dialing.Do(name, func() (interface{}, error) {
		p.mu.Lock()
		c, ok := p.conns[name]
		p.mu.Unlock()
		if ok {
			return c, nil
		}

		start := time.Now()
		c, err := p.dial(ctx, sc)
		if err != nil {
			p.logger.Warn("MCP server failed to start", zap.String("server", name), zap.Error(err))
			return nil, err
		}
		p.mu.Lock()
		p.conns[name] = c
		p.mu.Unlock()
		p.logger.Info("MCP server connected",
			zap.String("server", name),
			zap.Int("tools", len(c.Tools())),
			zap.Duration("duration", time.Since(start)))
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Conn), nil
}

// ListTools connects to every server and returns their tools in config
// order. Servers that fail to start are skipped; their errors are combined
// into the returned error.
func (p *Pool) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var tools []ToolInfo
	var errs error
	for _, s := range p.cfg.Servers {
		c, err := p.conn(ctx, s.Name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, t := range c.Tools() {
			tools = append(tools, ToolInfo{Server: s.Name, ToolSpec: t})
		}
	}
	return tools, errs
}

// resolve finds the server for a request with no server named. Only
// servers already connected are searched.
func (p *Pool) resolve(tool string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.cfg.Servers {
		c, ok := p.conns[s.Name]
		if !ok {
			continue
		}
		for _, t := range c.Tools() {
			if t.Name == tool {
				return s.Name, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrToolNotFound, tool)
}

// Call runs one request bounded by the call timeout.
func (p *Pool) Call(ctx context.Context, req CallRequest) (res CallResult) {
	start := time.Now()
	res.Request = req
	defer func() { res.Duration = time.Since(start) }()

	server := req.Server
	if server == "" {
		var err error
		if server, err = p.resolve(req.Tool); err != nil {
			res.Err = err
			return res
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	c, err := p.conn(callCtx, server)
	if err != nil {
		res.Err = err
		return res
	}

	out, err := c.CallTool(callCtx, req.Tool, req.Args)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w calling %s after %s", ErrTimeout, req.Tool, p.timeout)
		}
		res.Err = err
	} else {
		res.Output = out
	}

	p.logger.Debug("MCP call",
		zap.String("server", server),
		zap.String("tool", req.Tool),
		zap.Bool("success", res.Err == nil),
		zap.Duration("duration", time.Since(start)))
	return res
}

// CallParallel runs the requests concurrently. Results are in request
// order. Each call has its own timeout; one failure does not cancel the
// others.
func (p *Pool) CallParallel(ctx context.Context, reqs []CallRequest) []CallResult {
	results := make([]CallResult, len(reqs))

	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = p.Call(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Close disconnects every server.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs error
	for name, c := range p.conns {
		if err := c.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(p.conns, name)
	}
	return errs
}
