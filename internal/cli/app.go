// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/ocli/internal/cache"
	"github.com/jeranaias/ocli/internal/commands"
	"github.com/jeranaias/ocli/internal/config"
	"github.com/jeranaias/ocli/internal/mcp"
	"github.com/jeranaias/ocli/internal/ollama"
	"github.com/jeranaias/ocli/internal/session"
	"github.com/jeranaias/ocli/internal/stream"
	"github.com/jeranaias/ocli/internal/tools"
)

// DefaultSessionName is used when no session is named.
const DefaultSessionName = "default"

// =============================================================================
// OPTIONS
// =============================================================================

// AppOptions wires an App. Generator is required; nil optional fields
// disable what they provide.
type AppOptions struct {
	Config    *config.Config
	Generator stream.Generator
	Lister    commands.ModelLister // /model listing
	Store     session.Store        // persistence; nil keeps the session in memory
	MCP       *mcp.Pool
	Session   string

	Out    io.Writer
	ErrOut io.Writer
	Styled bool
	Logger *zap.Logger
}

// =============================================================================
// APP
// =============================================================================

// App is one chat session: a conversation and everything a turn needs.
// It is driven from a single goroutine.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer

	display   *Display
	formatter stream.Formatter
	tools     *tools.Registry
	executor  *tools.Executor
	gen       stream.Generator
	pump      *stream.Pump
	cache     *cache.ResponseCache
	store     session.Store
	pool      *mcp.Pool
	lister    commands.ModelLister
	commands  *commands.Registry

	conv    *session.Conversation
	stats   session.Stats
	unsaved int

	reloads chan *config.Config
}

// NewApp loads or creates the named session and builds the pipeline.
func NewApp(ctx context.Context, opts AppOptions) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	errOut := opts.ErrOut
	if errOut == nil {
		errOut = os.Stderr
	}
	name := opts.Session
	if name == "" {
		name = DefaultSessionName
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		out:      out,
		display:  NewDisplay(out, errOut, opts.Styled),
		store:    opts.Store,
		pool:     opts.MCP,
		lister:   opts.Lister,
		commands: commands.NewRegistry(),
		reloads:  make(chan *config.Config, 1),
	}

	a.tools = tools.NewRegistryWithConfig(tools.Config{
		BackupSuffix: cfg.Tools.BackupSuffix,
		Shell:        cfg.Tools.Shell,
		MaxOutput:    cfg.Tools.MaxOutput,
	})
	a.executor = tools.NewExecutor(a.tools,
		tools.WithLogger(logger.Named("tools")),
		tools.WithMaxOutput(cfg.Tools.MaxOutput))

	a.formatter = stream.PlainFormatter{}
	if opts.Styled {
		a.formatter = StyledFormatter{Width: GetTerminalWidth() - 4, Highlight: true}
	}
	progress := &progressLog{
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger:  logger.Named("stream"),
	}
	a.gen = opts.Generator
	a.pump = stream.New(opts.Generator, a.executor, out, stream.Config{
		Model:           cfg.Model,
		BatchSize:       cfg.Stream.BatchSize,
		BufferSize:      cfg.Stream.BufferSize,
		PreviewLines:    cfg.Stream.PreviewLines,
		StrictToolCalls: cfg.Stream.StrictToolCalls,
	},
		stream.WithLogger(logger.Named("stream")),
		stream.WithFormatter(a.formatter),
		stream.WithHooks(stream.Hooks{OnProgress: progress.observe}),
	)

	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.Capacity)
		if err != nil {
			return nil, fmt.Errorf("response cache: %w", err)
		}
		a.cache = c
	}

	if a.store != nil {
		conv, err := a.store.Load(ctx, name, cfg.Context.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", name, err)
		}
		a.conv = conv
	} else {
		a.conv = session.NewConversation(name, cfg.Context.MaxTokens)
	}
	a.conv.Model = cfg.Model

	logger.Info("session started",
		zap.String("session", a.conv.Name),
		zap.String("model", cfg.Model),
		zap.Int("messages", len(a.conv.Messages)),
		zap.Bool("cache", a.cache != nil),
		zap.Bool("persistent", a.store != nil))
	return a, nil
}

// Conversation returns the session's conversation.
func (a *App) Conversation() *session.Conversation {
	return a.conv
}

// Stats returns the session counters.
func (a *App) Stats() session.Stats {
	return a.stats
}

// Model returns the model used for turns.
func (a *App) Model() string {
	return a.pump.Model()
}

// =============================================================================
// TURNS
// =============================================================================

// Turn sends one user message and streams the answer to the output. A
// response with no tool calls is served from the cache when the same
// prompt was answered before by the same model.
func (a *App) Turn(ctx context.Context, input string) (*stream.Response, error) {
	a.applyReloads()

	prompt := session.BuildPrompt(a.tools.Prompt(), a.conv, input)
	model := a.pump.Model()
	a.addMessage(ctx, session.RoleUser, input)
	a.stats.MessagesSent++

	if a.cache != nil {
		if text, ok := a.cache.Get(prompt, model); ok {
			a.logger.Debug("cache hit", zap.String("model", model), zap.Int("bytes", len(text)))
			a.stats.CacheHits++
			fmt.Fprint(a.out, a.formatter.AssistantPrefix()+text+"\n")
			a.addMessage(ctx, session.RoleAssistant, text)
			return &stream.Response{Text: text, State: stream.StateCompleted}, nil
		}
		a.logger.Debug("cache miss", zap.String("model", model))
	}

	resp, err := a.pump.Run(ctx, prompt)
	a.recordToolRuns(resp.ToolRuns)
	if err != nil {
		return resp, err
	}

	a.addMessage(ctx, session.RoleAssistant, resp.Text)
	// Tool side effects are not replayable.
	if a.cache != nil && len(resp.ToolRuns) == 0 && resp.Malformed == 0 && resp.Text != "" {
		a.cache.Put(prompt, model, resp.Text)
	}
	return resp, nil
}

func (a *App) recordToolRuns(runs []stream.ToolRun) {
	for _, run := range runs {
		a.stats.RecordTool(run.Call.Name, run.Result.Success)
		if run.Call.Name != tools.WriteFile || !run.Result.Success {
			continue
		}
		path, _ := run.Call.GetString("path")
		op := "write"
		if run.Result.BackupPath == "" {
			op = "create"
		}
		a.conv.TrackChange(session.FileChange{
			Path:       path,
			Operation:  op,
			BackupPath: run.Result.BackupPath,
		})
	}
}

// addMessage appends to the conversation and autosaves every
// AutosaveEvery messages.
func (a *App) addMessage(ctx context.Context, role, content string) {
	a.conv.AddMessage(role, content)
	a.unsaved++

	every := a.cfg.Context.AutosaveEvery
	if a.store == nil || every <= 0 || a.unsaved < every {
		return
	}
	if err := a.Save(ctx); err != nil {
		a.logger.Warn("autosave failed", zap.String("session", a.conv.Name), zap.Error(err))
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

// Command runs a slash command against the session.
func (a *App) Command(ctx context.Context, input string) error {
	a.applyReloads()
	return a.commands.Execute(a.commandContext(ctx), input)
}

func (a *App) commandContext(ctx context.Context) *commands.Context {
	return &commands.Context{
		Ctx:          ctx,
		Out:          a.out,
		Conversation: a.conv,
		Stats:        &a.stats,
		Store:        a.store,
		Cache:        a.cache,
		MCP:          a.pool,
		MCPConfig:    a.cfg.MCP.ConfigFile,
		Tools:        a.tools,
		Executor:     a.executor,
		Generate:     a.complete,
		Models:       a.pump,
		Lister:       a.lister,
		Render:       a.display.Markdown,
		Logger:       a.logger.Named("commands"),
	}
}

// complete asks the current model for one answer and collects it
// without echoing anything or running tools.
func (a *App) complete(ctx context.Context, prompt string) (string, error) {
	body, err := a.gen.GenerateStream(ctx, ollama.GenerateRequest{
		Model:  a.pump.Model(),
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	var sb strings.Builder
	dec := ollama.NewLineDecoder(body)
	for {
		chunk, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if chunk.Error != "" {
			return "", &ollama.ClientError{Type: ollama.ErrTypeInvalidResponse, Message: chunk.Error}
		}
		sb.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	return sb.String(), nil
}

// Completer returns line completion for the session's commands.
func (a *App) Completer() *commands.Completer {
	c := commands.NewCompleter(a.commands)
	if a.lister != nil {
		c.ModelsFn = func() []string {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			models, err := a.lister.ListModels(ctx)
			if err != nil {
				return nil
			}
			names := make([]string, len(models))
			for i, m := range models {
				names[i] = m.Name
			}
			return names
		}
	}
	if a.store != nil {
		c.SessionsFn = func() []string {
			metas, err := a.store.List(context.Background())
			if err != nil {
				return nil
			}
			names := make([]string, len(metas))
			for i, m := range metas {
				names[i] = m.Name
			}
			return names
		}
	}
	if a.pool != nil {
		c.ToolsFn = func() []string {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			infos, _ := a.pool.ListTools(ctx)
			names := make([]string, len(infos))
			for i, t := range infos {
				names[i] = t.Server + "/" + t.Name
			}
			return names
		}
	}
	return c
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

// QueueReload hands a reloaded config to the session. It is applied before
// the next turn or command, on the session's goroutine. Safe to call from
// any goroutine; only the newest config is kept.
func (a *App) QueueReload(cfg *config.Config) {
	for {
		select {
		case a.reloads <- cfg:
			return
		default:
		}
		select {
		case <-a.reloads:
		default:
		}
	}
}

func (a *App) applyReloads() {
	select {
	case cfg := <-a.reloads:
		if cfg.Model != a.cfg.Model {
			a.pump.SetModel(cfg.Model)
			a.conv.Model = cfg.Model
			a.display.Println(render(dimStyle, "🔄 Config reloaded: model is now "+cfg.Model))
		}
		a.logger.Info("config reloaded", zap.String("model", cfg.Model))
		a.cfg = cfg
	default:
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Save persists the conversation. Without a store it does nothing.
func (a *App) Save(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Save(ctx, a.conv); err != nil {
		return fmt.Errorf("save session %s: %w", a.conv.Name, err)
	}
	a.unsaved = 0
	a.logger.Debug("session saved", zap.String("session", a.conv.Name), zap.Int("messages", len(a.conv.Messages)))
	return nil
}

// Close stops MCP servers and closes the store. It does not save.
func (a *App) Close() error {
	var err error
	if a.pool != nil {
		err = multierr.Append(err, a.pool.Close())
	}
	if a.store != nil {
		err = multierr.Append(err, a.store.Close())
	}
	return err
}

// =============================================================================
// PROGRESS
// =============================================================================

// progressLog records stream throughput at most once per limiter token.
type progressLog struct {
	limiter *rate.Limiter
	logger  *zap.Logger
}

func (p *progressLog) observe(s stream.StreamStats) {
	if !p.limiter.Allow() {
		return
	}
	p.logger.Debug("stream progress",
		zap.Int("tokens", s.TokenCount),
		zap.Float64("tokens_per_sec", s.TokensPerSecond))
}
