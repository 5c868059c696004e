// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/ocli/internal/cache"
	"github.com/jeranaias/ocli/internal/mcp"
	"github.com/jeranaias/ocli/internal/ollama"
	"github.com/jeranaias/ocli/internal/session"
	"github.com/jeranaias/ocli/internal/tools"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/model <name>")
	Usage string

	// Args defines the expected arguments
	Args []ArgDef

	// Handler executes the command. User-facing output goes to ctx.Out;
	// a returned error is shown by the caller.
	Handler func(ctx *Context, args []string) error

	// Hidden commands don't appear in help
	Hidden bool

	// Category for grouping in help display
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	// Name of the argument
	Name string

	// Required indicates if the argument must be provided
	Required bool

	// Type determines completion behavior
	Type ArgType

	// Description explains the argument
	Description string

	// Values for enum types
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString  ArgType = iota // Free-form string
	ArgTypeModel                  // Model name from Ollama
	ArgTypeSession                // Saved session name
	ArgTypeFile                   // File path
	ArgTypeEnum                   // One of predefined values
	ArgTypeTool                   // Tool name
)

// Help categories, in display order.
const (
	CategoryContext = "Context"
	CategoryTools   = "Tools"
	CategorySession = "Session"
	CategoryGeneral = "General"
)

var categoryOrder = []string{CategoryContext, CategoryTools, CategorySession, CategoryGeneral}

// =============================================================================
// CONTEXT
// =============================================================================

// ModelSwitcher reads and changes the model used for new turns.
type ModelSwitcher interface {
	Model() string
	SetModel(name string)
}

// ModelLister lists the models the server has installed.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)
}

// Context carries what handlers need. Nil optional fields disable the
// commands that use them.
type Context struct {
	Ctx context.Context
	Out io.Writer

	Conversation *session.Conversation
	Stats        *session.Stats
	Store        session.Store        // optional
	Cache        *cache.ResponseCache // optional, nil when disabled
	MCP          *mcp.Pool            // optional
	MCPConfig    string               // path shown when no servers are configured
	Tools        *tools.Registry      // optional
	Executor     *tools.Executor      // optional, runs /write
	Models       ModelSwitcher        // optional
	Lister       ModelLister          // optional

	// Generate returns the model's complete answer to prompt without
	// streaming it. Nil disables /write.
	Generate func(ctx context.Context, prompt string) (string, error)

	// Render turns markdown into terminal output. Nil prints it raw.
	Render func(markdown string) string

	Logger *zap.Logger

	registry *Registry
}

func (c *Context) context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Context) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Context) println(s string) {
	fmt.Fprintln(c.Out, s)
}

func (c *Context) markdown(md string) {
	if c.Render != nil {
		if out := c.Render(md); out != "" {
			fmt.Fprint(c.Out, out)
			return
		}
	}
	fmt.Fprintln(c.Out, md)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]string
}

// NewRegistry creates a registry with the built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command, replacing any command of the same name.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd.Name
	}
}

// Get returns a command by name or alias, case-insensitively.
func (r *Registry) Get(name string) *Command {
	name = strings.ToLower(name)
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if primary, ok := r.aliases[name]; ok {
		return r.commands[primary]
	}
	return nil
}

// All returns all commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory groups visible commands by category.
func (r *Registry) ByCategory() map[string][]*Command {
	groups := make(map[string][]*Command)
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		cat := cmd.Category
		if cat == "" {
			cat = CategoryGeneral
		}
		groups[cat] = append(groups[cat], cmd)
	}
	return groups
}

// Names returns every visible command name and alias.
func (r *Registry) Names() []string {
	var names []string
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		names = append(names, cmd.Name)
		names = append(names, cmd.Aliases...)
	}
	return names
}

// Execute parses input and runs the matching command. Input that is not a
// command is an error; callers check IsCommand first.
func (r *Registry) Execute(ctx *Context, input string) error {
	res := NewParser(r).Parse(input)
	if !res.IsCommand || res.CommandName == "" {
		return fmt.Errorf("not a command: %q", input)
	}
	if res.Command == nil {
		return &UnknownCommandError{Name: res.CommandName, Suggestion: r.Suggest(res.CommandName)}
	}
	if err := ValidateArgs(res.Command, res.Args); err != nil {
		return err
	}
	ctx.registry = r
	ctx.logger().Debug("command", zap.String("name", res.Command.Name), zap.Int("args", len(res.Args)))
	return res.Command.Handler(ctx, res.Args)
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Usage:       "/help [command]",
		Args:        []ArgDef{{Name: "command", Type: ArgTypeString, Description: "Command to describe"}},
		Handler:     handleHelp,
		Category:    CategoryGeneral,
	})
	r.Register(&Command{
		Name:        "/read",
		Aliases:     []string{"/r", "/add"},
		Description: "Load a file into the conversation context",
		Usage:       "/read <file>",
		Args:        []ArgDef{{Name: "file", Required: true, Type: ArgTypeFile, Description: "Path to the file"}},
		Handler:     handleRead,
		Category:    CategoryContext,
	})
	r.Register(&Command{
		Name:        "/write",
		Aliases:     []string{"/w"},
		Description: "Have the model write a file (backed up, undo with /rollback)",
		Usage:       "/write <file> <what to write>",
		Args: []ArgDef{
			{Name: "file", Required: true, Type: ArgTypeFile, Description: "Path to write"},
			{Name: "request", Required: true, Type: ArgTypeString, Description: "What the file should contain"},
		},
		Handler:  handleWrite,
		Category: CategoryTools,
	})
	r.Register(&Command{
		Name:        "/context",
		Aliases:     []string{"/ctx"},
		Description: "Show token usage, working files and recent changes",
		Usage:       "/context [search <query>]",
		Args: []ArgDef{
			{Name: "action", Type: ArgTypeEnum, Values: []string{"search"}, Description: "Search messages"},
			{Name: "query", Type: ArgTypeString, Description: "Text to search for"},
		},
		Handler:  handleContext,
		Category: CategoryContext,
	})
	r.Register(&Command{
		Name:        "/clear",
		Aliases:     []string{"/c"},
		Description: "Clear messages, working files and changes",
		Usage:       "/clear",
		Handler:     handleClear,
		Category:    CategoryContext,
	})
	r.Register(&Command{
		Name:        "/rollback",
		Aliases:     []string{"/undo"},
		Description: "Restore the last file the assistant wrote",
		Usage:       "/rollback",
		Handler:     handleRollback,
		Category:    CategoryTools,
	})
	r.Register(&Command{
		Name:        "/tools",
		Description: "List the built-in tools",
		Usage:       "/tools",
		Handler:     handleTools,
		Category:    CategoryTools,
	})
	r.Register(&Command{
		Name:        "/mcp",
		Description: "List or call MCP server tools",
		Usage:       "/mcp [list|servers|call <tool> [json] ...]",
		Args: []ArgDef{
			{Name: "action", Type: ArgTypeEnum, Values: []string{"list", "servers", "call"}, Description: "Action"},
			{Name: "tool", Type: ArgTypeTool, Description: "Tool to call, optionally server/tool"},
		},
		Handler:  handleMCP,
		Category: CategoryTools,
	})
	r.Register(&Command{
		Name:        "/model",
		Aliases:     []string{"/m"},
		Description: "Show or switch the model",
		Usage:       "/model [name]",
		Args:        []ArgDef{{Name: "name", Type: ArgTypeModel, Description: "Model to switch to"}},
		Handler:     handleModel,
		Category:    CategorySession,
	})
	r.Register(&Command{
		Name:        "/stats",
		Description: "Show session statistics",
		Usage:       "/stats",
		Handler:     handleStats,
		Category:    CategorySession,
	})
	r.Register(&Command{
		Name:        "/cache",
		Description: "Show or clear the response cache",
		Usage:       "/cache [clear]",
		Args:        []ArgDef{{Name: "action", Type: ArgTypeEnum, Values: []string{"stats", "clear"}, Description: "Action"}},
		Handler:     handleCache,
		Category:    CategorySession,
	})
	r.Register(&Command{
		Name:        "/save",
		Aliases:     []string{"/s"},
		Description: "Save the session now",
		Usage:       "/save",
		Handler:     handleSave,
		Category:    CategorySession,
	})
	r.Register(&Command{
		Name:        "/sessions",
		Description: "List saved sessions",
		Usage:       "/sessions",
		Handler:     handleSessions,
		Category:    CategorySession,
	})
	r.Register(&Command{
		Name:        "/exit",
		Aliases:     []string{"/quit", "/q"},
		Description: "Save the session and exit",
		Usage:       "/exit",
		Handler:     handleExit,
		Category:    CategoryGeneral,
	})
}
