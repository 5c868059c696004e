// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/ocli/internal/mcp"
	"github.com/jeranaias/ocli/internal/session"
	"github.com/jeranaias/ocli/internal/tools"
)

// =============================================================================
// GENERAL
// =============================================================================

func handleHelp(ctx *Context, args []string) error {
	reg := ctx.registry
	if reg == nil {
		reg = NewRegistry()
	}

	if len(args) > 0 {
		name := args[0]
		if !strings.HasPrefix(name, "/") {
			name = "/" + name
		}
		cmd := reg.Get(name)
		if cmd == nil {
			return &UnknownCommandError{Name: name, Suggestion: reg.Suggest(name)}
		}
		ctx.markdown(commandHelp(cmd))
		return nil
	}

	var sb strings.Builder
	sb.WriteString("# Commands\n")
	groups := reg.ByCategory()
	for _, cat := range categoryOrder {
		cmds := groups[cat]
		if len(cmds) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s\n\n| Command | Description |\n|---|---|\n", cat)
		for _, cmd := range cmds {
			fmt.Fprintf(&sb, "| `%s` | %s |\n", cmd.Usage, cmd.Description)
		}
	}
	sb.WriteString("\nType `exit` or `/exit` to save and quit.\n")
	ctx.markdown(sb.String())
	return nil
}

func commandHelp(cmd *Command) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n%s\n\nUsage: `%s`\n", cmd.Name, cmd.Description, cmd.Usage)
	if len(cmd.Aliases) > 0 {
		fmt.Fprintf(&sb, "\nAliases: %s\n", strings.Join(cmd.Aliases, ", "))
	}
	for _, arg := range cmd.Args {
		req := "optional"
		if arg.Required {
			req = "required"
		}
		fmt.Fprintf(&sb, "\n- `%s` (%s): %s", arg.Name, req, arg.Description)
		if len(arg.Values) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(arg.Values, "|"))
		}
	}
	if len(cmd.Args) > 0 {
		sb.WriteString("\n")
	}
	return sb.String()
}

func handleExit(ctx *Context, args []string) error {
	return ErrExit
}

// =============================================================================
// CONTEXT
// =============================================================================

func handleRead(ctx *Context, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return &FileError{Path: path, Err: err}
	}

	content := string(data)
	ctx.Conversation.AddFile(path, content)
	if ctx.Stats != nil {
		ctx.Stats.FilesRead++
	}
	ctx.printf("📄 Added %s to context (%d lines)\n", path, strings.Count(content, "\n")+1)
	return nil
}

func handleWrite(ctx *Context, args []string) error {
	if ctx.Generate == nil || ctx.Executor == nil {
		return errors.New("/write is not available in this session")
	}
	path := args[0]
	request := strings.Join(args[1:], " ")

	ctx.printf("✍️  Writing %s...\n", path)
	content, err := ctx.Generate(ctx.context(), session.WriteFilePrompt(path, request))
	if err != nil {
		return err
	}
	content = stripCodeFence(content)

	result := ctx.Executor.Execute(ctx.context(), tools.ToolCall{
		Name:   tools.WriteFile,
		Params: map[string]interface{}{"path": path, "content": content},
	})
	if !result.Success {
		return errors.New(result.Error)
	}

	op := "write"
	if result.BackupPath == "" {
		op = "create"
	}
	ctx.Conversation.TrackChange(session.FileChange{Path: path, Operation: op, BackupPath: result.BackupPath})
	ctx.Conversation.AddFile(path, content)
	if ctx.Stats != nil {
		ctx.Stats.FilesWritten++
	}
	ctx.printf("✅ Wrote %s (%d lines). Use /rollback to undo.\n", path, strings.Count(content, "\n")+1)
	return nil
}

// stripCodeFence removes one markdown code fence wrapping the whole text.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return s
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		return s
	}
	body := strings.TrimSuffix(t[nl+1:], "```")
	return strings.TrimRight(body, " \t\n") + "\n"
}

func handleContext(ctx *Context, args []string) error {
	if len(args) > 0 {
		query := strings.TrimSpace(strings.Join(args[1:], " "))
		if query == "" {
			return &ValidationError{Command: "/context", Arg: "query", Message: "required argument missing", Usage: "/context search <query>"}
		}
		results := ctx.Conversation.Search(query)
		if len(results) == 0 {
			ctx.printf("🔍 No messages match %q\n", query)
			return nil
		}
		ctx.printf("🔍 %d message(s) match %q:\n", len(results), query)
		for _, r := range results {
			ctx.println("  - " + firstLine(r, 80))
		}
		return nil
	}

	ctx.println(ctx.Conversation.BudgetSummary())
	if summary := ctx.Conversation.Summary(); summary != "" {
		ctx.println(summary)
	}
	return nil
}

func handleClear(ctx *Context, args []string) error {
	ctx.Conversation.Clear()
	ctx.println("🗑️  Context cleared")
	return nil
}

// =============================================================================
// TOOLS
// =============================================================================

func handleRollback(ctx *Context, args []string) error {
	msg, err := ctx.Conversation.RollbackLast()
	if errors.Is(err, session.ErrNoChanges) {
		ctx.println("📭 No changes to rollback")
		return nil
	}
	if err != nil {
		return err
	}
	ctx.println("✅ " + msg)
	return nil
}

func handleTools(ctx *Context, args []string) error {
	if ctx.Tools == nil {
		return errors.New("no tools registered")
	}
	ctx.println("🧰 Tools:")
	for _, t := range ctx.Tools.All() {
		ctx.printf("  %-16s %s\n", t.Name, t.Description)
	}
	return nil
}

func handleMCP(ctx *Context, args []string) error {
	if ctx.MCP == nil || len(ctx.MCP.Servers()) == 0 {
		msg := "no MCP servers configured"
		if ctx.MCPConfig != "" {
			msg += " (add them to " + ctx.MCPConfig + ")"
		}
		return errors.New(msg)
	}

	action := "list"
	if len(args) > 0 {
		action = strings.ToLower(args[0])
	}

	switch action {
	case "servers":
		connected := make(map[string]bool)
		for _, name := range ctx.MCP.Connected() {
			connected[name] = true
		}
		ctx.println("🔌 MCP Servers:")
		for _, name := range ctx.MCP.Servers() {
			mark := "○"
			if connected[name] {
				mark = "●"
			}
			ctx.printf("  %s %s\n", mark, name)
		}
		return nil

	case "call":
		reqs, err := parseCallRequests(args[1:])
		if err != nil {
			return err
		}
		return mcpCall(ctx, reqs)

	default:
		tools, err := ctx.MCP.ListTools(ctx.context())
		ctx.println("🔌 MCP Tools:")
		if len(tools) == 0 {
			ctx.println("  (none)")
		}
		for _, t := range tools {
			ctx.printf("  %s/%s - %s\n", t.Server, t.Name, t.Description)
		}
		if err != nil {
			ctx.println(mcp.FormatError(err))
		}
		return nil
	}
}

// parseCallRequests reads "tool [json]" pairs. A tool may be pinned to a
// server as server/tool.
func parseCallRequests(args []string) ([]mcp.CallRequest, error) {
	var reqs []mcp.CallRequest
	for _, arg := range args {
		if strings.HasPrefix(strings.TrimSpace(arg), "{") {
			if len(reqs) == 0 {
				return nil, &ValidationError{Command: "/mcp", Arg: "tool", Message: "arguments before a tool name", Usage: "/mcp call <tool> [json] ..."}
			}
			last := &reqs[len(reqs)-1]
			if last.Args != nil {
				return nil, &ValidationError{Command: "/mcp", Arg: "json", Message: "two argument objects for " + last.Tool}
			}
			if err := json.Unmarshal([]byte(arg), &last.Args); err != nil {
				return nil, fmt.Errorf("invalid arguments for %s: %w", last.Tool, err)
			}
			continue
		}
		req := mcp.CallRequest{Tool: arg}
		if server, tool, ok := strings.Cut(arg, "/"); ok {
			req.Server, req.Tool = server, tool
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return nil, &ValidationError{Command: "/mcp", Arg: "tool", Message: "required argument missing", Usage: "/mcp call <tool> [json] ..."}
	}
	for i := range reqs {
		if reqs[i].Args == nil {
			reqs[i].Args = map[string]any{}
		}
	}
	return reqs, nil
}

func mcpCall(ctx *Context, reqs []mcp.CallRequest) error {
	for _, r := range reqs {
		if r.Server == "" {
			// Unpinned tools resolve against connected servers only.
			if _, err := ctx.MCP.ListTools(ctx.context()); err != nil {
				ctx.logger().Warn("MCP tool listing incomplete", zap.Error(err))
			}
			break
		}
	}

	for _, res := range ctx.MCP.CallParallel(ctx.context(), reqs) {
		ctx.printf("🔧 %s (%s)\n", res.Request.Tool, res.Duration.Round(time.Millisecond))
		if res.Err != nil {
			ctx.println(mcp.FormatError(res.Err))
			continue
		}
		ctx.println(res.Output)
	}
	return nil
}

// =============================================================================
// SESSION
// =============================================================================

func handleModel(ctx *Context, args []string) error {
	if ctx.Models == nil {
		return errors.New("model switching is not available")
	}

	if len(args) > 0 {
		name := args[0]
		ctx.Models.SetModel(name)
		ctx.Conversation.Model = name
		ctx.printf("✅ Switched to model: %s\n", name)
		return nil
	}

	current := ctx.Models.Model()
	ctx.printf("🤖 Current model: %s\n", current)
	if ctx.Lister == nil {
		return nil
	}
	models, err := ctx.Lister.ListModels(ctx.context())
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	ctx.println("\nInstalled models:")
	for _, m := range models {
		mark := " "
		if m.Name == current {
			mark = "*"
		}
		ctx.printf("  %s %-32s %s\n", mark, m.Name, m.FormatSize())
	}
	return nil
}

func handleStats(ctx *Context, args []string) error {
	if ctx.Stats != nil {
		ctx.println(ctx.Stats.Display())
	}
	if ctx.Cache != nil {
		ctx.println("Cache: " + ctx.Cache.Stats().String())
	}
	return nil
}

func handleCache(ctx *Context, args []string) error {
	if ctx.Cache == nil {
		ctx.println("💾 Cache disabled")
		return nil
	}
	if len(args) > 0 && strings.EqualFold(args[0], "clear") {
		ctx.Cache.Clear()
		ctx.println("🗑️  Cache cleared")
		return nil
	}
	ctx.println("💾 Cache: " + ctx.Cache.Stats().String())
	return nil
}

func handleSave(ctx *Context, args []string) error {
	if ctx.Store == nil {
		return errors.New("session persistence is disabled")
	}
	if err := ctx.Store.Save(ctx.context(), ctx.Conversation); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	ctx.printf("💾 Session saved: %s\n", ctx.Conversation.Name)
	return nil
}

func handleSessions(ctx *Context, args []string) error {
	if ctx.Store == nil {
		return errors.New("session persistence is disabled")
	}
	metas, err := ctx.Store.List(ctx.context())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(metas) == 0 {
		ctx.println("📚 No saved sessions")
		return nil
	}
	ctx.println("📚 Saved sessions:")
	for _, m := range metas {
		mark := " "
		if m.Name == ctx.Conversation.Name {
			mark = "*"
		}
		ctx.printf("  %s %-20s %3d msgs  %s  %s\n", mark, m.Name, m.MessageCount,
			m.UpdatedAt.Format("2006-01-02 15:04"), m.Preview)
	}
	return nil
}

// firstLine returns the first line of s, cut to max runes.
func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}
