// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ocli/internal/cache"
	"github.com/jeranaias/ocli/internal/mcp"
	"github.com/jeranaias/ocli/internal/ollama"
	"github.com/jeranaias/ocli/internal/session"
	"github.com/jeranaias/ocli/internal/tools"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fakeModels struct {
	model string
}

func (f *fakeModels) Model() string         { return f.model }
func (f *fakeModels) SetModel(name string) { f.model = name }

type fakeLister struct {
	models []ollama.ModelInfo
	err    error
}

func (f fakeLister) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return f.models, f.err
}

type fakeConn struct{}

func (fakeConn) Tools() []mcp.ToolSpec {
	return []mcp.ToolSpec{{Name: "echo", Description: "Echo input"}}
}

func (fakeConn) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if name != "echo" {
		return "", errors.New("tool " + name + " not found")
	}
	text, _ := args["text"].(string)
	return text, nil
}

func (fakeConn) Close() error { return nil }

func newTestContext(t *testing.T) (*Context, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &Context{
		Ctx:          context.Background(),
		Out:          &out,
		Conversation: session.NewConversation("work", 8000),
		Stats:        &session.Stats{},
	}, &out
}

func run(t *testing.T, ctx *Context, input string) error {
	t.Helper()
	return NewRegistry().Execute(ctx, input)
}

// =============================================================================
// PARSER TESTS
// =============================================================================

func TestIsCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"/help", true},
		{"/model qwen", true},
		{"  /help", true},
		{"hello", false},
		{"hello /help", false},
		{"", false},
		{"/", true},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, IsCommand(tc.input), "IsCommand(%q)", tc.input)
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"plain", "a b  c", []string{"a", "b", "c"}},
		{"double quotes", `"hello world" x`, []string{"hello world", "x"}},
		{"single quotes keep json", `'{"a": 1}'`, []string{`{"a": 1}`}},
		{"escaped quote", `"say \"hi\""`, []string{`say "hi"`}},
		{"empty quoted", `a ""`, []string{"a", ""}},
		{"unicode", "héllo wörld", []string{"héllo", "wörld"}},
		{"empty", "", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, ParseArgs(tc.input)); diff != "" {
				t.Errorf("ParseArgs(%q) mismatch (-want +got):\n%s", tc.input, diff)
			}
		})
	}
}

func TestParserParse(t *testing.T) {
	p := NewParser(NewRegistry())

	res := p.Parse("  /model   qwen2.5:7b ")
	require.True(t, res.IsCommand)
	assert.Equal(t, "/model", res.CommandName)
	assert.Equal(t, []string{"qwen2.5:7b"}, res.Args)
	assert.Equal(t, "qwen2.5:7b", res.RawArgs)
	require.NotNil(t, res.Command)
	assert.Equal(t, "/model", res.Command.Name)

	res = p.Parse("/M")
	require.NotNil(t, res.Command)
	assert.Equal(t, "/model", res.Command.Name)

	res = p.Parse("hello there")
	assert.False(t, res.IsCommand)
	assert.Nil(t, res.Command)

	res = p.Parse("/nope")
	assert.True(t, res.IsCommand)
	assert.Nil(t, res.Command)
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		want string
	}{
		{"/help", "/help"},
		{"/h", "/help"},
		{"/?", "/help"},
		{"/quit", "/exit"},
		{"/q", "/exit"},
		{"/undo", "/rollback"},
		{"/READ", "/read"},
	}
	for _, tc := range tests {
		cmd := r.Get(tc.name)
		require.NotNil(t, cmd, tc.name)
		assert.Equal(t, tc.want, cmd.Name)
	}
	assert.Nil(t, r.Get("/nope"))
}

func TestRegistryRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register(&Command{
		Name:    "/stats",
		Handler: func(ctx *Context, args []string) error { called = true; return nil },
	})

	ctx, _ := newTestContext(t)
	require.NoError(t, r.Execute(ctx, "/stats"))
	assert.True(t, called)
}

func TestRegistryByCategory(t *testing.T) {
	r := NewRegistry()
	r.Register(&Command{Name: "/secret", Hidden: true, Handler: handleExit})

	groups := r.ByCategory()
	for _, cat := range categoryOrder {
		assert.NotEmpty(t, groups[cat], cat)
	}
	for _, cmds := range groups {
		for _, cmd := range cmds {
			assert.NotEqual(t, "/secret", cmd.Name)
		}
	}
	assert.NotContains(t, r.Names(), "/secret")
}

func TestSuggest(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		input string
		want  string
	}{
		{"/hepl", "/help"},
		{"/modle", "/model"},
		{"/stat", "/stats"},
		{"/cler", "/clear"},
		{"/rollbak", "/rollback"},
		{"/help", ""},
		{"/xyzzy", ""},
		{"/", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, r.Suggest(tc.input), "Suggest(%q)", tc.input)
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"help", "help", 0},
		{"hepl", "help", 2},
		{"kitten", "sitting", 3},
		{"héllo", "hello", 1},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, levenshteinDistance(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
	}
}

// =============================================================================
// EXECUTE TESTS
// =============================================================================

func TestExecuteUnknownCommand(t *testing.T) {
	ctx, _ := newTestContext(t)

	err := run(t, ctx, "/hepl")
	var unknown *UnknownCommandError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Unknown command: /hepl", err.Error())
	assert.Equal(t, "Did you mean /help?", Hint(err))

	err = run(t, ctx, "/xyzzy")
	assert.Equal(t, "Type /help for available commands", Hint(err))
}

func TestExecuteValidation(t *testing.T) {
	ctx, _ := newTestContext(t)

	err := run(t, ctx, "/read")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file", verr.Arg)
	assert.Equal(t, "Usage: /read <file>", Hint(err))

	err = run(t, ctx, "/cache purge")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "purge", verr.Got)
	assert.Contains(t, err.Error(), "expected: stats, clear")
}

func TestExecuteNotACommand(t *testing.T) {
	ctx, _ := newTestContext(t)
	assert.Error(t, run(t, ctx, "hello"))
}

func TestExit(t *testing.T) {
	ctx, _ := newTestContext(t)
	for _, input := range []string{"/exit", "/quit", "/q"} {
		assert.ErrorIs(t, run(t, ctx, input), ErrExit, input)
	}
}

// =============================================================================
// HANDLER TESTS
// =============================================================================

func TestHelp(t *testing.T) {
	ctx, out := newTestContext(t)
	require.NoError(t, run(t, ctx, "/help"))
	assert.Contains(t, out.String(), "# Commands")
	assert.Contains(t, out.String(), "| `/read <file>` | Load a file into the conversation context |")

	out.Reset()
	ctx.Render = func(md string) string { return "RENDERED\n" }
	require.NoError(t, run(t, ctx, "/help"))
	assert.Equal(t, "RENDERED\n", out.String())

	out.Reset()
	ctx.Render = nil
	require.NoError(t, run(t, ctx, "/help read"))
	assert.Contains(t, out.String(), "## /read")
	assert.Contains(t, out.String(), "Aliases: /r, /add")
	assert.Contains(t, out.String(), "- `file` (required): Path to the file")

	err := run(t, ctx, "/help nope")
	var unknown *UnknownCommandError
	assert.ErrorAs(t, err, &unknown)
}

func TestRead(t *testing.T) {
	ctx, out := newTestContext(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb"), 0o644))

	require.NoError(t, run(t, ctx, "/read "+path))
	assert.Equal(t, "📄 Added "+path+" to context (2 lines)\n", out.String())
	assert.Equal(t, "a\nb", ctx.Conversation.WorkingFiles[path])
	assert.Equal(t, 1, ctx.Stats.FilesRead)
}

func TestReadMissingFile(t *testing.T) {
	ctx, _ := newTestContext(t)
	dir := t.TempDir()

	missing := filepath.Join(dir, "missing.txt")
	err := run(t, ctx, "/read "+missing)
	var ferr *FileError
	require.ErrorAs(t, err, &ferr)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "File not found: "+missing, err.Error())
	assert.Equal(t, "Directory exists. Did you mean a file in "+dir+"?", Hint(err))

	err = run(t, ctx, "/read "+filepath.Join(dir, "nodir", "x.txt"))
	assert.Equal(t, "Check the path and try again", Hint(err))
}

func TestContextSummaryAndSearch(t *testing.T) {
	ctx, out := newTestContext(t)
	ctx.Conversation.AddMessage(session.RoleUser, "hello world")
	ctx.Conversation.AddMessage(session.RoleAssistant, "goodbye")
	ctx.Conversation.AddFile("main.go", "package main")

	require.NoError(t, run(t, ctx, "/context"))
	assert.Contains(t, out.String(), "📝 Context Summary:")
	assert.Contains(t, out.String(), "Messages: 2")
	assert.Contains(t, out.String(), "  - main.go")

	out.Reset()
	require.NoError(t, run(t, ctx, "/context search HELLO"))
	assert.Equal(t, "🔍 1 message(s) match \"HELLO\":\n  - hello world\n", out.String())

	out.Reset()
	require.NoError(t, run(t, ctx, "/context search nothing"))
	assert.Equal(t, "🔍 No messages match \"nothing\"\n", out.String())

	var verr *ValidationError
	assert.ErrorAs(t, run(t, ctx, "/context search"), &verr)
}

func TestClear(t *testing.T) {
	ctx, out := newTestContext(t)
	ctx.Conversation.AddMessage(session.RoleUser, "hi")
	ctx.Conversation.AddFile("a.go", "x")

	require.NoError(t, run(t, ctx, "/clear"))
	assert.Equal(t, "🗑️  Context cleared\n", out.String())
	assert.Empty(t, ctx.Conversation.Messages)
	assert.Empty(t, ctx.Conversation.WorkingFiles)
}

func TestRollback(t *testing.T) {
	ctx, out := newTestContext(t)

	require.NoError(t, run(t, ctx, "/rollback"))
	assert.Equal(t, "📭 No changes to rollback\n", out.String())

	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	backup := path + ".backup"
	require.NoError(t, os.WriteFile(path, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(backup, []byte("old"), 0o644))
	ctx.Conversation.TrackChange(session.FileChange{Path: path, Operation: "write", BackupPath: backup})

	out.Reset()
	require.NoError(t, run(t, ctx, "/undo"))
	assert.Equal(t, "✅ Rolled back: "+path+"\n", out.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assert.NoFileExists(t, backup)
}

func TestWrite(t *testing.T) {
	ctx, out := newTestContext(t)
	ctx.Executor = tools.NewExecutor(tools.NewRegistry())
	var prompts []string
	answer := "```go\npackage main\n```"
	ctx.Generate = func(_ context.Context, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return answer, nil
	}

	path := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, run(t, ctx, "/write "+path+" an empty main package"))
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Write content for file '"+path+"' based on: an empty main package")
	assert.Equal(t, "✍️  Writing "+path+"...\n✅ Wrote "+path+" (2 lines). Use /rollback to undo.\n", out.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))
	assert.Equal(t, "package main\n", ctx.Conversation.WorkingFiles[path])
	assert.Equal(t, 1, ctx.Stats.FilesWritten)

	answer = "package other\n"
	require.NoError(t, run(t, ctx, "/w "+path+" rename the package"))
	require.Len(t, ctx.Conversation.Changes, 2)
	assert.Equal(t, "create", ctx.Conversation.Changes[0].Operation)
	assert.Equal(t, "write", ctx.Conversation.Changes[1].Operation)
	assert.Equal(t, path+".backup", ctx.Conversation.Changes[1].BackupPath)

	require.NoError(t, run(t, ctx, "/rollback"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))
}

func TestWriteErrors(t *testing.T) {
	ctx, _ := newTestContext(t)
	path := filepath.Join(t.TempDir(), "x.txt")
	assert.EqualError(t, run(t, ctx, "/write "+path+" anything"), "/write is not available in this session")

	var verr *ValidationError
	assert.ErrorAs(t, run(t, ctx, "/write "+path), &verr)

	ctx.Executor = tools.NewExecutor(tools.NewRegistry())
	ctx.Generate = func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	}
	assert.EqualError(t, run(t, ctx, "/write "+path+" anything"), "model unavailable")
	assert.NoFileExists(t, path)
	assert.Empty(t, ctx.Conversation.Changes)
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"```\nx\n```", "x\n"},
		{"```python\nprint(1)\n\n```\n", "print(1)\n"},
		{"```inline```", "```inline```"},
		{"text\n```\ncode\n```", "text\n```\ncode\n```"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripCodeFence(tt.in), tt.in)
	}
}

func TestTools(t *testing.T) {
	ctx, out := newTestContext(t)
	assert.Error(t, run(t, ctx, "/tools"))

	ctx.Tools = tools.NewRegistry()
	require.NoError(t, run(t, ctx, "/tools"))
	for _, name := range []string{tools.ReadFile, tools.WriteFile, tools.ExecuteBash, tools.SearchFiles, tools.ListDirectory} {
		assert.Contains(t, out.String(), name)
	}
}

func TestModel(t *testing.T) {
	ctx, out := newTestContext(t)
	assert.Error(t, run(t, ctx, "/model"))

	models := &fakeModels{model: "a"}
	ctx.Models = models
	ctx.Lister = fakeLister{models: []ollama.ModelInfo{{Name: "a", Size: 2048}, {Name: "b"}}}

	require.NoError(t, run(t, ctx, "/model"))
	assert.Contains(t, out.String(), "🤖 Current model: a\n")
	assert.Contains(t, out.String(), "  * a ")
	assert.Contains(t, out.String(), "2.0 KB")
	assert.Contains(t, out.String(), "    b ")

	out.Reset()
	require.NoError(t, run(t, ctx, "/model b"))
	assert.Equal(t, "✅ Switched to model: b\n", out.String())
	assert.Equal(t, "b", models.model)
	assert.Equal(t, "b", ctx.Conversation.Model)

	ctx.Lister = fakeLister{err: errors.New("connection refused")}
	err := run(t, ctx, "/model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list models")
}

func TestStatsAndCache(t *testing.T) {
	ctx, out := newTestContext(t)
	ctx.Stats.MessagesSent = 3

	require.NoError(t, run(t, ctx, "/cache"))
	assert.Equal(t, "💾 Cache disabled\n", out.String())

	c, err := cache.New(10)
	require.NoError(t, err)
	c.Put("p", "m", "r")
	ctx.Cache = c

	out.Reset()
	require.NoError(t, run(t, ctx, "/stats"))
	assert.Contains(t, out.String(), "📊 Session Statistics")
	assert.Contains(t, out.String(), "Messages: 3")
	assert.Contains(t, out.String(), "Cache: 1/10 entries")

	out.Reset()
	require.NoError(t, run(t, ctx, "/cache clear"))
	assert.Equal(t, "🗑️  Cache cleared\n", out.String())
	assert.Equal(t, 0, c.Len())
}

func TestSaveAndSessions(t *testing.T) {
	ctx, out := newTestContext(t)
	assert.Error(t, run(t, ctx, "/save"))
	assert.Error(t, run(t, ctx, "/sessions"))

	ctx.Store = session.NewMemoryStore()
	require.NoError(t, run(t, ctx, "/sessions"))
	assert.Equal(t, "📚 No saved sessions\n", out.String())

	ctx.Conversation.AddMessage(session.RoleUser, "first question")
	out.Reset()
	require.NoError(t, run(t, ctx, "/save"))
	assert.Equal(t, "💾 Session saved: work\n", out.String())

	out.Reset()
	require.NoError(t, run(t, ctx, "/sessions"))
	assert.Contains(t, out.String(), "  * work")
	assert.Contains(t, out.String(), "first question")
}

// =============================================================================
// MCP TESTS
// =============================================================================

func newTestPool(t *testing.T) *mcp.Pool {
	t.Helper()
	cfg := &mcp.Config{Servers: []mcp.ServerConfig{{Name: "fs", Command: "fs-server"}}}
	pool := mcp.NewPool(cfg, mcp.WithDialer(func(ctx context.Context, sc mcp.ServerConfig) (mcp.Conn, error) {
		return fakeConn{}, nil
	}))
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestMCPNotConfigured(t *testing.T) {
	ctx, _ := newTestContext(t)
	ctx.MCPConfig = ".ocli/mcp_servers.json"

	err := run(t, ctx, "/mcp")
	require.Error(t, err)
	assert.Equal(t, "no MCP servers configured (add them to .ocli/mcp_servers.json)", err.Error())
}

func TestMCPListAndServers(t *testing.T) {
	ctx, out := newTestContext(t)
	ctx.MCP = newTestPool(t)

	require.NoError(t, run(t, ctx, "/mcp servers"))
	assert.Equal(t, "🔌 MCP Servers:\n  ○ fs\n", out.String())

	out.Reset()
	require.NoError(t, run(t, ctx, "/mcp list"))
	assert.Equal(t, "🔌 MCP Tools:\n  fs/echo - Echo input\n", out.String())

	out.Reset()
	require.NoError(t, run(t, ctx, "/mcp servers"))
	assert.Equal(t, "🔌 MCP Servers:\n  ● fs\n", out.String())
}

func TestMCPCall(t *testing.T) {
	ctx, out := newTestContext(t)
	ctx.MCP = newTestPool(t)

	require.NoError(t, run(t, ctx, `/mcp call echo '{"text": "hi"}' fs/missing`))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "🔧 echo ("))
	assert.Equal(t, "hi", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "🔧 missing ("))
	assert.Equal(t, "❌ tool missing not found", lines[3])
	assert.Equal(t, "💡 Use /mcp list to see available tools", lines[4])
}

func TestParseCallRequests(t *testing.T) {
	reqs, err := parseCallRequests([]string{"a", `{"x": 1}`, "s/b"})
	require.NoError(t, err)
	want := []mcp.CallRequest{
		{Tool: "a", Args: map[string]any{"x": float64(1)}},
		{Server: "s", Tool: "b", Args: map[string]any{}},
	}
	if diff := cmp.Diff(want, reqs); diff != "" {
		t.Errorf("parseCallRequests mismatch (-want +got):\n%s", diff)
	}

	for _, args := range [][]string{
		nil,
		{`{}`},
		{"a", "{bad"},
		{"a", `{}`, `{}`},
	} {
		_, err := parseCallRequests(args)
		assert.Error(t, err, "%q", args)
	}
}

// =============================================================================
// COMPLETION TESTS
// =============================================================================

func values(cs []Completion) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Value
	}
	return out
}

func TestCompleteCommands(t *testing.T) {
	c := NewCompleter(NewRegistry())

	assert.Equal(t, []string{"/model"}, values(c.Complete("/mo")))
	assert.Equal(t, "/c", values(c.Complete("/c"))[0])
	assert.Contains(t, values(c.Complete("/")), "/help")
	assert.Nil(t, c.Complete("hello"))
	assert.Nil(t, c.Complete("/nope "))
}

func TestCompleteArgs(t *testing.T) {
	c := NewCompleter(NewRegistry())
	c.ModelsFn = func() []string { return []string{"qwen2.5:7b", "llama3"} }

	assert.Equal(t, []string{"clear", "stats"}, values(c.Complete("/cache ")))
	assert.Equal(t, []string{"qwen2.5:7b"}, values(c.Complete("/model q")))
	assert.Nil(t, c.Complete("/clear x"))
	assert.Nil(t, c.Complete("/tools "))
}

func TestCompleteFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.go"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "beta"), 0o755))

	c := NewCompleter(NewRegistry())
	prefix := dir + string(filepath.Separator)

	assert.Equal(t, []string{prefix + "alpha.go"}, values(c.Complete("/read "+prefix+"a")))
	assert.Equal(t, []string{prefix + "beta" + string(filepath.Separator), prefix + "alpha.go"},
		values(c.Complete("/read "+prefix)))
	assert.Equal(t, []string{prefix + ".hidden"}, values(c.Complete("/read "+prefix+".")))
}

func TestCompleterLine(t *testing.T) {
	c := NewCompleter(NewRegistry())
	assert.Equal(t, []string{"/model"}, c.Line("/mo"))
	assert.Equal(t, []string{"/cache clear"}, c.Line("/cache cl"))
	assert.Nil(t, c.Line("plain text"))
}
