// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ocli/internal/config"
	"github.com/jeranaias/ocli/internal/ollama"
	"github.com/jeranaias/ocli/internal/session"
	"github.com/jeranaias/ocli/internal/stream"
	"github.com/jeranaias/ocli/internal/tools"
)

// =============================================================================
// FAKES
// =============================================================================

// scriptedGenerator returns one body per call, repeating the last.
type scriptedGenerator struct {
	bodies []string
	err    error
	calls  int
	reqs   []ollama.GenerateRequest
}

func (g *scriptedGenerator) GenerateStream(ctx context.Context, req ollama.GenerateRequest) (io.ReadCloser, error) {
	g.reqs = append(g.reqs, req)
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	i := g.calls - 1
	if i >= len(g.bodies) {
		i = len(g.bodies) - 1
	}
	return io.NopCloser(strings.NewReader(g.bodies[i])), nil
}

func ndjson(t *testing.T, tokens ...string) string {
	t.Helper()
	var sb strings.Builder
	for _, tok := range tokens {
		line, err := json.Marshal(map[string]interface{}{"response": tok, "done": false})
		require.NoError(t, err)
		sb.Write(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(`{"response":"","done":true,"done_reason":"stop","eval_count":3}` + "\n")
	return sb.String()
}

func toolCallText(t *testing.T, name string, params map[string]interface{}) string {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{"tool": name, "parameters": params})
	require.NoError(t, err)
	return "<tool_call>" + string(payload) + "</tool_call>"
}

type testApp struct {
	*App
	gen   *scriptedGenerator
	store *session.MemoryStore
	out   *bytes.Buffer
	err   *bytes.Buffer
}

func newTestApp(t *testing.T, cfg *config.Config, bodies ...string) *testApp {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Model = "test-model"

	ta := &testApp{
		gen:   &scriptedGenerator{bodies: bodies},
		store: session.NewMemoryStore(),
		out:   &bytes.Buffer{},
		err:   &bytes.Buffer{},
	}
	app, err := NewApp(context.Background(), AppOptions{
		Config:    cfg,
		Generator: ta.gen,
		Store:     ta.store,
		Out:       ta.out,
		ErrOut:    ta.err,
	})
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	ta.App = app
	return ta
}

// =============================================================================
// TURN TESTS
// =============================================================================

func TestTurnStreamsAnswer(t *testing.T) {
	app := newTestApp(t, nil, ndjson(t, "Hello", " world"))

	resp, err := app.Turn(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello world", resp.Text)
	assert.Equal(t, stream.StateCompleted, resp.State)
	assert.Contains(t, app.out.String(), "AI: Hello world\n")

	msgs := app.Conversation().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, session.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello world", msgs[1].Content)
	assert.Equal(t, 1, app.Stats().MessagesSent)

	require.Len(t, app.gen.reqs, 1)
	assert.Equal(t, "test-model", app.gen.reqs[0].Model)
	assert.True(t, strings.HasSuffix(app.gen.reqs[0].Prompt, "\n\nUser: hi"))
}

func TestTurnServesRepeatFromCache(t *testing.T) {
	app := newTestApp(t, nil, ndjson(t, "cached answer"))

	_, err := app.Turn(context.Background(), "same question")
	require.NoError(t, err)
	app.out.Reset()

	resp, err := app.Turn(context.Background(), "same question")
	require.NoError(t, err)

	assert.Equal(t, 1, app.gen.calls)
	assert.Equal(t, "cached answer", resp.Text)
	assert.Equal(t, "AI: cached answer\n", app.out.String())
	assert.Equal(t, 1, app.Stats().CacheHits)
	assert.Len(t, app.Conversation().Messages, 4)
}

func TestTurnWithoutCache(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Enabled = false
	app := newTestApp(t, cfg, ndjson(t, "answer"))

	for i := 0; i < 2; i++ {
		_, err := app.Turn(context.Background(), "same question")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, app.gen.calls)
	assert.Zero(t, app.Stats().CacheHits)
}

func TestTurnTracksWritesAndSkipsCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	body := ndjson(t,
		"Writing. ",
		toolCallText(t, tools.WriteFile, map[string]interface{}{"path": path, "content": "v1"}),
		" Done",
	)
	app := newTestApp(t, nil, body)

	_, err := app.Turn(context.Background(), "write it")
	require.NoError(t, err)
	_, err = app.Turn(context.Background(), "write it")
	require.NoError(t, err)

	// Responses that ran tools are never served from the cache.
	assert.Equal(t, 2, app.gen.calls)

	changes := app.Conversation().Changes
	require.Len(t, changes, 2)
	assert.Equal(t, "create", changes[0].Operation)
	assert.Empty(t, changes[0].BackupPath)
	assert.Equal(t, "write", changes[1].Operation)
	assert.Equal(t, path+".backup", changes[1].BackupPath)
	assert.Equal(t, 2, app.Stats().FilesWritten)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
	assert.Contains(t, app.out.String(), "🔧 Executing: write_file")
}

func TestTurnFailureKeepsUserMessage(t *testing.T) {
	app := newTestApp(t, nil)
	app.gen.err = ollama.ErrNotRunning

	resp, err := app.Turn(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, ollama.IsNotRunning(err))
	assert.Equal(t, stream.StateFailed, resp.State)

	msgs := app.Conversation().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
}

func TestTurnAutosaves(t *testing.T) {
	cfg := config.Default()
	cfg.Context.AutosaveEvery = 2
	app := newTestApp(t, cfg, ndjson(t, "ok"))

	_, err := app.Turn(context.Background(), "first")
	require.NoError(t, err)

	metas, err := app.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, DefaultSessionName, metas[0].Name)
	assert.Equal(t, 2, metas[0].MessageCount)
}

func TestNewAppResumesSession(t *testing.T) {
	store := session.NewMemoryStore()
	conv := session.NewConversation("work", 0)
	conv.AddMessage(session.RoleUser, "earlier")
	require.NoError(t, store.Save(context.Background(), conv))

	app, err := NewApp(context.Background(), AppOptions{
		Config:    config.Default(),
		Generator: &scriptedGenerator{},
		Store:     store,
		Session:   "work",
		Out:       io.Discard,
	})
	require.NoError(t, err)

	assert.Equal(t, conv.ID, app.Conversation().ID)
	require.Len(t, app.Conversation().Messages, 1)
	assert.Equal(t, "earlier", app.Conversation().Messages[0].Content)
}

func TestQueueReloadKeepsNewest(t *testing.T) {
	app := newTestApp(t, nil, ndjson(t, "ok"))

	second := config.Default()
	second.Model = "second"
	third := config.Default()
	third.Model = "third"
	app.QueueReload(second)
	app.QueueReload(third)

	_, err := app.Turn(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "third", app.Model())
	assert.Equal(t, "third", app.Conversation().Model)
	assert.Equal(t, "third", app.gen.reqs[0].Model)
	assert.Contains(t, app.out.String(), "Config reloaded: model is now third")
}

func TestCommandUsesSession(t *testing.T) {
	app := newTestApp(t, nil)

	require.NoError(t, app.Command(context.Background(), "/model other"))
	assert.Equal(t, "other", app.Model())
	assert.Equal(t, "other", app.Conversation().Model)

	require.NoError(t, app.Command(context.Background(), "/save"))
	metas, err := app.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "other", metas[0].Model)
}

func TestWriteCommandUsesModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.sh")
	require.NoError(t, os.WriteFile(path, []byte("echo old\n"), 0o644))
	app := newTestApp(t, nil, ndjson(t, "```sh\n", "echo hi\n", "```"))

	require.NoError(t, app.Command(context.Background(), "/write "+path+" a greeting script"))
	require.Len(t, app.gen.reqs, 1)
	assert.Equal(t, "test-model", app.gen.reqs[0].Model)
	assert.Contains(t, app.gen.reqs[0].Prompt, "Write content for file '"+path+"' based on: a greeting script")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "echo hi\n", string(data))
	require.Len(t, app.Conversation().Changes, 1)
	assert.Equal(t, 1, app.Stats().FilesWritten)
	// The answer is collected, not streamed to the terminal.
	assert.NotContains(t, app.out.String(), "echo hi")

	require.NoError(t, app.Command(context.Background(), "/rollback"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "echo old\n", string(data))
}

func TestWriteCommandModelError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.txt")
	app := newTestApp(t, nil, `{"error":"model crashed"}`+"\n")

	err := app.Command(context.Background(), "/write "+path+" anything")
	var cerr *ollama.ClientError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ollama.ErrTypeInvalidResponse, cerr.Type)
	assert.NoFileExists(t, path)
}

// =============================================================================
// REPL TESTS
// =============================================================================

func TestRunREPL(t *testing.T) {
	app := newTestApp(t, nil, ndjson(t, "Hello"))

	in := newScanReader(strings.NewReader("hello\n\n/stats\n/nope\nexit\nnever sent\n"), nil)
	require.NoError(t, app.RunREPL(context.Background(), in))

	out := app.out.String()
	assert.Contains(t, out, "🤖 OCLI - Using test-model (Session: default)")
	assert.Contains(t, out, "AI: Hello\n")
	assert.Contains(t, out, "tokens")
	assert.Contains(t, out, "💾 Session saved. Goodbye!")
	assert.Contains(t, app.err.String(), "Unknown command: nope")

	assert.Equal(t, 1, app.gen.calls)
	metas, err := app.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, 2, metas[0].MessageCount)
}

func TestRunREPLExitCommand(t *testing.T) {
	app := newTestApp(t, nil)

	in := newScanReader(strings.NewReader("/exit\nhello\n"), nil)
	require.NoError(t, app.RunREPL(context.Background(), in))

	assert.Zero(t, app.gen.calls)
	assert.Contains(t, app.out.String(), "Goodbye!")
}

func TestRunREPLEndOfInput(t *testing.T) {
	app := newTestApp(t, nil, ndjson(t, "ok"))

	in := newScanReader(strings.NewReader("hello"), nil)
	require.NoError(t, app.RunREPL(context.Background(), in))

	assert.Equal(t, 1, app.gen.calls)
	assert.Contains(t, app.out.String(), "Goodbye!")
}

func TestRunREPLTurnErrorContinues(t *testing.T) {
	app := newTestApp(t, nil)
	app.gen.err = ollama.ErrNotRunning

	in := newScanReader(strings.NewReader("one\ntwo\n"), nil)
	require.NoError(t, app.RunREPL(context.Background(), in))

	assert.Equal(t, 2, app.gen.calls)
	assert.Contains(t, app.err.String(), "ollama serve")
}

func TestScanReaderPrompt(t *testing.T) {
	var prompts bytes.Buffer
	r := newScanReader(strings.NewReader("a\n"), &prompts)

	line, err := r.Prompt("> ")
	require.NoError(t, err)
	assert.Equal(t, "a", line)

	_, err = r.Prompt("> ")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "> > ", prompts.String())
}

func TestIsExitWord(t *testing.T) {
	for _, w := range []string{"exit", "quit", "q", "EXIT", "Quit"} {
		assert.True(t, isExitWord(w), w)
	}
	for _, w := range []string{"", "exits", "/exit", "quite"} {
		assert.False(t, isExitWord(w), w)
	}
}

// =============================================================================
// SUBCOMMAND HELPERS
// =============================================================================

func TestAskPrompt(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "args joined", args: []string{"list", "files"}, want: "list files"},
		{name: "stdin without args", stdin: "  from pipe \n", want: "from pipe"},
		{name: "dash reads stdin", stdin: "dash", args: []string{"-"}, want: "dash"},
		{name: "empty stdin", stdin: " \n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := askPrompt(strings.NewReader(tt.stdin), tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseToolCall(t *testing.T) {
	call, err := parseToolCall([]string{"execute_bash", "command=ls -la | wc -l", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "execute_bash", call.Name)
	assert.Equal(t, map[string]interface{}{"command": "ls -la | wc -l", "note": "a=b"}, call.Params)

	_, err = parseToolCall([]string{"read_file", "path"})
	assert.Error(t, err)
	_, err = parseToolCall([]string{"read_file", "=x"})
	assert.Error(t, err)
}

// =============================================================================
// COMMAND TREE TESTS
// =============================================================================

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(config.ResetGlobalForTesting)
	t.Setenv("OCLI_MODEL", "")
	t.Setenv("OCLI_OLLAMA_URL", "")
	t.Setenv("OCLI_LOG_LEVEL", "")

	root := NewRootCommand(BuildInfo{Version: "1.2.3", GitCommit: "abc123", BuildDate: "2025-01-01"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ocli 1.2.3")
	assert.Contains(t, out, "commit:  abc123")
}

func TestConfigSetGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, err := runRoot(t, "--config", path, "config", "set", "stream.batch_size", "7")
	require.NoError(t, err)
	_, err = runRoot(t, "--config", path, "config", "set", "model", "llama3.1")
	require.NoError(t, err)

	out, err := runRoot(t, "--config", path, "config", "get", "stream.batch_size")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)

	out, err = runRoot(t, "--config", path, "config", "get", "model")
	require.NoError(t, err)
	assert.Equal(t, "llama3.1\n", out)

	// Flags override the file for reads.
	out, err = runRoot(t, "--config", path, "-m", "flagged", "config", "get", "model")
	require.NoError(t, err)
	assert.Equal(t, "flagged\n", out)

	out, err = runRoot(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

func TestConfigSetRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, err := runRoot(t, "--config", path, "config", "set", "no.such_key", "1")
	assert.Error(t, err)
	_, err = runRoot(t, "--config", path, "config", "set", "stream.batch_size", "-1")
	assert.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "invalid values are not written")
}

func TestConfigKeys(t *testing.T) {
	out, err := runRoot(t, "config", "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "stream.batch_size\n")
	assert.Contains(t, out, "ollama.url\n")
}

func TestToolsCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := runRoot(t, "--config", path, "tools")
	require.NoError(t, err)
	for _, name := range []string{tools.ReadFile, tools.WriteFile, tools.ExecuteBash, tools.SearchFiles, tools.ListDirectory} {
		assert.Contains(t, out, name)
	}

	file := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello tools\n"), 0o644))

	out, err = runRoot(t, "--config", path, "tools", "run", tools.ReadFile, "path="+file)
	require.NoError(t, err)
	assert.Contains(t, out, "hello tools")

	_, err = runRoot(t, "--config", path, "tools", "run", tools.ReadFile, "path="+file+".missing")
	assert.Error(t, err)

	_, err = runRoot(t, "--config", path, "tools", "run", "no_such_tool")
	assert.Error(t, err)
}

func TestSessionsCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	_, err := runRoot(t, "--config", path, "config", "set", "context.session_dir", filepath.Join(dir, "sessions"))
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sessions"), 0o700))
	out, err := runRoot(t, "--config", path, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved sessions")

	store, err := session.OpenSQLiteStore(filepath.Join(dir, "sessions", "sessions.db"))
	require.NoError(t, err)
	conv := session.NewConversation("work", 0)
	conv.Model = "m1"
	conv.AddMessage(session.RoleUser, "first question")
	conv.AddMessage(session.RoleAssistant, "first answer")
	require.NoError(t, store.Save(context.Background(), conv))
	require.NoError(t, store.Close())

	out, err = runRoot(t, "--config", path, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "work")
	assert.Contains(t, out, "first question")

	out, err = runRoot(t, "--config", path, "sessions", "show", "work")
	require.NoError(t, err)
	assert.Contains(t, out, "You:\nfirst question")
	assert.Contains(t, out, "AI:\nfirst answer")

	_, err = runRoot(t, "--config", path, "sessions", "show", "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)

	out, err = runRoot(t, "--config", path, "sessions", "delete", "work")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted session work")

	_, err = runRoot(t, "--config", path, "sessions", "delete", "work")
	assert.ErrorIs(t, err, session.ErrNotFound)
}
