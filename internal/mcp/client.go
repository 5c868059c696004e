// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolSpec describes a tool offered by a server.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Conn is a live connection to one server.
type Conn interface {
	Tools() []ToolSpec
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// Dialer starts a server and returns its connection.
type Dialer func(ctx context.Context, cfg ServerConfig) (Conn, error)

// =============================================================================
// STDIO CLIENT
// =============================================================================

// Client is a Conn over the server's stdin and stdout.
type Client struct {
	name    string
	session *sdkmcp.ClientSession
	tools   []ToolSpec
}

// Dial starts cfg's command, performs the MCP handshake and lists the
// server's tools.
func Dial(ctx context.Context, cfg ServerConfig) (Conn, error) {
	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "ocli",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, &sdkmcp.CommandTransport{Command: command(cfg)}, nil)
	if err != nil {
		return nil, fmt.Errorf("connection to MCP server %s failed: %w", cfg.Name, err)
	}

	c := &Client{name: cfg.Name, session: session}
	if err := c.refreshTools(ctx); err != nil {
		session.Close()
		return nil, fmt.Errorf("list tools from %s: %w", cfg.Name, err)
	}
	return c, nil
}

// command builds the server process. A configured environment extends the
// parent's instead of replacing it.
func command(cfg ServerConfig) *exec.Cmd {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	return cmd
}

func (c *Client) refreshTools(ctx context.Context) error {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}

	c.tools = make([]ToolSpec, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema := make(map[string]any)
		if t.InputSchema != nil {
			if m, ok := t.InputSchema.(map[string]any); ok {
				schema = m
			}
		}
		c.tools = append(c.tools, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schema,
		})
	}
	return nil
}

// Tools returns the tools listed at connect time.
func (c *Client) Tools() []ToolSpec {
	return c.tools
}

// CallTool invokes a tool and returns its text content. A result flagged
// as an error by the server is returned as an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := c.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s returned error: %s", name, formatContent(result.Content))
	}
	return formatContent(result.Content), nil
}

// Close ends the session and stops the server process.
func (c *Client) Close() error {
	return c.session.Close()
}

// formatContent joins text content; other content kinds are JSON-encoded.
func formatContent(content []sdkmcp.Content) string {
	var sb strings.Builder
	for _, c := range content {
		switch v := c.(type) {
		case *sdkmcp.TextContent:
			sb.WriteString(v.Text)
		default:
			if data, err := json.Marshal(c); err == nil {
				sb.Write(data)
			}
		}
	}
	return sb.String()
}
