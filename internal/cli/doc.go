// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ocli command line.
//
// The cobra command tree is:
//
//	ocli [chat]            interactive REPL (default)
//	ocli ask <prompt>      stream a single turn and exit
//	ocli tools [run]       list or run the built-in tools
//	ocli sessions          list, show and delete saved sessions
//	ocli config            show, get and set configuration
//	ocli version           print build information
//
// An App ties one conversation to the streaming pump, the tool executor,
// the response cache, the MCP pool and the session store. App.Turn runs one
// user message through them; App.RunREPL drives turns and slash commands
// from a LineReader.
//
// Terminal handling follows the usual rules: colors are disabled when
// stdout is not a TTY or NO_COLOR is set, and the liner line editor is
// only used when stdin is a terminal.
package cli
