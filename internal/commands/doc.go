// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system for the chat REPL.
//
// Input starting with "/" is parsed into a command name and quote-aware
// arguments, looked up in a Registry (names and aliases), validated against
// the command's argument definitions and run against a Context holding the
// conversation, statistics, cache and MCP pool of the running session.
//
// # Key Types
//
//   - Registry: command table with the built-in commands
//   - Context: dependencies and output for a handler
//   - Parser / ParseResult: split input into command and arguments
//   - Completer: line completion for the REPL editor
//
// # Built-in Commands
//
//   - /help: Show available commands
//   - /read: Load a file into the conversation context
//   - /context: Show the context budget, working files and recent changes
//   - /stats, /cache: Session and cache statistics
//   - /rollback: Restore the last file the model wrote
//   - /clear: Clear the conversation context
//   - /mcp: List and call MCP server tools
//   - /model: Show or switch the model
//   - /save, /sessions: Session persistence
//   - /exit: Save and leave the REPL
//
// # Usage
//
//	reg := commands.NewRegistry()
//	err := reg.Execute(cctx, "/read main.go")
//	if errors.Is(err, commands.ErrExit) {
//	    return
//	}
//
// Unknown names produce an UnknownCommandError carrying the closest command
// within two edits, available through Hint.
package commands
