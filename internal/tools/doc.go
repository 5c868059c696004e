// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools provides the local tool catalog and the executor that runs
// tool calls emitted by the model.
//
// # Key Types
//
//   - Tool: registry entry with name, description and ordered parameters
//   - Registry: static catalog, built once at startup
//   - ToolCall: a decoded invocation {tool, parameters}
//   - Result: Success(output) or Error(message)
//   - Executor: dispatches a ToolCall to its tool and records history
//
// # Built-in Tools
//
//   - read_file: read a file as text
//   - write_file: write a file, backing up an existing target first
//   - execute_bash: run a command through the shell, reporting exit code,
//     stdout and stderr
//   - search_files: find files by name pattern (doublestar globs)
//   - list_directory: list immediate entries of a directory
//
// Tool execution is a direct invocation of local OS facilities. There is no
// sandboxing and no resource limiting beyond the caller's context.
package tools
