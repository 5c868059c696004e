// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mcp connects to Model Context Protocol servers over stdio.
//
// Servers are listed in a JSON file:
//
//	{"servers": [{"name": "fs", "command": "mcp-fs", "args": ["."], "env": {}}]}
//
// A Pool starts each server on first use. CallParallel runs independent
// calls concurrently, each bounded by the pool's call timeout, and returns
// results in request order. A failed or timed-out call does not cancel its
// siblings.
package mcp
