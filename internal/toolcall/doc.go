// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package toolcall detects tool calls embedded in streamed model output.
//
// The wire format is
//
//	<tool_call>{"tool": "<name>", "parameters": { ... }}</tool_call>
//
// with one call per span and any number of spans per response. Delimiters
// cannot be escaped or nested: a delimiter inside a parameter value ends the
// span early and corrupts everything scanned after it.
//
// Scan is the stateless form: it consumes every complete span in a buffer
// and reports what is left. Scanner is the incremental form used while
// streaming; it keeps the position up to which the buffer has already been
// examined so each appended chunk costs time proportional to its own
// length, and it splits the stream into ordered text and call segments.
package toolcall
