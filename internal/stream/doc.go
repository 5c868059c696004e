// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream drives one streaming generate request from the inference
// server to the terminal, executing tool calls as they complete.
//
// A Pump run moves through
//
//	Connecting -> Streaming -> (ToolDispatch -> Streaming)* -> Draining -> Completed
//
// and reaches Failed from Connecting or Streaming on a transport error.
//
// Each decoded fragment is appended to the full response and fed to a
// toolcall.Scanner. Plain text is rendered through a fixed-size output
// buffer; every completed tool call is executed in arrival order, one at a
// time, and its result is printed inline before rendering resumes. The
// buffer is always flushed when the stream ends, whether it completed or
// failed.
//
// A Run holds no deadline of its own. Wrap the context to bound a turn;
// cancelling it drops the in-flight request. Text already flushed to the
// terminal stays there.
package stream
