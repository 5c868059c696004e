// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"time"

	"github.com/tidwall/gjson"
)

// =============================================================================
// STREAM CHUNK
// =============================================================================

// StreamChunk is one decoded line of a streaming generate response.
type StreamChunk struct {
	// Response is the text fragment; HasResponse reports whether the line
	// carried a "response" string at all.
	Response    string
	HasResponse bool

	// Done marks the final line of the stream
	Done       bool
	DoneReason string

	// Server-side statistics, present on the final line
	EvalCount       int
	EvalDuration    time.Duration
	PromptEvalCount int

	// Error is set when the server reported an error mid-stream
	Error string
}

// =============================================================================
// LINE DECODER
// =============================================================================

// LineDecoder reads newline-delimited JSON objects from a streaming body.
//
// Lines are only decoded once complete, so a multi-byte character or a JSON
// object split across network reads is reassembled first. Invalid UTF-8
// bytes are dropped from a line before decoding, and lines that are not a
// JSON object are skipped. Neither is an error.
type LineDecoder struct {
	reader  *bufio.Reader
	eof     bool
	skipped int

	// OnSkip, when set, is called with each line that could not be decoded.
	OnSkip func(line []byte)
}

// NewLineDecoder creates a decoder over r.
func NewLineDecoder(r io.Reader) *LineDecoder {
	return &LineDecoder{reader: bufio.NewReaderSize(r, 32*1024)}
}

// Next returns the next decoded chunk. It returns io.EOF when the body ends
// and a *ClientError when reading fails.
func (d *LineDecoder) Next() (StreamChunk, error) {
	for {
		if d.eof {
			return StreamChunk{}, io.EOF
		}

		line, err := d.reader.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return StreamChunk{}, readError(err)
			}
			// A final line without a trailing newline is still decoded.
			d.eof = true
		}

		chunk, ok := d.decode(line)
		if ok {
			return chunk, nil
		}
	}
}

// Skipped returns how many non-empty lines could not be decoded.
func (d *LineDecoder) Skipped() int {
	return d.skipped
}

func (d *LineDecoder) decode(line []byte) (StreamChunk, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return StreamChunk{}, false
	}

	line = bytes.ToValidUTF8(line, nil)
	if !gjson.ValidBytes(line) {
		d.skip(line)
		return StreamChunk{}, false
	}

	obj := gjson.ParseBytes(line)
	if !obj.IsObject() {
		d.skip(line)
		return StreamChunk{}, false
	}

	var chunk StreamChunk
	if resp := obj.Get("response"); resp.Type == gjson.String {
		chunk.Response = resp.String()
		chunk.HasResponse = true
	}
	chunk.Done = obj.Get("done").Bool()
	chunk.DoneReason = obj.Get("done_reason").String()
	chunk.EvalCount = int(obj.Get("eval_count").Int())
	chunk.EvalDuration = time.Duration(obj.Get("eval_duration").Int())
	chunk.PromptEvalCount = int(obj.Get("prompt_eval_count").Int())
	if e := obj.Get("error"); e.Exists() {
		chunk.Error = e.String()
	}
	return chunk, true
}

func (d *LineDecoder) skip(line []byte) {
	d.skipped++
	if d.OnSkip != nil {
		d.OnSkip(line)
	}
}

func readError(err error) error {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return err
	}
	if classified := transportError(err); classified.(*ClientError).Type != ErrTypeConnection {
		return classified
	}
	return &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
}
