// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package toolcall

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/ocli/internal/tools"
)

// Delimiters around a tool-call payload.
const (
	OpenTag  = "<tool_call>"
	CloseTag = "</tool_call>"
)

var (
	openTag  = []byte(OpenTag)
	closeTag = []byte(CloseTag)
)

// =============================================================================
// PAYLOAD DECODING
// =============================================================================

// ParseError reports a delimited span whose payload is not a valid call.
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return "invalid tool call: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	errMissingTool       = errors.New(`missing "tool" name`)
	errMissingParameters = errors.New(`missing "parameters" object`)
)

// Decode parses the text between the delimiters. Both a non-empty "tool"
// string and a "parameters" object are required.
func Decode(payload string) (tools.ToolCall, error) {
	var raw struct {
		Tool       *string         `json:"tool"`
		Parameters json.RawMessage `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return tools.ToolCall{}, &ParseError{Payload: payload, Err: err}
	}
	if raw.Tool == nil || *raw.Tool == "" {
		return tools.ToolCall{}, &ParseError{Payload: payload, Err: errMissingTool}
	}
	if len(raw.Parameters) == 0 || string(raw.Parameters) == "null" {
		return tools.ToolCall{}, &ParseError{Payload: payload, Err: errMissingParameters}
	}

	var params map[string]interface{}
	if err := json.Unmarshal(raw.Parameters, &params); err != nil {
		return tools.ToolCall{}, &ParseError{
			Payload: payload,
			Err:     fmt.Errorf("%w: %v", errMissingParameters, err),
		}
	}
	return tools.ToolCall{Name: *raw.Tool, Params: params}, nil
}

// =============================================================================
// STATELESS SCAN
// =============================================================================

// Result is the outcome of Scan.
type Result struct {
	// Calls are the well-formed calls, in buffer order
	Calls []tools.ToolCall

	// Malformed are the spans whose payload failed to decode
	Malformed []*ParseError

	// Flushed is plain text consumed from the buffer: everything before each
	// opening delimiter that was found
	Flushed string

	// Remaining is the unterminated suffix still awaiting bytes
	Remaining string
}

// Scan consumes every complete tool-call span in buffer.
//
// Without an opening delimiter the buffer is returned unchanged as
// Remaining. With an opening delimiter but no closing one, Remaining starts
// at that delimiter. Malformed payloads are reported in Malformed and
// otherwise skipped.
func Scan(buffer string) Result {
	var res Result
	var flushed strings.Builder

	rest := buffer
	for {
		open := strings.Index(rest, OpenTag)
		if open < 0 {
			break
		}
		body := rest[open+len(OpenTag):]
		end := strings.Index(body, CloseTag)
		if end < 0 {
			flushed.WriteString(rest[:open])
			rest = rest[open:]
			break
		}

		flushed.WriteString(rest[:open])
		if call, err := Decode(body[:end]); err != nil {
			res.Malformed = append(res.Malformed, err.(*ParseError))
		} else {
			res.Calls = append(res.Calls, call)
		}
		rest = body[end+len(CloseTag):]
	}

	res.Flushed = flushed.String()
	res.Remaining = rest
	return res
}

// =============================================================================
// INCREMENTAL SCANNER
// =============================================================================

// SegmentKind identifies what a Segment carries.
type SegmentKind int

const (
	// SegmentText is plain text that is safe to render
	SegmentText SegmentKind = iota

	// SegmentCall is a decoded tool call
	SegmentCall

	// SegmentMalformed is a delimited span that failed to decode
	SegmentMalformed
)

// Segment is one ordered piece of scanner output.
type Segment struct {
	Kind SegmentKind
	Text string
	Call tools.ToolCall
	Err  *ParseError
}

// Scanner finds tool-call spans in text that arrives in arbitrary chunks.
//
// The zero value is ready to use. A Scanner is not safe for concurrent use;
// it belongs to a single stream.
type Scanner struct {
	// buf is the scan buffer: the unterminated suffix of everything written
	// since the last extracted span.
	buf []byte

	// inside is true once buf starts with an opening delimiter.
	inside bool

	// safe is the search resume point. Outside a span buf only holds a
	// held-back partial opening delimiter and safe is 0. Inside a span, no
	// closing delimiter starts before safe.
	safe int
}

// NewScanner returns an empty Scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Write appends text and returns the segments it completes, in order.
//
// Text that might be the beginning of an opening delimiter is held back
// until enough bytes arrive to decide. Text inside an open span is never
// returned as a text segment until the span closes or the stream is drained.
func (s *Scanner) Write(text string) []Segment {
	s.buf = append(s.buf, text...)

	var segs []Segment
	for {
		if !s.inside {
			i := bytes.Index(s.buf[s.safe:], openTag)
			if i < 0 {
				end := len(s.buf) - partialPrefix(s.buf[s.safe:], openTag)
				if end > s.safe {
					segs = append(segs, Segment{Kind: SegmentText, Text: string(s.buf[s.safe:end])})
				}
				s.consume(end)
				s.safe = 0
				return segs
			}

			at := s.safe + i
			if at > s.safe {
				segs = append(segs, Segment{Kind: SegmentText, Text: string(s.buf[s.safe:at])})
			}
			s.consume(at)
			s.inside = true
			s.safe = len(openTag)
			continue
		}

		j := bytes.Index(s.buf[s.safe:], closeTag)
		if j < 0 {
			if resume := len(s.buf) - len(closeTag) + 1; resume > s.safe {
				s.safe = resume
			}
			return segs
		}

		end := s.safe + j
		payload := string(s.buf[len(openTag):end])
		if call, err := Decode(payload); err != nil {
			segs = append(segs, Segment{Kind: SegmentMalformed, Text: payload, Err: err.(*ParseError)})
		} else {
			segs = append(segs, Segment{Kind: SegmentCall, Call: call})
		}
		s.consume(end + len(closeTag))
		s.inside = false
		s.safe = 0
	}
}

// Drain returns any text not yet emitted, including an unterminated span,
// and resets the scanner.
func (s *Scanner) Drain() string {
	var pending string
	if s.inside {
		pending = string(s.buf)
	} else {
		pending = string(s.buf[s.safe:])
	}
	s.Reset()
	return pending
}

// Buffer returns the current scan buffer.
func (s *Scanner) Buffer() string {
	return string(s.buf)
}

// Pending reports whether the scanner is inside an unterminated span.
func (s *Scanner) Pending() bool {
	return s.inside
}

// Reset clears all state.
func (s *Scanner) Reset() {
	s.buf = s.buf[:0]
	s.inside = false
	s.safe = 0
}

// consume drops buf[:n], reusing the backing array.
func (s *Scanner) consume(n int) {
	s.buf = append(s.buf[:0], s.buf[n:]...)
}

// partialPrefix returns the length of the longest proper prefix of delim
// that b ends with.
func partialPrefix(b, delim []byte) int {
	max := len(delim) - 1
	if len(b) < max {
		max = len(b)
	}
	for n := max; n > 0; n-- {
		if bytes.HasSuffix(b, delim[:n]) {
			return n
		}
	}
	return 0
}
