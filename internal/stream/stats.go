// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"
	"time"
)

// StreamStats is the throughput of a stream so far.
type StreamStats struct {
	TokenCount      int
	ElapsedSeconds  float64
	TokensPerSecond float64
}

// NewStreamStats derives the token rate. A non-positive elapsed time yields
// a rate of zero.
func NewStreamStats(tokens int, elapsedSeconds float64) StreamStats {
	s := StreamStats{TokenCount: tokens, ElapsedSeconds: elapsedSeconds}
	if elapsedSeconds > 0 {
		s.TokensPerSecond = float64(tokens) / elapsedSeconds
	}
	return s
}

// statsSince measures from start to now.
func statsSince(tokens int, start, now time.Time) StreamStats {
	return NewStreamStats(tokens, now.Sub(start).Seconds())
}

// Elapsed returns ElapsedSeconds as a duration.
func (s StreamStats) Elapsed() time.Duration {
	return time.Duration(s.ElapsedSeconds * float64(time.Second))
}

// Format returns a short human-readable summary.
func (s StreamStats) Format() string {
	return fmt.Sprintf("%d tokens in %.1fs (%.1f tok/s)", s.TokenCount, s.ElapsedSeconds, s.TokensPerSecond)
}
