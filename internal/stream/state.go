// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

// State is a Pump run's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateToolDispatch
	StateDraining
	StateCompleted
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateStreaming:
		return "Streaming"
	case StateToolDispatch:
		return "ToolDispatch"
	case StateDraining:
		return "Draining"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the run has finished.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
