// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides the in-memory response cache.
//
// Responses are keyed by a 64-bit hash of the prompt and model. Two
// different (prompt, model) pairs that hash alike share an entry; the
// cache does not compare the original strings.
package cache
