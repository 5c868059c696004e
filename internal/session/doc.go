// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the state that survives between chat turns.
//
// # Key Types
//
//   - Conversation: message history, working files and tracked file changes
//   - Stats: per-session counters of messages and tool activity
//   - Store: persistence interface, with SQLite and in-memory implementations
//
// # Token Budget
//
// A Conversation with MaxTokens set estimates each message at four tokens
// per three whitespace-separated words. When an added message pushes the
// total over the budget, the oldest messages after the first are removed
// until the total fits or only two messages remain. The first message is
// never pruned.
//
// # Usage
//
//	store, err := session.OpenSQLiteStore(filepath.Join(dir, "sessions.db"))
//	conv, err := store.Load(ctx, "default")
//	conv.AddMessage(session.RoleUser, input)
//	prompt := session.BuildPrompt(tools.NewRegistry().Prompt(), conv, input)
//	err = store.Save(ctx, conv)
//
// A Conversation is not safe for concurrent use.
package session
