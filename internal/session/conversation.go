// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/ocli/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoChanges is returned by RollbackLast when nothing was tracked.
	ErrNoChanges = errors.New("no changes to rollback")

	// ErrNoBackup is returned by RollbackLast when the last change created
	// a file, so there is nothing to restore.
	ErrNoBackup = errors.New("change has no backup")
)

// =============================================================================
// TYPES
// =============================================================================

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of the conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// FileChange records a file modified during the session.
type FileChange struct {
	Path       string    `json:"path"`
	Operation  string    `json:"operation"`
	Timestamp  time.Time `json:"timestamp"`
	BackupPath string    `json:"backup_path,omitempty"`
}

// recentChanges is how many changes Summary lists.
const recentChanges = 5

// Conversation is the state of one named session.
type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages     []Message         `json:"messages"`
	WorkingFiles map[string]string `json:"working_files"`
	Changes      []FileChange      `json:"file_changes"`

	// MaxTokens bounds the estimated size of Messages. Zero disables
	// pruning.
	MaxTokens int `json:"-"`

	tokens int
}

// NewConversation creates an empty conversation.
func NewConversation(name string, maxTokens int) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           uuid.NewString(),
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
		WorkingFiles: make(map[string]string),
		MaxTokens:    maxTokens,
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

// AddMessage appends a message and prunes to the token budget.
func (c *Conversation) AddMessage(role, content string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	c.Messages = append(c.Messages, msg)
	c.tokens += EstimateTokens(content)
	c.UpdatedAt = msg.Timestamp

	if c.MaxTokens > 0 && c.tokens > c.MaxTokens {
		c.prune()
	}
	return msg
}

// prune removes the oldest messages after the first until the estimate fits
// or two messages remain.
func (c *Conversation) prune() {
	for c.tokens > c.MaxTokens && len(c.Messages) > 2 {
		c.tokens -= EstimateTokens(c.Messages[1].Content)
		c.Messages = append(c.Messages[:1], c.Messages[2:]...)
	}
}

// EstimateTokens approximates the token count of content.
func EstimateTokens(content string) int {
	return len(strings.Fields(content)) * 4 / 3
}

// Tokens returns the estimated token count of all messages.
func (c *Conversation) Tokens() int {
	return c.tokens
}

// recount rebuilds the token estimate, for conversations loaded from a store.
func (c *Conversation) recount() {
	c.tokens = 0
	for _, m := range c.Messages {
		c.tokens += EstimateTokens(m.Content)
	}
}

// Search returns the content of every message that contains query,
// ignoring case.
func (c *Conversation) Search(query string) []string {
	q := strings.ToLower(query)
	var results []string
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content), q) {
			results = append(results, m.Content)
		}
	}
	return results
}

// BudgetSummary describes message count and token usage.
func (c *Conversation) BudgetSummary() string {
	usage := 0
	if c.MaxTokens > 0 {
		usage = c.tokens * 100 / c.MaxTokens
	}
	var sb strings.Builder
	sb.WriteString("📝 Context Summary:\n\n")
	fmt.Fprintf(&sb, "Messages: %d\n", len(c.Messages))
	fmt.Fprintf(&sb, "Tokens: ~%d\n", c.tokens)
	fmt.Fprintf(&sb, "Max tokens: %d\n", c.MaxTokens)
	fmt.Fprintf(&sb, "Usage: %d%%\n", usage)
	return sb.String()
}

// =============================================================================
// FILES
// =============================================================================

// AddFile adds or replaces a working file.
func (c *Conversation) AddFile(path, content string) {
	if c.WorkingFiles == nil {
		c.WorkingFiles = make(map[string]string)
	}
	c.WorkingFiles[path] = content
}

// TrackChange records a file modification. A zero timestamp is set to now.
func (c *Conversation) TrackChange(change FileChange) {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now()
	}
	c.Changes = append(c.Changes, change)
}

// WorkingFilePaths returns the working file paths in sorted order.
func (c *Conversation) WorkingFilePaths() []string {
	paths := make([]string, 0, len(c.WorkingFiles))
	for p := range c.WorkingFiles {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Summary lists the working files and the most recent changes, newest
// first. It is empty when there is neither.
func (c *Conversation) Summary() string {
	var sb strings.Builder

	if paths := c.WorkingFilePaths(); len(paths) > 0 {
		sb.WriteString("Working files:\n")
		for _, p := range paths {
			fmt.Fprintf(&sb, "  - %s\n", p)
		}
	}

	if len(c.Changes) > 0 {
		sb.WriteString("\nRecent changes:\n")
		for i, n := len(c.Changes)-1, 0; i >= 0 && n < recentChanges; i, n = i-1, n+1 {
			fmt.Fprintf(&sb, "  - %s %s\n", c.Changes[i].Operation, c.Changes[i].Path)
		}
	}

	return sb.String()
}

// RollbackLast restores the most recently changed file from its backup and
// removes the backup. A failed restore keeps the change so it can be
// retried; a change without a backup is dropped.
func (c *Conversation) RollbackLast() (string, error) {
	if len(c.Changes) == 0 {
		return "", ErrNoChanges
	}
	change := c.Changes[len(c.Changes)-1]

	if change.BackupPath == "" {
		c.Changes = c.Changes[:len(c.Changes)-1]
		return "", fmt.Errorf("%w: %s", ErrNoBackup, change.Path)
	}
	if err := util.CopyFile(change.BackupPath, change.Path); err != nil {
		return "", fmt.Errorf("restore %s: %w", change.Path, err)
	}
	c.Changes = c.Changes[:len(c.Changes)-1]
	if err := os.Remove(change.BackupPath); err != nil {
		return "", fmt.Errorf("remove backup %s: %w", change.BackupPath, err)
	}
	return "Rolled back: " + change.Path, nil
}

// Clear drops messages, working files and changes. Identity is kept.
func (c *Conversation) Clear() {
	c.Messages = nil
	c.WorkingFiles = make(map[string]string)
	c.Changes = nil
	c.tokens = 0
	c.UpdatedAt = time.Now()
}
