// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when deleting a session that does not exist.
var ErrNotFound = errors.New("session not found")

// Meta describes a stored session for listing.
type Meta struct {
	Name         string
	ID           string
	Model        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	Preview      string // first user message, truncated
}

// Store persists conversations by name.
type Store interface {
	// Load returns the named conversation, or a new empty one when none is
	// stored. maxTokens is applied to the returned conversation.
	Load(ctx context.Context, name string, maxTokens int) (*Conversation, error)

	// Save writes the conversation under its Name, replacing any previous
	// version.
	Save(ctx context.Context, conv *Conversation) error

	// List returns stored sessions, most recently updated first.
	List(ctx context.Context) ([]Meta, error)

	// Delete removes the named session.
	Delete(ctx context.Context, name string) error

	Close() error
}

// previewLength is the rune limit for Meta.Preview.
const previewLength = 50

// preview returns the first user message flattened to one line.
func preview(conv *Conversation) string {
	for _, msg := range conv.Messages {
		if msg.Role != RoleUser || msg.Content == "" {
			continue
		}
		content := strings.ReplaceAll(msg.Content, "\r", "")
		content = strings.ReplaceAll(content, "\n", " ")
		if runes := []rune(content); len(runes) > previewLength {
			content = string(runes[:previewLength-3]) + "..."
		}
		return content
	}
	return "New conversation"
}

func metaOf(conv *Conversation) Meta {
	return Meta{
		Name:         conv.Name,
		ID:           conv.ID,
		Model:        conv.Model,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		MessageCount: len(conv.Messages),
		Preview:      preview(conv),
	}
}

func sortMetas(metas []Meta) {
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// MemoryStore keeps conversations in process memory. It stores deep copies,
// so later edits to a saved Conversation do not leak into the store.
type MemoryStore struct {
	mu    sync.Mutex
	convs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, name string, maxTokens int) (*Conversation, error) {
	s.mu.Lock()
	data, ok := s.convs[name]
	s.mu.Unlock()

	if !ok {
		return NewConversation(name, maxTokens), nil
	}
	return decode(data, maxTokens)
}

func (s *MemoryStore) Save(ctx context.Context, conv *Conversation) error {
	data, err := encode(conv)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.Name] = data
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas := make([]Meta, 0, len(s.convs))
	for _, data := range s.convs {
		conv, err := decode(data, 0)
		if err != nil {
			return nil, err
		}
		metas = append(metas, metaOf(conv))
	}
	sortMetas(metas)
	return metas, nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[name]; !ok {
		return ErrNotFound
	}
	delete(s.convs, name)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
