// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"errors"
	"strings"
)

// =============================================================================
// SAVED MEMORIES
// =============================================================================

// MemoryCategory groups saved memories.
type MemoryCategory struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Memory is a fact the server remembers about the user.
type Memory struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Content         string  `json:"content"`
	CategoryID      int64   `json:"category_id"`
	CategoryName    string  `json:"category_name"`
	ImportanceScore float64 `json:"importance_score"`
	IsVerified      bool    `json:"is_verified"`
	LastAccessedAt  string  `json:"last_accessed_at"`
}

// MemoryPage is one page of the memory list.
type MemoryPage struct {
	Memories []Memory `json:"memories"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	Pages    int      `json:"pages"`
	HasNext  bool     `json:"has_next"`
	HasPrev  bool     `json:"has_prev"`
}

// MemoryQuery filters the memory list. Zero fields use the server defaults.
type MemoryQuery struct {
	CategoryID int64
	Page       int
	PerPage    int
}

// MemoryInput is the body of a create or update. Update sends only the
// fields that are set.
type MemoryInput struct {
	Title           string   `json:"title,omitempty"`
	Content         string   `json:"content,omitempty"`
	CategoryID      int64    `json:"category_id,omitempty"`
	ImportanceScore *float64 `json:"importance_score,omitempty"`
}

// ValidateNew checks the fields the server requires on create.
func (in MemoryInput) ValidateNew() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return errors.New("memory title is required")
	case strings.TrimSpace(in.Content) == "":
		return errors.New("memory content is required")
	case in.CategoryID <= 0:
		return errors.New("memory category is required")
	}
	return nil
}

// IsEmpty reports whether an update would change nothing.
func (in MemoryInput) IsEmpty() bool {
	return in.Title == "" && in.Content == "" && in.CategoryID == 0 && in.ImportanceScore == nil
}
