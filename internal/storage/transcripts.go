// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/conversation"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/util"
)

// DefaultMaxTranscripts bounds the number of transcripts kept on disk.
const DefaultMaxTranscripts = 100

// =============================================================================
// TRANSCRIPT TYPES
// =============================================================================

// Transcript is one chat as kept on disk.
type Transcript struct {
	ID        string          `json:"id" yaml:"id"`
	ChatID    protocol.ChatID `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
	SessionID string          `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Title     string          `json:"title" yaml:"title"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"updated_at"`

	Messages []Message `json:"messages" yaml:"messages"`
}

// Message is one stored turn half. Assistant content keeps its citation
// markers in Content; Text strips them.
type Message struct {
	ID          string            `json:"id" yaml:"id"`
	Role        string            `json:"role" yaml:"role"` // "user" or "assistant"
	Content     string            `json:"content" yaml:"content"`
	Timestamp   time.Time         `json:"timestamp" yaml:"timestamp"`
	Attachments []string          `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	QuotedText  string            `json:"quoted_text,omitempty" yaml:"quoted_text,omitempty"`
	Research    bool              `json:"research,omitempty" yaml:"research,omitempty"`
	Sources     []protocol.Source `json:"sources,omitempty" yaml:"sources,omitempty"`
	Outcome     string            `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Notice      string            `json:"notice,omitempty" yaml:"notice,omitempty"`
}

// Segments parses the stored content into plain and cited runs.
func (m Message) Segments() []citation.Segment {
	return citation.Parse(m.Content)
}

// Text returns the content with citation markers removed.
func (m Message) Text() string {
	return citation.Text(m.Segments())
}

// Meta is the listing view of a transcript.
type Meta struct {
	ID           string          `json:"id"`
	ChatID       protocol.ChatID `json:"chat_id,omitempty"`
	Title        string          `json:"title"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	MessageCount int             `json:"message_count"`
	Preview      string          `json:"preview"`
}

// Preview returns the first user message, truncated.
func (t *Transcript) Preview() string {
	for _, msg := range t.Messages {
		if msg.Role == "user" && msg.Content != "" {
			return util.TruncateRunes(strings.ReplaceAll(msg.Content, "\n", " "), 80)
		}
	}
	return ""
}

// FromHistory builds a transcript from a chat fetched from the server.
func FromHistory(id protocol.ChatID, title string, msgs []protocol.HistoryMessage) *Transcript {
	t := &Transcript{ID: id.String(), ChatID: id, Title: title}
	for _, m := range msgs {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		t.Messages = append(t.Messages, Message{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt.Time,
		})
	}
	if len(t.Messages) > 0 {
		t.CreatedAt = t.Messages[0].Timestamp
		t.UpdatedAt = t.Messages[len(t.Messages)-1].Timestamp
	}
	if t.Title == "" {
		t.Title = generateTitle(t)
	}
	return t
}

// =============================================================================
// TRANSCRIPT STORE
// =============================================================================

// TranscriptStore keeps one JSON file per chat.
type TranscriptStore struct {
	// BaseDir is the directory for transcripts.
	// The app uses <config dir>/transcripts/.
	BaseDir string

	// MaxConversations limits stored transcripts (0 = unlimited).
	MaxConversations int

	mu sync.Mutex
}

// NewTranscriptStoreWithDir creates a store with a custom directory.
func NewTranscriptStoreWithDir(baseDir string) (*TranscriptStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, err
	}
	return &TranscriptStore{
		BaseDir:          baseDir,
		MaxConversations: DefaultMaxTranscripts,
	}, nil
}

// =============================================================================
// RECORDING
// =============================================================================

// RecordTurn appends one finished exchange to the transcript of its chat.
// Turns of a session without a server chat id are keyed by session id.
func (s *TranscriptStore) RecordTurn(rec conversation.TurnRecord) error {
	id := rec.ChatID.String()
	if id == "" {
		id = rec.SessionID
	}
	if err := validID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load(id)
	if err != nil {
		if err != ErrTranscriptNotFound {
			return err
		}
		t = &Transcript{ID: id, ChatID: rec.ChatID, SessionID: rec.SessionID}
	}
	if t.ChatID.IsZero() {
		t.ChatID = rec.ChatID
	}

	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}

	user := Message{
		ID:          uuid.NewString(),
		Role:        "user",
		Content:     rec.User.Text,
		Timestamp:   at,
		Attachments: rec.User.Attachments,
		QuotedText:  rec.User.QuotePreview,
		Research:    rec.User.ResearchMode,
	}
	assistant := Message{
		ID:        uuid.NewString(),
		Role:      "assistant",
		Content:   rec.Assistant.Raw,
		Timestamp: at,
		Research:  rec.Assistant.Research,
		Sources:   rec.Assistant.Sources,
		Outcome:   rec.Assistant.Outcome.String(),
		Notice:    rec.Assistant.Notice,
	}
	t.Messages = append(t.Messages, user, assistant)

	return s.save(t)
}

// =============================================================================
// SAVE AND LOAD
// =============================================================================

// Save persists a transcript. A missing ID is generated.
func (s *TranscriptStore) Save(t *Transcript) (string, error) {
	if t.ID == "" {
		t.ID = generateTranscriptID()
	}
	if err := validID(t.ID); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(t); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (s *TranscriptStore) save(t *Transcript) error {
	if t.Title == "" {
		t.Title = generateTitle(t)
	}
	t.UpdatedAt = time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(s.filePath(t.ID), data, 0o600); err != nil {
		return err
	}

	if s.MaxConversations > 0 {
		s.enforceLimit()
	}
	return nil
}

// Load retrieves a transcript by ID.
func (s *TranscriptStore) Load(id string) (*Transcript, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

func (s *TranscriptStore) load(id string) (*Transcript, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTranscriptNotFound
		}
		return nil, err
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Rename sets the title of a stored transcript, typically after the server
// retitles the chat.
func (s *TranscriptStore) Rename(id, title string) error {
	if err := validID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load(id)
	if err != nil {
		return err
	}
	t.Title = title
	return s.save(t)
}

// =============================================================================
// LIST AND SEARCH
// =============================================================================

// List returns all transcripts, most recent first. Unreadable files are
// skipped.
func (s *TranscriptStore) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Meta{}, nil
		}
		return nil, err
	}

	var metas []Meta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		t, err := s.load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}

		metas = append(metas, Meta{
			ID:           t.ID,
			ChatID:       t.ChatID,
			Title:        t.Title,
			CreatedAt:    t.CreatedAt,
			UpdatedAt:    t.UpdatedAt,
			MessageCount: len(t.Messages),
			Preview:      t.Preview(),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Search returns transcripts whose title or any message contains query,
// case-insensitively.
func (s *TranscriptStore) Search(query string) ([]Meta, error) {
	all, err := s.List()
	if err != nil || query == "" {
		return all, err
	}

	query = strings.ToLower(query)
	var results []Meta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Title), query) {
			results = append(results, meta)
			continue
		}
		t, err := s.Load(meta.ID)
		if err != nil {
			continue
		}
		for _, msg := range t.Messages {
			if strings.Contains(strings.ToLower(msg.Text()), query) {
				results = append(results, meta)
				break
			}
		}
	}
	return results, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a transcript by ID.
func (s *TranscriptStore) Delete(id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := os.Remove(s.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrTranscriptNotFound
		}
		return err
	}
	return nil
}

// enforceLimit removes the oldest transcripts beyond MaxConversations.
func (s *TranscriptStore) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxConversations {
		return
	}
	for _, m := range metas[s.MaxConversations:] {
		os.Remove(s.filePath(m.ID))
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *TranscriptStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

// validID rejects ids that would escape BaseDir.
func validID(id string) error {
	if id == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return &TranscriptError{Message: "invalid transcript id " + strings.TrimSpace(id)}
	}
	return nil
}

func generateTitle(t *Transcript) string {
	for _, msg := range t.Messages {
		if msg.Role == "user" && msg.Content != "" {
			line := strings.ReplaceAll(msg.Content, "\r", "")
			line = strings.ReplaceAll(line, "\n", " ")
			return util.TruncateRunes(line, 50)
		}
	}
	if !t.ChatID.IsZero() {
		return "Chat " + t.ChatID.String()
	}
	return "New conversation"
}

func generateTranscriptID() string {
	return "conv_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrTranscriptNotFound is returned when a transcript doesn't exist.
var ErrTranscriptNotFound = &TranscriptError{Message: "transcript not found"}

// TranscriptError is a storage error comparable with errors.Is.
type TranscriptError struct {
	Message string
}

func (e *TranscriptError) Error() string {
	return e.Message
}

// Is matches errors with the same message.
func (e *TranscriptError) Is(target error) bool {
	t, ok := target.(*TranscriptError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
