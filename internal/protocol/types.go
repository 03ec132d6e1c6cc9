// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/calliope-tui/internal/util"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ChatID identifies a server-side chat. The zero value means the server has
// not assigned an id yet.
//
// Servers send ids either as JSON numbers or JSON strings; both decode to the
// same ChatID.
type ChatID string

// IsZero reports whether the id is unassigned.
func (id ChatID) IsZero() bool {
	return id == ""
}

// String returns the id as text.
func (id ChatID) String() string {
	return string(id)
}

// UnmarshalJSON accepts a number, a string or null.
func (id *ChatID) UnmarshalJSON(data []byte) error {
	s, err := decodeFlexString(data)
	if err != nil {
		return fmt.Errorf("chat id: %w", err)
	}
	*id = ChatID(s)
	return nil
}

// MarshalJSON writes numeric ids as JSON numbers so integer-keyed servers
// receive the type they expect.
func (id ChatID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// decodeFlexString decodes a JSON scalar that may be a string or a number.
func decodeFlexString(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", util.TruncateRunes(string(data), 32))
	}
	return n.String(), nil
}

// =============================================================================
// SOURCES & ATTACHMENTS
// =============================================================================

// Source is a reference the assistant cites. Sources are keyed by ID within
// one assistant message.
type Source struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// UnmarshalJSON accepts numeric source ids.
func (s *Source) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID    json.RawMessage `json:"id"`
		Title string          `json:"title"`
		URL   string          `json:"url"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := decodeFlexString(aux.ID)
	if err != nil {
		return fmt.Errorf("source id: %w", err)
	}
	s.ID = id
	s.Title = aux.Title
	s.URL = aux.URL
	return nil
}

// Label returns the title, falling back to the URL and then the id.
func (s Source) Label() string {
	switch {
	case s.Title != "":
		return s.Title
	case s.URL != "":
		return s.URL
	default:
		return "source " + s.ID
	}
}

// Attachment names a file that was uploaded for a turn.
type Attachment struct {
	Name string `json:"name"`
}

// UploadResult is the server reply to an attachment upload.
type UploadResult struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename,omitempty"`
	Content  string `json:"content,omitempty"`
	Error    string `json:"error,omitempty"`
}

// =============================================================================
// OUTGOING TURN
// =============================================================================

// OutgoingTurn is one user turn as sent to the server. It is built fresh for
// every send and never modified after it is issued.
type OutgoingTurn struct {
	Text         string
	Attachments  []Attachment
	UseSearch    bool
	ResearchMode bool
	QuotedText   string // empty means no quote
	ChatID       ChatID // zero for the first turn of a new chat
}

// HasAttachments reports whether the turn carries uploaded files.
func (t OutgoingTurn) HasAttachments() bool {
	return len(t.Attachments) > 0
}

// =============================================================================
// HISTORY PAYLOADS
// =============================================================================

// ChatSummary is one entry of the server's chat list.
type ChatSummary struct {
	ID           ChatID    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    Timestamp `json:"created_at"`
	UpdatedAt    Timestamp `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// DisplayTitle returns the title or the "Chat <id>" fallback.
func (c ChatSummary) DisplayTitle() string {
	if strings.TrimSpace(c.Title) != "" {
		return c.Title
	}
	return "Chat " + c.ID.String()
}

// HistoryMessage is one stored message of a server-side chat.
type HistoryMessage struct {
	ID          ChatID    `json:"id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   Timestamp `json:"created_at"`
}

// Timestamp decodes the ISO-8601 variants the server emits, including the
// zone-less form produced by naive datetimes.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON parses RFC 3339 and zone-less timestamps (as UTC).
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	s, err := decodeFlexString(data)
	if err != nil {
		return err
	}
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON writes RFC 3339.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Time.Format(time.RFC3339Nano))
}
