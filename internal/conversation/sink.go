// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/protocol"
)

// =============================================================================
// RENDERING CONTRACT
// =============================================================================

// UserTurn is what the sink shows for a user message.
type UserTurn struct {
	Text         string
	Attachments  []string // file names
	QuotePreview string   // truncated quote, empty when none
	ResearchMode bool
	Replayed     bool // loaded from server history
}

// Outcome is how an assistant message ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCancelled
	OutcomeServerError
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeServerError:
		return "server_error"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FinalMessage is the finalized state of an assistant message.
type FinalMessage struct {
	ID       MessageID
	Raw      string             // chunk contents as received, markers intact
	Segments []citation.Segment // coalesced; markers removed in research mode
	Research bool
	Sources  []protocol.Source
	Outcome  Outcome
	Notice   string // cancellation notice or server error message
	Replayed bool
}

// Text returns the displayed text with markers removed.
func (f FinalMessage) Text() string {
	return citation.Text(f.Segments)
}

// AssistantHandle receives the segments of one assistant message.
type AssistantHandle interface {
	Append(seg citation.Segment)
	Finalize(final FinalMessage)
}

// Sink renders a conversation. Implementations that also implement
// Observer are subscribed to events automatically.
type Sink interface {
	AppendUserTurn(turn UserTurn)
	BeginAssistantTurn(id MessageID) AssistantHandle
	ShowError(message string)
}

// =============================================================================
// HISTORY CONTRACT
// =============================================================================

// HistoryStore is the chat list the controller reports to.
type HistoryStore interface {
	AssignChatID(id protocol.ChatID)
	UpdateTitle(id protocol.ChatID, title string)
}

// activeSetter is implemented by stores that track the displayed chat.
type activeSetter interface {
	SetActive(id protocol.ChatID)
}

// NopHistory ignores all notifications.
type NopHistory struct{}

func (NopHistory) AssignChatID(protocol.ChatID)        {}
func (NopHistory) UpdateTitle(protocol.ChatID, string) {}
