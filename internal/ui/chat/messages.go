// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/config"
	"github.com/jeranaias/calliope-tui/internal/conversation"
)

// =============================================================================
// SINK MESSAGES
// =============================================================================
// Delivered by Sink from the request goroutine, in the order the controller
// produced them.

// userTurnMsg adds a user bubble.
type userTurnMsg struct {
	turn conversation.UserTurn
}

// assistantBeginMsg opens an assistant bubble.
type assistantBeginMsg struct {
	id conversation.MessageID
}

// segmentsMsg carries one or more streamed segments for a message.
type segmentsMsg struct {
	id       conversation.MessageID
	segments []citation.Segment
}

// assistantFinalMsg closes an assistant bubble.
type assistantFinalMsg struct {
	final conversation.FinalMessage
}

// errorEntryMsg adds a standalone error entry.
type errorEntryMsg struct {
	message string
}

// eventMsg forwards a controller event.
type eventMsg struct {
	event conversation.Event
}

// =============================================================================
// COMMAND RESULTS
// =============================================================================

// sendDoneMsg reports that Send or Resend returned.
type sendDoneMsg struct {
	result conversation.Result
	err    error
}

// loadDoneMsg reports that LoadChat returned.
type loadDoneMsg struct {
	chatID   string
	replayed int
	err      error
}

// historyRefreshedMsg reports a finished history refresh.
type historyRefreshedMsg struct {
	count int
	err   error
}

// exportDoneMsg reports a finished export.
type exportDoneMsg struct {
	path string
	err  error
}

// copyDoneMsg reports a clipboard write.
type copyDoneMsg struct {
	chars int
	err   error
}

// =============================================================================
// EXTERNAL MESSAGES
// =============================================================================

// HistoryChangedMsg tells the model the chat list changed.
type HistoryChangedMsg struct{}

// ConfigReloadedMsg carries a reloaded configuration file. Config is nil
// when the reload failed.
type ConfigReloadedMsg struct {
	Config *config.Config
	Err    error
}
