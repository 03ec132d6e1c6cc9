// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/conversation"
)

// =============================================================================
// TRANSCRIPT ENTRIES
// =============================================================================

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryError
	entryInfo
)

// entry is one block in the transcript view.
type entry struct {
	kind entryKind

	// user, error and info entries
	text        string
	quote       string
	attachments []string
	research    bool

	// assistant entries
	id       conversation.MessageID
	segments []citation.Segment
	final    *conversation.FinalMessage

	// glamour output of the finished text, valid for renderedWidth
	rendered      string
	renderedWidth int
}

func (e *entry) streaming() bool {
	return e.kind == entryAssistant && e.final == nil
}

// transcript is the ordered list of entries plus an index of assistant
// messages by id.
type transcript struct {
	entries []*entry
	byID    map[conversation.MessageID]*entry
}

func newTranscript() *transcript {
	return &transcript{byID: make(map[conversation.MessageID]*entry)}
}

func (t *transcript) add(e *entry) {
	t.entries = append(t.entries, e)
	if e.kind == entryAssistant {
		t.byID[e.id] = e
	}
}

// assistant returns the message with id, opening one if it was never begun.
func (t *transcript) assistant(id conversation.MessageID) *entry {
	if e, ok := t.byID[id]; ok {
		return e
	}
	e := &entry{kind: entryAssistant, id: id}
	t.add(e)
	return e
}

func (t *transcript) reset() {
	t.entries = nil
	t.byID = make(map[conversation.MessageID]*entry)
}

func (t *transcript) len() int {
	return len(t.entries)
}
