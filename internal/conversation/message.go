// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"strings"

	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/protocol"
)

// assistantMessage is the in-progress assistant reply. Only the request
// loop touches it.
type assistantMessage struct {
	id       MessageID
	research bool
	handle   AssistantHandle

	raw      strings.Builder
	parser   *citation.Parser
	segments []citation.Segment
	chunks   int
}

func newAssistantMessage(id MessageID, research bool, handle AssistantHandle) *assistantMessage {
	m := &assistantMessage{id: id, research: research, handle: handle}
	if research {
		m.parser = citation.NewParser()
	}
	return m
}

// appendChunk adds one response chunk, through the citation parser in
// research mode.
func (m *assistantMessage) appendChunk(content string) {
	m.chunks++
	m.raw.WriteString(content)

	if !m.research {
		if content != "" {
			m.push(citation.Plain(content))
		}
		return
	}
	for _, seg := range m.parser.Feed(content) {
		m.push(seg)
	}
}

// appendTrailing adds undelimited stream residue as plain text.
func (m *assistantMessage) appendTrailing(text string) {
	m.flushParser()
	m.raw.WriteString(text)
	m.push(citation.Plain(text))
}

func (m *assistantMessage) flushParser() {
	if m.parser == nil {
		return
	}
	for _, seg := range m.parser.Flush() {
		m.push(seg)
	}
}

func (m *assistantMessage) push(seg citation.Segment) {
	m.segments = append(m.segments, seg)
	m.handle.Append(seg)
}

// finalize flushes the parser and hands the final state to the sink.
func (m *assistantMessage) finalize(outcome Outcome, notice string, sources []protocol.Source) FinalMessage {
	m.flushParser()
	final := FinalMessage{
		ID:       m.id,
		Raw:      m.raw.String(),
		Segments: citation.Coalesce(m.segments),
		Research: m.research,
		Sources:  sources,
		Outcome:  outcome,
		Notice:   notice,
	}
	m.handle.Finalize(final)
	return final
}
