// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/conversation"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
)

func newTestRenderer() (*Renderer, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(&buf, styles.NewThemeFor("dark"), WithWidth(80)), &buf
}

func TestRenderer_StreamsSegments(t *testing.T) {
	r, buf := newTestRenderer()

	h := r.BeginAssistantTurn(1)
	h.Append(citation.Plain("Go was made at "))
	h.Append(citation.Cite("Google", "1"))
	h.Append(citation.Plain("."))

	out := buf.String()
	assert.Contains(t, out, "calliope ›")
	assert.Contains(t, out, "Go was made at ")
	assert.Contains(t, out, "Google")
	assert.Contains(t, out, "[1]")

	h.Finalize(conversation.FinalMessage{
		ID:       1,
		Segments: []citation.Segment{citation.Plain("Go was made at "), citation.Cite("Google", "1"), citation.Plain(".")},
		Research: true,
		Sources:  []protocol.Source{{ID: "1", Title: "Go FAQ", URL: "https://go.dev/doc/faq"}},
		Outcome:  conversation.OutcomeCompleted,
	})
	out = buf.String()
	assert.Contains(t, out, "[1] Go FAQ")
	assert.Contains(t, out, "https://go.dev/doc/faq")
}

func TestRenderer_CancelNoticeIsNotAnError(t *testing.T) {
	r, buf := newTestRenderer()

	h := r.BeginAssistantTurn(2)
	h.Append(citation.Plain("partial"))
	h.Finalize(conversation.FinalMessage{
		Segments: []citation.Segment{citation.Plain("partial")},
		Outcome:  conversation.OutcomeCancelled,
		Notice:   "Response cancelled.",
	})

	out := buf.String()
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, styles.StatusIndicators.Warning+" Response cancelled.")
	assert.NotContains(t, out, styles.StatusIndicators.Error)
}

func TestRenderer_ServerErrorNotice(t *testing.T) {
	r, buf := newTestRenderer()

	h := r.BeginAssistantTurn(3)
	h.Finalize(conversation.FinalMessage{Outcome: conversation.OutcomeServerError, Notice: "quota exceeded"})
	assert.Contains(t, buf.String(), styles.StatusIndicators.Error+" quota exceeded")
}

func TestRenderer_UserTurn(t *testing.T) {
	r, buf := newTestRenderer()

	r.AppendUserTurn(conversation.UserTurn{Text: "typed", QuotePreview: "a quote", Attachments: []string{"a.txt", "b.md"}})
	out := buf.String()
	assert.NotContains(t, out, "typed", "live turns are not echoed")
	assert.Contains(t, out, "a quote")
	assert.Contains(t, out, "[attached: a.txt, b.md]")

	buf.Reset()
	r.AppendUserTurn(conversation.UserTurn{Text: "from history", Replayed: true})
	assert.Contains(t, buf.String(), "you › from history")
}

func TestRenderer_ShowErrorAndEvents(t *testing.T) {
	r, buf := newTestRenderer()

	r.OnEvent(conversation.StatusChanged{Message: "Searching..."})
	assert.Equal(t, "Searching...", r.Status())

	r.ShowError("Sorry, I encountered an error: boom")
	assert.Empty(t, r.Status())
	assert.Contains(t, buf.String(), "Sorry, I encountered an error: boom")

	r.OnEvent(conversation.TitleChanged{ChatID: "7", Title: "Greetings"})
	assert.Contains(t, buf.String(), `Chat 7 is now titled "Greetings"`)
}

func TestHandle_RowCounting(t *testing.T) {
	r, _ := newTestRenderer()
	r.width = 10

	h := &handle{r: r}
	h.advance("0123456789ab")
	assert.Equal(t, 1, h.rows, "wrap after ten columns")
	h.advance("\n\n")
	assert.Equal(t, 3, h.rows)
	h.advance("世界世界世界")
	assert.Equal(t, 4, h.rows, "wide runes count double")
}

func TestLooksLikeMarkdown(t *testing.T) {
	cases := map[string]bool{
		"plain prose.":            false,
		"# Heading":               true,
		"some **bold** text":      true,
		"- item":                  true,
		"1. first":                true,
		"2024 was a year":         false,
		"```go\nfmt.Println()\n```": true,
		"see [x](http://x)":       true,
	}
	for text, want := range cases {
		assert.Equal(t, want, LooksLikeMarkdown(text), text)
	}
}

func TestMarkdown_Render(t *testing.T) {
	md := NewMarkdown("dark", 60)
	out := md.Render("# Title\n\nSome *text*.")
	require.NotEmpty(t, out)
	assert.True(t, strings.Contains(out, "Title"))
}

func TestTerminalDetection_NonFile(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, IsTerminal(&buf))
	assert.Equal(t, DefaultTerminalWidth, TerminalWidth(&buf))
}
