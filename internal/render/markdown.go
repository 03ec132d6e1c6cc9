// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// Markdown renders finished assistant text for the terminal.
type Markdown struct {
	mu       sync.Mutex
	style    string
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdown creates a renderer for a glamour standard style ("dark" or
// "light") wrapping at width.
func NewMarkdown(style string, width int) *Markdown {
	return &Markdown{style: style, width: width}
}

// Render returns the rendered text. On any glamour failure the input is
// returned unchanged.
func (m *Markdown) Render(text string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.style),
			glamour.WithWordWrap(m.width),
			glamour.WithEmoji(),
		)
		if err != nil {
			return text
		}
		m.renderer = r
	}

	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// LooksLikeMarkdown reports whether text uses constructs worth rendering.
// Plain prose is left as streamed.
func LooksLikeMarkdown(text string) bool {
	if strings.Contains(text, "```") || strings.Contains(text, "**") || strings.Contains(text, "](") {
		return true
	}
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(l, "#"),
			strings.HasPrefix(l, "- "),
			strings.HasPrefix(l, "* "),
			strings.HasPrefix(l, "> "),
			strings.HasPrefix(l, "|"):
			return true
		}
		if len(l) > 2 && l[0] >= '0' && l[0] <= '9' && strings.HasPrefix(strings.TrimLeft(l, "0123456789"), ". ") {
			return true
		}
	}
	return false
}
