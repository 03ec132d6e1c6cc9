// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/conversation"
	"github.com/jeranaias/calliope-tui/internal/render"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
	"github.com/jeranaias/calliope-tui/internal/util"
)

// maxCompletionRows caps the completion popup.
const maxCompletionRows = 8

// =============================================================================
// LAYOUT
// =============================================================================

func (m Model) renderChat() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}

	header := m.renderHeader()
	input := m.renderInput()
	status := m.renderStatusBar()
	popup := m.renderCompletions()

	available := m.height - lipgloss.Height(header) - lipgloss.Height(input) - lipgloss.Height(status)
	if available < 1 {
		available = 1
	}

	messages := m.viewport.View()
	if m.showHistory {
		if pane := m.historyPaneWidth(); pane > 0 {
			messages = lipgloss.JoinHorizontal(lipgloss.Top, m.renderHistoryPane(pane, m.viewport.Height), " ", messages)
		} else {
			messages = m.renderHistoryPane(m.width, m.viewport.Height)
		}
	}
	// The popup overlays the bottom of the message area.
	if popup != "" {
		lines := strings.Split(messages, "\n")
		keep := max(len(lines)-lipgloss.Height(popup), 0)
		messages = strings.Join(lines[:keep], "\n")
		if keep > 0 {
			messages += "\n"
		}
		messages += popup
	}
	if lipgloss.Height(messages) != available {
		messages = lipgloss.NewStyle().
			Height(available).
			MaxHeight(available).
			Width(m.width).
			Render(messages)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, messages, input, status)
}

// =============================================================================
// HEADER
// =============================================================================

// renderHeader renders the title bar: app name, chat title and the
// composer modes.
func (m Model) renderHeader() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	title := m.title
	if title == "" {
		if m.chatID.IsZero() {
			title = "New chat"
		} else {
			title = "Chat " + m.chatID.String()
		}
	}

	left := m.theme.HeaderTitle.Render("calliope") + m.theme.HeaderMeta.Render("  "+util.TruncateWidth(title, max(width/2, 10)))
	right := modeBadge(m.theme, "research", m.researchMode) + " " + modeBadge(m.theme, "search", m.useSearch)

	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func modeBadge(t *styles.Theme, name string, on bool) string {
	if on {
		return t.ModeOn.Render("[" + name + "]")
	}
	return t.ModeOff.Render(" " + name + " ")
}

// =============================================================================
// MESSAGES
// =============================================================================

// refreshViewport re-renders the transcript. With follow set, a viewport
// that was at the bottom stays there.
func (m *Model) refreshViewport(follow bool) {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if follow && atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) contentWidth() int {
	width := m.viewport.Width - 2
	if m.wordWrap > 0 && width > m.wordWrap {
		width = m.wordWrap
	}
	return max(width, 20)
}

// renderMessages renders every entry, or the empty state.
func (m *Model) renderMessages() string {
	if m.transcript.len() == 0 {
		return m.renderEmptyState()
	}

	width := m.contentWidth()
	blocks := make([]string, 0, m.transcript.len())
	for _, e := range m.transcript.entries {
		switch e.kind {
		case entryUser:
			blocks = append(blocks, m.renderUser(e, width))
		case entryAssistant:
			blocks = append(blocks, m.renderAssistant(e, width))
		case entryError:
			blocks = append(blocks, m.theme.Error.Width(width).Render(styles.StatusIndicators.Error+" "+e.text))
		case entryInfo:
			blocks = append(blocks, lipgloss.NewStyle().Width(width).Render(e.text))
		}
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderUser(e *entry, width int) string {
	var parts []string
	if e.quote != "" {
		parts = append(parts, m.theme.QuoteBlock.Width(width-2).Render(e.quote))
	}
	if e.text != "" {
		parts = append(parts, lipgloss.NewStyle().Width(width-2).Render(e.text))
	}
	if len(e.attachments) > 0 {
		parts = append(parts, m.theme.AttachmentLine.Render("[attached: "+strings.Join(e.attachments, ", ")+"]"))
	}
	label := m.theme.UserLabel.Render("you")
	if e.research {
		label += m.theme.StatusLine.Render("  research mode")
	}
	return label + "\n" + m.theme.UserBubble.Render(strings.Join(parts, "\n"))
}

func (m *Model) renderAssistant(e *entry, width int) string {
	label := m.theme.AssistantLabel.Render("calliope")
	if e.streaming() {
		label += " " + m.spinner.View()
		if m.status != "" {
			label += m.theme.StatusLine.Render(" " + m.status)
		}
	}

	var parts []string
	if body := m.renderAssistantBody(e, width-2); body != "" {
		parts = append(parts, body)
	}

	if f := e.final; f != nil {
		if f.Research && len(f.Sources) > 0 {
			var src []string
			for _, s := range f.Sources {
				line := fmt.Sprintf("[%s] %s", s.ID, s.Label())
				if s.URL != "" && s.URL != s.Label() {
					line += "  " + styles.RenderLink(s.URL)
				}
				src = append(src, m.theme.SourceRef.Render(line))
			}
			parts = append(parts, strings.Join(src, "\n"))
		}
		switch f.Outcome {
		case conversation.OutcomeCancelled:
			parts = append(parts, m.theme.Notice.Render(styles.StatusIndicators.Warning+" "+f.Notice))
		case conversation.OutcomeServerError, conversation.OutcomeFailed:
			if f.Notice != "" {
				parts = append(parts, m.theme.Error.Width(width-2).Render(styles.StatusIndicators.Error+" "+f.Notice))
			}
		}
	}

	if len(parts) == 0 {
		return label
	}
	return label + "\n" + m.theme.AssistantBubble.Render(strings.Join(parts, "\n\n"))
}

// renderAssistantBody renders finished markdown through glamour and
// everything else, including streaming text, as styled segments.
func (m *Model) renderAssistantBody(e *entry, width int) string {
	if f := e.final; f != nil && f.Outcome == conversation.OutcomeCompleted && m.markdown {
		text := f.Text()
		if render.LooksLikeMarkdown(text) {
			if e.rendered == "" || e.renderedWidth != width {
				e.rendered = m.markdownRenderer(width).Render(text)
				e.renderedWidth = width
			}
			return e.rendered
		}
	}
	return lipgloss.NewStyle().Width(width).Render(m.renderSegments(e.segments))
}

func (m *Model) renderSegments(segs []citation.Segment) string {
	var sb strings.Builder
	for _, seg := range segs {
		if seg.Kind != citation.Cited {
			sb.WriteString(seg.Text)
			continue
		}
		sb.WriteString(m.theme.Cited.Render(seg.Text))
		sb.WriteString(m.theme.SourceRef.Render("[" + seg.SourceID + "]"))
	}
	return sb.String()
}

// markdownRenderer returns a glamour renderer for width, rebuilding it when
// the width or theme changed.
func (m *Model) markdownRenderer(width int) *render.Markdown {
	if m.md == nil || m.mdWidth != width {
		m.md = render.NewMarkdown(m.theme.GlamourStyle(), width)
		m.mdWidth = width
	}
	return m.md
}

// renderEmptyState renders the welcome text shown before the first message.
func (m *Model) renderEmptyState() string {
	width := min(max(m.viewport.Width-4, 30), 72)
	center := lipgloss.NewStyle().Width(width).Align(lipgloss.Center)

	var sb strings.Builder
	sb.WriteString(center.Render(m.theme.HeaderTitle.Render("calliope")))
	sb.WriteString("\n\n")
	sb.WriteString(center.Render(m.theme.HeaderMeta.Render("Type a message and press Enter.")))
	sb.WriteString("\n\n")
	tips := []struct{ key, desc string }{
		{"/help", "list commands"},
		{"/research", "answers with inline citations"},
		{"/attach <path>", "upload a file with your next message"},
		{"Ctrl+O", "browse earlier chats"},
	}
	for _, tip := range tips {
		sb.WriteString(center.Render(m.theme.ShortcutKey.Render(tip.key) + "  " + m.theme.ShortcutDesc.Render(tip.desc)))
		sb.WriteString("\n")
	}
	return lipgloss.NewStyle().PaddingTop(1).Render(sb.String())
}

// =============================================================================
// INPUT AND STATUS BAR
// =============================================================================

func (m Model) renderInput() string {
	box := m.theme.InputContainer.Width(max(m.width, 1)).Render(m.input.View())

	var hints []string
	if len(m.files) > 0 {
		names := make([]string, len(m.files))
		for i, f := range m.files {
			names[i] = filepath.Base(f)
		}
		hints = append(hints, m.theme.AttachmentLine.Render("[attached: "+strings.Join(names, ", ")+"]"))
	}
	if m.quote != "" {
		hints = append(hints, m.theme.QuoteBlock.Render(util.TruncateWidth(util.QuotePreview(m.quote), max(m.width-4, 10))))
	}
	if len(hints) == 0 {
		return box + "\n"
	}
	return box + "\n" + strings.Join(hints, "  ")
}

func (m Model) renderStatusBar() string {
	width := max(m.width, 1)

	var left string
	switch {
	case m.processing:
		left = m.spinner.View() + " "
		if m.status != "" {
			left += m.status
		} else {
			left += "Waiting for response... (Esc to cancel)"
		}
	case m.statusMsg != "":
		left = m.statusMsg
	}

	right := m.help.ShortHelpView(m.keyMap.ShortHelp())
	if lipgloss.Width(left)+lipgloss.Width(right)+2 > width {
		right = ""
	}
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return m.theme.StatusBar.Width(width).MaxHeight(1).Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// OVERLAYS
// =============================================================================

func (m Model) renderCompletions() string {
	if m.completion == nil || !m.completion.Visible || len(m.completion.Completions) == 0 {
		return ""
	}

	comps := m.completion.Completions
	start := 0
	if m.completion.Index >= maxCompletionRows {
		start = m.completion.Index - maxCompletionRows + 1
	}
	end := min(start+maxCompletionRows, len(comps))

	var rows []string
	for i := start; i < end; i++ {
		c := comps[i]
		line := c.Display
		if c.Description != "" {
			line += "  " + m.theme.HistoryMeta.Render(util.TruncateWidth(c.Description, 40))
		}
		if i == m.completion.Index {
			rows = append(rows, m.theme.HistoryItemSelected.Render(line))
		} else {
			rows = append(rows, m.theme.HistoryItem.Render(line))
		}
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderHistoryPane(width, height int) string {
	style := lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height)

	if len(m.historyItems) == 0 {
		return style.Render(m.theme.HistoryMeta.Render("No chats yet"))
	}

	rows := []string{m.theme.HeaderTitle.Render("Chats")}
	// Keep the cursor on screen.
	visible := max(height-1, 1)
	start := 0
	if m.historyCursor >= visible {
		start = m.historyCursor - visible + 1
	}
	for i := start; i < len(m.historyItems) && len(rows) <= visible; i++ {
		e := m.historyItems[i]
		title := e.ShortTitle(max(width-4, 8))
		switch {
		case i == m.historyCursor:
			rows = append(rows, m.theme.HistoryItemSelected.Render(title))
		case e.ID == m.chatID:
			rows = append(rows, m.theme.HistoryItem.Bold(true).Render(title))
		default:
			rows = append(rows, m.theme.HistoryItem.Render(title))
		}
	}
	return style.Render(strings.Join(rows, "\n"))
}

func (m Model) renderHelpOverlay() string {
	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Purple).
		Padding(1, 2).
		Render(m.helpText() + "\n\n" + m.theme.HistoryMeta.Render("Press any key to close"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
