// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Emergency exit works in every mode.
	if key.Matches(msg, m.keyMap.Quit) {
		return m.quit()
	}

	if m.showHelp {
		// Any key closes help.
		m.showHelp = false
		return m, nil
	}

	if m.completion.Visible {
		if handled, next, cmd := m.handleCompletionKey(msg); handled {
			return next, cmd
		}
	}

	if m.showHistory {
		return m.handleHistoryKey(msg)
	}

	switch {
	case key.Matches(msg, m.keyMap.Cancel):
		if m.processing {
			return m.cancelResponse()
		}
		// Ctrl+C on an idle prompt clears it; on an empty prompt it quits.
		if msg.String() == "ctrl+c" {
			if m.input.Value() == "" && len(m.files) == 0 && m.quote == "" {
				return m.quit()
			}
			m.input.Reset()
			m.files = nil
			m.quote = ""
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Submit):
		return m.submit()

	case key.Matches(msg, m.keyMap.Complete):
		return m.startCompletion()

	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keyMap.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keyMap.Bottom):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keyMap.ToggleResearch):
		m.researchMode = !m.researchMode
		return m, nil

	case key.Matches(msg, m.keyMap.ToggleSearch):
		m.useSearch = !m.useSearch
		return m, nil

	case key.Matches(msg, m.keyMap.NewChat):
		return m.newChat()

	case key.Matches(msg, m.keyMap.History):
		return m.toggleHistory()

	case key.Matches(msg, m.keyMap.Copy):
		return m, m.copyCmd()

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = true
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Cancel), key.Matches(msg, m.keyMap.History):
		return m.toggleHistory()

	case key.Matches(msg, m.keyMap.ListUp):
		if m.historyCursor > 0 {
			m.historyCursor--
		}

	case key.Matches(msg, m.keyMap.ListDown):
		if m.historyCursor < len(m.historyItems)-1 {
			m.historyCursor++
		}

	case key.Matches(msg, m.keyMap.ListOpen):
		if m.historyCursor >= len(m.historyItems) {
			return m, nil
		}
		id := m.historyItems[m.historyCursor].ID
		next, cmd := m.toggleHistory()
		nm := next.(Model)
		if nm.processing {
			nm.statusMsg = "Wait for the current response to finish"
			return nm, cmd
		}
		return nm, tea.Batch(cmd, nm.loadCmd(id))
	}
	return m, nil
}

// =============================================================================
// TAB COMPLETION
// =============================================================================

func (m Model) startCompletion() (tea.Model, tea.Cmd) {
	value := m.input.Value()
	comps := m.completer.Complete(value)
	if len(comps) == 0 {
		return m, nil
	}
	m.completion.Update(value, comps)
	if len(comps) == 1 {
		return m.acceptCompletion(), nil
	}
	return m, nil
}

// handleCompletionKey drives the popup. Keys it does not use close the popup
// and fall through to normal handling.
func (m Model) handleCompletionKey(msg tea.KeyMsg) (bool, tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Complete), msg.Type == tea.KeyDown:
		m.completion.Next()
		return true, m, nil
	case key.Matches(msg, m.keyMap.CompletePrev), msg.Type == tea.KeyUp:
		m.completion.Prev()
		return true, m, nil
	case key.Matches(msg, m.keyMap.Submit):
		return true, m.acceptCompletion(), nil
	case msg.Type == tea.KeyEsc:
		m.completion.Clear()
		return true, m, nil
	}
	m.completion.Clear()
	return false, m, nil
}

// acceptCompletion writes the highlighted candidate into the input.
func (m Model) acceptCompletion() Model {
	lines := m.completer.CompleteLine(m.completion.Input)
	idx := m.completion.Index
	m.completion.Accept()
	m.completion.Clear()
	if idx < 0 || idx >= len(lines) {
		return m
	}
	line := lines[idx]
	// Commands that take arguments get a trailing space.
	if cmd := m.registry.Get(line); cmd != nil && len(cmd.Args) > 0 {
		line += " "
	}
	m.input.SetValue(line)
	m.input.CursorEnd()
	return m
}
