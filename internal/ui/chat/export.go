// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/calliope-tui/internal/export"
)

// =============================================================================
// EXPORT
// =============================================================================

// exportDir is where the TUI writes exports, relative to the working
// directory.
const exportDir = "./exports"

// exportCmd exports the local transcript of chatID asynchronously.
func exportCmd(store Transcripts, chatID, format string) tea.Cmd {
	return func() tea.Msg {
		t, err := store.Load(chatID)
		if err != nil {
			return exportDoneMsg{err: err}
		}

		opts := export.DefaultOptions()
		opts.OutputDir = exportDir
		exp, err := export.ForFormat(format, opts)
		if err != nil {
			return exportDoneMsg{err: err}
		}

		path, err := export.ExportToFile(t, exp, opts)
		return exportDoneMsg{path: path, err: err}
	}
}
