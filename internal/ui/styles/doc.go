// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling shared by the calliope REPL
// and TUI.
//
// Colors are lipgloss.AdaptiveColor values, so one palette serves light and
// dark terminals. NewThemeFor honors the ui.theme setting and otherwise asks
// termenv about the background.
//
// Cancellation notices use the amber Notice style; only failures use Error.
package styles
