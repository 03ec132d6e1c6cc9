// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render is the line-oriented rendering sink used by the REPL and
// the ask command.
//
// Assistant segments are written as they arrive. Cited spans are styled and
// followed by their source id. When markdown is on and the output is a
// terminal, a finished message is redrawn through glamour in place of the
// raw stream.
//
// # Key Types
//
//   - Renderer: implements conversation.Sink and conversation.Observer
//   - Markdown: glamour wrapper with a plain-text fallback
package render
