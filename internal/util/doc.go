// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across calliope.
//
// # Key Functions
//
// Text:
//   - NormalizeInput: NFC normalization and trimming of typed input
//   - TruncateRunes, QuotePreview: rune-safe truncation for display
//   - TruncateWidth, StringWidth: terminal-width-aware truncation
//
// Files:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	text := util.NormalizeInput(raw)
//	preview := util.QuotePreview(quote)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
