// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/unicode/norm"
)

// QuotePreviewRunes is how much of a quote the user bubble shows.
const QuotePreviewRunes = 100

// NormalizeInput prepares typed text for sending: CRLF becomes LF, the text
// is NFC-normalized and surrounding whitespace is trimmed.
func NormalizeInput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(norm.NFC.String(s))
}

// UNICODE: Rune-aware truncation never splits a multi-byte character.

// TruncateRunes truncates s to at most maxRunes runes, the last three being
// "..." when it was cut.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// QuotePreview keeps the first QuotePreviewRunes runes of a quote and
// appends "..." when anything was cut.
func QuotePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= QuotePreviewRunes {
		return s
	}
	return string(runes[:QuotePreviewRunes]) + "..."
}

// StringWidth returns the terminal display width of s. East Asian wide
// characters count as two columns.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// TruncateWidth truncates s to maxWidth terminal columns, ending in "..."
// when it was cut.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}
