// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	data := []byte("hello, world!")

	if err := AtomicWriteFile(path, data, 0o600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", content, data)
	}
}

func TestAtomicWriteFile_CreatesParentDirAndOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "test.txt")

	if err := AtomicWriteFile(path, []byte("first"), 0o600); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "second" {
		t.Errorf("content = %q, want second", content)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestNormalizeInput(t *testing.T) {
	// "e" + combining acute accent composes to a single rune.
	got := NormalizeInput("  cafe\u0301\r\nnext  ")
	if got != "caf\u00e9\nnext" {
		t.Errorf("NormalizeInput = %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"日本語テキスト", 5, "日本..."},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestQuotePreview(t *testing.T) {
	short := strings.Repeat("a", QuotePreviewRunes)
	if got := QuotePreview(short); got != short {
		t.Errorf("QuotePreview should keep a %d-rune quote intact", QuotePreviewRunes)
	}

	long := strings.Repeat("é", QuotePreviewRunes+5)
	want := strings.Repeat("é", QuotePreviewRunes) + "..."
	if got := QuotePreview(long); got != want {
		t.Errorf("QuotePreview = %q, want %q", got, want)
	}
}

func TestTruncateWidth(t *testing.T) {
	if got := StringWidth("日本"); got != 4 {
		t.Errorf("StringWidth(日本) = %d, want 4", got)
	}
	if got := TruncateWidth("hello world", 8); got != "hello..." {
		t.Errorf("TruncateWidth = %q", got)
	}
	if got := TruncateWidth("日本語テキスト", 7); StringWidth(got) > 7 {
		t.Errorf("TruncateWidth(CJK) = %q exceeds width", got)
	}
	if got := TruncateWidth("short", 10); got != "short" {
		t.Errorf("TruncateWidth should not touch short strings, got %q", got)
	}
}

func TestPlural(t *testing.T) {
	if got := Plural(1, "message", "messages"); got != "1 message" {
		t.Errorf("Plural(1) = %q", got)
	}
	if got := Plural(3, "message", "messages"); got != "3 messages" {
		t.Errorf("Plural(3) = %q", got)
	}
}
