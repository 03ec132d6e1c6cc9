// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package citation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func feedAll(chunks ...string) []Segment {
	p := NewParser()
	var segs []Segment
	for _, c := range chunks {
		segs = append(segs, p.Feed(c)...)
	}
	return Coalesce(append(segs, p.Flush()...))
}

func TestParser_SingleCall(t *testing.T) {
	p := NewParser()
	got := p.Feed("[s:1]hello[/s:1] world")
	want := []Segment{Cite("hello", "1"), Plain(" world")}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, p.Flush())
}

func TestParser_SplitAcrossCalls(t *testing.T) {
	got := feedAll("[s:1]hel", "lo[/s:1]!")
	want := []Segment{Cite("hello", "1"), Plain("!")}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_ProvisionalMarkerIsHeldBack(t *testing.T) {
	p := NewParser()

	assert.Equal(t, []Segment{Plain("See ")}, p.Feed("See [s"))

	assert.Empty(t, p.Feed(":ab"), "start marker without ] must not be emitted")
	assert.Empty(t, p.Feed("]quoted"), "open span waits for its end marker")

	got := p.Feed(" text[/s:ab] done")
	assert.Equal(t, []Segment{Cite("quoted text", "ab"), Plain(" done")}, got)
	assert.Empty(t, p.Flush(), "nothing left held back")
}

func TestParser_Flush(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []Segment
	}{
		{
			name:   "dangling bracket becomes plain",
			chunks: []string{"price is 5 ["},
			want:   []Segment{Plain("price is 5 [")},
		},
		{
			name:   "incomplete start marker becomes plain",
			chunks: []string{"x [s:12"},
			want:   []Segment{Plain("x [s:12")},
		},
		{
			name:   "unterminated span becomes cited",
			chunks: []string{"a [s:3]partial claim"},
			want:   []Segment{Plain("a "), Cite("partial claim", "3")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := feedAll(tt.chunks...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("segments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParser_NotMarkers(t *testing.T) {
	tests := []struct {
		in   string
		want []Segment
	}{
		{"array[s:] here", []Segment{Plain("array[s:] here")}},
		{"[s:a b]x[/s:a b]", []Segment{Plain("[s:a b]x[/s:a b]")}},
		{"[x] and [/s:1]", []Segment{Plain("[x] and [/s:1]")}},
		{"[s:[s:1]y[/s:1]", []Segment{Plain("[s:"), Cite("y", "1")}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Parse(tt.in)); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestParser_EndMarkerMustMatchID(t *testing.T) {
	got := Parse("[s:1]one [/s:2] still one[/s:1]")
	want := []Segment{Cite("one [/s:2] still one", "1")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_ChunkingNeverChangesResult(t *testing.T) {
	text := "Go [s:1]has goroutines[/s:1], and [s:web-2]channels[/s:web-2]. Arrays like a[i] [s are fine. 世界[s:3]終わり"
	want := Parse(text)

	// Every two-way split.
	for i := 0; i <= len(text); i++ {
		got := feedAll(text[:i], text[i:])
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("split at %d changed segments (-want +got):\n%s", i, diff)
		}
	}

	// Byte at a time.
	chunks := make([]string, 0, len(text))
	for i := 0; i < len(text); i++ {
		chunks = append(chunks, text[i:i+1])
	}
	if diff := cmp.Diff(want, feedAll(chunks...)); diff != "" {
		t.Errorf("byte-wise feed changed segments (-want +got):\n%s", diff)
	}
}

func TestParser_CoversWholeText(t *testing.T) {
	segs := Parse("a[s:1]b[/s:1]c[s:2]d")
	assert.Equal(t, "abcd", Text(segs))
}

func TestCoalesce(t *testing.T) {
	in := []Segment{Plain("a"), Plain(""), Plain("b"), Cite("c", "1"), Plain("d"), Plain("e"), Cite("", "2")}
	want := []Segment{Plain("ab"), Cite("c", "1"), Plain("de"), Cite("", "2")}
	assert.Equal(t, want, Coalesce(in))
}
