// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package citation splits streamed research-mode text into plain and cited
// segments.
//
// Cited spans are wrapped in markers:
//
//	before [s:7]claimed fact[/s:7] after
//
// The parser is incremental. Text is fed as it streams in and segments are
// emitted as soon as they are unambiguous; a marker split across chunks is
// held back until it completes.
package citation

import "strings"

// Kind distinguishes plain from cited segments.
type Kind int

const (
	PlainText Kind = iota
	Cited
)

func (k Kind) String() string {
	if k == Cited {
		return "cited"
	}
	return "plain"
}

// Segment is one piece of rendered assistant text with markers removed.
type Segment struct {
	Kind     Kind
	Text     string
	SourceID string // set for Cited only
}

// Plain returns a PlainText segment.
func Plain(text string) Segment {
	return Segment{Kind: PlainText, Text: text}
}

// Cite returns a Cited segment.
func Cite(text, sourceID string) Segment {
	return Segment{Kind: Cited, Text: text, SourceID: sourceID}
}

const (
	startPrefix = "[s:"
	endPrefix   = "[/s:"
)

// Parser is a streaming citation parser. The zero value is ready to use.
// It is not safe for concurrent use.
type Parser struct {
	buf    string
	openID string
	inSpan bool
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends text and returns the segments it completed.
func (p *Parser) Feed(text string) []Segment {
	p.buf += text

	var out []Segment
	var plain strings.Builder
	emitPlain := func() {
		if plain.Len() > 0 {
			out = append(out, Plain(plain.String()))
			plain.Reset()
		}
	}

	for p.buf != "" {
		if p.inSpan {
			end := endPrefix + p.openID + "]"
			i := strings.Index(p.buf, end)
			if i < 0 {
				break
			}
			emitPlain()
			out = append(out, Cite(p.buf[:i], p.openID))
			p.buf = p.buf[i+len(end):]
			p.inSpan = false
			p.openID = ""
			continue
		}

		i := strings.Index(p.buf, startPrefix)
		if i < 0 {
			keep := heldPrefix(p.buf)
			plain.WriteString(p.buf[:len(p.buf)-keep])
			p.buf = p.buf[len(p.buf)-keep:]
			break
		}

		plain.WriteString(p.buf[:i])
		p.buf = p.buf[i:]

		id, n, status := scanStart(p.buf)
		switch status {
		case markerIncomplete:
			emitPlain()
			return out
		case markerInvalid:
			// "[s:" that is not a marker; the bracket is ordinary text.
			plain.WriteByte(p.buf[0])
			p.buf = p.buf[1:]
		case markerComplete:
			p.buf = p.buf[n:]
			p.openID = id
			p.inSpan = true
		}
	}

	emitPlain()
	return out
}

// Flush ends the stream. Held-back marker text is emitted as plain text and
// an unterminated span is emitted as cited with the text received so far.
func (p *Parser) Flush() []Segment {
	var out []Segment
	switch {
	case p.inSpan:
		out = append(out, Cite(p.buf, p.openID))
	case p.buf != "":
		out = append(out, Plain(p.buf))
	}
	p.Reset()
	return out
}

// Reset discards all buffered state.
func (p *Parser) Reset() {
	p.buf = ""
	p.openID = ""
	p.inSpan = false
}

// =============================================================================
// MARKER SCANNING
// =============================================================================

type markerStatus int

const (
	markerIncomplete markerStatus = iota
	markerInvalid
	markerComplete
)

// scanStart inspects s, which begins with "[s:". It returns the id and the
// marker length when the marker is complete.
func scanStart(s string) (id string, n int, status markerStatus) {
	for j := len(startPrefix); j < len(s); j++ {
		switch c := s[j]; {
		case c == ']':
			if j == len(startPrefix) {
				return "", 0, markerInvalid
			}
			return s[len(startPrefix):j], j + 1, markerComplete
		case c == '[' || isSpace(c):
			return "", 0, markerInvalid
		}
	}
	return "", 0, markerIncomplete
}

// heldPrefix returns how many trailing bytes of s could begin a start
// marker ("[" or "[s").
func heldPrefix(s string) int {
	for n := len(startPrefix) - 1; n > 0; n-- {
		if strings.HasSuffix(s, startPrefix[:n]) {
			return n
		}
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

// =============================================================================
// HELPERS
// =============================================================================

// Coalesce merges adjacent plain segments and drops empty plain ones.
// Chunking never changes the coalesced sequence.
func Coalesce(segs []Segment) []Segment {
	out := make([]Segment, 0, len(segs))
	for _, s := range segs {
		if s.Kind == PlainText {
			if s.Text == "" {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Kind == PlainText {
				out[n-1].Text += s.Text
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// Parse runs a whole text through a fresh parser.
func Parse(text string) []Segment {
	p := NewParser()
	segs := p.Feed(text)
	return Coalesce(append(segs, p.Flush()...))
}

// Text joins segment texts, markers removed.
func Text(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Text)
	}
	return b.String()
}
