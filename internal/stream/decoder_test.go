// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

// =============================================================================
// FIXTURES
// =============================================================================

const fixtureStream = "data: {\"type\":\"chat_info\",\"chat_id\":42}\n\n" +
	": keep-alive\n\n" +
	"event: message\r\ndata: {\"type\":\"status\",\"message\":\"Searching…\"}\r\n\r\n" +
	"data: {\"type\":\"response_chunk\",\"content\":\"Grüße, \"}\n\n" +
	"data: {\"type\":\"response_chunk\",\"content\":\"世界 [s:1]cited[/s:1]\"}\n\n" +
	"data: {\"type\":\"sources\",\"sources\":[{\"id\":1,\"title\":\"One\",\"url\":\"https://one\"}]}\n\n" +
	"data: {\"type\":\"title_update\",\"chat_id\":42,\"title\":\"Greetings\"}\n\n"

var fixtureFrames = []protocol.Frame{
	protocol.ChatInfo{ChatID: "42"},
	protocol.Status{Message: "Searching…"},
	protocol.ResponseChunk{Content: "Grüße, "},
	protocol.ResponseChunk{Content: "世界 [s:1]cited[/s:1]"},
	protocol.Sources{Sources: []protocol.Source{{ID: "1", Title: "One", URL: "https://one"}}},
	protocol.TitleUpdate{ChatID: "42", Title: "Greetings"},
}

func decodeAll(d *Decoder, chunks ...[]byte) []protocol.Frame {
	var out []protocol.Frame
	for _, c := range chunks {
		out = append(out, d.Feed(c)...)
	}
	return out
}

// =============================================================================
// DECODER TESTS
// =============================================================================

func TestDecoder_SingleChunk(t *testing.T) {
	d := NewDecoder(protocol.VersionAuto)
	got := decodeAll(d, []byte(fixtureStream))

	if diff := cmp.Diff(fixtureFrames, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "", d.Flush())
	assert.Equal(t, 0, d.Dropped())
	assert.Equal(t, len(fixtureFrames), d.Decoded())
}

func TestDecoder_SplitAtEveryOffset(t *testing.T) {
	raw := []byte(fixtureStream)
	for i := 0; i <= len(raw); i++ {
		d := NewDecoder(protocol.VersionAuto)
		got := decodeAll(d, raw[:i], raw[i:])
		if diff := cmp.Diff(fixtureFrames, got); diff != "" {
			t.Fatalf("split at %d changed frames (-want +got):\n%s", i, diff)
		}
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	raw := []byte(fixtureStream)
	d := NewDecoder(protocol.VersionAuto)

	var got []protocol.Frame
	for i := range raw {
		got = append(got, d.Feed(raw[i:i+1])...)
	}
	if diff := cmp.Diff(fixtureFrames, got); diff != "" {
		t.Errorf("byte-wise frames mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_DelimiterWaitsForSecondNewline(t *testing.T) {
	d := NewDecoder(protocol.VersionAuto)

	got := d.Feed([]byte("data: {\"type\":\"response_chunk\",\"content\":\"a\"}\n"))
	assert.Empty(t, got, "frame must not decode before its delimiter is complete")

	got = d.Feed([]byte("\n"))
	assert.Equal(t, []protocol.Frame{protocol.ResponseChunk{Content: "a"}}, got)
}

func TestDecoder_SplitCRLFDelimiter(t *testing.T) {
	d := NewDecoder(protocol.VersionAuto)
	got := decodeAll(d,
		[]byte("data: {\"response\":\"x\"}\r"),
		[]byte("\n\r"),
		[]byte("\n"),
	)
	assert.Equal(t, []protocol.Frame{protocol.ResponseChunk{Content: "x"}}, got)
}

func TestDecoder_MalformedFramesAreDropped(t *testing.T) {
	var hooked []*protocol.ProtocolError
	d := NewDecoder(protocol.VersionAuto, WithDropHook(func(err *protocol.ProtocolError) {
		hooked = append(hooked, err)
	}))

	raw := "data: {\"type\":\"response_chunk\",\"content\":\"a\"}\n\n" +
		"data: {\"type\":\"response_chunk\",\"content\":\n\n" +
		"data: {\"type\":\"response_chunk\",\"content\":\"b\"}\n\n" +
		"data: not json at all\n\n" +
		"data: {\"type\":\"response_chunk\",\"content\":\"c\"}\n\n"

	got := d.Feed([]byte(raw))

	want := []protocol.Frame{
		protocol.ResponseChunk{Content: "a"},
		protocol.ResponseChunk{Content: "b"},
		protocol.ResponseChunk{Content: "c"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("valid frames changed (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, d.Dropped())
	require.Len(t, hooked, 2)
	for _, err := range hooked {
		var perr *protocol.ProtocolError
		assert.True(t, errors.As(err, &perr))
	}
}

func TestDecoder_DropsLoggedOnlyWithoutHook(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	malformed := []byte("data: {oops\n\n")

	NewDecoder(protocol.VersionAuto, WithLogger(zap.New(core))).Feed(malformed)
	assert.Equal(t, 1, logs.FilterMessage("dropping malformed frame").Len())

	logs.TakeAll()
	NewDecoder(protocol.VersionAuto, WithLogger(zap.New(core)),
		WithDropHook(func(*protocol.ProtocolError) {})).Feed(malformed)
	assert.Zero(t, logs.FilterMessage("dropping malformed frame").Len())
}

func TestDecoder_LoggedPayloadKeepsCharactersWhole(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	d := NewDecoder(protocol.VersionTyped, WithLogger(zap.New(core)))

	// 100 two-byte runes: a byte cut at 80 would split one.
	payload := `{"note":"` + strings.Repeat("é", 100) + `"}`
	assert.Empty(t, d.Feed([]byte("data: "+payload+"\n\n")))

	entries := logs.FilterMessage("ignoring frame without a known tag").All()
	require.Len(t, entries, 1)
	logged := entries[0].ContextMap()["payload"].(string)
	assert.True(t, utf8.ValidString(logged), "logged payload %q is not valid UTF-8", logged)
	assert.True(t, strings.HasSuffix(logged, "..."))
	assert.Equal(t, 80, utf8.RuneCountInString(logged))
}

func TestDecoder_MultipleDataLines(t *testing.T) {
	d := NewDecoder(protocol.VersionAuto)
	got := d.Feed([]byte("data: {\"type\":\"response_chunk\",\ndata: \"content\":\"joined\"}\n\n"))
	assert.Equal(t, []protocol.Frame{protocol.ResponseChunk{Content: "joined"}}, got)
}

func TestDecoder_IgnoresEmptyAndSentinelFrames(t *testing.T) {
	d := NewDecoder(protocol.VersionAuto)
	got := d.Feed([]byte("data:\n\ndata: [DONE]\n\nretry: 10\n\n\n\n"))
	assert.Empty(t, got)
	assert.Equal(t, 0, d.Dropped())
}

func TestDecoder_LegacyFrames(t *testing.T) {
	raw := "data: {\"status\":\"searching\",\"message\":\"Searching the web\"}\n\n" +
		"data: {\"response\":\"Hel\"}\n\n" +
		"data: {\"response\":\"lo\"}\n\n" +
		"data: {\"error\":\"An error occurred: boom\"}\n\n"

	d := NewDecoder(protocol.VersionLegacy)
	got := d.Feed([]byte(raw))

	want := []protocol.Frame{
		protocol.Status{Message: "Searching the web"},
		protocol.ResponseChunk{Content: "Hel"},
		protocol.ResponseChunk{Content: "lo"},
		protocol.ErrorFrame{Message: "An error occurred: boom"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("legacy frames mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_FlushReturnsResidueAsText(t *testing.T) {
	d := NewDecoder(protocol.VersionAuto)
	got := d.Feed([]byte("data: {\"response\":\"a\"}\n\ntrailing words"))
	assert.Len(t, got, 1)

	assert.Equal(t, "trailing words", d.Flush())
	assert.Equal(t, "", d.Flush(), "flush is not repeatable")
	assert.Empty(t, d.Feed([]byte("\n\n")), "flushed residue is gone")
}

func TestDecoder_FlushNeverDecodesResidue(t *testing.T) {
	d := NewDecoder(protocol.VersionAuto)
	residue := "data: {\"type\":\"response_chunk\",\"content\":\"late\"}"
	assert.Empty(t, d.Feed([]byte(residue)))
	assert.Equal(t, residue, d.Flush())
	assert.Equal(t, 0, d.Decoded())
}

func TestDecoder_WhitespaceResidueIsDropped(t *testing.T) {
	d := NewDecoder(protocol.VersionAuto)
	d.Feed([]byte("data: {\"response\":\"a\"}\n\n \r\n"))
	assert.Equal(t, "", d.Flush())
}

// =============================================================================
// READER TESTS
// =============================================================================

type sliceSource struct {
	chunks [][]byte
	err    error
	calls  int
}

func (s *sliceSource) Next(ctx context.Context) ([]byte, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.chunks) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func TestReader_YieldsFramesThenEOF(t *testing.T) {
	src := &sliceSource{chunks: [][]byte{
		[]byte("data: {\"type\":\"chat_info\",\"chat_id\":42}\n\ndata: {\"type\":\"response_chunk\",\"con"),
		[]byte("tent\":\"Hel\"}\n\ndata: {\"type\":\"response_chunk\",\"content\":\"lo\"}\n\nbye"),
	}}
	r := NewReader(src, NewDecoder(protocol.VersionAuto))
	ctx := context.Background()

	var got []protocol.Frame
	for {
		f, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, f)
	}

	want := []protocol.Frame{
		protocol.ChatInfo{ChatID: "42"},
		protocol.ResponseChunk{Content: "Hel"},
		protocol.ResponseChunk{Content: "lo"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "bye", r.Trailing())

	// Not restartable.
	_, err := r.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_SourceErrorDiscardsBuffer(t *testing.T) {
	boom := errors.New("connection reset")
	src := &sliceSource{
		chunks: [][]byte{[]byte("data: {\"response\":\"partial")},
		err:    boom,
	}
	r := NewReader(src, NewDecoder(protocol.VersionAuto))

	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "", r.Trailing())
	assert.Equal(t, "", r.Decoder().Flush(), "partial frame discarded")

	calls := src.calls
	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, calls, src.calls, "no reads after a terminal error")
}
