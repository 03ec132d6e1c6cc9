// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the chat server's event stream into typed frames.
//
// The decoder is push-based: raw chunks of any size are fed in arrival
// order and every frame completed by a chunk is returned. Chunk boundaries
// never change the decoded sequence, including delimiters and multi-byte
// characters split across chunks.
package stream

import (
	"bytes"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// dataMarker prefixes every payload line of a frame.
const dataMarker = "data:"

// doneSentinel is sent by some proxies after the last frame. It is not JSON
// and not an error.
const doneSentinel = "[DONE]"

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns raw stream bytes into frames. It is not safe for concurrent
// use; one request loop owns it.
type Decoder struct {
	version protocol.Version
	buf     []byte

	decoded int
	dropped int

	onDrop func(*protocol.ProtocolError)
	logger *zap.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used for dropped and unknown frames.
func WithLogger(l *zap.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDropHook registers a callback for every malformed frame. The decoder
// does not log drops itself while a hook is set.
func WithDropHook(fn func(*protocol.ProtocolError)) Option {
	return func(d *Decoder) {
		d.onDrop = fn
	}
}

// NewDecoder creates a decoder for the given protocol version.
func NewDecoder(v protocol.Version, opts ...Option) *Decoder {
	d := &Decoder{
		version: v,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed appends a chunk to the carry-over buffer and returns every frame it
// completed, in order.
func (d *Decoder) Feed(chunk []byte) []protocol.Frame {
	d.buf = append(d.buf, chunk...)

	var frames []protocol.Frame
	consumed := 0
	for {
		start, end := findDelimiter(d.buf[consumed:])
		if start < 0 {
			break
		}
		block := d.buf[consumed : consumed+start]
		consumed += end

		if frame := d.decodeBlock(block); frame != nil {
			frames = append(frames, frame)
		}
	}

	if consumed > 0 {
		// PERFORMANCE: keep only the undecoded tail so the buffer stays small
		rest := copy(d.buf, d.buf[consumed:])
		d.buf = d.buf[:rest]
	}
	return frames
}

// Flush ends decoding and returns whatever is left in the buffer as plain
// text. The residue is never decoded as a frame. Whitespace-only residue
// returns "".
func (d *Decoder) Flush() string {
	residual := strings.TrimSpace(string(d.buf))
	d.buf = nil
	if residual != "" {
		d.logger.Debug("stream ended without frame delimiter", zap.Int("bytes", len(residual)))
	}
	return residual
}

// Reset discards buffered bytes without decoding them.
func (d *Decoder) Reset() {
	d.buf = nil
}

// Decoded returns the number of frames produced so far.
func (d *Decoder) Decoded() int {
	return d.decoded
}

// Dropped returns the number of malformed frames skipped so far.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// =============================================================================
// FRAME PARSING
// =============================================================================

// findDelimiter locates the first blank line: "\n\n" or "\n\r\n". It returns
// the index where the delimiter starts and the index just past it, or -1.
func findDelimiter(buf []byte) (start, end int) {
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		j := i + 1
		if j < len(buf) && buf[j] == '\r' {
			j++
		}
		if j < len(buf) && buf[j] == '\n' {
			return i, j + 1
		}
	}
	return -1, -1
}

// decodeBlock parses one delimited frame. Non-data fields (event:, id:,
// retry:, comments) are ignored.
func (d *Decoder) decodeBlock(block []byte) protocol.Frame {
	var data []string
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if !bytes.HasPrefix(line, []byte(dataMarker)) {
			continue
		}
		value := line[len(dataMarker):]
		value = bytes.TrimPrefix(value, []byte(" "))
		data = append(data, string(value))
	}
	if len(data) == 0 {
		return nil
	}

	payload := strings.Join(data, "\n")
	if trimmed := strings.TrimSpace(payload); trimmed == "" || trimmed == doneSentinel {
		return nil
	}

	frame, err := protocol.DecodePayload(d.version, []byte(payload))
	if err != nil {
		d.drop(err)
		return nil
	}
	if frame == nil {
		d.logger.Debug("ignoring frame without a known tag", zap.String("payload", util.TruncateRunes(payload, 80)))
		return nil
	}

	d.decoded++
	return frame
}

func (d *Decoder) drop(err error) {
	d.dropped++

	perr, ok := err.(*protocol.ProtocolError)
	if !ok {
		perr = &protocol.ProtocolError{Cause: err}
	}
	// A registered hook owns reporting the drop.
	if d.onDrop != nil {
		d.onDrop(perr)
		return
	}
	d.logger.Warn("dropping malformed frame", zap.Error(err))
}
