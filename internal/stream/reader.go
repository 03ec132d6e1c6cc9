// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

// ChunkSource yields raw byte chunks in arrival order. Next returns io.EOF
// once the server has closed the stream.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// Reader pulls chunks from a source and yields decoded frames one at a time.
// The sequence is finite and cannot be restarted: once Next returns an error
// it keeps returning that error.
type Reader struct {
	src     ChunkSource
	dec     *Decoder
	pending []protocol.Frame

	trailing string
	err      error
}

// NewReader wraps src with a decoder.
func NewReader(src ChunkSource, dec *Decoder) *Reader {
	return &Reader{src: src, dec: dec}
}

// Next returns the next frame. At the clean end of the stream it returns
// io.EOF and Trailing holds any undelimited residue. Any other error from
// the source is returned as-is and the buffered bytes are discarded.
func (r *Reader) Next(ctx context.Context) (protocol.Frame, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return nil, r.err
		}

		chunk, err := r.src.Next(ctx)
		if len(chunk) > 0 {
			r.pending = append(r.pending, r.dec.Feed(chunk)...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.trailing = r.dec.Flush()
				r.err = io.EOF
			} else {
				r.dec.Reset()
				r.pending = nil
				r.err = err
				return nil, err
			}
		}
	}

	frame := r.pending[0]
	r.pending = r.pending[1:]
	return frame, nil
}

// Trailing returns the plain text left over when the stream ended without a
// final delimiter. It is empty until Next has returned io.EOF.
func (r *Reader) Trailing() string {
	return r.trailing
}

// Decoder exposes the underlying decoder for its counters.
func (r *Reader) Decoder() *Decoder {
	return r.dec
}
