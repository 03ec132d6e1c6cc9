// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

// readChunkSize is the read buffer size for streaming bodies.
const readChunkSize = 4096

// Stream is the raw byte stream of one chat response.
type Stream struct {
	body      io.ReadCloser
	requestID string
	buf       []byte

	// stop unregisters the close-on-cancel hook.
	stop func() bool

	// err is returned on the next call after a read returned data and an error.
	err error

	closeOnce sync.Once
	logger    *zap.Logger
}

func newStream(ctx context.Context, body io.ReadCloser, requestID string, logger *zap.Logger) *Stream {
	s := &Stream{
		body:      body,
		requestID: requestID,
		buf:       make([]byte, readChunkSize),
		logger:    logger,
	}
	// RELIABILITY: a cancelled turn must not wait for the server's next byte.
	s.stop = context.AfterFunc(ctx, func() {
		s.body.Close()
	})
	return s
}

// RequestID returns the X-Request-ID the stream was opened with.
func (s *Stream) RequestID() string {
	return s.requestID
}

// Next returns the next raw chunk. It returns io.EOF when the server closed
// the stream, ErrCancelled when ctx was cancelled and a TransportError on
// any other read failure. Chunks returned are owned by the caller.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			s.Close()
			if errors.Is(err, context.Canceled) {
				return nil, ErrCancelled
			}
			return nil, &protocol.TransportError{Op: "read", Cause: err}
		}
		if s.err != nil {
			return nil, s.err
		}

		n, err := s.body.Read(s.buf)
		if err != nil {
			s.err = s.readError(ctx, err)
		}
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, s.buf[:n])
			return chunk, nil
		}
		if s.err != nil {
			return nil, s.err
		}
	}
}

func (s *Stream) readError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		s.Close()
		return io.EOF
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		return ErrCancelled
	default:
		s.logger.Warn("stream read failed", zap.String("request_id", s.requestID), zap.Error(err))
		s.Close()
		return &protocol.TransportError{Op: "read", Cause: err}
	}
}

// Close releases the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		err = s.body.Close()
	})
	return err
}
