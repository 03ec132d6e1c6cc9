// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"context"
	"fmt"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// TransportError is a network or connection failure. It is shown to the user
// as a generic apology and never retried automatically for chat turns.
type TransportError struct {
	Op         string // "open", "read", "upload", "list", "messages", "memory-*"
	StatusCode int    // HTTP status when the server answered, 0 otherwise
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s: HTTP %d: %v", e.Op, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ProtocolError is a single malformed frame. The decoder drops the frame and
// keeps going; it never ends a stream.
type ProtocolError struct {
	Payload string // truncated raw payload for logs
	Cause   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: malformed frame %q: %v", e.Payload, e.Cause)
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// ServerError is an explicit error frame. It ends the turn and its message is
// shown verbatim.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server: " + e.Message
}

// UploadError is a failed attachment upload. It aborts the pending send
// before any chat request is issued.
type UploadError struct {
	Filename string
	Message  string
	Cause    error
}

func (e *UploadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upload %s: %s: %v", e.Filename, e.Message, e.Cause)
	}
	return fmt.Sprintf("upload %s: %s", e.Filename, e.Message)
}

func (e *UploadError) Unwrap() error {
	return e.Cause
}

// CancellationError marks a turn the user stopped. It is not a failure.
type CancellationError struct {
	Cause error
}

func (e *CancellationError) Error() string {
	return "turn cancelled"
}

// Unwrap returns the cause, context.Canceled when none was recorded.
func (e *CancellationError) Unwrap() error {
	if e.Cause == nil {
		return context.Canceled
	}
	return e.Cause
}

// UserMessage is the text shown in the error bubble for a transport failure.
func UserMessage(err error) string {
	return "Sorry, I encountered an error: " + err.Error()
}
