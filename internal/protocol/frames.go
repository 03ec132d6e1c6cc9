// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/calliope-tui/internal/util"
)

// =============================================================================
// PROTOCOL VERSION
// =============================================================================

// Version selects which frame schema the decoder accepts and which request
// body variant the transport sends.
type Version string

const (
	// VersionAuto decodes typed frames when "type" is present and legacy
	// frames otherwise. Requests use the full field superset.
	VersionAuto Version = "auto"

	// VersionTyped accepts only "type"-discriminated frames.
	VersionTyped Version = "typed"

	// VersionLegacy accepts only status/response/error frames and sends the
	// legacy request body.
	VersionLegacy Version = "legacy"
)

// ErrUnknownVersion is returned by ParseVersion for unsupported names.
var ErrUnknownVersion = errors.New("unknown protocol version")

// ParseVersion parses a configured version name. Empty means auto.
func ParseVersion(s string) (Version, error) {
	switch Version(strings.ToLower(strings.TrimSpace(s))) {
	case "", VersionAuto:
		return VersionAuto, nil
	case VersionTyped:
		return VersionTyped, nil
	case VersionLegacy:
		return VersionLegacy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVersion, s)
	}
}

// =============================================================================
// FRAMES
// =============================================================================

// FrameType is the "type" discriminator of a typed frame.
type FrameType string

const (
	FrameChatInfo      FrameType = "chat_info"
	FrameStatus        FrameType = "status"
	FrameResponseChunk FrameType = "response_chunk"
	FrameTitleUpdate   FrameType = "title_update"
	FrameSources       FrameType = "sources"
	FrameError         FrameType = "error"
)

// Frame is one decoded server event. Exactly one concrete type per frame.
type Frame interface {
	Type() FrameType
}

// ChatInfo announces the server-assigned chat id.
type ChatInfo struct {
	ChatID ChatID
}

// Status is a transient progress message ("Searching...").
type Status struct {
	Message string
}

// ResponseChunk carries the next piece of assistant text.
type ResponseChunk struct {
	Content string
}

// TitleUpdate renames a chat in the history list.
type TitleUpdate struct {
	ChatID ChatID
	Title  string
}

// Sources lists the references for the current assistant message.
type Sources struct {
	Sources []Source
}

// ErrorFrame is a server-reported failure. It ends the turn.
type ErrorFrame struct {
	Message string
}

func (ChatInfo) Type() FrameType      { return FrameChatInfo }
func (Status) Type() FrameType        { return FrameStatus }
func (ResponseChunk) Type() FrameType { return FrameResponseChunk }
func (TitleUpdate) Type() FrameType   { return FrameTitleUpdate }
func (Sources) Type() FrameType       { return FrameSources }
func (ErrorFrame) Type() FrameType    { return FrameError }

// =============================================================================
// PAYLOAD DECODING
// =============================================================================

// wirePayload is the union of every field either schema uses. Pointer fields
// distinguish "absent" from "empty".
type wirePayload struct {
	Type     *string         `json:"type"`
	ChatID   ChatID          `json:"chat_id"`
	Message  *string         `json:"message"`
	Content  *string         `json:"content"`
	Title    string          `json:"title"`
	Sources  []Source        `json:"sources"`
	Status   json.RawMessage `json:"status"`
	Response *string         `json:"response"`
	Error    json.RawMessage `json:"error"`
}

// DecodePayload parses the JSON payload of one frame.
//
// It returns (nil, nil) for well-formed payloads that carry no frame the
// given version understands; unknown tags are skipped so newer servers stay
// compatible. Malformed payloads return a *ProtocolError.
func DecodePayload(v Version, payload []byte) (Frame, error) {
	var w wirePayload
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, &ProtocolError{Payload: util.TruncateRunes(string(payload), 120), Cause: err}
	}

	switch v {
	case VersionLegacy:
		return decodeLegacy(&w), nil
	case VersionTyped:
		if w.Type == nil {
			return nil, nil
		}
		return decodeTyped(&w, payload)
	default:
		if w.Type != nil {
			return decodeTyped(&w, payload)
		}
		return decodeLegacy(&w), nil
	}
}

func decodeTyped(w *wirePayload, payload []byte) (Frame, error) {
	switch FrameType(*w.Type) {
	case FrameChatInfo:
		if w.ChatID.IsZero() {
			return nil, &ProtocolError{
				Payload: util.TruncateRunes(string(payload), 120),
				Cause:   errors.New("chat_info without chat_id"),
			}
		}
		return ChatInfo{ChatID: w.ChatID}, nil
	case FrameStatus:
		return Status{Message: deref(w.Message)}, nil
	case FrameResponseChunk:
		return ResponseChunk{Content: deref(w.Content)}, nil
	case FrameTitleUpdate:
		return TitleUpdate{ChatID: w.ChatID, Title: w.Title}, nil
	case FrameSources:
		return Sources{Sources: w.Sources}, nil
	case FrameError:
		msg := deref(w.Message)
		if msg == "" {
			msg = rawText(w.Error)
		}
		if msg == "" {
			msg = "The server reported an error."
		}
		return ErrorFrame{Message: msg}, nil
	default:
		return nil, nil
	}
}

// decodeLegacy keys on field presence in the order the legacy client
// checked them. Empty values do not count as present.
func decodeLegacy(w *wirePayload) Frame {
	if status := rawText(w.Status); status != "" {
		msg := deref(w.Message)
		if msg == "" {
			msg = status
		}
		return Status{Message: msg}
	}
	if resp := deref(w.Response); resp != "" {
		return ResponseChunk{Content: resp}
	}
	if msg := rawText(w.Error); msg != "" {
		return ErrorFrame{Message: msg}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// rawText renders a raw JSON value as text: strings are unquoted, null and
// false are empty, anything else is returned verbatim.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	switch str := strings.TrimSpace(string(raw)); str {
	case "null", "false", "":
		return ""
	default:
		return str
	}
}
