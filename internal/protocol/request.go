// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

// RequestBody is the JSON body of a chat request. It is the superset of the
// legacy and typed variants; fields a variant does not use are left nil and
// omitted.
type RequestBody struct {
	Message             string  `json:"message"`
	UseSearch           *bool   `json:"use_search,omitempty"`
	IsResearchMode      *bool   `json:"is_research_mode,omitempty"`
	QuotedText          *string `json:"quoted_text,omitempty"`
	ChatID              *ChatID `json:"chat_id,omitempty"`
	IsFileUploadMessage bool    `json:"is_file_upload_message"`
}

// NewRequestBody builds the body for a turn under the given version.
//
// Legacy servers receive {message, use_search, quoted_text,
// is_file_upload_message}. Typed and auto send the superset; chat_id and
// quoted_text are omitted while empty.
func NewRequestBody(turn OutgoingTurn, v Version) RequestBody {
	body := RequestBody{
		Message:             turn.Text,
		UseSearch:           boolPtr(turn.UseSearch),
		IsFileUploadMessage: turn.HasAttachments(),
	}
	if turn.QuotedText != "" {
		q := turn.QuotedText
		body.QuotedText = &q
	}

	if v == VersionLegacy {
		return body
	}

	body.IsResearchMode = boolPtr(turn.ResearchMode)
	if !turn.ChatID.IsZero() {
		id := turn.ChatID
		body.ChatID = &id
	}
	return body
}

func boolPtr(b bool) *bool {
	return &b
}
