// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// output.go - JSON output for scripting.
//
// Commands that support --json wrap their data in jsonResponse so scripts
// see one envelope shape everywhere.

package cli

import (
	"encoding/json"
	"io"
	"time"
)

// jsonResponse is the envelope for --json output.
type jsonResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// now is replaced in tests.
var now = time.Now

func newJSONResponse(command string, data any) *jsonResponse {
	return &jsonResponse{
		Success:   true,
		Data:      data,
		Timestamp: now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

func newJSONErrorResponse(command string, err error) *jsonResponse {
	msg := err.Error()
	return &jsonResponse{
		Success:   false,
		Error:     &msg,
		Timestamp: now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

func (r *jsonResponse) write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
