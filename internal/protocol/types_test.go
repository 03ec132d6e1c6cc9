// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestChatID_JSON(t *testing.T) {
	var fromNumber, fromString, fromNull ChatID
	if err := json.Unmarshal([]byte(`42`), &fromNumber); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if err := json.Unmarshal([]byte(`"42"`), &fromString); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if err := json.Unmarshal([]byte(`null`), &fromNull); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}

	if fromNumber != fromString {
		t.Errorf("number id %q != string id %q", fromNumber, fromString)
	}
	if !fromNull.IsZero() {
		t.Errorf("null id = %q, want zero", fromNull)
	}

	out, _ := json.Marshal(ChatID("42"))
	if string(out) != "42" {
		t.Errorf("marshal numeric id = %s, want 42", out)
	}
	out, _ = json.Marshal(ChatID("c-9"))
	if string(out) != `"c-9"` {
		t.Errorf("marshal string id = %s, want \"c-9\"", out)
	}
}

func TestChatSummary_DisplayTitle(t *testing.T) {
	if got := (ChatSummary{ID: "3", Title: "Trip"}).DisplayTitle(); got != "Trip" {
		t.Errorf("DisplayTitle = %q, want Trip", got)
	}
	if got := (ChatSummary{ID: "3", Title: "  "}).DisplayTitle(); got != "Chat 3" {
		t.Errorf("DisplayTitle fallback = %q, want %q", got, "Chat 3")
	}
}

func TestTimestamp_ZonelessISO(t *testing.T) {
	var summary ChatSummary
	payload := `{"id":1,"title":"t","created_at":"2024-05-01T10:20:30.123456","updated_at":"2024-05-01T11:00:00+02:00","message_count":4}`
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := time.Date(2024, 5, 1, 10, 20, 30, 123456000, time.UTC)
	if !summary.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", summary.CreatedAt, want)
	}
	if summary.UpdatedAt.Hour() != 11 {
		t.Errorf("UpdatedAt hour = %d, want 11", summary.UpdatedAt.Hour())
	}
}

func TestSource_Label(t *testing.T) {
	cases := map[string]Source{
		"Title":     {ID: "1", Title: "Title", URL: "https://x"},
		"https://x": {ID: "1", URL: "https://x"},
		"source 1":  {ID: "1"},
	}
	for want, src := range cases {
		if got := src.Label(); got != want {
			t.Errorf("Label(%+v) = %q, want %q", src, got, want)
		}
	}
}

func TestCancellationError_UnwrapsContextCanceled(t *testing.T) {
	err := error(&CancellationError{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("CancellationError should unwrap to context.Canceled")
	}

	wrapped := &TransportError{Op: "open", StatusCode: 502, Cause: errors.New("bad gateway")}
	if got := UserMessage(wrapped); got != "Sorry, I encountered an error: transport open: HTTP 502: bad gateway" {
		t.Errorf("UserMessage = %q", got)
	}
}
