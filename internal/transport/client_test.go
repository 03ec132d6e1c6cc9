// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

// =============================================================================
// HELPERS
// =============================================================================

func readAll(t *testing.T, s *Stream) string {
	t.Helper()
	var b strings.Builder
	for {
		chunk, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return b.String()
		}
		require.NoError(t, err)
		b.Write(chunk)
	}
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestOpenStream_SendsTurnAndYieldsChunks(t *testing.T) {
	const body = "data: {\"type\":\"chat_info\",\"chat_id\":42}\n\ndata: {\"type\":\"response_chunk\",\"content\":\"Hello\"}\n\n"

	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		cookie, err := r.Cookie("session")
		if assert.NoError(t, err) {
			assert.Equal(t, "abc", cookie.Value)
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, body)
	}))
	defer server.Close()

	client := NewClient(server.URL).WithSessionCookie("abc").WithAPIToken("tok")
	s, err := client.OpenStream(context.Background(), protocol.OutgoingTurn{Text: "hi", UseSearch: true, ChatID: "7"})
	require.NoError(t, err)
	defer s.Close()

	assert.NotEmpty(t, s.RequestID())
	assert.Equal(t, body, readAll(t, s))

	assert.Equal(t, "hi", got["message"])
	assert.Equal(t, true, got["use_search"])
	assert.Equal(t, float64(7), got["chat_id"])

	// EOF is sticky.
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenStream_HTTPErrorIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).OpenStream(context.Background(), protocol.OutgoingTurn{Text: "hi"})

	var terr *protocol.TransportError
	require.True(t, errors.As(err, &terr), "got %v", err)
	assert.Equal(t, "open", terr.Op)
	assert.Equal(t, http.StatusBadGateway, terr.StatusCode)
	assert.Contains(t, terr.Error(), "upstream unavailable")
}

func TestOpenStream_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := NewClient(addr).OpenStream(context.Background(), protocol.OutgoingTurn{Text: "hi"})

	var terr *protocol.TransportError
	assert.True(t, errors.As(err, &terr), "got %v", err)
	assert.NotErrorIs(t, err, ErrCancelled)
}

func TestOpenStream_CancelBeforeOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("http://127.0.0.1:1").OpenStream(ctx, protocol.OutgoingTurn{Text: "hi"})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestStream_CancelUnblocksPendingRead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"response\":\"first\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := NewClient(server.URL).OpenStream(ctx, protocol.OutgoingTurn{Text: "hi"})
	require.NoError(t, err)

	chunk, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(chunk), "first")

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not unblock the pending read")
	}

	// No further chunks after cancellation.
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
}

// =============================================================================
// HISTORY ENDPOINT TESTS
// =============================================================================

func TestListChats_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats", r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"chats":[{"id":3,"title":"Trip","created_at":"2024-05-01T10:00:00","updated_at":"2024-05-02T10:00:00","message_count":4},{"id":"9","title":""}]}`)
	}))
	defer server.Close()

	chats, err := NewClient(server.URL).WithRetry(3, time.Millisecond).ListChats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	require.Len(t, chats, 2)
	assert.Equal(t, protocol.ChatID("3"), chats[0].ID)
	assert.Equal(t, "Trip", chats[0].DisplayTitle())
	assert.Equal(t, 4, chats[0].MessageCount)
	assert.Equal(t, "Chat 9", chats[1].DisplayTitle())
}

func TestListChats_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "login required", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).WithRetry(3, time.Millisecond).ListChats(context.Background())

	var terr *protocol.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusUnauthorized, terr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats/42/messages", r.URL.Path)
		io.WriteString(w, `{"messages":[{"id":1,"role":"user","content":"hi","content_type":"text","created_at":"2024-05-01T10:00:00"},{"id":2,"role":"assistant","content":"Hello","content_type":"text"}]}`)
	}))
	defer server.Close()

	msgs, err := NewClient(server.URL).ChatMessages(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "Hello", msgs[1].Content)

	_, err = NewClient(server.URL).ChatMessages(context.Background(), "")
	assert.Error(t, err)
}

// =============================================================================
// UPLOAD TESTS
// =============================================================================

func TestUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		w.Header().Set("Content-Type", "application/json")
		if header.Filename == "bad.bin" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"success":false,"error":"File type not allowed"}`)
			return
		}
		json.NewEncoder(w).Encode(protocol.UploadResult{Success: true, Filename: header.Filename, Content: string(data)})
	}))
	defer server.Close()

	dir := t.TempDir()
	good := filepath.Join(dir, "notes.txt")
	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(good, []byte("remember the milk"), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte{0, 1, 2}, 0o600))

	client := NewClient(server.URL)

	res, err := client.Upload(context.Background(), good)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", res.Filename)
	assert.Equal(t, "remember the milk", res.Content)

	_, err = client.Upload(context.Background(), bad)
	var uerr *protocol.UploadError
	require.True(t, errors.As(err, &uerr), "got %v", err)
	assert.Equal(t, "bad.bin", uerr.Filename)
	assert.Equal(t, "File type not allowed", uerr.Message)

	_, err = client.Upload(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.True(t, errors.As(err, &uerr))
}

func TestClientMethodChaining(t *testing.T) {
	c := NewClient(" http://example.test/ ").
		WithPaths("/chat", "", "/chats/").
		WithVersion(protocol.VersionLegacy).
		WithRateLimit(2).
		WithTimeout(time.Second)

	assert.Equal(t, "http://example.test", c.BaseURL())
	assert.Equal(t, "/chat", c.chatPath)
	assert.Equal(t, DefaultUploadPath, c.uploadPath)
	assert.Equal(t, "/chats", c.chatsPath)
	assert.Equal(t, protocol.VersionLegacy, c.Version())
	assert.Equal(t, DefaultBaseURL, NewClient("").BaseURL())
}
