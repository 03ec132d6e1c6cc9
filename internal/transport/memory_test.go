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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

func TestListMemories_SendsFilterAndDecodesPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/memories", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("category_id"))
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Empty(t, r.URL.Query().Get("per_page"))
		io.WriteString(w, `{"memories":[{"id":5,"title":"Editor","content":"Uses vim","category_id":2,"category_name":"Preferences","importance_score":0.8,"is_verified":true,"last_accessed_at":"2024-05-01T10:00:00"}],"total":21,"page":3,"pages":3,"has_next":false,"has_prev":true}`)
	}))
	defer server.Close()

	page, err := NewClient(server.URL).ListMemories(context.Background(), protocol.MemoryQuery{CategoryID: 2, Page: 3})
	require.NoError(t, err)

	require.Len(t, page.Memories, 1)
	m := page.Memories[0]
	assert.Equal(t, int64(5), m.ID)
	assert.Equal(t, "Preferences", m.CategoryName)
	assert.InDelta(t, 0.8, m.ImportanceScore, 1e-9)
	assert.True(t, m.IsVerified)
	assert.Equal(t, 21, page.Total)
	assert.True(t, page.HasPrev)
	assert.False(t, page.HasNext)
}

func TestListMemoryCategories_UsesConfiguredPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/memories/categories", r.URL.Path)
		io.WriteString(w, `[{"id":1,"name":"Facts","description":"Things about you"}]`)
	}))
	defer server.Close()

	cats, err := NewClient(server.URL).WithMemoriesPath("/v2/memories/").ListMemoryCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []protocol.MemoryCategory{{ID: 1, Name: "Facts", Description: "Things about you"}}, cats)
}

func TestCreateMemory(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/memories", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"success":true,"memory_id":17}`)
	}))
	defer server.Close()

	score := 0.5
	id, err := NewClient(server.URL).CreateMemory(context.Background(), protocol.MemoryInput{
		Title: "Editor", Content: "Uses vim", CategoryID: 2, ImportanceScore: &score,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)
	assert.Equal(t, map[string]any{"title": "Editor", "content": "Uses vim", "category_id": float64(2), "importance_score": 0.5}, got)
}

func TestCreateMemory_MissingFieldsNotSent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CreateMemory(context.Background(), protocol.MemoryInput{Title: "x", Content: "y"})
	assert.ErrorContains(t, err, "category")
	assert.Zero(t, calls.Load())
}

func TestUpdateMemory_SendsOnlySetFields(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/memories/9", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"success":true}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.UpdateMemory(context.Background(), 9, protocol.MemoryInput{Content: "Uses helix"}))
	assert.Equal(t, map[string]any{"content": "Uses helix"}, got)

	assert.Error(t, client.UpdateMemory(context.Background(), 9, protocol.MemoryInput{}))
}

func TestDeleteAndVerifyMemory(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		io.WriteString(w, `{"success":true}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.DeleteMemory(context.Background(), 4))
	require.NoError(t, client.VerifyMemory(context.Background(), 6))
	assert.Equal(t, []string{"DELETE /api/memories/4", "POST /api/memories/6/verify"}, seen)
}

func TestMemoryWrite_ServerErrorMessageKeptAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":"Unauthorized"}`)
	}))
	defer server.Close()

	err := NewClient(server.URL).WithRetry(3, time.Millisecond).DeleteMemory(context.Background(), 4)

	var terr *protocol.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusForbidden, terr.StatusCode)
	assert.Equal(t, "memory-delete", terr.Op)
	assert.EqualError(t, terr.Cause, "Unauthorized")
	assert.Equal(t, int32(1), calls.Load())
}
