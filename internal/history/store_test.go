// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

type stubLister struct {
	chats []protocol.ChatSummary
	err   error
	calls int
}

func (l *stubLister) ListChats(ctx context.Context) ([]protocol.ChatSummary, error) {
	l.calls++
	return l.chats, l.err
}

func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEntry_DisplayTitle(t *testing.T) {
	assert.Equal(t, "Chat 17", Entry{ID: "17"}.DisplayTitle())
	assert.Equal(t, "Chat 17", Entry{ID: "17", Title: "   "}.DisplayTitle())
	assert.Equal(t, "Trip plans", Entry{ID: "17", Title: "Trip plans"}.DisplayTitle())
	assert.Equal(t, "Trip...", Entry{ID: "17", Title: "Trip plans"}.ShortTitle(7))
}

func TestStore_AssignAndTitle(t *testing.T) {
	changes := 0
	s := NewStore(WithOnChange(func() { changes++ }))
	s.now = fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	s.AssignChatID("1")
	s.AssignChatID("2")
	s.UpdateTitle("1", "First")
	s.AssignChatID("")

	assert.Equal(t, protocol.ChatID("2"), s.Active())
	assert.Equal(t, 2, s.Len())

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, protocol.ChatID("1"), list[0].ID, "retitled chat moves to the top")
	assert.Equal(t, "First", list[0].Title)
	assert.Equal(t, "Chat 2", list[1].DisplayTitle())
	assert.Equal(t, 3, changes)
}

func TestStore_UpdateTitleOfUnknownChat(t *testing.T) {
	s := NewStore()
	s.UpdateTitle("9", "Late title")

	e, ok := s.Get("9")
	require.True(t, ok)
	assert.Equal(t, "Late title", e.Title)
	assert.True(t, s.Active().IsZero(), "a title update does not change the active chat")
}

func TestStore_SetActive(t *testing.T) {
	s := NewStore()
	s.AssignChatID("3")
	s.SetActive("")
	assert.True(t, s.Active().IsZero())
}

func TestStore_Refresh(t *testing.T) {
	lister := &stubLister{chats: []protocol.ChatSummary{
		{ID: "10", Title: "Older", UpdatedAt: protocol.Timestamp{Time: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}, MessageCount: 4},
		{ID: "11", UpdatedAt: protocol.Timestamp{Time: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}},
		{ID: ""},
	}}
	cache := openTestCache(t)
	s := NewStore(WithLister(lister), WithCache(cache))
	s.AssignChatID("stale")

	n, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "Chat 11", list[0].DisplayTitle())
	assert.Equal(t, 4, list[1].MessageCount)
	_, ok := s.Get("stale")
	assert.False(t, ok, "refresh replaces the list")

	cached, err := cache.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	last, err := cache.LastRefresh(context.Background())
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

func TestStore_Forget(t *testing.T) {
	cache := openTestCache(t)
	changes := 0
	s := NewStore(WithCache(cache), WithOnChange(func() { changes++ }))
	s.AssignChatID("5")
	s.AssignChatID("6")
	require.Equal(t, protocol.ChatID("6"), s.Active())
	changes = 0

	assert.True(t, s.Forget("6"))
	assert.False(t, s.Forget("6"), "already gone")
	assert.Equal(t, 1, changes)

	assert.True(t, s.Active().IsZero(), "forgetting the active chat clears it")
	_, ok := s.Get("6")
	assert.False(t, ok)

	cached, err := cache.List(context.Background())
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, protocol.ChatID("5"), cached[0].ID)
	active, err := cache.Active(context.Background())
	require.NoError(t, err)
	assert.True(t, active.IsZero())
}

func TestStore_LastRefresh(t *testing.T) {
	assert.True(t, NewStore().LastRefresh(context.Background()).IsZero(), "no cache")

	cache := openTestCache(t)
	s := NewStore(WithCache(cache), WithLister(&stubLister{chats: []protocol.ChatSummary{{ID: "1"}}}))
	assert.True(t, s.LastRefresh(context.Background()).IsZero(), "never refreshed")

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), s.LastRefresh(context.Background()), time.Minute)
}

func TestStore_RefreshFailureKeepsList(t *testing.T) {
	lister := &stubLister{err: &protocol.TransportError{Op: "list", Cause: errors.New("refused")}}
	s := NewStore(WithLister(lister))
	s.AssignChatID("1")

	_, err := s.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestStore_RefreshWithoutLister(t *testing.T) {
	_, err := NewStore().Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoLister)
}

func TestStore_LoadFromCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	cache, err := OpenCache(path)
	require.NoError(t, err)
	first := NewStore(WithCache(cache))
	first.AssignChatID("5")
	first.UpdateTitle("5", "Persisted")
	first.AssignChatID("6")
	require.NoError(t, cache.Close())

	cache, err = OpenCache(path)
	require.NoError(t, err)
	defer cache.Close()

	second := NewStore(WithCache(cache))
	n, err := second.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, protocol.ChatID("6"), second.Active())

	e, ok := second.Get("5")
	require.True(t, ok)
	assert.Equal(t, "Persisted", e.Title)
}

func TestCache_ClosedOperations(t *testing.T) {
	c, err := OpenCache(":memory:")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.List(context.Background())
	assert.ErrorIs(t, err, ErrCacheClosed)
	assert.ErrorIs(t, c.Upsert(context.Background(), Entry{ID: "1"}), ErrCacheClosed)

	_, err = OpenCache("")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestCache_UpsertAndDelete(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.Upsert(ctx, Entry{ID: "a", Title: "one", Created: now, Updated: now}))
	require.NoError(t, c.Upsert(ctx, Entry{ID: "a", Title: "two", Created: now, Updated: now.Add(time.Hour), MessageCount: 2}))

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "two", list[0].Title)
	assert.Equal(t, 2, list[0].MessageCount)
	assert.True(t, list[0].Created.Equal(now))

	require.NoError(t, c.Delete(ctx, "a"))
	list, err = c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
