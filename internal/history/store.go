// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/util"
)

// ErrNoLister is returned by Refresh when the store has no server to ask.
var ErrNoLister = errors.New("history: no server configured")

// =============================================================================
// ENTRY
// =============================================================================

// Entry is one chat in the list.
type Entry struct {
	ID           protocol.ChatID `json:"id" yaml:"id"`
	Title        string          `json:"title" yaml:"title"`
	Created      time.Time       `json:"created" yaml:"created"`
	Updated      time.Time       `json:"updated" yaml:"updated"`
	MessageCount int             `json:"message_count" yaml:"message_count"`
}

// DisplayTitle returns the title or "Chat <id>" when there is none.
func (e Entry) DisplayTitle() string {
	if strings.TrimSpace(e.Title) != "" {
		return e.Title
	}
	return "Chat " + e.ID.String()
}

// ShortTitle returns DisplayTitle fitted to width terminal cells.
func (e Entry) ShortTitle(width int) string {
	return util.TruncateWidth(e.DisplayTitle(), width)
}

// EntryFromSummary converts a server summary.
func EntryFromSummary(s protocol.ChatSummary) Entry {
	return Entry{
		ID:           s.ID,
		Title:        s.Title,
		Created:      s.CreatedAt.Time,
		Updated:      s.UpdatedAt.Time,
		MessageCount: s.MessageCount,
	}
}

// =============================================================================
// STORE
// =============================================================================

// Lister fetches the server's chat list.
type Lister interface {
	ListChats(ctx context.Context) ([]protocol.ChatSummary, error)
}

// Store holds the chat list and the active chat id. It is safe for
// concurrent use; the controller calls it from the request loop while the UI
// reads it.
type Store struct {
	mu      sync.RWMutex
	entries map[protocol.ChatID]*Entry
	active  protocol.ChatID

	cache    *Cache
	lister   Lister
	logger   *zap.Logger
	now      func() time.Time
	onChange func()
}

// Option configures a Store.
type Option func(*Store)

// WithCache persists every change to c.
func WithCache(c *Cache) Option {
	return func(s *Store) { s.cache = c }
}

// WithLister sets the server Refresh asks.
func WithLister(l Lister) Option {
	return func(s *Store) { s.lister = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l.Named("history")
		}
	}
}

// WithOnChange registers a callback run after every change, outside the lock.
func WithOnChange(fn func()) Option {
	return func(s *Store) { s.onChange = fn }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[protocol.ChatID]*Entry),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssignChatID records a chat the server just created and makes it active.
func (s *Store) AssignChatID(id protocol.ChatID) {
	if id.IsZero() {
		return
	}
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		now := s.now()
		e = &Entry{ID: id, Created: now, Updated: now}
		s.entries[id] = e
	}
	s.active = id
	snapshot := *e
	s.mu.Unlock()

	s.logger.Debug("chat assigned", zap.String("chat_id", id.String()))
	s.persist(snapshot)
	s.persistActive(id)
	s.changed()
}

// UpdateTitle sets the title of a chat, adding the chat when it is unknown.
func (s *Store) UpdateTitle(id protocol.ChatID, title string) {
	if id.IsZero() {
		return
	}
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &Entry{ID: id, Created: s.now()}
		s.entries[id] = e
	}
	e.Title = title
	e.Updated = s.now()
	snapshot := *e
	s.mu.Unlock()

	s.logger.Debug("chat retitled", zap.String("chat_id", id.String()), zap.String("title", title))
	s.persist(snapshot)
	s.changed()
}

// SetActive marks the chat shown in the conversation view. The zero id means
// a new, unsaved chat.
func (s *Store) SetActive(id protocol.ChatID) {
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
	s.persistActive(id)
	s.changed()
}

// Active returns the active chat id.
func (s *Store) Active() protocol.ChatID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Get returns one entry.
func (s *Store) Get(id protocol.ChatID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// List returns the entries, most recently updated first.
func (s *Store) List() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Updated.Equal(out[j].Updated) {
			return out[i].Updated.After(out[j].Updated)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Forget drops a chat from the list and the cache. The server keeps it, so
// the next Refresh brings it back. It reports whether the chat was listed.
func (s *Store) Forget(id protocol.ChatID) bool {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	wasActive := !id.IsZero() && s.active == id
	if wasActive {
		s.active = ""
	}
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Delete(context.Background(), id); err != nil {
			s.logger.Warn("failed to uncache chat", zap.String("chat_id", id.String()), zap.Error(err))
		}
	}
	if wasActive {
		s.persistActive("")
	}
	if ok {
		s.logger.Debug("chat forgotten", zap.String("chat_id", id.String()))
		s.changed()
	}
	return ok
}

// LastRefresh returns when the list was last fetched from the server, or
// the zero time when it never was or there is no cache.
func (s *Store) LastRefresh(ctx context.Context) time.Time {
	if s.cache == nil {
		return time.Time{}
	}
	t, err := s.cache.LastRefresh(ctx)
	if err != nil {
		s.logger.Debug("failed to read last refresh", zap.Error(err))
		return time.Time{}
	}
	return t
}

// Load fills the store from the cache. Entries already present win.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	entries, err := s.cache.List(ctx)
	if err != nil {
		return 0, err
	}
	active, err := s.cache.Active(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	n := 0
	for i := range entries {
		if _, ok := s.entries[entries[i].ID]; ok {
			continue
		}
		e := entries[i]
		s.entries[e.ID] = &e
		n++
	}
	if s.active.IsZero() {
		s.active = active
	}
	s.mu.Unlock()

	s.logger.Debug("loaded cached history", zap.Int("entries", n))
	if n > 0 {
		s.changed()
	}
	return n, nil
}

// Refresh replaces the list with the server's and rewrites the cache. A
// failed refresh leaves the current list untouched.
func (s *Store) Refresh(ctx context.Context) (int, error) {
	if s.lister == nil {
		return 0, ErrNoLister
	}
	chats, err := s.lister.ListChats(ctx)
	if err != nil {
		s.logger.Warn("history refresh failed", zap.Error(err))
		return 0, err
	}

	entries := make([]Entry, 0, len(chats))
	fresh := make(map[protocol.ChatID]*Entry, len(chats))
	for _, c := range chats {
		if c.ID.IsZero() {
			continue
		}
		e := EntryFromSummary(c)
		entries = append(entries, e)
		fresh[e.ID] = &e
	}

	s.mu.Lock()
	s.entries = fresh
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.ReplaceAll(ctx, entries); err != nil {
			s.logger.Warn("failed to write history cache", zap.Error(err))
		}
	}
	s.logger.Info("history refreshed", zap.Int("chats", len(entries)))
	s.changed()
	return len(entries), nil
}

func (s *Store) persist(e Entry) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Upsert(context.Background(), e); err != nil {
		s.logger.Warn("failed to cache chat", zap.String("chat_id", e.ID.String()), zap.Error(err))
	}
}

func (s *Store) persistActive(id protocol.ChatID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetActive(context.Background(), id); err != nil {
		s.logger.Warn("failed to cache active chat", zap.Error(err))
	}
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
