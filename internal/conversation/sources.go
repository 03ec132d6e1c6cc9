// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"sync"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

// DefaultRetainedMessages is how many source tables the registry keeps.
const DefaultRetainedMessages = 50

// MessageID identifies an assistant message for its whole lifetime.
type MessageID uint64

// SourceRegistry stores the sources of each assistant message, keyed by
// MessageID. Tables beyond the retention limit are evicted oldest first.
// It is safe for concurrent use; sinks resolve citations from the UI
// goroutine while the request loop attaches sources.
type SourceRegistry struct {
	mu     sync.RWMutex
	next   MessageID
	tables map[MessageID]*sourceTable
	order  []MessageID
	retain int
}

type sourceTable struct {
	byID  map[string]protocol.Source
	order []string
}

// NewSourceRegistry creates a registry that keeps at most retain tables.
func NewSourceRegistry(retain int) *SourceRegistry {
	if retain <= 0 {
		retain = DefaultRetainedMessages
	}
	return &SourceRegistry{
		tables: make(map[MessageID]*sourceTable),
		retain: retain,
	}
}

// NewMessage allocates the next MessageID with an empty table.
func (r *SourceRegistry) NewMessage() MessageID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	r.tables[id] = &sourceTable{byID: make(map[string]protocol.Source)}
	r.order = append(r.order, id)

	for len(r.order) > r.retain {
		delete(r.tables, r.order[0])
		r.order = r.order[1:]
	}
	return id
}

// Attach adds sources to a message. Later sources with the same id replace
// earlier ones. Attaching to an evicted or unknown message is a no-op.
func (r *SourceRegistry) Attach(msg MessageID, sources []protocol.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[msg]
	if !ok {
		return
	}
	for _, s := range sources {
		if _, seen := t.byID[s.ID]; !seen {
			t.order = append(t.order, s.ID)
		}
		t.byID[s.ID] = s
	}
}

// Resolve looks up a cited source. ok is false for unknown ids, which the
// sink renders as cited text without a reference.
func (r *SourceRegistry) Resolve(msg MessageID, sourceID string) (protocol.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[msg]
	if !ok {
		return protocol.Source{}, false
	}
	s, ok := t.byID[sourceID]
	return s, ok
}

// Sources returns a message's sources in first-seen order.
func (r *SourceRegistry) Sources(msg MessageID) []protocol.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[msg]
	if !ok {
		return nil
	}
	out := make([]protocol.Source, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// Reset drops every table. Message ids keep increasing.
func (r *SourceRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = make(map[MessageID]*sourceTable)
	r.order = nil
}

// Len returns the number of retained tables.
func (r *SourceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}
