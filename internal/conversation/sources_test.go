// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

func TestSourceRegistry_AttachAndResolve(t *testing.T) {
	r := NewSourceRegistry(10)
	a := r.NewMessage()
	b := r.NewMessage()

	r.Attach(a, []protocol.Source{{ID: "1", Title: "One"}, {ID: "2", Title: "Two"}})
	r.Attach(a, []protocol.Source{{ID: "1", Title: "One (updated)"}})

	got, ok := r.Resolve(a, "1")
	assert.True(t, ok)
	assert.Equal(t, "One (updated)", got.Title)

	_, ok = r.Resolve(b, "1")
	assert.False(t, ok, "sources are scoped to their message")

	_, ok = r.Resolve(a, "missing")
	assert.False(t, ok)

	assert.Equal(t, []protocol.Source{{ID: "1", Title: "One (updated)"}, {ID: "2", Title: "Two"}}, r.Sources(a))
}

func TestSourceRegistry_EvictsOldest(t *testing.T) {
	r := NewSourceRegistry(2)
	first := r.NewMessage()
	r.Attach(first, []protocol.Source{{ID: "x"}})
	second := r.NewMessage()
	third := r.NewMessage()

	assert.Equal(t, 2, r.Len())
	_, ok := r.Resolve(first, "x")
	assert.False(t, ok)
	assert.Less(t, uint64(second), uint64(third), "ids increase monotonically")

	// Attaching to an evicted message is harmless.
	r.Attach(first, []protocol.Source{{ID: "y"}})
	assert.Nil(t, r.Sources(first))
}

func TestSourceRegistry_Reset(t *testing.T) {
	r := NewSourceRegistry(0)
	id := r.NewMessage()
	r.Attach(id, []protocol.Source{{ID: "1"}})
	r.NewMessage()

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Sources(id))
	assert.Greater(t, uint64(r.NewMessage()), uint64(id))
}

func TestAttachmentStore_ComposeMessage(t *testing.T) {
	s := NewAttachmentStore()
	s.Put("a.txt", "alpha")
	s.Put("b.md", "# beta")

	got := s.ComposeMessage("question", []string{"a.txt", "missing", "b.md"})
	want := "\n\n--- Start of File: a.txt ---\nalpha\n--- End of File: a.txt ---" +
		"\n\n--- Start of File: b.md ---\n# beta\n--- End of File: b.md ---" +
		"\n\nquestion"
	assert.Equal(t, want, got)

	assert.Equal(t, "plain", s.ComposeMessage("plain", nil))
	assert.Equal(t, "plain", s.ComposeMessage("plain", []string{"missing"}))
}
