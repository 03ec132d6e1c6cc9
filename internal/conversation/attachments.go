// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"strings"
	"sync"
)

// AttachmentStore keeps uploaded file contents by file name so a turn can
// be resent without uploading again.
type AttachmentStore struct {
	mu       sync.RWMutex
	contents map[string]string
}

// NewAttachmentStore creates an empty store.
func NewAttachmentStore() *AttachmentStore {
	return &AttachmentStore{contents: make(map[string]string)}
}

// Put records the content of an uploaded file.
func (s *AttachmentStore) Put(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[name] = content
}

// Get returns the content of an uploaded file.
func (s *AttachmentStore) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contents[name]
	return c, ok
}

// ComposeMessage prepends the stored contents of the named files to text:
//
//	\n\n--- Start of File: a.txt ---\n<content>\n--- End of File: a.txt ---
//	...
//	\n\n<text>
//
// Files without stored content are skipped. With nothing to prepend the
// text is returned unchanged.
func (s *AttachmentStore) ComposeMessage(text string, names []string) string {
	var b strings.Builder
	for _, name := range names {
		content, ok := s.Get(name)
		if !ok {
			continue
		}
		b.WriteString("\n\n--- Start of File: ")
		b.WriteString(name)
		b.WriteString(" ---\n")
		b.WriteString(content)
		b.WriteString("\n--- End of File: ")
		b.WriteString(name)
		b.WriteString(" ---")
	}
	if b.Len() == 0 {
		return text
	}
	b.WriteString("\n\n")
	b.WriteString(text)
	return b.String()
}
