// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"sync"

	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/session"
)

// =============================================================================
// EVENTS
// =============================================================================

// Event is emitted on state transitions and frame side effects.
type Event interface {
	EventName() string
}

// StateChanged reports a session state transition.
type StateChanged struct {
	From session.State
	To   session.State
}

// ChatAssigned reports the server-assigned id of a new chat.
type ChatAssigned struct {
	ID protocol.ChatID
}

// StatusChanged carries a progress message such as "Searching...". An
// empty message clears the indicator.
type StatusChanged struct {
	Message string
}

// TitleChanged reports a chat title update.
type TitleChanged struct {
	ChatID protocol.ChatID
	Title  string
}

// SourcesAttached reports sources attached to an assistant message.
type SourcesAttached struct {
	Message MessageID
	Sources []protocol.Source
}

// SessionReplaced reports that NewChat or LoadChat swapped the session.
type SessionReplaced struct {
	ChatID protocol.ChatID
}

func (StateChanged) EventName() string    { return "state_changed" }
func (ChatAssigned) EventName() string    { return "chat_assigned" }
func (StatusChanged) EventName() string   { return "status_changed" }
func (TitleChanged) EventName() string    { return "title_changed" }
func (SourcesAttached) EventName() string { return "sources_attached" }
func (SessionReplaced) EventName() string { return "session_replaced" }

// Observer receives events. OnEvent runs on the request goroutine and must
// not block.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// eventBus fans events out to observers in registration order.
type eventBus struct {
	mu        sync.RWMutex
	observers []Observer
}

func (b *eventBus) subscribe(o Observer) {
	if o == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

func (b *eventBus) emit(ev Event) {
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()

	for _, o := range observers {
		o.OnEvent(ev)
	}
}
