// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/calliope-tui/internal/protocol"
)

// =============================================================================
// STATE
// =============================================================================

// State is the request state of a session.
type State int

const (
	Idle State = iota
	Sending
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transition is one state change.
type Transition struct {
	From State
	To   State
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the single owned state of one chat. All methods are safe for
// concurrent use; the UI goroutine and signal handlers call Cancel while the
// request loop runs.
type Session struct {
	mu sync.Mutex

	localID string
	chatID  protocol.ChatID
	state   State

	cancelFunc      context.CancelFunc
	cancelRequested bool
}

// New creates an Idle session. A zero id means the server has not assigned
// one yet.
func New(id protocol.ChatID) *Session {
	return &Session{
		localID: generateSessionID(),
		chatID:  id,
		state:   Idle,
	}
}

// ID returns the local session id, used for logs and transcripts.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localID
}

// ChatID returns the server chat id, zero until assigned.
func (s *Session) ChatID() protocol.ChatID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// State returns the current request state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsProcessing reports whether a request is in flight.
func (s *Session) IsProcessing() bool {
	return s.State() == Sending
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Begin moves Idle to Sending and returns a context that Cancel aborts. It
// returns ok=false, and changes nothing, when the session is not Idle.
func (s *Session) Begin(parent context.Context) (ctx context.Context, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	s.state = Sending
	s.cancelFunc = cancel
	s.cancelRequested = false
	return ctx, true
}

// Cancel aborts the in-flight request. It returns false, and does nothing,
// when the session is not Sending.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Sending {
		return false
	}
	s.cancelRequested = true
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	return true
}

// CancelRequested reports whether Cancel was called during the current
// request.
func (s *Session) CancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested
}

// Finish ends the in-flight request with the given outcome and returns the
// transitions taken, ending in Idle. Idle as outcome means success. Calling
// Finish while not Sending returns nil.
func (s *Session) Finish(outcome State) []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Sending {
		return nil
	}

	// Always release the context so the request goroutines can exit.
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	var path []Transition
	if outcome == Cancelled || outcome == Failed {
		path = append(path, Transition{From: Sending, To: outcome})
		path = append(path, Transition{From: outcome, To: Idle})
	} else {
		path = append(path, Transition{From: Sending, To: Idle})
	}
	s.state = Idle
	return path
}

// AssignChatID adopts id when the session has none. It returns true only
// the first time; an assigned id never changes.
func (s *Session) AssignChatID(id protocol.ChatID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id.IsZero() || !s.chatID.IsZero() {
		return false
	}
	s.chatID = id
	return true
}

// generateSessionID creates a unique local session id. It also names the
// transcript file until the server assigns a chat id.
func generateSessionID() string {
	return "sess_" + uuid.NewString()
}
