// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CREATION TESTS
// =============================================================================

func TestNew(t *testing.T) {
	s := New("")

	if !strings.HasPrefix(s.ID(), "sess_") {
		t.Errorf("ID should start with 'sess_', got %q", s.ID())
	}
	if _, err := uuid.Parse(strings.TrimPrefix(s.ID(), "sess_")); err != nil {
		t.Errorf("ID should end in a UUID, got %q: %v", s.ID(), err)
	}
	if !s.ChatID().IsZero() {
		t.Errorf("ChatID = %q, want zero", s.ChatID())
	}
	if s.State() != Idle {
		t.Errorf("State = %v, want idle", s.State())
	}
	if New("").ID() == s.ID() {
		t.Error("session ids should be unique")
	}
}

// =============================================================================
// STATE MACHINE TESTS
// =============================================================================

func TestBeginFinish_Success(t *testing.T) {
	s := New("")

	ctx, ok := s.Begin(context.Background())
	if !ok {
		t.Fatal("Begin on idle session should succeed")
	}
	if !s.IsProcessing() {
		t.Error("session should be processing after Begin")
	}

	path := s.Finish(Idle)
	want := []Transition{{From: Sending, To: Idle}}
	if len(path) != 1 || path[0] != want[0] {
		t.Errorf("Finish(Idle) = %v, want %v", path, want)
	}
	if ctx.Err() == nil {
		t.Error("Finish should release the request context")
	}
	if s.State() != Idle {
		t.Errorf("State = %v, want idle", s.State())
	}
}

func TestBegin_RejectsSecondRequest(t *testing.T) {
	s := New("")
	if _, ok := s.Begin(context.Background()); !ok {
		t.Fatal("first Begin failed")
	}
	if _, ok := s.Begin(context.Background()); ok {
		t.Error("second Begin should be rejected while sending")
	}
}

func TestBegin_ConcurrentAdmitsOne(t *testing.T) {
	s := New("")
	var admitted atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Begin(context.Background()); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 1 {
		t.Errorf("admitted = %d, want exactly 1", admitted.Load())
	}
}

func TestCancel(t *testing.T) {
	s := New("")

	if s.Cancel() {
		t.Error("Cancel while idle should be a no-op")
	}

	ctx, _ := s.Begin(context.Background())
	if !s.Cancel() {
		t.Fatal("Cancel while sending should succeed")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("Cancel did not cancel the request context")
	}
	if !s.CancelRequested() {
		t.Error("CancelRequested should be true")
	}

	path := s.Finish(Cancelled)
	want := []Transition{{From: Sending, To: Cancelled}, {From: Cancelled, To: Idle}}
	if len(path) != 2 || path[0] != want[0] || path[1] != want[1] {
		t.Errorf("Finish(Cancelled) = %v, want %v", path, want)
	}

	// A new request starts with a clean cancel flag.
	if _, ok := s.Begin(context.Background()); !ok {
		t.Fatal("Begin after cancel should succeed")
	}
	if s.CancelRequested() {
		t.Error("CancelRequested should reset on Begin")
	}
}

func TestFinish_FailedAndIdle(t *testing.T) {
	s := New("")
	if path := s.Finish(Failed); path != nil {
		t.Errorf("Finish while idle = %v, want nil", path)
	}

	s.Begin(context.Background())
	path := s.Finish(Failed)
	if len(path) != 2 || path[0].To != Failed || path[1].To != Idle {
		t.Errorf("Finish(Failed) = %v", path)
	}
}

// =============================================================================
// CHAT ID TESTS
// =============================================================================

func TestAssignChatID(t *testing.T) {
	s := New("")

	if s.AssignChatID("") {
		t.Error("empty id should not be adopted")
	}
	if !s.AssignChatID("42") {
		t.Fatal("first id should be adopted")
	}
	if s.AssignChatID("43") {
		t.Error("assigned id must not change")
	}
	if s.ChatID() != "42" {
		t.Errorf("ChatID = %q, want 42", s.ChatID())
	}

	loaded := New("7")
	if loaded.AssignChatID("8") {
		t.Error("a session created with an id must keep it")
	}
}
