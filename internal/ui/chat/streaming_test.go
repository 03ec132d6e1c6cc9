// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/goleak"

	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/conversation"
)

// =============================================================================
// MAILBOX TESTS
// =============================================================================

func TestMailbox_MergesConsecutiveSegments(t *testing.T) {
	mb := newMailbox(30)
	mb.post(segmentsMsg{id: 1, segments: []citation.Segment{citation.Plain("Hel")}})
	mb.post(segmentsMsg{id: 1, segments: []citation.Segment{citation.Plain("lo")}})
	mb.post(segmentsMsg{id: 2, segments: []citation.Segment{citation.Plain("x")}})

	if got := mb.pending(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	msg, ok := mb.next()
	if !ok {
		t.Fatal("next returned closed")
	}
	segs := msg.(segmentsMsg)
	if segs.id != 1 || citation.Text(segs.segments) != "Hello" {
		t.Errorf("first message = %+v, want merged Hello for id 1", segs)
	}
}

func TestMailbox_DoesNotMergeAcrossOtherMessages(t *testing.T) {
	mb := newMailbox(30)
	mb.post(segmentsMsg{id: 1, segments: []citation.Segment{citation.Plain("a")}})
	mb.post(errorEntryMsg{message: "boom"})
	mb.post(segmentsMsg{id: 1, segments: []citation.Segment{citation.Plain("b")}})

	if got := mb.pending(); got != 3 {
		t.Errorf("pending = %d, want 3", got)
	}
}

func TestMailbox_CapsSegmentRate(t *testing.T) {
	mb := newMailbox(10) // 100ms between segment deliveries
	mb.post(segmentsMsg{id: 1, segments: []citation.Segment{citation.Plain("a")}})
	if _, ok := mb.next(); !ok {
		t.Fatal("next returned closed")
	}

	mb.post(errorEntryMsg{message: "not throttled"})
	start := time.Now()
	if _, ok := mb.next(); !ok {
		t.Fatal("next returned closed")
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("non-segment message was throttled")
	}

	mb.post(segmentsMsg{id: 1, segments: []citation.Segment{citation.Plain("b")}})
	start = time.Now()
	if _, ok := mb.next(); !ok {
		t.Fatal("next returned closed")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("second segment batch was not throttled")
	}
}

func TestMailbox_CloseUnblocksNext(t *testing.T) {
	defer goleak.VerifyNone(t)

	mb := newMailbox(30)
	done := make(chan bool)
	go func() {
		_, ok := mb.next()
		done <- ok
	}()

	mb.close()
	select {
	case ok := <-done:
		if ok {
			t.Error("next returned a message after close")
		}
	case <-time.After(time.Second):
		t.Fatal("next did not return after close")
	}

	mb.post(errorEntryMsg{message: "dropped"})
	if mb.pending() != 0 {
		t.Error("post after close should be dropped")
	}
}

// =============================================================================
// SINK TESTS
// =============================================================================

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingSender) snapshot() []tea.Msg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tea.Msg(nil), r.msgs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSink_DeliversInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := NewSink()
	// Calls before Attach are queued.
	sink.AppendUserTurn(conversation.UserTurn{Text: "hi"})
	h := sink.BeginAssistantTurn(7)
	h.Append(citation.Plain("Hel"))
	h.Append(citation.Plain("lo"))
	h.Finalize(conversation.FinalMessage{ID: 7, Segments: []citation.Segment{citation.Plain("Hello")}})
	sink.ShowError("oops")
	sink.OnEvent(conversation.StatusChanged{Message: "searching"})

	rec := &recordingSender{}
	sink.Attach(rec)
	waitFor(t, func() bool { return len(rec.snapshot()) >= 6 })
	sink.Close()

	msgs := rec.snapshot()
	if _, ok := msgs[0].(userTurnMsg); !ok {
		t.Errorf("msgs[0] = %T, want userTurnMsg", msgs[0])
	}
	if b, ok := msgs[1].(assistantBeginMsg); !ok || b.id != 7 {
		t.Errorf("msgs[1] = %#v, want assistantBeginMsg{7}", msgs[1])
	}
	if s, ok := msgs[2].(segmentsMsg); !ok || citation.Text(s.segments) != "Hello" {
		t.Errorf("msgs[2] = %#v, want merged segments", msgs[2])
	}
	if _, ok := msgs[3].(assistantFinalMsg); !ok {
		t.Errorf("msgs[3] = %T, want assistantFinalMsg", msgs[3])
	}
	if e, ok := msgs[4].(errorEntryMsg); !ok || e.message != "oops" {
		t.Errorf("msgs[4] = %#v, want errorEntryMsg", msgs[4])
	}
	if _, ok := msgs[5].(eventMsg); !ok {
		t.Errorf("msgs[5] = %T, want eventMsg", msgs[5])
	}
}

func TestSink_PostAndCloseWithoutAttach(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := NewSink()
	sink.Post(HistoryChangedMsg{})
	sink.Close()
}
