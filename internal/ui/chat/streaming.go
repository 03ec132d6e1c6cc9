// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/conversation"
)

// defaultMaxFPS caps how often streamed segments reach Update.
const defaultMaxFPS = 30

// =============================================================================
// MAILBOX
// =============================================================================

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// mailbox is an unbounded, ordered queue between the request goroutine and
// the Bubble Tea loop. Posting never blocks, so the controller may call the
// sink from inside Update. Consecutive segments of the same message are
// merged while they wait, and segment deliveries are capped at maxFPS.
type mailbox struct {
	mu       sync.Mutex
	queue    []tea.Msg
	signal   chan struct{}
	done     chan struct{}
	closed   bool
	interval time.Duration
	lastSegs time.Time
}

func newMailbox(maxFPS int) *mailbox {
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = defaultMaxFPS
	}
	return &mailbox{
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		interval: time.Second / time.Duration(maxFPS),
	}
}

// post queues msg.
func (mb *mailbox) post(msg tea.Msg) {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return
	}
	if segs, ok := msg.(segmentsMsg); ok && len(mb.queue) > 0 {
		last := len(mb.queue) - 1
		if prev, ok := mb.queue[last].(segmentsMsg); ok && prev.id == segs.id {
			prev.segments = append(prev.segments, segs.segments...)
			mb.queue[last] = prev
			mb.mu.Unlock()
			return
		}
	}
	mb.queue = append(mb.queue, msg)
	mb.mu.Unlock()

	select {
	case mb.signal <- struct{}{}:
	default:
	}
}

// next blocks until a message is due. It returns false once closed.
func (mb *mailbox) next() (tea.Msg, bool) {
	for {
		mb.mu.Lock()
		if mb.closed {
			mb.mu.Unlock()
			return nil, false
		}
		if len(mb.queue) > 0 {
			front := mb.queue[0]
			if _, ok := front.(segmentsMsg); ok {
				if wait := mb.interval - time.Since(mb.lastSegs); wait > 0 {
					mb.mu.Unlock()
					// More segments may merge into front meanwhile.
					select {
					case <-time.After(wait):
					case <-mb.done:
					}
					continue
				}
				mb.lastSegs = time.Now()
			}
			mb.queue[0] = nil
			mb.queue = mb.queue[1:]
			mb.mu.Unlock()
			return front, true
		}
		mb.mu.Unlock()

		select {
		case <-mb.signal:
		case <-mb.done:
		}
	}
}

// pending returns the number of queued messages.
func (mb *mailbox) pending() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}

func (mb *mailbox) close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if !mb.closed {
		mb.closed = true
		mb.queue = nil
		close(mb.done)
	}
}

// =============================================================================
// SINK
// =============================================================================

// Sink renders a conversation into the TUI. Calls from the controller become
// Bubble Tea messages delivered in order. It also implements
// conversation.Observer.
type Sink struct {
	mb   *mailbox
	once sync.Once
	wg   sync.WaitGroup
}

// NewSink creates a sink. Messages are queued until Attach.
func NewSink() *Sink {
	return &Sink{mb: newMailbox(defaultMaxFPS)}
}

// Attach starts delivering queued and future messages to s.
func (s *Sink) Attach(to Sender) {
	s.once.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				msg, ok := s.mb.next()
				if !ok {
					return
				}
				to.Send(msg)
			}
		}()
	})
}

// Close stops delivery and waits for the delivery goroutine.
func (s *Sink) Close() {
	s.mb.close()
	s.wg.Wait()
}

// Post queues an arbitrary message, for callers outside the controller
// (config watcher, history store).
func (s *Sink) Post(msg tea.Msg) {
	s.mb.post(msg)
}

// AppendUserTurn implements conversation.Sink.
func (s *Sink) AppendUserTurn(turn conversation.UserTurn) {
	s.mb.post(userTurnMsg{turn: turn})
}

// BeginAssistantTurn implements conversation.Sink.
func (s *Sink) BeginAssistantTurn(id conversation.MessageID) conversation.AssistantHandle {
	s.mb.post(assistantBeginMsg{id: id})
	return &streamHandle{sink: s, id: id}
}

// ShowError implements conversation.Sink.
func (s *Sink) ShowError(message string) {
	s.mb.post(errorEntryMsg{message: message})
}

// OnEvent implements conversation.Observer.
func (s *Sink) OnEvent(ev conversation.Event) {
	s.mb.post(eventMsg{event: ev})
}

// streamHandle forwards one assistant message.
type streamHandle struct {
	sink *Sink
	id   conversation.MessageID
}

func (h *streamHandle) Append(seg citation.Segment) {
	h.sink.mb.post(segmentsMsg{id: h.id, segments: []citation.Segment{seg}})
}

func (h *streamHandle) Finalize(final conversation.FinalMessage) {
	h.sink.mb.post(assistantFinalMsg{final: final})
}
