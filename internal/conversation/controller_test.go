// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/session"
)

// =============================================================================
// END-TO-END TURNS
// =============================================================================

func TestSend_AssignsChatAndStreamsText(t *testing.T) {
	ft := &fakeTransport{streams: []*fakeStream{scripted(
		frame(`{"type":"chat_info","chat_id":42}`),
		chunkFrame("Hel"),
		chunkFrame("lo"),
	)}}
	ctrl, sink, hist := newTestController(t, ft)

	res, err := ctrl.Send(context.Background(), Draft{Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, protocol.ChatID("42"), ctrl.ChatID())
	assert.Equal(t, protocol.ChatID("42"), res.ChatID)
	assert.Equal(t, []protocol.ChatID{"42"}, hist.assigned, "history notified exactly once")
	assert.Equal(t, "Hello", res.Final.Text())
	assert.Equal(t, "Hello", ctrl.LastAssistantText())
	assert.Equal(t, session.Idle, ctrl.Session().State())

	require.Len(t, sink.users, 1)
	assert.Equal(t, "hi", sink.users[0].Text)
	require.Len(t, sink.turns, 1)
	require.NotNil(t, sink.turns[0].final)
	assert.Equal(t, OutcomeCompleted, sink.turns[0].final.Outcome)
	assert.Equal(t, []citation.Segment{citation.Plain("Hel"), citation.Plain("lo")}, sink.turns[0].segs)

	want := []StateChanged{
		{From: session.Idle, To: session.Sending},
		{From: session.Sending, To: session.Idle},
	}
	assert.Equal(t, want, sink.stateChanges())
	assert.Len(t, sink.eventsOf("chat_assigned"), 1)

	assert.Equal(t, protocol.ChatID(""), ft.lastTurn().ChatID, "first turn of a new chat carries no id")
}

func TestSend_SecondTurnCarriesChatIDAndIgnoresNewChatInfo(t *testing.T) {
	ft := &fakeTransport{streams: []*fakeStream{
		scripted(frame(`{"type":"chat_info","chat_id":42}`), chunkFrame("a")),
		scripted(frame(`{"type":"chat_info","chat_id":99}`), chunkFrame("b")),
	}}
	ctrl, _, hist := newTestController(t, ft)

	_, err := ctrl.Send(context.Background(), Draft{Text: "one"})
	require.NoError(t, err)
	_, err = ctrl.Send(context.Background(), Draft{Text: "two"})
	require.NoError(t, err)

	assert.Equal(t, protocol.ChatID("42"), ft.lastTurn().ChatID)
	assert.Equal(t, protocol.ChatID("42"), ctrl.ChatID(), "assigned id is immutable")
	assert.Equal(t, []protocol.ChatID{"42"}, hist.assigned)
}

func TestSend_TitleStatusAndSources(t *testing.T) {
	ft := &fakeTransport{streams: []*fakeStream{scripted(
		frame(`{"type":"chat_info","chat_id":7}`),
		frame(`{"type":"status","message":"Searching..."}`),
		chunkFrame("[s:1]hel"),
		chunkFrame("lo[/s:1]!"),
		frame(`{"type":"sources","sources":[{"id":1,"title":"Go spec","url":"https://go.dev/ref/spec"}]}`),
		frame(`{"type":"title_update","chat_id":7,"title":"Greetings"}`),
	)}}
	ctrl, sink, hist := newTestController(t, ft)

	res, err := ctrl.Send(context.Background(), Draft{Text: "q", ResearchMode: true, UseSearch: true})
	require.NoError(t, err)

	want := []citation.Segment{citation.Cite("hello", "1"), citation.Plain("!")}
	if diff := cmp.Diff(want, res.Final.Segments); diff != "" {
		t.Errorf("final segments mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "[s:1]hello[/s:1]!", res.Final.Raw)
	assert.True(t, res.Final.Research)

	src, ok := ctrl.Sources().Resolve(res.Message, "1")
	require.True(t, ok)
	assert.Equal(t, "Go spec", src.Title)
	assert.Len(t, res.Final.Sources, 1)

	assert.Equal(t, []titleCall{{"7", "Greetings"}}, hist.titles)
	assert.Len(t, sink.eventsOf("title_changed"), 1)
	assert.Len(t, sink.eventsOf("sources_attached"), 1)

	statuses := sink.eventsOf("status_changed")
	require.Len(t, statuses, 2, "status shown then cleared by the first chunk")
	assert.Equal(t, StatusChanged{Message: "Searching..."}, statuses[0])
	assert.Equal(t, StatusChanged{}, statuses[1])

	turn := ft.lastTurn()
	assert.True(t, turn.ResearchMode)
	assert.True(t, turn.UseSearch)
}

func TestSend_MalformedFrameDroppedAndTrailingTextKept(t *testing.T) {
	ft := &fakeTransport{streams: []*fakeStream{scripted(
		chunkFrame("a"),
		frame(`{"type":"response_chunk","content":`),
		chunkFrame("b"),
		"tail",
	)}}
	ctrl, _, _ := newTestController(t, ft)

	res, err := ctrl.Send(context.Background(), Draft{Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, "abtail", res.Final.Text())
}

// taggedStream carries a request id the way transport.Stream does.
type taggedStream struct {
	*fakeStream
	id string
}

func (s taggedStream) RequestID() string { return s.id }

func TestSend_DroppedFrameLoggedWithTurnContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ft := &fakeTransport{streams: []*fakeStream{scripted(
		frame(`{"type":"chat_info","chat_id":4}`),
		frame(`{"type":"response_chunk","content":`),
		chunkFrame("ok"),
	)}}
	ctrl, _, _ := newTestController(t, ft, WithLogger(zap.New(core)))
	tagged := &taggedTransport{fakeTransport: ft, id: "req-1"}
	ctrl.transport = tagged

	res, err := ctrl.Send(context.Background(), Draft{Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)

	drops := logs.FilterMessage("dropped malformed frame").All()
	require.Len(t, drops, 1, "reported once, by the hook")
	fields := drops[0].ContextMap()
	assert.Equal(t, "4", fields["chat_id"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, ctrl.Session().ID(), fields["session"])
	assert.Zero(t, logs.FilterMessage("dropping malformed frame").Len())

	closed := logs.FilterMessage("stream closed").All()
	require.Len(t, closed, 1)
	assert.EqualValues(t, 2, closed[0].ContextMap()["frames"])
	assert.EqualValues(t, 1, closed[0].ContextMap()["dropped"])
}

func TestSend_LegacyProtocol(t *testing.T) {
	ft := &fakeTransport{streams: []*fakeStream{scripted(
		frame(`{"status":"searching","message":"Searching the web..."}`),
		frame(`{"response":"Hel"}`),
		frame(`{"response":"lo"}`),
	)}}
	ctrl, _, _ := newTestController(t, ft, WithVersion(protocol.VersionLegacy))

	res, err := ctrl.Send(context.Background(), Draft{Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Final.Text())
	assert.True(t, ctrl.ChatID().IsZero())
}

// =============================================================================
// CONCURRENCY AND CANCELLATION
// =============================================================================

func TestSend_DoubleSendIssuesOneRequest(t *testing.T) {
	s := blocking()
	ft := &fakeTransport{streams: []*fakeStream{s}}
	ctrl, _, _ := newTestController(t, ft)

	done := make(chan Result, 1)
	go func() {
		res, _ := ctrl.Send(context.Background(), Draft{Text: "first"})
		done <- res
	}()
	require.Eventually(t, func() bool { return ft.openCount() == 1 }, time.Second, time.Millisecond)

	res, err := ctrl.Send(context.Background(), Draft{Text: "second"})
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, res.Status)
	assert.Equal(t, "second", res.Draft.Text)

	s.chunks <- []byte(chunkFrame("ok"))
	close(s.chunks)
	first := <-done

	assert.Equal(t, StatusCompleted, first.Status)
	assert.Equal(t, 1, ft.openCount())
}

func TestCancel_WithZeroChunks(t *testing.T) {
	s := blocking()
	ft := &fakeTransport{streams: []*fakeStream{s}}
	ctrl, sink, _ := newTestController(t, ft, WithCancellationNotice("Stopped."))

	assert.False(t, ctrl.Cancel(), "cancel while idle is a no-op")

	done := make(chan Result, 1)
	go func() {
		res, err := ctrl.Send(context.Background(), Draft{Text: "long question"})
		assert.NoError(t, err)
		done <- res
	}()
	require.Eventually(t, func() bool { return ft.openCount() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, ctrl.IsProcessing, time.Second, time.Millisecond)

	assert.True(t, ctrl.Cancel())

	var res Result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not end the turn")
	}

	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, OutcomeCancelled, res.Final.Outcome)
	assert.Equal(t, "Stopped.", res.Final.Notice)
	assert.Equal(t, "", res.Final.Text())
	assert.Equal(t, session.Idle, ctrl.Session().State())
	assert.True(t, s.isClosed(), "stream must be closed on cancel")
	assert.Empty(t, sink.errors, "cancellation is not an error")

	want := []StateChanged{
		{From: session.Idle, To: session.Sending},
		{From: session.Sending, To: session.Cancelled},
		{From: session.Cancelled, To: session.Idle},
	}
	assert.Equal(t, want, sink.stateChanges())
}

func TestCancel_BeforeStreamOpens(t *testing.T) {
	ft := &fakeTransport{openWait: true}
	ctrl, sink, _ := newTestController(t, ft)

	done := make(chan Result, 1)
	go func() {
		res, _ := ctrl.Send(context.Background(), Draft{Text: "q"})
		done <- res
	}()
	require.Eventually(t, func() bool { return ft.openCount() == 1 }, time.Second, time.Millisecond)
	ctrl.Cancel()

	res := <-done
	assert.Equal(t, StatusCancelled, res.Status)
	require.Len(t, sink.turns, 1, "assistant turn begun on demand for the notice")
	assert.Equal(t, DefaultCancellationNotice, sink.turns[0].final.Notice)
	assert.False(t, ctrl.IsProcessing())
}

func TestCancel_KeepsPartialText(t *testing.T) {
	s := blocking()
	ft := &fakeTransport{streams: []*fakeStream{s}}
	ctrl, _, _ := newTestController(t, ft)

	done := make(chan Result, 1)
	go func() {
		res, _ := ctrl.Send(context.Background(), Draft{Text: "q"})
		done <- res
	}()
	s.chunks <- []byte(chunkFrame("partial"))
	require.Eventually(t, func() bool { return ctrl.IsProcessing() }, time.Second, time.Millisecond)
	// The chunk is consumed once the loop asks for the next one.
	time.Sleep(10 * time.Millisecond)
	ctrl.Cancel()

	res := <-done
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, "partial", res.Final.Text())
	assert.Equal(t, DefaultCancellationNotice, res.Final.Notice)
}

// =============================================================================
// FAILURES
// =============================================================================

func TestSend_ErrorFrameAfterOneChunk(t *testing.T) {
	ft := &fakeTransport{streams: []*fakeStream{scripted(
		chunkFrame("Partial answer"),
		frame(`{"type":"error","message":"quota exceeded"}`),
		chunkFrame("never rendered"),
	)}}
	ctrl, sink, _ := newTestController(t, ft)

	res, err := ctrl.Send(context.Background(), Draft{Text: "q"})

	var serr *protocol.ServerError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "quota exceeded", serr.Message)

	assert.Equal(t, StatusServerError, res.Status)
	assert.Equal(t, OutcomeServerError, res.Final.Outcome)
	assert.Equal(t, "Partial answer", res.Final.Text(), "partial text stays visible")
	assert.Equal(t, "quota exceeded", res.Final.Notice)
	assert.Empty(t, sink.errors, "server errors render inside the bubble")
	assert.Equal(t, session.Idle, ctrl.Session().State())

	changes := sink.stateChanges()
	require.Len(t, changes, 3)
	assert.Equal(t, session.Failed, changes[1].To)
}

func TestSend_TransportFailureShowsApology(t *testing.T) {
	ft := &fakeTransport{openErr: &protocol.TransportError{Op: "open", StatusCode: 502, Cause: errors.New("bad gateway")}}
	ctrl, sink, _ := newTestController(t, ft)

	res, err := ctrl.Send(context.Background(), Draft{Text: "q"})

	var terr *protocol.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, []string{"Sorry, I encountered an error: transport open: HTTP 502: bad gateway"}, sink.errors)
	assert.Empty(t, sink.turns)
	assert.False(t, ctrl.IsProcessing())

	// The next send works.
	ft.openErr = nil
	ft.streams = []*fakeStream{scripted(chunkFrame("ok"))}
	res, err = ctrl.Send(context.Background(), Draft{Text: "again"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestSend_ReadFailureKeepsPartialText(t *testing.T) {
	s := scripted(chunkFrame("half"))
	s.err = &protocol.TransportError{Op: "read", Cause: errors.New("connection reset")}
	ft := &fakeTransport{streams: []*fakeStream{s}}
	ctrl, sink, _ := newTestController(t, ft)

	res, err := ctrl.Send(context.Background(), Draft{Text: "q"})
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "half", res.Final.Text())
	assert.Equal(t, OutcomeFailed, res.Final.Outcome)
	require.Len(t, sink.errors, 1)
	assert.True(t, strings.HasPrefix(sink.errors[0], "Sorry, I encountered an error: "))
}

func TestSend_PanicStillRestoresIdle(t *testing.T) {
	ft := &fakeTransport{streams: []*fakeStream{scripted(chunkFrame("x"))}}
	ctrl, sink, _ := newTestController(t, ft)
	sink.panicOnUser = true

	assert.Panics(t, func() {
		ctrl.Send(context.Background(), Draft{Text: "q"})
	})
	assert.Equal(t, session.Idle, ctrl.Session().State())
	assert.Equal(t, session.Failed, sink.stateChanges()[1].To)
}

func TestSend_EmptyDraftIgnored(t *testing.T) {
	ft := &fakeTransport{}
	ctrl, sink, _ := newTestController(t, ft)

	res, err := ctrl.Send(context.Background(), Draft{Text: "   \n"})
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, res.Status)
	assert.Equal(t, 0, ft.openCount())
	assert.Empty(t, sink.events)
}

// =============================================================================
// ATTACHMENTS, QUOTES AND RESEND
// =============================================================================

func TestSend_UploadsAndComposesMessage(t *testing.T) {
	ft := &fakeTransport{
		streams: []*fakeStream{scripted(chunkFrame("summary"))},
		uploads: map[string]uploadReply{
			"/tmp/notes.txt": {result: protocol.UploadResult{Success: true, Filename: "notes.txt", Content: "milk\neggs"}},
		},
	}
	rec := &memRecorder{}
	ctrl, sink, _ := newTestController(t, ft, WithRecorder(rec))

	_, err := ctrl.Send(context.Background(), Draft{Text: "summarize", Files: []string{"/tmp/notes.txt"}})
	require.NoError(t, err)

	turn := ft.lastTurn()
	assert.Equal(t, "\n\n--- Start of File: notes.txt ---\nmilk\neggs\n--- End of File: notes.txt ---\n\nsummarize", turn.Text)
	assert.Equal(t, []protocol.Attachment{{Name: "notes.txt"}}, turn.Attachments)
	assert.True(t, turn.HasAttachments())

	require.Len(t, sink.users, 1)
	assert.Equal(t, "summarize", sink.users[0].Text, "the bubble shows the typed text")
	assert.Equal(t, []string{"notes.txt"}, sink.users[0].Attachments)

	require.Len(t, rec.records, 1)
	assert.Equal(t, "summary", rec.records[0].Assistant.Text())
}

func TestSend_UploadFailureAbortsAndKeepsDraft(t *testing.T) {
	ft := &fakeTransport{uploads: map[string]uploadReply{
		"a.txt": {result: protocol.UploadResult{Success: true, Filename: "a.txt", Content: "A"}},
		"b.exe": {err: &protocol.UploadError{Filename: "b.exe", Message: "File type not allowed"}},
		"c.bin": {err: &protocol.UploadError{Filename: "c.bin", Message: "File too large"}},
	}}
	ctrl, sink, _ := newTestController(t, ft)

	res, err := ctrl.Send(context.Background(), Draft{Text: "  keep me  ", Files: []string{"a.txt", "b.exe", "c.bin"}})

	var uerr *protocol.UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, StatusUploadFailed, res.Status)
	assert.Equal(t, "keep me", res.Draft.Text)
	assert.Equal(t, 0, ft.openCount(), "no chat request after a failed upload")
	assert.Equal(t, []string{"b.exe: File type not allowed", "c.bin: File too large"}, sink.errors)
	assert.Empty(t, sink.users)
	assert.False(t, ctrl.IsProcessing())
}

func TestSend_QuotePreview(t *testing.T) {
	ft := &fakeTransport{streams: []*fakeStream{scripted(chunkFrame("ok"))}}
	ctrl, sink, _ := newTestController(t, ft)

	quote := strings.Repeat("q", 120)
	_, err := ctrl.Send(context.Background(), Draft{Text: "explain", QuotedText: quote})
	require.NoError(t, err)

	assert.Equal(t, quote, ft.lastTurn().QuotedText, "the full quote is sent")
	assert.Equal(t, strings.Repeat("q", 100)+"...", sink.users[0].QuotePreview)
}

func TestResend_ReusesAttachmentsWithoutUpload(t *testing.T) {
	ft := &fakeTransport{
		streams: []*fakeStream{scripted(chunkFrame("one")), scripted(chunkFrame("two"))},
		uploads: map[string]uploadReply{
			"/x/data.csv": {result: protocol.UploadResult{Success: true, Filename: "data.csv", Content: "1,2"}},
		},
	}
	ctrl, _, _ := newTestController(t, ft)

	_, err := ctrl.Send(context.Background(), Draft{Text: "first", Files: []string{"/x/data.csv"}, UseSearch: true})
	require.NoError(t, err)

	_, err = ctrl.Resend(context.Background(), "edited")
	require.NoError(t, err)

	assert.Equal(t, []string{"/x/data.csv"}, ft.uploaded, "resend must not upload again")
	turn := ft.lastTurn()
	assert.Equal(t, "\n\n--- Start of File: data.csv ---\n1,2\n--- End of File: data.csv ---\n\nedited", turn.Text)
	assert.True(t, turn.UseSearch)
}

// =============================================================================
// NEW AND LOAD CHAT
// =============================================================================

func TestNewChat(t *testing.T) {
	ft := &fakeTransport{streams: []*fakeStream{scripted(frame(`{"type":"chat_info","chat_id":5}`), chunkFrame("x"))}}
	ctrl, sink, hist := newTestController(t, ft)

	_, err := ctrl.Send(context.Background(), Draft{Text: "q"})
	require.NoError(t, err)
	oldSession := ctrl.Session()

	assert.True(t, ctrl.NewChat())
	assert.True(t, ctrl.ChatID().IsZero())
	assert.NotSame(t, oldSession, ctrl.Session())
	assert.Equal(t, protocol.ChatID("5"), oldSession.ChatID(), "the old session keeps its id")
	assert.Equal(t, []protocol.ChatID{""}, hist.active)
	assert.Len(t, sink.eventsOf("session_replaced"), 1)
}

func TestNewChat_IgnoredWhileSending(t *testing.T) {
	s := blocking()
	ft := &fakeTransport{streams: []*fakeStream{s}}
	ctrl, _, _ := newTestController(t, ft)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Send(context.Background(), Draft{Text: "q"})
	}()
	require.Eventually(t, func() bool { return ft.openCount() == 1 }, time.Second, time.Millisecond)

	assert.False(t, ctrl.NewChat())
	_, err := ctrl.LoadChat(context.Background(), "3")
	assert.ErrorIs(t, err, ErrBusy)

	close(s.chunks)
	<-done
}

func TestLoadChat_ReplaysTranscript(t *testing.T) {
	ft := &fakeTransport{
		messages: []protocol.HistoryMessage{
			{ID: "1", Role: "user", Content: "what is go?"},
			{ID: "2", Role: "assistant", Content: "A [s:a]language[/s:a]."},
			{ID: "3", Role: "system", Content: "ignored"},
		},
		streams: []*fakeStream{scripted(chunkFrame("next"))},
	}
	ctrl, sink, hist := newTestController(t, ft)

	n, err := ctrl.LoadChat(context.Background(), "12")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, protocol.ChatID("12"), ctrl.ChatID())
	assert.Equal(t, []protocol.ChatID{"12"}, hist.active)

	require.Len(t, sink.users, 1)
	assert.True(t, sink.users[0].Replayed)
	require.Len(t, sink.turns, 1)
	final := sink.turns[0].final
	require.NotNil(t, final)
	assert.Equal(t, "A language.", final.Text())
	assert.True(t, final.Replayed)
	assert.Equal(t, "A language.", ctrl.LastAssistantText())

	// Follow-up turns continue the loaded chat.
	_, err = ctrl.Send(context.Background(), Draft{Text: "more"})
	require.NoError(t, err)
	assert.Equal(t, protocol.ChatID("12"), ft.lastTurn().ChatID)
}

func TestLoadChat_SendDuringReplayIgnored(t *testing.T) {
	ft := &fakeTransport{messages: []protocol.HistoryMessage{
		{ID: "1", Role: "user", Content: "first"},
		{ID: "2", Role: "assistant", Content: "reply"},
	}}
	ctrl, sink, _ := newTestController(t, ft)

	var during []Result
	sink.onUser = func(UserTurn) {
		res, err := ctrl.Send(context.Background(), Draft{Text: "too early"})
		require.NoError(t, err)
		during = append(during, res)
		assert.True(t, ctrl.IsProcessing(), "busy until the replay is done")
	}

	_, err := ctrl.LoadChat(context.Background(), "12")
	require.NoError(t, err)

	require.Len(t, during, 1)
	assert.Equal(t, StatusIgnored, during[0].Status)
	assert.Equal(t, "too early", during[0].Draft.Text)
	assert.Zero(t, ft.openCount())
	assert.False(t, ctrl.IsProcessing())
	assert.Equal(t, protocol.ChatID("12"), ctrl.ChatID())
}

func TestLoadChat_ResetsSourceTables(t *testing.T) {
	ft := &fakeTransport{
		streams: []*fakeStream{scripted(
			frame(`{"type":"sources","sources":[{"id":1,"title":"Go spec","url":"https://go.dev/ref/spec"}]}`),
			chunkFrame("[s:1]cited[/s:1]"),
		)},
		messages: []protocol.HistoryMessage{
			{ID: "1", Role: "assistant", Content: "one"},
			{ID: "2", Role: "assistant", Content: "two"},
		},
	}
	ctrl, _, _ := newTestController(t, ft)

	res, err := ctrl.Send(context.Background(), Draft{Text: "q"})
	require.NoError(t, err)
	require.Equal(t, 1, ctrl.Sources().Len())

	n, err := ctrl.LoadChat(context.Background(), "12")
	require.NoError(t, err)
	assert.Equal(t, n, ctrl.Sources().Len(), "only the replayed messages keep tables")
	_, ok := ctrl.Sources().Resolve(res.Message, "1")
	assert.False(t, ok)

	assert.True(t, ctrl.NewChat())
	assert.Zero(t, ctrl.Sources().Len())
}

func TestLoadChat_FailureKeepsSession(t *testing.T) {
	ft := &fakeTransport{messagesErr: &protocol.TransportError{Op: "messages", StatusCode: 404, Cause: errors.New("not found")}}
	ctrl, sink, _ := newTestController(t, ft, WithChatID("8"))

	_, err := ctrl.LoadChat(context.Background(), "9")
	assert.Error(t, err)
	assert.Equal(t, protocol.ChatID("8"), ctrl.ChatID())
	assert.Len(t, sink.errors, 1)
	assert.False(t, ctrl.IsProcessing())
}
