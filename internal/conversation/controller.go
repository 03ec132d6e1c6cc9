// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/session"
	"github.com/jeranaias/calliope-tui/internal/stream"
	"github.com/jeranaias/calliope-tui/internal/transport"
	"github.com/jeranaias/calliope-tui/internal/util"
)

// DefaultCancellationNotice is appended to a reply the user stopped.
const DefaultCancellationNotice = "Response cancelled."

// ErrBusy is returned by LoadChat while a request is in flight.
var ErrBusy = errors.New("conversation: a request is in flight")

// =============================================================================
// DRAFT AND RESULT
// =============================================================================

// Draft is what the user composed for one send.
type Draft struct {
	Text         string
	Files        []string // local paths, uploaded before the turn is sent
	Reuse        []string // names of files uploaded earlier, sent without re-upload
	UseSearch    bool
	ResearchMode bool
	QuotedText   string
}

// IsEmpty reports whether there is nothing to send.
func (d Draft) IsEmpty() bool {
	return d.Text == "" && len(d.Files) == 0 && len(d.Reuse) == 0
}

// Status is how a Send ended.
type Status int

const (
	StatusCompleted Status = iota
	StatusCancelled
	StatusFailed
	StatusServerError
	StatusUploadFailed
	StatusIgnored
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	case StatusServerError:
		return "server_error"
	case StatusUploadFailed:
		return "upload_failed"
	case StatusIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// sessionOutcome maps a send status to the state passed through on the way
// back to Idle.
func (s Status) sessionOutcome() session.State {
	switch s {
	case StatusCompleted, StatusIgnored:
		return session.Idle
	case StatusCancelled:
		return session.Cancelled
	default:
		return session.Failed
	}
}

// Result describes a finished Send.
type Result struct {
	Status  Status
	ChatID  protocol.ChatID
	Message MessageID    // zero when no assistant message was started
	Final   FinalMessage // valid when Message is non-zero
	Draft   Draft        // the normalized draft, for restoring the input
	Dropped int          // malformed frames skipped
}

// =============================================================================
// TRANSCRIPT RECORDING
// =============================================================================

// TurnRecord is one finished exchange.
type TurnRecord struct {
	SessionID string
	ChatID    protocol.ChatID
	User      UserTurn
	Assistant FinalMessage
	At        time.Time
}

// Recorder persists finished exchanges.
type Recorder interface {
	RecordTurn(rec TurnRecord) error
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller runs the conversation. Send and LoadChat block for the length
// of a request; Cancel, NewChat and the accessors may be called from any
// goroutine.
type Controller struct {
	transport Transport
	sink      Sink
	history   HistoryStore
	recorder  Recorder

	version protocol.Version
	notice  string

	sources     *SourceRegistry
	attachments *AttachmentStore
	bus         eventBus
	logger      *zap.Logger

	mu        sync.Mutex
	session   *session.Session
	lastDraft *Draft
	lastText  string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l.Named("conversation")
		}
	}
}

// WithVersion sets the protocol version used to decode frames.
func WithVersion(v protocol.Version) Option {
	return func(c *Controller) { c.version = v }
}

// WithCancellationNotice overrides DefaultCancellationNotice.
func WithCancellationNotice(notice string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(notice) != "" {
			c.notice = notice
		}
	}
}

// WithSourceRegistry shares a registry with the sink.
func WithSourceRegistry(r *SourceRegistry) Option {
	return func(c *Controller) {
		if r != nil {
			c.sources = r
		}
	}
}

// WithRecorder persists finished exchanges.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithObserver subscribes an observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.bus.subscribe(o) }
}

// WithChatID starts the controller bound to an existing chat.
func WithChatID(id protocol.ChatID) Option {
	return func(c *Controller) { c.session = session.New(id) }
}

// NewController creates a controller. A nil history is replaced by
// NopHistory. A sink that implements Observer is subscribed first.
func NewController(t Transport, sink Sink, history HistoryStore, opts ...Option) *Controller {
	if history == nil {
		history = NopHistory{}
	}
	c := &Controller{
		transport:   t,
		sink:        sink,
		history:     history,
		version:     protocol.VersionAuto,
		notice:      DefaultCancellationNotice,
		attachments: NewAttachmentStore(),
		logger:      zap.NewNop(),
		session:     session.New(""),
	}
	if o, ok := sink.(Observer); ok {
		c.bus.subscribe(o)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sources == nil {
		c.sources = NewSourceRegistry(DefaultRetainedMessages)
	}
	return c
}

// Sources returns the source registry sinks resolve citations against.
func (c *Controller) Sources() *SourceRegistry {
	return c.sources
}

// Attachments returns the uploaded-content store.
func (c *Controller) Attachments() *AttachmentStore {
	return c.attachments
}

// Session returns the live session.
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ChatID returns the live session's chat id.
func (c *Controller) ChatID() protocol.ChatID {
	return c.Session().ChatID()
}

// IsProcessing reports whether a request is in flight.
func (c *Controller) IsProcessing() bool {
	return c.Session().IsProcessing()
}

// LastAssistantText returns the text of the last finalized assistant
// message, markers removed.
func (c *Controller) LastAssistantText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastText
}

// =============================================================================
// SEND
// =============================================================================

// Send uploads the draft's files, sends the turn and consumes the response.
// It returns StatusIgnored with a nil error for empty drafts and while
// another request is in flight. Cancellation is not an error.
func (c *Controller) Send(ctx context.Context, d Draft) (Result, error) {
	d.Text = util.NormalizeInput(d.Text)
	d.QuotedText = util.NormalizeInput(d.QuotedText)
	if d.IsEmpty() {
		return Result{Status: StatusIgnored, Draft: d}, nil
	}

	c.mu.Lock()
	sess := c.session
	reqCtx, ok := sess.Begin(ctx)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("send ignored while a request is in flight")
		return Result{Status: StatusIgnored, Draft: d}, nil
	}
	c.bus.emit(StateChanged{From: session.Idle, To: session.Sending})

	// Failed until run returns, so a panic still settles the session.
	outcome := session.Failed
	defer func() {
		for _, tr := range sess.Finish(outcome) {
			c.bus.emit(StateChanged{From: tr.From, To: tr.To})
		}
	}()

	res, err := c.run(reqCtx, sess, d)
	outcome = res.Status.sessionOutcome()

	c.logger.Info("turn finished",
		zap.String("session", sess.ID()),
		zap.String("chat_id", res.ChatID.String()),
		zap.Stringer("status", res.Status),
		zap.Int("dropped_frames", res.Dropped),
		zap.Error(err))
	return res, err
}

// Resend sends text again with the attachments and flags of the previous
// turn. Attachments are not uploaded again.
func (c *Controller) Resend(ctx context.Context, text string) (Result, error) {
	c.mu.Lock()
	last := c.lastDraft
	c.mu.Unlock()

	d := Draft{Text: text}
	if last != nil {
		d.Reuse = append([]string(nil), last.Reuse...)
		d.UseSearch = last.UseSearch
		d.ResearchMode = last.ResearchMode
	}
	return c.Send(ctx, d)
}

// Cancel aborts the in-flight request. It returns false while Idle.
func (c *Controller) Cancel() bool {
	sess := c.Session()
	if !sess.Cancel() {
		return false
	}
	c.logger.Info("turn cancelled by user", zap.String("session", sess.ID()))
	return true
}

// turnState is the per-request state of the frame loop.
type turnState struct {
	sess         *session.Session
	msg          *assistantMessage
	statusActive bool
}

func (c *Controller) run(ctx context.Context, sess *session.Session, d Draft) (Result, error) {
	names, err := c.uploadAll(ctx, sess, d)
	if err != nil {
		if c.cancelled(sess, err) {
			return Result{Status: StatusCancelled, ChatID: sess.ChatID(), Draft: d}, nil
		}
		return Result{Status: StatusUploadFailed, ChatID: sess.ChatID(), Draft: d}, err
	}

	turn := protocol.OutgoingTurn{
		Text:         c.attachments.ComposeMessage(d.Text, names),
		UseSearch:    d.UseSearch,
		ResearchMode: d.ResearchMode,
		QuotedText:   d.QuotedText,
		ChatID:       sess.ChatID(),
	}
	for _, name := range names {
		turn.Attachments = append(turn.Attachments, protocol.Attachment{Name: name})
	}

	user := UserTurn{
		Text:         d.Text,
		Attachments:  names,
		ResearchMode: d.ResearchMode,
	}
	if d.QuotedText != "" {
		user.QuotePreview = util.QuotePreview(d.QuotedText)
	}
	c.sink.AppendUserTurn(user)
	c.rememberDraft(d, names)

	body, err := c.transport.OpenStream(ctx, turn)
	if err != nil {
		if c.cancelled(sess, err) {
			// The stream never opened; the reply is only the notice.
			msg := c.beginMessage(d.ResearchMode)
			final := c.finish(sess, user, msg, OutcomeCancelled, c.notice)
			return c.result(StatusCancelled, sess, final, d, 0), nil
		}
		c.logger.Warn("chat request failed", zap.Error(err))
		c.sink.ShowError(protocol.UserMessage(err))
		return Result{Status: StatusFailed, ChatID: sess.ChatID(), Draft: d}, err
	}
	defer body.Close()

	ts := &turnState{sess: sess, msg: c.beginMessage(d.ResearchMode)}
	turnLog := c.logger.With(zap.String("session", sess.ID()))
	if r, ok := body.(interface{ RequestID() string }); ok {
		turnLog = turnLog.With(zap.String("request_id", r.RequestID()))
	}
	dec := stream.NewDecoder(c.version,
		stream.WithLogger(turnLog),
		stream.WithDropHook(func(perr *protocol.ProtocolError) {
			turnLog.Warn("dropped malformed frame",
				zap.String("chat_id", sess.ChatID().String()),
				zap.String("payload", perr.Payload),
				zap.Error(perr.Cause))
		}),
	)
	reader := stream.NewReader(body, dec)
	defer func() {
		turnLog.Debug("stream closed",
			zap.Int("frames", dec.Decoded()),
			zap.Int("dropped", dec.Dropped()))
	}()

	for {
		frame, err := reader.Next(ctx)
		if err != nil {
			c.clearStatus(ts)
			return c.endOfStream(ts, user, reader, d, err)
		}

		if serr := c.applyFrame(ts, frame); serr != nil {
			c.clearStatus(ts)
			c.logger.Warn("server reported an error", zap.String("message", serr.Message))
			final := c.finish(sess, user, ts.msg, OutcomeServerError, serr.Message)
			return c.result(StatusServerError, sess, final, d, dec.Dropped()), serr
		}
	}
}

// endOfStream finalizes the message once the reader stops.
func (c *Controller) endOfStream(ts *turnState, user UserTurn, reader *stream.Reader, d Draft, err error) (Result, error) {
	dropped := reader.Decoder().Dropped()

	switch {
	case errors.Is(err, io.EOF):
		if trailing := reader.Trailing(); trailing != "" {
			c.logger.Warn("stream ended with undelimited text", zap.Int("bytes", len(trailing)))
			ts.msg.appendTrailing(trailing)
		}
		final := c.finish(ts.sess, user, ts.msg, OutcomeCompleted, "")
		return c.result(StatusCompleted, ts.sess, final, d, dropped), nil

	case c.cancelled(ts.sess, err):
		final := c.finish(ts.sess, user, ts.msg, OutcomeCancelled, c.notice)
		return c.result(StatusCancelled, ts.sess, final, d, dropped), nil

	default:
		c.logger.Warn("stream failed", zap.Error(err))
		final := c.finish(ts.sess, user, ts.msg, OutcomeFailed, "")
		c.sink.ShowError(protocol.UserMessage(err))
		return c.result(StatusFailed, ts.sess, final, d, dropped), err
	}
}

// applyFrame updates state for one frame. It returns a ServerError for an
// error frame, which ends the turn.
func (c *Controller) applyFrame(ts *turnState, frame protocol.Frame) *protocol.ServerError {
	switch f := frame.(type) {
	case protocol.ChatInfo:
		if ts.sess.AssignChatID(f.ChatID) {
			c.logger.Info("chat assigned", zap.String("chat_id", f.ChatID.String()))
			c.history.AssignChatID(f.ChatID)
			c.bus.emit(ChatAssigned{ID: f.ChatID})
		} else {
			c.logger.Debug("ignoring chat_info for bound session",
				zap.String("chat_id", f.ChatID.String()),
				zap.String("bound", ts.sess.ChatID().String()))
		}

	case protocol.Status:
		ts.statusActive = f.Message != ""
		c.bus.emit(StatusChanged{Message: f.Message})

	case protocol.ResponseChunk:
		c.clearStatus(ts)
		ts.msg.appendChunk(f.Content)

	case protocol.TitleUpdate:
		id := f.ChatID
		if id.IsZero() {
			id = ts.sess.ChatID()
		}
		if id.IsZero() {
			c.logger.Debug("ignoring title update without a chat id")
			return nil
		}
		c.history.UpdateTitle(id, f.Title)
		c.bus.emit(TitleChanged{ChatID: id, Title: f.Title})

	case protocol.Sources:
		c.sources.Attach(ts.msg.id, f.Sources)
		c.bus.emit(SourcesAttached{Message: ts.msg.id, Sources: f.Sources})

	case protocol.ErrorFrame:
		return &protocol.ServerError{Message: f.Message}
	}
	return nil
}

func (c *Controller) clearStatus(ts *turnState) {
	if ts.statusActive {
		ts.statusActive = false
		c.bus.emit(StatusChanged{})
	}
}

// uploadAll uploads the draft's files and returns every attachment name of
// the turn. Each failed upload is shown; any failure aborts the send.
func (c *Controller) uploadAll(ctx context.Context, sess *session.Session, d Draft) ([]string, error) {
	names := append([]string(nil), d.Reuse...)
	var errs []error

	for _, path := range d.Files {
		res, err := c.transport.Upload(ctx, path)
		if err != nil {
			if c.cancelled(sess, err) {
				return nil, err
			}
			c.logger.Warn("upload failed", zap.String("path", path), zap.Error(err))
			c.sink.ShowError(uploadMessage(err))
			errs = append(errs, err)
			continue
		}
		c.attachments.Put(res.Filename, res.Content)
		names = append(names, res.Filename)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return names, nil
}

func uploadMessage(err error) string {
	var uerr *protocol.UploadError
	if errors.As(err, &uerr) {
		return fmt.Sprintf("%s: %s", uerr.Filename, uerr.Message)
	}
	return protocol.UserMessage(err)
}

// cancelled reports whether err ends the turn as a user cancellation.
func (c *Controller) cancelled(sess *session.Session, err error) bool {
	return sess.CancelRequested() ||
		errors.Is(err, transport.ErrCancelled) ||
		errors.Is(err, context.Canceled)
}

func (c *Controller) beginMessage(research bool) *assistantMessage {
	id := c.sources.NewMessage()
	return newAssistantMessage(id, research, c.sink.BeginAssistantTurn(id))
}

// finish finalizes the message, remembers its text and records the turn.
func (c *Controller) finish(sess *session.Session, user UserTurn, msg *assistantMessage, outcome Outcome, notice string) FinalMessage {
	final := msg.finalize(outcome, notice, c.sources.Sources(msg.id))

	c.mu.Lock()
	c.lastText = final.Text()
	c.mu.Unlock()

	if c.recorder != nil {
		rec := TurnRecord{
			SessionID: sess.ID(),
			ChatID:    sess.ChatID(),
			User:      user,
			Assistant: final,
			At:        time.Now(),
		}
		if err := c.recorder.RecordTurn(rec); err != nil {
			c.logger.Warn("failed to record turn", zap.Error(err))
		}
	}
	return final
}

func (c *Controller) result(status Status, sess *session.Session, final FinalMessage, d Draft, dropped int) Result {
	return Result{
		Status:  status,
		ChatID:  sess.ChatID(),
		Message: final.ID,
		Final:   final,
		Draft:   d,
		Dropped: dropped,
	}
}

func (c *Controller) rememberDraft(d Draft, names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	last := d
	last.Files = nil
	last.Reuse = names
	c.lastDraft = &last
}

// =============================================================================
// NEW AND LOAD CHAT
// =============================================================================

// NewChat replaces the session with a fresh one. It returns false, and
// changes nothing, while a request is in flight.
func (c *Controller) NewChat() bool {
	c.mu.Lock()
	if c.session.IsProcessing() {
		c.mu.Unlock()
		return false
	}
	c.session = session.New("")
	c.lastDraft = nil
	c.lastText = ""
	c.mu.Unlock()
	c.sources.Reset()

	if a, ok := c.history.(activeSetter); ok {
		a.SetActive("")
	}
	c.logger.Info("started new chat")
	c.bus.emit(SessionReplaced{})
	return true
}

// LoadChat fetches a stored chat, replays it into the sink and binds a new
// session to it. It returns the number of messages replayed.
func (c *Controller) LoadChat(ctx context.Context, id protocol.ChatID) (int, error) {
	c.mu.Lock()
	current := c.session
	reqCtx, ok := current.Begin(ctx)
	c.mu.Unlock()
	if !ok {
		return 0, ErrBusy
	}
	c.bus.emit(StateChanged{From: session.Idle, To: session.Sending})

	outcome := session.Failed
	defer func() {
		for _, tr := range current.Finish(outcome) {
			c.bus.emit(StateChanged{From: tr.From, To: tr.To})
		}
	}()

	msgs, err := c.transport.ChatMessages(reqCtx, id)
	if err != nil {
		if c.cancelled(current, err) {
			outcome = session.Cancelled
			return 0, &protocol.CancellationError{Cause: err}
		}
		c.logger.Warn("failed to load chat", zap.String("chat_id", id.String()), zap.Error(err))
		c.sink.ShowError(protocol.UserMessage(err))
		return 0, err
	}

	c.sources.Reset()
	if a, ok := c.history.(activeSetter); ok {
		a.SetActive(id)
	}
	c.bus.emit(SessionReplaced{ChatID: id})

	// The busy session stays installed until the replay is on screen, so
	// a Send issued meanwhile is ignored.
	replayed := c.replay(msgs)

	c.mu.Lock()
	c.session = session.New(id)
	c.lastDraft = nil
	c.mu.Unlock()
	outcome = session.Idle
	c.logger.Info("loaded chat", zap.String("chat_id", id.String()), zap.Int("messages", replayed))
	return replayed, nil
}

// replay renders stored messages. Assistant text is run through the
// citation parser so stored markers never reach the screen.
func (c *Controller) replay(msgs []protocol.HistoryMessage) int {
	n := 0
	for _, m := range msgs {
		switch m.Role {
		case "user":
			c.sink.AppendUserTurn(UserTurn{Text: m.Content, Replayed: true})
		case "assistant":
			id := c.sources.NewMessage()
			handle := c.sink.BeginAssistantTurn(id)
			segs := citation.Parse(m.Content)
			research := false
			for _, seg := range segs {
				research = research || seg.Kind == citation.Cited
				handle.Append(seg)
			}
			final := FinalMessage{
				ID:       id,
				Raw:      m.Content,
				Segments: segs,
				Research: research,
				Outcome:  OutcomeCompleted,
				Replayed: true,
			}
			handle.Finalize(final)

			c.mu.Lock()
			c.lastText = final.Text()
			c.mu.Unlock()
		default:
			continue
		}
		n++
	}
	return n
}
