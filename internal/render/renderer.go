// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/conversation"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
)

const (
	userPrefix      = "you › "
	assistantPrefix = "calliope › "
)

// =============================================================================
// RENDERER
// =============================================================================

// Renderer writes a conversation to a terminal or any io.Writer. It is safe
// for concurrent use: the request goroutine appends segments while the
// input loop prints command output.
type Renderer struct {
	mu     sync.Mutex
	out    io.Writer
	term   *termenv.Output
	theme  *styles.Theme
	md     *Markdown
	tty    bool
	width  int
	status string
	logger *zap.Logger

	// redraw rewrites finished messages through glamour.
	redraw bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithMarkdown turns glamour rendering of finished messages on or off.
// Rendering only happens on a terminal.
func WithMarkdown(on bool) Option {
	return func(r *Renderer) { r.redraw = on }
}

// WithWidth overrides the detected width.
func WithWidth(width int) Option {
	return func(r *Renderer) {
		if width > 0 {
			r.width = width
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l.Named("render")
		}
	}
}

// New creates a renderer writing to out.
func New(out io.Writer, theme *styles.Theme, opts ...Option) *Renderer {
	if theme == nil {
		theme = styles.NewTheme()
	}
	r := &Renderer{
		out:    out,
		term:   termenv.NewOutput(out),
		theme:  theme,
		tty:    IsTerminal(out),
		width:  TerminalWidth(out),
		logger: zap.NewNop(),
		redraw: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.md = NewMarkdown(theme.GlamourStyle(), r.width-4)
	return r
}

func (r *Renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// =============================================================================
// SINK
// =============================================================================

// AppendUserTurn prints the user's message with its quote and attachments.
func (r *Renderer) AppendUserTurn(turn conversation.UserTurn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Live turns were just typed at the prompt; only replayed ones are
	// echoed in full.
	if turn.Replayed {
		r.printf("%s%s\n", r.theme.UserLabel.Render(userPrefix), turn.Text)
	}
	if turn.QuotePreview != "" {
		r.printf("%s\n", r.theme.QuoteBlock.Render(turn.QuotePreview))
	}
	if len(turn.Attachments) > 0 {
		r.printf("%s\n", r.theme.AttachmentLine.Render("[attached: "+strings.Join(turn.Attachments, ", ")+"]"))
	}
	if turn.ResearchMode && !turn.Replayed {
		r.printf("%s\n", r.theme.StatusLine.Render("research mode"))
	}
}

// BeginAssistantTurn starts a new assistant message.
func (r *Renderer) BeginAssistantTurn(id conversation.MessageID) conversation.AssistantHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("\n%s", r.theme.AssistantLabel.Render(assistantPrefix))
	h := &handle{r: r, id: id}
	h.advance(assistantPrefix)
	return h
}

// ShowError prints a standalone error entry.
func (r *Renderer) ShowError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearStatusLocked()
	r.printf("%s\n", styles.RenderError(message))
}

// Info prints an informational line, used for command output.
func (r *Renderer) Info(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printf("%s\n", styles.RenderInfo(message))
}

// Success prints a success line.
func (r *Renderer) Success(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printf("%s\n", styles.RenderSuccess(message))
}

// Println writes a plain line.
func (r *Renderer) Println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printf("%s\n", line)
}

// =============================================================================
// EVENTS
// =============================================================================

// OnEvent shows progress and title updates.
func (r *Renderer) OnEvent(ev conversation.Event) {
	switch e := ev.(type) {
	case conversation.StatusChanged:
		r.mu.Lock()
		r.status = e.Message
		r.mu.Unlock()
		r.logger.Debug("status", zap.String("message", e.Message))
	case conversation.TitleChanged:
		r.Info(fmt.Sprintf("Chat %s is now titled %q", e.ChatID, e.Title))
	case conversation.ChatAssigned:
		r.logger.Debug("chat assigned", zap.String("chat_id", e.ID.String()))
	}
}

// Status returns the last progress message, empty when none.
func (r *Renderer) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Renderer) clearStatusLocked() {
	r.status = ""
}

// =============================================================================
// ASSISTANT HANDLE
// =============================================================================

// handle streams one assistant message and counts the terminal rows it
// used so the message can be redrawn.
type handle struct {
	r   *Renderer
	id  conversation.MessageID
	raw strings.Builder

	col  int
	rows int
}

func (h *handle) advance(s string) {
	width := h.r.width
	for _, c := range s {
		if c == '\n' {
			h.rows++
			h.col = 0
			continue
		}
		w := runewidth.RuneWidth(c)
		if h.col+w > width {
			h.rows++
			h.col = 0
		}
		h.col += w
	}
}

func (h *handle) write(plain, styled string) {
	h.r.printf("%s", styled)
	h.advance(plain)
	h.raw.WriteString(plain)
}

// Append writes one segment. Cited text is styled and followed by its
// source id.
func (h *handle) Append(seg citation.Segment) {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()

	if seg.Kind != citation.Cited {
		h.write(seg.Text, seg.Text)
		return
	}
	ref := "[" + seg.SourceID + "]"
	h.write(seg.Text+ref, h.r.theme.Cited.Render(seg.Text)+h.r.theme.SourceRef.Render(ref))
}

// Finalize ends the message: redraw through glamour when appropriate, then
// print sources and the notice.
func (h *handle) Finalize(final conversation.FinalMessage) {
	r := h.r
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearStatusLocked()

	text := final.Text()
	if r.redraw && r.tty && final.Outcome == conversation.OutcomeCompleted && LooksLikeMarkdown(text) {
		// Move back to the label row and replace the raw stream.
		r.term.ClearLines(h.rows)
		r.printf("\r%s\n%s", r.theme.AssistantLabel.Render(strings.TrimSpace(assistantPrefix)), r.md.Render(text))
	}
	r.printf("\n")

	if final.Research && len(final.Sources) > 0 {
		for _, s := range final.Sources {
			line := fmt.Sprintf("  [%s] %s", s.ID, s.Label())
			if s.URL != "" && s.URL != s.Label() {
				line += "  " + styles.RenderLink(s.URL)
			}
			r.printf("%s\n", r.theme.SourceRef.Render(line))
		}
	}

	switch final.Outcome {
	case conversation.OutcomeCancelled:
		r.printf("%s\n", r.theme.Notice.Render(styles.StatusIndicators.Warning+" "+final.Notice))
	case conversation.OutcomeServerError, conversation.OutcomeFailed:
		if final.Notice != "" {
			r.printf("%s\n", r.theme.Error.Render(styles.StatusIndicators.Error+" "+final.Notice))
		}
	}
	r.logger.Debug("message finalized",
		zap.Uint64("message", uint64(final.ID)),
		zap.String("outcome", final.Outcome.String()),
		zap.Int("rows", h.rows+1))
}
