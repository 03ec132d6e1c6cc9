// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/commands"
	"github.com/jeranaias/calliope-tui/internal/config"
	"github.com/jeranaias/calliope-tui/internal/conversation"
	"github.com/jeranaias/calliope-tui/internal/history"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/render"
	"github.com/jeranaias/calliope-tui/internal/session"
	"github.com/jeranaias/calliope-tui/internal/storage"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
	"github.com/jeranaias/calliope-tui/internal/util"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Conversation is the part of *conversation.Controller the view drives.
type Conversation interface {
	Send(ctx context.Context, d conversation.Draft) (conversation.Result, error)
	Resend(ctx context.Context, text string) (conversation.Result, error)
	Cancel() bool
	NewChat() bool
	LoadChat(ctx context.Context, id protocol.ChatID) (int, error)
	LastAssistantText() string
	ChatID() protocol.ChatID
}

// History is the chat list shown in the side pane.
type History interface {
	List() []history.Entry
	Refresh(ctx context.Context) (int, error)
	Active() protocol.ChatID
}

// Transcripts loads local transcripts for /export.
type Transcripts interface {
	Load(id string) (*storage.Transcript, error)
}

// Options configures New.
type Options struct {
	Conversation Conversation
	History      History     // optional
	Transcripts  Transcripts // optional
	Theme        *styles.Theme
	Config       *config.Config
	Logger       *zap.Logger
	Context      context.Context

	// Clipboard writes text for /copy. Defaults to the system clipboard.
	Clipboard func(string) error

	// ResearchMode and UseSearch turn the modes on regardless of config.
	ResearchMode bool
	UseSearch    bool

	// Resume loads this chat on start.
	Resume protocol.ChatID
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// History pane widths per layout.
const (
	historyPaneWide   = 32
	historyPaneMedium = 24
)

// Model is the Bubble Tea model for the chat view.
type Model struct {
	conv        Conversation
	history     History
	transcripts Transcripts
	logger      *zap.Logger
	clipboard   func(string) error
	cancelMgr   *cancelManager // Pointer to avoid copying mutex during Bubble Tea updates

	// Styling
	theme    *styles.Theme
	md       *render.Markdown
	mdWidth  int
	markdown bool
	wordWrap int

	// Dimensions
	width  int
	height int

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model
	keyMap   KeyMap

	// Conversation view
	transcript *transcript
	processing bool
	status     string
	title      string
	chatID     protocol.ChatID
	statusMsg  string // transient feedback from commands
	resume     protocol.ChatID

	// Composer
	researchMode bool
	useSearch    bool
	files        []string
	quote        string

	// Slash commands
	registry   *commands.Registry
	parser     *commands.Parser
	completer  *commands.Completer
	completion *commands.CompletionState

	// History pane
	showHistory   bool
	historyItems  []history.Entry
	historyCursor int

	showHelp bool
	quitting bool
}

// New creates a chat model.
func New(opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewThemeFor(cfg.UI.Theme)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clip := opts.Clipboard
	if clip == nil {
		clip = clipboard.WriteAll
	}

	ta := textarea.New()
	ta.Placeholder = "Ask anything... (/ for commands)"
	ta.ShowLineNumbers = false
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	// ASCII spinner, same frames the REPL's terminals can draw.
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	registry := commands.NewRegistry()
	m := Model{
		conv:        opts.Conversation,
		history:     opts.History,
		transcripts: opts.Transcripts,
		logger:      logger.Named("tui"),
		clipboard:   clip,
		cancelMgr:   newCancelManager(opts.Context),

		theme:    theme,
		markdown: cfg.UI.Markdown,
		wordWrap: cfg.UI.WordWrap,

		viewport: vp,
		input:    ta,
		spinner:  sp,
		help:     help.New(),
		keyMap:   DefaultKeyMap(),

		transcript: newTranscript(),

		researchMode: cfg.Chat.ResearchMode || opts.ResearchMode,
		useSearch:    cfg.Chat.UseSearch || opts.UseSearch,
		resume:       opts.Resume,

		registry:   registry,
		parser:     commands.NewParser(registry),
		completer:  commands.NewCompleter(registry),
		completion: commands.NewCompletionState(),
	}
	m.completer.ChatsFn = m.chatCompletions
	if m.conv != nil {
		m.chatID = m.conv.ChatID()
	}
	if m.history != nil {
		m.historyItems = m.history.List()
	}
	return m
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the cursor blink and a history refresh.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.history != nil {
		cmds = append(cmds, m.refreshHistoryCmd())
	}
	if m.conv != nil && !m.resume.IsZero() {
		cmds = append(cmds, m.loadCmd(m.resume))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case userTurnMsg:
		m.transcript.add(&entry{
			kind:        entryUser,
			text:        msg.turn.Text,
			quote:       msg.turn.QuotePreview,
			attachments: msg.turn.Attachments,
			research:    msg.turn.ResearchMode,
		})
		m.refreshViewport(true)
		return m, nil

	case assistantBeginMsg:
		m.transcript.assistant(msg.id)
		m.refreshViewport(true)
		return m, nil

	case segmentsMsg:
		e := m.transcript.assistant(msg.id)
		e.segments = append(e.segments, msg.segments...)
		m.refreshViewport(true)
		return m, nil

	case assistantFinalMsg:
		return m.handleFinal(msg)

	case errorEntryMsg:
		m.transcript.add(&entry{kind: entryError, text: msg.message})
		m.refreshViewport(true)
		return m, nil

	case eventMsg:
		return m.handleEvent(msg.event)

	case sendDoneMsg:
		return m.handleSendDone(msg)

	case loadDoneMsg:
		if msg.err != nil {
			if errors.Is(msg.err, conversation.ErrBusy) {
				m.statusMsg = "Wait for the current response to finish"
			}
			return m, nil
		}
		m.statusMsg = "Loaded chat " + msg.chatID
		return m, nil

	case historyRefreshedMsg:
		if msg.err != nil && !errors.Is(msg.err, history.ErrNoLister) {
			m.logger.Debug("history refresh failed", zap.Error(msg.err))
			m.statusMsg = "History refresh failed: " + protocol.UserMessage(msg.err)
		}
		m.reloadHistory()
		return m, nil

	case HistoryChangedMsg:
		m.reloadHistory()
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.addInfo(styles.RenderError("Export failed: " + msg.err.Error()))
		} else {
			m.addInfo(styles.RenderSuccess("Exported to " + msg.path))
		}
		return m, nil

	case copyDoneMsg:
		if msg.err != nil {
			m.statusMsg = "Copy failed: " + msg.err.Error()
		} else {
			m.statusMsg = "Copied " + util.Plural(msg.chars, "character", "characters")
		}
		return m, nil

	case ConfigReloadedMsg:
		return m.handleConfigReloaded(msg)

	case spinner.TickMsg:
		if m.processing {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	default:
		var cmds []tea.Cmd
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}
}

// View renders the chat view.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderChat()
}

// =============================================================================
// MESSAGE HANDLERS
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(m.width, m.height)
	m.layout()
	m.refreshViewport(false)
	return m, nil
}

// layout sizes the viewport and input from the window and the pane state.
func (m *Model) layout() {
	// Conservative estimates; renderChat measures the real heights.
	const (
		headerHeight    = 1
		inputAreaHeight = 5 // border + 3 textarea lines + hint line
		statusBarHeight = 1
	)

	width := m.width
	if pane := m.historyPaneWidth(); m.showHistory && pane > 0 {
		width -= pane + 1
	}
	if width < 1 {
		width = 1
	}
	height := m.height - headerHeight - inputAreaHeight - statusBarHeight
	if height < 1 {
		height = 1
	}
	m.viewport.Width = width
	m.viewport.Height = height
	m.input.SetWidth(max(width-2, 10))
	m.help.Width = m.width
}

// historyPaneWidth returns the width of the history pane beside the
// messages. Zero means a narrow window, where the pane replaces them.
func (m Model) historyPaneWidth() int {
	switch m.theme.GetLayoutMode() {
	case styles.LayoutWide:
		return historyPaneWide
	case styles.LayoutMedium:
		return historyPaneMedium
	}
	return 0
}

func (m Model) handleFinal(msg assistantFinalMsg) (tea.Model, tea.Cmd) {
	final := msg.final
	e := m.transcript.assistant(final.ID)
	// The final segments are coalesced; they replace what streamed in.
	e.segments = final.Segments
	e.final = &final
	e.rendered = ""
	m.refreshViewport(true)
	return m, nil
}

func (m Model) handleEvent(ev conversation.Event) (tea.Model, tea.Cmd) {
	switch e := ev.(type) {
	case conversation.StateChanged:
		wasProcessing := m.processing
		m.processing = e.To == session.Sending
		if !m.processing {
			m.status = ""
		}
		if m.processing && !wasProcessing {
			m.statusMsg = ""
			return m, m.spinner.Tick
		}

	case conversation.ChatAssigned:
		m.chatID = e.ID
		m.reloadHistory()

	case conversation.StatusChanged:
		m.status = e.Message

	case conversation.TitleChanged:
		if e.ChatID == m.chatID {
			m.title = e.Title
		}
		m.reloadHistory()

	case conversation.SessionReplaced:
		m.transcript.reset()
		m.chatID = e.ChatID
		m.title = ""
		if e.ChatID != "" && m.history != nil {
			for _, item := range m.history.List() {
				if item.ID == e.ChatID {
					m.title = item.Title
					break
				}
			}
		}
		m.reloadHistory()
		m.refreshViewport(true)
	}
	return m, nil
}

func (m Model) handleSendDone(msg sendDoneMsg) (tea.Model, tea.Cmd) {
	res := msg.result
	if res.Status == conversation.StatusUploadFailed {
		// Give the draft back so nothing typed is lost.
		if strings.TrimSpace(m.input.Value()) == "" {
			m.input.SetValue(res.Draft.Text)
		}
		m.files = append([]string(nil), res.Draft.Files...)
		m.quote = res.Draft.QuotedText
		m.statusMsg = "Upload failed; draft restored"
	}
	if msg.err != nil {
		m.logger.Debug("send returned an error", zap.Error(msg.err))
	}
	return m, nil
}

func (m Model) handleConfigReloaded(msg ConfigReloadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil || msg.Config == nil {
		m.statusMsg = "Config reload failed"
		if msg.Err != nil {
			m.statusMsg += ": " + msg.Err.Error()
		}
		return m, nil
	}
	cfg := msg.Config
	m.theme = styles.NewThemeFor(cfg.UI.Theme)
	m.theme.SetSize(m.width, m.height)
	m.markdown = cfg.UI.Markdown
	m.wordWrap = cfg.UI.WordWrap
	m.md = nil
	for _, e := range m.transcript.entries {
		e.rendered = ""
	}
	m.statusMsg = "Config reloaded"
	m.logger.Info("config reloaded")
	m.refreshViewport(false)
	return m, nil
}

// =============================================================================
// SENDING
// =============================================================================

// submit sends the composer content or runs a slash command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if commands.IsCommand(text) {
		m.input.Reset()
		return m.runCommand(text)
	}
	if text == "" && len(m.files) == 0 {
		return m, nil
	}
	if m.processing || m.conv == nil {
		return m, nil
	}

	draft := conversation.Draft{
		Text:         text,
		Files:        m.files,
		UseSearch:    m.useSearch,
		ResearchMode: m.researchMode,
		QuotedText:   m.quote,
	}
	m.input.Reset()
	m.files = nil
	m.quote = ""
	m.statusMsg = ""
	return m, m.sendCmd(draft)
}

func (m Model) sendCmd(d conversation.Draft) tea.Cmd {
	ctx := m.cancelMgr.context()
	conv := m.conv
	return func() tea.Msg {
		res, err := conv.Send(ctx, d)
		return sendDoneMsg{result: res, err: err}
	}
}

func (m Model) resendCmd(text string) tea.Cmd {
	ctx := m.cancelMgr.context()
	conv := m.conv
	return func() tea.Msg {
		res, err := conv.Resend(ctx, text)
		return sendDoneMsg{result: res, err: err}
	}
}

func (m Model) loadCmd(id protocol.ChatID) tea.Cmd {
	ctx := m.cancelMgr.context()
	conv := m.conv
	return func() tea.Msg {
		n, err := conv.LoadChat(ctx, id)
		return loadDoneMsg{chatID: id.String(), replayed: n, err: err}
	}
}

func (m Model) refreshHistoryCmd() tea.Cmd {
	if m.history == nil {
		return nil
	}
	ctx := m.cancelMgr.context()
	h := m.history
	return func() tea.Msg {
		n, err := h.Refresh(ctx)
		return historyRefreshedMsg{count: n, err: err}
	}
}

func (m Model) copyCmd() tea.Cmd {
	text := ""
	if m.conv != nil {
		text = m.conv.LastAssistantText()
	}
	clip := m.clipboard
	return func() tea.Msg {
		if text == "" {
			return copyDoneMsg{err: errors.New("nothing to copy yet")}
		}
		return copyDoneMsg{chars: len([]rune(text)), err: clip(text)}
	}
}

// cancelResponse aborts the in-flight response.
func (m Model) cancelResponse() (tea.Model, tea.Cmd) {
	if m.conv != nil && m.conv.Cancel() {
		m.statusMsg = "Cancelling..."
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.conv != nil {
		m.conv.Cancel()
	}
	m.cancelMgr.cancel()
	m.quitting = true
	return m, tea.Quit
}

// =============================================================================
// HISTORY PANE
// =============================================================================

func (m *Model) reloadHistory() {
	if m.history == nil {
		return
	}
	m.historyItems = m.history.List()
	if m.historyCursor >= len(m.historyItems) {
		m.historyCursor = max(len(m.historyItems)-1, 0)
	}
}

func (m Model) toggleHistory() (tea.Model, tea.Cmd) {
	if m.history == nil {
		m.statusMsg = "No chat history available"
		return m, nil
	}
	m.showHistory = !m.showHistory
	if m.showHistory {
		m.input.Blur()
		m.reloadHistory()
		m.historyCursor = 0
		active := m.chatID
		for i, item := range m.historyItems {
			if item.ID == active {
				m.historyCursor = i
				break
			}
		}
	} else {
		m.input.Focus()
	}
	m.layout()
	m.refreshViewport(false)
	if m.showHistory {
		return m, m.refreshHistoryCmd()
	}
	return m, textarea.Blink
}

func (m Model) chatCompletions() []commands.ChatInfo {
	items := make([]commands.ChatInfo, 0, len(m.historyItems))
	for _, e := range m.historyItems {
		items = append(items, commands.ChatInfo{ID: e.ID.String(), Title: e.Title})
	}
	return items
}

// =============================================================================
// ACCESSORS
// =============================================================================

// IsProcessing reports whether a response is in flight.
func (m Model) IsProcessing() bool { return m.processing }

// ResearchMode reports whether research mode is on for the next send.
func (m Model) ResearchMode() bool { return m.researchMode }

// UseSearch reports whether web search is on for the next send.
func (m Model) UseSearch() bool { return m.useSearch }

// Title is the active chat's title.
func (m Model) Title() string { return m.title }

func (m *Model) addInfo(text string) {
	m.transcript.add(&entry{kind: entryInfo, text: text})
	m.refreshViewport(true)
}
