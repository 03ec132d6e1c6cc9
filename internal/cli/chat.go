// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/commands"
	"github.com/jeranaias/calliope-tui/internal/config"
	"github.com/jeranaias/calliope-tui/internal/conversation"
	"github.com/jeranaias/calliope-tui/internal/export"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/render"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
	"github.com/jeranaias/calliope-tui/internal/util"
)

const (
	prompt         = "calliope> "
	historyTimeout = 15 * time.Second
)

// chatFlags are shared by the root command and "chat".
type chatFlags struct {
	research bool
	search   bool
	chatID   string
}

var chatOpts chatFlags

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal (default)",
	Long: `Start a line-based chat session.

Type a message and press Enter to send it. Ctrl+C cancels a response that is
still streaming; at the prompt it exits. Commands start with "/", try /help.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, chatCmd} {
		c.Flags().BoolVar(&chatOpts.research, "research", false, "start in research mode")
		c.Flags().BoolVar(&chatOpts.search, "search", false, "start with web search on")
		c.Flags().StringVar(&chatOpts.chatID, "chat", "", "resume a chat by id")
	}
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	theme := styles.NewThemeFor(cfg.UI.Theme)
	r := render.New(out, theme,
		render.WithMarkdown(cfg.UI.Markdown),
		render.WithWidth(cfg.UI.WordWrap),
		render.WithLogger(logger))

	s := newREPL(a, r, out)
	s.research = cfg.Chat.ResearchMode || chatOpts.research
	s.search = cfg.Chat.UseSearch || chatOpts.search
	return s.run(ctx, protocol.ChatID(chatOpts.chatID))
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// inputHistory persists liner's line history in the config directory.
// USABILITY: Up and Down recall earlier messages across sessions.
type inputHistory struct {
	path string
}

func newInputHistory() inputHistory {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return inputHistory{path: filepath.Join(dir, "chat_history")}
}

func (h inputHistory) load(line *liner.State) {
	if f, err := os.Open(h.path); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
}

// save writes the history with owner-only permissions.
func (h inputHistory) save(line *liner.State) {
	if err := os.MkdirAll(filepath.Dir(h.path), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}

// =============================================================================
// REPL
// =============================================================================

// repl is one interactive chat session.
type repl struct {
	app       *app
	ctrl      *conversation.Controller
	r         *render.Renderer
	out       io.Writer
	registry  *commands.Registry
	parser    *commands.Parser
	completer *commands.Completer
	clipboard func(string) error
	logger    *zap.Logger

	// Composer state for the next message.
	research bool
	search   bool
	files    []string
	quote    string

	// restore is typed text to prefill after a failed upload.
	restore string
}

func newREPL(a *app, r *render.Renderer, out io.Writer) *repl {
	registry := commands.NewRegistry()
	s := &repl{
		app:       a,
		r:         r,
		out:       out,
		registry:  registry,
		parser:    commands.NewParser(registry),
		completer: commands.NewCompleter(registry),
		clipboard: clipboard.WriteAll,
		logger:    a.logger.Named("repl"),
	}
	s.ctrl = a.controller(r)
	s.completer.ChatsFn = s.chatCompletions
	return s
}

func (s *repl) run(ctx context.Context, resume protocol.ChatID) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(s.completer.CompleteLine)

	hist := newInputHistory()
	hist.load(line)
	defer hist.save(line)

	// Ctrl+C reaches us as SIGINT only while a response streams; at the
	// prompt liner reads it as a key.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		for range sigCh {
			if s.ctrl.Cancel() {
				s.logger.Debug("interrupt cancelled the response")
			}
		}
	}()

	s.printWelcome()
	if !resume.IsZero() {
		s.load(ctx, resume)
	}

	for {
		input, err := s.readLine(line)
		if err != nil {
			// Ctrl+C, Ctrl+D or a closed terminal all end the session.
			fmt.Fprintln(s.out)
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if commands.IsCommand(input) {
			if !s.command(ctx, input) {
				return nil
			}
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}
		s.send(ctx, input)
	}
}

func (s *repl) readLine(line *liner.State) (string, error) {
	p := prompt
	if s.research {
		p = "research> "
	}
	if s.restore != "" {
		text := s.restore
		s.restore = ""
		return line.PromptWithSuggestion(p, text, -1)
	}
	return line.Prompt(p)
}

func (s *repl) printWelcome() {
	s.r.Println(styles.RenderInfo("Connected to " + s.app.cfg.Server.BaseURL))
	s.r.Println(styles.RenderInfo("Type /help for commands, Ctrl+C to cancel a response, Ctrl+D to quit."))
	if s.research {
		s.r.Info("Research mode is on")
	}
}

// =============================================================================
// SENDING
// =============================================================================

// send sends text with the pending attachments and quote.
func (s *repl) send(ctx context.Context, text string) {
	draft := conversation.Draft{
		Text:         text,
		Files:        s.files,
		UseSearch:    s.search,
		ResearchMode: s.research,
		QuotedText:   s.quote,
	}
	res, err := s.ctrl.Send(ctx, draft)
	s.finish(res, err)
}

func (s *repl) resend(ctx context.Context, text string) {
	res, err := s.ctrl.Resend(ctx, text)
	s.finish(res, err)
}

// finish updates the composer after a turn.
func (s *repl) finish(res conversation.Result, err error) {
	if err != nil {
		s.logger.Debug("turn error", zap.Error(err))
	}
	switch res.Status {
	case conversation.StatusUploadFailed:
		// The message was not sent; keep everything for another try.
		s.restore = res.Draft.Text
		s.r.Info("Message not sent. Fix the attachment with /attach or send again.")
	case conversation.StatusIgnored:
	default:
		s.files = nil
		s.quote = ""
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// command runs one slash command. It returns false to end the session.
func (s *repl) command(ctx context.Context, input string) bool {
	inv, err := s.parser.Resolve(input)
	if err != nil {
		if errors.Is(err, commands.ErrUnknownCommand) {
			s.r.ShowError(fmt.Sprintf("Unknown command %s. Type /help for available commands", commands.ExtractCommandName(input)))
		} else {
			s.r.ShowError(err.Error())
		}
		return true
	}

	switch inv.Action {
	case commands.ActionQuit:
		return false
	case commands.ActionHelp:
		s.r.Println(s.registry.HelpText())
	case commands.ActionNew:
		if s.ctrl.NewChat() {
			s.files, s.quote = nil, ""
			s.r.Success("Started a new chat")
		}
	case commands.ActionCancel:
		// At the prompt there is never a response in flight.
		s.r.Info("Nothing to cancel")
	case commands.ActionEdit:
		s.resend(ctx, inv.Arg(0))
	case commands.ActionCopy:
		s.copyLast()
	case commands.ActionResearch:
		s.research = inv.Toggle(s.research)
		s.r.Info("Research mode " + onOff(s.research))
	case commands.ActionSearch:
		s.search = inv.Toggle(s.search)
		s.r.Info("Web search " + onOff(s.search))
	case commands.ActionAttach:
		s.attach(inv.Arg(0))
	case commands.ActionQuote:
		s.setQuote(inv.Arg(0))
	case commands.ActionHistory:
		s.listHistory(ctx)
	case commands.ActionLoad:
		s.load(ctx, protocol.ChatID(inv.Arg(0)))
	case commands.ActionExport:
		s.export(ctx, inv.Arg(0))
	}
	return true
}

func (s *repl) attach(path string) {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		s.r.ShowError("Cannot attach " + path + ": " + err.Error())
		return
	case info.IsDir():
		s.r.ShowError("Cannot attach " + path + ": is a directory")
		return
	}
	s.files = append(s.files, path)
	s.r.Info(fmt.Sprintf("Attached %s (%s, %s pending)",
		filepath.Base(path), humanize.Bytes(uint64(info.Size())), util.Plural(len(s.files), "file", "files")))
}

func (s *repl) setQuote(text string) {
	if text == "" {
		text = s.ctrl.LastAssistantText()
	}
	s.quote = text
	if text == "" {
		s.r.Info("Quote cleared")
		return
	}
	s.r.Info("Quoting: " + util.QuotePreview(text))
}

func (s *repl) copyLast() {
	text := s.ctrl.LastAssistantText()
	if text == "" {
		s.r.ShowError("Nothing to copy yet")
		return
	}
	if err := s.clipboard(text); err != nil {
		s.r.ShowError("Copy failed: " + err.Error())
		return
	}
	s.r.Success("Copied " + util.Plural(len([]rune(text)), "character", "characters"))
}

func (s *repl) load(ctx context.Context, id protocol.ChatID) {
	n, err := s.ctrl.LoadChat(ctx, id)
	switch {
	case errors.Is(err, conversation.ErrBusy):
		s.r.ShowError("Wait for the current response to finish")
	case err != nil:
		s.r.ShowError("Could not load chat " + id.String() + ": " + protocol.UserMessage(err))
	default:
		s.files, s.quote = nil, ""
		s.r.Success(fmt.Sprintf("Loaded chat %s (%s)", id, util.Plural(n, "message", "messages")))
	}
}

func (s *repl) listHistory(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	if _, err := s.app.history.Refresh(rctx); err != nil {
		s.r.Info("Showing cached chats: " + protocol.UserMessage(err))
	}
	writeHistory(s.out, s.app.history.List(), s.ctrl.ChatID())
}

func (s *repl) export(ctx context.Context, format string) {
	id := s.ctrl.ChatID()
	if id.IsZero() {
		s.r.ShowError("Nothing to export yet")
		return
	}
	if format == "" {
		format = "md"
	}
	path, err := exportChat(ctx, s.app, id, format, "", s.out)
	if err != nil {
		s.r.ShowError("Export failed: " + err.Error())
		return
	}
	s.r.Success("Exported to " + path)
}

func (s *repl) chatCompletions() []commands.ChatInfo {
	entries := s.app.history.List()
	out := make([]commands.ChatInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, commands.ChatInfo{ID: e.ID.String(), Title: e.DisplayTitle()})
	}
	return out
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// exportChat writes the transcript of id to output, or to a generated file
// name in the current directory when output is empty. Output "-" writes to
// stdout.
func exportChat(ctx context.Context, a *app, id protocol.ChatID, format, output string, stdout io.Writer) (string, error) {
	t, err := a.transcript(ctx, id)
	if err != nil {
		return "", err
	}
	opts := export.DefaultOptions()
	exp, err := export.ForFormat(format, opts)
	if err != nil {
		return "", &UsageError{Field: "format", Value: format, Reason: "must be one of " + strings.Join(export.Formats, ", ")}
	}

	if output == "" {
		return export.ExportToFile(t, exp, opts)
	}
	if output == "-" {
		return "-", export.Write(stdout, t, exp)
	}
	data, err := exp.Export(t)
	if err != nil {
		return "", err
	}
	if err := util.AtomicWriteFile(output, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", output, err)
	}
	return output, nil
}
