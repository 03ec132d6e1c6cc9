// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jeranaias/calliope-tui/internal/export"
	"github.com/jeranaias/calliope-tui/internal/history"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/render"
	"github.com/jeranaias/calliope-tui/internal/storage"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
	"github.com/jeranaias/calliope-tui/internal/util"
)

const titleWidth = 48

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"chats"},
	Short:   "List and show chats",
	Long: `List chats known to this machine, refresh the list from the server or
print one chat.

Without a subcommand the cached list is shown.`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached chats",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the chat list from the server",
	Args:  cobra.NoArgs,
	RunE:  runHistoryRefresh,
}

var historyRmCmd = &cobra.Command{
	Use:     "rm <chat-id>",
	Aliases: []string{"forget"},
	Short:   "Forget a chat on this machine",
	Long: `Remove a chat from the cached list and delete its local transcript.

The server keeps the chat; the next refresh lists it again.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryRm,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <chat-id>",
	Short: "Print a chat",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

// historyGrep filters listings by title and local transcript text.
var historyGrep string

func init() {
	for _, c := range []*cobra.Command{historyCmd, historyListCmd} {
		c.Flags().StringVarP(&historyGrep, "grep", "g", "", "only chats whose title or local transcript contains this text")
	}
	historyCmd.AddCommand(historyListCmd, historyRefreshCmd, historyRmCmd, historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	entries := a.history.List()
	if historyGrep != "" {
		entries, err = grepHistory(entries, a.transcripts, historyGrep)
		if err != nil {
			return &CommandError{Command: "history", Action: "list", Err: err}
		}
		if len(entries) == 0 && !flags.json {
			fmt.Fprintln(cmd.OutOrStdout(), styles.RenderInfo(fmt.Sprintf("No chats mention %q", historyGrep)))
			return nil
		}
	}
	return printHistory(cmd.OutOrStdout(), entries, a.history, "history list")
}

func runHistoryRefresh(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(commandContext(cmd), historyTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.history.Refresh(ctx)
	if err != nil {
		return &CommandError{Command: "history", Action: "refresh", Err: err}
	}
	if !flags.json {
		fmt.Fprintln(cmd.ErrOrStderr(), styles.RenderSuccess("Fetched "+util.Plural(n, "chat", "chats")))
	}
	return printHistory(cmd.OutOrStdout(), a.history.List(), a.history, "history refresh")
}

func runHistoryRm(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	id := protocol.ChatID(strings.TrimSpace(args[0]))
	listed := a.history.Forget(id)
	removed := false
	if a.transcripts != nil {
		switch err := a.transcripts.Delete(id.String()); {
		case err == nil:
			removed = true
		case !errors.Is(err, storage.ErrTranscriptNotFound):
			return &CommandError{Command: "history", Action: "rm", Err: err}
		}
	}
	if !listed && !removed {
		return &CommandError{Command: "history", Action: "rm", Err: storage.ErrTranscriptNotFound}
	}

	out := cmd.OutOrStdout()
	if flags.json {
		return newJSONResponse("history rm", map[string]any{
			"chat_id":    id,
			"listed":     listed,
			"transcript": removed,
		}).write(out)
	}
	fmt.Fprintln(out, styles.RenderSuccess("Forgot chat "+id.String()))
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	id := protocol.ChatID(args[0])
	t, err := a.transcript(ctx, id)
	if err != nil {
		return &CommandError{Command: "history", Action: "show", Err: err}
	}

	out := cmd.OutOrStdout()
	if flags.json {
		return newJSONResponse("history show", t).write(out)
	}

	opts := export.DefaultOptions()
	opts.IncludeMetadata = false
	var buf bytes.Buffer
	if err := export.Write(&buf, t, export.NewMarkdownExporter(opts)); err != nil {
		return &CommandError{Command: "history", Action: "show", Err: err}
	}
	if cfg.UI.Markdown && render.IsTerminal(out) {
		md := render.NewMarkdown(styles.NewThemeFor(cfg.UI.Theme).GlamourStyle(), render.TerminalWidth(out)-4)
		fmt.Fprint(out, md.Render(buf.String()))
		return nil
	}
	_, err = out.Write(buf.Bytes())
	return err
}

func printHistory(w io.Writer, entries []history.Entry, store *history.Store, command string) error {
	if flags.json {
		return newJSONResponse(command, entries).write(w)
	}
	writeHistory(w, entries, store.Active())
	if last := store.LastRefresh(context.Background()); !last.IsZero() {
		fmt.Fprintln(w, styles.RenderInfo("Last synced "+humanize.Time(last)))
	}
	return nil
}

// grepHistory keeps the entries whose title contains query or whose local
// transcript mentions it, case-insensitively.
func grepHistory(entries []history.Entry, ts *storage.TranscriptStore, query string) ([]history.Entry, error) {
	hits := make(map[protocol.ChatID]bool)
	if ts != nil {
		metas, err := ts.Search(query)
		if err != nil {
			return nil, err
		}
		for _, m := range metas {
			hits[protocol.ChatID(m.ID)] = true
			if !m.ChatID.IsZero() {
				hits[m.ChatID] = true
			}
		}
	}

	q := strings.ToLower(query)
	out := make([]history.Entry, 0, len(entries))
	for _, e := range entries {
		if hits[e.ID] || strings.Contains(strings.ToLower(e.DisplayTitle()), q) {
			out = append(out, e)
		}
	}
	return out, nil
}

// writeHistory prints one chat per line, newest first as the store orders
// them. The active chat is marked with "*".
func writeHistory(w io.Writer, entries []history.Entry, active protocol.ChatID) {
	if len(entries) == 0 {
		fmt.Fprintln(w, styles.RenderInfo("No chats yet"))
		return
	}
	idWidth := 2
	for _, e := range entries {
		if n := util.StringWidth(e.ID.String()); n > idWidth {
			idWidth = n
		}
	}
	for _, e := range entries {
		mark := " "
		if e.ID == active && !active.IsZero() {
			mark = "*"
		}
		when := ""
		if !e.Updated.IsZero() {
			when = humanize.Time(e.Updated)
		}
		line := fmt.Sprintf("%s %s  %s  %s", mark,
			runewidth.FillRight(e.ID.String(), idWidth),
			runewidth.FillRight(e.ShortTitle(titleWidth), titleWidth),
			when)
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
