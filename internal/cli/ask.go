// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/calliope-tui/internal/conversation"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/render"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
)

type askFlags struct {
	research bool
	search   bool
	files    []string
	quote    string
	chatID   string
}

var askOpts askFlags

var askCmd = &cobra.Command{
	Use:   `ask "<question>"`,
	Short: "Ask one question and print the answer",
	Long: `Send a single message and stream the answer to stdout.

The exit status is 0 when the answer completed, 9 when the server reported
an error and 5 when the server could not be reached. Ctrl+C cancels.`,
	Example: `  calliope ask "What is a goroutine?"
  calliope ask --research "Who designed Go?"
  calliope ask --file notes.txt "Summarize this"
  calliope ask --chat 42 "And in more detail?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVarP(&askOpts.research, "research", "r", false, "research mode (cited answer)")
	askCmd.Flags().BoolVar(&askOpts.search, "search", false, "enable web search")
	askCmd.Flags().StringArrayVarP(&askOpts.files, "file", "f", nil, "attach a file (repeatable)")
	askCmd.Flags().StringVarP(&askOpts.quote, "quote", "q", "", "quote text in the message")
	askCmd.Flags().StringVar(&askOpts.chatID, "chat", "", "continue an existing chat")
	rootCmd.AddCommand(askCmd)
}

// askResult is the --json payload.
type askResult struct {
	ChatID   protocol.ChatID   `json:"chat_id,omitempty"`
	Status   string            `json:"status"`
	Text     string            `json:"text"`
	Raw      string            `json:"raw,omitempty"`
	Sources  []protocol.Source `json:"sources,omitempty"`
	Notice   string            `json:"notice,omitempty"`
	Research bool              `json:"research"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	// Interrupt cancels the request; the controller finalizes with the notice.
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	var sinkOut io.Writer = out
	if flags.json {
		sinkOut = cmd.ErrOrStderr()
	}
	r := render.New(sinkOut, styles.NewThemeFor(cfg.UI.Theme),
		render.WithMarkdown(cfg.UI.Markdown),
		render.WithWidth(cfg.UI.WordWrap),
		render.WithLogger(logger))

	var extra []conversation.Option
	if askOpts.chatID != "" {
		extra = append(extra, conversation.WithChatID(protocol.ChatID(askOpts.chatID)))
	}
	ctrl := a.controller(r, extra...)

	res, err := ctrl.Send(ctx, conversation.Draft{
		Text:         strings.Join(args, " "),
		Files:        askOpts.files,
		UseSearch:    askOpts.search || cfg.Chat.UseSearch,
		ResearchMode: askOpts.research || cfg.Chat.ResearchMode,
		QuotedText:   askOpts.quote,
	})

	if flags.json {
		if werr := newJSONResponse("ask", resultPayload(res)).write(out); werr != nil {
			return werr
		}
	}
	return askOutcome(res, err)
}

func resultPayload(res conversation.Result) askResult {
	return askResult{
		ChatID:   res.ChatID,
		Status:   res.Status.String(),
		Text:     res.Final.Text(),
		Raw:      res.Final.Raw,
		Sources:  res.Final.Sources,
		Notice:   res.Final.Notice,
		Research: res.Final.Research,
	}
}

// askOutcome turns a finished turn into the command's error.
func askOutcome(res conversation.Result, err error) error {
	if err != nil {
		return err
	}
	switch res.Status {
	case conversation.StatusCompleted:
		return nil
	case conversation.StatusIgnored:
		return &UsageError{Field: "question", Reason: "must not be empty"}
	case conversation.StatusCancelled:
		return fmt.Errorf("%w: cancelled", errTurnFailed)
	default:
		return fmt.Errorf("%w: %s", errTurnFailed, res.Status)
	}
}
