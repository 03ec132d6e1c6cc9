// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/config"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/ui/chat"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Full-screen chat interface",
	Long: `Start the full-screen chat interface.

The chat list opens with Ctrl+O, Esc cancels a streaming response and Ctrl+Q
quits. Press F1 for all key bindings. Changes to the config file are applied
while the interface runs.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().BoolVar(&chatOpts.research, "research", false, "start in research mode")
	tuiCmd.Flags().BoolVar(&chatOpts.search, "search", false, "start with web search on")
	tuiCmd.Flags().StringVar(&chatOpts.chatID, "chat", "", "resume a chat by id")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// The sink exists before the stores so history changes can be posted to
	// the program.
	sink := chat.NewSink()
	defer sink.Close()

	a, err := newApp(ctx, cfg, logger, appOptions{
		onHistoryChange: func() { sink.Post(chat.HistoryChangedMsg{}) },
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl := a.controller(sink)
	opts := chat.Options{
		Conversation: ctrl,
		History:      a.history,
		Theme:        styles.NewThemeFor(cfg.UI.Theme),
		Config:       cfg,
		Logger:       logger,
		Context:      ctx,
		ResearchMode: chatOpts.research,
		UseSearch:    chatOpts.search,
		Resume:       protocol.ChatID(chatOpts.chatID),
	}
	if a.transcripts != nil {
		opts.Transcripts = a.transcripts
	}
	model := chat.New(opts)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	sink.Attach(p)

	go watchConfig(ctx, sink)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// watchConfig forwards config file reloads to the program. Only the default
// file or the one given with --config is watched.
func watchConfig(ctx context.Context, sink *chat.Sink) {
	path := flags.configPath
	if path == "" {
		p, err := config.FilePath()
		if err != nil {
			return
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		logger.Debug("config file absent, not watching", zap.String("path", path))
		return
	}

	err := config.Watch(ctx, path, func(c *config.Config, err error) {
		if c != nil {
			// Flags keep winning over the reloaded file.
			if ferr := applyFlagOverrides(c, flags); ferr != nil {
				err, c = ferr, nil
			}
		}
		if err != nil {
			logger.Warn("config reload failed", zap.Error(err))
		} else {
			logger.Info("config reloaded", zap.String("path", path))
		}
		sink.Post(chat.ConfigReloadedMsg{Config: c, Err: err})
	})
	if err != nil {
		logger.Warn("config watcher stopped", zap.Error(err))
	}
}
