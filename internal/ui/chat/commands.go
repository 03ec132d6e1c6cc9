// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/calliope-tui/internal/commands"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
	"github.com/jeranaias/calliope-tui/internal/util"
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// commandHandler is the signature for slash command handlers.
type commandHandler func(m *Model, inv commands.Invocation) (tea.Model, tea.Cmd)

// commandHandlers maps each action to its handler.
var commandHandlers map[commands.Action]commandHandler

func init() {
	commandHandlers = map[commands.Action]commandHandler{
		commands.ActionHelp:     handleHelpCommand,
		commands.ActionQuit:     handleQuitCommand,
		commands.ActionNew:      handleNewCommand,
		commands.ActionLoad:     handleLoadCommand,
		commands.ActionHistory:  handleHistoryCommand,
		commands.ActionResearch: handleResearchCommand,
		commands.ActionSearch:   handleSearchCommand,
		commands.ActionAttach:   handleAttachCommand,
		commands.ActionQuote:    handleQuoteCommand,
		commands.ActionEdit:     handleEditCommand,
		commands.ActionCopy:     handleCopyCommand,
		commands.ActionCancel:   handleCancelCommand,
		commands.ActionExport:   handleExportCommand,
	}
}

// runCommand resolves and runs a slash command line.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	inv, err := m.parser.Resolve(line)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, commands.ErrUnknownCommand) {
			msg = "Unknown command " + commands.ExtractCommandName(line) + ". Type /help for available commands"
		}
		m.addInfo(styles.RenderError(msg))
		return m, nil
	}

	handler, ok := commandHandlers[inv.Action]
	if !ok {
		return m, nil
	}
	return handler(&m, inv)
}

// =============================================================================
// CONVERSATION COMMANDS
// =============================================================================

func handleNewCommand(m *Model, _ commands.Invocation) (tea.Model, tea.Cmd) {
	return m.newChat()
}

func (m Model) newChat() (tea.Model, tea.Cmd) {
	if m.conv == nil {
		return m, nil
	}
	if !m.conv.NewChat() {
		m.statusMsg = "Wait for the current response to finish"
		return m, nil
	}
	m.files = nil
	m.quote = ""
	m.statusMsg = "New chat"
	return m, nil
}

func handleCancelCommand(m *Model, _ commands.Invocation) (tea.Model, tea.Cmd) {
	if !m.processing {
		m.statusMsg = "Nothing to cancel"
		return *m, nil
	}
	return m.cancelResponse()
}

func handleEditCommand(m *Model, inv commands.Invocation) (tea.Model, tea.Cmd) {
	if m.processing || m.conv == nil {
		return *m, nil
	}
	return *m, m.resendCmd(inv.Arg(0))
}

func handleCopyCommand(m *Model, _ commands.Invocation) (tea.Model, tea.Cmd) {
	return *m, m.copyCmd()
}

// =============================================================================
// COMPOSER COMMANDS
// =============================================================================

func handleResearchCommand(m *Model, inv commands.Invocation) (tea.Model, tea.Cmd) {
	m.researchMode = inv.Toggle(m.researchMode)
	m.statusMsg = "Research mode " + onOff(m.researchMode)
	return *m, nil
}

func handleSearchCommand(m *Model, inv commands.Invocation) (tea.Model, tea.Cmd) {
	m.useSearch = inv.Toggle(m.useSearch)
	m.statusMsg = "Web search " + onOff(m.useSearch)
	return *m, nil
}

func handleAttachCommand(m *Model, inv commands.Invocation) (tea.Model, tea.Cmd) {
	path := inv.Arg(0)
	info, err := os.Stat(path)
	switch {
	case err != nil:
		m.addInfo(styles.RenderError("Cannot attach " + path + ": " + err.Error()))
		return *m, nil
	case info.IsDir():
		m.addInfo(styles.RenderError("Cannot attach " + path + ": is a directory"))
		return *m, nil
	}
	m.files = append(m.files, path)
	m.statusMsg = "Attached " + filepath.Base(path) + " (" + util.Plural(len(m.files), "file", "files") + " pending)"
	return *m, nil
}

func handleQuoteCommand(m *Model, inv commands.Invocation) (tea.Model, tea.Cmd) {
	quote := inv.Arg(0)
	if quote == "" && m.conv != nil {
		quote = m.conv.LastAssistantText()
	}
	if quote == "" {
		m.quote = ""
		m.statusMsg = "Quote cleared"
		return *m, nil
	}
	m.quote = quote
	m.statusMsg = "Quoting: " + util.QuotePreview(quote)
	return *m, nil
}

// =============================================================================
// HISTORY COMMANDS
// =============================================================================

func handleHistoryCommand(m *Model, _ commands.Invocation) (tea.Model, tea.Cmd) {
	return m.toggleHistory()
}

func handleLoadCommand(m *Model, inv commands.Invocation) (tea.Model, tea.Cmd) {
	if m.conv == nil {
		return *m, nil
	}
	if m.processing {
		m.statusMsg = "Wait for the current response to finish"
		return *m, nil
	}
	m.statusMsg = "Loading chat " + inv.Arg(0) + "..."
	return *m, m.loadCmd(protocol.ChatID(inv.Arg(0)))
}

func handleExportCommand(m *Model, inv commands.Invocation) (tea.Model, tea.Cmd) {
	if m.transcripts == nil {
		m.addInfo(styles.RenderError("Export needs local transcripts; none are configured"))
		return *m, nil
	}
	if m.chatID == "" {
		m.addInfo(styles.RenderError("Nothing to export yet"))
		return *m, nil
	}
	format := inv.Arg(0)
	if format == "" {
		format = "md"
	}
	return *m, exportCmd(m.transcripts, m.chatID.String(), format)
}

// =============================================================================
// HELP AND META COMMANDS
// =============================================================================

func handleHelpCommand(m *Model, _ commands.Invocation) (tea.Model, tea.Cmd) {
	m.showHelp = true
	return *m, nil
}

func handleQuitCommand(m *Model, _ commands.Invocation) (tea.Model, tea.Cmd) {
	return m.quit()
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// helpText is the full help overlay body.
func (m Model) helpText() string {
	var sb strings.Builder
	sb.WriteString(m.registry.HelpText())
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "%s\n", m.help.FullHelpView(m.keyMap.FullHelp()))
	return strings.TrimRight(sb.String(), "\n")
}
