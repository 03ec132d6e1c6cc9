// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// ACTIONS
// =============================================================================

// Action identifies what a command asks the frontend to do.
type Action int

const (
	ActionNone Action = iota
	ActionHelp
	ActionQuit
	ActionNew
	ActionLoad
	ActionHistory
	ActionResearch
	ActionSearch
	ActionAttach
	ActionQuote
	ActionEdit
	ActionCopy
	ActionCancel
	ActionExport
)

var actionNames = map[Action]string{
	ActionNone:     "none",
	ActionHelp:     "help",
	ActionQuit:     "quit",
	ActionNew:      "new",
	ActionLoad:     "load",
	ActionHistory:  "history",
	ActionResearch: "research",
	ActionSearch:   "search",
	ActionAttach:   "attach",
	ActionQuote:    "quote",
	ActionEdit:     "edit",
	ActionCopy:     "copy",
	ActionCancel:   "cancel",
	ActionExport:   "export",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash command.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/load <chat-id>")
	Usage string

	// Args defines the expected arguments
	Args []ArgDef

	// Action is what the frontend should do
	Action Action

	// Category for grouping in help display
	Category string

	// Hidden commands don't appear in help
	Hidden bool
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string
	// Values for enum types
	Values []string
	// Rest takes the remainder of the line, spaces included.
	Rest bool
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString ArgType = iota // Free-form string
	ArgTypeChat                  // Chat id from history
	ArgTypeFile                  // File path
	ArgTypeEnum                  // One of predefined values
	ArgTypeToggle                // on/off
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias. Lookup is case-insensitive.
func (r *Registry) Get(name string) *Command {
	name = strings.ToLower(name)
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns visible commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// categoryOrder is the order of sections in HelpText.
var categoryOrder = []string{"Conversation", "Composing", "History", "General"}

// HelpText renders the command list grouped by category.
func (r *Registry) HelpText() string {
	groups := r.ByCategory()
	var sb strings.Builder
	for _, cat := range categoryOrder {
		cmds := groups[cat]
		if len(cmds) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%s:\n", cat)
		for _, cmd := range cmds {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			fmt.Fprintf(&sb, "  %-22s %s\n", usage, cmd.Description)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

var toggleArg = ArgDef{
	Name:        "state",
	Type:        ArgTypeToggle,
	Values:      []string{"on", "off"},
	Description: "on or off; toggles when omitted",
}

func (r *Registry) registerBuiltins() {
	// Conversation
	r.Register(&Command{
		Name:        "/new",
		Aliases:     []string{"/n", "/clear"},
		Description: "Start a new chat",
		Category:    "Conversation",
		Action:      ActionNew,
	})
	r.Register(&Command{
		Name:        "/cancel",
		Aliases:     []string{"/stop"},
		Description: "Cancel the response in progress",
		Category:    "Conversation",
		Action:      ActionCancel,
	})
	r.Register(&Command{
		Name:        "/edit",
		Aliases:     []string{"/e"},
		Description: "Resend the last message with new text, keeping its attachments",
		Usage:       "/edit <text>",
		Args:        []ArgDef{{Name: "text", Required: true, Rest: true, Description: "replacement message"}},
		Category:    "Conversation",
		Action:      ActionEdit,
	})
	r.Register(&Command{
		Name:        "/copy",
		Aliases:     []string{"/y"},
		Description: "Copy the last response to the clipboard",
		Category:    "Conversation",
		Action:      ActionCopy,
	})

	// Composing
	r.Register(&Command{
		Name:        "/research",
		Aliases:     []string{"/r"},
		Description: "Toggle research mode (cited answers)",
		Usage:       "/research [on|off]",
		Args:        []ArgDef{toggleArg},
		Category:    "Composing",
		Action:      ActionResearch,
	})
	r.Register(&Command{
		Name:        "/search",
		Aliases:     []string{"/web"},
		Description: "Toggle web search",
		Usage:       "/search [on|off]",
		Args:        []ArgDef{toggleArg},
		Category:    "Composing",
		Action:      ActionSearch,
	})
	r.Register(&Command{
		Name:        "/attach",
		Aliases:     []string{"/a", "/file"},
		Description: "Attach a file to the next message",
		Usage:       "/attach <path>",
		Args:        []ArgDef{{Name: "path", Required: true, Type: ArgTypeFile, Rest: true, Description: "file to upload"}},
		Category:    "Composing",
		Action:      ActionAttach,
	})
	r.Register(&Command{
		Name:        "/quote",
		Aliases:     []string{"/qt"},
		Description: "Quote text in the next message; no text clears it",
		Usage:       "/quote [text]",
		Args:        []ArgDef{{Name: "text", Rest: true, Description: "quoted text"}},
		Category:    "Composing",
		Action:      ActionQuote,
	})

	// History
	r.Register(&Command{
		Name:        "/history",
		Aliases:     []string{"/chats", "/ls"},
		Description: "List chats",
		Category:    "History",
		Action:      ActionHistory,
	})
	r.Register(&Command{
		Name:        "/load",
		Aliases:     []string{"/open"},
		Description: "Load a chat by id",
		Usage:       "/load <chat-id>",
		Args:        []ArgDef{{Name: "chat-id", Required: true, Type: ArgTypeChat, Description: "chat id"}},
		Category:    "History",
		Action:      ActionLoad,
	})
	r.Register(&Command{
		Name:        "/export",
		Description: "Export the current chat",
		Usage:       "/export [md|json|yaml|html]",
		Args: []ArgDef{{
			Name:        "format",
			Type:        ArgTypeEnum,
			Values:      []string{"md", "markdown", "json", "yaml", "yml", "html"},
			Description: "output format",
		}},
		Category: "History",
		Action:   ActionExport,
	})

	// General
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Category:    "General",
		Action:      ActionHelp,
	})
	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit calliope",
		Category:    "General",
		Action:      ActionQuit,
	})
}
