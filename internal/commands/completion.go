// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/calliope-tui/internal/util"
)

// maxFileCompletions caps directory listings.
const maxFileCompletions = 20

// Completion is one candidate.
type Completion struct {
	// Value replaces the word being completed.
	Value       string
	Display     string
	Description string
	Score       int
}

// ChatInfo is what the completer needs to offer a chat id.
type ChatInfo struct {
	ID    string
	Title string
}

// =============================================================================
// COMPLETER
// =============================================================================

// Completer handles tab completion for commands and arguments.
type Completer struct {
	registry *Registry

	// ChatsFn lists known chats for /load.
	ChatsFn func() []ChatInfo
	// FilesFn overrides directory listing for /attach.
	FilesFn func(prefix string) []string
}

// NewCompleter creates a new completer with the given registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns completions for input, which is completed at its end.
func (c *Completer) Complete(input string) []Completion {
	if !strings.HasPrefix(strings.TrimLeft(input, " "), "/") {
		return nil
	}
	trailing := strings.HasSuffix(input, " ")

	parts := splitCommandLine(strings.TrimSpace(input))
	if len(parts) == 0 {
		return c.completeCommands("/")
	}
	if len(parts) == 1 && !trailing {
		return c.completeCommands(parts[0])
	}

	cmd := c.registry.Get(parts[0])
	if cmd == nil {
		return nil
	}

	argIndex := len(parts) - 2
	partial := parts[len(parts)-1]
	if trailing {
		argIndex++
		partial = ""
	}
	return c.completeArg(cmd, argIndex, partial)
}

// CompleteLine returns whole replacement lines for input. It suits line
// editors that replace the full buffer.
func (c *Completer) CompleteLine(input string) []string {
	comps := c.Complete(input)
	if len(comps) == 0 {
		return nil
	}

	// Keep everything before the word being completed.
	head := input
	if !strings.HasSuffix(input, " ") {
		if i := strings.LastIndex(strings.TrimRight(input, " "), " "); i >= 0 {
			head = input[:i+1]
		} else {
			head = ""
		}
	}

	lines := make([]string, 0, len(comps))
	for _, comp := range comps {
		lines = append(lines, head+comp.Value)
	}
	return lines
}

// =============================================================================
// COMMAND COMPLETION
// =============================================================================

func (c *Completer) completeCommands(partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		if strings.HasPrefix(cmd.Name, partial) {
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Display:     cmd.Name,
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
		}
		for _, alias := range cmd.Aliases {
			// Aliases only show up once the user has typed past the bare slash.
			if partial != "/" && strings.HasPrefix(alias, partial) {
				completions = append(completions, Completion{
					Value:       alias,
					Display:     alias + " -> " + cmd.Name,
					Description: cmd.Description,
					Score:       calculateScore(alias, partial) - 10,
				})
			}
		}
	}

	sortCompletions(completions)
	return completions
}

// =============================================================================
// ARGUMENT COMPLETION
// =============================================================================

func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}

	arg := cmd.Args[argIndex]
	switch arg.Type {
	case ArgTypeChat:
		return c.completeChats(partial)
	case ArgTypeFile:
		return c.completeFiles(partial)
	case ArgTypeEnum, ArgTypeToggle:
		return completeFromList(arg.Values, partial)
	default:
		return nil
	}
}

func (c *Completer) completeChats(partial string) []Completion {
	if c.ChatsFn == nil {
		return nil
	}

	var completions []Completion
	lower := strings.ToLower(partial)
	for _, chat := range c.ChatsFn() {
		idMatch := strings.HasPrefix(strings.ToLower(chat.ID), lower)
		titleMatch := lower != "" && strings.Contains(strings.ToLower(chat.Title), lower)
		if !idMatch && !titleMatch {
			continue
		}
		score := calculateScore(chat.ID, lower)
		if !idMatch {
			score -= 5
		}
		display := chat.ID
		if chat.Title != "" {
			display += " - " + util.TruncateRunes(chat.Title, 30)
		}
		completions = append(completions, Completion{Value: chat.ID, Display: display, Score: score})
	}
	sortCompletions(completions)
	return completions
}

func (c *Completer) completeFiles(partial string) []Completion {
	if c.FilesFn != nil {
		return completeFromList(c.FilesFn(partial), partial)
	}

	dir, prefix := filepath.Dir(partial), filepath.Base(partial)
	if partial == "" {
		dir, prefix = ".", ""
	} else if strings.HasSuffix(partial, string(os.PathSeparator)) {
		dir, prefix = partial, ""
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var completions []Completion
	lower := strings.ToLower(prefix)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(strings.ToLower(name), lower) {
			continue
		}
		// Skip hidden files unless the prefix asks for them.
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}

		path := name
		if dir != "." || strings.HasPrefix(partial, "./") {
			path = filepath.Join(dir, name)
		}
		score := calculateScore(name, lower)
		desc := ""
		if entry.IsDir() {
			path += string(os.PathSeparator)
			score += 5
			desc = "directory"
		} else if info, err := entry.Info(); err == nil {
			desc = humanize.Bytes(uint64(info.Size()))
		}

		completions = append(completions, Completion{Value: path, Display: name, Description: desc, Score: score})
	}

	sortCompletions(completions)
	if len(completions) > maxFileCompletions {
		completions = completions[:maxFileCompletions]
	}
	return completions
}

func completeFromList(values []string, partial string) []Completion {
	var completions []Completion
	lower := strings.ToLower(partial)
	for _, v := range values {
		if strings.HasPrefix(strings.ToLower(v), lower) {
			completions = append(completions, Completion{Value: v, Display: v, Score: calculateScore(v, lower)})
		}
	}
	sortCompletions(completions)
	return completions
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// calculateScore ranks exact and short prefix matches first.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100
	if value == partial {
		return score + 100
	}
	if strings.HasPrefix(value, partial) {
		score += 50
		score += 20 - len(value)
	}
	score -= len(value) / 2
	return score
}

// sortCompletions sorts completions by score (descending), then alphabetically.
func sortCompletions(completions []Completion) {
	sort.Slice(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}

// =============================================================================
// COMPLETION STATE
// =============================================================================

// CompletionState tracks the completion popup in an interactive input.
type CompletionState struct {
	// Input is the text the completions were computed for.
	Input       string
	Completions []Completion
	// Index of the highlighted completion.
	Index   int
	Visible bool
}

// NewCompletionState returns an empty state.
func NewCompletionState() *CompletionState {
	return &CompletionState{}
}

// Update replaces the candidates and highlights the first one.
func (cs *CompletionState) Update(input string, completions []Completion) {
	cs.Input = input
	cs.Completions = completions
	cs.Index = 0
	cs.Visible = len(completions) > 0
}

// Next highlights the next candidate, wrapping around.
func (cs *CompletionState) Next() {
	if n := len(cs.Completions); n > 0 {
		cs.Index = (cs.Index + 1) % n
	}
}

// Prev highlights the previous candidate, wrapping around.
func (cs *CompletionState) Prev() {
	if n := len(cs.Completions); n > 0 {
		cs.Index = (cs.Index - 1 + n) % n
	}
}

// Selected returns the highlighted candidate, or nil.
func (cs *CompletionState) Selected() *Completion {
	if cs.Index < 0 || cs.Index >= len(cs.Completions) {
		return nil
	}
	return &cs.Completions[cs.Index]
}

// Accept returns the highlighted value and hides the list.
func (cs *CompletionState) Accept() string {
	sel := cs.Selected()
	cs.Visible = false
	if sel == nil {
		return ""
	}
	return sel.Value
}

// Clear resets the state.
func (cs *CompletionState) Clear() {
	*cs = CompletionState{}
}
