// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/transport"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
	"github.com/jeranaias/calliope-tui/internal/util"
)

// =============================================================================
// COMMANDS
// =============================================================================

var memoryCmd = &cobra.Command{
	Use:     "memory",
	Aliases: []string{"memories"},
	Short:   "Manage what the server remembers about you",
	Long: `List, add, edit, remove and verify saved memories.

The server draws on saved memories when it answers. Verifying a memory
confirms it is correct. Without a subcommand the first page is listed.`,
	Args: cobra.NoArgs,
	RunE: runMemoryList,
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved memories",
	Args:  cobra.NoArgs,
	RunE:  runMemoryList,
}

var memoryCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List memory categories",
	Args:  cobra.NoArgs,
	RunE:  runMemoryCategories,
}

var memoryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Save a new memory",
	Example: `  calliope memory add --title Editor --content "Uses vim" --category 2
  calliope memory add -t Editor -m "Uses vim" -k 2 --importance 0.8`,
	Args: cobra.NoArgs,
	RunE: runMemoryAdd,
}

var memoryEditCmd = &cobra.Command{
	Use:   "edit <memory-id>",
	Short: "Change a saved memory",
	Long:  "Change the fields given by flags; the rest stay as they are.",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryEdit,
}

var memoryRmCmd = &cobra.Command{
	Use:     "rm <memory-id>",
	Aliases: []string{"delete"},
	Short:   "Delete a saved memory",
	Args:    cobra.ExactArgs(1),
	RunE:    runMemoryRm,
}

var memoryVerifyCmd = &cobra.Command{
	Use:   "verify <memory-id>",
	Short: "Mark a memory as correct",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryVerify,
}

type memoryFlags struct {
	category   int64
	page       int
	perPage    int
	title      string
	content    string
	importance float64
}

var memOpts memoryFlags

func init() {
	for _, c := range []*cobra.Command{memoryCmd, memoryListCmd} {
		c.Flags().Int64VarP(&memOpts.category, "category", "k", 0, "only this category id")
		c.Flags().IntVar(&memOpts.page, "page", 0, "page number (server default 1)")
		c.Flags().IntVar(&memOpts.perPage, "per-page", 0, "memories per page (server default 10)")
	}
	for _, c := range []*cobra.Command{memoryAddCmd, memoryEditCmd} {
		c.Flags().StringVarP(&memOpts.title, "title", "t", "", "memory title")
		c.Flags().StringVarP(&memOpts.content, "content", "m", "", "memory text")
		c.Flags().Int64VarP(&memOpts.category, "category", "k", 0, "category id (see 'memory categories')")
		c.Flags().Float64Var(&memOpts.importance, "importance", 0, "importance score between 0 and 1")
	}
	_ = memoryAddCmd.MarkFlagRequired("title")
	_ = memoryAddCmd.MarkFlagRequired("content")
	_ = memoryAddCmd.MarkFlagRequired("category")

	memoryCmd.AddCommand(memoryListCmd, memoryCategoriesCmd, memoryAddCmd, memoryEditCmd, memoryRmCmd, memoryVerifyCmd)
	rootCmd.AddCommand(memoryCmd)
}

// memoryClient builds a client without opening the local stores.
func memoryClient() (*transport.Client, error) {
	version, err := protocol.ParseVersion(cfg.Protocol.Version)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return newClient(cfg, version, logger), nil
}

func parseMemoryID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, &UsageError{Field: "memory id", Value: arg, Reason: "must be a positive number"}
	}
	return id, nil
}

// memoryInput collects the flags that were given on the command line.
func memoryInput(cmd *cobra.Command) (protocol.MemoryInput, error) {
	var in protocol.MemoryInput
	fl := cmd.Flags()
	if fl.Changed("title") {
		in.Title = strings.TrimSpace(memOpts.title)
	}
	if fl.Changed("content") {
		in.Content = strings.TrimSpace(memOpts.content)
	}
	if fl.Changed("category") {
		if memOpts.category <= 0 {
			return in, &UsageError{Field: "category", Value: strconv.FormatInt(memOpts.category, 10), Reason: "must be a positive id"}
		}
		in.CategoryID = memOpts.category
	}
	if fl.Changed("importance") {
		if memOpts.importance < 0 || memOpts.importance > 1 {
			return in, &UsageError{Field: "importance", Value: strconv.FormatFloat(memOpts.importance, 'g', -1, 64), Reason: "must be between 0 and 1"}
		}
		score := memOpts.importance
		in.ImportanceScore = &score
	}
	return in, nil
}

// =============================================================================
// HANDLERS
// =============================================================================

func runMemoryList(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(commandContext(cmd), historyTimeout)
	defer cancel()

	client, err := memoryClient()
	if err != nil {
		return err
	}
	page, err := client.ListMemories(ctx, protocol.MemoryQuery{
		CategoryID: memOpts.category,
		Page:       memOpts.page,
		PerPage:    memOpts.perPage,
	})
	if err != nil {
		return &CommandError{Command: "memory", Action: "list", Err: err}
	}

	out := cmd.OutOrStdout()
	if flags.json {
		return newJSONResponse("memory list", page).write(out)
	}
	writeMemories(out, page)
	return nil
}

func runMemoryCategories(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(commandContext(cmd), historyTimeout)
	defer cancel()

	client, err := memoryClient()
	if err != nil {
		return err
	}
	cats, err := client.ListMemoryCategories(ctx)
	if err != nil {
		return &CommandError{Command: "memory", Action: "categories", Err: err}
	}

	out := cmd.OutOrStdout()
	if flags.json {
		return newJSONResponse("memory categories", cats).write(out)
	}
	if len(cats) == 0 {
		fmt.Fprintln(out, styles.RenderInfo("No categories"))
		return nil
	}
	for _, c := range cats {
		line := fmt.Sprintf("%4d  %s  %s", c.ID, runewidth.FillRight(c.Name, 20), c.Description)
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}
	return nil
}

func runMemoryAdd(cmd *cobra.Command, _ []string) error {
	in, err := memoryInput(cmd)
	if err != nil {
		return err
	}
	if err := in.ValidateNew(); err != nil {
		return &UsageError{Field: "memory", Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), historyTimeout)
	defer cancel()
	client, err := memoryClient()
	if err != nil {
		return err
	}
	id, err := client.CreateMemory(ctx, in)
	if err != nil {
		return &CommandError{Command: "memory", Action: "add", Err: err}
	}

	out := cmd.OutOrStdout()
	if flags.json {
		return newJSONResponse("memory add", map[string]int64{"memory_id": id}).write(out)
	}
	fmt.Fprintln(out, styles.RenderSuccess(fmt.Sprintf("Saved memory %d", id)))
	return nil
}

func runMemoryEdit(cmd *cobra.Command, args []string) error {
	id, err := parseMemoryID(args[0])
	if err != nil {
		return err
	}
	in, err := memoryInput(cmd)
	if err != nil {
		return err
	}
	if in.IsEmpty() {
		return &UsageError{Field: "memory", Reason: "give at least one of --title, --content, --category or --importance"}
	}
	return memoryAction(cmd, "edit", id, "Updated", func(ctx context.Context, c *transport.Client) error {
		return c.UpdateMemory(ctx, id, in)
	})
}

func runMemoryRm(cmd *cobra.Command, args []string) error {
	id, err := parseMemoryID(args[0])
	if err != nil {
		return err
	}
	return memoryAction(cmd, "rm", id, "Deleted", func(ctx context.Context, c *transport.Client) error {
		return c.DeleteMemory(ctx, id)
	})
}

func runMemoryVerify(cmd *cobra.Command, args []string) error {
	id, err := parseMemoryID(args[0])
	if err != nil {
		return err
	}
	return memoryAction(cmd, "verify", id, "Verified", func(ctx context.Context, c *transport.Client) error {
		return c.VerifyMemory(ctx, id)
	})
}

// memoryAction runs a write on one memory and reports it.
func memoryAction(cmd *cobra.Command, action string, id int64, done string, fn func(context.Context, *transport.Client) error) error {
	ctx, cancel := context.WithTimeout(commandContext(cmd), historyTimeout)
	defer cancel()

	client, err := memoryClient()
	if err != nil {
		return err
	}
	if err := fn(ctx, client); err != nil {
		return &CommandError{Command: "memory", Action: action, Err: err}
	}

	out := cmd.OutOrStdout()
	if flags.json {
		return newJSONResponse("memory "+action, map[string]int64{"memory_id": id}).write(out)
	}
	fmt.Fprintln(out, styles.RenderSuccess(fmt.Sprintf("%s memory %d", done, id)))
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// writeMemories prints one memory per block: a header line with the
// verification mark, id, title and category, then the indented content.
func writeMemories(w io.Writer, page protocol.MemoryPage) {
	if len(page.Memories) == 0 {
		fmt.Fprintln(w, styles.RenderInfo("No memories"))
		return
	}
	for _, m := range page.Memories {
		mark := "?"
		if m.IsVerified {
			mark = "✓"
		}
		fmt.Fprintf(w, "%s %4d  %s  [%s]  %.1f\n", mark, m.ID,
			runewidth.FillRight(util.TruncateRunes(m.Title, titleWidth), titleWidth),
			m.CategoryName, m.ImportanceScore)
		for _, line := range strings.Split(strings.TrimSpace(m.Content), "\n") {
			fmt.Fprintln(w, "         "+line)
		}
	}
	if page.Pages > 1 {
		fmt.Fprintln(w, styles.RenderInfo(fmt.Sprintf("Page %d of %d (%s)",
			page.Page, page.Pages, util.Plural(page.Total, "memory", "memories"))))
	}
}
