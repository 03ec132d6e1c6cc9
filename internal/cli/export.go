// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/calliope-tui/internal/export"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <chat-id>",
	Short: "Export a chat transcript",
	Long: `Export a chat to markdown, JSON, YAML or HTML.

The transcript recorded on this machine is used when there is one; otherwise
the chat is fetched from the server. Citations become footnotes in markdown
and highlighted spans in HTML.`,
	Example: `  calliope export 42
  calliope export 42 --format html --output chat.html
  calliope export 42 --format json --output -`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "md",
		"output format: "+strings.Join(export.Formats, ", "))
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		`output file, "-" for stdout (default: generated name in the current directory)`)
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := exportChat(ctx, a, protocol.ChatID(args[0]), exportFormat, exportOutput, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if path == "-" {
		return nil
	}
	if flags.json {
		return newJSONResponse("export", map[string]string{"path": path, "format": exportFormat}).write(cmd.OutOrStdout())
	}
	fmt.Fprintln(cmd.OutOrStdout(), styles.RenderSuccess("Exported to "+path))
	return nil
}
