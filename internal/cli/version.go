// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	// No config or logger needed.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := map[string]string{
			"version":    Version,
			"commit":     GitCommit,
			"build_date": BuildDate,
			"go":         runtime.Version(),
			"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		}
		if flags.json {
			return newJSONResponse("version", info).write(cmd.OutOrStdout())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "calliope %s\n", versionString())
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", info["go"], info["platform"])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
