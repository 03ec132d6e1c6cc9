// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/config"
	"github.com/jeranaias/calliope-tui/internal/logging"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
)

// Version information, set by main from build flags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// GLOBAL STATE
// =============================================================================

// globalFlags holds the persistent flags.
type globalFlags struct {
	configPath string
	server     string
	protocol   string
	verbose    bool
	json       bool
}

var (
	flags globalFlags

	// cfg and logger are set by PersistentPreRunE before any RunE.
	cfg       *config.Config
	logger    = zap.NewNop()
	flushLogs = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "calliope",
	Short: "Terminal client for the Calliope research chat server",
	Long: `calliope talks to a Calliope chat server from the terminal.

Responses stream in as they are generated. Research answers carry inline
citations that are shown next to the cited text, with the sources listed
after the message.

Run without a command to start the line-based chat, or use "calliope tui"
for the full-screen interface.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) { flushLogs() },
	RunE:              runChat,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default ~/.calliope/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&flags.server, "server", "s", "", "server base URL (overrides server.base_url)")
	rootCmd.PersistentFlags().StringVar(&flags.protocol, "protocol", "", "stream protocol: auto, typed or legacy")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging on stderr")
	rootCmd.PersistentFlags().BoolVar(&flags.json, "json", false, "machine-readable output where supported")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.Version = versionString()
	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		name := "calliope"
		if cmd != nil {
			name = cmd.Name()
		}
		displayError(os.Stderr, name, err, flags.json)
		os.Exit(ExitCode(err))
	}
}

// =============================================================================
// SETUP
// =============================================================================

// setup loads configuration, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, warning, err := loadConfig(flags)
	if err != nil {
		return err
	}
	cfg = loaded

	l, flush, err := logging.New(logging.FromConfig(cfg, flags.verbose))
	if err != nil {
		return &ConfigError{Path: cfg.LogFile(), Err: err}
	}
	logger, flushLogs = l, flush

	if warning != "" {
		// A broken default file still leaves usable defaults.
		fmt.Fprintln(cmd.ErrOrStderr(), styles.RenderWarning(fmt.Sprintf("%s (using defaults)", warning)))
		logger.Warn("config file ignored", zap.String("reason", warning))
	}
	logger.Debug("configuration loaded",
		zap.String("command", cmd.Name()),
		zap.String("server", cfg.Server.BaseURL),
		zap.String("protocol", cfg.Protocol.Version))
	return nil
}

// loadConfig returns the effective configuration. warning describes a
// default config file that could not be used.
func loadConfig(f globalFlags) (c *config.Config, warning string, err error) {
	if f.configPath != "" {
		c, err = config.LoadFromPath(f.configPath)
		if err != nil {
			return nil, "", &ConfigError{Path: f.configPath, Err: err}
		}
	} else {
		c, err = config.Load()
		if c == nil {
			return nil, "", &ConfigError{Err: err}
		}
		if err != nil {
			warning = err.Error()
		}
	}

	if err := applyFlagOverrides(c, f); err != nil {
		return nil, "", err
	}
	if err := c.Validate(); err != nil {
		return nil, "", &ConfigError{Path: f.configPath, Err: err}
	}
	return c, warning, nil
}

// applyFlagOverrides lets flags win over file and environment.
func applyFlagOverrides(c *config.Config, f globalFlags) error {
	if f.server != "" {
		c.Server.BaseURL = f.server
	}
	if f.protocol != "" {
		v, err := protocol.ParseVersion(f.protocol)
		if err != nil {
			return &UsageError{Field: "--protocol", Value: f.protocol, Reason: "must be auto, typed or legacy"}
		}
		c.Protocol.Version = string(v)
	}
	return nil
}

func versionString() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
