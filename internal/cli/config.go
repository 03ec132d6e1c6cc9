// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - View and modify configuration.
//
// Subcommands:
//   show (default)      Display the effective configuration
//   get <key>           Print one value
//   set <key> <value>   Set a value in the config file
//   init                Write a default config file
//   path                Show the config file path
//
// Keys use dot notation, e.g. server.base_url or chat.research_mode.

package cli

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/calliope-tui/internal/config"
	"github.com/jeranaias/calliope-tui/internal/logging"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
)

var (
	configTitleStyle   = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	configSectionStyle = lipgloss.NewStyle().Foreground(styles.Purple).Bold(true)
	configKeyStyle     = lipgloss.NewStyle().Foreground(styles.TextSecondary).Width(24)
	configValueStyle   = lipgloss.NewStyle().Foreground(styles.TextPrimary)
	configMaskedStyle  = lipgloss.NewStyle().Foreground(styles.TextMuted)
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and modify configuration",
	Long: `View and modify the calliope configuration.

The file is ~/.calliope/config.toml unless --config is given; CALLIOPE_HOME
moves the whole directory. CALLIOPE_* environment variables override the file.`,
	Example: `  calliope config
  calliope config set server.base_url https://calliope.example.org
  calliope config set chat.research_mode true
  calliope config get protocol.version`,
	Args: cobra.NoArgs,
	// Configuration commands must work even when the file is invalid.
	PersistentPreRunE: setupLenient,
	RunE:              runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the config file",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd, configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLenient builds the logger without requiring a valid config file.
func setupLenient(cmd *cobra.Command, _ []string) error {
	l, flush, err := logging.New(logging.Options{Level: "info", Verbose: flags.verbose})
	if err != nil {
		return err
	}
	logger, flushLogs = l, flush
	return nil
}

// configFilePath is the file the config commands read and write.
func configFilePath() (string, error) {
	if flags.configPath != "" {
		return flags.configPath, nil
	}
	return config.FilePath()
}

// effectiveConfig loads configuration the way the chat commands do, falling
// back to defaults with a warning.
func effectiveConfig(cmd *cobra.Command) *config.Config {
	c, warning, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), styles.RenderWarning(fmt.Sprintf("%v (using defaults)", err)))
		return config.Default()
	}
	if warning != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), styles.RenderWarning(fmt.Sprintf("%s (using defaults)", warning)))
	}
	return c
}

// =============================================================================
// SHOW / GET
// =============================================================================

func runConfigShow(cmd *cobra.Command, _ []string) error {
	c := effectiveConfig(cmd)
	out := cmd.OutOrStdout()
	path, _ := configFilePath()

	if flags.json {
		return newJSONResponse("config show", map[string]any{
			"path":   path,
			"config": c.Redacted(),
		}).write(out)
	}
	writeConfig(out, c, path)
	return nil
}

// writeConfig prints every key grouped by section. Secrets are masked.
func writeConfig(w io.Writer, c *config.Config, path string) {
	fmt.Fprintln(w, configTitleStyle.Render("calliope configuration"))
	section := ""
	for _, key := range config.GetAllKeys() {
		sec, name, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		if sec != section {
			section = sec
			fmt.Fprintln(w)
			fmt.Fprintln(w, configSectionStyle.Render("["+sec+"]"))
		}
		v, err := c.Get(key)
		if err != nil {
			continue
		}
		value := fmt.Sprint(v)
		style := configValueStyle
		if config.IsSecretKey(key) {
			value, style = maskSecret(value), configMaskedStyle
		}
		fmt.Fprintf(w, "  %s%s\n", configKeyStyle.Render(name+":"), style.Render(value))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Config file: %s\n", path)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	c := effectiveConfig(cmd)
	key := normalizeKey(args[0])
	v, err := c.Get(key)
	if err != nil {
		return &UsageError{Field: "key", Value: args[0], Reason: err.Error()}
	}
	value := fmt.Sprint(v)
	if config.IsSecretKey(key) {
		value = maskSecret(value)
	}
	if flags.json {
		return newJSONResponse("config get", map[string]string{"key": key, "value": value}).write(cmd.OutOrStdout())
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

// =============================================================================
// SET / INIT / PATH
// =============================================================================

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return &ConfigError{Err: err}
	}

	// Edit the file's own values, not the environment-overridden ones.
	c := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		if err := config.LoadFile(c, path); err != nil {
			return &ConfigError{Path: path, Err: err}
		}
	}

	key := normalizeKey(args[0])
	if err := c.Set(key, args[1]); err != nil {
		return &UsageError{Field: "key", Value: args[0], Reason: err.Error()}
	}
	if err := c.Validate(); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := config.Save(c, path); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	logger.Info("config value set", zap.String("key", key), zap.String("path", path))

	shown := args[1]
	if config.IsSecretKey(key) {
		shown = maskSecret(shown)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", styles.StatusIndicators.Success, key, shown)
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, err := configFilePath()
	if err != nil {
		return &ConfigError{Err: err}
	}
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return &UsageError{Field: "config file", Value: path, Reason: "already exists (use --force to overwrite)"}
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &ConfigError{Path: path, Err: err}
	}
	if err := config.Save(config.Default(), path); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	fmt.Fprintln(cmd.OutOrStdout(), styles.RenderSuccess("Wrote "+path))
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	path, err := configFilePath()
	if err != nil {
		return &ConfigError{Err: err}
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil

	if flags.json {
		return newJSONResponse("config path", map[string]any{"path": path, "exists": exists}).write(cmd.OutOrStdout())
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	if !exists {
		fmt.Fprintln(cmd.ErrOrStderr(), configMaskedStyle.Render("Note: the file does not exist yet; run \"calliope config init\""))
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// normalizeKey lowercases a dot-notation key.
func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// maskSecret shows a short SHA-256 fingerprint instead of the value.
// SECURITY: No prefix of the credential is ever printed.
func maskSecret(value string) string {
	if value == "" {
		return "(not set)"
	}
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("sha256:%x...", sum[:4])
}
