// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes shared by every command.
//
// STANDARDIZED PATTERN:
//   - Commands always return errors
//   - Execute decides how to display them and which exit code to use

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/calliope-tui/internal/commands"
	"github.com/jeranaias/calliope-tui/internal/config"
	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/storage"
	"github.com/jeranaias/calliope-tui/internal/ui/styles"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	// ExitServerError means the server answered the turn with an error frame.
	ExitServerError = 9
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a failure of one command action.
type CommandError struct {
	Command string // e.g. "history"
	Action  string // e.g. "refresh"
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError is an invalid flag or argument.
type UsageError struct {
	Field  string
	Value  string
	Reason string
}

func (e *UsageError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ConfigError wraps a configuration load or validation failure.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// errTurnFailed marks a one-shot turn that did not complete.
var errTurnFailed = errors.New("the response did not complete")

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode picks the exit code for an error returned by a command.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var validation *commands.ValidationError
	if errors.As(err, &usage) || errors.As(err, &validation) {
		return ExitUsageError
	}

	var cfgErr *ConfigError
	var invalid config.ValidateErrors
	if errors.As(err, &cfgErr) || errors.As(err, &invalid) {
		return ExitConfigError
	}

	if errors.Is(err, storage.ErrTranscriptNotFound) {
		return ExitNotFoundError
	}

	var serverErr *protocol.ServerError
	if errors.As(err, &serverErr) {
		return ExitServerError
	}

	var transportErr *protocol.TransportError
	var uploadErr *protocol.UploadError
	if errors.As(err, &transportErr) || errors.As(err, &uploadErr) {
		return ExitNetworkError
	}

	return ExitGeneralError
}

// displayError prints err in human or JSON form.
func displayError(w io.Writer, command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		_ = newJSONErrorResponse(command, err).write(w)
		return
	}
	fmt.Fprintln(w, styles.RenderError("Error: "+err.Error()))
}
