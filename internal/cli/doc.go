// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the calliope command line.
//
// # Commands
//
//   - calliope [chat]                 Line-based chat REPL (default)
//   - calliope tui                    Full-screen chat interface
//   - calliope ask "<question>"       One-shot question, answer on stdout
//   - calliope history [list|show|refresh]
//   - calliope export <chat-id>       Export a transcript (md, json, yaml, html)
//   - calliope config [show|path|init|set]
//   - calliope version
//
// # Global Flags
//
//   - --config: load configuration from a specific file
//   - --server: override server.base_url
//   - --protocol: override protocol.version (auto, typed, legacy)
//   - --verbose: debug logging on stderr
//   - --json: machine-readable output where supported
//
// # Usage
//
//	func main() {
//	    cli.Execute()
//	}
//
// Every command receives the loaded configuration and a zap logger from the
// root command's PersistentPreRunE. Errors are returned, never printed and
// swallowed; Execute maps them to exit codes.
package cli
