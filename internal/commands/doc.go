// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash commands shared by the REPL and the
// TUI.
//
// Commands resolve to an Action; each frontend decides how to carry the
// action out. The package never touches a terminal.
//
// # Key Types
//
//   - Registry: built-in commands, looked up by name or alias
//   - Parser, ParseResult: split input into command and arguments
//   - Invocation: a validated command ready to dispatch
//   - Completer: tab completion for command names and file arguments
//
// # Usage
//
//	reg := commands.NewRegistry()
//	inv, err := commands.NewParser(reg).Resolve("/load 42")
//	if err == nil && inv.Action == commands.ActionLoad {
//	    ctrl.LoadChat(ctx, protocol.ChatID(inv.Arg(0)))
//	}
package commands
