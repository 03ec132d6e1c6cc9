// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation runs the request lifecycle of a chat.
//
// A Controller owns the live session, sends user turns through a Transport,
// decodes the response stream and pushes rendered segments to a Sink. State
// changes and frame side effects are published as Events; the controller
// never touches a UI directly.
//
// # Key Types
//
//   - Controller: send, cancel, new chat, load chat, edit and resend
//   - Draft: what the user composed; Result: how the send ended
//   - Sink, AssistantHandle: rendering contract
//   - HistoryStore: chat list contract (AssignChatID, UpdateTitle)
//   - Observer, Event: typed event stream
//   - SourceRegistry: per-message source tables keyed by MessageID
//
// # Usage
//
//	ctrl := conversation.NewController(conversation.HTTPTransport(client), sink, store,
//	    conversation.WithLogger(logger))
//	res, err := ctrl.Send(ctx, conversation.Draft{Text: "hello"})
//
// # Lifecycle
//
// Send admits one request at a time; a Send while another is in flight
// returns StatusIgnored. Every exit path, including a panic unwinding
// through Send, returns the session to Idle.
package conversation
