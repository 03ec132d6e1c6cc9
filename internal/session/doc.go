// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the state of one live chat.
//
// A Session tracks the server-assigned chat id, the request state machine
// and the cancel handle of the in-flight request. Exactly one Session is
// live per conversation; starting a new chat or loading another one
// replaces it instead of mutating it.
//
// # Key Types
//
//   - Session: chat id, request state and cancel handle
//   - State: Idle, Sending, Cancelled, Failed
//   - Status: point-in-time snapshot for status bars
//
// # Usage
//
//	s := session.New("")
//	ctx, ok := s.Begin(parent)
//	if !ok {
//	    return // a request is already in flight
//	}
//	defer s.Finish(session.Idle)
//
// # State Machine
//
//	Idle -> Sending -> Idle
//	Idle -> Sending -> Cancelled -> Idle
//	Idle -> Sending -> Failed -> Idle
//
// Cancelled and Failed are transient: Finish reports them and the session
// settles in Idle before Finish returns.
package session
