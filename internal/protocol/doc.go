// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol defines the wire contract between calliope and the chat
// server: the outgoing turn, the request body variants, the typed stream
// frames and the error taxonomy shared by the transport, the frame decoder
// and the request lifecycle.
//
// # Key Types
//
//   - OutgoingTurn: one user turn, immutable once issued
//   - Frame: tagged union of ChatInfo, Status, ResponseChunk, TitleUpdate,
//     Sources and ErrorFrame
//   - Version: protocol version (auto, typed, legacy)
//   - TransportError, ProtocolError, ServerError, UploadError,
//     CancellationError: error taxonomy
//
// # Protocol Versions
//
// Two frame schemas coexist on deployed servers. Typed frames carry a
// "type" discriminator; legacy frames key on the presence of "status",
// "response" or "error". VersionAuto accepts both, the other versions pin
// one schema.
package protocol
