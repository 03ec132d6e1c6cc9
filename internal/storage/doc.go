// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps local transcripts of chats.
//
// A TranscriptStore implements conversation.Recorder: every finished turn is
// appended to the JSON transcript of its chat, keyed by the server chat id
// (or the session id when the server never assigned one).
//
//	store, err := storage.NewTranscriptStoreWithDir(dir)
//	ctrl := conversation.NewController(t, sink, hist, conversation.WithRecorder(store))
//
// Listing and loading:
//
//	metas, err := store.List()
//	t, err := store.Load(metas[0].ID)
//
// The app keeps transcripts in <config dir>/transcripts. Files are written
// atomically.
// Assistant content keeps its citation markers so exports can render them.
package storage
