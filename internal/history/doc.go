// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps the chat list shown in the sidebar and by
// `calliope history`.
//
// The Store is the source of truth while the program runs. The conversation
// controller tells it when the server assigns a chat id or retitles a chat,
// Refresh pulls the server's list, and an optional SQLite Cache keeps a copy
// on disk so the list is available before the server answers.
//
//	cache, err := history.OpenCache(path)
//	store := history.NewStore(history.WithCache(cache), history.WithLister(client))
//	store.Load(ctx)     // entries from disk
//	store.Refresh(ctx)  // entries from the server
//	for _, e := range store.List() { fmt.Println(e.DisplayTitle()) }
package history
