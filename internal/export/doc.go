// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders stored transcripts for reading outside calliope.
//
// # Supported Formats
//
//   - Markdown: cited spans become footnotes naming their source
//   - JSON: the transcript as stored, plus stripped text per message
//   - YAML: the same document as JSON
//   - HTML: standalone page; cited spans are <span class="cited"> elements
//     titled with their source
//
// # Usage
//
//	exp, err := export.ForFormat("md", export.DefaultOptions())
//	path, err := export.ExportToFile(transcript, exp, opts)
//
// Or write to any io.Writer:
//
//	err := export.Write(os.Stdout, transcript, exp)
package export
