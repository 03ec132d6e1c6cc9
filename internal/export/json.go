// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/calliope-tui/internal/protocol"
	"github.com/jeranaias/calliope-tui/internal/storage"
)

// =============================================================================
// DOCUMENT
// =============================================================================

// document is the structure written by the JSON and YAML exporters: the
// stored transcript plus the marker-free text of every message.
type document struct {
	ID        string          `json:"id" yaml:"id"`
	ChatID    protocol.ChatID `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
	Title     string          `json:"title" yaml:"title"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"updated_at"`
	Generator string          `json:"generator" yaml:"generator"`
	Messages  []docMessage    `json:"messages" yaml:"messages"`
}

type docMessage struct {
	storage.Message `yaml:",inline"`
	Text            string     `json:"text" yaml:"text"`
	Citations       []citeSpan `json:"citations,omitempty" yaml:"citations,omitempty"`
}

type citeSpan struct {
	Text     string `json:"text" yaml:"text"`
	SourceID string `json:"source_id" yaml:"source_id"`
}

func newDocument(t *storage.Transcript) document {
	doc := document{
		ID:        t.ID,
		ChatID:    t.ChatID,
		Title:     title(t),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Generator: "calliope",
		Messages:  make([]docMessage, 0, len(t.Messages)),
	}
	for _, m := range t.Messages {
		dm := docMessage{Message: m, Text: m.Text()}
		for _, seg := range m.Segments() {
			if seg.SourceID != "" {
				dm.Citations = append(dm.Citations, citeSpan{Text: seg.Text, SourceID: seg.SourceID})
			}
		}
		doc.Messages = append(doc.Messages, dm)
	}
	return doc
}

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports transcripts to JSON. Options do not filter the
// output.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a transcript to indented JSON.
func (e *JSONExporter) Export(t *storage.Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(newDocument(t)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

// =============================================================================
// YAML EXPORTER
// =============================================================================

// YAMLExporter exports the same document as JSONExporter in YAML.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &YAMLExporter{options: opts}
}

// Export converts a transcript to YAML.
func (e *YAMLExporter) Export(t *storage.Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(newDocument(t)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
