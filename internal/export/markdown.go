// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown. Cited spans get a
// footnote reference; the footnotes follow the message that cites them.
type MarkdownExporter struct {
	options *Options
	now     func() time.Time
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts, now: time.Now}
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t *storage.Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	var sb strings.Builder
	name := title(t)

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(name))
		if !t.ChatID.IsZero() {
			fmt.Fprintf(&sb, "chat_id: %s\n", escapeYAML(t.ChatID.String()))
		}
		fmt.Fprintf(&sb, "date: %s\n", t.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "updated: %s\n", t.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", e.now().Format(time.RFC3339))
		sb.WriteString("generator: calliope\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(name))

	// Footnote numbers run across the whole document.
	footnote := 0
	for i, msg := range t.Messages {
		label := roleLabel(msg.Role)
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		if msg.QuotedText != "" {
			for _, line := range strings.Split(msg.QuotedText, "\n") {
				fmt.Fprintf(&sb, "> %s\n", line)
			}
			sb.WriteString("\n")
		}
		if len(msg.Attachments) > 0 {
			fmt.Fprintf(&sb, "*Attachments: %s*\n\n", strings.Join(msg.Attachments, ", "))
		}

		body, notes := e.renderSegments(msg, &footnote)
		sb.WriteString(strings.TrimSpace(body))
		sb.WriteString("\n\n")

		if msg.Notice != "" {
			fmt.Fprintf(&sb, "*%s*\n\n", msg.Notice)
		}
		if len(notes) > 0 {
			sb.WriteString(strings.Join(notes, "\n"))
			sb.WriteString("\n\n")
		}

		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from calliope on %s*\n", e.now().Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// renderSegments writes a message body and returns the footnote definitions
// for its cited spans.
func (e *MarkdownExporter) renderSegments(msg storage.Message, counter *int) (string, []string) {
	if msg.Role != "assistant" {
		return msg.Content, nil
	}

	var (
		sb    strings.Builder
		notes []string
	)
	for _, seg := range msg.Segments() {
		if seg.Kind != citation.Cited {
			sb.WriteString(seg.Text)
			continue
		}
		*counter++
		src, label := sourceLabel(msg.Sources, seg.SourceID)
		fmt.Fprintf(&sb, "%s[^%d]", seg.Text, *counter)
		if src.URL != "" && src.URL != label {
			notes = append(notes, fmt.Sprintf("[^%d]: %s <%s>", *counter, label, src.URL))
		} else {
			notes = append(notes, fmt.Sprintf("[^%d]: %s", *counter, label))
		}
	}
	return sb.String(), notes
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func roleLabel(role string) string {
	switch role {
	case "user":
		return "[User]"
	case "assistant":
		return "[Assistant]"
	case "":
		return "Unknown"
	default:
		runes := []rune(role)
		return strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
}

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("#", `\#`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}

// escapeYAML quotes frontmatter values containing special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
		return `"` + r.Replace(s) + `"`
	}
	return s
}
