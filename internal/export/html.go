// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/calliope-tui/internal/citation"
	"github.com/jeranaias/calliope-tui/internal/storage"
)

var (
	codeBlockRegex  = regexp.MustCompile("```([a-zA-Z0-9_+-]*)\n([\\s\\S]*?)```")
	inlineCodeRegex = regexp.MustCompile("`([^`\n]+)`")
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports transcripts to a standalone HTML page.
type HTMLExporter struct {
	options *Options
	now     func() time.Time
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts, now: time.Now}
}

// Export converts a transcript to HTML.
func (e *HTMLExporter) Export(t *storage.Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}
	name := html.EscapeString(title(t))

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", name)
	sb.WriteString("    <meta name=\"generator\" content=\"calliope\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", t.CreatedAt.Format(time.RFC3339))
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(t, name))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range t.Messages {
		sb.WriteString(e.renderMessage(msg))
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "            <p>Exported from <strong>calliope</strong> on %s</p>\n",
		e.now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("        </footer>\n    </div>\n")
	sb.WriteString(script)
	sb.WriteString("</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING
// =============================================================================

func (e *HTMLExporter) renderHeader(t *storage.Transcript, name string) string {
	var sb strings.Builder
	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(&sb, "            <h1>%s</h1>\n", name)
	sb.WriteString("            <div class=\"metadata\">\n")
	if !t.ChatID.IsZero() {
		fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Chat:</strong> %s</span>\n", html.EscapeString(t.ChatID.String()))
	}
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(t.CreatedAt))
	fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(t.Messages))
	sb.WriteString("                <button class=\"theme-toggle\" onclick=\"toggleTheme()\" title=\"Toggle theme\">[Theme]</button>\n")
	sb.WriteString("            </div>\n        </header>\n")
	return sb.String()
}

func (e *HTMLExporter) renderMessage(msg storage.Message) string {
	var sb strings.Builder

	role := strings.ToLower(msg.Role)
	fmt.Fprintf(&sb, "            <div class=\"message %s-message\">\n", html.EscapeString(role))
	sb.WriteString("                <div class=\"message-header\">\n")
	fmt.Fprintf(&sb, "                    <span class=\"role-label\">%s</span>\n", html.EscapeString(roleLabel(msg.Role)))
	if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
		fmt.Fprintf(&sb, "                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Timestamp))
	}
	sb.WriteString("                </div>\n")

	if msg.QuotedText != "" {
		fmt.Fprintf(&sb, "                <blockquote class=\"quote\">%s</blockquote>\n", html.EscapeString(msg.QuotedText))
	}
	if len(msg.Attachments) > 0 {
		fmt.Fprintf(&sb, "                <div class=\"attachments\">Attachments: %s</div>\n",
			html.EscapeString(strings.Join(msg.Attachments, ", ")))
	}

	sb.WriteString("                <div class=\"message-content\">\n")
	sb.WriteString(formatContent(e.renderSegments(msg), e.options.Theme))
	sb.WriteString("\n                </div>\n")

	if msg.Notice != "" {
		class := "notice"
		if msg.Outcome == "server_error" || msg.Outcome == "failed" {
			class = "notice error"
		}
		fmt.Fprintf(&sb, "                <div class=\"%s\">%s</div>\n", class, html.EscapeString(msg.Notice))
	}

	sb.WriteString("            </div>\n")
	return sb.String()
}

// renderSegments escapes the message and wraps cited spans. User text is
// never parsed for markers.
func (e *HTMLExporter) renderSegments(msg storage.Message) string {
	if msg.Role != "assistant" {
		return html.EscapeString(msg.Content)
	}

	var sb strings.Builder
	for _, seg := range msg.Segments() {
		text := html.EscapeString(seg.Text)
		if seg.Kind != citation.Cited {
			sb.WriteString(text)
			continue
		}
		src, label := sourceLabel(msg.Sources, seg.SourceID)
		fmt.Fprintf(&sb, "<span class=\"cited\" data-source=\"%s\" title=\"%s\">%s</span>",
			html.EscapeString(seg.SourceID), html.EscapeString(label), text)
		if src.URL != "" {
			fmt.Fprintf(&sb, "<sup><a href=\"%s\" rel=\"noopener\">[%s]</a></sup>",
				html.EscapeString(src.URL), html.EscapeString(seg.SourceID))
		}
	}
	return sb.String()
}

// formatContent turns escaped text into paragraphs and code blocks. Code
// blocks are highlighted for theme.
func formatContent(escaped, theme string) string {
	content := codeBlockRegex.ReplaceAllStringFunc(escaped, func(match string) string {
		parts := codeBlockRegex.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		langLabel := ""
		if parts[1] != "" {
			langLabel = fmt.Sprintf("<div class=\"code-lang\">%s</div>", parts[1])
		}
		code := strings.TrimSpace(parts[2])
		if highlighted, ok := highlightCode(code, parts[1], theme); ok {
			code = highlighted
		}
		code = strings.ReplaceAll(code, "\n", "&#10;")
		return fmt.Sprintf("<div class=\"code-block\">%s<pre><code class=\"language-%s\">%s</code></pre></div>",
			langLabel, parts[1], code)
	})
	content = inlineCodeRegex.ReplaceAllString(content, "<code class=\"inline-code\">$1</code>")

	var out []string
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		switch {
		case para == "":
		case strings.HasPrefix(para, "<div class=\"code-block\">"):
			out = append(out, para)
		default:
			out = append(out, "<p>"+strings.ReplaceAll(para, "\n", "<br>")+"</p>")
		}
	}
	return strings.Join(out, "\n")
}

// =============================================================================
// EMBEDDED CSS AND SCRIPT
// =============================================================================

const css = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
            --font-mono: "SF Mono", Monaco, "Fira Code", monospace;
        }
        .dark-theme {
            --bg-primary: #1a1b26; --bg-secondary: #24283b; --bg-tertiary: #414868;
            --text-primary: #c0caf5; --text-muted: #565f89; --border-color: #414868;
            --user-bg: #1f2335; --assistant-bg: #24283b; --code-bg: #1a1b26;
            --accent: #7aa2f7; --cited-bg: rgba(122, 162, 247, 0.15);
            --notice: #e0af68; --error: #f7768e;
        }
        .light-theme {
            --bg-primary: #f6f8fa; --bg-secondary: #ffffff; --bg-tertiary: #eaeef2;
            --text-primary: #24292f; --text-muted: #6e7781; --border-color: #d0d7de;
            --user-bg: #f6f8fa; --assistant-bg: #ffffff; --code-bg: #f6f8fa;
            --accent: #0969da; --cited-bg: rgba(9, 105, 218, 0.1);
            --notice: #9a6700; --error: #cf222e;
        }
        body { font-family: var(--font-sans); line-height: 1.6; color: var(--text-primary); background: var(--bg-primary); padding: 20px; }
        .container { max-width: 900px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
        .header { padding: 32px; background: var(--bg-tertiary); border-bottom: 2px solid var(--border-color); }
        .header h1 { font-size: 28px; margin-bottom: 16px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; align-items: center; }
        .theme-toggle { margin-left: auto; padding: 4px 12px; border: 1px solid var(--border-color); border-radius: 6px; background: transparent; color: inherit; cursor: pointer; }
        .conversation { padding: 24px 32px; }
        .message { margin-bottom: 20px; padding: 20px; border-radius: 8px; border: 1px solid var(--border-color); }
        .user-message { background: var(--user-bg); }
        .assistant-message { background: var(--assistant-bg); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 12px; font-weight: 600; }
        .timestamp { color: var(--text-muted); font-size: 13px; font-weight: 400; }
        .message-content p { margin-bottom: 12px; }
        .quote { border-left: 3px solid var(--accent); padding-left: 12px; margin-bottom: 12px; color: var(--text-muted); }
        .attachments { font-size: 13px; color: var(--text-muted); margin-bottom: 8px; }
        .cited { background: var(--cited-bg); border-bottom: 1px dotted var(--accent); cursor: help; }
        sup a { color: var(--accent); text-decoration: none; font-size: 11px; }
        .notice { margin-top: 8px; font-style: italic; color: var(--notice); }
        .notice.error { color: var(--error); }
        .code-block { margin: 12px 0; background: var(--code-bg); border-radius: 6px; overflow-x: auto; }
        .code-lang { padding: 4px 12px; font-size: 12px; color: var(--text-muted); border-bottom: 1px solid var(--border-color); }
        .code-block pre { padding: 12px; white-space: pre; }
        code { font-family: var(--font-mono); font-size: 14px; }
        .inline-code { padding: 2px 6px; background: var(--code-bg); border-radius: 4px; }
        .footer { padding: 16px 32px; font-size: 13px; color: var(--text-muted); border-top: 1px solid var(--border-color); }
        @media print { .theme-toggle { display: none; } .message { page-break-inside: avoid; } }
    </style>
`

const script = `    <script>
        function toggleTheme() {
            const body = document.body;
            const next = body.classList.contains('dark-theme') ? 'light' : 'dark';
            body.classList.remove('dark-theme', 'light-theme');
            body.classList.add(next + '-theme');
            localStorage.setItem('theme', next);
        }
        document.addEventListener('DOMContentLoaded', function() {
            const saved = localStorage.getItem('theme');
            if (saved) {
                document.body.classList.remove('dark-theme', 'light-theme');
                document.body.classList.add(saved + '-theme');
            }
        });
    </script>
`
