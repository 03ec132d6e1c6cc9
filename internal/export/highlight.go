// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// codeFormatter writes inline styles so the exported page stays standalone.
var codeFormatter = chromahtml.New(
	chromahtml.WithClasses(false),
	chromahtml.PreventSurroundingPre(true),
)

// highlightCode highlights an escaped code block for the page theme. It
// reports false when the block should be left as it is: unknown language,
// or markup (a cited span) already inside the block.
func highlightCode(escaped, language, theme string) (string, bool) {
	if strings.Contains(escaped, "<") {
		return "", false
	}
	code := html.UnescapeString(escaped)

	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		return "", false
	}
	lexer = chroma.Coalesce(lexer)

	styleName := "monokai"
	if theme == "light" {
		styleName = "github"
	}
	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", false
	}
	var sb strings.Builder
	if err := codeFormatter.Format(&sb, style, iterator); err != nil {
		return "", false
	}
	return sb.String(), true
}
