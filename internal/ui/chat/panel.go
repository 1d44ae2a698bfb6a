// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/ui/styles"
)

// panelListRows caps how many artifact rows show before the list windows
// around the selection.
const panelListRows = 6

// =============================================================================
// ARTIFACT PANEL
// =============================================================================

// panelView renders the artifact sidebar: the conversation's artifacts with
// the selection marked, then a syntax-highlighted preview of the selected
// one.
func (m Model) panelView() string {
	pw := m.panelWidth()
	innerH := m.viewport.Height - 2
	innerW := pw - 4
	if innerW < 8 {
		innerW = 8
	}

	border := m.theme.PanelBorder
	if m.focus == FocusPanel {
		border = m.theme.PanelBorderFocused
	}
	frame := border.Width(pw - 2).Height(innerH).Padding(0, 1)

	if len(m.arts) == 0 {
		return frame.Render(m.theme.PanelMeta.Render("no artifacts"))
	}

	var b strings.Builder
	b.WriteString(m.theme.PanelTitle.Render(fmt.Sprintf("Artifacts (%d)", len(m.arts))))
	b.WriteString("\n\n")

	// Window the list around the selection when it overflows.
	start := 0
	if len(m.arts) > panelListRows {
		start = m.panelIdx - panelListRows/2
		if start < 0 {
			start = 0
		}
		if start > len(m.arts)-panelListRows {
			start = len(m.arts) - panelListRows
		}
	}
	end := start + panelListRows
	if end > len(m.arts) {
		end = len(m.arts)
	}

	shown := 0
	for i := start; i < end; i++ {
		title := runewidth.Truncate(m.arts[i].DisplayTitle(), innerW-2, "…")
		if i == m.panelIdx {
			b.WriteString(m.theme.PanelItemSelected.Render("> " + title))
		} else {
			b.WriteString(m.theme.PanelItem.Render("  " + title))
		}
		b.WriteString("\n")
		shown++
	}
	overflow := 0
	if hidden := len(m.arts) - shown; hidden > 0 {
		b.WriteString(m.theme.PanelMeta.Render(fmt.Sprintf("  …%d more", hidden)))
		b.WriteString("\n")
		overflow = 1
	}

	sel := m.arts[m.panelIdx]
	used := 2 + shown + overflow

	// Blank line, meta line, divider, then as much preview as fits.
	previewH := innerH - used - 3
	if previewH > 0 {
		meta := fmt.Sprintf("%s · %d bytes", sel.Type, len(sel.Content))
		b.WriteString("\n")
		b.WriteString(m.theme.PanelMeta.Render(runewidth.Truncate(meta, innerW, "…")))
		if !sel.IsComplete {
			b.WriteString(" ")
			b.WriteString(m.theme.PanelPartial.Render("~"))
		}
		b.WriteString("\n")
		b.WriteString(m.theme.PanelMeta.Render(strings.Repeat("─", innerW)))
		b.WriteString("\n")

		clip := lipgloss.NewStyle().MaxWidth(innerW)
		for _, line := range m.previewLines(sel, previewH) {
			b.WriteString(clip.Render(line))
			b.WriteString("\n")
		}
	}

	return frame.Render(strings.TrimRight(b.String(), "\n"))
}

// previewLines returns up to limit highlighted lines of the artifact.
func (m Model) previewLines(a *model.Artifact, limit int) []string {
	if limit <= 0 {
		return nil
	}
	lines := strings.Split(m.highlightArtifact(a), "\n")
	if len(lines) > limit {
		lines = lines[:limit]
	}
	return lines
}

// highlightArtifact runs the artifact through chroma, memoised once the
// artifact is sealed. Streaming artifacts re-highlight every repaint, which
// the refresh tick already caps.
func (m Model) highlightArtifact(a *model.Artifact) string {
	if a.IsComplete {
		if out, ok := m.hlCache[a.ID]; ok {
			return out
		}
	}
	out := highlightCode(a.Content, languageFor(a), styles.ChromaStyle(m.themeName()))
	if a.IsComplete {
		m.hlCache[a.ID] = out
	}
	return out
}

// languageFor picks the lexer hint: explicit metadata first, then the
// artifact type.
func languageFor(a *model.Artifact) string {
	if lang := a.Language(); lang != "" {
		return lang
	}
	switch a.Type {
	case model.ArtifactHTML:
		return "html"
	case model.ArtifactJSON:
		return "json"
	case model.ArtifactMarkdown:
		return "markdown"
	default:
		return ""
	}
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// highlightCode colorizes code for the terminal. Unhighlightable input
// comes back unchanged.
func highlightCode(code, language, styleName string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}
