// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Fixed component heights. The viewport gets whatever remains.
const composerHeight = 3

// =============================================================================
// MAIN VIEW
// =============================================================================

// View renders the full frame: header, transcript (with the artifact panel
// beside it when open), composer, and status bar.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	main := m.viewport.View()
	if m.ui.SidebarOpen {
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, m.panelView())
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.headerView(),
		main,
		m.composer.View(),
		m.statusView(),
	)
}

// headerView renders the one-line title bar.
func (m Model) headerView() string {
	title := m.convTitle
	if title == "" {
		title = "new conversation"
	}
	left := "forgechat · " + title

	modelName := ""
	if m.opts.Config != nil {
		modelName = m.opts.Config.ModelFor(m.opts.Provider)
	}
	right := string(m.opts.Provider)
	if modelName != "" {
		right += " · " + modelName
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		// Narrow terminal: drop the provider segment before the title.
		right = ""
		gap = m.width - lipgloss.Width(left) - 2
		if gap < 0 {
			gap = 0
		}
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// statusView renders the bottom bar: a transient status when one is set,
// the streaming indicator while a reply is in flight, key help otherwise.
// Everything except expanded help stays one line so the layout holds.
func (m Model) statusView() string {
	if m.help.ShowAll {
		return m.theme.StatusBar.Width(m.width).Render(m.help.View(m.keys))
	}

	var line string
	switch {
	case m.statusErr:
		line = m.theme.ErrorText.Render(m.status)
	case m.status != "":
		line = m.status
	case m.state == StateStreaming:
		line = m.spinner.View() + " waiting for " + string(m.opts.Provider) + "  (esc stops)"
	default:
		line = m.help.View(m.keys)
	}
	return m.theme.StatusBar.Width(m.width).Render(line)
}

// =============================================================================
// GEOMETRY
// =============================================================================

// layout sizes the viewport and composer for the current dimensions. Wrap
// caches are dropped when the transcript width actually changed.
func (m *Model) layout() {
	if !m.ready {
		return
	}

	statusH := lipgloss.Height(m.statusView())
	vpH := m.height - 1 - composerHeight - statusH
	if vpH < 3 {
		vpH = 3
	}

	tw := m.transcriptWidth()
	if tw != m.viewport.Width || m.md == nil {
		m.mdCache = make(map[string]string)
		m.hlCache = make(map[string]string)
		m.md = newMarkdownRenderer(m.wrapWidthFor(tw), m.themeName())
	}

	m.viewport.Width = tw
	m.viewport.Height = vpH
	m.composer.SetWidth(m.width)
	m.help.Width = m.width
}

// transcriptWidth is the viewport's share of the terminal.
func (m Model) transcriptWidth() int {
	if m.ui.SidebarOpen {
		return m.width - m.panelWidth()
	}
	return m.width
}

// panelWidth sizes the artifact sidebar: two fifths of the terminal,
// clamped so both regions stay usable.
func (m Model) panelWidth() int {
	w := m.width * 2 / 5
	if w > 64 {
		w = 64
	}
	if w < 30 {
		w = 30
	}
	if w > m.width/2 {
		w = m.width / 2
	}
	return w
}

// wrapWidth is the text wrap width inside the transcript.
func (m Model) wrapWidth() int {
	return m.wrapWidthFor(m.viewport.Width)
}

func (m Model) wrapWidthFor(vpWidth int) int {
	w := vpWidth - 2
	if w < 10 {
		w = 10
	}
	return w
}

// emptyState fills the viewport before the first message.
func (m Model) emptyState() string {
	body := lipgloss.JoinVertical(
		lipgloss.Center,
		m.theme.HeaderTitle.Render("forgechat"),
		"",
		m.theme.Timestamp.Render("Type a message and press enter to send."),
		m.theme.Timestamp.Render("alt+enter adds a newline · ctrl+g shows every key."),
	)
	return lipgloss.Place(m.viewport.Width, m.viewport.Height, lipgloss.Center, lipgloss.Center, body)
}
