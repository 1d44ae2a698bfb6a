// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// THEME SELECTION
// =============================================================================

// Apply pins the light/dark palette choice. "auto" keeps the terminal
// background detection lipgloss performs on its own; unknown names are
// treated as auto.
func Apply(theme string) {
	switch theme {
	case "dark":
		lipgloss.SetHasDarkBackground(true)
	case "light":
		lipgloss.SetHasDarkBackground(false)
	}
}

// GlamourStyle maps a theme name onto the glamour standard style to render
// markdown with.
func GlamourStyle(theme string) string {
	switch theme {
	case "dark":
		return "dark"
	case "light":
		return "light"
	default:
		return "auto"
	}
}

// ChromaStyle maps a theme name onto the chroma style used for artifact
// highlighting.
func ChromaStyle(theme string) string {
	if effectiveDark(theme) {
		return "catppuccin-mocha"
	}
	return "catppuccin-latte"
}

func effectiveDark(theme string) bool {
	switch theme {
	case "dark":
		return true
	case "light":
		return false
	default:
		return lipgloss.HasDarkBackground()
	}
}

// =============================================================================
// THEME
// =============================================================================

// Theme holds the styled components the chat workbench renders with. Build
// one with New and refresh dimensions through Resize.
type Theme struct {
	ColorProfile termenv.Profile

	Width  int
	Height int

	// Header and status line.
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	StatusBar   lipgloss.Style
	StatusKey   lipgloss.Style
	StatusDesc  lipgloss.Style

	// Message list.
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	Timestamp      lipgloss.Style
	MessageBody    lipgloss.Style
	StreamCursor   lipgloss.Style
	ErrorText      lipgloss.Style

	// Composer.
	InputPrompt lipgloss.Style
	InputText   lipgloss.Style

	// Artifact panel.
	PanelBorder        lipgloss.Style
	PanelBorderFocused lipgloss.Style
	PanelTitle         lipgloss.Style
	PanelItem          lipgloss.Style
	PanelItemSelected  lipgloss.Style
	PanelMeta          lipgloss.Style
	PanelPartial       lipgloss.Style

	Spinner lipgloss.Style
}

// New builds a theme for the given terminal dimensions.
func New(width, height int) *Theme {
	t := &Theme{
		ColorProfile: termenv.ColorProfile(),

		Header: lipgloss.NewStyle().
			Background(SurfaceDim).
			Foreground(TextSecondary).
			Padding(0, 1),
		HeaderTitle: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true),
		StatusBar: lipgloss.NewStyle().
			Background(SurfaceDim).
			Foreground(TextMuted).
			Padding(0, 1),
		StatusKey: lipgloss.NewStyle().
			Foreground(Cyan),
		StatusDesc: lipgloss.NewStyle().
			Foreground(TextMuted),

		UserLabel: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true),
		AssistantLabel: lipgloss.NewStyle().
			Foreground(Purple).
			Bold(true),
		SystemLabel: lipgloss.NewStyle().
			Foreground(Amber).
			Bold(true),
		Timestamp: lipgloss.NewStyle().
			Foreground(TextMuted),
		MessageBody: lipgloss.NewStyle().
			Foreground(TextPrimary),
		StreamCursor: lipgloss.NewStyle().
			Foreground(Amber),
		ErrorText: lipgloss.NewStyle().
			Foreground(Rose),

		InputPrompt: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true),
		InputText: lipgloss.NewStyle().
			Foreground(TextPrimary),

		PanelBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(OverlayDim),
		PanelBorderFocused: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Cyan),
		PanelTitle: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true),
		PanelItem: lipgloss.NewStyle().
			Foreground(TextSecondary),
		PanelItemSelected: lipgloss.NewStyle().
			Foreground(TextInverse).
			Background(Cyan),
		PanelMeta: lipgloss.NewStyle().
			Foreground(TextMuted),
		PanelPartial: lipgloss.NewStyle().
			Foreground(Amber),

		Spinner: lipgloss.NewStyle().
			Foreground(Purple),
	}
	t.Resize(width, height)
	return t
}

// Resize records new terminal dimensions.
func (t *Theme) Resize(width, height int) {
	t.Width = width
	t.Height = height
}
