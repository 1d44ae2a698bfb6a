// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/forgechat/internal/ui/styles"
)

func init() {
	// Resolve the colour profile before any style renders so NO_COLOR and
	// piped output degrade to plain text.
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// OUTPUT STYLES
// =============================================================================

var (
	// TitleStyle renders section titles.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Purple)

	// LabelStyle renders field labels in status output.
	LabelStyle = lipgloss.NewStyle().Foreground(styles.TextSecondary)

	// ValueStyle renders field values in status output.
	ValueStyle = lipgloss.NewStyle().Foreground(styles.TextPrimary)

	// SuccessStyle renders confirmation lines.
	SuccessStyle = lipgloss.NewStyle().Foreground(styles.Emerald)

	// ErrorStyle renders error lines.
	ErrorStyle = lipgloss.NewStyle().Foreground(styles.Rose)

	// WarningStyle renders warnings.
	WarningStyle = lipgloss.NewStyle().Foreground(styles.Amber)

	// DimStyle renders secondary detail.
	DimStyle = lipgloss.NewStyle().Foreground(styles.TextMuted)

	// HighlightStyle renders matched search terms and other emphasis.
	HighlightStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)
)

// REPL styles.
var (
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)
	welcomeStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Purple)
	infoStyle    = lipgloss.NewStyle().Foreground(styles.TextMuted)
	commandStyle = lipgloss.NewStyle().Foreground(styles.Cyan)
	warnStyle    = lipgloss.NewStyle().Foreground(styles.Amber)
)

// RenderLabel formats a "label: value" pair for status output.
func RenderLabel(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value)
}
