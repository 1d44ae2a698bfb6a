// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TERMINAL DETECTION
// =============================================================================

const (
	// DefaultTerminalWidth is assumed when the size cannot be determined.
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the floor for wrapped output.
	MinTerminalWidth = 40
)

// IsStdoutTTY reports whether stdout is attached to a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsStdinTTY reports whether stdin is attached to a terminal.
func IsStdinTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStderrTTY reports whether stderr is attached to a terminal.
func IsStderrTTY() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// GetTerminalWidth returns the stdout width, clamped to MinTerminalWidth,
// or DefaultTerminalWidth when stdout is not a terminal.
func GetTerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return DefaultTerminalWidth
	}
	if w < MinTerminalWidth {
		return MinTerminalWidth
	}
	return w
}

// CanPrompt reports whether interactive prompting is possible: both stdin
// and stdout must be terminals.
func CanPrompt() bool {
	return IsStdinTTY() && IsStdoutTTY()
}

// =============================================================================
// COLOUR SUPPORT
// =============================================================================

var (
	colorsOnce    sync.Once
	colorsEnabled bool
)

// ColorsEnabled reports whether ANSI colour should be emitted. NO_COLOR
// disables, FORCE_COLOR enables, otherwise colour follows stdout being a
// terminal. The answer is computed once per process.
func ColorsEnabled() bool {
	colorsOnce.Do(func() {
		switch {
		case os.Getenv("NO_COLOR") != "":
			colorsEnabled = false
		case os.Getenv("FORCE_COLOR") != "":
			colorsEnabled = true
		default:
			colorsEnabled = IsStdoutTTY()
		}
	})
	return colorsEnabled
}

// GetColorProfile returns the termenv profile for lipgloss rendering:
// Ascii when colour is off, otherwise whatever the terminal advertises.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}
