// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/forgechat/internal/store"
)

// =============================================================================
// PROGRAM MESSAGES
// =============================================================================

// StoreEventMsg forwards one store event into the program loop. The bridge
// in Run sends these from whatever goroutine mutated the store.
type StoreEventMsg struct {
	Event store.Event
}

// RefreshTickMsg drives a coalesced repaint. Store events mark state dirty
// and schedule one tick; the tick rebuilds the views exactly once however
// many events arrived in the window.
type RefreshTickMsg struct {
	Time time.Time
}

// SendFinishedMsg reports that a streaming exchange ended, successfully or
// not. The identity names the assistant message the exchange was filling.
type SendFinishedMsg struct {
	ConversationID string
	MessageID      string
	Err            error
}

// IndexSyncedMsg reports a background search-index refresh.
type IndexSyncedMsg struct {
	Err error
}

// statusExpiredMsg clears the transient status line. The generation lets a
// newer status outlive an older one's expiry.
type statusExpiredMsg struct {
	gen int
}

// refreshInterval caps repaints during streaming at roughly 30fps.
const refreshInterval = 33 * time.Millisecond

// statusLifetime is how long a transient status line stays visible.
const statusLifetime = 4 * time.Second

// refreshTickCmd schedules the next coalesced repaint.
func refreshTickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return RefreshTickMsg{Time: t}
	})
}

// statusExpiryCmd schedules generation gen of the status line to clear.
func statusExpiryCmd(gen int) tea.Cmd {
	return tea.Tick(statusLifetime, func(time.Time) tea.Msg {
		return statusExpiredMsg{gen: gen}
	})
}
