// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat implements the full-screen chat surface of the forgechat TUI.

The package is a Bubble Tea program over the shared conversation store.
It never owns chat state: keystrokes translate into store operations and
transport sends, and every repaint re-reads the store. Streaming replies
arrive as store events forwarded into the program loop, coalesced to a
capped frame rate so token bursts never outrun the terminal.

# Layout

	header      conversation title, provider, model
	transcript  viewport of glamour-rendered messages
	panel       optional artifact side panel with highlighted preview
	composer    textarea; Enter sends, Alt+Enter inserts a newline
	status bar  state, artifact count, key hints

# Key bindings

	Enter       send the composed message
	Alt+Enter   newline in the composer
	Ctrl+A      toggle the artifact panel
	Tab         move focus between composer and panel
	Up/Down     select an artifact while the panel has focus
	Ctrl+Y      insert an [artifact:<id>] reference for the selection
	Ctrl+N      start a new conversation
	Esc         cancel a streaming reply, else close the panel
	Ctrl+Q      quit

# Usage

	err := chat.Run(chat.Options{
		Store:        st,
		Sender:       adapter,
		Provider:     provider.Anthropic,
		Config:       cfg,
		BuildRequest: wb.BuildRequest,
	})
*/
package chat
