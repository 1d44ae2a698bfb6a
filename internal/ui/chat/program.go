// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/forgechat/internal/store"
)

// eventBuffer sizes the store-to-program bridge. Store listeners run on the
// mutating goroutine, which during an exchange is the update loop itself;
// the buffer plus a forwarder goroutine keeps that path non-blocking.
const eventBuffer = 256

// Run starts the chat TUI over opts and blocks until the user quits.
func Run(opts Options) error {
	if opts.Store == nil || opts.Sender == nil || opts.BuildRequest == nil {
		return errors.New("chat: Store, Sender, and BuildRequest are required")
	}

	// The transcript needs a conversation before the first key press.
	if opts.Store.ActiveConversationID() == "" {
		conv := opts.Store.AddConversation("", "")
		opts.Store.SetActiveConversation(conv.ID)
	}

	p := tea.NewProgram(New(opts), tea.WithAltScreen())

	// Bridge store mutations into the program loop. Events are dirty hints,
	// not payloads, so dropping one under burst is harmless: the repaint
	// tick reads current store state either way. The events channel is
	// never closed; a listener call may still be in flight after
	// unsubscribe returns.
	events := make(chan store.Event, eventBuffer)
	unsubscribe := opts.Store.Subscribe(func(ev store.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	quit := make(chan struct{})
	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		for {
			select {
			case ev := <-events:
				p.Send(StoreEventMsg{Event: ev})
			case <-quit:
				return
			}
		}
	}()

	_, err := p.Run()

	unsubscribe()
	close(quit)
	<-forwarderDone
	return err
}
