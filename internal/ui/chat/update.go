// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/provider"
	"github.com/jeranaias/forgechat/internal/store"
)

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// sendCmd runs one exchange off the update loop. The reply lands in the
// store as it streams; the returned message only reports completion.
func sendCmd(opts Options, guard *streamGuard, req *provider.ChatRequest, convID, msgID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		guard.arm(cancel)
		defer cancel()

		err := opts.Sender.Send(ctx, opts.Provider, req, convID, msgID)
		return SendFinishedMsg{ConversationID: convID, MessageID: msgID, Err: err}
	}
}

// syncIndexCmd refreshes the search index in the background.
func syncIndexCmd(fn func() error) tea.Cmd {
	if fn == nil {
		return nil
	}
	return func() tea.Msg {
		return IndexSyncedMsg{Err: fn()}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StoreEventMsg:
		return m.handleStoreEvent(msg)

	case RefreshTickMsg:
		return m.handleRefreshTick()

	case SendFinishedMsg:
		return m.handleSendFinished(msg)

	case IndexSyncedMsg:
		if msg.Err != nil {
			return m, m.setStatus("search index: "+msg.Err.Error(), true)
		}
		return m, nil

	case statusExpiredMsg:
		if msg.gen == m.statusGen {
			m.status = ""
			m.statusErr = false
		}
		return m, nil

	case spinner.TickMsg:
		if m.state != StateStreaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// Cursor blinks and other component-internal messages.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// handleResize records new dimensions and rebuilds everything that wraps.
func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true
	m.theme.Resize(msg.Width, msg.Height)
	m.layout()
	m.refreshArtifacts()
	m.refreshTranscript()
	return m, nil
}

// =============================================================================
// KEY DISPATCH
// =============================================================================

// handleKey routes a key press: application chords first, then the focused
// region.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.guard.stop()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		return m.handleCancel()

	case key.Matches(msg, m.keys.TogglePanel):
		return m.togglePanel()

	case key.Matches(msg, m.keys.NewConv):
		return m.newConversation()

	case key.Matches(msg, m.keys.CycleFocus):
		return m.cycleFocus()

	case key.Matches(msg, m.keys.InsertRef):
		if m.ui.SidebarOpen && len(m.arts) > 0 {
			m.opts.Store.RequestReferenceInsert(m.arts[m.panelIdx].ID)
		}
		return m, nil
	}

	switch m.focus {
	case FocusPanel:
		return m.handlePanelKey(msg)

	case FocusTranscript:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	default:
		if key.Matches(msg, m.keys.Send) {
			return m.submit()
		}
		var cmd tea.Cmd
		m.composer, cmd = m.composer.Update(msg)
		return m, cmd
	}
}

// handleCancel stops a stream if one is running, otherwise closes the panel.
func (m Model) handleCancel() (tea.Model, tea.Cmd) {
	if m.state == StateStreaming {
		m.guard.stop()
		return m, m.setStatus("stopping...", false)
	}
	if m.ui.SidebarOpen {
		return m.togglePanel()
	}
	return m, nil
}

// handlePanelKey moves the artifact selection or inserts a reference.
func (m Model) handlePanelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.arts) == 0 {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.PrevItem):
		if m.panelIdx > 0 {
			m.panelIdx--
			m.opts.Store.OpenArtifactSidebar(m.arts[m.panelIdx].ID, m.convID)
		}
	case key.Matches(msg, m.keys.NextItem):
		if m.panelIdx < len(m.arts)-1 {
			m.panelIdx++
			m.opts.Store.OpenArtifactSidebar(m.arts[m.panelIdx].ID, m.convID)
		}
	case key.Matches(msg, m.keys.Send):
		m.opts.Store.RequestReferenceInsert(m.arts[m.panelIdx].ID)
	}
	return m, nil
}

// togglePanel opens or closes the artifact sidebar through the store, so
// the visibility survives into persistence-free UI state other surfaces see.
func (m Model) togglePanel() (tea.Model, tea.Cmd) {
	st := m.opts.Store
	if m.ui.SidebarOpen {
		st.CloseArtifactSidebar()
		if m.focus == FocusPanel {
			m.focus = FocusComposer
			return m, m.composer.Focus()
		}
		return m, nil
	}
	if len(m.arts) == 0 {
		return m, m.setStatus("no artifacts in this conversation", false)
	}
	if m.panelIdx >= len(m.arts) {
		m.panelIdx = len(m.arts) - 1
	}
	st.OpenArtifactSidebar(m.arts[m.panelIdx].ID, m.convID)
	m.focus = FocusPanel
	m.composer.Blur()
	return m, nil
}

// newConversation starts a fresh conversation and makes it active. An
// in-flight reply keeps streaming into the conversation it belongs to.
func (m Model) newConversation() (tea.Model, tea.Cmd) {
	st := m.opts.Store
	conv := st.AddConversation("", "")
	st.SetActiveConversation(conv.ID)
	m.convID = conv.ID
	m.panelIdx = 0
	if m.ui.SidebarOpen {
		st.CloseArtifactSidebar()
	}
	m.focus = FocusComposer
	m.refreshArtifacts()
	m.refreshTranscript()
	return m, tea.Batch(m.composer.Focus(), m.setStatus("started a new conversation", false))
}

// cycleFocus rotates composer -> transcript -> panel (when open).
func (m Model) cycleFocus() (tea.Model, tea.Cmd) {
	next := FocusComposer
	switch m.focus {
	case FocusComposer:
		next = FocusTranscript
	case FocusTranscript:
		if m.ui.SidebarOpen {
			next = FocusPanel
		}
	}
	m.focus = next
	if next == FocusComposer {
		return m, m.composer.Focus()
	}
	m.composer.Blur()
	return m, nil
}

// =============================================================================
// SUBMIT
// =============================================================================

// submit sends the composer text as a user message and starts the exchange.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.state == StateStreaming {
		return m, m.setStatus("a reply is still streaming; esc stops it", false)
	}
	text := strings.TrimSpace(m.composer.Value())
	if text == "" {
		return m, nil
	}

	st := m.opts.Store
	if _, ok := st.Conversation(m.convID); !ok {
		conv := st.AddConversation("", "")
		st.SetActiveConversation(conv.ID)
		m.convID = conv.ID
	}

	st.AppendMessage(m.convID, model.NewUserMessage(text))
	conv, ok := st.Conversation(m.convID)
	if !ok {
		return m, m.setStatus("conversation disappeared", true)
	}

	req, err := m.opts.BuildRequest(conv.Messages, true)
	if err != nil {
		return m, m.setStatus(err.Error(), true)
	}

	assistant := model.NewAssistantMessage()
	st.AppendMessage(m.convID, assistant)

	m.state = StateStreaming
	m.streamMsgID = assistant.ID
	m.composer.Reset()

	return m, tea.Batch(
		sendCmd(m.opts, m.guard, req, m.convID, assistant.ID),
		m.spinner.Tick,
	)
}

// handleSendFinished closes out the exchange lifecycle.
func (m Model) handleSendFinished(msg SendFinishedMsg) (tea.Model, tea.Cmd) {
	if msg.MessageID != m.streamMsgID {
		return m, nil
	}
	m.state = StateReady
	m.streamMsgID = ""
	m.guard.stop()
	// The finalize event may have repainted before the state flip; render
	// once more so the cursor and spinner leave the screen.
	m.refreshTranscript()

	var cmds []tea.Cmd
	switch {
	case msg.Err == nil:
	case errors.Is(msg.Err, context.Canceled):
		cmds = append(cmds, m.setStatus("generation stopped", false))
	default:
		cmds = append(cmds, m.setStatus(msg.Err.Error(), true))
	}
	if cmd := syncIndexCmd(m.opts.SyncIndex); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// =============================================================================
// STORE EVENT COALESCING
// =============================================================================

// handleStoreEvent marks the touched slice dirty and schedules one repaint
// tick. A streaming reply produces dozens of events per frame; the tick
// collapses them into at most one rebuild per interval.
func (m Model) handleStoreEvent(msg StoreEventMsg) (tea.Model, tea.Cmd) {
	switch msg.Event.Kind {
	case store.EventConversations:
		m.dirtyConvs = true
	case store.EventArtifacts:
		if msg.Event.ConversationID == m.convID {
			m.dirtyArts = true
		}
	case store.EventUI:
		m.dirtyUI = true
	}
	if !m.dirtyConvs && !m.dirtyArts && !m.dirtyUI {
		return m, nil
	}
	if m.refreshQueued {
		return m, nil
	}
	m.refreshQueued = true
	return m, refreshTickCmd()
}

// handleRefreshTick applies whatever became dirty since the last tick.
func (m Model) handleRefreshTick() (tea.Model, tea.Cmd) {
	m.refreshQueued = false

	var cmds []tea.Cmd
	repaint := false

	if m.dirtyConvs {
		m.dirtyConvs = false
		// The conversation on screen may have been deleted underneath us.
		if _, ok := m.opts.Store.Conversation(m.convID); !ok {
			m.convID = m.opts.Store.ActiveConversationID()
			m.panelIdx = 0
			m.refreshArtifacts()
		}
		repaint = true
	}
	if m.dirtyArts {
		m.dirtyArts = false
		m.refreshArtifacts()
	}
	if m.dirtyUI {
		m.dirtyUI = false
		if cmd := m.applyUISignals(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	if repaint {
		m.refreshTranscript()
	}
	return m, tea.Batch(cmds...)
}

// applyUISignals folds the store's transient UI state into the view:
// sidebar visibility, active artifact, and pending reference inserts.
func (m *Model) applyUISignals() tea.Cmd {
	prev := m.ui
	m.ui = m.opts.Store.UI()

	var cmds []tea.Cmd
	if ref := m.ui.ReferenceInsert; ref != nil {
		m.opts.Store.ClearReferenceInsertRequest()
		m.ui.ReferenceInsert = nil
		m.composer.InsertString("[artifact:" + ref.ArtifactID + "] ")
		m.focus = FocusComposer
		cmds = append(cmds, m.composer.Focus())
	}
	if m.ui.SidebarOpen != prev.SidebarOpen {
		m.layout()
		m.refreshTranscript()
	}
	if m.ui.SidebarOpen && m.ui.ActiveArtifactID != "" {
		for i, a := range m.arts {
			if a.ID == m.ui.ActiveArtifactID {
				m.panelIdx = i
				break
			}
		}
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// SMALL STATE HELPERS
// =============================================================================

// setStatus shows a transient status line and schedules its expiry.
func (m *Model) setStatus(text string, isErr bool) tea.Cmd {
	m.status = text
	m.statusErr = isErr
	m.statusGen++
	return statusExpiryCmd(m.statusGen)
}

// refreshArtifacts re-snapshots the conversation's artifacts and clamps the
// panel selection.
func (m *Model) refreshArtifacts() {
	if m.opts.Store == nil {
		return
	}
	m.arts = m.opts.Store.Artifacts(m.convID)
	if m.panelIdx >= len(m.arts) {
		m.panelIdx = len(m.arts) - 1
	}
	if m.panelIdx < 0 {
		m.panelIdx = 0
	}
}
