// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/provider"
	"github.com/jeranaias/forgechat/internal/store"
)

// =============================================================================
// FIXTURES
// =============================================================================

// fakeSender emulates the transport adapter: it lands text in the store
// under the given identities and reports a configured error.
type fakeSender struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
	st    *store.Store
}

func (f *fakeSender) Send(ctx context.Context, p provider.Provider, req *provider.ChatRequest, convID, msgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.st != nil && f.text != "" {
		f.st.UpdateMessage(convID, msgID, func(m *model.Message) {
			m.AppendText(f.text)
		})
	}
	f.st.UpdateMessage(convID, msgID, func(m *model.Message) {
		m.FinalizeStream()
	})
	return f.err
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testOptions(t *testing.T) (Options, *store.Store, *fakeSender) {
	t.Helper()

	st := store.New()
	st.AddConversation("conv-test", "")
	st.SetActiveConversation("conv-test")

	sender := &fakeSender{st: st}

	cfg := config.Default()
	cfg.UI.Theme = "dark"

	opts := Options{
		Store:    st,
		Sender:   sender,
		Provider: provider.Anthropic,
		Config:   cfg,
		BuildRequest: func(msgs []*model.Message, stream bool) (*provider.ChatRequest, error) {
			return &provider.ChatRequest{Stream: stream, Model: "test-model"}, nil
		},
	}
	return opts, st, sender
}

func seedArtifact(st *store.Store, convID, id, title, content string) {
	st.UpsertArtifactOpen(convID, id, model.ArtifactCode, map[string]string{
		model.MetaLanguage: "go",
		model.MetaTitle:    title,
	}, 0)
	st.AppendArtifactContent(convID, id, content)
	st.SealArtifact(convID, id)
}

func asModel(t *testing.T, tm tea.Model) Model {
	t.Helper()
	m, ok := tm.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want chat.Model", tm)
	}
	return m
}

// =============================================================================
// EVENT COALESCING
// =============================================================================

func TestStoreEventsCoalesceIntoOneTick(t *testing.T) {
	opts, _, _ := testOptions(t)
	m := New(opts)

	next, cmd := m.Update(StoreEventMsg{Event: store.Event{Kind: store.EventConversations, ConversationID: m.convID}})
	m = asModel(t, next)
	if cmd == nil {
		t.Fatal("first store event should schedule a refresh tick")
	}
	if !m.refreshQueued || !m.dirtyConvs {
		t.Error("first event should mark conversations dirty and queue a tick")
	}

	next, cmd = m.Update(StoreEventMsg{Event: store.Event{Kind: store.EventArtifacts, ConversationID: m.convID}})
	m = asModel(t, next)
	if cmd != nil {
		t.Error("second event while a tick is queued should not schedule another")
	}
	if !m.dirtyArts {
		t.Error("artifact event should mark artifacts dirty")
	}

	next, _ = m.Update(RefreshTickMsg{Time: time.Now()})
	m = asModel(t, next)
	if m.refreshQueued || m.dirtyConvs || m.dirtyArts {
		t.Error("refresh tick should apply and clear all dirty flags")
	}
}

func TestArtifactEventForOtherConversationIgnored(t *testing.T) {
	opts, _, _ := testOptions(t)
	m := New(opts)

	next, cmd := m.Update(StoreEventMsg{Event: store.Event{Kind: store.EventArtifacts, ConversationID: "conv-other"}})
	m = asModel(t, next)
	if cmd != nil {
		t.Error("artifact event for another conversation should not schedule a tick")
	}
	if m.dirtyArts {
		t.Error("artifact event for another conversation should not mark dirty")
	}
}

// =============================================================================
// SUBMIT AND EXCHANGE LIFECYCLE
// =============================================================================

func TestSubmitStartsExchange(t *testing.T) {
	opts, st, _ := testOptions(t)
	m := New(opts)
	m.composer.SetValue("hello there")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = asModel(t, next)

	if m.state != StateStreaming {
		t.Fatalf("state = %v, want StateStreaming", m.state)
	}
	if cmd == nil {
		t.Fatal("submit should return the send command")
	}
	if m.composer.Value() != "" {
		t.Error("composer should reset after submit")
	}

	conv, ok := st.Conversation("conv-test")
	if !ok {
		t.Fatal("conversation missing")
	}
	if conv.MessageCount() != 2 {
		t.Fatalf("MessageCount = %d, want user + assistant placeholder", conv.MessageCount())
	}
	if conv.Messages[0].Role != model.RoleUser || conv.Messages[0].Content.PlainText() != "hello there" {
		t.Errorf("first message = %v %q", conv.Messages[0].Role, conv.Messages[0].Content.PlainText())
	}
	if conv.Messages[1].Role != model.RoleAssistant {
		t.Errorf("second message role = %v, want assistant", conv.Messages[1].Role)
	}
	if m.streamMsgID != conv.Messages[1].ID {
		t.Error("streamMsgID should track the assistant placeholder")
	}
}

func TestSubmitRefusedWhileStreaming(t *testing.T) {
	opts, st, _ := testOptions(t)
	m := New(opts)
	m.state = StateStreaming
	m.composer.SetValue("second question")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = asModel(t, next)

	if m.status == "" {
		t.Error("refused submit should explain itself in the status line")
	}
	conv, _ := st.Conversation("conv-test")
	if conv.MessageCount() != 0 {
		t.Errorf("MessageCount = %d, want 0", conv.MessageCount())
	}
}

func TestSubmitEmptyComposerIsNoop(t *testing.T) {
	opts, st, _ := testOptions(t)
	m := New(opts)
	m.composer.SetValue("   \n  ")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = asModel(t, next)

	if m.state != StateReady || cmd != nil {
		t.Error("whitespace-only submit should do nothing")
	}
	conv, _ := st.Conversation("conv-test")
	if conv.MessageCount() != 0 {
		t.Errorf("MessageCount = %d, want 0", conv.MessageCount())
	}
}

func TestSendCmdLandsReplyAndReportsCompletion(t *testing.T) {
	opts, st, sender := testOptions(t)
	sender.text = "hi from the model"

	assistant := model.NewAssistantMessage()
	st.AppendMessage("conv-test", assistant)

	cmd := sendCmd(opts, newStreamGuard(), &provider.ChatRequest{Stream: true}, "conv-test", assistant.ID)
	msg := cmd()

	fin, ok := msg.(SendFinishedMsg)
	if !ok {
		t.Fatalf("cmd returned %T, want SendFinishedMsg", msg)
	}
	if fin.Err != nil {
		t.Fatalf("unexpected err: %v", fin.Err)
	}
	if fin.ConversationID != "conv-test" || fin.MessageID != assistant.ID {
		t.Errorf("identity = (%s, %s)", fin.ConversationID, fin.MessageID)
	}
	if sender.callCount() != 1 {
		t.Errorf("sender calls = %d, want 1", sender.callCount())
	}

	conv, _ := st.Conversation("conv-test")
	got := conv.MessageByID(assistant.ID)
	if got == nil {
		t.Fatal("assistant message missing from the conversation")
	}
	if got.DisplayText() != "hi from the model" {
		t.Errorf("reply text = %q", got.DisplayText())
	}
}

func TestSendFinishedResetsState(t *testing.T) {
	opts, _, _ := testOptions(t)
	m := New(opts)
	m.state = StateStreaming
	m.streamMsgID = "msg-1"

	next, _ := m.Update(SendFinishedMsg{ConversationID: m.convID, MessageID: "msg-1"})
	m = asModel(t, next)

	if m.state != StateReady || m.streamMsgID != "" {
		t.Error("completion should return the model to ready")
	}
	if m.status != "" {
		t.Errorf("clean completion should not set a status, got %q", m.status)
	}
}

func TestSendFinishedWithErrorSetsStatus(t *testing.T) {
	opts, _, _ := testOptions(t)
	m := New(opts)
	m.state = StateStreaming
	m.streamMsgID = "msg-1"

	next, _ := m.Update(SendFinishedMsg{ConversationID: m.convID, MessageID: "msg-1", Err: errors.New("proxy exploded")})
	m = asModel(t, next)

	if !m.statusErr || !strings.Contains(m.status, "proxy exploded") {
		t.Errorf("status = %q (err=%v), want the failure surfaced", m.status, m.statusErr)
	}
	if m.state != StateReady {
		t.Error("failed exchange should still return to ready")
	}
}

func TestSendFinishedCancellationIsQuiet(t *testing.T) {
	opts, _, _ := testOptions(t)
	m := New(opts)
	m.state = StateStreaming
	m.streamMsgID = "msg-1"

	next, _ := m.Update(SendFinishedMsg{ConversationID: m.convID, MessageID: "msg-1", Err: context.Canceled})
	m = asModel(t, next)

	if m.statusErr {
		t.Error("a cancelled exchange is not an error")
	}
	if m.status == "" {
		t.Error("cancellation should still be acknowledged")
	}
}

func TestStaleSendFinishedIgnored(t *testing.T) {
	opts, _, _ := testOptions(t)
	m := New(opts)
	m.state = StateStreaming
	m.streamMsgID = "msg-current"

	next, _ := m.Update(SendFinishedMsg{ConversationID: m.convID, MessageID: "msg-old"})
	m = asModel(t, next)

	if m.state != StateStreaming {
		t.Error("completion of an older exchange must not reset the current one")
	}
}

// =============================================================================
// PANEL AND REFERENCE INSERT
// =============================================================================

// syncUI simulates the store event round trip the program bridge performs.
func syncUI(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(StoreEventMsg{Event: store.Event{Kind: store.EventUI}})
	m = asModel(t, next)
	next, _ = m.Update(RefreshTickMsg{Time: time.Now()})
	return asModel(t, next)
}

func TestTogglePanelWithoutArtifacts(t *testing.T) {
	opts, st, _ := testOptions(t)
	m := New(opts)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlA})
	m = asModel(t, next)

	if st.UI().SidebarOpen {
		t.Error("panel should not open with nothing to show")
	}
	if m.status == "" {
		t.Error("expected a status explaining the refusal")
	}
}

func TestTogglePanelOpensAndCloses(t *testing.T) {
	opts, st, _ := testOptions(t)
	seedArtifact(st, "conv-test", "art-1", "main.go", "package main")
	m := New(opts)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlA})
	m = asModel(t, next)
	m = syncUI(t, m)

	ui := st.UI()
	if !ui.SidebarOpen || ui.ActiveArtifactID != "art-1" {
		t.Fatalf("ui after open = %+v", ui)
	}
	if m.focus != FocusPanel {
		t.Error("opening the panel should focus it")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlA})
	m = asModel(t, next)
	m = syncUI(t, m)

	if st.UI().SidebarOpen {
		t.Error("second toggle should close the panel")
	}
	if m.focus != FocusComposer {
		t.Error("closing the panel should return focus to the composer")
	}
}

func TestPanelSelectionMoves(t *testing.T) {
	opts, st, _ := testOptions(t)
	seedArtifact(st, "conv-test", "art-1", "one.go", "package one")
	seedArtifact(st, "conv-test", "art-2", "two.go", "package two")
	m := New(opts)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlA})
	m = asModel(t, next)
	m = syncUI(t, m)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = asModel(t, next)
	if m.panelIdx != 1 {
		t.Fatalf("panelIdx = %d, want 1", m.panelIdx)
	}
	if st.UI().ActiveArtifactID != "art-2" {
		t.Error("moving the selection should retarget the active artifact")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = asModel(t, next)
	if m.panelIdx != 1 {
		t.Error("selection should clamp at the last artifact")
	}
}

func TestReferenceInsertRoundTrip(t *testing.T) {
	opts, st, _ := testOptions(t)
	seedArtifact(st, "conv-test", "art-1", "main.go", "package main")
	m := New(opts)

	st.RequestReferenceInsert("art-1")
	m.dirtyUI = true
	next, _ := m.Update(RefreshTickMsg{Time: time.Now()})
	m = asModel(t, next)

	if got := m.composer.Value(); !strings.Contains(got, "[artifact:art-1] ") {
		t.Errorf("composer = %q, want the reference token inserted", got)
	}
	if st.UI().ReferenceInsert != nil {
		t.Error("the request should be consumed")
	}
	if m.focus != FocusComposer {
		t.Error("insertion should focus the composer")
	}
}

func TestInsertRefKeyRequestsReference(t *testing.T) {
	opts, st, _ := testOptions(t)
	seedArtifact(st, "conv-test", "art-1", "main.go", "package main")
	m := New(opts)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlA})
	m = asModel(t, next)
	m = syncUI(t, m)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	m = asModel(t, next)

	// The request lands in the store; the round trip consumes it.
	m = syncUI(t, m)
	if got := m.composer.Value(); !strings.Contains(got, "[artifact:art-1] ") {
		t.Errorf("composer = %q after ctrl+y round trip", got)
	}
}

// =============================================================================
// CONVERSATION LIFECYCLE
// =============================================================================

func TestNewConversationKey(t *testing.T) {
	opts, st, _ := testOptions(t)
	m := New(opts)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	m = asModel(t, next)

	if m.convID == "conv-test" {
		t.Fatal("ctrl+n should switch to a fresh conversation")
	}
	if st.ActiveConversationID() != m.convID {
		t.Error("the fresh conversation should become active in the store")
	}
}

func TestDeletedConversationFallsBackToActive(t *testing.T) {
	opts, st, _ := testOptions(t)
	m := New(opts)

	st.AddConversation("conv-second", "Second")
	st.SetActiveConversation("conv-second")
	st.DeleteConversation("conv-test")

	m.dirtyConvs = true
	next, _ := m.Update(RefreshTickMsg{Time: time.Now()})
	m = asModel(t, next)

	if m.convID != "conv-second" {
		t.Errorf("convID = %q, want fallback to the active conversation", m.convID)
	}
}

// =============================================================================
// STATUS LINE
// =============================================================================

func TestStatusExpiryHonoursGeneration(t *testing.T) {
	opts, _, _ := testOptions(t)
	m := New(opts)

	(&m).setStatus("first", false)
	staleGen := m.statusGen
	(&m).setStatus("second", false)

	next, _ := m.Update(statusExpiredMsg{gen: staleGen})
	m = asModel(t, next)
	if m.status != "second" {
		t.Error("an older expiry must not clear a newer status")
	}

	next, _ = m.Update(statusExpiredMsg{gen: m.statusGen})
	m = asModel(t, next)
	if m.status != "" {
		t.Error("matching expiry should clear the status")
	}
}

// =============================================================================
// HIGHLIGHTING
// =============================================================================

func TestLanguageFor(t *testing.T) {
	tests := []struct {
		name string
		art  *model.Artifact
		want string
	}{
		{"explicit metadata wins", &model.Artifact{Type: model.ArtifactJSON, Metadata: map[string]string{model.MetaLanguage: "python"}}, "python"},
		{"html type", &model.Artifact{Type: model.ArtifactHTML}, "html"},
		{"json type", &model.Artifact{Type: model.ArtifactJSON}, "json"},
		{"markdown type", &model.Artifact{Type: model.ArtifactMarkdown}, "markdown"},
		{"bare code falls through", &model.Artifact{Type: model.ArtifactCode}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := languageFor(tt.art); got != tt.want {
				t.Errorf("languageFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHighlightCodeKeepsText(t *testing.T) {
	code := "package main\n\nfunc main() {}\n"
	out := highlightCode(code, "go", "catppuccin-mocha")
	if !strings.Contains(out, "package") || !strings.Contains(out, "main") {
		t.Error("highlighted output should keep the source text")
	}

	// Unknown style names fall back rather than fail.
	out = highlightCode(code, "no-such-language", "no-such-style")
	if !strings.Contains(out, "func main") {
		t.Error("fallback path should still return the source text")
	}
}
