// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the observable application state: conversations,
// artifacts, and transient UI signals.
package store

import (
	"testing"

	"github.com/jeranaias/forgechat/internal/model"
)

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestAddConversation_Defaults(t *testing.T) {
	s := New()

	conv := s.AddConversation("", "")
	if conv.ID == "" {
		t.Error("expected generated id")
	}
	if conv.Title != model.DefaultTitle {
		t.Errorf("title = %q, want default", conv.Title)
	}
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		t.Error("updatedAt before createdAt")
	}

	got, ok := s.Conversation(conv.ID)
	if !ok || got.ID != conv.ID {
		t.Fatal("conversation not stored")
	}
}

func TestAutoTitleOnFirstUserMessage(t *testing.T) {
	tests := []struct {
		name      string
		startWith string
		text      string
		wantTitle string
	}{
		{
			name:      "long text sliced with ellipsis",
			text:      "Explain the CAP theorem please now",
			wantTitle: "Explain the CAP theorem please...",
		},
		{
			name:      "exactly thirty runes unchanged",
			text:      "Explain the CAP theorem please",
			wantTitle: "Explain the CAP theorem please",
		},
		{
			name:      "whitespace only keeps default",
			text:      "   ",
			wantTitle: model.DefaultTitle,
		},
		{
			name:      "numbered placeholder also replaced",
			startWith: "New Chat 3",
			text:      "hi",
			wantTitle: "hi",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			conv := s.AddConversation("", tc.startWith)
			s.AppendMessage(conv.ID, model.NewUserMessage(tc.text))

			got, _ := s.Conversation(conv.ID)
			if got.Title != tc.wantTitle {
				t.Errorf("title = %q, want %q", got.Title, tc.wantTitle)
			}
		})
	}
}

func TestAutoTitle_OnlyFirstUserMessage(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "")

	s.AppendMessage(conv.ID, model.NewUserMessage("first question"))
	s.AppendMessage(conv.ID, model.NewUserMessage("second question"))

	got, _ := s.Conversation(conv.ID)
	if got.Title != "first question" {
		t.Errorf("title = %q, want derived from first message only", got.Title)
	}
}

func TestAutoTitle_CustomTitleKept(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "Project notes")
	s.AppendMessage(conv.ID, model.NewUserMessage("hello"))

	got, _ := s.Conversation(conv.ID)
	if got.Title != "Project notes" {
		t.Errorf("title = %q, custom title must survive", got.Title)
	}
}

func TestAutoTitle_ConcatenatesParts(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "")
	msg := model.NewUserMessageWithImages("describe this", "data:image/png;base64,QUJD")
	s.AppendMessage(conv.ID, msg)

	got, _ := s.Conversation(conv.ID)
	if got.Title != "describe this" {
		t.Errorf("title = %q, want text body of parts", got.Title)
	}
}

func TestAppendMessage_UnknownConversation(t *testing.T) {
	s := New()
	if s.AppendMessage("nope", model.NewUserMessage("hi")) {
		t.Error("append to unknown conversation must fail")
	}
}

func TestUpdateMessage(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "")
	msg := model.NewAssistantMessage()
	s.AppendMessage(conv.ID, msg)

	before, _ := s.Conversation(conv.ID)

	ok := s.UpdateMessage(conv.ID, msg.ID, func(m *model.Message) {
		m.AppendText("hello ")
		m.AppendText("world")
		m.FinalizeStream()
	})
	if !ok {
		t.Fatal("update failed")
	}

	after, _ := s.Conversation(conv.ID)
	if got := after.MessageByID(msg.ID).Content.PlainText(); got != "hello world" {
		t.Errorf("content = %q", got)
	}
	if after.UpdatedAt.Before(before.UpdatedAt) {
		t.Error("updatedAt went backwards")
	}

	if s.UpdateMessage(conv.ID, "missing", func(*model.Message) {}) {
		t.Error("update of unknown message must fail")
	}
}

func TestUpdatedAtCoversMessages(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "")
	s.AppendMessage(conv.ID, model.NewUserMessage("a"))
	s.AppendMessage(conv.ID, model.NewUserMessage("b"))

	got, _ := s.Conversation(conv.ID)
	for i := 1; i < len(got.Messages); i++ {
		if got.Messages[i].CreatedAt.Before(got.Messages[i-1].CreatedAt) {
			t.Error("messages out of createdAt order")
		}
	}
	last := got.Messages[len(got.Messages)-1]
	if got.UpdatedAt.Before(last.CreatedAt) {
		t.Error("updatedAt behind last message createdAt")
	}
}

func TestSetActiveConversation(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "")

	if !s.SetActiveConversation(conv.ID) {
		t.Fatal("activating a known conversation failed")
	}
	if s.ActiveConversationID() != conv.ID {
		t.Error("active id not set")
	}
	if s.SetActiveConversation("ghost") {
		t.Error("activating an unknown conversation must fail")
	}
	if !s.SetActiveConversation("") {
		t.Error("clearing the selection must succeed")
	}
	if s.ActiveConversation() != nil {
		t.Error("cleared selection must resolve to nil")
	}
}

func TestDeleteConversation_Cascades(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "")
	s.SetActiveConversation(conv.ID)
	s.UpsertArtifactOpen(conv.ID, "art_1", model.ArtifactCode, nil, 0)
	s.OpenArtifactSidebar("art_1", conv.ID)

	if !s.DeleteConversation(conv.ID) {
		t.Fatal("delete failed")
	}
	if _, ok := s.Conversation(conv.ID); ok {
		t.Error("conversation survived delete")
	}
	if s.ActiveConversationID() != "" {
		t.Error("active selection survived delete")
	}
	if got := s.Artifacts(conv.ID); len(got) != 0 {
		t.Errorf("artifacts survived delete: %d", len(got))
	}
	if ui := s.UI(); ui.SidebarOpen || ui.ActiveArtifactID != "" {
		t.Error("UI reference into deleted conversation survived")
	}
	if s.DeleteConversation(conv.ID) {
		t.Error("second delete must report false")
	}
}

func TestClearAllConversations(t *testing.T) {
	s := New()
	a := s.AddConversation("", "")
	b := s.AddConversation("", "")
	s.SetActiveConversation(b.ID)
	s.UpsertArtifactOpen(a.ID, "x", model.ArtifactHTML, nil, 0)

	s.ClearAllConversations()

	if s.ConversationCount() != 0 {
		t.Error("conversations survived clear-all")
	}
	if s.ActiveConversationID() != "" {
		t.Error("active selection survived clear-all")
	}
	if len(s.Artifacts(a.ID)) != 0 {
		t.Error("artifacts survived clear-all")
	}
}

func TestConversations_MostRecentFirst(t *testing.T) {
	s := New()
	older := s.AddConversation("", "")
	newer := s.AddConversation("", "")
	s.AppendMessage(newer.ID, model.NewUserMessage("bump"))
	s.AppendMessage(older.ID, model.NewUserMessage("bump later"))

	convs := s.Conversations()
	if len(convs) != 2 {
		t.Fatalf("len = %d", len(convs))
	}
	if convs[0].ID != older.ID {
		t.Error("most recently updated conversation must sort first")
	}
}

// =============================================================================
// ARTIFACTS
// =============================================================================

func TestUpsertArtifactOpen_ReopenReplaces(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "")

	s.UpsertArtifactOpen(conv.ID, "a", model.ArtifactCode, map[string]string{"language": "go"}, 0)
	s.UpsertArtifactOpen(conv.ID, "x", model.ArtifactCode, map[string]string{"language": "py"}, 5)
	s.AppendArtifactContent(conv.ID, "x", "print(1)")

	// Reopening the same id replaces content and metadata; the list
	// position stays.
	s.UpsertArtifactOpen(conv.ID, "x", model.ArtifactMarkdown, map[string]string{"title": "notes"}, 9)

	art, ok := s.Artifact(conv.ID, "x")
	if !ok {
		t.Fatal("artifact missing after reopen")
	}
	if art.IsComplete {
		t.Error("reopened artifact must start incomplete")
	}
	if art.Content != "" {
		t.Errorf("reopened content = %q, want empty", art.Content)
	}
	if art.Type != model.ArtifactMarkdown {
		t.Errorf("type = %q", art.Type)
	}
	if art.Metadata["title"] != "notes" || art.Metadata["language"] != "" {
		t.Errorf("metadata = %v, want replaced", art.Metadata)
	}

	order := s.Artifacts(conv.ID)
	if len(order) != 2 || order[0].ID != "a" || order[1].ID != "x" {
		t.Errorf("order changed on reopen: %v", artifactIDs(order))
	}
}

func TestUpsertArtifactOpen_DeletedConversation(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "")
	s.DeleteConversation(conv.ID)

	// A stream racing the delete must not resurrect artifact state.
	s.UpsertArtifactOpen(conv.ID, "x", model.ArtifactCode, nil, 0)

	if _, ok := s.Artifact(conv.ID, "x"); ok {
		t.Error("open against a deleted conversation took effect")
	}
	if got := s.Artifacts(conv.ID); len(got) != 0 {
		t.Errorf("artifacts = %d, want none", len(got))
	}
}

func TestAppendArtifactContent_SealedIsImmutable(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "")
	s.UpsertArtifactOpen(conv.ID, "x", model.ArtifactCode, nil, 0)
	s.AppendArtifactContent(conv.ID, "x", "print(1)")

	if !s.SealArtifact(conv.ID, "x") {
		t.Fatal("seal failed")
	}
	if s.AppendArtifactContent(conv.ID, "x", "MORE") {
		t.Error("append after seal must be rejected")
	}

	art, _ := s.Artifact(conv.ID, "x")
	if art.Content != "print(1)" {
		t.Errorf("content mutated after seal: %q", art.Content)
	}
	if !art.IsComplete {
		t.Error("isComplete lost")
	}

	// Sealing again is a no-op, not an error.
	if !s.SealArtifact(conv.ID, "x") {
		t.Error("re-seal must succeed")
	}
}

func TestAppendArtifactContent_Unknown(t *testing.T) {
	s := New()
	if s.AppendArtifactContent("c", "x", "data") {
		t.Error("append to unknown artifact must fail")
	}
	if s.SealArtifact("c", "x") {
		t.Error("seal of unknown artifact must fail")
	}
}

func TestActiveArtifact_NilSafe(t *testing.T) {
	s := New()
	if s.ActiveArtifact() != nil {
		t.Error("no selection must resolve to nil")
	}

	conv := s.AddConversation("", "")
	s.UpsertArtifactOpen(conv.ID, "x", model.ArtifactCode, nil, 0)
	s.OpenArtifactSidebar("x", conv.ID)

	if art := s.ActiveArtifact(); art == nil || art.ID != "x" {
		t.Fatal("active artifact not resolved")
	}

	// A dangling reference resolves to nil instead of failing.
	s.DropConversation(conv.ID)
	if s.ActiveArtifact() != nil {
		t.Error("selection into dropped conversation must resolve to nil")
	}
}

// =============================================================================
// UI SIGNALS
// =============================================================================

func TestReferenceInsert_EdgeTrigger(t *testing.T) {
	s := New()

	s.RequestReferenceInsert("art_1")
	first := s.UI().ReferenceInsert
	if first == nil || first.ArtifactID != "art_1" {
		t.Fatal("insert request not recorded")
	}

	s.RequestReferenceInsert("art_1")
	second := s.UI().ReferenceInsert
	if !second.Timestamp.After(first.Timestamp) {
		t.Error("repeat request must carry a strictly newer timestamp")
	}

	s.ClearReferenceInsertRequest()
	if s.UI().ReferenceInsert != nil {
		t.Error("clear left a pending request")
	}
}

func TestCloseArtifactSidebar(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "")
	s.OpenArtifactSidebar("x", conv.ID)
	s.CloseArtifactSidebar()

	ui := s.UI()
	if ui.SidebarOpen || ui.ActiveArtifactID != "" || ui.ActiveArtifactConversationID != "" {
		t.Errorf("sidebar state not cleared: %+v", ui)
	}
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

func TestSubscribe_DeliversAndUnsubscribes(t *testing.T) {
	s := New()
	var events []Event
	unsub := s.Subscribe(func(ev Event) {
		events = append(events, ev)
	})

	conv := s.AddConversation("", "")
	s.UpsertArtifactOpen(conv.ID, "x", model.ArtifactCode, nil, 0)
	s.RequestReferenceInsert("x")

	wantKinds := []EventKind{EventConversations, EventArtifacts, EventUI}
	if len(events) != len(wantKinds) {
		t.Fatalf("events = %d, want %d", len(events), len(wantKinds))
	}
	for i, want := range wantKinds {
		if events[i].Kind != want {
			t.Errorf("event %d kind = %q, want %q", i, events[i].Kind, want)
		}
	}
	if events[0].ConversationID != conv.ID {
		t.Error("conversation event missing id")
	}

	unsub()
	s.AddConversation("", "")
	if len(events) != len(wantKinds) {
		t.Error("listener fired after unsubscribe")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := New()
	conv := s.AddConversation("", "")
	s.AppendMessage(conv.ID, model.NewUserMessage("original"))

	// Mutating a returned clone must not leak into the store.
	got, _ := s.Conversation(conv.ID)
	got.Title = "hacked"
	got.Messages[0].Content = model.TextContent("hacked")

	fresh, _ := s.Conversation(conv.ID)
	if fresh.Title == "hacked" || fresh.Messages[0].Content.PlainText() == "hacked" {
		t.Error("clone mutation leaked into store")
	}
}

func artifactIDs(arts []*model.Artifact) []string {
	ids := make([]string, len(arts))
	for i, a := range arts {
		ids[i] = a.ID
	}
	return ids
}
