// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and artifacts.
package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// CONTENT SUM TYPE TESTS
// =============================================================================

func TestContent_JSONForms(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		json    string
	}{
		{
			name:    "plain string",
			content: TextContent("hello"),
			json:    `"hello"`,
		},
		{
			name:    "empty string",
			content: TextContent(""),
			json:    `""`,
		},
		{
			name:    "text part only",
			content: PartsContent(TextPart("hi")),
			json:    `[{"kind":"text","text":"hi"}]`,
		},
		{
			name:    "text plus image",
			content: PartsContent(TextPart("look"), ImagePart("data:image/jpeg;base64,AAAA")),
			json:    `[{"kind":"text","text":"look"},{"kind":"image","dataUrl":"data:image/jpeg;base64,AAAA"}]`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.content)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(got) != tc.json {
				t.Errorf("Marshal = %s, want %s", got, tc.json)
			}

			var back Content
			if err := json.Unmarshal(got, &back); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			round, err := json.Marshal(back)
			if err != nil {
				t.Fatalf("re-Marshal failed: %v", err)
			}
			if string(round) != tc.json {
				t.Errorf("round-trip = %s, want %s", round, tc.json)
			}
		})
	}
}

func TestContent_UnmarshalRejectsOtherShapes(t *testing.T) {
	var c Content
	if err := json.Unmarshal([]byte(`{"kind":"text"}`), &c); err == nil {
		t.Error("expected error for object-shaped content")
	}
	if err := json.Unmarshal([]byte(`null`), &c); err != nil {
		t.Errorf("null should decode to empty content, got %v", err)
	}
}

func TestContent_PlainText(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		want    string
	}{
		{"string", TextContent("abc"), "abc"},
		{"single text part", PartsContent(TextPart("abc")), "abc"},
		{"text and image", PartsContent(TextPart("abc"), ImagePart("data:x")), "abc"},
		{"two text parts", PartsContent(TextPart("ab"), TextPart("cd")), "abcd"},
		{"image only", PartsContent(ImagePart("data:x")), ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.content.PlainText(); got != tc.want {
				t.Errorf("PlainText() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewUserMessageWithImages_TextFirst(t *testing.T) {
	msg := NewUserMessageWithImages("caption", "data:image/jpeg;base64,a", "data:image/jpeg;base64,b")
	parts := msg.Content.Parts
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(parts))
	}
	if parts[0].Kind != PartText || parts[0].Text != "caption" {
		t.Errorf("first part = %+v, want the text body", parts[0])
	}
	for i, p := range parts[1:] {
		if p.Kind != PartImage {
			t.Errorf("part %d kind = %q, want image", i+1, p.Kind)
		}
	}
}

// =============================================================================
// MESSAGE STREAMING TESTS
// =============================================================================

func TestMessage_StreamingLifecycle(t *testing.T) {
	msg := NewAssistantMessage()
	if !msg.IsStreaming {
		t.Fatal("new assistant message should be streaming")
	}

	msg.AppendText("hel")
	msg.AppendText("lo")
	if got := msg.DisplayText(); got != "hello" {
		t.Errorf("DisplayText during stream = %q, want %q", got, "hello")
	}

	msg.FinalizeStream()
	if msg.IsStreaming {
		t.Error("message still streaming after finalize")
	}
	if got := msg.Content.PlainText(); got != "hello" {
		t.Errorf("finalized content = %q, want %q", got, "hello")
	}

	msg.AppendText("ignored")
	if got := msg.Content.PlainText(); got != "hello" {
		t.Errorf("append after finalize changed content to %q", got)
	}
}

func TestMessage_CloneMaterializesStream(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendText("partial")

	clone := msg.Clone()
	if got := clone.Content.PlainText(); got != "partial" {
		t.Errorf("clone content = %q, want %q", got, "partial")
	}

	msg.AppendText(" more")
	if got := clone.Content.PlainText(); got != "partial" {
		t.Errorf("clone changed after original append: %q", got)
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_AddMessageBumpsUpdatedAt(t *testing.T) {
	conv := NewConversation()
	before := conv.UpdatedAt

	time.Sleep(2 * time.Millisecond)
	conv.AddMessage(NewUserMessage("hi"))

	if !conv.UpdatedAt.After(before) {
		t.Errorf("UpdatedAt not bumped: %v -> %v", before, conv.UpdatedAt)
	}
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		t.Errorf("UpdatedAt %v before CreatedAt %v", conv.UpdatedAt, conv.CreatedAt)
	}
}

func TestConversation_MessageOrderNonDecreasing(t *testing.T) {
	conv := NewConversation()
	for i := 0; i < 5; i++ {
		conv.AddMessage(NewUserMessage("m"))
	}

	for i := 1; i < len(conv.Messages); i++ {
		prev, cur := conv.Messages[i-1].CreatedAt, conv.Messages[i].CreatedAt
		if cur.Before(prev) {
			t.Fatalf("message %d createdAt %v before predecessor %v", i, cur, prev)
		}
	}
	last := conv.Messages[len(conv.Messages)-1].CreatedAt
	if conv.UpdatedAt.Before(last) {
		t.Errorf("UpdatedAt %v before last message createdAt %v", conv.UpdatedAt, last)
	}
}

func TestConversation_Lookups(t *testing.T) {
	conv := NewConversation()
	first := NewUserMessage("first")
	conv.AddMessage(NewSystemMessage("sys"))
	conv.AddMessage(first)
	conv.AddMessage(NewUserMessage("second"))

	if got := conv.FirstUserMessage(); got != first {
		t.Errorf("FirstUserMessage = %v, want the first user message", got)
	}
	if got := conv.MessageByID(first.ID); got != first {
		t.Errorf("MessageByID(%q) = %v", first.ID, got)
	}
	if got := conv.MessageByID("missing"); got != nil {
		t.Errorf("MessageByID(missing) = %v, want nil", got)
	}
}

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := NewConversation()
	conv.AddMessage(NewUserMessage("original"))

	clone := conv.Clone()
	clone.Messages[0].Content = TextContent("mutated")
	clone.Title = "other"

	if conv.Messages[0].Content.PlainText() != "original" {
		t.Error("mutating clone message affected original")
	}
	if conv.Title == "other" {
		t.Error("mutating clone title affected original")
	}
}

// =============================================================================
// TITLE TESTS
// =============================================================================

func TestGenerateTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", DefaultTitle},
		{"whitespace only", "   \n ", DefaultTitle},
		{"short", "Hello there", "Hello there"},
		{"exactly 30", strings.Repeat("x", 30), strings.Repeat("x", 30)},
		{"31 runes", strings.Repeat("x", 31), strings.Repeat("x", 30) + "..."},
		{"100 runes", strings.Repeat("ab", 50), strings.Repeat("ab", 15) + "..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := GenerateTitle(tc.input); got != tc.want {
				t.Errorf("GenerateTitle(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestIsDefaultTitle(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"New chat", true},
		{"New Chat 2", true},
		{"New Chat 17", true},
		{"New Chat", false},
		{"New chat 2", false},
		{"Some topic", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.title, func(t *testing.T) {
			if got := IsDefaultTitle(tc.title); got != tc.want {
				t.Errorf("IsDefaultTitle(%q) = %v, want %v", tc.title, got, tc.want)
			}
		})
	}
}

// =============================================================================
// ARTIFACT TESTS
// =============================================================================

func TestParseArtifactType(t *testing.T) {
	tests := []struct {
		input string
		want  ArtifactType
	}{
		{"code", ArtifactCode},
		{"html", ArtifactHTML},
		{"markdown", ArtifactMarkdown},
		{"json", ArtifactJSON},
		{"other", ArtifactOther},
		{"", ArtifactOther},
		{"svg", ArtifactOther},
		{"CODE", ArtifactOther}, // type values are case-sensitive
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := ParseArtifactType(tc.input); got != tc.want {
				t.Errorf("ParseArtifactType(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestArtifact_DisplayTitle(t *testing.T) {
	tests := []struct {
		name     string
		artifact Artifact
		want     string
	}{
		{
			name:     "title wins",
			artifact: Artifact{ID: "a1", Metadata: map[string]string{MetaTitle: "Chart", MetaFilename: "c.py"}},
			want:     "Chart",
		},
		{
			name:     "filename fallback",
			artifact: Artifact{ID: "a1", Metadata: map[string]string{MetaFilename: "c.py"}},
			want:     "c.py",
		},
		{
			name:     "id fallback",
			artifact: Artifact{ID: "a1"},
			want:     "a1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.artifact.DisplayTitle(); got != tc.want {
				t.Errorf("DisplayTitle() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestArtifact_CloneIndependentMetadata(t *testing.T) {
	a := &Artifact{ID: "x", Metadata: map[string]string{MetaLanguage: "go"}}
	clone := a.Clone()
	clone.Metadata[MetaLanguage] = "python"
	if a.Metadata[MetaLanguage] != "go" {
		t.Error("mutating clone metadata affected original")
	}
}

// =============================================================================
// MODEL REGISTRY TESTS
// =============================================================================

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		wantOK bool
	}{
		{"short name", "sonnet", true},
		{"full id", "gemini-2.0-flash", true},
		{"partial name", "Haiku", true},
		{"unknown", "nonexistent-model-xyz", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := ResolveModel(tc.query)
			if ok != tc.wantOK {
				t.Errorf("ResolveModel(%q) ok = %v, want %v", tc.query, ok, tc.wantOK)
			}
		})
	}
}

func TestDefaultModelFor(t *testing.T) {
	for _, provider := range []string{"anthropic", "google", "local"} {
		if DefaultModelFor(provider) == "" {
			t.Errorf("DefaultModelFor(%q) is empty", provider)
		}
	}
	if DefaultModelFor("unknown") != "" {
		t.Error("DefaultModelFor(unknown) should be empty")
	}
}
