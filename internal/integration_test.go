// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package internal provides integration tests for the complete forgechat
// pipeline.
//
// These tests verify end-to-end functionality including:
// - Streaming exchanges through the proxy into the store
// - Artifact extraction from streamed deltas
// - Credential handling across the proxy boundary
// - Upstream error relay
// - Cancellation with partial text retained
// - Persistence round trips
// - Conversation export
// - Full-text search sync
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/forgechat/internal/export"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/provider"
	"github.com/jeranaias/forgechat/internal/search"
	"github.com/jeranaias/forgechat/internal/server"
	"github.com/jeranaias/forgechat/internal/store"
	"github.com/jeranaias/forgechat/internal/transport"
)

// =============================================================================
// TEST UTILITIES
// =============================================================================

// capturedRequest records what an upstream test server received.
type capturedRequest struct {
	mu      sync.Mutex
	headers http.Header
	body    []byte
}

func (c *capturedRequest) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.headers = r.Header.Clone()
	c.body = body
	c.mu.Unlock()
}

func (c *capturedRequest) header(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headers == nil {
		return ""
	}
	return c.headers.Get(key)
}

func (c *capturedRequest) bodyFields(t *testing.T) map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var fields map[string]any
	if err := json.Unmarshal(c.body, &fields); err != nil {
		t.Fatalf("upstream received unparseable body: %v", err)
	}
	return fields
}

// anthropicSSE renders chunks as an Anthropic messages stream: one
// content_block_delta event per chunk, then message_stop.
func anthropicSSE(chunks ...string) string {
	var b strings.Builder
	b.WriteString("event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
	for _, chunk := range chunks {
		text, _ := json.Marshal(chunk)
		b.WriteString("event: content_block_delta\n")
		fmt.Fprintf(&b, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":%s}}\n\n", text)
	}
	b.WriteString("event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	return b.String()
}

// newUpstream starts a fake provider endpoint running handler, closed with
// the test.
func newUpstream(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)
	return upstream
}

// newProxy starts an ephemeral proxy fronting the given Anthropic base URL
// and returns a transport client pointed at it.
func newProxy(t *testing.T, anthropicBase string) *transport.Client {
	t.Helper()
	srv := server.NewServer(0).WithAnthropicBase(anthropicBase)
	origin, err := srv.StartEphemeral()
	if err != nil {
		t.Fatalf("failed to start ephemeral proxy: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return transport.NewClient(origin)
}

// seedExchange adds a conversation with a user turn and a streaming
// assistant placeholder, returning both identities.
func seedExchange(t *testing.T, st *store.Store, prompt string) (convID, msgID string) {
	t.Helper()
	conv := st.AddConversation("", "")
	st.SetActiveConversation(conv.ID)
	st.AppendMessage(conv.ID, model.NewUserMessage(prompt))
	reply := model.NewAssistantMessage()
	st.AppendMessage(conv.ID, reply)
	return conv.ID, reply.ID
}

// messageText reads the current display text of a message through the
// store's snapshot selectors.
func messageText(st *store.Store, convID, msgID string) string {
	conv, ok := st.Conversation(convID)
	if !ok {
		return ""
	}
	msg := conv.MessageByID(msgID)
	if msg == nil {
		return ""
	}
	return msg.DisplayText()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func chatRequest(stream bool) *provider.ChatRequest {
	return &provider.ChatRequest{
		APIKey:    "sk-int-test",
		Model:     "claude-sonnet-4-20250514",
		Stream:    stream,
		MaxTokens: 1024,
		Messages:  []map[string]any{{"role": "user", "content": "hello"}},
	}
}

// =============================================================================
// END-TO-END STREAMING EXCHANGE
// =============================================================================

// TestEndToEndStreamingExchange drives a full streamed exchange through the
// proxy and verifies the reply text and an artifact split across delta
// boundaries both land in the store.
func TestEndToEndStreamingExchange(t *testing.T) {
	var captured capturedRequest
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		captured.record(r)
		w.Header().Set("Content-Type", "text/event-stream")
		// The open and close markers straddle chunk boundaries on purpose.
		io.WriteString(w, anthropicSSE(
			"Here is the fix.\n\n<arti",
			"fact id=\"art-main\" type=\"code\" title=\"main.go\" language=\"go\">package main\n\nfunc main() {}\n</artifa",
			"ct>\n\nRun it with go run.",
		))
	})

	st := store.New()
	adapter := transport.NewAdapter(newProxy(t, upstream.URL), st)
	convID, msgID := seedExchange(t, st, "fix my program")

	err := adapter.Send(context.Background(), provider.Anthropic, chatRequest(true), convID, msgID)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	text := messageText(st, convID, msgID)
	if !strings.Contains(text, "Here is the fix.") || !strings.Contains(text, "Run it with go run.") {
		t.Errorf("reply prose missing from message, got %q", text)
	}
	if !strings.Contains(text, "<artifact") {
		t.Errorf("raw message should keep the artifact tag block, got %q", text)
	}

	art, ok := st.Artifact(convID, "art-main")
	if !ok {
		t.Fatal("artifact art-main not extracted")
	}
	if !art.IsComplete {
		t.Error("artifact should be sealed after the stream ends")
	}
	if want := "package main\n\nfunc main() {}\n"; art.Content != want {
		t.Errorf("artifact content = %q, want %q", art.Content, want)
	}
	if art.Type != model.ArtifactCode {
		t.Errorf("artifact type = %q, want code", art.Type)
	}
	if art.Language() != "go" {
		t.Errorf("artifact language = %q, want go", art.Language())
	}
	if art.DisplayTitle() != "main.go" {
		t.Errorf("artifact title = %q, want main.go", art.DisplayTitle())
	}

	// The credential must cross as a header, never in the forwarded body.
	if got := captured.header("x-api-key"); got != "sk-int-test" {
		t.Errorf("upstream x-api-key = %q, want sk-int-test", got)
	}
	if captured.header("anthropic-version") != provider.AnthropicVersion {
		t.Errorf("upstream anthropic-version = %q, want %q",
			captured.header("anthropic-version"), provider.AnthropicVersion)
	}
	fields := captured.bodyFields(t)
	if _, leaked := fields["apiKey"]; leaked {
		t.Error("apiKey leaked into the forwarded body")
	}
	if fields["model"] != "claude-sonnet-4-20250514" {
		t.Errorf("forwarded model = %v", fields["model"])
	}
}

// TestEndToEndCompleteExchange verifies the non-streaming path lands the
// full reply in one write and still extracts artifacts from it.
func TestEndToEndCompleteExchange(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		reply := map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "Sure.\n\n<artifact id=\"a1\" type=\"json\">{\"ok\":true}</artifact>"},
			},
		}
		json.NewEncoder(w).Encode(reply)
	})

	st := store.New()
	adapter := transport.NewAdapter(newProxy(t, upstream.URL), st)
	convID, msgID := seedExchange(t, st, "give me json")

	if err := adapter.Send(context.Background(), provider.Anthropic, chatRequest(false), convID, msgID); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if text := messageText(st, convID, msgID); !strings.HasPrefix(text, "Sure.") {
		t.Errorf("reply = %q, want prefix Sure.", text)
	}
	art, ok := st.Artifact(convID, "a1")
	if !ok {
		t.Fatal("artifact a1 not extracted from complete reply")
	}
	if art.Content != `{"ok":true}` || !art.IsComplete {
		t.Errorf("artifact = %+v", art)
	}
}

// TestBetaHeadersMergeUpstream verifies opt-in beta headers leave the body
// and arrive as request headers.
func TestBetaHeadersMergeUpstream(t *testing.T) {
	var captured capturedRequest
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		captured.record(r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"content":[{"type":"text","text":"ok"}]}`)
	})

	st := store.New()
	adapter := transport.NewAdapter(newProxy(t, upstream.URL), st)
	convID, msgID := seedExchange(t, st, "hi")

	req := chatRequest(false)
	req.BetaHeaders = map[string]string{"anthropic-beta": "files-api-2025-04-14"}
	if err := adapter.Send(context.Background(), provider.Anthropic, req, convID, msgID); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got := captured.header("anthropic-beta"); got != "files-api-2025-04-14" {
		t.Errorf("anthropic-beta header = %q", got)
	}
	fields := captured.bodyFields(t)
	if _, leaked := fields["betaHeaders"]; leaked {
		t.Error("betaHeaders leaked into the forwarded body")
	}
}

// =============================================================================
// ERROR AND CANCELLATION PATHS
// =============================================================================

// TestUpstreamAuthErrorMapsToSentinel verifies a 401 from the provider
// surfaces as ErrAuthFailed with the upstream message, and the placeholder
// message stays empty.
func TestUpstreamAuthErrorMapsToSentinel(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	})

	st := store.New()
	adapter := transport.NewAdapter(newProxy(t, upstream.URL), st)
	convID, msgID := seedExchange(t, st, "hi")

	err := adapter.Send(context.Background(), provider.Anthropic, chatRequest(false), convID, msgID)
	if !errors.Is(err, transport.ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
	if !strings.Contains(err.Error(), "invalid x-api-key") {
		t.Errorf("err %q should carry the upstream message", err)
	}

	conv, _ := st.Conversation(convID)
	if msg := conv.MessageByID(msgID); msg == nil || !msg.IsEmpty() {
		t.Error("failed exchange should leave the placeholder message empty")
	}
}

// TestStreamCancellationKeepsPartialText cancels mid-stream and verifies
// the deltas already received stay in the store, the message leaves its
// streaming state, and the open artifact is sealed.
func TestStreamCancellationKeepsPartialText(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"Starting the answer. ", "<artifact id=\"p1\" type=\"code\">line one"} {
			text, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":%s}}\n\n", text)
			flusher.Flush()
		}
		// Hold the stream open until the client goes away.
		<-r.Context().Done()
	})

	st := store.New()
	adapter := transport.NewAdapter(newProxy(t, upstream.URL), st)
	convID, msgID := seedExchange(t, st, "long answer please")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- adapter.Send(ctx, provider.Anthropic, chatRequest(true), convID, msgID)
	}()

	waitFor(t, 5*time.Second, func() bool {
		art, ok := st.Artifact(convID, "p1")
		return ok && art.Content == "line one"
	}, "both deltas to land")

	cancel()
	var err error
	select {
	case err = <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after cancellation")
	}
	if err == nil {
		t.Fatal("cancelled Send should report an error")
	}

	if text := messageText(st, convID, msgID); !strings.Contains(text, "Starting the answer.") {
		t.Errorf("partial text lost after cancellation, got %q", text)
	}
	conv, _ := st.Conversation(convID)
	if msg := conv.MessageByID(msgID); msg == nil || msg.IsStreaming {
		t.Error("message should be finalised after a cancelled exchange")
	}
	art, ok := st.Artifact(convID, "p1")
	if !ok || !art.IsComplete {
		t.Error("open artifact should be sealed when the exchange ends")
	}
}

// =============================================================================
// PERSISTENCE ROUND TRIP
// =============================================================================

// TestPersistenceRoundTrip saves a populated store and rehydrates a fresh
// one from the same blobs.
func TestPersistenceRoundTrip(t *testing.T) {
	src := store.New()

	first := src.AddConversation("conv-1", "Debugging session")
	src.AppendMessage(first.ID, model.NewUserMessage("why does this deadlock?"))
	reply := model.NewAssistantMessage()
	src.AppendMessage(first.ID, reply)
	src.UpdateMessage(first.ID, reply.ID, func(m *model.Message) {
		m.AppendText("You are holding the lock across the channel send.")
		m.FinalizeStream()
	})
	src.UpsertArtifactOpen(first.ID, "art-1", model.ArtifactCode,
		map[string]string{model.MetaLanguage: "go", model.MetaTitle: "fix.go"}, 0)
	src.AppendArtifactContent(first.ID, "art-1", "mu.Unlock()\nch <- v\n")
	src.SealArtifact(first.ID, "art-1")

	second := src.AddConversation("conv-2", "Second thread")
	src.AppendMessage(second.ID, model.NewUserMessage("unrelated question"))
	src.SetActiveConversation(second.ID)

	blobs := store.NewFileStorage(t.TempDir())
	if err := src.Save(blobs); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	dst := store.New()
	dst.Load(blobs)

	if got := dst.ConversationCount(); got != 2 {
		t.Fatalf("restored %d conversations, want 2", got)
	}
	if dst.ActiveConversationID() != second.ID {
		t.Errorf("active conversation = %q, want %q", dst.ActiveConversationID(), second.ID)
	}
	order := dst.Conversations()
	if order[0].ID != first.ID || order[1].ID != second.ID {
		t.Error("conversation order not preserved across the round trip")
	}

	conv, ok := dst.Conversation(first.ID)
	if !ok {
		t.Fatal("conv-1 missing after restore")
	}
	if conv.Title != "Debugging session" || len(conv.Messages) != 2 {
		t.Errorf("conv-1 = title %q, %d messages", conv.Title, len(conv.Messages))
	}
	if got := conv.Messages[1].DisplayText(); !strings.Contains(got, "holding the lock") {
		t.Errorf("assistant text = %q", got)
	}

	art, ok := dst.Artifact(first.ID, "art-1")
	if !ok {
		t.Fatal("art-1 missing after restore")
	}
	if art.Content != "mu.Unlock()\nch <- v\n" || !art.IsComplete || art.Language() != "go" {
		t.Errorf("restored artifact = %+v", art)
	}
}

// =============================================================================
// EXPORT
// =============================================================================

// TestExportAfterExchange exports a conversation produced by a real
// streamed exchange and checks both formats.
func TestExportAfterExchange(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, anthropicSSE(
			"Use this helper.\n\n",
			"<artifact id=\"helper\" type=\"code\" title=\"clamp.go\" language=\"go\">func clamp(v, lo, hi int) int { return min(max(v, lo), hi) }</artifact>",
			"\n\nIt avoids the branch ladder.",
		))
	})

	st := store.New()
	adapter := transport.NewAdapter(newProxy(t, upstream.URL), st)
	convID, msgID := seedExchange(t, st, "write a clamp helper")
	st.SetTitle(convID, "Clamp helper")

	if err := adapter.Send(context.Background(), provider.Anthropic, chatRequest(true), convID, msgID); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	conv, _ := st.Conversation(convID)
	arts := st.Artifacts(convID)

	t.Run("markdown", func(t *testing.T) {
		exp, err := export.New(export.FormatMarkdown)
		if err != nil {
			t.Fatal(err)
		}
		dir := t.TempDir()
		path, err := export.ExportToDir(exp, conv, arts, dir)
		if err != nil {
			t.Fatalf("ExportToDir failed: %v", err)
		}
		if filepath.Ext(path) != ".md" {
			t.Errorf("export path = %q, want .md", path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		doc := string(data)
		if !strings.Contains(doc, "title: Clamp helper") {
			t.Error("frontmatter title missing")
		}
		if strings.Contains(doc, "<artifact") {
			t.Error("raw artifact tags should not appear in the document")
		}
		if !strings.Contains(doc, "[artifact: clamp.go]") {
			t.Error("artifact placeholder missing from prose")
		}
		if !strings.Contains(doc, "func clamp(v, lo, hi int) int") {
			t.Error("artifact body missing from the artifacts section")
		}
		if !strings.Contains(doc, "```go") {
			t.Error("artifact fence should carry the language")
		}
	})

	t.Run("json", func(t *testing.T) {
		exp, err := export.New(export.FormatJSON)
		if err != nil {
			t.Fatal(err)
		}
		dir := t.TempDir()
		path, err := export.ExportToDir(exp, conv, arts, dir)
		if err != nil {
			t.Fatalf("ExportToDir failed: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		var doc struct {
			Conversation struct {
				Title    string            `json:"title"`
				Messages []json.RawMessage `json:"messages"`
			} `json:"conversation"`
			Artifacts []struct {
				ID string `json:"id"`
			} `json:"artifacts"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("export is not valid JSON: %v", err)
		}
		if doc.Conversation.Title != "Clamp helper" {
			t.Errorf("title = %q", doc.Conversation.Title)
		}
		if len(doc.Conversation.Messages) != 2 {
			t.Errorf("exported %d messages, want 2", len(doc.Conversation.Messages))
		}
		if len(doc.Artifacts) != 1 || doc.Artifacts[0].ID != "helper" {
			t.Errorf("exported artifacts = %+v", doc.Artifacts)
		}
	})
}

// =============================================================================
// SEARCH SYNC
// =============================================================================

// TestSearchSyncFollowsStore verifies conversations become searchable after
// a sync and drop out after deletion.
func TestSearchSyncFollowsStore(t *testing.T) {
	st := store.New()
	conv := st.AddConversation("conv-s", "Goroutine leak hunt")
	st.AppendMessage(conv.ID, model.NewUserMessage("the worker pool leaks goroutines on shutdown"))

	other := st.AddConversation("conv-o", "Unrelated")
	st.AppendMessage(other.ID, model.NewUserMessage("favourite editor themes"))

	ix, err := search.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer ix.Close()

	if err := ix.Sync(st.Conversations()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	results, err := ix.Search("goroutine", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected a hit for goroutine")
	}
	for _, r := range results {
		if r.ConversationID != conv.ID {
			t.Errorf("unexpected hit in %q", r.ConversationID)
		}
	}

	st.DeleteConversation(conv.ID)
	if err := ix.Sync(st.Conversations()); err != nil {
		t.Fatalf("re-sync failed: %v", err)
	}
	results, err = ix.Search("goroutine", 10)
	if err != nil {
		t.Fatalf("Search after delete failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("deleted conversation still searchable: %+v", results)
	}
}
