// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"

	"github.com/jeranaias/forgechat/internal/artifact"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/provider"
	"github.com/jeranaias/forgechat/internal/store"
)

// Adapter drives one chat exchange: it posts the unified request to the
// proxy and lands the reply in the stores. Each Send runs on its caller's
// goroutine; concurrent sends are isolated because every sink writes only
// to the identity captured at send time.
type Adapter struct {
	client *Client
	store  *store.Store
}

// NewAdapter creates an adapter over client writing into st.
func NewAdapter(client *Client, st *store.Store) *Adapter {
	return &Adapter{client: client, store: st}
}

// Send resolves the assistant reply for req into message msgID of
// conversation convID. With req.Stream set, deltas are appended as they
// arrive and the cumulative text is scanned for artifacts; otherwise the
// complete text lands in one write. Either way the message is finalised
// and still-open artifacts are sealed when the exchange ends. If the
// conversation is deleted mid-flight, remaining deltas are discarded
// without error.
func (a *Adapter) Send(ctx context.Context, p provider.Provider, req *provider.ChatRequest, convID, msgID string) error {
	sink := newMessageSink(a.store, convID, msgID)
	defer sink.Finish()

	if req.Stream {
		return a.client.Stream(ctx, p, req, sink.Write)
	}

	text, err := a.client.Complete(ctx, p, req)
	if err != nil {
		return err
	}
	sink.Write(text)
	return nil
}

// =============================================================================
// MESSAGE SINK
// =============================================================================

// messageSink lands assistant text on a fixed (conversation, message)
// identity and feeds the artifact extractor. All methods run on the
// stream's goroutine; the extractor callback fires synchronously inside
// Write and Finish.
type messageSink struct {
	st     *store.Store
	convID string
	msgID  string
	ex     *artifact.Extractor

	dropped bool
	done    bool
}

func newMessageSink(st *store.Store, convID, msgID string) *messageSink {
	s := &messageSink{st: st, convID: convID, msgID: msgID}
	s.ex = artifact.New(s.onArtifact)
	return s
}

// Write appends one text delta to the target message and scans it for
// artifact events. Once the target disappears, this and every later
// delta is dropped and extractor state is released.
func (s *messageSink) Write(delta string) {
	if s.dropped || delta == "" {
		return
	}
	ok := s.st.UpdateMessage(s.convID, s.msgID, func(m *model.Message) {
		m.AppendText(delta)
	})
	if !ok {
		s.drop()
		return
	}
	s.ex.Write(delta)
}

// Finish closes the exchange: open artifacts are sealed and the message
// leaves its streaming state. Safe to call more than once.
func (s *messageSink) Finish() {
	if s.done {
		return
	}
	s.done = true
	if s.dropped {
		return
	}
	s.ex.Finish()
	s.st.UpdateMessage(s.convID, s.msgID, func(m *model.Message) {
		m.FinalizeStream()
	})
}

func (s *messageSink) drop() {
	s.dropped = true
	s.ex.Reset()
}

func (s *messageSink) onArtifact(ev artifact.Event) {
	if s.dropped {
		return
	}
	switch ev.Kind {
	case artifact.EventOpened:
		s.st.UpsertArtifactOpen(s.convID, ev.ID, ev.Type, ev.Metadata, ev.Index)
	case artifact.EventAppended:
		s.st.AppendArtifactContent(s.convID, ev.ID, ev.Delta)
	case artifact.EventClosed:
		s.st.SealArtifact(s.convID, ev.ID)
	}
}
