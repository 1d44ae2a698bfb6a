// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the observable application state: conversations,
// artifacts, and transient UI signals.
package store

import "time"

// =============================================================================
// UI SIGNALS
// =============================================================================

// ReferenceInsert asks the input surface to insert an artifact reference.
// The timestamp is a freshness token: requesting the same artifact twice in
// a row still produces an observable change.
type ReferenceInsert struct {
	ArtifactID string
	Timestamp  time.Time
}

// UIState holds the transient view signals. Never persisted.
type UIState struct {
	SidebarOpen                  bool
	ActiveArtifactID             string
	ActiveArtifactConversationID string
	ReferenceInsert              *ReferenceInsert
}

// OpenArtifactSidebar opens the side panel on one artifact.
func (s *Store) OpenArtifactSidebar(artifactID, convID string) {
	s.mu.Lock()
	s.ui.SidebarOpen = true
	s.ui.ActiveArtifactID = artifactID
	s.ui.ActiveArtifactConversationID = convID
	s.mu.Unlock()

	s.notify(Event{Kind: EventUI, ConversationID: convID})
}

// CloseArtifactSidebar closes the side panel and clears the active
// artifact reference.
func (s *Store) CloseArtifactSidebar() {
	s.mu.Lock()
	convID := s.ui.ActiveArtifactConversationID
	s.ui.SidebarOpen = false
	s.ui.ActiveArtifactID = ""
	s.ui.ActiveArtifactConversationID = ""
	s.mu.Unlock()

	s.notify(Event{Kind: EventUI, ConversationID: convID})
}

// RequestReferenceInsert stamps a fresh insert request for an artifact.
// The timestamp is forced strictly after the previous request's, so two
// requests for the same id are still distinguishable.
func (s *Store) RequestReferenceInsert(artifactID string) {
	s.mu.Lock()
	ts := time.Now().UTC()
	if prev := s.ui.ReferenceInsert; prev != nil && !ts.After(prev.Timestamp) {
		ts = prev.Timestamp.Add(time.Nanosecond)
	}
	s.ui.ReferenceInsert = &ReferenceInsert{ArtifactID: artifactID, Timestamp: ts}
	s.mu.Unlock()

	s.notify(Event{Kind: EventUI})
}

// ClearReferenceInsertRequest acknowledges the pending insert request.
func (s *Store) ClearReferenceInsertRequest() {
	s.mu.Lock()
	s.ui.ReferenceInsert = nil
	s.mu.Unlock()

	s.notify(Event{Kind: EventUI})
}

// UI returns a copy of the current UI signals.
func (s *Store) UI() UIState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ui := s.ui
	if s.ui.ReferenceInsert != nil {
		ref := *s.ui.ReferenceInsert
		ui.ReferenceInsert = &ref
	}
	return ui
}
