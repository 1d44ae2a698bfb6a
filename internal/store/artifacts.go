// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the observable application state: conversations,
// artifacts, and transient UI signals.
package store

import (
	"github.com/jeranaias/forgechat/internal/model"
)

// =============================================================================
// ARTIFACT OPERATIONS
// =============================================================================

// UpsertArtifactOpen records an artifact opening. A reopen of an existing id
// within the same conversation first forces the prior artifact complete,
// then replaces it with a fresh incomplete one at the same list position.
// Opens against a conversation that no longer exists are discarded, so a
// stream racing a delete cannot resurrect artifact state.
func (s *Store) UpsertArtifactOpen(convID, artifactID string, typ model.ArtifactType, metadata map[string]string, index int) {
	fresh := &model.Artifact{
		ID:             artifactID,
		ConversationID: convID,
		Type:           typ,
		Metadata:       cloneMetadata(metadata),
		Index:          index,
	}

	s.mu.Lock()
	if _, ok := s.conversations[convID]; !ok {
		s.mu.Unlock()
		return
	}
	byID := s.artifacts[convID]
	if byID == nil {
		byID = make(map[string]*model.Artifact)
		s.artifacts[convID] = byID
	}
	if prior, ok := byID[artifactID]; ok {
		prior.IsComplete = true
	} else {
		s.artifactOrder[convID] = append(s.artifactOrder[convID], artifactID)
	}
	byID[artifactID] = fresh
	s.mu.Unlock()

	s.notify(Event{Kind: EventArtifacts, ConversationID: convID})
}

// AppendArtifactContent grows an open artifact's content. Appends to a
// sealed artifact are discarded: complete content is immutable.
func (s *Store) AppendArtifactContent(convID, artifactID, delta string) bool {
	s.mu.Lock()
	art, ok := s.artifacts[convID][artifactID]
	if !ok || art.IsComplete {
		s.mu.Unlock()
		return false
	}
	art.Content += delta
	s.mu.Unlock()

	s.notify(Event{Kind: EventArtifacts, ConversationID: convID})
	return true
}

// SealArtifact marks an artifact complete. Idempotent.
func (s *Store) SealArtifact(convID, artifactID string) bool {
	s.mu.Lock()
	art, ok := s.artifacts[convID][artifactID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	changed := !art.IsComplete
	art.IsComplete = true
	s.mu.Unlock()

	if changed {
		s.notify(Event{Kind: EventArtifacts, ConversationID: convID})
	}
	return true
}

// DropConversation discards every artifact of one conversation and clears
// UI references into it.
func (s *Store) DropConversation(convID string) {
	s.mu.Lock()
	uiCleared := s.dropConversationLocked(convID)
	s.mu.Unlock()

	s.notify(Event{Kind: EventArtifacts, ConversationID: convID})
	if uiCleared {
		s.notify(Event{Kind: EventUI, ConversationID: convID})
	}
}

// dropConversationLocked is the under-lock body of DropConversation, shared
// with the conversation delete cascade. Reports whether UI references were
// cleared.
func (s *Store) dropConversationLocked(convID string) bool {
	delete(s.artifacts, convID)
	delete(s.artifactOrder, convID)
	if s.ui.ActiveArtifactConversationID != convID {
		return false
	}
	s.ui.ActiveArtifactID = ""
	s.ui.ActiveArtifactConversationID = ""
	s.ui.SidebarOpen = false
	return true
}

// =============================================================================
// ARTIFACT SELECTORS
// =============================================================================

// Artifact returns a copy of one artifact.
func (s *Store) Artifact(convID, artifactID string) (*model.Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	art, ok := s.artifacts[convID][artifactID]
	if !ok {
		return nil, false
	}
	return art.Clone(), true
}

// Artifacts returns copies of a conversation's artifacts in first-open
// order.
func (s *Store) Artifacts(convID string) []*model.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order := s.artifactOrder[convID]
	arts := make([]*model.Artifact, 0, len(order))
	for _, id := range order {
		if art, ok := s.artifacts[convID][id]; ok {
			arts = append(arts, art.Clone())
		}
	}
	return arts
}

// ActiveArtifact resolves the UI's active artifact reference. Nil when
// either id is unset or the reference points at nothing, including a
// deleted conversation.
func (s *Store) ActiveArtifact() *model.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ui.ActiveArtifactID == "" || s.ui.ActiveArtifactConversationID == "" {
		return nil
	}
	art, ok := s.artifacts[s.ui.ActiveArtifactConversationID][s.ui.ActiveArtifactID]
	if !ok {
		return nil
	}
	return art.Clone()
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
