// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the observable application state: conversations,
// artifacts, and transient UI signals.
package store

import (
	"sort"

	"github.com/jeranaias/forgechat/internal/model"
)

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// AddConversation creates and stores a conversation. Empty id generates one;
// empty title starts at the default. Returns a clone of the new conversation.
func (s *Store) AddConversation(id, title string) *model.Conversation {
	conv := model.NewConversationWithID(id, title)

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.convOrder = append(s.convOrder, conv.ID)
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations, ConversationID: conv.ID})
	return conv.Clone()
}

// SetActiveConversation marks a conversation active. An empty id clears the
// selection. Returns false if the id is non-empty and unknown.
func (s *Store) SetActiveConversation(id string) bool {
	s.mu.Lock()
	if id != "" {
		if _, ok := s.conversations[id]; !ok {
			s.mu.Unlock()
			return false
		}
	}
	s.activeConvID = id
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations, ConversationID: id})
	return true
}

// AppendMessage appends a message to a conversation and bumps UpdatedAt.
// If this is the first user message and the title is still a placeholder,
// the title is derived from the message text. The message must afterwards
// be mutated only through UpdateMessage.
func (s *Store) AppendMessage(convID string, msg *model.Message) bool {
	s.mu.Lock()
	conv, ok := s.conversations[convID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	conv.AddMessage(msg)

	if msg.Role == model.RoleUser && model.IsDefaultTitle(conv.Title) {
		if first := conv.FirstUserMessage(); first != nil && first.ID == msg.ID {
			conv.Title = model.GenerateTitle(first.Content.PlainText())
		}
	}
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations, ConversationID: convID})
	return true
}

// UpdateMessage applies a patch to one message and bumps the conversation's
// UpdatedAt. The patch runs under the state lock and must not call back
// into the store. Returns false if conversation or message is unknown.
func (s *Store) UpdateMessage(convID, msgID string, patch func(*model.Message)) bool {
	s.mu.Lock()
	conv, ok := s.conversations[convID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	msg := conv.MessageByID(msgID)
	if msg == nil {
		s.mu.Unlock()
		return false
	}
	patch(msg)
	conv.Touch()
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations, ConversationID: convID})
	return true
}

// SetTitle replaces a conversation's title and bumps UpdatedAt.
func (s *Store) SetTitle(convID, title string) bool {
	s.mu.Lock()
	conv, ok := s.conversations[convID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	conv.SetTitle(title)
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations, ConversationID: convID})
	return true
}

// DeleteConversation removes a conversation together with its artifacts and
// any UI references into it. Deleting the active conversation clears the
// selection.
func (s *Store) DeleteConversation(id string) bool {
	s.mu.Lock()
	if _, ok := s.conversations[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.conversations, id)
	s.convOrder = removeString(s.convOrder, id)
	if s.activeConvID == id {
		s.activeConvID = ""
	}
	uiCleared := s.dropConversationLocked(id)
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations, ConversationID: id})
	s.notify(Event{Kind: EventArtifacts, ConversationID: id})
	if uiCleared {
		s.notify(Event{Kind: EventUI, ConversationID: id})
	}
	return true
}

// ClearAllConversations removes every conversation, its artifacts, and all
// UI references.
func (s *Store) ClearAllConversations() {
	s.mu.Lock()
	s.conversations = make(map[string]*model.Conversation)
	s.convOrder = nil
	s.activeConvID = ""
	s.artifacts = make(map[string]map[string]*model.Artifact)
	s.artifactOrder = make(map[string][]string)
	s.ui = UIState{}
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations})
	s.notify(Event{Kind: EventArtifacts})
	s.notify(Event{Kind: EventUI})
}

// =============================================================================
// CONVERSATION SELECTORS
// =============================================================================

// Conversation returns a deep copy of one conversation.
func (s *Store) Conversation(id string) (*model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

// ActiveConversationID returns the active conversation id, empty if none.
func (s *Store) ActiveConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeConvID
}

// ActiveConversation returns a deep copy of the active conversation, nil if
// none is selected or the selection points at a deleted conversation.
func (s *Store) ActiveConversation() *model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[s.activeConvID]
	if !ok {
		return nil
	}
	return conv.Clone()
}

// Conversations returns deep copies of all conversations, most recently
// updated first.
func (s *Store) Conversations() []*model.Conversation {
	s.mu.RLock()
	convs := make([]*model.Conversation, 0, len(s.convOrder))
	for _, id := range s.convOrder {
		convs = append(convs, s.conversations[id].Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs
}

// ConversationMetas returns listing metadata, most recently updated first.
func (s *Store) ConversationMetas() []model.ConversationMeta {
	s.mu.RLock()
	metas := make([]model.ConversationMeta, 0, len(s.convOrder))
	for _, id := range s.convOrder {
		metas = append(metas, s.conversations[id].Meta())
	}
	s.mu.RUnlock()

	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas
}

// ConversationCount returns the number of stored conversations.
func (s *Store) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func removeString(list []string, v string) []string {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
