// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the observable application state: conversations,
// artifacts, and transient UI signals.
package store

import (
	"sync"

	"github.com/jeranaias/forgechat/internal/model"
)

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies which slice of state a mutation touched.
type EventKind string

const (
	EventConversations EventKind = "conversations"
	EventArtifacts     EventKind = "artifacts"
	EventUI            EventKind = "ui"
)

// Event describes one committed mutation. ConversationID is empty for
// mutations that touch all conversations (clear-all) or none.
type Event struct {
	Kind           EventKind
	ConversationID string
}

// =============================================================================
// STORE
// =============================================================================

// Store is the root state cell. Writers mutate through named operations;
// readers get snapshot clones; observers subscribe to mutation events.
// Persistence is just another observer.
//
// All state is guarded by one RWMutex. Listeners run after the lock is
// released, so they may call back into the store.
type Store struct {
	mu sync.RWMutex

	// Conversation state.
	conversations map[string]*model.Conversation
	convOrder     []string
	activeConvID  string

	// Artifact state, indexed (conversationID, artifactID). Order tracks
	// first-open order within a conversation.
	artifacts     map[string]map[string]*model.Artifact
	artifactOrder map[string][]string

	// Transient UI signals, never persisted.
	ui UIState

	listenerMu sync.Mutex
	listeners  map[int]func(Event)
	nextToken  int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		conversations: make(map[string]*model.Conversation),
		artifacts:     make(map[string]map[string]*model.Artifact),
		artifactOrder: make(map[string][]string),
		listeners:     make(map[int]func(Event)),
	}
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// Subscribe registers a listener for mutation events and returns a function
// that removes it. Listeners are invoked synchronously, outside the state
// lock, in the goroutine that performed the mutation.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.listenerMu.Lock()
	token := s.nextToken
	s.nextToken++
	s.listeners[token] = fn
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, token)
		s.listenerMu.Unlock()
	}
}

// notify fans an event out to the current listener set. Must be called
// without holding mu.
func (s *Store) notify(ev Event) {
	s.listenerMu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
