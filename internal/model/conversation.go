// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and artifacts.
package model

import (
	"time"

	"github.com/jeranaias/forgechat/internal/util"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered message history with identity and timestamps.
// UpdatedAt never decreases and is bumped by every mutation.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Messages  []*Message `json:"messages"`
}

// NewConversation creates an empty conversation with a generated ID and the
// default title.
func NewConversation() *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        util.NewID("conv"),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// NewConversationWithID creates an empty conversation with the given
// identity and title; empty title means the default.
func NewConversationWithID(id, title string) *Conversation {
	conv := NewConversation()
	if id != "" {
		conv.ID = id
	}
	if title != "" {
		conv.Title = title
	}
	return conv
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and bumps UpdatedAt.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.Touch()
}

// Touch bumps UpdatedAt, keeping it non-decreasing.
func (c *Conversation) Touch() {
	now := time.Now().UTC()
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// FirstUserMessage returns the earliest user message, or nil.
func (c *Conversation) FirstUserMessage() *Message {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg
		}
	}
	return nil
}

// MessageByID returns a message by identity, or nil.
func (c *Conversation) MessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty reports whether there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// METADATA
// =============================================================================

// SetTitle sets the title and bumps UpdatedAt.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.Touch()
}

// Preview returns a short single-line summary for listings.
func (c *Conversation) Preview() string {
	if len(c.Messages) == 0 {
		return "Empty conversation"
	}
	last := c.LastMessage()
	return last.Preview(80)
}

// Meta returns lightweight listing metadata.
func (c *Conversation) Meta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Preview:      c.Preview(),
	}
}

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Preview      string    `json:"preview"`
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return clone
}
