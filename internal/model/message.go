// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and artifacts.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/forgechat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// CONTENT SUM TYPE
// =============================================================================

// PartKind discriminates content part variants.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// Part is one element of multi-part message content.
type Part struct {
	Kind    PartKind `json:"kind"`
	Text    string   `json:"text,omitempty"`
	DataURL string   `json:"dataUrl,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// ImagePart builds an image part from a data URL.
func ImagePart(dataURL string) Part {
	return Part{Kind: PartImage, DataURL: dataURL}
}

// Content is either a plain string or an ordered part sequence. The JSON
// form mirrors that: a string when Parts is nil, an array otherwise.
type Content struct {
	Text  string
	Parts []Part
}

// TextContent wraps a plain string.
func TextContent(text string) Content {
	return Content{Text: text}
}

// PartsContent wraps a part sequence.
func PartsContent(parts ...Part) Content {
	return Content{Parts: parts}
}

// IsParts reports whether the content is a part sequence.
func (c Content) IsParts() bool {
	return c.Parts != nil
}

// PlainText returns the textual body: the string itself, or the
// concatenated text parts of a sequence.
func (c Content) PlainText() string {
	if c.Parts == nil {
		return c.Text
	}
	var b strings.Builder
	for _, p := range c.Parts {
		if p.Kind == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ImageParts returns the image parts of a sequence, nil for plain text.
func (c Content) ImageParts() []Part {
	if c.Parts == nil {
		return nil
	}
	var images []Part
	for _, p := range c.Parts {
		if p.Kind == PartImage {
			images = append(images, p)
		}
	}
	return images
}

// MarshalJSON emits a bare string for plain content and an array for parts.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts either form.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = Content{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		c.Parts = nil
		return json.Unmarshal(trimmed, &c.Text)
	case '[':
		c.Text = ""
		return json.Unmarshal(trimmed, &c.Parts)
	default:
		return fmt.Errorf("content must be a string or part array, got %s", util.TruncateRunes(string(trimmed), 20))
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"createdAt"`

	// Streaming state, never persisted.
	// PERFORMANCE: strings.Builder avoids quadratic growth during streaming.
	IsStreaming bool `json:"-"`
	stream      strings.Builder
}

// NewMessage creates a message with a generated ID.
func NewMessage(role Role, content Content) *Message {
	return &Message{
		ID:        util.NewID("msg"),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewUserMessage creates a plain-text user message.
func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, TextContent(text))
}

// NewUserMessageWithImages creates a user message whose content is a part
// sequence: the text body first, then one image part per data URL.
func NewUserMessageWithImages(text string, dataURLs ...string) *Message {
	parts := make([]Part, 0, len(dataURLs)+1)
	parts = append(parts, TextPart(text))
	for _, u := range dataURLs {
		parts = append(parts, ImagePart(u))
	}
	return NewMessage(RoleUser, PartsContent(parts...))
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) *Message {
	return NewMessage(RoleSystem, TextContent(text))
}

// NewAssistantMessage creates an assistant message in streaming state.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          util.NewID("msg"),
		Role:        RoleAssistant,
		CreatedAt:   time.Now().UTC(),
		IsStreaming: true,
	}
}

// AppendText appends a streamed delta. No-op once finalized.
func (m *Message) AppendText(delta string) {
	if m.IsStreaming {
		m.stream.WriteString(delta)
	}
}

// FinalizeStream moves the streamed text into Content and leaves
// streaming state.
func (m *Message) FinalizeStream() {
	if !m.IsStreaming {
		return
	}
	m.Content = TextContent(m.stream.String())
	m.stream.Reset()
	m.IsStreaming = false
}

// DisplayText returns the text to render: the stream buffer while
// streaming, the content body otherwise.
func (m *Message) DisplayText() string {
	if m.IsStreaming {
		return m.stream.String()
	}
	return m.Content.PlainText()
}

// Preview returns a truncated single-line preview of the message.
func (m *Message) Preview(maxRunes int) string {
	text := strings.ReplaceAll(m.DisplayText(), "\n", " ")
	return util.TruncateRunes(text, maxRunes)
}

// IsEmpty reports whether the message has no text at all.
func (m *Message) IsEmpty() bool {
	return m.stream.Len() == 0 && m.Content.PlainText() == "" && len(m.Content.Parts) == 0
}

// Clone returns a copy of the message. The stream buffer is materialized
// into the copy's content so the copy is safe to share.
func (m *Message) Clone() *Message {
	clone := &Message{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if m.Content.Parts != nil {
		clone.Content.Parts = make([]Part, len(m.Content.Parts))
		copy(clone.Content.Parts, m.Content.Parts)
	}
	if m.IsStreaming {
		clone.Content = TextContent(m.stream.String())
	}
	return clone
}
