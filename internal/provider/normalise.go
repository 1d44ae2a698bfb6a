// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the supported LLM provider families, their
// endpoint and header conventions, and the message normaliser that
// translates the unified message shape into each provider's wire schema.
package provider

import (
	"strings"

	"github.com/jeranaias/forgechat/internal/model"
)

// =============================================================================
// MESSAGE NORMALISER
// =============================================================================

// Normalise translates a unified message list into provider wire shape.
// Input entries are {role, content} objects where content is a string or a
// sequence of kind-tagged parts ({kind:"text"} / {kind:"image"}). Entries
// already in the target wire shape pass through unchanged, so applying the
// translation twice equals applying it once. The normaliser does not
// validate; malformed entries are forwarded for the provider to reject.
func Normalise(messages []map[string]any, p Provider) []map[string]any {
	switch p {
	case Local:
		return mapMessages(messages, normaliseOpenAI)
	case Anthropic:
		// The system prompt travels in its own request field; a system
		// entry in the array would be rejected upstream.
		out := make([]map[string]any, 0, len(messages))
		for _, m := range messages {
			if roleOf(m) == "system" {
				continue
			}
			out = append(out, normaliseAnthropic(m))
		}
		return out
	case Google:
		return mapMessages(messages, normaliseGoogle)
	}
	return messages
}

// WireMessages converts the typed message model into the unified list the
// proxies accept. Streaming assistant text is materialised at call time.
func WireMessages(ms []*model.Message) []map[string]any {
	out := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		var content any
		if m.Content.IsParts() {
			parts := make([]any, 0, len(m.Content.Parts))
			for _, p := range m.Content.Parts {
				switch p.Kind {
				case model.PartText:
					parts = append(parts, map[string]any{"kind": "text", "text": p.Text})
				case model.PartImage:
					parts = append(parts, map[string]any{"kind": "image", "dataUrl": p.DataURL})
				}
			}
			content = parts
		} else {
			content = m.DisplayText()
		}
		out = append(out, map[string]any{"role": m.Role.String(), "content": content})
	}
	return out
}

// =============================================================================
// PER-PROVIDER SHAPES
// =============================================================================

func normaliseOpenAI(m map[string]any) map[string]any {
	parts, ok := contentParts(m)
	if !ok {
		return m
	}
	conv := make([]any, len(parts))
	for i, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			conv[i] = p
			continue
		}
		switch kindOf(part) {
		case "text":
			conv[i] = map[string]any{"type": "text", "text": part["text"]}
		case "image":
			conv[i] = map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": part["dataUrl"]},
			}
		default:
			// No kind discriminator: already wire-shaped.
			conv[i] = p
		}
	}
	return withContent(m, conv)
}

func normaliseAnthropic(m map[string]any) map[string]any {
	parts, ok := contentParts(m)
	if !ok {
		return m
	}
	conv := make([]any, len(parts))
	for i, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			conv[i] = p
			continue
		}
		switch kindOf(part) {
		case "text":
			conv[i] = map[string]any{"type": "text", "text": part["text"]}
		case "image":
			data, _ := part["dataUrl"].(string)
			conv[i] = map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": "image/jpeg",
					"data":       dataURLPayload(data),
				},
			}
		default:
			conv[i] = p
		}
	}
	return withContent(m, conv)
}

func normaliseGoogle(m map[string]any) map[string]any {
	if _, shaped := m["parts"]; shaped {
		return m
	}
	role := roleOf(m)
	if role == "assistant" {
		role = "model"
	}
	var parts []any
	switch c := m["content"].(type) {
	case string:
		parts = []any{map[string]any{"text": c}}
	case []any:
		parts = make([]any, len(c))
		for i, p := range c {
			part, ok := p.(map[string]any)
			if !ok {
				parts[i] = p
				continue
			}
			switch kindOf(part) {
			case "text":
				parts[i] = map[string]any{"text": part["text"]}
			case "image":
				data, _ := part["dataUrl"].(string)
				parts[i] = map[string]any{
					"inline_data": map[string]any{
						"mime_type": "image/jpeg",
						"data":      dataURLPayload(data),
					},
				}
			default:
				parts[i] = p
			}
		}
	default:
		return m
	}
	return map[string]any{"role": role, "parts": parts}
}

// =============================================================================
// HELPERS
// =============================================================================

func roleOf(m map[string]any) string {
	s, _ := m["role"].(string)
	return s
}

func kindOf(part map[string]any) string {
	s, _ := part["kind"].(string)
	return s
}

func contentParts(m map[string]any) ([]any, bool) {
	parts, ok := m["content"].([]any)
	return parts, ok
}

func withContent(m map[string]any, content any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	out["content"] = content
	return out
}

func mapMessages(in []map[string]any, f func(map[string]any) map[string]any) []map[string]any {
	out := make([]map[string]any, len(in))
	for i, m := range in {
		out[i] = f(m)
	}
	return out
}

// dataURLPayload returns the base64 payload of a data: URL, the portion
// after the first comma. Strings without a comma are returned whole.
func dataURLPayload(s string) string {
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[i+1:]
	}
	return s
}
