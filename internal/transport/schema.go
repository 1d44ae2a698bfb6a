// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jeranaias/forgechat/internal/provider"
)

// Every provider's event and response schema lives here; nothing outside
// this file parses provider JSON.

// doneMarker terminates OpenAI-style data streams.
var doneMarker = []byte("[DONE]")

// =============================================================================
// STREAM EVENT SCHEMAS
// =============================================================================

// anthropicEvent is the slice of the messages-stream schema the adapter
// reads: text deltas and the terminator. Other event kinds (message_start,
// content_block_start, ping, ...) carry no text and parse to an empty delta.
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// googleChunk is the generateContent SSE payload slice.
type googleChunk struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// localChunk is the OpenAI-compatible streaming chunk slice.
type localChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ParseSSE extracts the assistant text delta from one SSE event of p's
// stream. done reports a provider-level terminator: Anthropic's
// message_stop event, an OpenAI-style "[DONE]" payload, or a populated
// finish_reason. A malformed payload returns an error; callers skip the
// event and keep reading.
func ParseSSE(p provider.Provider, eventType string, data []byte) (delta string, done bool, err error) {
	switch p {
	case provider.Anthropic:
		return parseAnthropicEvent(eventType, data)
	case provider.Google:
		return parseGoogleEvent(data)
	case provider.Local:
		return parseLocalEvent(data)
	}
	return "", false, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
}

func parseAnthropicEvent(eventType string, data []byte) (string, bool, error) {
	var ev anthropicEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", false, fmt.Errorf("anthropic event: %w", err)
	}

	// The event: line and the payload type agree on real streams; trust
	// the payload, fall back to the event: line for bodies without one.
	kind := ev.Type
	if kind == "" {
		kind = eventType
	}

	switch kind {
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" {
			return ev.Delta.Text, false, nil
		}
		return "", false, nil
	case "message_stop":
		return "", true, nil
	}
	return "", false, nil
}

func parseGoogleEvent(data []byte) (string, bool, error) {
	if bytes.Equal(bytes.TrimSpace(data), doneMarker) {
		return "", true, nil
	}
	var chunk googleChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, fmt.Errorf("google event: %w", err)
	}
	if len(chunk.Candidates) == 0 {
		return "", false, nil
	}
	var b strings.Builder
	for _, part := range chunk.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), false, nil
}

func parseLocalEvent(data []byte) (string, bool, error) {
	if bytes.Equal(bytes.TrimSpace(data), doneMarker) {
		return "", true, nil
	}
	var chunk localChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, fmt.Errorf("local event: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, chunk.Choices[0].FinishReason != "", nil
}

// =============================================================================
// COMPLETE RESPONSE SCHEMAS
// =============================================================================

// anthropicResponse is the non-streaming messages response slice.
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// localResponse is the non-streaming chat completions response slice.
type localResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CompleteText extracts the full assistant text from a non-streaming
// response body per p's schema. A structurally valid reply with no
// candidates yields an empty string.
func CompleteText(p provider.Provider, body []byte) (string, error) {
	switch p {
	case provider.Anthropic:
		var resp anthropicResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to parse anthropic response: %w", err)
		}
		var b strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		return b.String(), nil

	case provider.Google:
		var resp googleChunk
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to parse google response: %w", err)
		}
		if len(resp.Candidates) == 0 {
			return "", nil
		}
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			b.WriteString(part.Text)
		}
		return b.String(), nil

	case provider.Local:
		var resp localResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to parse local response: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, p)
}
