// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the supported LLM provider families, their
// endpoint and header conventions, and the message normaliser that
// translates the unified message shape into each provider's wire schema.
package provider

import (
	"encoding/json"
	"fmt"
)

// UpstreamError carries a provider's non-2xx response back to the caller
// with the upstream status preserved.
type UpstreamError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return e.Message
}

// ParseUpstreamError extracts a human-readable message from a provider
// error body. Providers disagree on the envelope: Anthropic and Google nest
// the text under error.message, OpenAI-compatible servers sometimes use a
// bare error string or a top-level message. Unparseable bodies fall back to
// a generic message carrying the status.
func ParseUpstreamError(status int, body []byte) *UpstreamError {
	if msg := upstreamMessage(body); msg != "" {
		return &UpstreamError{Status: status, Message: msg}
	}
	return &UpstreamError{Status: status, Message: fmt.Sprintf("HTTP error! status: %d", status)}
}

func upstreamMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if len(envelope.Error) > 0 {
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
		var s string
		if err := json.Unmarshal(envelope.Error, &s); err == nil && s != "" {
			return s
		}
	}
	return envelope.Message
}
