// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the supported LLM provider families, their
// endpoint and header conventions, and the message normaliser that
// translates the unified message shape into each provider's wire schema.
package provider

import (
	"net/url"
	"strings"
)

// Provider identifies a remote LLM service family.
type Provider string

const (
	// Anthropic is the Claude messages API.
	Anthropic Provider = "anthropic"
	// Google is the Gemini generateContent API.
	Google Provider = "google"
	// Local is any OpenAI-compatible endpoint (Ollama, LM Studio, vLLM).
	Local Provider = "local"
)

// Known reports whether p names a supported provider.
func (p Provider) Known() bool {
	switch p {
	case Anthropic, Google, Local:
		return true
	}
	return false
}

// ProxyPath returns the server route that fronts p.
func (p Provider) ProxyPath() string {
	return "/api/" + string(p)
}

// FilesPath is the server route for Anthropic-hosted file fetches.
const FilesPath = "/api/anthropic/files"

// =============================================================================
// UPSTREAM ENDPOINTS
// =============================================================================

const (
	// DefaultAnthropicBaseURL is the production Anthropic API origin.
	DefaultAnthropicBaseURL = "https://api.anthropic.com"

	// DefaultGoogleBaseURL is the production Gemini API origin.
	DefaultGoogleBaseURL = "https://generativelanguage.googleapis.com"

	// AnthropicVersion is the pinned API version header value.
	AnthropicVersion = "2023-06-01"

	// AnthropicFilesBeta enables the code-execution and files betas that
	// file fetches require.
	AnthropicFilesBeta = "code-execution-2025-05-22,files-api-2025-04-14"
)

// AnthropicMessagesURL returns the messages endpoint under base.
func AnthropicMessagesURL(base string) string {
	return strings.TrimSuffix(base, "/") + "/v1/messages"
}

// AnthropicFileURL returns the metadata endpoint for a hosted file.
func AnthropicFileURL(base, fileID string) string {
	return strings.TrimSuffix(base, "/") + "/v1/files/" + url.PathEscape(fileID)
}

// AnthropicFileContentURL returns the raw content endpoint for a hosted file.
func AnthropicFileContentURL(base, fileID string) string {
	return AnthropicFileURL(base, fileID) + "/content"
}

// GoogleGenerateURL returns the generateContent endpoint for model under
// base. Gemini authenticates with a query parameter rather than a header,
// and streaming uses the SSE variant of the route.
func GoogleGenerateURL(base, model, apiKey string, stream bool) string {
	b := strings.TrimSuffix(base, "/") + "/v1beta/models/" + model
	if stream {
		return b + ":streamGenerateContent?alt=sse&key=" + url.QueryEscape(apiKey)
	}
	return b + ":generateContent?key=" + url.QueryEscape(apiKey)
}

// LocalChatURL returns the chat completions endpoint under a caller-supplied
// base URL. A trailing slash on the base is tolerated.
func LocalChatURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + "/v1/chat/completions"
}
