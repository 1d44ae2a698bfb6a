// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the supported LLM provider families, their
// endpoint and header conventions, and the message normaliser that
// translates the unified message shape into each provider's wire schema.
package provider

// =============================================================================
// UNIFIED REQUEST TYPES
// =============================================================================

// ChatRequest is the unified body a client posts to a provider proxy route.
// The route decides the provider; fields the provider does not use stay
// empty and are omitted from the wire. Unknown extra fields the caller adds
// survive because the proxy re-parses the body as a generic object.
type ChatRequest struct {
	APIKey      string            `json:"apiKey,omitempty"`      // credential, attached upstream and never stored
	Model       string            `json:"model,omitempty"`       // provider model identifier
	Messages    []map[string]any  `json:"messages,omitempty"`    // anthropic/local message list
	Stream      bool              `json:"stream,omitempty"`      // request an SSE relay
	System      string            `json:"system,omitempty"`      // anthropic system prompt
	MaxTokens   int               `json:"max_tokens,omitempty"`  // anthropic requires a cap
	BetaHeaders map[string]string `json:"betaHeaders,omitempty"` // anthropic beta opt-ins, merged into headers
	BaseURL     string            `json:"baseUrl,omitempty"`     // local endpoint origin

	// Gemini forward fields. The proxy strips its control fields and
	// forwards the remainder, so these sit at the top level.
	Contents          []map[string]any `json:"contents,omitempty"`
	SystemInstruction map[string]any   `json:"systemInstruction,omitempty"`
}

// FileAction selects the file-fetch behaviour.
type FileAction string

const (
	// FileMetadata fetches the file's metadata record.
	FileMetadata FileAction = "metadata"
	// FileDownload fetches the raw content with an attachment disposition.
	FileDownload FileAction = "download"
)

// FileRequest is the body for the Anthropic file fetch route. An empty
// action defaults to download.
type FileRequest struct {
	APIKey string     `json:"apiKey"`
	FileID string     `json:"file_id"`
	Action FileAction `json:"action,omitempty"`
}

// FileMetadataResponse is the slice of the upstream metadata record the
// download path reads to name the attachment.
type FileMetadataResponse struct {
	Filename string `json:"filename"`
}
