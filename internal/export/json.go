// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"

	"github.com/jeranaias/forgechat/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// Document is the JSON export payload: the conversation exactly as
// persisted, with its artifacts alongside. Nothing is filtered or
// reformatted, so a document can be re-imported without loss.
type Document struct {
	Conversation *model.Conversation `json:"conversation"`
	Artifacts    []*model.Artifact   `json:"artifacts,omitempty"`
}

// JSONExporter renders a conversation in the persisted JSON schema.
type JSONExporter struct{}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the JSON MIME type.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

// Export marshals the conversation and artifacts with indentation.
func (e *JSONExporter) Export(conv *model.Conversation, artifacts []*model.Artifact) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	doc := Document{Conversation: conv, Artifacts: artifacts}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return append(data, '\n'), nil
}
