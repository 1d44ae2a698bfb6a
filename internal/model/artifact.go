// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and artifacts.
package model

// =============================================================================
// ARTIFACT TYPE
// =============================================================================

// ArtifactType classifies an extracted artifact.
type ArtifactType string

const (
	ArtifactCode     ArtifactType = "code"
	ArtifactHTML     ArtifactType = "html"
	ArtifactMarkdown ArtifactType = "markdown"
	ArtifactJSON     ArtifactType = "json"
	ArtifactOther    ArtifactType = "other"
)

// ParseArtifactType maps a tag attribute value onto a known type.
// Unrecognised values classify as other.
func ParseArtifactType(s string) ArtifactType {
	switch ArtifactType(s) {
	case ArtifactCode, ArtifactHTML, ArtifactMarkdown, ArtifactJSON, ArtifactOther:
		return ArtifactType(s)
	default:
		return ArtifactOther
	}
}

// Metadata keys the artifact tag grammar recognises. Unknown attribute keys
// are preserved verbatim alongside these.
const (
	MetaLanguage = "language"
	MetaFilename = "filename"
	MetaTitle    = "title"
)

// Artifact is a self-contained block of model output extracted from the
// assistant stream. While IsComplete is false the content grows append-only;
// once true it never changes.
type Artifact struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	Type           ArtifactType      `json:"type"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IsComplete     bool              `json:"isComplete"`
	Index          int               `json:"index"`
}

// Language returns the language metadata, empty when absent.
func (a *Artifact) Language() string {
	return a.Metadata[MetaLanguage]
}

// Filename returns the filename metadata, empty when absent.
func (a *Artifact) Filename() string {
	return a.Metadata[MetaFilename]
}

// DisplayTitle returns the best human label: title metadata, then filename,
// then the identity.
func (a *Artifact) DisplayTitle() string {
	if t := a.Metadata[MetaTitle]; t != "" {
		return t
	}
	if f := a.Metadata[MetaFilename]; f != "" {
		return f
	}
	return a.ID
}

// Clone returns a copy with its own metadata map.
func (a *Artifact) Clone() *Artifact {
	clone := *a
	if a.Metadata != nil {
		clone.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
