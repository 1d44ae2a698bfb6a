// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and artifacts.
package model

import "strings"

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// ModelInfo describes a known chat model for selection and display.
type ModelInfo struct {
	// ID is the model identifier used in API calls.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Provider names the backend that serves the model:
	// "anthropic", "google", or "local".
	Provider string `json:"provider"`

	// Description is a brief note on the model's strengths.
	Description string `json:"description"`
}

// Models maps short names onto known models. Local deployments accept any
// model id, so this registry is a convenience, not a gate.
var Models = map[string]ModelInfo{
	"haiku": {
		ID:          "claude-3-5-haiku-20241022",
		Name:        "Claude 3.5 Haiku",
		Provider:    "anthropic",
		Description: "Fast and efficient for simple tasks",
	},
	"sonnet": {
		ID:          "claude-sonnet-4-20250514",
		Name:        "Claude Sonnet 4",
		Provider:    "anthropic",
		Description: "Best balance of speed and capability",
	},
	"opus": {
		ID:          "claude-opus-4-20250514",
		Name:        "Claude Opus 4",
		Provider:    "anthropic",
		Description: "Most capable for complex reasoning",
	},
	"gemini-flash": {
		ID:          "gemini-2.0-flash",
		Name:        "Gemini 2.0 Flash",
		Provider:    "google",
		Description: "Low latency multimodal model",
	},
	"gemini-pro": {
		ID:          "gemini-1.5-pro",
		Name:        "Gemini 1.5 Pro",
		Provider:    "google",
		Description: "Long context reasoning",
	},
	"llama": {
		ID:          "llama3.1",
		Name:        "Llama 3.1",
		Provider:    "local",
		Description: "Open-source default for local endpoints",
	},
}

// ResolveModel looks up a model by short name or full ID. The boolean is
// false when the registry has no entry; callers pass unknown ids through
// unchanged (local endpoints serve arbitrary models).
func ResolveModel(nameOrID string) (ModelInfo, bool) {
	if info, ok := Models[nameOrID]; ok {
		return info, true
	}
	for _, info := range Models {
		if info.ID == nameOrID {
			return info, true
		}
	}
	lower := strings.ToLower(nameOrID)
	for _, info := range Models {
		if strings.Contains(strings.ToLower(info.Name), lower) {
			return info, true
		}
	}
	return ModelInfo{}, false
}

// DefaultModelFor returns the registry default for a provider tag.
func DefaultModelFor(provider string) string {
	switch provider {
	case "anthropic":
		return Models["sonnet"].ID
	case "google":
		return Models["gemini-flash"].ID
	case "local":
		return Models["llama"].ID
	default:
		return ""
	}
}
