// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and artifacts.
//
// This package defines the core domain types used throughout the application
// for representing chat conversations, their messages, and the artifacts
// extracted from assistant output.
//
// # Key Types
//
//   - Conversation: ordered message history with identity and timestamps
//   - Message: single message with role and string-or-parts content
//   - Content: sum type over plain text and tagged part sequences
//   - Artifact: extracted block of model output with a streaming lifecycle
//   - ModelInfo: registry entry for a known chat model
//
// # Usage
//
// Create a conversation and append a message:
//
//	conv := model.NewConversation()
//	conv.AddMessage(model.NewUserMessage("Hello!"))
//
// Derive its title from the first user message:
//
//	title := model.GenerateTitle(conv.FirstUserMessage().DisplayText())
package model
