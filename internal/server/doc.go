// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the local HTTP proxy that fronts the LLM providers.
//
// Browsers cannot safely hold provider API keys, so every provider call is
// routed through this proxy: the key arrives in the request body, moves into
// the provider's auth header or query parameter, and is never persisted or
// logged.
//
// # Endpoints
//
//   - POST /api/anthropic       - Claude messages, JSON or SSE relay
//   - POST /api/google          - Gemini generateContent, JSON or SSE relay
//   - POST /api/local           - any OpenAI-compatible endpoint
//   - POST /api/anthropic/files - hosted file metadata and download
//   - GET  /health              - health check
//
// Streaming responses are relayed byte for byte with text/event-stream
// headers; the proxy never re-frames provider SSE.
//
// # Usage
//
//	srv := server.NewServer(8787)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server
