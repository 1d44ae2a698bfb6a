// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the local HTTP proxy that fronts the LLM providers.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jeranaias/forgechat/internal/provider"
)

// maxErrorBodySize bounds how much of an upstream error body is read for
// message extraction.
const maxErrorBodySize = 1 << 20

// ============================================================================
// PROVIDER HANDLERS
// ============================================================================

// handleAnthropic handles POST /api/anthropic. The key moves from the body
// to the x-api-key header; betaHeaders merge into the header set; the rest
// of the body forwards verbatim.
func (s *Server) handleAnthropic(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	apiKey, _ := body["apiKey"].(string)
	if apiKey == "" {
		s.writeError(w, http.StatusBadRequest, msgAPIKeyRequired)
		return
	}
	model, _ := body["model"].(string)
	if model == "" {
		s.writeError(w, http.StatusBadRequest, msgModelRequired)
		return
	}

	headers := http.Header{}
	headers.Set("x-api-key", apiKey)
	headers.Set("anthropic-version", provider.AnthropicVersion)
	mergeBetaHeaders(headers, body["betaHeaders"])

	s.forward(w, r, upstreamRequest{
		url:     provider.AnthropicMessagesURL(s.anthropicBase),
		headers: headers,
		body:    forwardBody(body, "apiKey", "betaHeaders"),
		stream:  boolField(body, "stream"),
	})
}

// handleGoogle handles POST /api/google. Gemini authenticates with a query
// parameter and selects streaming by route, so apiKey, model, and stream
// all leave the forwarded body.
func (s *Server) handleGoogle(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	apiKey, _ := body["apiKey"].(string)
	if apiKey == "" {
		s.writeError(w, http.StatusBadRequest, msgAPIKeyRequired)
		return
	}
	model, _ := body["model"].(string)
	if model == "" {
		s.writeError(w, http.StatusBadRequest, msgModelRequired)
		return
	}
	stream := boolField(body, "stream")

	s.forward(w, r, upstreamRequest{
		url:     provider.GoogleGenerateURL(s.googleBase, model, apiKey, stream),
		headers: http.Header{},
		body:    forwardBody(body, "apiKey", "model", "stream"),
		stream:  stream,
	})
}

// handleLocal handles POST /api/local: an OpenAI-compatible endpoint chosen
// by the caller. The key is optional; local servers usually run open.
func (s *Server) handleLocal(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	baseURL, _ := body["baseUrl"].(string)
	if baseURL == "" {
		s.writeError(w, http.StatusBadRequest, msgBaseURLRequired)
		return
	}

	headers := http.Header{}
	if apiKey, _ := body["apiKey"].(string); apiKey != "" {
		headers.Set("Authorization", "Bearer "+apiKey)
	}

	s.forward(w, r, upstreamRequest{
		url:     provider.LocalChatURL(baseURL),
		headers: headers,
		body:    forwardBody(body, "baseUrl", "apiKey"),
		stream:  boolField(body, "stream"),
	})
}

// ============================================================================
// UPSTREAM FORWARDING
// ============================================================================

type upstreamRequest struct {
	url     string
	headers http.Header
	body    []byte
	stream  bool
}

// forward issues the upstream call and relays the response. The request
// context rides along, so a dropped client aborts the upstream fetch.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, u upstreamRequest) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, u.url, bytes.NewReader(u.body))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, upstreamFailure(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range u.headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, upstreamFailure(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.relayUpstreamError(w, resp)
		return
	}

	if u.stream {
		s.relaySSE(w, resp.Body)
		return
	}
	s.mirrorJSON(w, resp)
}

// relaySSE forwards the upstream byte stream unchanged. No re-framing: the
// client parses provider SSE conventions itself, and any transformation
// here would have to understand three event schemas.
func (s *Server) relaySSE(w http.ResponseWriter, upstream io.Reader) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := upstream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// mirrorJSON copies the upstream response through with its own content type
// and status.
func (s *Server) mirrorJSON(w http.ResponseWriter, resp *http.Response) {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// relayUpstreamError surfaces an upstream non-2xx with its status and the
// provider's message when one can be extracted.
func (s *Server) relayUpstreamError(w http.ResponseWriter, resp *http.Response) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	uerr := provider.ParseUpstreamError(resp.StatusCode, body)
	s.writeError(w, uerr.Status, uerr.Message)
}

// ============================================================================
// REQUEST HELPERS
// ============================================================================

// decodeBody parses the JSON request body into a generic object so fields
// the proxy does not know about still reach the provider.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", MaxRequestBodySize))
			return nil, false
		}
		s.writeError(w, http.StatusInternalServerError, "Invalid JSON body: "+err.Error())
		return nil, false
	}
	return body, true
}

// forwardBody re-serialises the request body minus the control fields the
// proxy consumed.
func forwardBody(body map[string]any, drop ...string) []byte {
	forward := make(map[string]any, len(body))
	for k, v := range body {
		forward[k] = v
	}
	for _, k := range drop {
		delete(forward, k)
	}
	data, _ := json.Marshal(forward)
	return data
}

// mergeBetaHeaders folds the request's betaHeaders object into the upstream
// header set.
func mergeBetaHeaders(headers http.Header, raw any) {
	m, ok := raw.(map[string]any)
	if !ok {
		return
	}
	for k, v := range m {
		if s, ok := v.(string); ok {
			headers.Set(k, s)
		}
	}
}

func boolField(body map[string]any, key string) bool {
	b, _ := body[key].(bool)
	return b
}

// upstreamFailure extracts a caller-safe message from a transport error.
// SECURITY: url.Error strings embed the full request URL, which for Gemini
// carries the API key in a query parameter; only the inner error may be
// surfaced or logged.
func upstreamFailure(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err.Error()
	}
	return err.Error()
}
