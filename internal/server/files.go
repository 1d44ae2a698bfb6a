// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the local HTTP proxy that fronts the LLM providers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/jeranaias/forgechat/internal/provider"
)

// ============================================================================
// FILE FETCH HANDLER
// ============================================================================

// handleFiles handles POST /api/anthropic/files. Code execution runs leave
// output files on the provider side; this route fetches their metadata or
// downloads them with a browser-friendly disposition.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req provider.FileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Invalid JSON body: "+err.Error())
		return
	}

	if req.APIKey == "" {
		s.writeError(w, http.StatusUnauthorized, msgAPIKeyRequired)
		return
	}
	if req.FileID == "" {
		s.writeError(w, http.StatusBadRequest, msgFileIDRequired)
		return
	}

	switch req.Action {
	case provider.FileMetadata:
		s.fileMetadata(w, r, req)
	case provider.FileDownload, "":
		s.fileDownload(w, r, req)
	default:
		s.writeError(w, http.StatusBadRequest, msgInvalidAction)
	}
}

// fileGet issues an authenticated GET against the files API.
func (s *Server) fileGet(ctx context.Context, url, apiKey string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", provider.AnthropicVersion)
	req.Header.Set("anthropic-beta", provider.AnthropicFilesBeta)
	return s.client.Do(req)
}

// fileMetadata passes the upstream metadata record through.
func (s *Server) fileMetadata(w http.ResponseWriter, r *http.Request, req provider.FileRequest) {
	resp, err := s.fileGet(r.Context(), provider.AnthropicFileURL(s.anthropicBase, req.FileID), req.APIKey)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, upstreamFailure(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.relayUpstreamError(w, resp)
		return
	}
	s.mirrorJSON(w, resp)
}

// fileDownload serves the raw content as an attachment. The filename drives
// the Content-Type and the attachment name; a failed metadata fetch falls
// back to a generic name rather than failing the download.
func (s *Server) fileDownload(w http.ResponseWriter, r *http.Request, req provider.FileRequest) {
	filename := provider.FallbackFilename(req.FileID)
	if meta, err := s.fileGet(r.Context(), provider.AnthropicFileURL(s.anthropicBase, req.FileID), req.APIKey); err == nil {
		if meta.StatusCode >= 200 && meta.StatusCode <= 299 {
			var fm provider.FileMetadataResponse
			if derr := json.NewDecoder(meta.Body).Decode(&fm); derr == nil && fm.Filename != "" {
				filename = fm.Filename
			}
		}
		meta.Body.Close()
	}

	resp, err := s.fileGet(r.Context(), provider.AnthropicFileContentURL(s.anthropicBase, req.FileID), req.APIKey)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, upstreamFailure(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.relayUpstreamError(w, resp)
		return
	}

	// Content-Length is part of the contract, so the body is buffered
	// rather than streamed.
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, upstreamFailure(err))
		return
	}

	w.Header().Set("Content-Type", provider.ContentTypeForFilename(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}
