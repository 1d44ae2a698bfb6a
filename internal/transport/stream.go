// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/jeranaias/forgechat/internal/provider"
)

// StreamError reports a failure mid-stream, preserving how much text had
// already been delivered before the break.
type StreamError struct {
	Received int // bytes of assistant text delivered before the error
	Err      error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Received > 0 {
		return fmt.Sprintf("stream error (partial content received: %d bytes): %v", e.Received, e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// Stream posts req with streaming enabled and invokes onDelta for every
// text delta in arrival order. It returns when the provider signals
// completion, the stream ends, or ctx is cancelled. Deltas already
// delivered stay delivered: a mid-stream failure comes back as a
// StreamError wrapping the cause.
//
// The proxy relays upstream bytes verbatim, so events follow the
// provider's own convention and are demultiplexed here via ParseSSE.
func (c *Client) Stream(ctx context.Context, p provider.Provider, req *provider.ChatRequest, onDelta func(string)) error {
	r := *req
	r.Stream = true

	resp, err := c.post(ctx, c.stream, p, &r, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := readResponse(resp)
		if err != nil {
			return err
		}
		return decodeProxyError(resp.StatusCode, body)
	}

	return c.consume(ctx, p, resp.Body, onDelta)
}

// consume pumps SSE events from body until the stream terminates.
func (c *Client) consume(ctx context.Context, p provider.Provider, body io.Reader, onDelta func(string)) error {
	reader := NewSSEReader(body)
	received := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		eventType, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return &StreamError{Received: received, Err: err}
		}

		delta, done, err := ParseSSE(p, eventType, data)
		if err != nil {
			// Malformed events are skipped, not fatal.
			continue
		}
		if delta != "" {
			received += len(delta)
			onDelta(delta)
		}
		if done {
			return nil
		}
	}
}
