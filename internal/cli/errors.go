// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/transport"
)

// =============================================================================
// EXIT CODES
// =============================================================================

// Exit codes are stable so scripts can branch on failure class.
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNotFoundError = 5
	ExitNetworkError  = 6
	ExitTimeoutError  = 7
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports arguments the command could not accept.
type UsageError struct {
	Message string
	Hint    string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Hint)
	}
	return e.Message
}

// NotFoundError reports a missing conversation, artifact, or config key.
type NotFoundError struct {
	Kind string
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ErrMissingArgument builds the standard missing-argument usage error.
func ErrMissingArgument(name, hint string) error {
	return &UsageError{Message: "missing argument: " + name, Hint: hint}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps an error to its exit code. Typed errors decide first;
// message sniffing catches wrapped errors that lost their type.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return ExitNotFoundError
	}
	var validation config.ValidateErrors
	if errors.As(err, &validation) {
		return ExitConfigError
	}

	switch {
	case errors.Is(err, transport.ErrAuthFailed):
		return ExitAuthError
	case errors.Is(err, transport.ErrRateLimited):
		return ExitNetworkError
	case errors.Is(err, transport.ErrNoOrigin):
		return ExitConfigError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key"):
		return ExitAuthError
	case strings.Contains(msg, "not found"):
		return ExitNotFoundError
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return ExitTimeoutError
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return ExitNetworkError
	case strings.Contains(msg, "config"):
		return ExitConfigError
	}
	return ExitGeneralError
}

// DisplayError writes err to stderr in the standard format.
func DisplayError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err.Error())
}
