// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the forgechat command-line interface.
//
// The CLI provides every terminal surface of the workbench:
//
//   - forgechat            full-screen TUI (default)
//   - forgechat chat       line-oriented REPL with slash commands
//   - forgechat ask        one-shot prompt, streams the reply to stdout
//   - forgechat serve      standalone provider proxy
//   - forgechat search     full-text search over saved conversations
//   - forgechat export     render a conversation to Markdown or JSON
//   - forgechat config     get / set / set-key / path
//   - forgechat version    build information
//
// Argument parsing is deliberately plain: a hand-rolled parser over
// os.Args, no framework. Commands dispatch through Parse, and every
// handler returns an error that maps to a stable exit code via
// GetExitCode.
package cli
