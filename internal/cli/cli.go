// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"runtime"
)

// Build metadata, overridden at link time via -ldflags.
var (
	// Version is the release version.
	Version = "dev"
	// GitCommit is the git commit hash.
	GitCommit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command identifies the top-level subcommand.
type Command int

const (
	// CmdTUI opens the full-screen chat interface (default).
	CmdTUI Command = iota
	// CmdChat starts the line-oriented REPL.
	CmdChat
	// CmdAsk sends a one-shot prompt and streams the reply to stdout.
	CmdAsk
	// CmdServe runs the provider proxy standalone.
	CmdServe
	// CmdSearch queries the full-text index.
	CmdSearch
	// CmdExport renders a conversation to a document.
	CmdExport
	// CmdConfig reads and writes configuration.
	CmdConfig
	// CmdVersion prints build information.
	CmdVersion
	// CmdHelp prints usage.
	CmdHelp
	// CmdUnknown is an unrecognised command; the raw name rides in Args.
	CmdUnknown
)

// Args carries parsed global flags plus the unconsumed remainder for the
// subcommand's own parser.
type Args struct {
	// Provider overrides the configured default provider for this run.
	Provider string
	// Model overrides the configured model for the selected provider.
	Model string
	// Quiet suppresses informational output.
	Quiet bool
	// Raw holds everything after the subcommand name.
	Raw []string
	// Unknown holds the unrecognised command name when Command is CmdUnknown.
	Unknown string
}

// =============================================================================
// USAGE
// =============================================================================

const usageText = `forgechat - multi-provider AI chat workbench for the terminal

Usage:
  forgechat                       Open the chat TUI
  forgechat chat                  Line-oriented REPL (slash commands, history)
  forgechat ask <prompt>          One-shot prompt, streams the reply to stdout
  forgechat serve [--port N]      Run the provider proxy standalone
  forgechat search <query>        Full-text search over saved conversations
  forgechat export <conv-id>      Export a conversation (--format md|json)
  forgechat config <op>           get | set | set-key | path
  forgechat version               Show version information
  forgechat help                  Show this help

Global flags:
  --provider <name>   Use anthropic, google, or local for this run
  --model <id>        Override the model for the selected provider
  -q, --quiet         Suppress informational output

Examples:
  forgechat ask "explain io.Pipe in two sentences"
  forgechat ask --provider local --file main.go "review this"
  forgechat search worker pool --limit 5
  forgechat export conv_01HZXK... --format md --out ./docs
  forgechat config set-key anthropic

Environment:
  FORGECHAT_ANTHROPIC_API_KEY   Overrides the stored Anthropic key
  FORGECHAT_GOOGLE_API_KEY      Overrides the stored Google key
  FORGECHAT_STATE_DIR           Overrides the state directory
  NO_COLOR / FORCE_COLOR        Disable / force ANSI colour output

Version: %s
`

// PrintUsage writes the help text to stdout.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion writes build information to stdout.
func PrintVersion() {
	fmt.Printf("forgechat %s\n", Version)
	fmt.Printf("  commit: %s\n", GitCommit)
	fmt.Printf("  built:  %s\n", BuildDate)
	fmt.Printf("  go:     %s\n", runtime.Version())
}

// =============================================================================
// PARSING
// =============================================================================

// Parse reads os.Args and returns the command plus parsed arguments.
func Parse() (Command, Args) {
	return parseArgs(os.Args[1:])
}

// parseArgs is the testable core of Parse.
func parseArgs(raw []string) (Command, Args) {
	var args Args
	rest := parseGlobalFlags(raw, &args)

	if len(rest) == 0 {
		return CmdTUI, args
	}

	cmd, rest := rest[0], rest[1:]
	args.Raw = rest

	switch cmd {
	case "tui":
		return CmdTUI, args
	case "chat":
		return CmdChat, args
	case "ask":
		return CmdAsk, args
	case "serve":
		return CmdServe, args
	case "search":
		return CmdSearch, args
	case "export":
		return CmdExport, args
	case "config":
		return CmdConfig, args
	case "version", "-v", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	default:
		args.Unknown = cmd
		return CmdUnknown, args
	}
}

// parseGlobalFlags consumes leading global flags and returns the remainder.
// Globals stop at the first non-flag token so subcommands keep their own
// flag namespace.
func parseGlobalFlags(raw []string, args *Args) []string {
	i := 0
	for i < len(raw) {
		switch tok := raw[i]; {
		case tok == "-q" || tok == "--quiet":
			args.Quiet = true
			i++
		case tok == "--provider" && i+1 < len(raw):
			args.Provider = raw[i+1]
			i += 2
		case hasEqPrefix(tok, "--provider"):
			args.Provider = eqValue(tok)
			i++
		case tok == "--model" && i+1 < len(raw):
			args.Model = raw[i+1]
			i += 2
		case hasEqPrefix(tok, "--model"):
			args.Model = eqValue(tok)
			i++
		default:
			return raw[i:]
		}
	}
	return nil
}

func hasEqPrefix(tok, flag string) bool {
	return len(tok) > len(flag)+1 && tok[:len(flag)+1] == flag+"="
}

func eqValue(tok string) string {
	for i := 0; i < len(tok); i++ {
		if tok[i] == '=' {
			return tok[i+1:]
		}
	}
	return ""
}
