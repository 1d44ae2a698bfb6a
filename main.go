// forgechat - a terminal chat workbench for Anthropic, Google, and local
// OpenAI-compatible models, with artifact capture and full-text search.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/forgechat/internal/cli"
	"github.com/jeranaias/forgechat/internal/ui/chat"
	"github.com/jeranaias/forgechat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.4.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with the cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	var err error
	switch cmd {
	case cli.CmdTUI:
		err = runTUI(args)
	case cli.CmdChat:
		err = cli.HandleChatCommand(args)
	case cli.CmdAsk:
		err = cli.HandleAsk(args)
	case cli.CmdServe:
		err = cli.HandleServe(args)
	case cli.CmdSearch:
		err = cli.HandleSearch(args)
	case cli.CmdExport:
		err = cli.HandleExport(args)
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args.Unknown)
		cli.PrintUsage()
		os.Exit(cli.ExitUsageError)
	}

	if err != nil {
		cli.DisplayError(err)
		os.Exit(cli.GetExitCode(err))
	}
}

// runTUI assembles the full workbench and hands it to the chat surface.
func runTUI(args cli.Args) error {
	wb, err := cli.OpenWorkbench(args, cli.WorkbenchOptions{Watch: true, Index: true})
	if err != nil {
		return err
	}
	defer wb.Close()

	// The alternate screen and the global logger share the terminal.
	restore := cli.SilenceLogging()
	defer restore()

	styles.Apply(wb.Config.UI.Theme)

	return chat.Run(chat.Options{
		Store:        wb.Store,
		Sender:       wb.Adapter,
		Provider:     wb.Provider,
		Config:       wb.Config,
		Version:      Version,
		BuildRequest: wb.BuildRequest,
		SyncIndex:    wb.SyncIndex,
	})
}
