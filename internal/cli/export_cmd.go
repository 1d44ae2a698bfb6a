// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"

	"github.com/jeranaias/forgechat/internal/export"
	"github.com/jeranaias/forgechat/internal/model"
)

// HandleExport handles `forgechat export <conv-id>`: render one saved
// conversation to a shareable document. --stdout writes the document to
// stdout for piping instead of a file.
func HandleExport(args Args) error {
	p := NewArgParser(args.Raw)
	if p.PositionalCount() == 0 {
		return ErrMissingArgument("conversation id", "forgechat export conv_01… --format md")
	}

	w, err := OpenWorkbench(args, WorkbenchOptions{})
	if err != nil {
		return err
	}
	defer w.Close()

	conv, err := resolveConversation(w, p.Positional(0))
	if err != nil {
		return err
	}

	if p.BoolFlag("stdout") {
		f, err := export.ParseFormat(p.FlagOrDefault("format", "md"))
		if err != nil {
			return &UsageError{Message: err.Error()}
		}
		exp, err := export.New(f)
		if err != nil {
			return err
		}
		data, err := exp.Export(conv, w.Store.Artifacts(conv.ID))
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	path, err := exportConversationTo(w, conv, p.FlagOrDefault("format", "md"), p.FlagOrDefault("out", "."))
	if err != nil {
		return err
	}
	if args.Quiet {
		fmt.Println(path)
	} else {
		fmt.Println(SuccessStyle.Render("exported"), ValueStyle.Render(path))
	}
	return nil
}

// exportConversationTo renders conv into dir and returns the written path.
func exportConversationTo(w *Workbench, conv *model.Conversation, format, dir string) (string, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return "", &UsageError{Message: err.Error()}
	}
	exp, err := export.New(f)
	if err != nil {
		return "", err
	}
	return export.ExportToDir(exp, conv, w.Store.Artifacts(conv.ID), dir)
}
