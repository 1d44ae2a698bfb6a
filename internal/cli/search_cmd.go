// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
)

// defaultSearchLimit bounds `forgechat search` output.
const defaultSearchLimit = 20

// HandleSearch handles `forgechat search <query>`: full-text search over
// saved conversations, one hit per block, best match first.
func HandleSearch(args Args) error {
	p := NewArgParser(args.Raw)
	query := p.JoinPositional()
	if query == "" {
		return ErrMissingArgument("query", "forgechat search worker pool")
	}
	limit, err := p.FlagInt("limit", defaultSearchLimit)
	if err != nil {
		return &UsageError{Message: err.Error()}
	}

	w, err := OpenWorkbench(args, WorkbenchOptions{Index: true})
	if err != nil {
		return err
	}
	defer w.Close()

	if w.Index == nil {
		return errors.New("search index unavailable")
	}
	if err := w.SyncIndex(); err != nil {
		return err
	}

	results, err := w.Index.Search(query, limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		if !args.Quiet {
			fmt.Println("no matches")
		}
		return nil
	}

	for _, r := range results {
		fmt.Printf("%s  %s\n", HighlightStyle.Render(r.Title),
			DimStyle.Render(fmt.Sprintf("%s · %s", r.ConversationID, r.Kind)))
		fmt.Printf("  %s\n", r.Snippet)
	}
	return nil
}
