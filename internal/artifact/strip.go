// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package artifact extracts tagged artifact regions from streamed
// assistant text.
package artifact

import (
	"strings"

	"github.com/jeranaias/forgechat/internal/model"
)

// Region describes one artifact occurrence inside a complete text,
// including the byte range of the whole tagged block.
type Region struct {
	ID       string
	Type     model.ArtifactType
	Metadata map[string]string
	Start    int
	End      int
}

// Label returns the human label used where the region is collapsed.
func (r Region) Label() string {
	if t := r.Metadata[model.MetaTitle]; t != "" {
		return t
	}
	if f := r.Metadata[model.MetaFilename]; f != "" {
		return f
	}
	return r.ID
}

// Regions scans a complete text and returns its artifact regions in source
// order. An unclosed trailing artifact extends to the end of the text.
func Regions(text string) []Region {
	var regions []Region
	var open *Region
	ex := New(func(ev Event) {
		switch ev.Kind {
		case EventOpened:
			open = &Region{ID: ev.ID, Type: ev.Type, Metadata: ev.Metadata, Start: ev.Index}
		case EventClosed:
			if open != nil {
				open.End = ev.End
				regions = append(regions, *open)
				open = nil
			}
		}
	})
	ex.Write(text)
	ex.Finish()
	return regions
}

// Strip replaces every artifact region in text with a one-line placeholder
// so prose renders without the raw tag blocks.
func Strip(text string) string {
	regions := Regions(text)
	if len(regions) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, r := range regions {
		b.WriteString(text[last:r.Start])
		b.WriteString("[artifact: ")
		b.WriteString(r.Label())
		b.WriteString("]")
		last = r.End
	}
	b.WriteString(text[last:])
	return b.String()
}
