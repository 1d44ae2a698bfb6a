// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARGUMENT PARSER
// =============================================================================

// ArgParser splits a subcommand's raw arguments into flags and positionals.
// Supported forms: --flag=value, --flag value, and bare --flag (boolean).
// A token after a flag that itself starts with "-" is not consumed as the
// flag's value.
type ArgParser struct {
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
	raw        []string
}

// NewArgParser parses raw subcommand arguments.
func NewArgParser(raw []string) *ArgParser {
	p := &ArgParser{
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
		raw:       raw,
	}

	i := 0
	for i < len(raw) {
		tok := raw[i]
		if !strings.HasPrefix(tok, "--") {
			p.positional = append(p.positional, tok)
			i++
			continue
		}

		name := strings.TrimPrefix(tok, "--")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			key, val := name[:eq], name[eq+1:]
			if b, err := strconv.ParseBool(val); err == nil {
				p.boolFlags[key] = b
			} else {
				p.flags[key] = val
			}
			i++
			continue
		}

		if i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = raw[i+1]
			i += 2
			continue
		}

		p.boolFlags[name] = true
		i++
	}
	return p
}

// Flag returns the named flag's value and whether it was set.
func (p *ArgParser) Flag(name string) (string, bool) {
	v, ok := p.flags[name]
	return v, ok
}

// FlagOrDefault returns the named flag's value, or def when unset.
func (p *ArgParser) FlagOrDefault(name, def string) string {
	if v, ok := p.flags[name]; ok {
		return v
	}
	return def
}

// FlagInt parses the named flag as an integer. Unset flags return def;
// set-but-malformed flags return an error.
func (p *ArgParser) FlagInt(name string, def int) (int, error) {
	v, ok := p.flags[name]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("flag --%s: %q is not a number", name, v)
	}
	return n, nil
}

// BoolFlag reports whether the named boolean flag is set true.
func (p *ArgParser) BoolFlag(name string) bool {
	return p.boolFlags[name]
}

// HasFlag reports whether the flag appeared in any form.
func (p *ArgParser) HasFlag(name string) bool {
	if _, ok := p.flags[name]; ok {
		return true
	}
	_, ok := p.boolFlags[name]
	return ok
}

// Positional returns the i-th positional argument, or "" when absent.
func (p *ArgParser) Positional(i int) string {
	if i < 0 || i >= len(p.positional) {
		return ""
	}
	return p.positional[i]
}

// PositionalFrom returns positionals from index i onward.
func (p *ArgParser) PositionalFrom(i int) []string {
	if i < 0 || i >= len(p.positional) {
		return nil
	}
	return p.positional[i:]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// JoinPositional returns all positionals joined by single spaces. Prompts
// and search queries arrive this way when the shell has already split them.
func (p *ArgParser) JoinPositional() string {
	return strings.Join(p.positional, " ")
}

// Raw returns the unparsed argument slice.
func (p *ArgParser) Raw() []string {
	return p.raw
}
