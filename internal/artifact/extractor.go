// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package artifact extracts tagged artifact regions from streamed
// assistant text.
package artifact

import (
	"strconv"
	"strings"

	"github.com/jeranaias/forgechat/internal/model"
)

const (
	openMarker  = "<artifact"
	closeMarker = "</artifact>"
	cdataOpen   = "<![CDATA["
	cdataClose  = "]]>"

	wsCutset = " \t\r\n"
)

// =============================================================================
// EVENTS
// =============================================================================

// EventKind discriminates extractor events.
type EventKind int

const (
	// EventOpened fires when an opening tag has been fully parsed.
	EventOpened EventKind = iota
	// EventAppended carries a new slice of body text.
	EventAppended
	// EventClosed fires on the closing marker, or synthesized at graceful
	// end of stream.
	EventClosed
)

// Event is one extractor emission. ID is set on every event; the remaining
// fields depend on Kind: Type/Metadata/Index on opened, Delta on appended,
// End on closed.
type Event struct {
	Kind     EventKind
	ID       string
	Type     model.ArtifactType
	Metadata map[string]string
	Index    int    // byte offset of the opening tag in the stream
	Delta    string // appended body text
	End      int    // byte offset just past the closing marker
}

// =============================================================================
// EXTRACTOR
// =============================================================================

type scanState int

const (
	stateOutside scanState = iota
	stateOpenTag
	stateBody
)

type cdataMode int

const (
	cdataUndecided cdataMode = iota
	cdataOn
	cdataOff
)

// Extractor is a resumable scanner over assistant output delivered in
// arbitrary chunks. It never rescans emitted text: each Write consumes what
// it can and retains only the tail that a tag or CDATA terminator could
// still be growing into. Emitted Appended deltas never contain wrapper
// bytes, so consumers may append them as-is.
type Extractor struct {
	emit func(Event)

	state scanState

	// Unconsumed text while outside a body or inside an open tag.
	buf  string
	base int // stream offset of buf[0]

	tagStart int // stream offset of the current artifact's '<'

	// Body accumulation.
	curID       string
	cdata       cdataMode
	leadTrim    bool
	pending     string
	pendingBase int // stream offset of pending[0]

	nextSynth int // monotonic counter for synthesized ids
}

// New creates an extractor that delivers events to emit. The callback runs
// synchronously inside Write and Finish.
func New(emit func(Event)) *Extractor {
	return &Extractor{emit: emit}
}

// Write feeds the next chunk of assistant text.
func (e *Extractor) Write(chunk string) {
	if chunk == "" {
		return
	}
	if e.state == stateBody {
		e.pending += chunk
	} else {
		e.buf += chunk
	}
	e.process()
}

// Finish marks a graceful end of stream. An open body is flushed and closed;
// an unterminated open tag is rejected and dropped as literal text.
func (e *Extractor) Finish() {
	switch e.state {
	case stateOpenTag:
		e.buf = ""
	case stateBody:
		final := e.pending
		if e.cdata == cdataOn {
			final = stripCDATATail(final)
		}
		if final != "" {
			e.emit(Event{Kind: EventAppended, ID: e.curID, Delta: final})
		}
		e.emit(Event{Kind: EventClosed, ID: e.curID, End: e.pendingBase + len(e.pending)})
	}
	e.reset(e.base + len(e.buf) + len(e.pending))
}

// Reset discards all scanner state without emitting anything. Used when the
// target conversation disappears mid-stream.
func (e *Extractor) Reset() {
	e.reset(0)
}

func (e *Extractor) reset(offset int) {
	e.state = stateOutside
	e.buf = ""
	e.base = offset
	e.pending = ""
	e.pendingBase = 0
	e.curID = ""
	e.cdata = cdataUndecided
	e.leadTrim = false
}

// =============================================================================
// SCANNING
// =============================================================================

func (e *Extractor) process() {
	for {
		switch e.state {
		case stateOutside:
			i := strings.Index(e.buf, openMarker)
			if i == -1 {
				// Retain only a tail that could grow into the marker.
				keep := partialSuffixLen(e.buf, openMarker)
				e.base += len(e.buf) - keep
				e.buf = e.buf[len(e.buf)-keep:]
				return
			}
			after := i + len(openMarker)
			if after >= len(e.buf) {
				// Marker sits at the very end; the next byte decides.
				e.base += i
				e.buf = e.buf[i:]
				return
			}
			if c := e.buf[after]; c != '>' && !isWS(c) {
				// Something like "<artifacts": not our tag.
				e.base += i + 1
				e.buf = e.buf[i+1:]
				continue
			}
			e.tagStart = e.base + i
			e.base += after
			e.buf = e.buf[after:]
			e.state = stateOpenTag

		case stateOpenTag:
			end, ok := findTagEnd(e.buf)
			if !ok {
				return
			}
			attrs := parseAttrs(e.buf[:end])
			id := attrs["id"]
			if id == "" {
				e.nextSynth++
				id = "art_" + strconv.Itoa(e.nextSynth)
			}
			typ := model.ParseArtifactType(attrs["type"])
			delete(attrs, "id")
			delete(attrs, "type")

			e.emit(Event{Kind: EventOpened, ID: id, Type: typ, Metadata: attrs, Index: e.tagStart})

			e.curID = id
			e.cdata = cdataUndecided
			e.leadTrim = false
			e.pendingBase = e.base + end + 1
			e.pending = e.buf[end+1:]
			e.buf = ""
			e.state = stateBody

		case stateBody:
			if !e.processBody() {
				return
			}
		}
	}
}

// processBody consumes pending body text. It returns true when the body
// closed and outside scanning should resume, false when more input is
// needed.
func (e *Extractor) processBody() bool {
	// Decide the CDATA mode from the first non-space bytes.
	if e.cdata == cdataUndecided {
		t := strings.TrimLeft(e.pending, wsCutset)
		switch {
		case t == "":
			return false
		case len(t) < len(cdataOpen):
			if strings.HasPrefix(cdataOpen, t) {
				return false
			}
			e.cdata = cdataOff
		case strings.HasPrefix(t, cdataOpen):
			e.cdata = cdataOn
			e.leadTrim = true
			drop := (len(e.pending) - len(t)) + len(cdataOpen)
			e.pendingBase += drop
			e.pending = t[len(cdataOpen):]
		default:
			e.cdata = cdataOff
		}
	}

	// The unwrap trims once, so leading whitespace inside the wrapper is
	// consumed before the first emission.
	if e.cdata == cdataOn && e.leadTrim {
		t := strings.TrimLeft(e.pending, wsCutset)
		e.pendingBase += len(e.pending) - len(t)
		e.pending = t
		if e.pending != "" {
			e.leadTrim = false
		}
	}

	if idx := strings.Index(e.pending, closeMarker); idx >= 0 {
		final := e.pending[:idx]
		if e.cdata == cdataOn {
			final = stripCDATATail(final)
		}
		if final != "" {
			e.emit(Event{Kind: EventAppended, ID: e.curID, Delta: final})
		}
		endOff := e.pendingBase + idx + len(closeMarker)
		e.emit(Event{Kind: EventClosed, ID: e.curID, End: endOff})

		rest := e.pending[idx+len(closeMarker):]
		e.state = stateOutside
		e.buf = rest
		e.base = endOff
		e.pending = ""
		e.curID = ""
		return true
	}

	hold := e.holdbackLen()
	if safe := len(e.pending) - hold; safe > 0 {
		e.emit(Event{Kind: EventAppended, ID: e.curID, Delta: e.pending[:safe]})
		e.pendingBase += safe
		e.pending = e.pending[safe:]
	}
	return false
}

// holdbackLen returns how many trailing bytes of pending must not be
// emitted yet because they could still belong to the CDATA terminator or
// the closing marker.
func (e *Extractor) holdbackLen() int {
	s := e.pending
	for start := 0; start < len(s); start++ {
		if couldBeTerminatorPrefix(s[start:], e.cdata == cdataOn) {
			return len(s) - start
		}
	}
	return 0
}

// couldBeTerminatorPrefix reports whether s could be the beginning of the
// body terminator: "</artifact>" in plain mode, or
// whitespace* ["]]>" whitespace*] "</artifact>" in CDATA mode.
func couldBeTerminatorPrefix(s string, cdata bool) bool {
	if !cdata {
		return len(s) < len(closeMarker) && strings.HasPrefix(closeMarker, s)
	}
	i := skipWS(s, 0)
	if i == len(s) {
		return true
	}
	if s[i] == ']' {
		j := matchAcross(s, i, cdataClose)
		if j == -1 {
			return false
		}
		if j == len(s) {
			return true
		}
		i = skipWS(s, j)
		if i == len(s) {
			return true
		}
	}
	rem := s[i:]
	return len(rem) < len(closeMarker) && strings.HasPrefix(closeMarker, rem)
}

// matchAcross matches pat starting at s[i]. It returns the index after the
// match, len(s) when s ends mid-pattern, and -1 on a mismatch.
func matchAcross(s string, i int, pat string) int {
	for k := 0; k < len(pat); k++ {
		if i == len(s) {
			return len(s)
		}
		if s[i] != pat[k] {
			return -1
		}
		i++
	}
	return i
}

// stripCDATATail removes the trailing "]]>" terminator and surrounding
// whitespace from the last unemitted body slice. A body that opened a CDATA
// section but never terminated it is flushed trimmed.
func stripCDATATail(s string) string {
	t := strings.TrimRight(s, wsCutset)
	if strings.HasSuffix(t, cdataClose) {
		t = strings.TrimRight(t[:len(t)-len(cdataClose)], wsCutset)
	}
	return t
}

// =============================================================================
// TAG PARSING
// =============================================================================

// findTagEnd locates the '>' that terminates the open tag, ignoring any '>'
// inside a quoted attribute value.
func findTagEnd(s string) (int, bool) {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i, true
		}
	}
	return 0, false
}

// parseAttrs scans key="value" pairs with either quote style. Malformed
// runs are skipped; attribute values are taken literally (the tag grammar
// does not XML-escape them).
func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	i := 0
	for i < len(s) {
		if isWS(s[i]) {
			i++
			continue
		}
		start := i
		for i < len(s) && isKeyByte(s[i]) {
			i++
		}
		if i == start {
			i++
			continue
		}
		key := s[start:i]
		i = skipWS(s, i)
		if i >= len(s) || s[i] != '=' {
			continue
		}
		i = skipWS(s, i+1)
		if i >= len(s) || (s[i] != '"' && s[i] != '\'') {
			continue
		}
		quote := s[i]
		i++
		vstart := i
		for i < len(s) && s[i] != quote {
			i++
		}
		if i >= len(s) {
			// Unterminated value: reject the pair. findTagEnd guarantees
			// this only happens for stray quotes before a bare '>'.
			break
		}
		attrs[key] = s[vstart:i]
		i++
	}
	return attrs
}

// partialSuffixLen returns the length of the longest proper suffix of s
// that is a prefix of pat.
func partialSuffixLen(s, pat string) int {
	max := len(pat) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(pat, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}

func isWS(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isKeyByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '_' || c == '-'
}

func skipWS(s string, i int) int {
	for i < len(s) && isWS(s[i]) {
		i++
	}
	return i
}
