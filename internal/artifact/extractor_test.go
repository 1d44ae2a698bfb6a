// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package artifact extracts tagged artifact regions from streamed
// assistant text.
package artifact

import (
	"strings"
	"testing"

	"github.com/jeranaias/forgechat/internal/model"
)

// collect feeds chunks through a fresh extractor and returns the raw events.
func collect(t *testing.T, chunks ...string) []Event {
	t.Helper()
	var events []Event
	ex := New(func(ev Event) {
		events = append(events, ev)
	})
	for _, c := range chunks {
		ex.Write(c)
	}
	ex.Finish()
	return events
}

// flat is an event stream with appended deltas coalesced per artifact run,
// used to compare chunkings.
type flat struct {
	kind EventKind
	id   string
	typ  model.ArtifactType
	meta string
	text string
	pos  int
}

func flatten(events []Event) []flat {
	var out []flat
	for _, ev := range events {
		switch ev.Kind {
		case EventAppended:
			if n := len(out); n > 0 && out[n-1].kind == EventAppended && out[n-1].id == ev.ID {
				out[n-1].text += ev.Delta
				continue
			}
			out = append(out, flat{kind: EventAppended, id: ev.ID, text: ev.Delta})
		case EventOpened:
			out = append(out, flat{kind: EventOpened, id: ev.ID, typ: ev.Type, meta: metaString(ev.Metadata), pos: ev.Index})
		case EventClosed:
			out = append(out, flat{kind: EventClosed, id: ev.ID, pos: ev.End})
		}
	}
	return out
}

func metaString(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// small maps; insertion-order independence via sort
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(m[k])
		b.WriteString(";")
	}
	return b.String()
}

func flatsEqual(a, b []flat) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// CONTRACT SCENARIOS
// =============================================================================

func TestExtractor_CDATAAcrossChunks(t *testing.T) {
	events := collect(t,
		"before <artifact id=\"x\" type=\"co",
		"de\" language=\"py\"><![CDATA[pri",
		"nt(1)]]></artifact> after",
	)

	got := flatten(events)
	if len(got) != 3 {
		t.Fatalf("got %d coalesced events, want 3: %+v", len(got), got)
	}
	if got[0].kind != EventOpened || got[0].id != "x" || got[0].typ != model.ArtifactCode {
		t.Errorf("opened = %+v, want id x type code", got[0])
	}
	if got[0].meta != "language=py;" {
		t.Errorf("metadata = %q, want language=py", got[0].meta)
	}
	if got[0].pos != 7 {
		t.Errorf("opened index = %d, want 7", got[0].pos)
	}
	if got[1].kind != EventAppended || got[1].text != "print(1)" {
		t.Errorf("appended = %+v, want print(1)", got[1])
	}
	if got[2].kind != EventClosed || got[2].id != "x" {
		t.Errorf("closed = %+v", got[2])
	}
}

func TestExtractor_UnclosedSealedOnFinish(t *testing.T) {
	var events []Event
	ex := New(func(ev Event) { events = append(events, ev) })
	ex.Write("<artifact id=\"y\" type=\"html\"><p>hi")

	got := flatten(events)
	if len(got) != 2 {
		t.Fatalf("got %d events before finish, want opened+appended: %+v", len(got), got)
	}
	if got[0].kind != EventOpened || got[0].id != "y" || got[0].typ != model.ArtifactHTML {
		t.Errorf("opened = %+v", got[0])
	}
	if got[1].kind != EventAppended || got[1].text != "<p>hi" {
		t.Errorf("appended = %+v, want verbatim <p>hi", got[1])
	}

	ex.Finish()
	got = flatten(events)
	if last := got[len(got)-1]; last.kind != EventClosed || last.id != "y" {
		t.Errorf("finish did not synthesize closed: %+v", got)
	}
}

func TestExtractor_NoCDATAVerbatim(t *testing.T) {
	events := collect(t, "<artifact id=\"v\" type=\"code\">  x := 1  </artifact>")
	got := flatten(events)
	if len(got) != 3 {
		t.Fatalf("events = %+v", got)
	}
	if got[1].text != "  x := 1  " {
		t.Errorf("content = %q, want verbatim with whitespace", got[1].text)
	}
}

func TestExtractor_CDATAWhitespaceTrimmedOnce(t *testing.T) {
	events := collect(t, "<artifact id=\"w\" type=\"code\">\n  <![CDATA[\n  body text\n  ]]>\n</artifact>")
	got := flatten(events)
	if len(got) != 3 {
		t.Fatalf("events = %+v", got)
	}
	if got[1].text != "body text" {
		t.Errorf("content = %q, want %q", got[1].text, "body text")
	}
}

func TestExtractor_SingleQuotedAttributes(t *testing.T) {
	events := collect(t, "<artifact id='q' type='code' language='go'>a</artifact>")
	got := flatten(events)
	if len(got) != 3 || got[0].id != "q" || got[0].meta != "language=go;" {
		t.Fatalf("single-quote parse failed: %+v", got)
	}
}

func TestExtractor_QuotedGreaterThanInAttribute(t *testing.T) {
	events := collect(t, `<artifact id="g" type="code" title="a > b">x</artifact>`)
	got := flatten(events)
	if len(got) != 3 {
		t.Fatalf("events = %+v", got)
	}
	if got[0].meta != "title=a > b;" {
		t.Errorf("metadata = %q, want title to keep the quoted '>'", got[0].meta)
	}
	if got[1].text != "x" {
		t.Errorf("content = %q, want x", got[1].text)
	}
}

func TestExtractor_UnknownMetadataPreserved(t *testing.T) {
	events := collect(t, `<artifact id="m" type="code" language="py" custom="keep">x</artifact>`)
	got := flatten(events)
	if got[0].meta != "custom=keep;language=py;" {
		t.Errorf("metadata = %q, want unknown keys preserved", got[0].meta)
	}
}

func TestExtractor_SynthesizedIDs(t *testing.T) {
	events := collect(t, "<artifact type=\"code\">a</artifact><artifact type=\"code\">b</artifact>")
	got := flatten(events)
	if len(got) != 6 {
		t.Fatalf("events = %+v", got)
	}
	if got[0].id != "art_1" || got[3].id != "art_2" {
		t.Errorf("synthesized ids = %q, %q, want art_1, art_2", got[0].id, got[3].id)
	}
}

func TestExtractor_NestedOpenerIsLiteral(t *testing.T) {
	events := collect(t, `<artifact id="outer" type="other">text <artifact id="inner"> more</artifact>`)
	got := flatten(events)
	if len(got) != 3 {
		t.Fatalf("nested opener emitted extra events: %+v", got)
	}
	want := `text <artifact id="inner"> more`
	if got[1].text != want {
		t.Errorf("content = %q, want %q", got[1].text, want)
	}
}

func TestExtractor_UnterminatedAttributeRejected(t *testing.T) {
	// The quote never closes and no unquoted '>' follows, so the fragment
	// is not a tag and no artifact is born.
	events := collect(t, `before <artifact id="x type="code"`)
	if len(events) != 0 {
		t.Errorf("unterminated tag emitted events: %+v", events)
	}
}

func TestExtractor_FalseTagNamesIgnored(t *testing.T) {
	events := collect(t, "see <artifacts> and <artifactory> here")
	if len(events) != 0 {
		t.Errorf("case/name variants emitted events: %+v", events)
	}
}

func TestExtractor_CaseSensitiveTagName(t *testing.T) {
	events := collect(t, "<Artifact id=\"x\" type=\"code\">a</Artifact>")
	if len(events) != 0 {
		t.Errorf("uppercase tag matched: %+v", events)
	}
}

func TestExtractor_MultipleArtifactsOrdered(t *testing.T) {
	text := `one <artifact id="a" type="code">1</artifact> two <artifact id="b" type="html">2</artifact> three`
	got := flatten(collect(t, text))
	if len(got) != 6 {
		t.Fatalf("events = %+v", got)
	}
	wantIDs := []string{"a", "a", "a", "b", "b", "b"}
	for i, ev := range got {
		if ev.id != wantIDs[i] {
			t.Errorf("event %d id = %q, want %q", i, ev.id, wantIDs[i])
		}
	}
	if got[2].pos >= got[3].pos {
		t.Errorf("close of a at %d not before open of b at %d", got[2].pos, got[3].pos)
	}
}

func TestExtractor_EmptyBody(t *testing.T) {
	got := flatten(collect(t, `<artifact id="e" type="code"></artifact>`))
	if len(got) != 2 {
		t.Fatalf("events = %+v", got)
	}
	if got[0].kind != EventOpened || got[1].kind != EventClosed {
		t.Errorf("want opened then closed, got %+v", got)
	}
}

func TestExtractor_ResetDiscardsState(t *testing.T) {
	var events []Event
	ex := New(func(ev Event) { events = append(events, ev) })
	ex.Write(`<artifact id="r" type="code">partial`)
	ex.Reset()
	ex.Finish()

	for _, ev := range events {
		if ev.Kind == EventClosed {
			t.Errorf("reset stream still closed: %+v", events)
		}
	}
}

// =============================================================================
// CHUNKING INVARIANCE
// =============================================================================

// Splitting the same text at every possible boundary must yield the same
// coalesced event stream as a single write.
func TestExtractor_ChunkingInvariance(t *testing.T) {
	corpus := []string{
		`before <artifact id="x" type="code" language="py"><![CDATA[print(1)]]></artifact> after`,
		`<artifact id="y" type="html"><p>hi</p></artifact>`,
		`a <artifact type="json">{"k": []}</artifact> b <artifact id="z" type="code">x]]y</artifact>`,
		`w <artifact id="n" type="code"><![CDATA[ a ]] b ]]></artifact>`,
		`text without any tags at all`,
		`almost <artifac but not quite`,
		`<artifact id="u" type="markdown"># head` + "\n\nbody",
	}

	for ci, text := range corpus {
		baseline := flatten(collect(t, text))

		for cut := 1; cut < len(text); cut++ {
			got := flatten(collect(t, text[:cut], text[cut:]))
			if !flatsEqual(baseline, got) {
				t.Fatalf("corpus %d split at %d diverged:\nbaseline %+v\ngot      %+v",
					ci, cut, baseline, got)
			}
		}
	}
}

func TestExtractor_ThreeWaySplits(t *testing.T) {
	text := `p <artifact id="x" type="code" language="py"><![CDATA[print(1)]]></artifact> s`
	baseline := flatten(collect(t, text))

	for i := 1; i < len(text)-1; i += 3 {
		for j := i + 1; j < len(text); j += 3 {
			got := flatten(collect(t, text[:i], text[i:j], text[j:]))
			if !flatsEqual(baseline, got) {
				t.Fatalf("split (%d,%d) diverged:\nbaseline %+v\ngot      %+v", i, j, baseline, got)
			}
		}
	}
}

// =============================================================================
// REGIONS AND STRIP
// =============================================================================

func TestRegions(t *testing.T) {
	text := `intro <artifact id="a" type="code" title="Demo">body</artifact> outro`
	regions := Regions(text)
	if len(regions) != 1 {
		t.Fatalf("regions = %+v", regions)
	}
	r := regions[0]
	if r.ID != "a" || r.Type != model.ArtifactCode {
		t.Errorf("region = %+v", r)
	}
	if text[r.Start:r.Start+9] != "<artifact" {
		t.Errorf("region start %d does not point at the opening tag", r.Start)
	}
	if !strings.HasPrefix(text[r.End:], " outro") {
		t.Errorf("region end %d does not sit past the closing tag", r.End)
	}
}

func TestRegions_UnclosedExtendsToEnd(t *testing.T) {
	text := `x <artifact id="u" type="code">dangling`
	regions := Regions(text)
	if len(regions) != 1 {
		t.Fatalf("regions = %+v", regions)
	}
	if regions[0].End != len(text) {
		t.Errorf("End = %d, want %d", regions[0].End, len(text))
	}
}

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "title label",
			text: `a <artifact id="x" type="code" title="Demo">body</artifact> b`,
			want: "a [artifact: Demo] b",
		},
		{
			name: "filename label",
			text: `<artifact id="x" type="code" filename="m.py">body</artifact>`,
			want: "[artifact: m.py]",
		},
		{
			name: "id label",
			text: `<artifact id="x" type="code">body</artifact>`,
			want: "[artifact: x]",
		},
		{
			name: "no artifacts",
			text: "plain prose",
			want: "plain prose",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Strip(tc.text); got != tc.want {
				t.Errorf("Strip = %q, want %q", got, tc.want)
			}
		})
	}
}
