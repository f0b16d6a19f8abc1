// Package report prints merge reports and per-entry diffs
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/louib/keepass-merge/internal/vault"
)

// DefaultMask replaces protected values in diffs
const DefaultMask = "********"

// Presenter writes merge reports
type Presenter struct {
	// Mask replaces protected field values, DefaultMask when empty
	Mask string
}

// Render writes each warning on its own line, then one `<uuid> <type>` line
// per event, in report order
func (p *Presenter) Render(w io.Writer, report *vault.MergeReport) error {
	if report == nil {
		return nil
	}
	for _, warning := range report.Warnings {
		if _, err := fmt.Fprintln(w, warning); err != nil {
			return err
		}
	}
	for _, event := range report.Events {
		if _, err := fmt.Fprintf(w, "%s %s\n", event.ID, event.Type); err != nil {
			return err
		}
	}
	return nil
}

// RenderDiffs writes a line diff of every entry the report updated, from its
// state in before to its state in after
func (p *Presenter) RenderDiffs(w io.Writer, before, after *vault.Group, report *vault.MergeReport) error {
	if report == nil || before == nil || after == nil {
		return nil
	}
	old := entries(before)
	cur := entries(after)

	for _, event := range report.Events {
		if event.Type != vault.Updated {
			continue
		}
		a, ok := old[event.ID]
		if !ok {
			continue
		}
		b, ok := cur[event.ID]
		if !ok {
			continue
		}
		diff := p.diff(p.text(a), p.text(b))
		if diff == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "--- %s %s\n+++ %s %s\n%s", event.ID, a.Title(), event.ID, b.Title(), diff); err != nil {
			return err
		}
	}
	return nil
}

// text renders the fields of e one per line, sorted by name
func (p *Presenter) text(e *vault.Entry) string {
	mask := p.Mask
	if mask == "" {
		mask = DefaultMask
	}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		v := e.Fields[name]
		data := v.Data
		if v.Protected {
			data = mask
		}
		// Multi-line values keep one diff line per line
		for _, line := range strings.Split(data, "\n") {
			fmt.Fprintf(&b, "%s: %s\n", name, line)
		}
	}
	if len(e.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(e.Tags, ", "))
	}
	return b.String()
}

// diff returns a line diff with "-", "+" and " " prefixes, or "" if a and b
// are equal
func (p *Presenter) diff(a, b string) string {
	if a == b {
		return ""
	}

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(ca, cb, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				out.WriteByte('\n')
			}
		}
	}
	return out.String()
}

func entries(root *vault.Group) map[uuid.UUID]*vault.Entry {
	m := make(map[uuid.UUID]*vault.Entry)
	var walk func(g *vault.Group)
	walk = func(g *vault.Group) {
		for _, e := range g.Entries {
			m[e.UUID] = e
		}
		for _, c := range g.Groups {
			walk(c)
		}
	}
	walk(root)
	return m
}
