package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"mdstore/internal/domain"
)

// printTable writes rows under headers, aligned. On a terminal the last
// column is cut to the screen width.
func printTable(w io.Writer, headers []string, rows [][]string) error {
	if len(headers) == 0 {
		return nil
	}
	width := 0
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = cols
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		if width > 0 && len(row) > 0 {
			row[len(row)-1] = truncate(row[len(row)-1], width/3)
		}
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

var targetHeaders = []string{"ID", "KIND", "NAME", "PARENT", "LOCATION", "DESCRIPTION"}

func targetRow(t *domain.Target) []string {
	parent := "-"
	if p, ok := t.Parent(); ok {
		parent = domain.FormatID(p)
	}
	return []string{
		domain.FormatID(t.ID()),
		t.Kind().String(),
		t.Name(),
		parent,
		formatLocation(t.Location()),
		t.Description(),
	}
}

// formatLocation renders TYPE first, then the other properties sorted.
func formatLocation(loc domain.Location) string {
	if loc.Len() == 0 {
		return "-"
	}
	props := loc.Properties()
	var parts []string
	if typ, ok := props[domain.LocationTypeKey]; ok {
		parts = append(parts, typ)
		delete(props, domain.LocationTypeKey)
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+props[k])
	}
	return strings.Join(parts, " ")
}

// targetJSON is the machine-readable form of a target.
type targetJSON struct {
	ID          domain.ID         `json:"id"`
	Kind        string            `json:"kind"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Parent      *domain.ID        `json:"parent,omitempty"`
	Location    map[string]string `json:"location,omitempty"`
}

func toTargetJSON(t *domain.Target) targetJSON {
	out := targetJSON{ID: t.ID(), Kind: t.Kind().String(), Name: t.Name(), Description: t.Description()}
	if p, ok := t.Parent(); ok {
		out.Parent = &p
	}
	if loc := t.Location(); loc.Len() > 0 {
		out.Location = loc.Properties()
	}
	return out
}

func (o *rootOptions) printTargets(w io.Writer, ts []*domain.Target) error {
	if o.json() {
		out := make([]targetJSON, len(ts))
		for i, t := range ts {
			out[i] = toTargetJSON(t)
		}
		return printJSON(w, out)
	}
	rows := make([][]string, len(ts))
	for i, t := range ts {
		rows[i] = targetRow(t)
	}
	return printTable(w, targetHeaders, rows)
}

func (o *rootOptions) printTarget(w io.Writer, t *domain.Target) error {
	if o.json() {
		return printJSON(w, toTargetJSON(t))
	}
	return printTable(w, targetHeaders, [][]string{targetRow(t)})
}
