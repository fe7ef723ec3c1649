package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// maxColumnWidth bounds a column; longer cells are truncated with an ellipsis.
const maxColumnWidth = 40

// table renders aligned columns. Widths are measured in terminal cells so
// CJK titles line up with ASCII ones.
type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) add(cells ...any) {
	row := make([]string, len(t.header))
	for i := range row {
		if i < len(cells) {
			row[i] = fmt.Sprint(cells[i])
		}
	}
	t.rows = append(t.rows, row)
}

func (t *table) widths() []int {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			w := runewidth.StringWidth(cell)
			if w > maxColumnWidth {
				w = maxColumnWidth
			}
			if w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

func (t *table) render(w io.Writer) {
	if len(t.rows) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}

	widths := t.widths()
	line := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			cell = runewidth.Truncate(cell, widths[i], "…")
			if i == len(cells)-1 {
				parts[i] = cell
				continue
			}
			parts[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintln(w, "  "+strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(t.header)
	rule := make([]string, len(widths))
	for i, n := range widths {
		rule[i] = strings.Repeat("-", n)
	}
	line(rule)
	for _, row := range t.rows {
		line(row)
	}
}
