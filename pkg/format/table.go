package format

import (
	"fmt"
	"io"
	"strings"
)

const maxColumnWidth = 32

// Table renders fixed-width aligned columns, sorted by nothing beyond
// the order ProcessRecord saw them in (the pipeline is responsible for
// sorting rows before handing them to Flush, per the ORDER BY clause).
// It buffers every row until Flush, since column widths depend on
// every value that will appear in that column.
type Table struct {
	w       io.Writer
	title   string
	columns []string // explicit order, or nil to infer from the first row
	rows    []Row
}

func NewTable(w io.Writer, opts Options) *Table {
	return &Table{w: w, title: opts.Title, columns: opts.Args}
}

func (t *Table) ProcessRecord(row Row) error {
	if t.columns == nil {
		for _, c := range row.Columns {
			t.columns = append(t.columns, c.Name)
		}
	}
	t.rows = append(t.rows, row)
	return nil
}

func (t *Table) Flush() error {
	if t.title != "" {
		if _, err := fmt.Fprintln(t.w, t.title); err != nil {
			return err
		}
	}

	widths := make([]int, len(t.columns))
	headers := make([]string, len(t.columns))
	for i, c := range t.columns {
		headers[i] = clampMiddle(displayName(c), maxColumnWidth)
		widths[i] = len(headers[i])
	}

	cells := make([][]string, len(t.rows))
	for ri, row := range t.rows {
		cells[ri] = make([]string, len(t.columns))
		for ci, c := range t.columns {
			v, _ := row.Get(c)
			s := clampMiddle(v.Format(), maxColumnWidth)
			cells[ri][ci] = s
			if len(s) > widths[ci] {
				widths[ci] = len(s)
			}
		}
	}

	if err := writeRow(t.w, headers, widths); err != nil {
		return err
	}
	for _, row := range cells {
		if err := writeRow(t.w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(w io.Writer, cells []string, widths []int) error {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = padRight(c, widths[i])
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// clampMiddle shortens s to width by replacing its middle with "..",
// keeping the head and tail intact — more readable for long paths and
// symbol names than a trailing-ellipsis truncation.
func clampMiddle(s string, width int) string {
	if len(s) <= width || width < 5 {
		return s
	}
	keep := width - 2
	head := (keep + 1) / 2
	tail := keep - head
	return s[:head] + ".." + s[len(s)-tail:]
}
