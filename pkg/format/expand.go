package format

import (
	"fmt"
	"io"
	"strings"
)

// Expand writes one comma-separated key=value line per record,
// immediately, with no buffering — the streaming counterpart to
// Table's buffered alignment.
type Expand struct {
	w io.Writer
}

func NewExpand(w io.Writer, opts Options) *Expand {
	return &Expand{w: w}
}

func (e *Expand) ProcessRecord(row Row) error {
	parts := make([]string, len(row.Columns))
	for i, c := range row.Columns {
		parts[i] = fmt.Sprintf("%s=%s", displayName(c.Name), c.Value.Format())
	}
	_, err := fmt.Fprintln(e.w, strings.Join(parts, ","))
	return err
}

func (e *Expand) Flush() error { return nil }
