// Package format implements the record-stream renderers (component
// I): table, tree, the streaming text forms (expand, user format,
// one-JSON-object-per-record), and the two buffered JSON shapes
// (split, object). The on-disk stream re-emission formatter ("cali")
// lives in pkg/stream's Writer instead of here, since it operates at
// the node/snapshot level rather than on flattened output rows — see
// DESIGN.md.
package format

import (
	"strings"

	"github.com/LLNL/caliper-go/pkg/variant"
)

// Column is one named value in an output row.
type Column struct {
	Name  string
	Value variant.Value
}

// Row is one record's worth of selected/aggregated output columns, in
// display order.
type Row struct {
	Columns []Column
}

// Get returns the first column's value by name.
func (r Row) Get(name string) (variant.Value, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c.Value, true
		}
	}
	return variant.Empty, false
}

// Formatter renders a sequence of rows. ProcessRecord is called once
// per row in query-sort order already applied by the caller (see
// pkg/pipeline); Flush writes any buffered state and must be called
// exactly once, after the last ProcessRecord.
type Formatter interface {
	ProcessRecord(row Row) error
	Flush() error
}

// Options configures a formatter at construction time: optional title
// and the raw FORMAT-clause positional arguments (column names for
// table, path attributes for tree, the template string for format).
type Options struct {
	Title      string
	Args       []string
	PrettyJSON bool
}

func displayName(col string) string { return strings.ReplaceAll(col, "#", ".") }
