package format

import (
	"fmt"
	"io"
)

// New constructs the Formatter named by a FORMAT clause. "cali" is not
// handled here: it operates on raw snapshots via pkg/stream.Writer
// rather than on Row, so pkg/pipeline special-cases it before ever
// reaching this registry.
func New(name string, w io.Writer, opts Options) (Formatter, error) {
	switch name {
	case "expand":
		return NewExpand(w, opts), nil
	case "format":
		return NewUserFormat(w, opts)
	case "json":
		return NewJSONRecords(w, opts), nil
	case "json-split":
		return NewJSONSplit(w, opts), nil
	case "json-object":
		return NewJSONObject(w, opts), nil
	case "table":
		return NewTable(w, opts), nil
	case "tree":
		return NewTree(w, opts), nil
	default:
		return nil, fmt.Errorf("format: unknown formatter %q", name)
	}
}
