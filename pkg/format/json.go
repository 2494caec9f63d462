package format

import (
	"encoding/json"
	"io"
)

// JSONRecords streams one JSON object per record (newline-delimited),
// the "json" formatter.
type JSONRecords struct {
	w      io.Writer
	enc    *json.Encoder
	pretty bool
}

func NewJSONRecords(w io.Writer, opts Options) *JSONRecords {
	enc := json.NewEncoder(w)
	if opts.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return &JSONRecords{w: w, enc: enc, pretty: opts.PrettyJSON}
}

func (j *JSONRecords) ProcessRecord(row Row) error {
	return j.enc.Encode(rowToMap(row))
}

func (j *JSONRecords) Flush() error { return nil }

func rowToMap(row Row) map[string]interface{} {
	m := make(map[string]interface{}, len(row.Columns))
	for _, c := range row.Columns {
		m[displayName(c.Name)] = jsonValue(c)
	}
	return m
}

func jsonValue(c Column) interface{} {
	switch c.Value.Type().String() {
	case "int":
		i, _ := c.Value.AsInt()
		return i
	case "uint", "addr":
		u, _ := c.Value.AsUint()
		return u
	case "double":
		f, _ := c.Value.AsDouble()
		return f
	case "bool":
		b, _ := c.Value.AsBool()
		return b
	case "string":
		s, _ := c.Value.AsString()
		return s
	default:
		return c.Value.Format()
	}
}

// JSONSplit buffers every row, then emits one object at Flush:
// {columns, data, column_metadata}. It emits no "nodes" or "globals"
// member, since it only sees flattened rows, not raw tree nodes, and
// no caller adds them.
type JSONSplit struct {
	w    io.Writer
	rows []Row
}

func NewJSONSplit(w io.Writer, opts Options) *JSONSplit {
	return &JSONSplit{w: w}
}

func (j *JSONSplit) ProcessRecord(row Row) error {
	j.rows = append(j.rows, row)
	return nil
}

func (j *JSONSplit) Flush() error {
	var columns []string
	if len(j.rows) > 0 {
		for _, c := range j.rows[0].Columns {
			columns = append(columns, displayName(c.Name))
		}
	}

	data := make([][]interface{}, len(j.rows))
	for i, row := range j.rows {
		data[i] = make([]interface{}, len(row.Columns))
		for ci, c := range row.Columns {
			data[i][ci] = jsonValue(c)
		}
	}

	out := map[string]interface{}{
		"columns":         columns,
		"data":            data,
		"column_metadata": columnMetadata(columns),
	}
	enc := json.NewEncoder(j.w)
	return enc.Encode(out)
}

func columnMetadata(columns []string) []map[string]interface{} {
	meta := make([]map[string]interface{}, len(columns))
	for i, c := range columns {
		meta[i] = map[string]interface{}{"name": c, "is_value": true}
	}
	return meta
}

// JSONObject buffers every row, then emits {records, attributes,
// globals} at Flush — one record-per-object rather than the
// columnar/row-major layout JSONSplit uses.
type JSONObject struct {
	w    io.Writer
	rows []Row
}

func NewJSONObject(w io.Writer, opts Options) *JSONObject {
	return &JSONObject{w: w}
}

func (j *JSONObject) ProcessRecord(row Row) error {
	j.rows = append(j.rows, row)
	return nil
}

func (j *JSONObject) Flush() error {
	records := make([]map[string]interface{}, len(j.rows))
	attrSeen := map[string]bool{}
	var attrs []string
	for i, row := range j.rows {
		records[i] = rowToMap(row)
		for _, c := range row.Columns {
			name := displayName(c.Name)
			if !attrSeen[name] {
				attrSeen[name] = true
				attrs = append(attrs, name)
			}
		}
	}

	out := map[string]interface{}{
		"records":    records,
		"attributes": attrs,
		"globals":    map[string]interface{}{},
	}
	enc := json.NewEncoder(j.w)
	return enc.Encode(out)
}
