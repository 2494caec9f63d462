package stream

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	cerrors "github.com/LLNL/caliper-go/pkg/errors"
)

// Record is one parsed line: its kind plus the typed payload for that
// kind. Exactly one of Node/Ctx is populated, matching Kind.
type Record struct {
	Kind Kind
	Node NodeRecord
	Ctx  CtxRecord
}

// Reader reads node/ctx/globals records one line at a time.
type Reader struct {
	sc *bufio.Scanner
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader{sc: sc}
}

// Next reads and parses the next record, returning io.EOF once the
// underlying stream is exhausted.
func (r *Reader) Next() (Record, error) {
	for r.sc.Scan() {
		line := r.sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		return parseLine(line)
	}
	if err := r.sc.Err(); err != nil {
		return Record{}, cerrors.New(cerrors.CodeIoError, "stream", "Next", "read failed").Wrap(err)
	}
	return Record{}, io.EOF
}

// splitFields splits a line on unescaped commas.
func splitFields(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == ',':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

func parseLine(line string) (Record, error) {
	fields := splitFields(line)
	if len(fields) == 0 {
		return Record{}, malformed("empty record")
	}

	kv := make([][2]string, 0, len(fields))
	for _, f := range fields {
		eq := strings.IndexByte(f, '=')
		if eq < 0 {
			return Record{}, malformed("field without '=': " + f)
		}
		// The '=' split point must itself not be an escaped char; since
		// escaping only ever protects literal '=' inside a value and
		// keys never contain '=', the first unescaped '=' is always the
		// key/value boundary.
		key := f[:eq]
		val := unescapeValue(f[eq+1:])
		kv = append(kv, [2]string{key, val})
	}

	if kv[0][0] != "__rec" {
		return Record{}, malformed("record does not start with __rec")
	}

	switch Kind(kv[0][1]) {
	case KindNode:
		return parseNode(kv)
	case KindCtx:
		c, err := parseCtxLike(kv)
		return Record{Kind: KindCtx, Ctx: c}, err
	case KindGlobals:
		c, err := parseCtxLike(kv)
		return Record{Kind: KindGlobals, Ctx: c}, err
	default:
		return Record{}, malformed("unknown record kind " + string(kv[0][1]))
	}
}

func parseNode(kv [][2]string) (Record, error) {
	var rec NodeRecord
	haveID, haveAttr, haveData := false, false, false
	for _, p := range kv[1:] {
		switch p[0] {
		case "id":
			v, err := strconv.ParseUint(p[1], 10, 64)
			if err != nil {
				return Record{}, malformed("bad id: " + p[1])
			}
			rec.ID = v
			haveID = true
		case "attr":
			v, err := strconv.ParseUint(p[1], 10, 64)
			if err != nil {
				return Record{}, malformed("bad attr: " + p[1])
			}
			rec.Attr = v
			haveAttr = true
		case "data":
			rec.Data = p[1]
			haveData = true
		case "parent":
			v, err := strconv.ParseUint(p[1], 10, 64)
			if err != nil {
				return Record{}, malformed("bad parent: " + p[1])
			}
			rec.Parent = v
			rec.HasParent = true
		default:
			return Record{}, malformed("unexpected node field " + p[0])
		}
	}
	if !haveID || !haveAttr || !haveData {
		return Record{}, malformed("node record missing id/attr/data")
	}
	return Record{Kind: KindNode, Node: rec}, nil
}

// parseCtxLike parses the repeated ref=/attr=/data= fields shared by
// ctx and globals records. attr/data fields must alternate in pairs,
// matching the writer's emission order.
func parseCtxLike(kv [][2]string) (CtxRecord, error) {
	var c CtxRecord
	var pendingAttr *uint64
	for _, p := range kv[1:] {
		switch p[0] {
		case "ref":
			v, err := strconv.ParseUint(p[1], 10, 64)
			if err != nil {
				return c, malformed("bad ref: " + p[1])
			}
			c.Refs = append(c.Refs, v)
		case "attr":
			if pendingAttr != nil {
				return c, malformed("attr without matching data")
			}
			v, err := strconv.ParseUint(p[1], 10, 64)
			if err != nil {
				return c, malformed("bad attr: " + p[1])
			}
			pendingAttr = &v
		case "data":
			if pendingAttr == nil {
				return c, malformed("data without preceding attr")
			}
			c.Values = append(c.Values, RefDataPair{Attr: *pendingAttr, Data: p[1]})
			pendingAttr = nil
		default:
			return c, malformed("unexpected ctx/globals field " + p[0])
		}
	}
	if pendingAttr != nil {
		return c, malformed("attr without matching data")
	}
	return c, nil
}

func malformed(msg string) error {
	return cerrors.New(cerrors.CodeMalformedRecord, "stream", "parseLine", msg)
}
