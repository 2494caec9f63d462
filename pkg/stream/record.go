// Package stream implements the on-disk/on-wire text record format
// (component F): node, ctx and globals records, one per line, and the
// merge algorithm that folds a foreign stream into a local context
// tree and attribute registry.
package stream

import "strings"

// Kind identifies one of the three self-describing record shapes.
type Kind string

const (
	KindNode    Kind = "node"
	KindCtx     Kind = "ctx"
	KindGlobals Kind = "globals"
)

// specialChars are the bytes that must be backslash-escaped inside a
// value: comma and equals (field delimiters), newline (record
// delimiter) and backslash itself (the escape character).
const specialChars = ",=\n\\"

func escapeValue(s string) string {
	if !strings.ContainsAny(s, specialChars) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func unescapeValue(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NodeRecord declares one context-tree node: its foreign id, the
// foreign attribute id it is keyed on, its formatted value, and
// (unless it is a root-level node) the foreign id of its parent.
type NodeRecord struct {
	ID        uint64
	Attr      uint64
	Data      string
	Parent    uint64
	HasParent bool
}

// RefDataPair is one attribute-id/formatted-value pair in a ctx or
// globals record's immediate-entry list.
type RefDataPair struct {
	Attr uint64
	Data string
}

// CtxRecord is a snapshot: a list of reference entries (foreign node
// ids) plus a list of immediate (attribute, value) pairs. GlobalsRecord
// has the identical shape and is modeled with the same type.
type CtxRecord struct {
	Refs   []uint64
	Values []RefDataPair
}
