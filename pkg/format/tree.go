package format

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Tree re-materializes the implicit hierarchy described by a sequence
// of nested path attributes (e.g. phase, function) and prints it with
// indentation, one path segment per line, with any remaining (non
// path) columns printed alongside the leaf. Rows are grouped into the
// tree at Flush, so, like Table, it buffers every row.
type Tree struct {
	w          io.Writer
	pathAttrs  []string
	rows       []Row
}

func NewTree(w io.Writer, opts Options) *Tree {
	return &Tree{w: w, pathAttrs: opts.Args}
}

func (t *Tree) ProcessRecord(row Row) error {
	t.rows = append(t.rows, row)
	return nil
}

type treeNode struct {
	label    string
	children map[string]*treeNode
	order    []string
	rows     []Row // rows whose path ends exactly at this node
}

func newTreeNode(label string) *treeNode {
	return &treeNode{label: label, children: map[string]*treeNode{}}
}

func (n *treeNode) child(label string) *treeNode {
	c, ok := n.children[label]
	if !ok {
		c = newTreeNode(label)
		n.children[label] = c
		n.order = append(n.order, label)
	}
	return c
}

func (t *Tree) Flush() error {
	pathAttrs := t.pathAttrs
	if pathAttrs == nil && len(t.rows) > 0 {
		for _, c := range t.rows[0].Columns {
			pathAttrs = append(pathAttrs, c.Name)
		}
	}

	root := newTreeNode("")
	for _, row := range t.rows {
		cur := root
		for _, attr := range pathAttrs {
			v, ok := row.Get(attr)
			if !ok || v.IsEmpty() {
				continue
			}
			cur = cur.child(v.Format())
		}
		cur.rows = append(cur.rows, row)
	}

	return t.write(root, pathAttrs, 0)
}

func (t *Tree) write(n *treeNode, pathAttrs []string, depth int) error {
	if n.label != "" {
		indent := strings.Repeat("  ", depth-1)
		if _, err := fmt.Fprintf(t.w, "%s%s\n", indent, n.label); err != nil {
			return err
		}
	}

	children := append([]string(nil), n.order...)
	sort.Strings(children)
	for _, label := range children {
		if err := t.write(n.children[label], pathAttrs, depth+1); err != nil {
			return err
		}
	}

	for _, row := range n.rows {
		var extras []string
		for _, c := range row.Columns {
			if containsString(pathAttrs, c.Name) {
				continue
			}
			extras = append(extras, fmt.Sprintf("%s=%s", displayName(c.Name), c.Value.Format()))
		}
		if len(extras) == 0 {
			continue
		}
		indent := strings.Repeat("  ", depth)
		if _, err := fmt.Fprintf(t.w, "%s%s\n", indent, strings.Join(extras, " ")); err != nil {
			return err
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
