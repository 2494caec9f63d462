package record

import "github.com/LLNL/caliper-go/pkg/contexttree"

// MakeRecord canonicalizes a flat entry list into a single tree path:
// every immediate entry for a non-store-as-value (reference-style)
// attribute is folded into the chain rooted at parent via
// GetOrCreateChild, in entry order; a reference entry becomes the new
// chain root for entries that follow it (it already denotes a path).
// Entries for store-as-value attributes are left untouched and
// returned alongside the resulting node so they remain immediates in
// the canonical record, exactly as a snapshot assembled from several
// blackboards would keep its store-as-value stack entries inline.
func MakeRecord(tree *contexttree.Tree, reg *contexttree.AttributeTable, entries []Entry, parent contexttree.NodeID) (contexttree.NodeID, []Entry, error) {
	node := parent
	var immediates []Entry

	for _, e := range entries {
		switch {
		case e.IsReference():
			node = e.Node()
		case e.IsImmediate():
			attr, ok := reg.ByID(e.attr)
			if ok && attr.StoreAsValue() {
				immediates = append(immediates, e)
				continue
			}
			newNode, err := tree.GetOrCreateChild(node, e.attr, e.value)
			if err != nil {
				return 0, nil, err
			}
			node = newNode
		}
	}

	return node, immediates, nil
}
