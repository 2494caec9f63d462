// Package record defines the snapshot record: the flat, short-lived
// list of Entry values captured from one or more blackboards at a
// trigger point, plus the MakeRecord operation that canonicalizes a
// set of entries into a single tree path.
package record

import (
	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// Entry is a three-way value: empty, reference (points at a tree
// node), or immediate (an explicit attribute/value pair).
type Entry struct {
	node  contexttree.NodeID
	attr  contexttree.AttributeID
	value variant.Value
	isRef bool
}

// Empty is the zero Entry.
var Empty = Entry{attr: contexttree.InvalidAttributeID}

// NewReference builds a reference entry pointing at node.
func NewReference(node contexttree.NodeID) Entry {
	return Entry{node: node, attr: contexttree.InvalidAttributeID, isRef: true}
}

// NewImmediate builds an immediate (attribute, value) entry.
func NewImmediate(attr contexttree.AttributeID, val variant.Value) Entry {
	return Entry{attr: attr, value: val}
}

func (e Entry) IsEmpty() bool {
	return !e.isRef && e.attr == contexttree.InvalidAttributeID
}

func (e Entry) IsReference() bool { return e.isRef }
func (e Entry) IsImmediate() bool { return !e.isRef && !e.IsEmpty() }

// Node returns the referenced node id (only meaningful if IsReference).
func (e Entry) Node() contexttree.NodeID { return e.node }

// Attribute returns this entry's top-level attribute id: for an
// immediate entry, the stored attribute; for a reference entry, the
// referenced node's own attribute.
func (e Entry) Attribute(tree *contexttree.Tree) contexttree.AttributeID {
	if e.isRef {
		return tree.Node(e.node).Attribute
	}
	return e.attr
}

// Value returns this entry's top-level value: the node's value for a
// reference entry, or the stored value for an immediate entry.
func (e Entry) Value(tree *contexttree.Tree) variant.Value {
	if e.isRef {
		return tree.Node(e.node).Value
	}
	return e.value
}

// HasAttribute reports whether the entry "has" attr: true if it is an
// immediate entry for attr, or if any node on the path from its
// referenced node to the root carries attr.
func (e Entry) HasAttribute(tree *contexttree.Tree, attr contexttree.AttributeID) bool {
	if !e.isRef {
		return e.attr == attr
	}
	_, ok := tree.DeepestAncestorValue(e.node, attr)
	return ok
}

// ValueFor implements Entry::value(A): the value of the deepest
// ancestor (including the entry's own immediate value) that carries
// attr, or variant.Empty if none does.
func (e Entry) ValueFor(tree *contexttree.Tree, attr contexttree.AttributeID) variant.Value {
	if !e.isRef {
		if e.attr == attr {
			return e.value
		}
		return variant.Empty
	}
	v, ok := tree.DeepestAncestorValue(e.node, attr)
	if !ok {
		return variant.Empty
	}
	return v
}

// CountFor implements Entry::count(A): how many times attr occurs on
// the path this entry represents.
func (e Entry) CountFor(tree *contexttree.Tree, attr contexttree.AttributeID) int {
	if !e.isRef {
		if e.attr == attr {
			return 1
		}
		return 0
	}
	return tree.CountAncestor(e.node, attr)
}

// Snapshot is an ordered list of entries captured at a trigger point.
// Order carries no semantic meaning; duplicates for the same attribute
// are allowed.
type Snapshot []Entry

// ValueFor scans every entry in the snapshot and returns the value of
// the first one that carries attr (the order in which observers or the
// blackboard appended entries, not a semantic priority).
func (s Snapshot) ValueFor(tree *contexttree.Tree, attr contexttree.AttributeID) (variant.Value, bool) {
	for _, e := range s {
		if v := e.ValueFor(tree, attr); !v.IsEmpty() || e.HasAttribute(tree, attr) {
			return v, true
		}
	}
	return variant.Empty, false
}

// CountFor sums CountFor across every entry in the snapshot.
func (s Snapshot) CountFor(tree *contexttree.Tree, attr contexttree.AttributeID) int {
	n := 0
	for _, e := range s {
		n += e.CountFor(tree, attr)
	}
	return n
}
