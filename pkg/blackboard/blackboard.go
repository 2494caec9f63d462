// Package blackboard implements the per-scope map from attribute id to
// its current entry, and the begin/set/end state machine that keeps
// region nesting invariants for every attribute.
package blackboard

import (
	"sync"

	cerrors "github.com/LLNL/caliper-go/pkg/errors"

	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/record"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// slot holds the current state for one attribute in a Blackboard:
// either a reference to the deepest open tree node (for reference-
// style attributes) or a stack of immediate values (for store-as-value
// attributes, where stack depth equals nesting depth).
type slot struct {
	nodeRef   contexttree.NodeID
	isOpen    bool // only meaningful for reference-style slots
	immStack  []variant.Value
}

// Blackboard is a growable sparse map keyed by attribute id, holding
// the "currently active" value for every attribute with at least one
// open region. The process-scope blackboard is shared across
// goroutines and needs its RWMutex; a thread-scope blackboard is
// confined to one logical thread and never contends for it in
// practice, but uses the same type for symmetry.
type Blackboard struct {
	tree *contexttree.Tree

	mu      sync.RWMutex
	entries map[contexttree.AttributeID]*slot
}

// New creates an empty blackboard backed by tree.
func New(tree *contexttree.Tree) *Blackboard {
	return &Blackboard{tree: tree, entries: make(map[contexttree.AttributeID]*slot)}
}

// Begin opens a new, deeper region for attr with value val. For a
// store-as-value attribute this pushes val onto its immediate stack.
// For a reference-style attribute this moves the blackboard's entry to
// the child (attr, val) of whichever node is currently open for attr
// (or of the tree root, if none is).
func (b *Blackboard) Begin(attr contexttree.Attribute, val variant.Value) error {
	if val.Type() != attr.Type() {
		return cerrors.New(cerrors.CodeTypeConflict, "blackboard", "Begin",
			"begin() value type does not match the attribute's declared type").
			WithMetadata("attribute", attr.Name()).
			WithMetadata("attribute_type", attr.Type().String()).
			WithMetadata("value_type", val.Type().String())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.entries[attr.ID()]
	if s == nil {
		s = &slot{}
		b.entries[attr.ID()] = s
	}

	if attr.StoreAsValue() {
		s.immStack = append(s.immStack, val)
		return nil
	}

	parent := contexttree.RootNodeID
	if s.isOpen {
		parent = s.nodeRef
	}
	child, err := b.tree.GetOrCreateChild(parent, attr.ID(), val)
	if err != nil {
		return err
	}
	s.nodeRef = child
	s.isOpen = true
	return nil
}

// Set replaces the top of the current region for attr with val,
// without changing nesting depth. Only valid for non-nested
// attributes; calling Set on a Nested attribute is a protocol
// violation (the caller should use Begin/End) and is reported without
// mutating blackboard state.
func (b *Blackboard) Set(attr contexttree.Attribute, val variant.Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if attr.Nested() {
		return cerrors.New(cerrors.CodeStackMismatch, "blackboard", "Set",
			"set() is not valid on a nested attribute; use begin/end").
			WithMetadata("attribute", attr.Name())
	}

	s := b.entries[attr.ID()]
	if s == nil {
		s = &slot{}
		b.entries[attr.ID()] = s
	}

	if attr.StoreAsValue() {
		if len(s.immStack) == 0 {
			s.immStack = append(s.immStack, val)
		} else {
			s.immStack[len(s.immStack)-1] = val
		}
		return nil
	}

	parent := contexttree.RootNodeID
	if s.isOpen {
		parent = b.tree.Node(s.nodeRef).Parent
	}
	sibling, err := b.tree.GetOrCreateChild(parent, attr.ID(), val)
	if err != nil {
		return err
	}
	s.nodeRef = sibling
	s.isOpen = true
	return nil
}

// End closes the innermost open region for attr, moving its reference
// up to the parent node (Empty, if that parent is the tree root) or
// popping its immediate stack. Calling End with no matching open
// region is a StackMismatch violation: the blackboard is left
// unchanged and the caller should treat subsequent events for attr as
// still needing rebalancing.
func (b *Blackboard) End(attr contexttree.Attribute) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endLocked(attr, nil)
}

// EndChecked is like End but additionally verifies that the region
// being closed currently holds expected as its value — the stronger
// check a Nested attribute's caller can opt into (mirroring the
// original API's cali_end_with_value). A mismatch leaves the
// blackboard in its last known-good state and returns StackMismatch.
func (b *Blackboard) EndChecked(attr contexttree.Attribute, expected variant.Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endLocked(attr, &expected)
}

func (b *Blackboard) endLocked(attr contexttree.Attribute, expected *variant.Value) error {
	s := b.entries[attr.ID()]
	if s == nil {
		return cerrors.New(cerrors.CodeStackMismatch, "blackboard", "End",
			"end() with no matching begin()").WithMetadata("attribute", attr.Name())
	}

	if attr.StoreAsValue() {
		if len(s.immStack) == 0 {
			return cerrors.New(cerrors.CodeStackMismatch, "blackboard", "End",
				"end() with no matching begin()").WithMetadata("attribute", attr.Name())
		}
		top := s.immStack[len(s.immStack)-1]
		if expected != nil && !top.Equal(*expected) {
			return cerrors.New(cerrors.CodeStackMismatch, "blackboard", "End",
				"end() value does not match the currently open value").
				WithMetadata("attribute", attr.Name())
		}
		s.immStack = s.immStack[:len(s.immStack)-1]
		if len(s.immStack) == 0 {
			delete(b.entries, attr.ID())
		}
		return nil
	}

	if !s.isOpen {
		return cerrors.New(cerrors.CodeStackMismatch, "blackboard", "End",
			"end() with no matching begin()").WithMetadata("attribute", attr.Name())
	}

	if expected != nil {
		cur := b.tree.Node(s.nodeRef).Value
		if !cur.Equal(*expected) {
			return cerrors.New(cerrors.CodeStackMismatch, "blackboard", "End",
				"end() value does not match the currently open value").
				WithMetadata("attribute", attr.Name())
		}
	}

	parent := b.tree.Node(s.nodeRef).Parent
	if parent == contexttree.RootNodeID {
		delete(b.entries, attr.ID())
		return nil
	}
	s.nodeRef = parent
	return nil
}

// Depth returns, for a store-as-value attr, the number of values on
// its stack; for a reference-style attr with an open region it returns
// 1, since that attribute's nesting lives in the tree path, which
// Depth does not walk. It returns 0 if no region is open.
func (b *Blackboard) Depth(attr contexttree.AttributeID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.entries[attr]
	if s == nil {
		return 0
	}
	if len(s.immStack) > 0 {
		return len(s.immStack)
	}
	if s.isOpen {
		return 1
	}
	return 0
}

// CurrentEntry returns the live entry for attr, or (Entry{}, false) if
// no region is open.
func (b *Blackboard) CurrentEntry(attr contexttree.AttributeID) (record.Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.entries[attr]
	if s == nil {
		return record.Entry{}, false
	}
	if len(s.immStack) > 0 {
		return record.NewImmediate(attr, s.immStack[len(s.immStack)-1]), true
	}
	if s.isOpen {
		return record.NewReference(s.nodeRef), true
	}
	return record.Entry{}, false
}

// Snapshot iterates every attribute currently active in this
// blackboard and returns one entry per attribute — the core operation
// behind push_snapshot/pull_snapshot. The returned slice is freshly
// allocated with the given capacity hint; callers pre-size this from a
// running high-water mark rather than a fixed guess (see
// pkg/snapbuf.Pool, used by pkg/caliper.Channel).
func (b *Blackboard) Snapshot(capHint int) record.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(record.Snapshot, 0, capHint)
	for attr, s := range b.entries {
		if len(s.immStack) > 0 {
			out = append(out, record.NewImmediate(attr, s.immStack[len(s.immStack)-1]))
		} else if s.isOpen {
			out = append(out, record.NewReference(s.nodeRef))
		}
	}
	return out
}

// TryFill is the non-blocking counterpart to Snapshot: it copies up to
// len(buf) active entries into buf without allocating and without
// blocking on the mutex, returning 0 immediately if another goroutine
// currently holds it. This is the primitive PullSnapshot is built on —
// safe to call from a context that must never block or allocate.
func (b *Blackboard) TryFill(buf record.Snapshot) int {
	if !b.mu.TryRLock() {
		return 0
	}
	defer b.mu.RUnlock()

	n := 0
	for attr, s := range b.entries {
		if n >= len(buf) {
			break
		}
		if len(s.immStack) > 0 {
			buf[n] = record.NewImmediate(attr, s.immStack[len(s.immStack)-1])
			n++
		} else if s.isOpen {
			buf[n] = record.NewReference(s.nodeRef)
			n++
		}
	}
	return n
}

// Len reports how many attributes currently have an active entry.
func (b *Blackboard) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
