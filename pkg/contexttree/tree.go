// Package contexttree implements the process-wide, append-only
// context tree that interns every (attribute, value) path recorded by
// the instrumentation API, plus the attribute registry layered on top
// of it.
//
// The tree never shrinks. Node storage is a growable arena of
// fixed-size blocks: once a block is allocated its address is never
// moved, so a *node pointer handed out by the arena stays valid for
// the lifetime of the process. Child-list linkage uses compare-and-swap
// on the parent's head pointer, but every lookup of a node's arena slot
// (slotFor) briefly takes the arena's mutex, so tree operations are
// not lock-free.
package contexttree

import (
	"sync"
	"sync/atomic"

	cerrors "github.com/LLNL/caliper-go/pkg/errors"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// NodeID is a dense, monotonically assigned 64-bit node identity. A
// node's parent id is always less than the node's own id, which lets a
// single forward pass over a stream resolve every reference.
type NodeID uint64

// RootNodeID is the tree root, always id 0.
const RootNodeID NodeID = 0

// noLink is the sentinel stored in an empty firstChild/nextSibling
// slot. It is distinct from every real NodeID because node ids are
// assigned from 0 upward and the arena is bounded well below 2^64-1
// in any real run.
const noLink = ^uint64(0)

const arenaBlockSize = 4096

type node struct {
	id          NodeID
	attribute   AttributeID
	value       variant.Value
	parent      NodeID
	firstChild  atomic.Uint64
	nextSibling atomic.Uint64
}

// Tree is the context tree. The zero value is not usable; construct
// with New.
type Tree struct {
	growMu sync.Mutex
	blocks [][]node // each block has len == cap == arenaBlockSize; never reallocated

	nextID atomic.Uint64

	// MaxNodes bounds the arena, surfacing CodeOutOfMemory instead of
	// growing without limit. Zero means unbounded.
	maxNodes uint64
}

// New creates an empty tree, pre-populated with the root node.
func New() *Tree {
	t := &Tree{}
	t.growMu.Lock()
	t.blocks = append(t.blocks, make([]node, arenaBlockSize))
	t.growMu.Unlock()

	root := t.slotFor(RootNodeID)
	root.id = RootNodeID
	root.attribute = InvalidAttributeID
	root.value = variant.Empty
	root.parent = RootNodeID
	root.firstChild.Store(noLink)
	root.nextSibling.Store(noLink)
	t.nextID.Store(1)
	return t
}

// SetMaxNodes bounds the number of nodes the tree will allocate. Must
// be called before concurrent use begins.
func (t *Tree) SetMaxNodes(n uint64) { t.maxNodes = n }

// Count returns the number of nodes currently in the tree (including
// the root), i.e. the next id that would be assigned.
func (t *Tree) Count() uint64 { return t.nextID.Load() }

// slotFor returns a stable pointer into the arena for id, growing the
// arena if necessary. Callers must only use this for ids that are
// either already allocated or are about to be initialized by the sole
// writer that reserved them via nextID.Add.
func (t *Tree) slotFor(id NodeID) *node {
	blockIdx := int(uint64(id) / arenaBlockSize)
	offset := int(uint64(id) % arenaBlockSize)

	t.growMu.Lock()
	for blockIdx >= len(t.blocks) {
		t.blocks = append(t.blocks, make([]node, arenaBlockSize))
	}
	blk := t.blocks[blockIdx]
	t.growMu.Unlock()

	return &blk[offset]
}

// allocate reserves a fresh node id and initializes its fields. The
// caller is the exclusive writer of this node until it publishes the
// id into some other node's child list, after which the node is
// immutable.
func (t *Tree) allocate(attr AttributeID, val variant.Value, parent NodeID) (*node, error) {
	if t.maxNodes != 0 && t.nextID.Load() >= t.maxNodes {
		return nil, cerrors.New(cerrors.CodeOutOfMemory, "contexttree", "allocate",
			"node arena exhausted")
	}
	id := NodeID(t.nextID.Add(1) - 1)
	n := t.slotFor(id)
	n.id = id
	n.attribute = attr
	n.value = val.Clone()
	n.parent = parent
	n.firstChild.Store(noLink)
	n.nextSibling.Store(noLink)
	return n, nil
}

// GetOrCreateChild returns the unique child of parent carrying
// (attr, val), creating it if necessary. This is the tree's only
// mutating operation: it scans the parent's child list (an
// atomically-loaded head plus atomically-loaded sibling links), and on
// a miss installs a freshly allocated node with a CAS on the head. No
// lock guards the list itself, but each arena slot lookup takes the
// arena's mutex. A losing racer re-scans the (now longer) list before
// retrying, so it may return the winner's node instead of its own
// candidate.
func (t *Tree) GetOrCreateChild(parent NodeID, attr AttributeID, val variant.Value) (NodeID, error) {
	parentNode := t.slotFor(parent)

	for {
		if found, ok := t.scanChildren(parentNode, attr, val); ok {
			return found, nil
		}

		candidate, err := t.allocate(attr, val, parent)
		if err != nil {
			return 0, err
		}

		head := parentNode.firstChild.Load()
		candidate.nextSibling.Store(head)
		if parentNode.firstChild.CompareAndSwap(head, uint64(candidate.id)) {
			return candidate.id, nil
		}
		// Lost the race: some other goroutine linked a node first.
		// candidate's arena slot is simply abandoned (ids are unique
		// but need not be contiguous within a child list); loop to
		// rescan the list for a match before allocating again.
	}
}

func (t *Tree) scanChildren(parent *node, attr AttributeID, val variant.Value) (NodeID, bool) {
	cur := parent.firstChild.Load()
	for cur != noLink {
		n := t.slotFor(NodeID(cur))
		if n.attribute == attr && n.value.Equal(val) {
			return n.id, true
		}
		cur = n.nextSibling.Load()
	}
	return 0, false
}

// NodeView is an immutable snapshot of a node's public fields.
type NodeView struct {
	ID        NodeID
	Attribute AttributeID
	Value     variant.Value
	Parent    NodeID
}

// Node returns a snapshot of the node with the given id. Panics if id
// was never allocated (an internal consistency error, not a user
// error — every NodeID in circulation was handed out by this tree).
func (t *Tree) Node(id NodeID) NodeView {
	n := t.slotFor(id)
	return NodeView{ID: n.id, Attribute: n.attribute, Value: n.value, Parent: n.parent}
}

// Exists reports whether id has been allocated in this tree.
func (t *Tree) Exists(id NodeID) bool {
	return uint64(id) < t.nextID.Load()
}

// Children returns the ids of all direct children of parent, in
// most-recently-created-first order (the order the lock-free list
// naturally holds them in).
func (t *Tree) Children(parent NodeID) []NodeID {
	parentNode := t.slotFor(parent)
	var out []NodeID
	cur := parentNode.firstChild.Load()
	for cur != noLink {
		n := t.slotFor(NodeID(cur))
		out = append(out, n.id)
		cur = n.nextSibling.Load()
	}
	return out
}

// Path returns the node ids from id up to and including the root.
func (t *Tree) Path(id NodeID) []NodeID {
	out := []NodeID{id}
	for id != RootNodeID {
		n := t.slotFor(id)
		id = n.parent
		out = append(out, id)
	}
	return out
}

// DeepestAncestorValue implements Entry.value(A): walking from start
// toward the root, it returns the value of the first node whose
// attribute is attr (the deepest such ancestor).
func (t *Tree) DeepestAncestorValue(start NodeID, attr AttributeID) (variant.Value, bool) {
	id := start
	for {
		n := t.slotFor(id)
		if n.attribute == attr {
			return n.value, true
		}
		if id == RootNodeID {
			return variant.Empty, false
		}
		id = n.parent
	}
}

// CountAncestor implements Entry.count(A): the number of nodes on the
// path from start to the root whose attribute is attr.
func (t *Tree) CountAncestor(start NodeID, attr AttributeID) int {
	count := 0
	id := start
	for {
		n := t.slotFor(id)
		if n.attribute == attr {
			count++
		}
		if id == RootNodeID {
			return count
		}
		id = n.parent
	}
}
