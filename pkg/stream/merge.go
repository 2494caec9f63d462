package stream

import (
	"io"

	"github.com/LLNL/caliper-go/pkg/contexttree"
	cerrors "github.com/LLNL/caliper-go/pkg/errors"
	"github.com/LLNL/caliper-go/pkg/record"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// Merger folds one or more foreign streams into a local context tree
// and attribute registry, translating each stream's ids through its
// own id map. Re-using one Merger across several Merge calls keeps
// the destination tree and registry; Merge is idempotent in the sense
// required by spec.md §4.F: re-merging the same stream produces no
// new nodes, since GetOrCreateChild converges on the node already
// created the first time.
type Merger struct {
	tree  *contexttree.Tree
	attrs *contexttree.AttributeTable

	// idMap translates this stream's foreign node ids to local node
	// ids. Reset per call to Merge, since two different foreign streams
	// may reuse the same small ids for unrelated nodes.
	idMap map[uint64]contexttree.NodeID
}

// NewMerger creates a Merger writing into tree/attrs.
func NewMerger(tree *contexttree.Tree, attrs *contexttree.AttributeTable) *Merger {
	return &Merger{tree: tree, attrs: attrs}
}

// MergeResult reports what one Merge call produced.
type MergeResult struct {
	Snapshots []record.Snapshot
	Globals   record.Snapshot
}

// Merge reads every record from r, applying the merge algorithm from
// spec.md §4.F, and returns the decoded ctx records as Snapshots (with
// every entry translated into the local tree's id space) plus the
// trailing globals record, if any.
func (m *Merger) Merge(r io.Reader) (MergeResult, error) {
	m.idMap = make(map[uint64]contexttree.NodeID, 64)
	// The bootstrap meta-attribute ids are fixed across every process
	// that uses this package's AttributeTable, so they translate to
	// themselves without ever appearing as a "node" record.
	for _, id := range []contexttree.AttributeID{
		contexttree.NameAttrID, contexttree.TypeAttrID, contexttree.PropAttrID,
		contexttree.DescriptionAttrID, contexttree.UnitAttrID, contexttree.ClassAggregatable,
	} {
		m.idMap[uint64(id)] = id
	}

	reader := NewReader(r)
	var result MergeResult

	for {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, err
		}

		switch rec.Kind {
		case KindNode:
			if err := m.mergeNode(rec.Node); err != nil {
				return result, err
			}
		case KindCtx:
			snap, err := m.translateCtx(rec.Ctx)
			if err != nil {
				return result, err
			}
			result.Snapshots = append(result.Snapshots, snap)
		case KindGlobals:
			snap, err := m.translateCtx(rec.Ctx)
			if err != nil {
				return result, err
			}
			result.Globals = snap
		}
	}

	return result, nil
}

func (m *Merger) mergeNode(n NodeRecord) error {
	localAttr, ok := m.idMap[n.Attr]
	if !ok {
		return cerrors.New(cerrors.CodeDanglingRef, "stream", "mergeNode",
			"node references an attribute id not yet seen in this stream")
	}

	localParent := contexttree.RootNodeID
	if n.HasParent {
		p, ok := m.idMap[n.Parent]
		if !ok {
			return cerrors.New(cerrors.CodeDanglingRef, "stream", "mergeNode",
				"node references a parent id not yet seen in this stream")
		}
		localParent = p
	}

	typ, err := m.attrTypeOf(localAttr)
	if err != nil {
		return err
	}
	val, err := variant.ParseText(typ, n.Data)
	if err != nil {
		return err
	}

	localNode, err := m.tree.GetOrCreateChild(localParent, localAttr, val)
	if err != nil {
		return err
	}
	m.idMap[n.ID] = localNode

	if localAttr == contexttree.PropAttrID {
		if err := m.adoptAttribute(localNode, localParent, val); err != nil {
			return err
		}
	}
	return nil
}

// attrTypeOf resolves the value type a node keyed on attr should be
// parsed as: the fixed types of the bootstrap meta-attributes, or the
// type of a previously-adopted user attribute.
func (m *Merger) attrTypeOf(attr contexttree.AttributeID) (variant.Type, error) {
	switch attr {
	case contexttree.NameAttrID, contexttree.DescriptionAttrID, contexttree.UnitAttrID, contexttree.ClassAggregatable:
		return variant.TypeString, nil
	case contexttree.TypeAttrID:
		return variant.TypeType, nil
	case contexttree.PropAttrID:
		return variant.TypeUint, nil
	}
	a, ok := m.attrs.ByID(attr)
	if !ok {
		return variant.TypeInvalid, cerrors.New(cerrors.CodeDanglingRef, "stream", "attrTypeOf",
			"data node references an attribute not yet declared in this stream")
	}
	return a.Type(), nil
}

// adoptAttribute registers the user attribute whose identity node is
// propNode, once its name->type->prop chain has been fully merged.
// parent is the local type-node id; its own parent is the name node.
func (m *Merger) adoptAttribute(propNode, typeNode contexttree.NodeID, propVal variant.Value) error {
	typeNodeView := m.tree.Node(typeNode)
	nameNodeView := m.tree.Node(typeNodeView.Parent)

	nameStr, ok := nameNodeView.Value.AsString()
	if !ok {
		return cerrors.New(cerrors.CodeMalformedRecord, "stream", "adoptAttribute",
			"attribute name node does not carry a string value")
	}
	typTag, ok := typeNodeView.Value.AsTypeTag()
	if !ok {
		return cerrors.New(cerrors.CodeMalformedRecord, "stream", "adoptAttribute",
			"attribute type node does not carry a type value")
	}
	word, _ := propVal.AsUint()

	_, err := m.attrs.AdoptFromNode(propNode, nameStr, typTag, word)
	return err
}

func (m *Merger) translateCtx(c CtxRecord) (record.Snapshot, error) {
	snap := make(record.Snapshot, 0, len(c.Refs)+len(c.Values))

	for _, ref := range c.Refs {
		local, ok := m.idMap[ref]
		if !ok {
			return nil, cerrors.New(cerrors.CodeDanglingRef, "stream", "translateCtx",
				"reference entry cites a node id not yet seen in this stream")
		}
		snap = append(snap, record.NewReference(local))
	}

	for _, v := range c.Values {
		localAttr, ok := m.idMap[v.Attr]
		if !ok {
			return nil, cerrors.New(cerrors.CodeDanglingRef, "stream", "translateCtx",
				"immediate entry cites an attribute id not yet seen in this stream")
		}
		typ, err := m.attrTypeOf(localAttr)
		if err != nil {
			return nil, err
		}
		val, err := variant.ParseText(typ, v.Data)
		if err != nil {
			return nil, err
		}
		snap = append(snap, record.NewImmediate(localAttr, val))
	}

	return snap, nil
}
