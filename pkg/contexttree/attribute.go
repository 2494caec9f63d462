package contexttree

import (
	"sync"

	cerrors "github.com/LLNL/caliper-go/pkg/errors"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// AttributeID identifies an attribute. An attribute is represented as
// a context-tree node whose chain of ancestors encodes its metadata
// (name, type, property word); AttributeID is that leaf node's id.
type AttributeID = NodeID

// InvalidAttributeID marks "no attribute" (used for the root node and
// for immediate entries with no associated attribute).
const InvalidAttributeID AttributeID = ^AttributeID(0)

// Bootstrap meta-attribute ids. These three are hardcoded rather than
// created through GetOrCreateChild because they would otherwise need
// to reference themselves to describe their own name/type/prop triple
// — the same bootstrap problem the original C++ implementation solves
// with a compile-time MetaAttributeIDs constant.
const (
	NameAttrID AttributeID = 1
	TypeAttrID AttributeID = 2
	PropAttrID AttributeID = 3

	// A small set of well-known meta-attributes, reserved among the
	// first eleven node ids along with root/name/type/prop.
	DescriptionAttrID AttributeID = 4
	UnitAttrID        AttributeID = 5
	ClassAggregatable AttributeID = 6
	// ids 7..10 reserved for future well-known meta-attributes.

	firstUserNodeID NodeID = 11
)

// Scope selects which blackboard an attribute's updates target. Scope
// flags are mutually exclusive.
type Scope uint8

const (
	ScopeProcess Scope = iota
	ScopeThread
	ScopeTask
)

func (s Scope) String() string {
	switch s {
	case ScopeProcess:
		return "process"
	case ScopeThread:
		return "thread"
	case ScopeTask:
		return "task"
	default:
		return "unknown"
	}
}

// PropertyFlags mirror the attribute property bits from spec.md §3:
// store-as-value, no-merge, skip-events, hidden, nested, global and
// aggregatable. Scope is carried in the same property word but
// accessed through a distinct accessor since it's not a bit flag.
type PropertyFlags uint32

const (
	PropDefault      PropertyFlags = 0
	PropAsValue      PropertyFlags = 1 << 0
	PropNoMerge      PropertyFlags = 1 << 1
	PropSkipEvents   PropertyFlags = 1 << 2
	PropHidden       PropertyFlags = 1 << 3
	PropNested       PropertyFlags = 1 << 4
	PropGlobal       PropertyFlags = 1 << 5
	PropAggregatable PropertyFlags = 1 << 6
)

// packPropWord packs flags, scope and log level into the single uint64
// value stored at the cali.attribute.prop node.
func packPropWord(flags PropertyFlags, scope Scope, logLevel int) uint64 {
	return uint64(flags) | uint64(scope)<<32 | uint64(uint8(logLevel))<<40
}

func unpackPropWord(w uint64) (PropertyFlags, Scope, int) {
	flags := PropertyFlags(w & 0xFFFFFFFF)
	scope := Scope((w >> 32) & 0xFF)
	logLevel := int((w >> 40) & 0xFF)
	return flags, scope, logLevel
}

// Attribute is a resolved view of an attribute's metadata, cached at
// creation/lookup time since the underlying tree nodes are immutable.
type Attribute struct {
	id       AttributeID
	name     string
	typ      variant.Type
	flags    PropertyFlags
	scope    Scope
	logLevel int
}

// Invalid is the zero Attribute.
var Invalid = Attribute{id: InvalidAttributeID}

func (a Attribute) ID() AttributeID        { return a.id }
func (a Attribute) Name() string           { return a.name }
func (a Attribute) Type() variant.Type     { return a.typ }
func (a Attribute) Properties() PropertyFlags { return a.flags }
func (a Attribute) Scope() Scope           { return a.scope }
func (a Attribute) LogLevel() int          { return a.logLevel }
func (a Attribute) IsValid() bool          { return a.id != InvalidAttributeID }

func (a Attribute) StoreAsValue() bool  { return a.flags&PropAsValue != 0 }
func (a Attribute) NoMerge() bool       { return a.flags&PropNoMerge != 0 }
func (a Attribute) SkipEvents() bool    { return a.flags&PropSkipEvents != 0 }
func (a Attribute) Hidden() bool        { return a.flags&PropHidden != 0 }
func (a Attribute) Nested() bool        { return a.flags&PropNested != 0 }
func (a Attribute) Global() bool        { return a.flags&PropGlobal != 0 }
func (a Attribute) Aggregatable() bool  { return a.flags&PropAggregatable != 0 }

// AttributeTable is the process-wide name->attribute registry layered
// on top of the context tree. Lookups take the read lock; creation
// takes the write lock only when actually inserting.
type AttributeTable struct {
	tree *Tree

	mu      sync.RWMutex
	byName  map[string]Attribute
	byID    map[AttributeID]Attribute
}

// NewAttributeTable creates the registry and bootstraps the
// meta-attribute nodes in t.
func NewAttributeTable(t *Tree) *AttributeTable {
	r := &AttributeTable{
		tree:   t,
		byName: make(map[string]Attribute),
		byID:   make(map[AttributeID]Attribute),
	}
	r.bootstrap()
	return r
}

func (r *AttributeTable) bootstrap() {
	meta := []struct {
		id   AttributeID
		name string
	}{
		{NameAttrID, "cali.attribute.name"},
		{TypeAttrID, "cali.attribute.type"},
		{PropAttrID, "cali.attribute.prop"},
		{DescriptionAttrID, "cali.attribute.description"},
		{UnitAttrID, "cali.attribute.unit"},
		{ClassAggregatable, "cali.attribute.class.aggregatable"},
	}
	for _, m := range meta {
		// Bootstrap attributes bypass the registry's own Create (which
		// would need these ids to already exist): their fixed ids are
		// seeded into the name->attribute and id->attribute maps by
		// hand, and the loop below reserves the matching arena ids.
		attr := Attribute{
			id:    m.id,
			name:  m.name,
			typ:   variant.TypeString,
			flags: PropAsValue | PropSkipEvents,
			scope: ScopeProcess,
		}
		r.byName[m.name] = attr
		r.byID[m.id] = attr
	}
	// Advance the tree's id counter past the reserved range; the
	// bootstrap attributes above don't themselves occupy arena slots
	// as user-created (name->type->prop) chains — they're referenced
	// by id only — but ids 0..10 are reserved regardless so that the
	// first real user attribute begins at firstUserNodeID.
	for r.tree.nextID.Load() < uint64(firstUserNodeID) {
		if _, err := r.tree.allocate(InvalidAttributeID, variant.Empty, RootNodeID); err != nil {
			break
		}
	}
}

// Find looks up an attribute by name.
func (r *AttributeTable) Find(name string) (Attribute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// ByID looks up an attribute by id.
func (r *AttributeTable) ByID(id AttributeID) (Attribute, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// Create registers a new attribute, or returns the existing one if
// the name is already known. If the name exists with a different
// type, the first type wins: the existing attribute is returned
// together with a Duplicate error so the caller can log the conflict
// without the declaration itself failing.
func (r *AttributeTable) Create(name string, typ variant.Type, flags PropertyFlags, scope Scope, logLevel int) (Attribute, error) {
	if existing, ok := r.Find(name); ok {
		if existing.typ == typ {
			return existing, nil
		}
		return existing, cerrors.New(cerrors.CodeDuplicate, "contexttree", "Create",
			"attribute \""+name+"\" redeclared with a different type; keeping the original").
			WithMetadata("existing_type", existing.typ.String()).
			WithMetadata("requested_type", typ.String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock: another goroutine may have
	// created it while we waited.
	if existing, ok := r.byName[name]; ok {
		if existing.typ == typ {
			return existing, nil
		}
		return existing, cerrors.New(cerrors.CodeDuplicate, "contexttree", "Create",
			"attribute \""+name+"\" redeclared with a different type; keeping the original")
	}

	nameNode, err := r.tree.GetOrCreateChild(RootNodeID, NameAttrID, variant.FromString(name))
	if err != nil {
		return Invalid, err
	}
	typeNode, err := r.tree.GetOrCreateChild(nameNode, TypeAttrID, variant.FromType(typ))
	if err != nil {
		return Invalid, err
	}
	word := packPropWord(flags, scope, logLevel)
	propNode, err := r.tree.GetOrCreateChild(typeNode, PropAttrID, variant.FromUint(word))
	if err != nil {
		return Invalid, err
	}

	attr := Attribute{id: propNode, name: name, typ: typ, flags: flags, scope: scope, logLevel: logLevel}
	r.byName[name] = attr
	r.byID[attr.id] = attr
	return attr, nil
}

// CreateInferred creates a store-as-value-agnostic attribute whose
// type is inferred from an example value, matching the "attribute
// created via begin before it was explicitly declared" invariant.
func (r *AttributeTable) CreateInferred(name string, example variant.Value) (Attribute, error) {
	return r.Create(name, example.Type(), PropDefault, ScopeThread, 0)
}

// AdoptFromNode registers an attribute whose backing node chain was
// already built by a caller walking raw node records (the stream
// merge algorithm), rather than through Create. It does not touch the
// tree: id must already be the propNode id of an existing
// name->type->prop chain. If name is already registered with a
// different type, the existing attribute is left untouched and a
// TypeConflict error is returned together with the *new*
// attribute view (callers merging a stream still need it to resolve
// this stream's later records, even though the name collides).
func (r *AttributeTable) AdoptFromNode(id AttributeID, name string, typ variant.Type, propWord uint64) (Attribute, error) {
	flags, scope, logLevel := unpackPropWord(propWord)
	attr := Attribute{id: id, name: name, typ: typ, flags: flags, scope: scope, logLevel: logLevel}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[id] = attr

	if existing, ok := r.byName[name]; ok {
		if existing.typ == typ {
			return existing, nil
		}
		return attr, cerrors.New(cerrors.CodeTypeConflict, "contexttree", "AdoptFromNode",
			"attribute \""+name+"\" has type "+typ.String()+" but an existing attribute of that name has type "+existing.typ.String()).
			WithMetadata("name", name)
	}

	r.byName[name] = attr
	return attr, nil
}

// unpackProperties splits a packed property word (e.g. one read back
// off a stream) into its components without a full Attribute.
func unpackProperties(word uint64) (PropertyFlags, Scope, int) {
	return unpackPropWord(word)
}
