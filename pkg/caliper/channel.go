package caliper

import (
	"github.com/LLNL/caliper-go/pkg/blackboard"
	"github.com/LLNL/caliper-go/pkg/contexttree"
	cerrors "github.com/LLNL/caliper-go/pkg/errors"
	"github.com/LLNL/caliper-go/pkg/record"
	"github.com/LLNL/caliper-go/pkg/snapbuf"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// ChannelConfig controls what a Channel records. SnapshotCapHint seeds
// the channel's snapbuf.Pool before any snapshot has been taken; after
// that, the pool's own running high-water mark (the largest snapshot
// length actually observed) takes over sizing new buffers, so this
// only matters for the first few sampling ticks.
type ChannelConfig struct {
	SnapshotCapHint int
}

// Channel is the per-service instrumentation entry point: it owns a
// process-scope blackboard and dispatches to whichever scope handle
// the caller passes for thread/task-scope attributes. Multiple
// channels on the same Runtime share one context tree and attribute
// registry but keep independent blackboards and event subscriptions,
// so one channel can run a profiling configuration while another
// only tracks a handful of correctness-checking attributes.
type Channel struct {
	name      string
	runtime   *Runtime
	processBB *blackboard.Blackboard
	bus       *eventBus
	cfg       ChannelConfig
	bufPool   *snapbuf.Pool
}

// Name returns the channel's name.
func (c *Channel) Name() string { return c.name }

// Subscribe registers h to run on every occurrence of kind.
func (c *Channel) Subscribe(kind EventKind, h Handler) {
	c.bus.subscribe(kind, h)
}

// blackboardFor resolves which blackboard Begin/Set/End should act on
// for attr: the process-scope blackboard for a process-scope
// attribute, otherwise the caller's thread-scope blackboard (which
// also backs task-scope attributes, since Go has no separate
// lightweight-task concept distinct from a goroutine running on a
// scope the caller manages explicitly).
func (c *Channel) blackboardFor(attr contexttree.Attribute, scope ScopeHandle) (*blackboard.Blackboard, error) {
	if attr.Scope() == contexttree.ScopeProcess {
		return c.processBB, nil
	}
	bb := c.runtime.scopes.get(c.runtime.tree, scope)
	if bb == nil {
		return nil, cerrors.New(cerrors.CodeStackMismatch, "caliper", "blackboardFor",
			"thread/task-scope attribute used without an acquired ScopeHandle").
			WithMetadata("attribute", attr.Name())
	}
	return bb, nil
}

// Begin opens a new region for attr with value val on scope (pass
// noScope for a process-scope attribute).
func (c *Channel) Begin(scope ScopeHandle, attr contexttree.Attribute, val variant.Value) error {
	bb, err := c.blackboardFor(attr, scope)
	if err != nil {
		return err
	}
	c.bus.publish(Event{Kind: EventPreBegin, Attribute: attr, Value: val, Channel: c, Scope: scope})
	if err := bb.Begin(attr, val); err != nil {
		return err
	}
	c.bus.publish(Event{Kind: EventPostBegin, Attribute: attr, Value: val, Channel: c, Scope: scope})
	return nil
}

// BeginByName looks up (or infers) attr by name before calling Begin.
func (c *Channel) BeginByName(scope ScopeHandle, name string, val variant.Value) error {
	attr, err := c.resolveAttribute(name, val)
	if err != nil {
		return err
	}
	return c.Begin(scope, attr, val)
}

// Set replaces the current value for attr without changing nesting
// depth. See blackboard.Set for the Nested-attribute restriction.
func (c *Channel) Set(scope ScopeHandle, attr contexttree.Attribute, val variant.Value) error {
	bb, err := c.blackboardFor(attr, scope)
	if err != nil {
		return err
	}
	c.bus.publish(Event{Kind: EventPreSet, Attribute: attr, Value: val, Channel: c, Scope: scope})
	if err := bb.Set(attr, val); err != nil {
		return err
	}
	c.bus.publish(Event{Kind: EventPostSet, Attribute: attr, Value: val, Channel: c, Scope: scope})
	return nil
}

// SetByName looks up (or infers) attr by name before calling Set.
func (c *Channel) SetByName(scope ScopeHandle, name string, val variant.Value) error {
	attr, err := c.resolveAttribute(name, val)
	if err != nil {
		return err
	}
	return c.Set(scope, attr, val)
}

// End closes the innermost open region for attr.
func (c *Channel) End(scope ScopeHandle, attr contexttree.Attribute) error {
	bb, err := c.blackboardFor(attr, scope)
	if err != nil {
		return err
	}
	c.bus.publish(Event{Kind: EventPreEnd, Attribute: attr, Channel: c, Scope: scope})
	if err := bb.End(attr); err != nil {
		return err
	}
	c.bus.publish(Event{Kind: EventPostEnd, Attribute: attr, Channel: c, Scope: scope})
	return nil
}

// EndByName looks up attr by name before calling End; an unknown name
// is a NotFound error rather than being silently inferred, since End
// carries no value to infer a type from.
func (c *Channel) EndByName(scope ScopeHandle, name string) error {
	attr, ok := c.runtime.attrs.Find(name)
	if !ok {
		return cerrors.New(cerrors.CodeNotFound, "caliper", "EndByName",
			"no attribute named \""+name+"\"").WithMetadata("attribute", name)
	}
	return c.End(scope, attr)
}

func (c *Channel) resolveAttribute(name string, example variant.Value) (contexttree.Attribute, error) {
	if attr, ok := c.runtime.attrs.Find(name); ok {
		return attr, nil
	}
	attr, err := c.runtime.attrs.CreateInferred(name, example)
	if err != nil {
		return attr, err
	}
	c.bus.publish(Event{Kind: EventAttributeCreated, Attribute: attr, Channel: c})
	return attr, nil
}

// PushSnapshot captures the union of the process-scope blackboard and
// (if scope != noScope) the caller's thread-scope blackboard, fires
// EventSnapshot and EventProcessSnapshot with the result, and returns
// it. This is the normal, allocating snapshot path used by periodic or
// triggered sampling; the returned slice escapes to the caller, so it
// is sized from (and feeds back into) the channel's bufPool high-water
// mark rather than being borrowed from the pool's free-list.
func (c *Channel) PushSnapshot(scope ScopeHandle) record.Snapshot {
	capHint := c.bufPool.HighWater()
	snap := c.processBB.Snapshot(capHint)
	if scope != noScope {
		if bb := c.runtime.scopes.get(c.runtime.tree, scope); bb != nil {
			snap = append(snap, bb.Snapshot(capHint)...)
		}
	}
	c.bufPool.Observe(len(snap))
	c.bus.publish(Event{Kind: EventSnapshot, Channel: c, Snapshot: snap})
	c.bus.publish(Event{Kind: EventProcessSnapshot, Channel: c, Snapshot: snap})
	return snap
}

// AcquireSnapshotBuffer borrows a reusable buffer from the channel's
// bufPool, sized to its current high-water mark and ready to pass
// straight to PullSnapshot. Release it (sliced to PullSnapshot's
// returned count) via ReleaseSnapshotBuffer once done with it, e.g. at
// the end of a sampling tick.
func (c *Channel) AcquireSnapshotBuffer() record.Snapshot {
	return c.bufPool.Get()
}

// ReleaseSnapshotBuffer returns buf to the channel's bufPool, folding
// its length into the running high-water mark. Pass buf sliced to the
// count PullSnapshot actually wrote (buf[:n]), not the full buffer
// AcquireSnapshotBuffer handed out.
func (c *Channel) ReleaseSnapshotBuffer(buf record.Snapshot) {
	c.bufPool.Put(buf)
}

// PullSnapshot is the non-blocking, non-allocating variant meant for
// use from a context where the caller cannot tolerate contending for
// a lock or growing the heap — the reinterpretation of the original's
// signal-safe snapshot guarantee (see the design decision recorded
// alongside ScopeHandle). It writes into the caller-supplied buffer
// and returns the number of entries written, or 0 if it could not
// acquire the blackboard's read lock without blocking.
func (c *Channel) PullSnapshot(scope ScopeHandle, buf record.Snapshot) int {
	n := c.processBB.TryFill(buf)
	if n >= len(buf) || scope == noScope {
		return n
	}
	if bb := c.runtime.scopes.get(c.runtime.tree, scope); bb != nil {
		n += bb.TryFill(buf[n:])
	}
	return n
}

// Flush fires the pre-flush/flush/post-flush sequence, letting
// subscribed sinks (pkg/stream writers, formatters) drain whatever
// they have buffered. Flush itself carries no snapshot: subscribers
// that need one should call PushSnapshot from their EventFlush
// handler.
func (c *Channel) Flush() {
	c.bus.publish(Event{Kind: EventPreFlush, Channel: c})
	c.bus.publish(Event{Kind: EventFlush, Channel: c})
	c.bus.publish(Event{Kind: EventPostFlush, Channel: c})
}

// Clear resets the channel's process-scope blackboard, discarding
// every currently open region. Thread-scope blackboards are
// untouched; a caller that wants a full reset should also release and
// re-acquire its scope handles.
func (c *Channel) Clear() {
	c.processBB = blackboard.New(c.runtime.tree)
	c.bus.publish(Event{Kind: EventClear, Channel: c})
}
