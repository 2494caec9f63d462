// Package caliper is the public instrumentation API: the Runtime ties
// together the context tree, attribute registry and blackboards, and
// a Channel is the begin/set/end/push-snapshot entry point application
// code actually calls.
package caliper

import (
	"sync"
	"sync/atomic"

	"github.com/LLNL/caliper-go/pkg/blackboard"
	"github.com/LLNL/caliper-go/pkg/contexttree"
	cerrors "github.com/LLNL/caliper-go/pkg/errors"
	"github.com/LLNL/caliper-go/pkg/snapbuf"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// Runtime is the process-wide instrumentation state: one context tree
// and attribute registry shared by every Channel, plus the registry
// of acquired thread scopes. Applications construct exactly one
// Runtime (NewRuntime) and open one or more Channels on it.
type Runtime struct {
	tree   *contexttree.Tree
	attrs  *contexttree.AttributeTable
	scopes *scopeRegistry

	mu       sync.RWMutex
	channels map[string]*Channel

	finished atomic.Bool
}

// NewRuntime creates a Runtime with an empty context tree and
// bootstrapped attribute registry.
func NewRuntime() *Runtime {
	tree := contexttree.New()
	return &Runtime{
		tree:     tree,
		attrs:    contexttree.NewAttributeTable(tree),
		scopes:   newScopeRegistry(),
		channels: make(map[string]*Channel),
	}
}

// Tree exposes the underlying context tree, mainly for the stream
// codec and query pipeline, which need to resolve references held in
// Snapshot entries produced by this runtime's channels.
func (r *Runtime) Tree() *contexttree.Tree { return r.tree }

// Attributes exposes the attribute registry.
func (r *Runtime) Attributes() *contexttree.AttributeTable { return r.attrs }

// CreateAttribute declares a new attribute, or returns the existing
// one of the same name. See contexttree.AttributeTable.Create for the
// name-conflict semantics. On success, EventAttributeCreated fires on
// every channel currently open on this runtime.
func (r *Runtime) CreateAttribute(name string, typ variant.Type, flags contexttree.PropertyFlags, scope contexttree.Scope) (contexttree.Attribute, error) {
	attr, err := r.attrs.Create(name, typ, flags, scope, 0)
	if err == nil {
		r.mu.RLock()
		for _, ch := range r.channels {
			ch.bus.publish(Event{Kind: EventAttributeCreated, Attribute: attr, Channel: ch})
		}
		r.mu.RUnlock()
	}
	return attr, err
}

// AcquireThreadScope creates a fresh thread-scope blackboard and
// returns its handle. Call once per logical worker (goroutine pool
// slot, request handler, etc.), not once per goroutine spawned.
func (r *Runtime) AcquireThreadScope() ScopeHandle {
	h := r.scopes.Acquire(r.tree)
	r.mu.RLock()
	for _, ch := range r.channels {
		ch.bus.publish(Event{Kind: EventCreateThread, Channel: ch})
	}
	r.mu.RUnlock()
	return h
}

// ReleaseThreadScope discards the thread-scope blackboard behind h.
func (r *Runtime) ReleaseThreadScope(h ScopeHandle) {
	r.scopes.Release(h)
	r.mu.RLock()
	for _, ch := range r.channels {
		ch.bus.publish(Event{Kind: EventReleaseThread, Channel: ch})
	}
	r.mu.RUnlock()
}

// OpenChannel creates a new named Channel on this runtime. Opening a
// channel under a name already in use returns the existing channel
// together with a Duplicate error, mirroring attribute redeclaration.
func (r *Runtime) OpenChannel(name string, cfg ChannelConfig) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.channels[name]; ok {
		return existing, cerrors.New(cerrors.CodeDuplicate, "caliper", "OpenChannel",
			"channel \""+name+"\" is already open").WithMetadata("channel", name)
	}

	ch := &Channel{
		name:      name,
		runtime:   r,
		processBB: blackboard.New(r.tree),
		bus:       newEventBus(),
		cfg:       cfg,
		bufPool:   snapbuf.New(cfg.SnapshotCapHint),
	}
	r.channels[name] = ch
	ch.bus.publish(Event{Kind: EventPostInit, Channel: ch})
	return ch, nil
}

// Channels returns every currently open channel.
func (r *Runtime) Channels() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// Finish fires EventFinish on every channel; a second Finish call is
// a no-op. Begin/Set/End calls are not rejected after Finish. It does
// not release the context tree, since snapshot entries captured
// before Finish remain valid reference nodes for as long as the
// caller holds onto them.
func (r *Runtime) Finish() {
	if !r.finished.CompareAndSwap(false, true) {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.channels {
		ch.bus.publish(Event{Kind: EventFinish, Channel: ch})
	}
}
