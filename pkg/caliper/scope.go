package caliper

import (
	"sync"
	"sync/atomic"

	"github.com/LLNL/caliper-go/pkg/blackboard"
	"github.com/LLNL/caliper-go/pkg/contexttree"
)

// ScopeHandle identifies one logical thread-scope blackboard. Go has
// no thread-locals and a goroutine is not a stable unit of execution
// to key one off of, so callers acquire a handle explicitly — once
// per logical worker, not once per goroutine — and pass it to every
// Begin/Set/End/PullSnapshot call for that worker. This is the
// reinterpretation of the original thread-local blackboard recorded
// as an open design decision: Go code must be explicit about which
// scope it is updating.
type ScopeHandle uint64

const noScope ScopeHandle = 0

var nextScopeHandle atomic.Uint64

// scopeRegistry owns every acquired thread-scope blackboard, keyed by
// ScopeHandle. A sync.Map is used rather than a mutex-guarded map
// because handles are acquired/released far less often than they are
// looked up from a hot Begin/Set/End call.
type scopeRegistry struct {
	scopes sync.Map // ScopeHandle -> *blackboard.Blackboard
}

func newScopeRegistry() *scopeRegistry {
	return &scopeRegistry{}
}

// Acquire creates a new thread-scope blackboard and returns its
// handle. Callers release it with Release when the logical worker
// exits, mirroring create-thread/release-thread events in the
// original API.
func (r *scopeRegistry) Acquire(tree *contexttree.Tree) ScopeHandle {
	h := ScopeHandle(nextScopeHandle.Add(1))
	r.scopes.Store(h, blackboard.New(tree))
	return h
}

// Release discards the thread-scope blackboard for h. Using h again
// after Release re-creates an empty blackboard rather than panicking,
// since a stale handle held past its worker's lifetime is a caller
// bug we can recover from rather than one that should crash a
// concurrent service.
func (r *scopeRegistry) Release(h ScopeHandle) {
	r.scopes.Delete(h)
}

func (r *scopeRegistry) get(tree *contexttree.Tree, h ScopeHandle) *blackboard.Blackboard {
	if h == noScope {
		return nil
	}
	v, ok := r.scopes.Load(h)
	if !ok {
		bb := blackboard.New(tree)
		r.scopes.Store(h, bb)
		return bb
	}
	return v.(*blackboard.Blackboard)
}
