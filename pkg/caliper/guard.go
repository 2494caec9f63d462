package caliper

import (
	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// Guard closes a single region on End, letting callers annotate a
// function or block with one line instead of a matching Begin/End
// pair wrapped by hand. It is the Go stand-in for the original API's
// RAII region-guard helper; defer is the only mechanism Go has for
// "run this when the enclosing scope exits", so Guard exists purely
// to make that defer read naturally at the call site.
type Guard struct {
	ch    *Channel
	scope ScopeHandle
	attr  contexttree.Attribute
	armed bool
}

// ScopeBegin opens attr=val on ch and returns a Guard; the idiomatic
// call pattern is:
//
//	g := caliper.ScopeBegin(ch, scope, phaseAttr, variant.FromString("decode"))
//	defer g.End()
func ScopeBegin(ch *Channel, scope ScopeHandle, attr contexttree.Attribute, val variant.Value) *Guard {
	g := &Guard{ch: ch, scope: scope, attr: attr}
	if err := ch.Begin(scope, attr, val); err == nil {
		g.armed = true
	}
	return g
}

// End closes the region opened by ScopeBegin. Calling End more than
// once, or on a Guard whose Begin failed, is a no-op: the caller's
// defer always runs exactly once per Guard, and a failed Begin must
// not cascade into a spurious End reporting a stack mismatch.
func (g *Guard) End() {
	if !g.armed {
		return
	}
	g.armed = false
	_ = g.ch.End(g.scope, g.attr)
}
