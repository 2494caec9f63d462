package caliper

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/record"
	"github.com/LLNL/caliper-go/pkg/variant"
)

func TestBeginEndByNameInfersAttribute(t *testing.T) {
	rt := NewRuntime()
	ch, err := rt.OpenChannel("test", ChannelConfig{})
	require.NoError(t, err)

	// Inferred attributes are thread-scoped, so the calls need a handle.
	scope := rt.AcquireThreadScope()
	require.NoError(t, ch.BeginByName(scope, "region", variant.FromString("outer")))
	require.NoError(t, ch.BeginByName(scope, "region", variant.FromString("inner")))

	attr, ok := rt.Attributes().Find("region")
	require.True(t, ok)
	require.Equal(t, variant.TypeString, attr.Type())

	require.NoError(t, ch.EndByName(scope, "region"))
	require.NoError(t, ch.EndByName(scope, "region"))
	require.Error(t, ch.EndByName(scope, "region"))
}

func TestThreadScopeIsolation(t *testing.T) {
	rt := NewRuntime()
	ch, _ := rt.OpenChannel("test", ChannelConfig{})

	iter, err := rt.CreateAttribute("iteration", variant.TypeInt, contexttree.PropAsValue, contexttree.ScopeThread)
	require.NoError(t, err)

	s1 := rt.AcquireThreadScope()
	s2 := rt.AcquireThreadScope()
	defer rt.ReleaseThreadScope(s1)
	defer rt.ReleaseThreadScope(s2)

	require.NoError(t, ch.Begin(s1, iter, variant.FromInt(1)))
	require.NoError(t, ch.Begin(s2, iter, variant.FromInt(42)))

	snap1 := ch.PushSnapshot(s1)
	v1, ok := snap1.ValueFor(rt.Tree(), iter.ID())
	require.True(t, ok)
	n1, _ := v1.AsInt()
	require.Equal(t, int64(1), n1)

	snap2 := ch.PushSnapshot(s2)
	v2, ok := snap2.ValueFor(rt.Tree(), iter.ID())
	require.True(t, ok)
	n2, _ := v2.AsInt()
	require.Equal(t, int64(42), n2)
}

func TestThreadScopeAttributeWithoutHandleFails(t *testing.T) {
	rt := NewRuntime()
	ch, _ := rt.OpenChannel("test", ChannelConfig{})
	iter, _ := rt.CreateAttribute("iteration", variant.TypeInt, contexttree.PropAsValue, contexttree.ScopeThread)

	err := ch.Begin(noScope, iter, variant.FromInt(1))
	require.Error(t, err)
}

func TestGuardClosesOnEnd(t *testing.T) {
	rt := NewRuntime()
	ch, _ := rt.OpenChannel("test", ChannelConfig{})
	phase, _ := rt.CreateAttribute("phase", variant.TypeString, contexttree.PropDefault, contexttree.ScopeProcess)

	func() {
		g := ScopeBegin(ch, noScope, phase, variant.FromString("init"))
		defer g.End()
		snap := ch.PushSnapshot(noScope)
		v, ok := snap.ValueFor(rt.Tree(), phase.ID())
		require.True(t, ok)
		s, _ := v.AsString()
		require.Equal(t, "init", s)
	}()

	snap := ch.PushSnapshot(noScope)
	_, ok := snap.ValueFor(rt.Tree(), phase.ID())
	require.False(t, ok)
}

func TestPullSnapshotNonBlocking(t *testing.T) {
	rt := NewRuntime()
	ch, _ := rt.OpenChannel("test", ChannelConfig{})
	phase, _ := rt.CreateAttribute("phase", variant.TypeString, contexttree.PropDefault, contexttree.ScopeProcess)
	require.NoError(t, ch.Begin(noScope, phase, variant.FromString("x")))

	buf := make(record.Snapshot, 4)
	n := ch.PullSnapshot(noScope, buf)
	require.Equal(t, 1, n)
}

func TestEventSubscriptionFires(t *testing.T) {
	rt := NewRuntime()
	ch, _ := rt.OpenChannel("test", ChannelConfig{})
	phase, _ := rt.CreateAttribute("phase", variant.TypeString, contexttree.PropDefault, contexttree.ScopeProcess)

	var events []EventKind
	ch.Subscribe(EventPreBegin, func(e Event) { events = append(events, e.Kind) })
	ch.Subscribe(EventPostBegin, func(e Event) { events = append(events, e.Kind) })

	require.NoError(t, ch.Begin(noScope, phase, variant.FromString("x")))
	require.Equal(t, []EventKind{EventPreBegin, EventPostBegin}, events)
}
