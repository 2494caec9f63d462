package contexttree

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LLNL/caliper-go/pkg/variant"
)

func TestGetOrCreateChildUniqueness(t *testing.T) {
	tr := New()
	attr := AttributeID(100)

	const goroutines = 32
	ids := make([]NodeID, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			id, err := tr.GetOrCreateChild(RootNodeID, attr, variant.FromString("phase"))
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		require.Equal(t, ids[0], ids[i], "concurrent get-or-create must converge on one node")
	}

	children := tr.Children(RootNodeID)
	require.Len(t, children, 1)
}

func TestGetOrCreateChildDistinctValues(t *testing.T) {
	tr := New()
	attr := AttributeID(200)

	a, err := tr.GetOrCreateChild(RootNodeID, attr, variant.FromString("a"))
	require.NoError(t, err)
	b, err := tr.GetOrCreateChild(RootNodeID, attr, variant.FromString("b"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	again, err := tr.GetOrCreateChild(RootNodeID, attr, variant.FromString("a"))
	require.NoError(t, err)
	require.Equal(t, a, again)
}

func TestParentLessThanChild(t *testing.T) {
	tr := New()
	a, _ := tr.GetOrCreateChild(RootNodeID, AttributeID(1), variant.FromString("x"))
	b, _ := tr.GetOrCreateChild(a, AttributeID(2), variant.FromString("y"))
	require.Less(t, tr.Node(a).Parent, a+1) // parent (root) < a
	require.Less(t, tr.Node(b).Parent, b)
}

func TestDeepestAncestorValueAndCount(t *testing.T) {
	tr := New()
	phase := AttributeID(10)
	fn := AttributeID(11)

	n1, _ := tr.GetOrCreateChild(RootNodeID, phase, variant.FromString("init"))
	n2, _ := tr.GetOrCreateChild(n1, fn, variant.FromString("setup"))
	n3, _ := tr.GetOrCreateChild(n2, phase, variant.FromString("inner"))

	v, ok := tr.DeepestAncestorValue(n3, phase)
	require.True(t, ok)
	s, _ := v.AsString()
	require.Equal(t, "inner", s)

	require.Equal(t, 2, tr.CountAncestor(n3, phase))
	require.Equal(t, 1, tr.CountAncestor(n3, fn))
}

func TestAttributeTableCreateAndConflict(t *testing.T) {
	tr := New()
	reg := NewAttributeTable(tr)

	a, err := reg.Create("iteration", variant.TypeInt, PropDefault, ScopeThread, 0)
	require.NoError(t, err)
	require.Equal(t, "iteration", a.Name())
	require.Equal(t, variant.TypeInt, a.Type())

	again, err := reg.Create("iteration", variant.TypeInt, PropDefault, ScopeThread, 0)
	require.NoError(t, err)
	require.Equal(t, a.ID(), again.ID())

	conflict, err := reg.Create("iteration", variant.TypeString, PropDefault, ScopeThread, 0)
	require.Error(t, err)
	require.Equal(t, a.ID(), conflict.ID(), "first type wins; existing attribute is returned")
}

func TestBootstrapAttributesReserved(t *testing.T) {
	tr := New()
	reg := NewAttributeTable(tr)

	nameAttr, ok := reg.ByID(NameAttrID)
	require.True(t, ok)
	require.Equal(t, "cali.attribute.name", nameAttr.Name())

	first, err := reg.Create("my.attr", variant.TypeInt, PropDefault, ScopeProcess, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, uint64(first.ID()), uint64(firstUserNodeID))
}
