package stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LLNL/caliper-go/pkg/caliper"
	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// writeAttributeChain emits the three node records (name, type, prop)
// that declare one user attribute with the given foreign ids, the way
// a real writer derived from a Runtime's attribute registry would.
func writeAttributeChain(t *testing.T, w *Writer, nameID, typeID, propID uint64, name string, typ variant.Type, propWord uint64) {
	t.Helper()
	require.NoError(t, w.WriteNode(nameID, uint64(contexttree.NameAttrID), name, 0, false))
	require.NoError(t, w.WriteNode(typeID, uint64(contexttree.TypeAttrID), typ.String(), nameID, true))
	require.NoError(t, w.WriteNode(propID, uint64(contexttree.PropAttrID), variant.FromUint(propWord).Format(), typeID, true))
}

func TestMergeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	// Declare attribute "phase" (string, id chain 100/101/102) and one
	// data node "phase=main" (id 103, child of root).
	writeAttributeChain(t, w, 100, 101, 102, "phase", variant.TypeString, 0)
	require.NoError(t, w.WriteNode(103, 102, "main", 0, false))
	require.NoError(t, w.WriteCtx([]uint64{103}, nil))
	require.NoError(t, w.Flush())

	rt := caliper.NewRuntime()
	m := NewMerger(rt.Tree(), rt.Attributes())
	result, err := m.Merge(&buf)
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 1)

	attr, ok := rt.Attributes().Find("phase")
	require.True(t, ok)
	require.Equal(t, variant.TypeString, attr.Type())

	snap := result.Snapshots[0]
	v, ok := snap.ValueFor(rt.Tree(), attr.ID())
	require.True(t, ok)
	s, _ := v.AsString()
	require.Equal(t, "main", s)
}

func TestMergeIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	writeAttributeChain(t, w, 100, 101, 102, "phase", variant.TypeString, 0)
	require.NoError(t, w.WriteNode(103, 102, "main", 0, false))
	require.NoError(t, w.WriteCtx([]uint64{103}, nil))
	require.NoError(t, w.Flush())

	streamBytes := buf.Bytes()

	rt := caliper.NewRuntime()
	m := NewMerger(rt.Tree(), rt.Attributes())

	_, err := m.Merge(bytes.NewReader(streamBytes))
	require.NoError(t, err)
	countAfterFirst := rt.Tree().Count()

	m2 := NewMerger(rt.Tree(), rt.Attributes())
	_, err = m2.Merge(bytes.NewReader(streamBytes))
	require.NoError(t, err)
	require.Equal(t, countAfterFirst, rt.Tree().Count(), "re-merging the same stream must create no new nodes")
}

func TestMergeDanglingReference(t *testing.T) {
	rt := caliper.NewRuntime()
	m := NewMerger(rt.Tree(), rt.Attributes())

	// A ctx record referencing a node id that was never declared.
	r := bytes.NewBufferString("__rec=ctx,ref=999\n")
	_, err := m.Merge(r)
	require.Error(t, err)
}

func TestMergeMalformedRecord(t *testing.T) {
	rt := caliper.NewRuntime()
	m := NewMerger(rt.Tree(), rt.Attributes())

	r := bytes.NewBufferString("not a valid record at all\n")
	_, err := m.Merge(r)
	require.Error(t, err)
}

func TestMergeTypeConflict(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	writeAttributeChain(t, w, 100, 101, 102, "phase", variant.TypeString, 0)
	writeAttributeChain(t, w, 200, 201, 202, "phase", variant.TypeInt, 0)
	require.NoError(t, w.Flush())

	rt := caliper.NewRuntime()
	m := NewMerger(rt.Tree(), rt.Attributes())
	_, err := m.Merge(&buf)
	require.Error(t, err)
}

func TestEscapeRoundTrip(t *testing.T) {
	tricky := "a,b=c\\d\ne"
	require.Equal(t, tricky, unescapeValue(escapeValue(tricky)))
}

func TestReaderEOF(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.Next()
	require.ErrorIs(t, err, io.EOF)
}
