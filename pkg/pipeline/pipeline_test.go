package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LLNL/caliper-go/pkg/caliper"
	"github.com/LLNL/caliper-go/pkg/calql"
	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/record"
	"github.com/LLNL/caliper-go/pkg/variant"
)

func mustAttr(t *testing.T, rt *caliper.Runtime, name string, typ variant.Type) contexttree.Attribute {
	t.Helper()
	a, err := rt.CreateAttribute(name, typ, contexttree.PropDefault, contexttree.ScopeProcess)
	require.NoError(t, err)
	return a
}

// TestNestedRegionsSnapshotTable is seed scenario 1 from spec.md §8:
// begin phase="init", begin function="setup", push_snapshot, end, end.
func TestNestedRegionsSnapshotTable(t *testing.T) {
	rt := caliper.NewRuntime()
	ch, err := rt.OpenChannel("main", caliper.ChannelConfig{})
	require.NoError(t, err)

	phase := mustAttr(t, rt, "phase", variant.TypeString)
	function := mustAttr(t, rt, "function", variant.TypeString)

	require.NoError(t, ch.Begin(0, phase, variant.FromString("init")))
	require.NoError(t, ch.Begin(0, function, variant.FromString("setup")))
	snap := ch.PushSnapshot(0)
	require.NoError(t, ch.End(0, function))
	require.NoError(t, ch.End(0, phase))

	spec, err := calql.Parse(`SELECT phase, function, count() GROUP BY phase, function FORMAT table`)
	require.NoError(t, err)

	p := New(spec, rt.Tree(), rt.Attributes())
	var buf bytes.Buffer
	require.NoError(t, p.Run(&buf, []record.Snapshot{snap}, nil))

	out := buf.String()
	require.Contains(t, out, "init")
	require.Contains(t, out, "setup")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2) // header + one data row
}

// TestValueStacking is seed scenario 2: begin x=1, begin x=2,
// push_snapshot, end, push_snapshot, end.
func TestValueStacking(t *testing.T) {
	rt := caliper.NewRuntime()
	ch, err := rt.OpenChannel("main", caliper.ChannelConfig{})
	require.NoError(t, err)

	x, err := rt.CreateAttribute("x", variant.TypeInt, contexttree.PropAsValue, contexttree.ScopeProcess)
	require.NoError(t, err)

	require.NoError(t, ch.Begin(0, x, variant.FromInt(1)))
	require.NoError(t, ch.Begin(0, x, variant.FromInt(2)))
	snap1 := ch.PushSnapshot(0)
	require.NoError(t, ch.End(0, x))
	snap2 := ch.PushSnapshot(0)
	require.NoError(t, ch.End(0, x))

	spec, err := calql.Parse(`SELECT x, count() GROUP BY x`)
	require.NoError(t, err)

	p := New(spec, rt.Tree(), rt.Attributes())
	var buf bytes.Buffer
	require.NoError(t, p.Run(&buf, []record.Snapshot{snap1, snap2}, nil))

	out := buf.String()
	require.Contains(t, out, "2")
	require.Contains(t, out, "1")
}

// TestPercentTotal is seed scenario 3: three snapshots with phase/time
// pairs, SELECT phase, sum(time) AS t, percent_total(time) AS p GROUP
// BY phase ORDER BY t DESC. Expected rows: b,30,60 then a,20,40.
func TestPercentTotal(t *testing.T) {
	rt := caliper.NewRuntime()
	phase, err := rt.CreateAttribute("phase", variant.TypeString, contexttree.PropDefault, contexttree.ScopeThread)
	require.NoError(t, err)
	timeAttr, err := rt.CreateAttribute("time", variant.TypeInt, contexttree.PropAsValue, contexttree.ScopeThread)
	require.NoError(t, err)

	mk := func(ph string, tm int64) record.Snapshot {
		return record.Snapshot{
			record.NewImmediate(phase.ID(), variant.FromString(ph)),
			record.NewImmediate(timeAttr.ID(), variant.FromInt(tm)),
		}
	}

	spec, err := calql.Parse(`SELECT phase, sum(time) AS t, percent_total(time) AS p GROUP BY phase ORDER BY t desc`)
	require.NoError(t, err)

	p := New(spec, rt.Tree(), rt.Attributes())
	var buf bytes.Buffer
	snaps := []record.Snapshot{mk("a", 10), mk("b", 30), mk("a", 10)}
	require.NoError(t, p.Run(&buf, snaps, nil))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3) // header + 2 rows
	require.True(t, strings.Contains(lines[1], "b"))
	require.True(t, strings.Contains(lines[1], "30"))
	require.True(t, strings.Contains(lines[1], "60"))
	require.True(t, strings.Contains(lines[2], "a"))
	require.True(t, strings.Contains(lines[2], "20"))
	require.True(t, strings.Contains(lines[2], "40"))
}

func TestWhereFilterCorrectness(t *testing.T) {
	rt := caliper.NewRuntime()
	rank, err := rt.CreateAttribute("rank", variant.TypeInt, contexttree.PropAsValue, contexttree.ScopeThread)
	require.NoError(t, err)

	snaps := []record.Snapshot{
		{record.NewImmediate(rank.ID(), variant.FromInt(1))},
		{record.NewImmediate(rank.ID(), variant.FromInt(5))},
	}

	spec, err := calql.Parse(`SELECT rank WHERE rank>2 FORMAT expand`)
	require.NoError(t, err)

	p := New(spec, rt.Tree(), rt.Attributes())
	var buf bytes.Buffer
	require.NoError(t, p.Run(&buf, snaps, nil))
	require.Equal(t, "rank=5\n", buf.String())
}

func TestCaliFormatEmitsNodeAndCtxRecords(t *testing.T) {
	rt := caliper.NewRuntime()
	phase, err := rt.CreateAttribute("phase", variant.TypeString, contexttree.PropDefault, contexttree.ScopeThread)
	require.NoError(t, err)
	node, err := rt.Tree().GetOrCreateChild(contexttree.RootNodeID, phase.ID(), variant.FromString("init"))
	require.NoError(t, err)
	snap := record.Snapshot{record.NewReference(node)}

	spec, err := calql.Parse(`FORMAT cali`)
	require.NoError(t, err)

	p := New(spec, rt.Tree(), rt.Attributes())
	var buf bytes.Buffer
	require.NoError(t, p.Run(&buf, []record.Snapshot{snap}, nil))
	out := buf.String()
	require.Contains(t, out, "__rec=node")
	require.Contains(t, out, "__rec=ctx")
}
