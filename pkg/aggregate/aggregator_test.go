package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LLNL/caliper-go/pkg/calql"
	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/record"
	"github.com/LLNL/caliper-go/pkg/variant"
)

func newAttr(t *testing.T, reg *contexttree.AttributeTable, name string, typ variant.Type) contexttree.Attribute {
	t.Helper()
	a, err := reg.Create(name, typ, contexttree.PropDefault, contexttree.ScopeThread, 0)
	require.NoError(t, err)
	return a
}

func findColumn(row Row, name string) (variant.Value, bool) {
	for _, c := range row.Columns {
		if c.Name == name {
			return c.Value, true
		}
	}
	return variant.Empty, false
}

func TestSumGroupedByFunction(t *testing.T) {
	tree := contexttree.New()
	reg := contexttree.NewAttributeTable(tree)
	fn := newAttr(t, reg, "function", variant.TypeString)
	dur := newAttr(t, reg, "time.duration", variant.TypeInt)

	sumOp := calql.AggregationOp{Sig: calql.FunctionSignature{Name: "sum", MinArgs: 1, MaxArgs: 1}, Args: []string{"time.duration"}}
	agg := New(tree, reg, []contexttree.AttributeID{fn.ID()}, []calql.AggregationOp{sumOp})

	agg.Process(record.Snapshot{record.NewImmediate(fn.ID(), variant.FromString("main")), record.NewImmediate(dur.ID(), variant.FromInt(10))})
	agg.Process(record.Snapshot{record.NewImmediate(fn.ID(), variant.FromString("main")), record.NewImmediate(dur.ID(), variant.FromInt(5))})
	agg.Process(record.Snapshot{record.NewImmediate(fn.ID(), variant.FromString("helper")), record.NewImmediate(dur.ID(), variant.FromInt(100))})

	rows := agg.Finalize()
	require.Len(t, rows, 2)

	// Rows are sorted by key tuple, so "helper" sorts before "main".
	require.Equal(t, "helper", formatFirst(t, rows[0].Key))
	v, ok := findColumn(rows[0], "sum#time.duration")
	require.True(t, ok)
	n, _ := v.AsInt()
	require.Equal(t, int64(100), n)

	require.Equal(t, "main", formatFirst(t, rows[1].Key))
	v, ok = findColumn(rows[1], "sum#time.duration")
	require.True(t, ok)
	n, _ = v.AsInt()
	require.Equal(t, int64(15), n)
}

func formatFirst(t *testing.T, key []variant.Value) string {
	t.Helper()
	s, ok := key[0].AsString()
	require.True(t, ok)
	return s
}

func TestAggregationIsOrderIndependent(t *testing.T) {
	tree := contexttree.New()
	reg := contexttree.NewAttributeTable(tree)
	fn := newAttr(t, reg, "function", variant.TypeString)
	dur := newAttr(t, reg, "time.duration", variant.TypeInt)

	sumOp := calql.AggregationOp{Sig: calql.FunctionSignature{Name: "sum", MinArgs: 1, MaxArgs: 1}, Args: []string{"time.duration"}}
	countOp := calql.AggregationOp{Sig: calql.FunctionSignature{Name: "count", MinArgs: 0, MaxArgs: 0}}

	values := []int64{3, 1, 4, 1, 5, 9, 2, 6}
	var forward, reversed []Row

	for _, order := range [][]int64{values, reverseCopy(values)} {
		agg := New(tree, reg, []contexttree.AttributeID{fn.ID()}, []calql.AggregationOp{sumOp, countOp})
		for _, v := range order {
			agg.Process(record.Snapshot{record.NewImmediate(fn.ID(), variant.FromString("loop")), record.NewImmediate(dur.ID(), variant.FromInt(v))})
		}
		rows := agg.Finalize()
		if forward == nil {
			forward = rows
		} else {
			reversed = rows
		}
	}

	require.Equal(t, len(forward), len(reversed))
	fv, _ := findColumn(forward[0], "sum#time.duration")
	rv, _ := findColumn(reversed[0], "sum#time.duration")
	require.True(t, fv.Equal(rv))

	fc, _ := findColumn(forward[0], "count")
	rc, _ := findColumn(reversed[0], "count")
	require.True(t, fc.Equal(rc))
}

func reverseCopy(in []int64) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func TestPercentTotalComputedOverFilteredRows(t *testing.T) {
	tree := contexttree.New()
	reg := contexttree.NewAttributeTable(tree)
	fn := newAttr(t, reg, "function", variant.TypeString)
	dur := newAttr(t, reg, "time.duration", variant.TypeDouble)

	pctOp := calql.AggregationOp{Sig: calql.FunctionSignature{Name: "percent_total", MinArgs: 1, MaxArgs: 1}, Args: []string{"time.duration"}}
	agg := New(tree, reg, []contexttree.AttributeID{fn.ID()}, []calql.AggregationOp{pctOp})

	// Simulates a WHERE clause already having dropped a third row
	// ("other", 900): percent_total's denominator is the sum over only
	// these two surviving rows, not any larger unfiltered total.
	agg.Process(record.Snapshot{record.NewImmediate(fn.ID(), variant.FromString("a")), record.NewImmediate(dur.ID(), variant.FromDouble(25))})
	agg.Process(record.Snapshot{record.NewImmediate(fn.ID(), variant.FromString("b")), record.NewImmediate(dur.ID(), variant.FromDouble(75))})

	rows := agg.Finalize()
	require.Len(t, rows, 2)

	va, _ := findColumn(rows[0], "percent_total#time.duration")
	fa, _ := va.AsDouble()
	require.InDelta(t, 25.0, fa, 0.001)

	vb, _ := findColumn(rows[1], "percent_total#time.duration")
	fb, _ := vb.AsDouble()
	require.InDelta(t, 75.0, fb, 0.001)
}

func TestStatisticsProducesFourColumns(t *testing.T) {
	tree := contexttree.New()
	reg := contexttree.NewAttributeTable(tree)
	dur := newAttr(t, reg, "time.duration", variant.TypeInt)

	statOp := calql.AggregationOp{Sig: calql.FunctionSignature{Name: "statistics", MinArgs: 1, MaxArgs: 1}, Args: []string{"time.duration"}}
	agg := New(tree, reg, nil, []calql.AggregationOp{statOp})

	for _, v := range []int64{2, 4, 6, 8} {
		agg.Process(record.Snapshot{record.NewImmediate(dur.ID(), variant.FromInt(v))})
	}

	rows := agg.Finalize()
	require.Len(t, rows, 1)

	min, ok := findColumn(rows[0], "min#time.duration")
	require.True(t, ok)
	minI, _ := min.AsInt()
	require.Equal(t, int64(2), minI)

	max, ok := findColumn(rows[0], "max#time.duration")
	require.True(t, ok)
	maxI, _ := max.AsInt()
	require.Equal(t, int64(8), maxI)

	avg, ok := findColumn(rows[0], "avg#time.duration")
	require.True(t, ok)
	avgF, _ := avg.AsDouble()
	require.InDelta(t, 5.0, avgF, 0.001)

	cnt, ok := findColumn(rows[0], "count#time.duration")
	require.True(t, ok)
	cntU, _ := cnt.AsUint()
	require.Equal(t, uint64(4), cntU)
}

func TestInclusiveSumProducesOneRowPerAncestor(t *testing.T) {
	tree := contexttree.New()
	reg := contexttree.NewAttributeTable(tree)
	phase := newAttr(t, reg, "phase", variant.TypeString)
	fn := newAttr(t, reg, "function", variant.TypeString)
	dur := newAttr(t, reg, "time.duration", variant.TypeInt)

	incOp := calql.AggregationOp{Sig: calql.FunctionSignature{Name: "inclusive_sum", MinArgs: 1, MaxArgs: 1}, Args: []string{"time.duration"}}
	agg := New(tree, reg, nil, []calql.AggregationOp{incOp})

	// Both snapshots nest a "function" region inside the same "phase"
	// region: time.duration must accumulate into the function's own
	// ancestor node, the shared phase node, and the tree root.
	agg.Process(record.Snapshot{
		record.NewImmediate(phase.ID(), variant.FromString("main")),
		record.NewImmediate(fn.ID(), variant.FromString("work")),
		record.NewImmediate(dur.ID(), variant.FromInt(10)),
	})
	agg.Process(record.Snapshot{
		record.NewImmediate(phase.ID(), variant.FromString("main")),
		record.NewImmediate(fn.ID(), variant.FromString("other")),
		record.NewImmediate(dur.ID(), variant.FromInt(7)),
	})

	rows := agg.Finalize()
	require.Len(t, rows, 4, "one row per distinct ancestor node across the whole group")

	totals := map[string]int64{}
	for _, row := range rows {
		path, ok := findColumn(row, "path")
		require.True(t, ok)
		label, _ := path.AsString()
		v, ok := findColumn(row, "inclusive_sum#time.duration")
		require.True(t, ok)
		n, _ := v.AsInt()
		totals[label] = n
	}

	require.Equal(t, int64(17), totals["<root>"])
	require.Equal(t, int64(17), totals["phase=main"])
	require.Equal(t, int64(10), totals["function=work"])
	require.Equal(t, int64(7), totals["function=other"])
}

func TestRatioKernel(t *testing.T) {
	tree := contexttree.New()
	reg := contexttree.NewAttributeTable(tree)
	hit := newAttr(t, reg, "cache.hit", variant.TypeInt)
	total := newAttr(t, reg, "cache.total", variant.TypeInt)

	ratioOp := calql.AggregationOp{
		Sig:  calql.FunctionSignature{Name: "ratio", MinArgs: 2, MaxArgs: 3},
		Args: []string{"cache.hit", "cache.total", "100"},
	}
	agg := New(tree, reg, nil, []calql.AggregationOp{ratioOp})

	agg.Process(record.Snapshot{record.NewImmediate(hit.ID(), variant.FromInt(3)), record.NewImmediate(total.ID(), variant.FromInt(4))})
	agg.Process(record.Snapshot{record.NewImmediate(hit.ID(), variant.FromInt(1)), record.NewImmediate(total.ID(), variant.FromInt(4))})

	rows := agg.Finalize()
	require.Len(t, rows, 1)
	v, ok := findColumn(rows[0], "ratio#cache.hit/cache.total")
	require.True(t, ok)
	f, _ := v.AsDouble()
	require.InDelta(t, 50.0, f, 0.001)
}
