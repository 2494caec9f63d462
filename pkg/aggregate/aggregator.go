// Package aggregate implements the group-by aggregator (component H):
// a map from group-key tuples to a vector of typed kernel
// accumulators, one per aggregation op in the query.
package aggregate

import (
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/LLNL/caliper-go/pkg/calql"
	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/record"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// keySep separates key-tuple fields when forming a group's lookup key.
// It is the ASCII unit separator, chosen because it cannot appear in
// any Format()-rendered attribute value the formatters themselves
// would ever produce.
const keySep = "\x1f"

// Column is one named output value from a group's finalized kernels.
type Column struct {
	Name  string
	Value variant.Value
}

// Row is one finalized group: the group-by key's values (in
// key-attribute order) plus every aggregation op's output columns.
type Row struct {
	Key     []variant.Value
	Columns []Column
}

// Aggregator groups entries by a tuple of group-by-attribute values
// and runs a fixed set of aggregation kernels per group. It is safe
// for concurrent Process calls: spec.md §5 describes the aggregator
// as a single mutex-guarded sink behind a fan-in point, not a
// per-shard structure, so one mutex over the whole group map is the
// intended synchronization granularity rather than something
// finer-grained.
type Aggregator struct {
	tree     *contexttree.Tree
	attrs    *contexttree.AttributeTable
	keyAttrs []contexttree.AttributeID
	ops      []calql.AggregationOp

	mu sync.Mutex
	// groups is keyed by an xxhash of the group's joined key string,
	// with a slice per bucket to resolve the rare hash collision by
	// falling back to an exact keyStr comparison.
	groups map[uint64][]*group
	count  int
}

type group struct {
	keyStr  string
	key     []variant.Value
	kernels []kernelState
}

// New creates an Aggregator grouping by keyAttrs and running ops. A
// nil/empty keyAttrs means every record folds into a single group
// (e.g. `SELECT statistics(time.duration)` with no GROUP BY).
func New(tree *contexttree.Tree, attrs *contexttree.AttributeTable, keyAttrs []contexttree.AttributeID, ops []calql.AggregationOp) *Aggregator {
	return &Aggregator{
		tree:     tree,
		attrs:    attrs,
		keyAttrs: keyAttrs,
		ops:      ops,
		groups:   make(map[uint64][]*group),
	}
}

// Process folds one record's entries into its group. Processing order
// across concurrent callers must not affect the final Finalize()
// output: every kernel here is restricted to an abelian-semigroup
// update (or, for percent_total, deferred to a second pass), which is
// what makes Process commutative with record order.
func (a *Aggregator) Process(snap record.Snapshot) {
	keyStrs := make([]string, len(a.keyAttrs))
	keyVals := make([]variant.Value, len(a.keyAttrs))
	for i, attr := range a.keyAttrs {
		v, _ := snap.ValueFor(a.tree, attr)
		keyVals[i] = v
		keyStrs[i] = v.Format()
	}
	keyStr := strings.Join(keyStrs, keySep)
	hash := xxhash.Sum64String(keyStr)

	a.mu.Lock()
	defer a.mu.Unlock()

	var g *group
	for _, candidate := range a.groups[hash] {
		if candidate.keyStr == keyStr {
			g = candidate
			break
		}
	}
	if g == nil {
		g = &group{keyStr: keyStr, key: keyVals, kernels: make([]kernelState, len(a.ops))}
		for i, op := range a.ops {
			g.kernels[i] = newKernelState(op)
		}
		a.groups[hash] = append(a.groups[hash], g)
		a.count++
	}

	for i, op := range a.ops {
		g.kernels[i].update(a.tree, a.attrs, snap, op)
	}
}

// Finalize computes every group's output row, sorted by key tuple so
// that the same input multiset always produces the same output order
// regardless of the order records were processed in (the commutativity
// property from spec.md §8). percent_total columns are resolved here,
// in a second pass over every group's sum, since that kernel needs the
// grand total across the whole (already-filtered) group set.
//
// inclusive_sum is the one op that does not contribute a Column to its
// group's single row: per §4.H it contributes one ROW per ancestor
// node it accumulated, so a group with an inclusive_sum op expands
// into len(ancestors) rows, each carrying the group's ordinary key and
// non-inclusive columns plus that ancestor's path label and sum. A
// group with multiple inclusive_sum ops expands once per such op (the
// cross product), though queries with more than one are rare.
func (a *Aggregator) Finalize() []Row {
	a.mu.Lock()
	defer a.mu.Unlock()

	all := make([]*group, 0, a.count)
	for _, bucket := range a.groups {
		all = append(all, bucket...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].keyStr < all[j].keyStr })

	totals := a.percentTotals(all)

	var rows []Row
	for _, g := range all {
		base := Row{Key: g.key}
		for i, op := range a.ops {
			if op.Sig.Name == "inclusive_sum" {
				continue
			}
			base.Columns = append(base.Columns, g.kernels[i].finalize(op, totals[i])...)
		}

		expanded := []Row{base}
		for i, op := range a.ops {
			if op.Sig.Name != "inclusive_sum" {
				continue
			}
			ancestorCols := g.kernels[i].finalizeInclusive(a.tree, a.attrs, op)
			if len(ancestorCols) == 0 {
				continue
			}
			next := make([]Row, 0, len(expanded)*len(ancestorCols))
			for _, r := range expanded {
				for _, cols := range ancestorCols {
					merged := make([]Column, 0, len(r.Columns)+len(cols))
					merged = append(merged, r.Columns...)
					merged = append(merged, cols...)
					next = append(next, Row{Key: r.Key, Columns: merged})
				}
			}
			expanded = next
		}
		rows = append(rows, expanded...)
	}
	return rows
}

// percentTotals computes, for each op index that is a percent_total,
// the grand total (sum across every group) of that op's running sum.
// Every other op index maps to zero and is unused by finalize.
func (a *Aggregator) percentTotals(all []*group) []float64 {
	totals := make([]float64, len(a.ops))
	for i, op := range a.ops {
		if op.Sig.Name != "percent_total" {
			continue
		}
		var total float64
		for _, g := range all {
			if f, ok := g.kernels[i].sumValue().AsDouble(); ok {
				total += f
			}
		}
		totals[i] = total
	}
	return totals
}
