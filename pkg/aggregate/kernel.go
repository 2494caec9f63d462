package aggregate

import (
	"sort"

	"github.com/LLNL/caliper-go/pkg/calql"
	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/record"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// kernelState is the running accumulator for one aggregation op within
// one group. A single struct covers every op kind (sum, min/max,
// count, avg, statistics, ratio, any) rather than one type per op,
// since they mostly share the same sum/count/min/max/first fields and
// differ only in which of those Finalize reads back.
type kernelState struct {
	count uint64

	sumInt bool // true while every contribution so far has been an exact integer
	sumI   int64
	sumF   float64

	min, max variant.Value
	hasMin   bool
	hasMax   bool

	first    variant.Value
	hasFirst bool

	// ratio: separate running sums for the numerator and denominator attrs.
	ratioN, ratioD float64

	// inclusive holds inclusive_sum's per-ancestor running totals, keyed
	// by the tree node id of each ancestor that has accumulated at least
	// one contribution. Unlike every other op, inclusive_sum's finalized
	// output is not a single Column on this group's row but one row per
	// key in this map (see finalizeInclusive and Aggregator.Finalize).
	inclusive map[contexttree.NodeID]*ancestorSum
}

// ancestorSum is inclusive_sum's running total for one ancestor node:
// the same exact-integer-preferring accumulation as kernelState.sumI/
// sumF/sumInt, kept separate so that an inclusive_sum op's bookkeeping
// never interferes with a plain sum/percent_total op's.
type ancestorSum struct {
	sumInt bool
	sumI   int64
	sumF   float64
}

func (a *ancestorSum) add(v variant.Value) {
	if i, ok := v.AsInt(); ok && v.Type() != variant.TypeDouble {
		a.sumI += i
	} else {
		a.sumInt = false
	}
	if f, ok := v.AsDouble(); ok {
		a.sumF += f
	}
}

func (a *ancestorSum) value() variant.Value {
	if a.sumInt {
		return variant.FromInt(a.sumI)
	}
	return variant.FromDouble(a.sumF)
}

func newKernelState(op calql.AggregationOp) kernelState {
	return kernelState{sumInt: true}
}

func attrByName(attrs *contexttree.AttributeTable, name string) (contexttree.AttributeID, bool) {
	a, ok := attrs.Find(name)
	if !ok {
		return contexttree.InvalidAttributeID, false
	}
	return a.ID(), true
}

func (k *kernelState) addNumeric(v variant.Value) {
	k.count++
	if i, ok := v.AsInt(); ok && v.Type() != variant.TypeDouble {
		k.sumI += i
	} else {
		k.sumInt = false
	}
	if f, ok := v.AsDouble(); ok {
		k.sumF += f
	}
	if !k.hasMin || v.Compare(k.min) < 0 {
		k.min = v
		k.hasMin = true
	}
	if !k.hasMax || v.Compare(k.max) > 0 {
		k.max = v
		k.hasMax = true
	}
}

// update folds one record's contribution to this op into the kernel's
// running state. Every branch here is an abelian-semigroup update
// (sum/min/max/count) except "any", which is first-writer-wins and
// therefore NOT commutative across concurrent Process calls for a
// single group — spec.md §4.H documents any() as picking an arbitrary
// surviving value, so that is the intended behavior rather than a bug.
func (k *kernelState) update(tree *contexttree.Tree, attrs *contexttree.AttributeTable, snap record.Snapshot, op calql.AggregationOp) {
	switch op.Sig.Name {
	case "count":
		k.count++

	case "sum", "percent_total", "min", "max", "avg", "statistics":
		attr, ok := attrByName(attrs, op.Args[0])
		if !ok {
			return
		}
		v, ok := snap.ValueFor(tree, attr)
		if !ok {
			return
		}
		k.addNumeric(v)

	case "inclusive_sum":
		attr, ok := attrByName(attrs, op.Args[0])
		if !ok {
			return
		}
		v, ok := snap.ValueFor(tree, attr)
		if !ok {
			return
		}
		// §4.H: sum[p] += v for every ancestor p of this snapshot's
		// canonical path node, not just the deepest-matching one.
		node, _, err := record.MakeRecord(tree, attrs, snap, contexttree.RootNodeID)
		if err != nil {
			return
		}
		if k.inclusive == nil {
			k.inclusive = make(map[contexttree.NodeID]*ancestorSum)
		}
		for _, p := range tree.Path(node) {
			a := k.inclusive[p]
			if a == nil {
				a = &ancestorSum{sumInt: true}
				k.inclusive[p] = a
			}
			a.add(v)
		}

	case "any":
		attr, ok := attrByName(attrs, op.Args[0])
		if !ok {
			return
		}
		if k.hasFirst {
			return
		}
		if v, ok := snap.ValueFor(tree, attr); ok {
			k.first = v
			k.hasFirst = true
		}

	case "ratio":
		nAttr, nOK := attrByName(attrs, op.Args[0])
		dAttr, dOK := attrByName(attrs, op.Args[1])
		if nOK {
			if v, ok := snap.ValueFor(tree, nAttr); ok {
				if f, ok := v.AsDouble(); ok {
					k.ratioN += f
				}
			}
		}
		if dOK {
			if v, ok := snap.ValueFor(tree, dAttr); ok {
				if f, ok := v.AsDouble(); ok {
					k.ratioD += f
				}
			}
		}
	}
}

// sumValue returns the kernel's running sum as a Value, preferring the
// exact int64 accumulator when every contribution was an integer.
func (k *kernelState) sumValue() variant.Value {
	if k.sumInt {
		return variant.FromInt(k.sumI)
	}
	return variant.FromDouble(k.sumF)
}

// finalize produces the named output column(s) for this op. total is
// the grand total across every group's sum, used only by
// percent_total (see Aggregator.percentTotals).
func (k *kernelState) finalize(op calql.AggregationOp, total float64) []Column {
	name := op.Name()
	switch op.Sig.Name {
	case "count":
		return []Column{{Name: name, Value: variant.FromUint(k.count)}}

	case "sum":
		return []Column{{Name: name, Value: k.sumValue()}}

	case "percent_total":
		pct := 0.0
		if total != 0 {
			f, _ := k.sumValue().AsDouble()
			pct = 100 * f / total
		}
		return []Column{{Name: name, Value: variant.FromDouble(pct)}}

	case "min":
		if !k.hasMin {
			return []Column{{Name: name, Value: variant.Empty}}
		}
		return []Column{{Name: name, Value: k.min}}

	case "max":
		if !k.hasMax {
			return []Column{{Name: name, Value: variant.Empty}}
		}
		return []Column{{Name: name, Value: k.max}}

	case "avg":
		avg := 0.0
		if k.count > 0 {
			avg = k.sumF / float64(k.count)
		}
		return []Column{{Name: name, Value: variant.FromDouble(avg)}}

	case "statistics":
		avg := 0.0
		if k.count > 0 {
			avg = k.sumF / float64(k.count)
		}
		min, max := variant.Empty, variant.Empty
		if k.hasMin {
			min = k.min
		}
		if k.hasMax {
			max = k.max
		}
		return []Column{
			{Name: "min#" + op.Args[0], Value: min},
			{Name: "max#" + op.Args[0], Value: max},
			{Name: "avg#" + op.Args[0], Value: variant.FromDouble(avg)},
			{Name: "count#" + op.Args[0], Value: variant.FromUint(k.count)},
		}

	case "any":
		if !k.hasFirst {
			return []Column{{Name: name, Value: variant.Empty}}
		}
		return []Column{{Name: name, Value: k.first}}

	case "ratio":
		scale := 1.0
		if len(op.Args) == 3 {
			// The third argument is a literal scale factor (e.g. "100" for
			// a percentage); parsed leniently since the grammar only
			// guarantees it is a word, not that it is numeric text.
			if v, err := variant.ParseText(variant.TypeDouble, op.Args[2]); err == nil {
				if f, ok := v.AsDouble(); ok {
					scale = f
				}
			}
		}
		r := 0.0
		if k.ratioD != 0 {
			r = scale * k.ratioN / k.ratioD
		}
		return []Column{{Name: name, Value: variant.FromDouble(r)}}

	default:
		return nil
	}
}

// finalizeInclusive produces one Column set per ancestor node
// accumulated for an inclusive_sum op — §4.H's "produce one output row
// per ancestor" — sorted by node id for deterministic output order
// independent of processing order. Aggregator.Finalize turns each
// returned set into its own Row, sharing the group's normal key.
func (k *kernelState) finalizeInclusive(tree *contexttree.Tree, attrs *contexttree.AttributeTable, op calql.AggregationOp) [][]Column {
	if len(k.inclusive) == 0 {
		return nil
	}
	ids := make([]contexttree.NodeID, 0, len(k.inclusive))
	for id := range k.inclusive {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	name := op.Name()
	out := make([][]Column, 0, len(ids))
	for _, id := range ids {
		out = append(out, []Column{
			{Name: "path", Value: variant.FromString(ancestorLabel(tree, attrs, id))},
			{Name: name, Value: k.inclusive[id].value()},
		})
	}
	return out
}

// ancestorLabel names one inclusive_sum ancestor row: "<attr>=<value>"
// for a real tree node, or "<root>" for the whole-path total.
func ancestorLabel(tree *contexttree.Tree, attrs *contexttree.AttributeTable, id contexttree.NodeID) string {
	if id == contexttree.RootNodeID {
		return "<root>"
	}
	n := tree.Node(id)
	name := "?"
	if a, ok := attrs.ByID(n.Attribute); ok {
		name = a.Name()
	}
	return name + "=" + n.Value.Format()
}
