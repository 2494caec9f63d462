// Package pipeline implements component J: it composes the stages a
// query drives a record through — preprocess (LET), filter (WHERE),
// aggregate-or-passthrough, sort (ORDER BY), and finally a formatter —
// into the single entry point a CLI or embedder calls once it has a
// parsed calql.QuerySpec and a merged set of snapshots.
package pipeline

import (
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/LLNL/caliper-go/pkg/aggregate"
	"github.com/LLNL/caliper-go/pkg/calql"
	"github.com/LLNL/caliper-go/pkg/contexttree"
	cerrors "github.com/LLNL/caliper-go/pkg/errors"
	"github.com/LLNL/caliper-go/pkg/format"
	"github.com/LLNL/caliper-go/pkg/record"
	"github.com/LLNL/caliper-go/pkg/stream"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// Pipeline runs one parsed query against a set of already-merged
// snapshots and a context tree/attribute registry.
type Pipeline struct {
	spec  calql.QuerySpec
	tree  *contexttree.Tree
	attrs *contexttree.AttributeTable
	title string
}

// New builds a Pipeline for spec over tree/attrs.
func New(spec calql.QuerySpec, tree *contexttree.Tree, attrs *contexttree.AttributeTable) *Pipeline {
	return &Pipeline{spec: spec, tree: tree, attrs: attrs}
}

// SetTitle sets the title a table/tree formatter prints above its
// output, set from the CLI's --title flag rather than CalQL itself
// (CalQL's FORMAT clause has no title syntax).
func (p *Pipeline) SetTitle(title string) {
	p.title = title
}

// Run drives every snapshot through preprocess -> filter ->
// aggregate-or-passthrough -> sort, then renders the result to w using
// the query's FORMAT clause (defaulting to "table" if unspecified).
// globals, if non-empty, is written only by FORMAT cali, as a trailing
// globals record; every other formatter ignores it, including
// json-split and json-object.
func (p *Pipeline) Run(w io.Writer, snapshots []record.Snapshot, globals record.Snapshot) error {
	formatName := p.spec.Format.Name
	if formatName == "" {
		formatName = "table"
	}

	if formatName == "cali" {
		return p.runCali(w, snapshots, globals)
	}

	rows, err := p.evaluate(snapshots)
	if err != nil {
		return err
	}
	p.sortRows(rows)

	opts := format.Options{Args: p.spec.Format.Args, Title: p.title}
	f, err := format.New(formatName, w, opts)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := f.ProcessRecord(r); err != nil {
			return err
		}
	}
	return f.Flush()
}

// runCali re-emits every snapshot (and the nodes it references) in
// the on-disk stream format, bypassing the Row-based formatter
// registry entirely: see DESIGN.md's pkg/format entry.
func (p *Pipeline) runCali(w io.Writer, snapshots []record.Snapshot, globals record.Snapshot) error {
	sw := stream.NewWriter(w)
	written := map[contexttree.NodeID]bool{}

	for _, snap := range snapshots {
		refs, values, err := p.writeReferencedNodes(sw, snap, written)
		if err != nil {
			return err
		}
		if err := sw.WriteCtx(refs, values); err != nil {
			return err
		}
	}
	if len(globals) > 0 {
		refs, values, err := p.writeReferencedNodes(sw, globals, written)
		if err != nil {
			return err
		}
		if err := sw.WriteGlobals(refs, values); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func (p *Pipeline) writeReferencedNodes(sw *stream.Writer, snap record.Snapshot, written map[contexttree.NodeID]bool) ([]uint64, []stream.RefDataPair, error) {
	var refs []uint64
	var values []stream.RefDataPair
	for _, e := range snap {
		if e.IsReference() {
			if err := p.writeNodeChain(sw, e.Node(), written); err != nil {
				return nil, nil, err
			}
			refs = append(refs, uint64(e.Node()))
			continue
		}
		if e.IsImmediate() {
			attr := e.Attribute(p.tree)
			if err := p.writeNodeChain(sw, attr, written); err != nil {
				return nil, nil, err
			}
			v := e.Value(p.tree)
			values = append(values, stream.RefDataPair{Attr: uint64(attr), Data: v.Format()})
		}
	}
	return refs, values, nil
}

func (p *Pipeline) writeNodeChain(sw *stream.Writer, id contexttree.NodeID, written map[contexttree.NodeID]bool) error {
	// The root and the bootstrap meta-attribute ids are never written:
	// a reader maps those ids to themselves.
	if id <= contexttree.ClassAggregatable || written[id] {
		return nil
	}
	n := p.tree.Node(id)
	if n.Parent != contexttree.RootNodeID {
		if err := p.writeNodeChain(sw, n.Parent, written); err != nil {
			return err
		}
	}
	if err := p.writeNodeChain(sw, n.Attribute, written); err != nil {
		return err
	}
	written[id] = true
	return sw.WriteNode(uint64(id), uint64(n.Attribute), n.Value.Format(), uint64(n.Parent), n.Parent != contexttree.RootNodeID)
}

// evalContext resolves a column name to a value for one record: first
// against this record's LET-computed values, then against the real
// attribute registry.
type evalContext struct {
	tree     *contexttree.Tree
	attrs    *contexttree.AttributeTable
	snap     record.Snapshot
	computed map[string]variant.Value
}

func (e evalContext) valueFor(name string) (variant.Value, bool) {
	if v, ok := e.computed[name]; ok {
		return v, true
	}
	attr, ok := e.attrs.Find(name)
	if !ok {
		return variant.Empty, false
	}
	return e.snap.ValueFor(e.tree, attr.ID())
}

func (p *Pipeline) preprocess(snap record.Snapshot) map[string]variant.Value {
	computed := map[string]variant.Value{}
	ectx := evalContext{tree: p.tree, attrs: p.attrs, snap: snap, computed: computed}
	for _, op := range p.spec.PreprocessOps {
		if op.HasCond && !evalCondition(ectx, op.Cond) {
			continue
		}
		if v, ok := evalPreprocessOp(ectx, op.Op); ok {
			computed[op.Target] = v
		}
	}
	return computed
}

func evalPreprocessOp(e evalContext, op calql.AggregationOp) (variant.Value, bool) {
	switch op.Sig.Name {
	case "ratio":
		n, nOK := e.valueFor(op.Args[0])
		d, dOK := e.valueFor(op.Args[1])
		if !nOK || !dOK {
			return variant.Empty, false
		}
		nf, _ := n.AsDouble()
		df, _ := d.AsDouble()
		if df == 0 {
			return variant.Empty, false
		}
		scale := 1.0
		if len(op.Args) == 3 {
			if s, err := strconv.ParseFloat(op.Args[2], 64); err == nil {
				scale = s
			}
		}
		return variant.FromDouble(scale * nf / df), true

	case "scale":
		v, ok := e.valueFor(op.Args[0])
		if !ok {
			return variant.Empty, false
		}
		f, _ := v.AsDouble()
		factor, err := strconv.ParseFloat(op.Args[1], 64)
		if err != nil {
			return variant.Empty, false
		}
		return variant.FromDouble(f * factor), true

	case "truncate":
		v, ok := e.valueFor(op.Args[0])
		if !ok {
			return variant.Empty, false
		}
		f, _ := v.AsDouble()
		step := 1.0
		if len(op.Args) == 2 {
			if s, err := strconv.ParseFloat(op.Args[1], 64); err == nil && s != 0 {
				step = s
			}
		}
		return variant.FromDouble(math.Floor(f/step) * step), true

	case "first":
		for _, name := range op.Args {
			if v, ok := e.valueFor(name); ok {
				return v, true
			}
		}
		return variant.Empty, false

	default:
		return variant.Empty, false
	}
}

func evalCondition(e evalContext, c calql.Condition) bool {
	v, has := e.valueFor(c.Attr)
	switch c.Op {
	case calql.CondExist:
		return has
	case calql.CondNotExist:
		return !has
	case calql.CondEqual:
		return has && v.Format() == c.Value
	case calql.CondNotEqual:
		return !has || v.Format() != c.Value
	case calql.CondLessThan, calql.CondGreaterThan, calql.CondLessOrEqual, calql.CondGreaterOrEqual:
		if !has {
			return false
		}
		cmp := compareAgainstText(v, c.Value)
		switch c.Op {
		case calql.CondLessThan:
			return cmp < 0
		case calql.CondGreaterThan:
			return cmp > 0
		case calql.CondLessOrEqual:
			return cmp <= 0
		case calql.CondGreaterOrEqual:
			return cmp >= 0
		}
	}
	return false
}

// compareAgainstText parses text as v's own type (falling back to a
// plain string compare if that fails) so that "iteration>10" compares
// numerically rather than lexicographically.
func compareAgainstText(v variant.Value, text string) int {
	parsed, err := variant.ParseText(v.Type(), text)
	if err != nil {
		if v.Format() < text {
			return -1
		}
		if v.Format() > text {
			return 1
		}
		return 0
	}
	return v.Compare(parsed)
}

// evaluate runs preprocess+filter over every snapshot, then either
// aggregates the survivors or, if the query names no aggregation ops
// and no GROUP BY, passes each one through as its own output row.
func (p *Pipeline) evaluate(snapshots []record.Snapshot) ([]format.Row, error) {
	aggregated := len(p.spec.AggregationOps) > 0 || len(p.spec.AggregationKey) > 0

	var agg *aggregate.Aggregator
	if aggregated {
		keyAttrs := make([]contexttree.AttributeID, 0, len(p.spec.AggregationKey))
		for _, name := range p.spec.AggregationKey {
			a, ok := p.attrs.Find(name)
			if !ok {
				return nil, cerrors.New(cerrors.CodeNotFound, "pipeline", "evaluate",
					"unknown GROUP BY attribute \""+name+"\"")
			}
			keyAttrs = append(keyAttrs, a.ID())
		}
		agg = aggregate.New(p.tree, p.attrs, keyAttrs, p.spec.AggregationOps)
	}

	var passthrough []format.Row
	for _, snap := range snapshots {
		computed := p.preprocess(snap)
		ectx := evalContext{tree: p.tree, attrs: p.attrs, snap: snap, computed: computed}

		keep := true
		for _, cond := range p.spec.Filter {
			if !evalCondition(ectx, cond) {
				keep = false
				break
			}
		}
		if !keep {
			continue
		}

		if aggregated {
			agg.Process(snap)
			continue
		}
		passthrough = append(passthrough, p.passthroughRow(ectx))
	}

	if aggregated {
		return p.renderAggregated(agg.Finalize()), nil
	}
	return passthrough, nil
}

func (p *Pipeline) passthroughRow(ectx evalContext) format.Row {
	names := p.spec.Selection
	if p.spec.SelectionMode == calql.SelectAll || len(names) == 0 {
		names = p.allAttributeNames(ectx)
	}
	var row format.Row
	for _, name := range names {
		if v, ok := ectx.valueFor(name); ok {
			row.Columns = append(row.Columns, format.Column{Name: p.displayFor(name), Value: v})
		}
	}
	return row
}

func (p *Pipeline) allAttributeNames(ectx evalContext) []string {
	seen := map[string]bool{}
	var names []string
	for _, e := range ectx.snap {
		attr := e.Attribute(ectx.tree)
		a, ok := ectx.attrs.ByID(attr)
		if !ok || a.Hidden() {
			continue
		}
		if !seen[a.Name()] {
			seen[a.Name()] = true
			names = append(names, a.Name())
		}
	}
	sort.Strings(names)
	return names
}

func (p *Pipeline) renderAggregated(aggRows []aggregate.Row) []format.Row {
	rows := make([]format.Row, 0, len(aggRows))
	for _, ar := range aggRows {
		var row format.Row
		for _, name := range p.spec.Selection {
			if v, ok := p.lookupAggregated(ar, name); ok {
				row.Columns = append(row.Columns, format.Column{Name: p.displayFor(name), Value: v})
			}
		}
		if len(p.spec.Selection) == 0 {
			for i, name := range p.spec.AggregationKey {
				row.Columns = append(row.Columns, format.Column{Name: p.displayFor(name), Value: ar.Key[i]})
			}
			for _, c := range ar.Columns {
				row.Columns = append(row.Columns, format.Column{Name: p.displayFor(c.Name), Value: c.Value})
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (p *Pipeline) lookupAggregated(ar aggregate.Row, name string) (variant.Value, bool) {
	for i, key := range p.spec.AggregationKey {
		if key == name {
			return ar.Key[i], true
		}
	}
	for _, c := range ar.Columns {
		if c.Name == name {
			return c.Value, true
		}
	}
	return variant.Empty, false
}

func (p *Pipeline) displayFor(name string) string {
	if alias, ok := p.spec.Aliases[name]; ok {
		return alias
	}
	return name
}

func (p *Pipeline) sortRows(rows []format.Row) {
	if len(p.spec.Sort) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, s := range p.spec.Sort {
			name := p.displayFor(s.Attr)
			vi, _ := rows[i].Get(name)
			vj, _ := rows[j].Get(name)
			cmp := vi.Compare(vj)
			if cmp == 0 {
				continue
			}
			if s.Order == calql.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
