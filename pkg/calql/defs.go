package calql

// AggregationDefs lists every aggregation operator the engine
// advertises to the parser, matching spec.md §4.G/§4.H.
func AggregationDefs() []FunctionSignature {
	return []FunctionSignature{
		{Name: "count", MinArgs: 0, MaxArgs: 0},
		{Name: "sum", MinArgs: 1, MaxArgs: 1, ArgNames: []string{"attribute"}},
		{Name: "min", MinArgs: 1, MaxArgs: 1, ArgNames: []string{"attribute"}},
		{Name: "max", MinArgs: 1, MaxArgs: 1, ArgNames: []string{"attribute"}},
		{Name: "avg", MinArgs: 1, MaxArgs: 1, ArgNames: []string{"attribute"}},
		{Name: "inclusive_sum", MinArgs: 1, MaxArgs: 1, ArgNames: []string{"attribute"}},
		{Name: "percent_total", MinArgs: 1, MaxArgs: 1, ArgNames: []string{"attribute"}},
		{Name: "ratio", MinArgs: 2, MaxArgs: 3, ArgNames: []string{"numerator", "denominator", "scale"}},
		{Name: "any", MinArgs: 1, MaxArgs: 1, ArgNames: []string{"attribute"}},
		{Name: "statistics", MinArgs: 1, MaxArgs: 1, ArgNames: []string{"attribute"}},
	}
}

// PreprocessDefs lists every LET-clause operator.
func PreprocessDefs() []FunctionSignature {
	return []FunctionSignature{
		{Name: "ratio", MinArgs: 2, MaxArgs: 3, ArgNames: []string{"numerator", "denominator", "scale"}},
		{Name: "scale", MinArgs: 2, MaxArgs: 2, ArgNames: []string{"value", "factor"}},
		{Name: "truncate", MinArgs: 1, MaxArgs: 2, ArgNames: []string{"value", "step"}},
		{Name: "first", MinArgs: 1, MaxArgs: -1, ArgNames: []string{"attributes..."}},
	}
}

// FormatterDefs lists every FORMAT-clause formatter name.
func FormatterDefs() []FunctionSignature {
	return []FunctionSignature{
		{Name: "cali", MinArgs: 0, MaxArgs: 0},
		{Name: "expand", MinArgs: 0, MaxArgs: 0},
		{Name: "format", MinArgs: 1, MaxArgs: 1, ArgNames: []string{"template"}},
		{Name: "json", MinArgs: 0, MaxArgs: 0},
		{Name: "json-split", MinArgs: 0, MaxArgs: 0},
		{Name: "json-object", MinArgs: 0, MaxArgs: 0},
		{Name: "table", MinArgs: 0, MaxArgs: -1, ArgNames: []string{"columns..."}},
		{Name: "tree", MinArgs: 0, MaxArgs: -1, ArgNames: []string{"path-attributes..."}},
	}
}

func findDef(defs []FunctionSignature, name string) (FunctionSignature, bool) {
	for _, d := range defs {
		if d.Name == name {
			return d, true
		}
	}
	return FunctionSignature{}, false
}
