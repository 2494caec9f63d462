package calql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleSelectWhereFormat(t *testing.T) {
	spec, err := Parse(`SELECT function, time.duration WHERE region FORMAT table`)
	require.NoError(t, err)
	require.Equal(t, SelectList, spec.SelectionMode)
	require.Equal(t, []string{"function", "time.duration"}, spec.Selection)
	require.Len(t, spec.Filter, 1)
	require.Equal(t, "region", spec.Filter[0].Attr)
	require.Equal(t, CondExist, spec.Filter[0].Op)
	require.Equal(t, "table", spec.Format.Name)
}

func TestParseSelectStar(t *testing.T) {
	spec, err := Parse(`SELECT *`)
	require.NoError(t, err)
	require.Equal(t, SelectAll, spec.SelectionMode)
}

func TestParseAggregationInSelect(t *testing.T) {
	spec, err := Parse(`SELECT function, sum(time.duration) GROUP BY function FORMAT table`)
	require.NoError(t, err)
	require.Len(t, spec.AggregationOps, 1)
	require.Equal(t, "sum", spec.AggregationOps[0].Sig.Name)
	require.Equal(t, []string{"time.duration"}, spec.AggregationOps[0].Args)
	require.Equal(t, "sum#time.duration", spec.AggregationOps[0].Name())
	require.Equal(t, []string{"function"}, spec.AggregationKey)
}

func TestParseAliasAndUnit(t *testing.T) {
	spec, err := Parse(`SELECT sum(time.duration) AS total UNIT sec`)
	require.NoError(t, err)
	require.Equal(t, "total", spec.Aliases["sum#time.duration"])
	require.Equal(t, "sec", spec.Units["sum#time.duration"])
}

func TestParseWhereComparisons(t *testing.T) {
	spec, err := Parse(`WHERE loop=main,iteration>10,not rank<2`)
	require.NoError(t, err)
	require.Len(t, spec.Filter, 3)
	require.Equal(t, CondEqual, spec.Filter[0].Op)
	require.Equal(t, "main", spec.Filter[0].Value)
	require.Equal(t, CondGreaterThan, spec.Filter[1].Op)
	require.Equal(t, CondGreaterOrEqual, spec.Filter[2].Op, "NOT rank<2 becomes rank>=2")
}

func TestParseOrderByWithDirections(t *testing.T) {
	spec, err := Parse(`ORDER BY function asc, time.duration desc`)
	require.NoError(t, err)
	require.Len(t, spec.Sort, 2)
	require.Equal(t, Ascending, spec.Sort[0].Order)
	require.Equal(t, Descending, spec.Sort[1].Order)
}

func TestParseLetWithCondition(t *testing.T) {
	spec, err := Parse(`LET pct = ratio(time.duration, total) IF time.duration`)
	require.NoError(t, err)
	require.Len(t, spec.PreprocessOps, 1)
	op := spec.PreprocessOps[0]
	require.Equal(t, "pct", op.Target)
	require.Equal(t, "ratio", op.Op.Sig.Name)
	require.True(t, op.HasCond)
	require.Equal(t, CondExist, op.Cond.Op)
}

func TestParseUnknownAggregationFunctionFails(t *testing.T) {
	_, err := Parse(`SELECT bogus(x)`)
	require.Error(t, err)
}

func TestParseWrongArityFails(t *testing.T) {
	_, err := Parse(`SELECT sum(a, b)`)
	require.Error(t, err)
}

func TestParseUnknownFormatterFails(t *testing.T) {
	_, err := Parse(`FORMAT bogus`)
	require.Error(t, err)
}

func TestParseFullQuery(t *testing.T) {
	q := `LET pct = ratio(a, b) SELECT function, sum(a) AS total GROUP BY function WHERE function ORDER BY total desc FORMAT table`
	spec, err := Parse(q)
	require.NoError(t, err)
	require.Len(t, spec.PreprocessOps, 1)
	require.Len(t, spec.AggregationOps, 1)
	require.Equal(t, []string{"function"}, spec.AggregationKey)
	require.Len(t, spec.Filter, 1)
	require.Len(t, spec.Sort, 1)
	require.Equal(t, "table", spec.Format.Name)
}
