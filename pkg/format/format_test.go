package format

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LLNL/caliper-go/pkg/variant"
)

func row(pairs ...interface{}) Row {
	var r Row
	for i := 0; i < len(pairs); i += 2 {
		r.Columns = append(r.Columns, Column{Name: pairs[i].(string), Value: pairs[i+1].(variant.Value)})
	}
	return r
}

func TestExpandWritesImmediately(t *testing.T) {
	var buf bytes.Buffer
	f := NewExpand(&buf, Options{})
	require.NoError(t, f.ProcessRecord(row("function", variant.FromString("main"), "time.duration", variant.FromInt(42))))
	require.NoError(t, f.Flush())
	require.Equal(t, "function=main,time.duration=42\n", buf.String())
}

func TestTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	f := NewTable(&buf, Options{})
	require.NoError(t, f.ProcessRecord(row("function", variant.FromString("main"), "count", variant.FromUint(1))))
	require.NoError(t, f.ProcessRecord(row("function", variant.FromString("helper_long_name"), "count", variant.FromUint(12))))
	require.NoError(t, f.Flush())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "function"))
	for _, l := range lines {
		require.Contains(t, l, " ")
	}
}

func TestTableClampsLongValues(t *testing.T) {
	var buf bytes.Buffer
	f := NewTable(&buf, Options{})
	long := strings.Repeat("x", 80)
	require.NoError(t, f.ProcessRecord(row("path", variant.FromString(long))))
	require.NoError(t, f.Flush())
	require.NotContains(t, buf.String(), long)
	require.Contains(t, buf.String(), "..")
}

func TestUserFormatSubstitutesPlaceholders(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewUserFormat(&buf, Options{Args: []string{"%[function] took %[time.duration]ms"}})
	require.NoError(t, err)
	require.NoError(t, f.ProcessRecord(row("function", variant.FromString("main"), "time.duration", variant.FromInt(7))))
	require.NoError(t, f.Flush())
	require.Equal(t, "main took 7ms\n", buf.String())
}

func TestUserFormatMissingAttributeBlank(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewUserFormat(&buf, Options{Args: []string{"x=%[missing]"}})
	require.NoError(t, err)
	require.NoError(t, f.ProcessRecord(row("function", variant.FromString("main"))))
	require.NoError(t, f.Flush())
	require.Equal(t, "x=\n", buf.String())
}

func TestJSONRecordsStreamsOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONRecords(&buf, Options{})
	require.NoError(t, f.ProcessRecord(row("function", variant.FromString("main"))))
	require.NoError(t, f.ProcessRecord(row("function", variant.FromString("helper"))))
	require.NoError(t, f.Flush())
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"function":"main"`)
}

func TestJSONSplitShape(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONSplit(&buf, Options{})
	require.NoError(t, f.ProcessRecord(row("function", variant.FromString("main"), "count", variant.FromUint(3))))
	require.NoError(t, f.Flush())
	out := buf.String()
	require.Contains(t, out, `"columns"`)
	require.Contains(t, out, `"data"`)
	require.Contains(t, out, `"column_metadata"`)
}

func TestJSONObjectShape(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONObject(&buf, Options{})
	require.NoError(t, f.ProcessRecord(row("function", variant.FromString("main"))))
	require.NoError(t, f.Flush())
	out := buf.String()
	require.Contains(t, out, `"records"`)
	require.Contains(t, out, `"attributes"`)
	require.Contains(t, out, `"globals"`)
}

func TestTreeIndentsNestedPath(t *testing.T) {
	var buf bytes.Buffer
	f := NewTree(&buf, Options{Args: []string{"phase", "function"}})
	require.NoError(t, f.ProcessRecord(row("phase", variant.FromString("init"), "function", variant.FromString("setup"), "count", variant.FromUint(1))))
	require.NoError(t, f.Flush())
	out := buf.String()
	require.Contains(t, out, "init")
	require.Contains(t, out, "setup")
	// "setup" is nested one level deeper than "init".
	initIdx := strings.Index(out, "init")
	setupIdx := strings.Index(out, "setup")
	require.Less(t, initIdx, setupIdx)
}

func TestRegistryUnknownFormatterErrors(t *testing.T) {
	var buf bytes.Buffer
	_, err := New("bogus", &buf, Options{})
	require.Error(t, err)
}

func TestRegistryDispatchesByName(t *testing.T) {
	var buf bytes.Buffer
	f, err := New("expand", &buf, Options{})
	require.NoError(t, err)
	require.NotNil(t, f)
}
