package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildQueryTextPrefersLiteralQuery(t *testing.T) {
	text, err := buildQueryText(flags{query: "SELECT phase"})
	require.NoError(t, err)
	require.Equal(t, "SELECT phase", text)
}

func TestBuildQueryTextAssemblesFromFlags(t *testing.T) {
	text, err := buildQueryText(flags{
		selectFlag:   "phase",
		aggregate:    "sum(time.duration)",
		aggregateKey: "phase",
		sortBy:       "phase:desc",
		table:        true,
		attributes:   "phase,sum#time.duration",
	})
	require.NoError(t, err)
	require.Contains(t, text, "SELECT phase, sum(time.duration)")
	require.Contains(t, text, "GROUP BY phase")
	require.Contains(t, text, "ORDER BY phase desc")
	require.Contains(t, text, "FORMAT table(phase,sum#time.duration)")
}

func TestBuildQueryTextJSONFlagSelectsJSONFormat(t *testing.T) {
	text, err := buildQueryText(flags{selectFlag: "phase", json: true})
	require.NoError(t, err)
	require.Contains(t, text, "FORMAT json")
}

func TestSplitCSVTrimsAndDropsEmpty(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, splitCSV(" a ,, b"))
}

func TestSplitTopLevelKeepsParenthesizedArgsIntact(t *testing.T) {
	require.Equal(t, []string{"phase", "ratio(a,b,1000)", "sum(x)"}, splitTopLevel("phase, ratio(a,b,1000), sum(x)"))
}

func TestExpandInputsWalksDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cali"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cali.snappy"), []byte("y"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("z"), 0o644))

	files, err := expandInputs([]string{dir})
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestCodecForPath(t *testing.T) {
	require.Equal(t, "snappy", codecForPath("x.cali.snappy"))
	require.Equal(t, "zstd", codecForPath("x.cali.zst"))
	require.Equal(t, "lz4", codecForPath("x.cali.lz4"))
	require.Equal(t, "", codecForPath("x.cali"))
}
