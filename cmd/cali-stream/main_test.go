package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/LLNL/caliper-go/internal/config"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("test", true)
}

func TestCodecForPath(t *testing.T) {
	require.Equal(t, "snappy", codecForPath("x.cali.snappy"))
	require.Equal(t, "", codecForPath("x.cali"))
}

func TestDumpFileEmitsEveryLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.cali")
	require.NoError(t, os.WriteFile(path, []byte("ctx a=1\nctx a=2\n"), 0o644))

	var got []string
	err := dumpFile(path, func(line string) error {
		got = append(got, line)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ctx a=1", "ctx a=2"}, got)
}

func TestBuildSinkReturnsNilWhenNoneEnabled(t *testing.T) {
	cfg := &config.Config{}
	sink, err := buildSink(cfg, discardLogger())
	require.NoError(t, err)
	require.Nil(t, sink)
}
