package compression

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, codec string) {
	t.Helper()

	var buf bytes.Buffer
	w, err := NewWriter(codec, &buf)
	require.NoError(t, err)

	payload := []byte("phase.begin main 2026-07-31T00:00:00Z region=us-east-1\n")
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(codec, &buf)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestRoundTripSnappy(t *testing.T) { roundTrip(t, Snappy) }
func TestRoundTripZstd(t *testing.T)   { roundTrip(t, Zstd) }
func TestRoundTripLZ4(t *testing.T)    { roundTrip(t, LZ4) }

func TestNewWriterRejectsUnknownCodec(t *testing.T) {
	_, err := NewWriter("bogus", &bytes.Buffer{})
	require.Error(t, err)
}

func TestNewReaderRejectsUnknownCodec(t *testing.T) {
	_, err := NewReader("bogus", bytes.NewReader(nil))
	require.Error(t, err)
}
