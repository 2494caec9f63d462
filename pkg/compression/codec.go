// Package compression wraps pkg/stream's byte-oriented writer/reader
// with one of three selectable frame codecs, so a .cali recording can
// be written compressed on disk or over the wire without stream.Writer
// itself knowing anything about compression.
package compression

import (
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names accepted by NewWriter/NewReader.
const (
	Snappy = "snappy"
	Zstd   = "zstd"
	LZ4    = "lz4"
)

// NewWriter wraps w with the named codec's compressing writer. The
// caller must Close the returned writer to flush the final frame.
func NewWriter(name string, w io.Writer) (io.WriteCloser, error) {
	switch name {
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	case LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("compression: unknown codec %q", name)
	}
}

// NewReader wraps r with the named codec's decompressing reader.
func NewReader(name string, r io.Reader) (io.Reader, error) {
	switch name {
	case Snappy:
		return snappy.NewReader(r), nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return &zstdReadCloser{dec}, nil
	case LZ4:
		return lz4.NewReader(r), nil
	default:
		return nil, fmt.Errorf("compression: unknown codec %q", name)
	}
}

// zstdReadCloser adapts *zstd.Decoder's parameterless Close to the
// io.Closer a caller expects to be able to defer uniformly across
// codecs.
type zstdReadCloser struct {
	dec *zstd.Decoder
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }
func (z *zstdReadCloser) Close() error                { z.dec.Close(); return nil }
