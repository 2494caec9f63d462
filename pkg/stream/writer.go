package stream

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	cerrors "github.com/LLNL/caliper-go/pkg/errors"
)

// Writer serializes node/ctx/globals records to an underlying
// io.Writer, one per line. A Writer is safe for concurrent use: per
// spec.md §5, output streams are guarded by a mutex held only around
// a single record write.
type Writer struct {
	mu  sync.Mutex
	w   *bufio.Writer
	out io.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), out: w}
}

// WriteNode emits a node record. hasParent selects whether the parent
// key is included (the tree root has no parent record at all).
func (s *Writer) WriteNode(id, attr uint64, data string, parent uint64, hasParent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "__rec=node,id=%d,attr=%d,data=%s", id, attr, escapeValue(data)); err != nil {
		return s.ioErr("WriteNode", err)
	}
	if hasParent {
		if _, err := fmt.Fprintf(s.w, ",parent=%d", parent); err != nil {
			return s.ioErr("WriteNode", err)
		}
	}
	return s.newline("WriteNode")
}

// WriteCtx emits a ctx (snapshot) record.
func (s *Writer) WriteCtx(refs []uint64, values []RefDataPair) error {
	return s.writeSnapshotLike(KindCtx, refs, values)
}

// WriteGlobals emits the single end-of-stream globals record.
func (s *Writer) WriteGlobals(refs []uint64, values []RefDataPair) error {
	return s.writeSnapshotLike(KindGlobals, refs, values)
}

func (s *Writer) writeSnapshotLike(kind Kind, refs []uint64, values []RefDataPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "__rec=%s", kind); err != nil {
		return s.ioErr("writeSnapshotLike", err)
	}
	for _, r := range refs {
		if _, err := fmt.Fprintf(s.w, ",ref=%d", r); err != nil {
			return s.ioErr("writeSnapshotLike", err)
		}
	}
	for _, v := range values {
		if _, err := fmt.Fprintf(s.w, ",attr=%d,data=%s", v.Attr, escapeValue(v.Data)); err != nil {
			return s.ioErr("writeSnapshotLike", err)
		}
	}
	return s.newline("writeSnapshotLike")
}

func (s *Writer) newline(op string) error {
	if _, err := s.w.WriteString("\n"); err != nil {
		return s.ioErr(op, err)
	}
	return nil
}

func (s *Writer) ioErr(op string, cause error) error {
	return cerrors.New(cerrors.CodeIoError, "stream", op, "write failed").Wrap(cause)
}

// Flush flushes any buffered bytes to the underlying writer.
func (s *Writer) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return s.ioErr("Flush", err)
	}
	return nil
}
