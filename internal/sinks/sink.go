// Package sinks provides the io.Writer targets a stream.Writer fans
// out to: a rotating local .cali file, and a Kafka topic publishing
// one record per line. Both are grounded on the teacher's sink
// lifecycle (Start/Stop around a queue drained by worker goroutines),
// simplified to the single concern of moving already-encoded stream
// bytes rather than re-formatting arbitrary log entries.
package sinks

import "context"

// Sink is an io.Writer with an explicit lifecycle: Start must be
// called before any Write, and Stop drains the queue and closes the
// underlying transport.
type Sink interface {
	Start(ctx context.Context) error
	Stop() error
	Write(p []byte) (int, error)
}
