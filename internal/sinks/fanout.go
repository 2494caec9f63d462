package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/LLNL/caliper-go/pkg/workerpool"
)

// Fanout replicates every Write to a fixed set of Sinks, dispatching the
// per-sink writes across a worker pool so one slow sink (a Kafka broker
// under backpressure, say) doesn't stall the others.
type Fanout struct {
	sinks  []Sink
	pool   *workerpool.Pool
	logger *logrus.Entry

	mu   sync.Mutex
	next uint64
}

// NewFanout builds a Fanout over sinks, sized to one worker per sink (at
// least one).
func NewFanout(sinks []Sink, logger *logrus.Entry) *Fanout {
	workers := len(sinks)
	if workers < 1 {
		workers = 1
	}
	pool := workerpool.New(workerpool.Config{MaxWorkers: workers, EnableMetrics: false}, logger.Logger)
	return &Fanout{sinks: sinks, pool: pool, logger: logger}
}

func (f *Fanout) Start(ctx context.Context) error {
	if err := f.pool.Start(); err != nil {
		return err
	}
	for _, s := range f.sinks {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("fanout: starting sink: %w", err)
		}
	}
	return nil
}

// Write submits one task per sink and blocks until every sink has accepted
// the bytes (or one has failed). The byte slice is copied before fan-out so
// concurrent sink writes never race over a caller-owned buffer.
func (f *Fanout) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)

	errs := make([]error, len(f.sinks))
	dones := make([]chan struct{}, len(f.sinks))

	for i, s := range f.sinks {
		i, s := i, s
		done := make(chan struct{})
		dones[i] = done
		if err := f.pool.Submit(workerpool.Task{
			ID: f.taskID(),
			Execute: func(ctx context.Context) error {
				defer close(done)
				_, err := s.Write(buf)
				errs[i] = err
				return err
			},
		}); err != nil {
			errs[i] = err
			close(done)
			continue
		}
	}

	for _, done := range dones {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (f *Fanout) Stop() error {
	var firstErr error
	for _, s := range f.sinks {
		if err := s.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.pool.Stop()
	return firstErr
}

func (f *Fanout) taskID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return fmt.Sprintf("fanout-%d", f.next)
}
