package sinks

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu      sync.Mutex
	writes  [][]byte
	startN  int
	stopN   int
	failAll bool
}

func (m *memSink) Start(ctx context.Context) error { m.startN++; return nil }
func (m *memSink) Stop() error                      { m.stopN++; return nil }
func (m *memSink) Write(p []byte) (int, error) {
	if m.failAll {
		return 0, io.ErrClosedPipe
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	m.writes = append(m.writes, cp)
	return len(p), nil
}

func discardLogrusEntry() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("test", true)
}

func TestFanoutWritesToEverySink(t *testing.T) {
	a, b := &memSink{}, &memSink{}
	f := NewFanout([]Sink{a, b}, discardLogrusEntry())
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	n, err := f.Write([]byte("phase.begin main\n"))
	require.NoError(t, err)
	require.Equal(t, len("phase.begin main\n"), n)

	require.Len(t, a.writes, 1)
	require.Len(t, b.writes, 1)
	require.Equal(t, a.writes[0], b.writes[0])
}

func TestFanoutPropagatesSinkError(t *testing.T) {
	ok, bad := &memSink{}, &memSink{failAll: true}
	f := NewFanout([]Sink{ok, bad}, discardLogrusEntry())
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	_, err := f.Write([]byte("x"))
	require.Error(t, err)
}
