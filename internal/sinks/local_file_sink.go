package sinks

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/LLNL/caliper-go/internal/config"
	cerrors "github.com/LLNL/caliper-go/pkg/errors"
)

// LocalFileSink writes stream bytes to a rotating local file. It
// mirrors the teacher's queue-plus-worker shape (a buffered channel of
// chunks drained by a single writer goroutine) but drops the
// teacher's disk-space-percentage monitoring: a .cali recording is
// sized by the run, not by a long-lived daemon watching free space.
type LocalFileSink struct {
	cfg    config.LocalFileSinkConfig
	path   string
	logger *logrus.Entry

	mu       sync.Mutex
	file     *os.File
	written  int64
	sequence int

	queue chan []byte
	done  chan struct{}
}

// NewLocalFileSink builds a sink that writes to path (typically
// config.RecorderPath(cfg)).
func NewLocalFileSink(cfg config.LocalFileSinkConfig, path string, logger *logrus.Entry) *LocalFileSink {
	return &LocalFileSink{
		cfg:    cfg,
		path:   path,
		logger: logger,
		queue:  make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// Start opens the current file and launches the drain goroutine.
func (s *LocalFileSink) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return cerrors.New(cerrors.CodeIoError, "sinks", "Start", "create sink directory").Wrap(err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return cerrors.New(cerrors.CodeIoError, "sinks", "Start", "open sink file").Wrap(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return cerrors.New(cerrors.CodeIoError, "sinks", "Start", "stat sink file").Wrap(err)
	}

	s.file = f
	s.written = info.Size()

	go s.drain()
	s.logger.WithField("path", s.path).Info("local file sink started")
	return nil
}

func (s *LocalFileSink) drain() {
	defer close(s.done)
	for chunk := range s.queue {
		s.writeChunk(chunk)
	}
}

func (s *LocalFileSink) writeChunk(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxSizeBytes > 0 && s.written+int64(len(chunk)) > s.cfg.MaxSizeBytes && s.written > 0 {
		s.rotate()
	}

	n, err := s.file.Write(chunk)
	if err != nil {
		s.logger.WithError(err).Error("local file sink write failed")
		return
	}
	s.written += int64(n)
}

// rotate closes the current file, optionally compresses it, and opens
// a fresh one in its place. Caller must hold s.mu.
func (s *LocalFileSink) rotate() {
	s.file.Close()
	s.sequence++
	rotated := fmt.Sprintf("%s.%d", s.path, s.sequence)
	if err := os.Rename(s.path, rotated); err != nil {
		s.logger.WithError(err).Error("local file sink rotation rename failed")
	} else if s.cfg.Compress {
		if err := compressFile(rotated); err != nil {
			s.logger.WithError(err).Warn("local file sink rotation compress failed")
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		s.logger.WithError(err).Error("local file sink failed to reopen after rotation")
		return
	}
	s.file = f
	s.written = 0
}

func compressFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// Write enqueues p for the drain goroutine. p is copied, since
// stream.Writer reuses its buffer across calls.
func (s *LocalFileSink) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case s.queue <- buf:
		return len(p), nil
	case <-s.done:
		return 0, cerrors.New(cerrors.CodeIoError, "sinks", "Write", "sink already stopped")
	}
}

// Stop drains the queue and closes the file.
func (s *LocalFileSink) Stop() error {
	close(s.queue)
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
