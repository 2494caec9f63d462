// Command cali-stream is a small utility binary for moving .cali
// stream bytes around: dump one or more recordings to stdout (or
// --output), or --follow a single growing recording the way `tail -f`
// would, forwarding every line to whichever sinks the configuration
// enables (internal/sinks.LocalFileSink/KafkaSink, fanned out
// concurrently when more than one is enabled).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"

	"github.com/LLNL/caliper-go/internal/clog"
	"github.com/LLNL/caliper-go/internal/config"
	"github.com/LLNL/caliper-go/internal/sinks"
	"github.com/LLNL/caliper-go/pkg/compression"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var configFile, output string
	var follow, verbose bool

	fs := flag.NewFlagSet("cali-stream", flag.ContinueOnError)
	fs.StringVar(&configFile, "config", "", "path to configuration file")
	fs.StringVar(&output, "output", "", "output file (default stdout)")
	fs.BoolVar(&follow, "follow", false, "tail a single growing .cali file")
	fs.BoolVar(&verbose, "verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	inputs := fs.Args()
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "cali-stream: at least one input file is required")
		return 2
	}
	if follow && len(inputs) != 1 {
		fmt.Fprintln(os.Stderr, "cali-stream: --follow takes exactly one file")
		return 2
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cali-stream: %v\n", err)
		return 1
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger := clog.New(cfg.Logging)
	log := clog.WithComponent(logger, "cali-stream")

	out := io.Writer(os.Stdout)
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cali-stream: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	sink, err := buildSink(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cali-stream: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	if sink != nil {
		if err := sink.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "cali-stream: starting sinks: %v\n", err)
			return 1
		}
		defer sink.Stop()
	}

	emit := func(line string) error {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
		if sink != nil {
			if _, err := sink.Write([]byte(line + "\n")); err != nil {
				return err
			}
		}
		return nil
	}

	if follow {
		if err := followFile(ctx, inputs[0], emit); err != nil {
			log.WithError(err).Error("follow failed")
			return 1
		}
		return 0
	}

	for _, path := range inputs {
		if err := dumpFile(path, emit); err != nil {
			log.WithError(err).WithField("file", path).Error("dump failed")
			return 1
		}
	}
	return 0
}

// buildSink wires whichever of the configured sinks are enabled behind
// a single Sink, fanning out across them when more than one is.
// Returns a nil Sink (not an error) when none are enabled.
func buildSink(cfg *config.Config, log *logrus.Entry) (sinks.Sink, error) {
	var active []sinks.Sink

	if cfg.Sinks.LocalFile.Enabled {
		active = append(active, sinks.NewLocalFileSink(cfg.Sinks.LocalFile, config.RecorderPath(cfg), log.WithField("sink", "local_file")))
	}
	if cfg.Sinks.Kafka.Enabled {
		k, err := sinks.NewKafkaSink(cfg.Sinks.Kafka, log.WithField("sink", "kafka"))
		if err != nil {
			return nil, err
		}
		active = append(active, k)
	}

	switch len(active) {
	case 0:
		return nil, nil
	case 1:
		return active[0], nil
	default:
		return sinks.NewFanout(active, log.WithField("sink", "fanout")), nil
	}
}

func dumpFile(path string, emit func(string) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	if codec := codecForPath(path); codec != "" {
		cr, err := compression.NewReader(codec, file)
		if err != nil {
			return err
		}
		r = cr
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := emit(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func followFile(ctx context.Context, path string, emit func(string) error) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
	})
	if err != nil {
		return err
	}
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			if err := emit(line.Text); err != nil {
				return err
			}
		}
	}
}

func codecForPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".snappy"):
		return compression.Snappy
	case strings.HasSuffix(path, ".zst"):
		return compression.Zstd
	case strings.HasSuffix(path, ".lz4"):
		return compression.LZ4
	default:
		return ""
	}
}
