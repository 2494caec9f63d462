// Command cali-query is the offline query CLI: it merges one or more
// .cali recordings into a single context tree, runs a CalQL query
// against the merged snapshots, and renders the result in the
// requested format. A --query literal takes CalQL text directly;
// otherwise a query is assembled from the --select/--aggregate/...
// flags the way the original tool's flag surface maps onto CalQL.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/LLNL/caliper-go/internal/clog"
	"github.com/LLNL/caliper-go/internal/config"
	"github.com/LLNL/caliper-go/internal/telemetry"
	"github.com/LLNL/caliper-go/pkg/calql"
	"github.com/LLNL/caliper-go/pkg/compression"
	"github.com/LLNL/caliper-go/pkg/contexttree"
	cerrors "github.com/LLNL/caliper-go/pkg/errors"
	"github.com/LLNL/caliper-go/pkg/hotreload"
	"github.com/LLNL/caliper-go/pkg/pipeline"
	"github.com/LLNL/caliper-go/pkg/record"
	"github.com/LLNL/caliper-go/pkg/stream"
)

type flags struct {
	configFile     string
	selectFlag     string
	aggregate      string
	aggregateKey   string
	attributes     string
	sortBy         string
	formatFlag     string
	title          string
	table          bool
	tree           bool
	pathAttributes string
	json           bool
	query          string
	output         string
	verbose        bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var f flags
	fs := flag.NewFlagSet("cali-query", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "path to configuration file")
	fs.StringVar(&f.selectFlag, "select", "", "comma-separated attributes/aggregations to select")
	fs.StringVar(&f.aggregate, "aggregate", "", "comma-separated aggregation function calls, e.g. sum(time.duration)")
	fs.StringVar(&f.aggregateKey, "aggregate-key", "", "comma-separated GROUP BY attributes")
	fs.StringVar(&f.attributes, "attributes", "", "comma-separated table columns to show")
	fs.StringVar(&f.sortBy, "sort-by", "", "comma-separated ORDER BY attributes (append :desc for descending)")
	fs.StringVar(&f.formatFlag, "format", "", "raw FORMAT clause body, e.g. table(phase,time.duration)")
	fs.StringVar(&f.title, "title", "", "title printed above table output")
	fs.BoolVar(&f.table, "table", false, "render as a table (default)")
	fs.BoolVar(&f.tree, "tree", false, "render as a path tree")
	fs.StringVar(&f.pathAttributes, "path-attributes", "", "comma-separated path attributes for --tree")
	fs.BoolVar(&f.json, "json", false, "render as JSON records")
	fs.StringVar(&f.query, "query", "", "a literal CalQL query, overriding --select/--aggregate/...")
	fs.StringVar(&f.output, "output", "", "output file (default stdout)")
	fs.BoolVar(&f.verbose, "verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(f.configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cali-query: %v\n", err)
		return 1
	}
	if f.verbose {
		cfg.Logging.Level = "debug"
	}
	logger := clog.New(cfg.Logging)
	log := clog.WithComponent(logger, "cali-query")

	inputs := fs.Args()
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "cali-query: at least one input file or directory is required")
		return 2
	}

	queryText, err := buildQueryText(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cali-query: %v\n", err)
		return 2
	}

	spec, err := calql.Parse(queryText)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cali-query: %v\n", err)
		if cerrors.HasCode(err, cerrors.CodeParseError) {
			return 2
		}
		return 1
	}

	tree := contexttree.New()
	attrs := contexttree.NewAttributeTable(tree)
	merger := stream.NewMerger(tree, attrs)

	files, err := expandInputs(inputs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cali-query: %v\n", err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "cali-query: no .cali files found under the given inputs")
		return 1
	}

	var snapshots []record.Snapshot
	var globals record.Snapshot
	for _, path := range files {
		result, err := mergeFile(merger, path)
		if err != nil {
			log.WithError(err).WithField("file", path).Error("failed to merge recording")
			return 1
		}
		snapshots = append(snapshots, result.Snapshots...)
		if len(result.Globals) > 0 {
			globals = result.Globals
		}
	}

	p := pipeline.New(spec, tree, attrs)
	p.SetTitle(f.title)

	out := io.Writer(os.Stdout)
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cali-query: %v\n", err)
			return 1
		}
		defer file.Close()
		out = file
	}

	runQuery := func() error { return p.Run(out, snapshots, globals) }

	var telemetryServer *telemetry.Server
	if cfg.Telemetry.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Telemetry.Host, cfg.Telemetry.Port)
		debugRunner := func(q string, w http.ResponseWriter) error {
			debugSpec, err := calql.Parse(q)
			if err != nil {
				return err
			}
			return pipeline.New(debugSpec, tree, attrs).Run(w, snapshots, globals)
		}
		telemetryServer = telemetry.New(addr, cfg.Telemetry.Path, debugRunner, logger)
		telemetryServer.Start()
		defer telemetryServer.Stop()
	}

	if cfg.HotReload.Enabled && cfg.HotReload.QueryFile != "" {
		watcher, err := hotreload.New([]string{cfg.HotReload.QueryFile, f.configFile}, 0, func(path string) {
			log.WithField("file", path).Info("input changed, re-running query")
			if err := runQuery(); err != nil {
				log.WithError(err).Warn("re-run after reload failed")
			}
		}, log)
		if err != nil {
			log.WithError(err).Warn("failed to start hot reload watcher")
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	if err := runQuery(); err != nil {
		fmt.Fprintf(os.Stderr, "cali-query: %v\n", err)
		return 1
	}
	return 0
}

func mergeFile(merger *stream.Merger, path string) (stream.MergeResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return stream.MergeResult{}, err
	}
	defer file.Close()

	var r io.Reader = file
	if codec := codecForPath(path); codec != "" {
		cr, err := compression.NewReader(codec, file)
		if err != nil {
			return stream.MergeResult{}, err
		}
		r = cr
	}
	return merger.Merge(r)
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

// expandInputs resolves the positional arguments, in the order given,
// to a list of .cali (optionally compressed) files: a file is taken
// as-is, a directory is walked (in lexical order) for every *.cali*
// entry. The combined list is not sorted.
func expandInputs(inputs []string) ([]string, error) {
	var files []string
	for _, in := range inputs {
		fi, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			files = append(files, in)
			continue
		}
		err = filepath.WalkDir(in, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if strings.Contains(d.Name(), ".cali") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// buildQueryText returns f.query verbatim if set, otherwise assembles
// CalQL clause text from the individual --select/--aggregate/...
// flags.
func buildQueryText(f flags) (string, error) {
	if strings.TrimSpace(f.query) != "" {
		return f.query, nil
	}

	var clauses []string

	var selection []string
	if f.selectFlag != "" {
		selection = append(selection, splitTopLevel(f.selectFlag)...)
	}
	if f.aggregate != "" {
		selection = append(selection, splitTopLevel(f.aggregate)...)
	}
	if len(selection) > 0 {
		clauses = append(clauses, "SELECT "+strings.Join(selection, ", "))
	}

	if f.aggregateKey != "" {
		clauses = append(clauses, "GROUP BY "+strings.Join(splitCSV(f.aggregateKey), ", "))
	}

	if f.sortBy != "" {
		var terms []string
		for _, t := range splitCSV(f.sortBy) {
			if attr, ok := strings.CutSuffix(t, ":desc"); ok {
				terms = append(terms, attr+" desc")
			} else {
				terms = append(terms, t)
			}
		}
		clauses = append(clauses, "ORDER BY "+strings.Join(terms, ", "))
	}

	switch {
	case f.formatFlag != "":
		clauses = append(clauses, "FORMAT "+f.formatFlag)
	case f.json:
		clauses = append(clauses, "FORMAT json")
	case f.tree:
		clauses = append(clauses, "FORMAT tree("+f.pathAttributes+")")
	case f.table, f.attributes != "":
		clauses = append(clauses, "FORMAT table("+f.attributes+")")
	}

	return strings.Join(clauses, "\n"), nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitTopLevel splits s on commas that aren't nested inside
// parentheses, so a multi-argument aggregation call like
// "ratio(a,b,1000)" survives intact alongside plain attribute names.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				if p := strings.TrimSpace(s[start:i]); p != "" {
					out = append(out, p)
				}
				start = i + 1
			}
		}
	}
	if p := strings.TrimSpace(s[start:]); p != "" {
		out = append(out, p)
	}
	return out
}
