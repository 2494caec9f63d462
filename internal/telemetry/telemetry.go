// Package telemetry exposes Caliper's own self-metrics over HTTP:
// context tree size, blackboard depth, snapshot rate and aggregator
// group count, plus a "/query" debug endpoint that runs a CalQL query
// against the process's own runtime for live introspection.
package telemetry

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registerOnce sync.Once

	// TreeNodeCount is the current number of live nodes in the
	// process-wide context tree.
	TreeNodeCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "caliper_tree_node_count",
		Help: "Number of nodes currently allocated in the context tree",
	})

	// BlackboardDepth tracks the deepest attribute stack observed in
	// any scope's blackboard, by scope kind.
	BlackboardDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "caliper_blackboard_depth",
		Help: "Deepest attribute stack currently held by a blackboard",
	}, []string{"scope"})

	// SnapshotsTotal counts snapshots pushed per channel.
	SnapshotsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caliper_snapshots_total",
		Help: "Total snapshots pushed, by channel",
	}, []string{"channel"})

	// AggregatorGroupCount is the number of distinct groups a running
	// aggregation currently holds.
	AggregatorGroupCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "caliper_aggregator_group_count",
		Help: "Number of groups held by the most recent aggregation",
	})
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(TreeNodeCount, BlackboardDepth, SnapshotsTotal, AggregatorGroupCount)
	})
}

// QueryRunner executes a CalQL query string against the live runtime
// and writes formatted output to w, for the "/query" debug endpoint.
// pkg/pipeline.Pipeline.Run satisfies this via a small adapter in
// cmd/cali-query, keeping internal/telemetry free of an import on
// pkg/pipeline/pkg/calql.
type QueryRunner func(query string, w http.ResponseWriter) error

// Server is the self-metrics and debug HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
}

// New builds a Server listening on addr, serving Prometheus metrics at
// path and, if run is non-nil, a "/query?q=..." debug endpoint.
func New(addr, path string, run QueryRunner, logger *logrus.Logger) *Server {
	registerMetrics()

	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if run != nil {
		router.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query().Get("q")
			if q == "" {
				http.Error(w, "missing q parameter", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			if err := run(q, w); err != nil {
				logger.WithError(err).WithField("query", q).Warn("debug query failed")
				_, _ = w.Write([]byte(fmt.Sprintf("error: %v\n", err)))
			}
		})
	}

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: router},
		logger:     logger,
	}
}

// Start launches the server in a background goroutine. Errors other
// than a clean shutdown are logged, not returned, since the caller
// already moved on by the time ListenAndServe would fail.
func (s *Server) Start() {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting telemetry server")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("telemetry server stopped unexpectedly")
		}
	}()
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

// ObserveSnapshot records one pushed snapshot for channel.
func ObserveSnapshot(channel string) {
	SnapshotsTotal.WithLabelValues(channel).Inc()
}

// SetBlackboardDepth records the current stack depth for scope.
func SetBlackboardDepth(scope string, depth int) {
	BlackboardDepth.WithLabelValues(scope).Set(float64(depth))
}

// SetTreeNodeCount records the tree's current node count.
func SetTreeNodeCount(n int) {
	TreeNodeCount.Set(float64(n))
}

// SetAggregatorGroupCount records the group count of the most recent
// aggregation.
func SetAggregatorGroupCount(n int) {
	AggregatorGroupCount.Set(float64(n))
}

