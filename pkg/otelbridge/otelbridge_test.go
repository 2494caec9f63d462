package otelbridge

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/LLNL/caliper-go/internal/config"
	"github.com/LLNL/caliper-go/pkg/caliper"
	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/variant"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(config.OtelConfig{ServiceName: "test", Exporter: "bogus"}, discardLogger())
	require.Error(t, err)
}

func TestBridgeOpensAndClosesSpanOnBeginEnd(t *testing.T) {
	p, err := NewProvider(config.OtelConfig{ServiceName: "test", Exporter: "otlp", Endpoint: "localhost:4318"}, discardLogger())
	require.NoError(t, err)

	rt := caliper.NewRuntime()
	ch, err := rt.OpenChannel("main", caliper.ChannelConfig{})
	require.NoError(t, err)

	attr, err := rt.CreateAttribute("region", variant.TypeString, 0, contexttree.ScopeProcess)
	require.NoError(t, err)

	b := Attach(ch, p)

	require.NoError(t, ch.Begin(0, attr, variant.FromString("outer")))
	b.mu.Lock()
	require.Len(t, b.stack[spanKey{scope: 0, attr: "region"}], 1)
	b.mu.Unlock()

	require.NoError(t, ch.End(0, attr))
	b.mu.Lock()
	require.Len(t, b.stack[spanKey{scope: 0, attr: "region"}], 0)
	b.mu.Unlock()
}
