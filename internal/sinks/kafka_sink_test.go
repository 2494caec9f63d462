package sinks

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LLNL/caliper-go/internal/config"
)

func TestNewKafkaSinkRejectsMissingBrokers(t *testing.T) {
	_, err := NewKafkaSink(config.KafkaSinkConfig{Topic: "cali-records"}, discardEntry())
	require.Error(t, err)
}

func TestNewKafkaSinkRejectsMissingTopic(t *testing.T) {
	_, err := NewKafkaSink(config.KafkaSinkConfig{Brokers: []string{"localhost:9092"}}, discardEntry())
	require.Error(t, err)
}

func TestDrainLinesSplitsCompleteLines(t *testing.T) {
	buf := bytes.NewBufferString("__rec=node,id=1\n__rec=node,id=2\npartial")
	lines := drainLines(buf)

	require.Len(t, lines, 2)
	require.Equal(t, "__rec=node,id=1", string(lines[0]))
	require.Equal(t, "__rec=node,id=2", string(lines[1]))
	require.Equal(t, "partial", buf.String())
}

func TestDrainLinesAccumulatesAcrossCalls(t *testing.T) {
	buf := bytes.NewBufferString("__rec=node,id=1,data=ab")
	require.Empty(t, drainLines(buf))

	buf.WriteString("c\n")
	lines := drainLines(buf)
	require.Len(t, lines, 1)
	require.Equal(t, "__rec=node,id=1,data=abc", string(lines[0]))
}
