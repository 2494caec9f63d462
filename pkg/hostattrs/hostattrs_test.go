package hostattrs

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/LLNL/caliper-go/internal/config"
	"github.com/LLNL/caliper-go/pkg/caliper"
)

func discardEntry() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("test", true)
}

func TestPublishSkippedWhenDisabled(t *testing.T) {
	rt := caliper.NewRuntime()
	ch, err := rt.OpenChannel("main", caliper.ChannelConfig{})
	require.NoError(t, err)

	c := New(config.HostAttrsConfig{Enabled: false}, discardEntry())
	c.Publish(rt, ch)

	_, ok := rt.Attributes().Find("host.name")
	require.False(t, ok)
}

func TestPublishDeclaresHostnameAttribute(t *testing.T) {
	rt := caliper.NewRuntime()
	ch, err := rt.OpenChannel("main", caliper.ChannelConfig{})
	require.NoError(t, err)

	c := New(config.HostAttrsConfig{Enabled: true}, discardEntry())
	c.Publish(rt, ch)

	attr, ok := rt.Attributes().Find("host.name")
	require.True(t, ok)
	require.True(t, attr.Global())
}

func TestPublishWithDockerDoesNotPanicWithoutDaemon(t *testing.T) {
	rt := caliper.NewRuntime()
	ch, err := rt.OpenChannel("main", caliper.ChannelConfig{})
	require.NoError(t, err)

	c := New(config.HostAttrsConfig{Enabled: true, IncludeDocker: true, DockerSocket: "unix:///no/such/socket.sock"}, discardEntry())
	require.NotPanics(t, func() { c.Publish(rt, ch) })
}
