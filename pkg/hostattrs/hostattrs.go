// Package hostattrs collects host and, best-effort, container
// identity and publishes them as global attributes on a channel at
// startup, so every snapshot and globals record in a run carries
// where it came from without the instrumented application having to
// ask for it.
package hostattrs

import (
	"context"
	"os"
	"time"

	"github.com/docker/docker/client"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/LLNL/caliper-go/internal/config"
	"github.com/LLNL/caliper-go/pkg/caliper"
	"github.com/LLNL/caliper-go/pkg/contexttree"
	"github.com/LLNL/caliper-go/pkg/variant"
)

// Collector gathers host/container attributes per cfg and publishes
// them on a Runtime/Channel as global (PropGlobal) attributes.
type Collector struct {
	cfg    config.HostAttrsConfig
	logger *logrus.Entry
}

// New builds a Collector.
func New(cfg config.HostAttrsConfig, logger *logrus.Entry) *Collector {
	return &Collector{cfg: cfg, logger: logger}
}

// Publish declares and sets the global attributes this process
// exposes: host.name always; host.cpu_count and host.memory_bytes
// best-effort via gopsutil; container.id and container.image
// best-effort via the Docker API when cfg.IncludeDocker is set.
// Failures collecting any one attribute are logged and skipped rather
// than aborting the rest — a missing CPU count shouldn't cost the run
// its hostname.
func (c *Collector) Publish(rt *caliper.Runtime, ch *caliper.Channel) {
	if !c.cfg.Enabled {
		return
	}

	c.setString(rt, ch, "host.name", hostname())

	if n, err := cpu.Counts(true); err == nil {
		c.setUint(rt, ch, "host.cpu_count", uint64(n))
	} else {
		c.logger.WithError(err).Debug("host cpu count unavailable")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		c.setUint(rt, ch, "host.memory_bytes", vm.Total)
	} else {
		c.logger.WithError(err).Debug("host memory total unavailable")
	}

	if c.cfg.IncludeDocker {
		c.publishContainer(rt, ch)
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// publishContainer best-effort-identifies the container this process
// runs in by treating its hostname as the container's short id
// (Docker's default) and inspecting it. Any failure — no socket, no
// permissions, not actually running in a container — is logged at
// debug and otherwise ignored.
func (c *Collector) publishContainer(rt *caliper.Runtime, ch *caliper.Channel) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(c.cfg.DockerSocket),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		c.logger.WithError(err).Debug("docker client unavailable")
		return
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	info, err := cli.ContainerInspect(ctx, hostname())
	if err != nil {
		c.logger.WithError(err).Debug("container self-inspect unavailable")
		return
	}

	c.setString(rt, ch, "container.id", info.ID)
	if info.Config != nil {
		c.setString(rt, ch, "container.image", info.Config.Image)
	}
}

func (c *Collector) setString(rt *caliper.Runtime, ch *caliper.Channel, name, val string) {
	attr, err := rt.CreateAttribute(name, variant.TypeString, contexttree.PropGlobal|contexttree.PropAsValue, contexttree.ScopeProcess)
	if err != nil {
		c.logger.WithError(err).WithField("attribute", name).Warn("failed to declare host attribute")
		return
	}
	if err := ch.Set(0, attr, variant.FromString(val)); err != nil {
		c.logger.WithError(err).WithField("attribute", name).Warn("failed to set host attribute")
	}
}

func (c *Collector) setUint(rt *caliper.Runtime, ch *caliper.Channel, name string, val uint64) {
	attr, err := rt.CreateAttribute(name, variant.TypeUint, contexttree.PropGlobal|contexttree.PropAsValue, contexttree.ScopeProcess)
	if err != nil {
		c.logger.WithError(err).WithField("attribute", name).Warn("failed to declare host attribute")
		return
	}
	if err := ch.Set(0, attr, variant.FromUint(val)); err != nil {
		c.logger.WithError(err).WithField("attribute", name).Warn("failed to set host attribute")
	}
}
