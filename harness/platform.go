package harness

import (
	"time"

	"github.com/sarchlab/gpucs/bo"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/hooking"
	"github.com/sarchlab/gpucs/idgen"
	"github.com/sarchlab/gpucs/ipblock"
	"github.com/sarchlab/gpucs/lanes"
	"github.com/sarchlab/gpucs/submit"
)

// Platform is every component of the harness wired to one device.
type Platform struct {
	Device  device.Device
	Buffers *bo.Manager
	Engine  *submit.Engine
	Ops     *ipblock.Registry
	Lanes   *lanes.Manager
	Runner  *Runner
}

// PlatformBuilder can build platforms.
type PlatformBuilder struct {
	timeout time.Duration
	ids     idgen.IDGenerator
	hooks   []hooking.Hook
}

// MakePlatformBuilder returns a PlatformBuilder that waits without a
// deadline.
func MakePlatformBuilder() PlatformBuilder {
	return PlatformBuilder{timeout: device.TimeoutInfinite}
}

// WithTimeout bounds every wait of the platform. Zero or less waits
// forever.
func (b PlatformBuilder) WithTimeout(t time.Duration) PlatformBuilder {
	if t <= 0 {
		t = device.TimeoutInfinite
	}

	b.timeout = t

	return b
}

// WithIDGenerator sets the generator of round IDs.
func (b PlatformBuilder) WithIDGenerator(g idgen.IDGenerator) PlatformBuilder {
	b.ids = g
	return b
}

// WithHook attaches a hook to the submission engine.
func (b PlatformBuilder) WithHook(h hooking.Hook) PlatformBuilder {
	b.hooks = append(b.hooks[:len(b.hooks):len(b.hooks)], h)
	return b
}

// Build wires the components to the device.
func (b PlatformBuilder) Build(dev device.Device) *Platform {
	p := &Platform{Device: dev}

	p.Buffers = bo.NewManager(dev).WithTimeout(b.timeout)

	p.Engine = submit.MakeBuilder().
		WithBufferManager(p.Buffers).
		WithScheduler(dev).
		WithFenceTimeout(b.timeout).
		WithIDGenerator(b.ids).
		Build("Engine")
	for _, h := range b.hooks {
		p.Engine.AcceptHook(h)
	}

	p.Ops = ipblock.MakeBuilder().
		WithDevice(dev).
		WithBufferManager(p.Buffers).
		WithTimeout(b.timeout).
		Build()

	p.Lanes = lanes.MakeBuilder().
		WithProber(dev).
		WithScheduler(dev).
		WithOpsTable(p.Ops).
		WithSubmitters(p.Engine).
		Build("Lanes")

	p.Runner = MakeBuilder().
		WithLanes(p.Lanes).
		WithEngine(p.Engine).
		WithBufferManager(p.Buffers).
		Build("Runner")

	return p
}
