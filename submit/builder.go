package submit

import (
	"time"

	"github.com/sarchlab/gpucs/bo"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/idgen"
)

// DefaultIBSize is the size of the indirect buffer of a normal round.
const DefaultIBSize = 4096

// Builder can build submission engines.
type Builder struct {
	buffers      *bo.Manager
	scheduler    device.Scheduler
	fenceTimeout time.Duration
	ibSize       uint64
	ids          idgen.IDGenerator
}

// MakeBuilder returns a Builder with an infinite fence timeout.
func MakeBuilder() Builder {
	return Builder{
		fenceTimeout: device.TimeoutInfinite,
		ibSize:       DefaultIBSize,
	}
}

// WithBufferManager sets the manager that provides indirect buffers.
func (b Builder) WithBufferManager(m *bo.Manager) Builder {
	b.buffers = m
	return b
}

// WithScheduler sets the kernel-mode submission interface.
func (b Builder) WithScheduler(s device.Scheduler) Builder {
	b.scheduler = s
	return b
}

// WithFenceTimeout bounds fence waits. Zero or less waits forever.
func (b Builder) WithFenceTimeout(t time.Duration) Builder {
	if t <= 0 {
		t = device.TimeoutInfinite
	}

	b.fenceTimeout = t

	return b
}

// WithIDGenerator sets the generator of round IDs.
func (b Builder) WithIDGenerator(g idgen.IDGenerator) Builder {
	b.ids = g
	return b
}

// Build creates an Engine.
func (b Builder) Build(name string) *Engine {
	if b.buffers == nil {
		panic("submit: buffer manager is not set")
	}

	if b.ids == nil {
		b.ids = idgen.GetIDGenerator()
	}

	e := &Engine{
		name:    name,
		buffers: b.buffers,
		ibSize:  b.ibSize,
		ids:     b.ids,
	}

	e.timeline = &TimelineSubmission{engine: e}

	if b.scheduler != nil {
		e.kernel = &KernelFenceSubmission{
			engine:    e,
			scheduler: b.scheduler,
			timeout:   b.fenceTimeout,
		}
	}

	return e
}
