package ipblock

import (
	"time"

	"github.com/sarchlab/gpucs/bo"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/ring"
)

// Builder can build a Registry.
type Builder struct {
	dev     UserQueueDevice
	buffers *bo.Manager
	timeout time.Duration
}

// MakeBuilder returns a Builder whose registry has no user queue support
// until a device and a buffer manager are given.
func MakeBuilder() Builder {
	return Builder{timeout: device.TimeoutInfinite}
}

// WithDevice sets the device user queues are created on.
func (b Builder) WithDevice(dev UserQueueDevice) Builder {
	b.dev = dev
	return b
}

// WithBufferManager sets the manager user queue memory comes from.
func (b Builder) WithBufferManager(m *bo.Manager) Builder {
	b.buffers = m
	return b
}

// WithTimeout bounds the wait for a user queue to signal.
func (b Builder) WithTimeout(t time.Duration) Builder {
	if t <= 0 {
		t = device.TimeoutInfinite
	}

	b.timeout = t

	return b
}

// Build creates the registry of the graphics, compute and copy tables.
func (b Builder) Build() *Registry {
	var uq *userQueueFactory
	if b.dev != nil && b.buffers != nil {
		uq = &userQueueFactory{
			dev:     b.dev,
			buffers: b.buffers,
			timeout: b.timeout,
		}
	}

	return &Registry{
		tables: map[device.EngineClass]ring.Ops{
			device.EngineGFX: &GFX{base{
				engine:     device.EngineGFX,
				padAlign:   1,
				userQueues: uq,
			}},
			device.EngineCompute: &Compute{base{
				engine:     device.EngineCompute,
				padAlign:   1,
				userQueues: uq,
			}},
			device.EngineDMA: &SDMA{base{
				engine:     device.EngineDMA,
				padAlign:   8,
				userQueues: uq,
			}},
		},
	}
}
