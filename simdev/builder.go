package simdev

import (
	"time"

	"github.com/sarchlab/gpucs/device"
)

// Builder can build simulated devices.
type Builder struct {
	kernelMasks  [device.NumEngineClasses]uint32
	userQSlots   [device.NumEngineClasses]uint32
	capacity     map[device.Domain]uint64
	log2PageSize uint64
	vaBase       uint64
	mapLatency   time.Duration
}

// MakeBuilder returns a Builder for a device with one graphics ring, four
// compute rings and two copy rings.
func MakeBuilder() Builder {
	b := Builder{
		capacity: map[device.Domain]uint64{
			device.DomainVRAM:     256 << 20,
			device.DomainGTT:      256 << 20,
			device.DomainCPU:      64 << 20,
			device.DomainDoorbell: 1 << 20,
		},
		log2PageSize: 12,
		vaBase:       1 << 32,
	}

	b.kernelMasks[device.EngineGFX] = 0x1
	b.kernelMasks[device.EngineCompute] = 0xf
	b.kernelMasks[device.EngineDMA] = 0x3

	b.userQSlots[device.EngineGFX] = 1
	b.userQSlots[device.EngineCompute] = 2
	b.userQSlots[device.EngineDMA] = 2

	return b
}

// WithLanes sets the kernel-mode ring mask of an engine class.
func (b Builder) WithLanes(engine device.EngineClass, mask uint32) Builder {
	b.kernelMasks[engine] = mask
	return b
}

// WithUserQueueSlots sets the number of user-mode queue slots of an engine
// class.
func (b Builder) WithUserQueueSlots(
	engine device.EngineClass,
	slots uint32,
) Builder {
	b.userQSlots[engine] = slots
	return b
}

// WithMemory sets the number of bytes available in a domain.
func (b Builder) WithMemory(domain device.Domain, bytes uint64) Builder {
	capacity := make(map[device.Domain]uint64, len(b.capacity))
	for d, c := range b.capacity {
		capacity[d] = c
	}

	capacity[domain] = bytes
	b.capacity = capacity

	return b
}

// WithLog2PageSize sets the page size of the GPU address space.
func (b Builder) WithLog2PageSize(n uint64) Builder {
	b.log2PageSize = n
	return b
}

// WithMapLatency delays the signaling of mapping timeline points.
func (b Builder) WithMapLatency(d time.Duration) Builder {
	b.mapLatency = d
	return b
}

// Build creates a device.
func (b Builder) Build(name string) *Device {
	d := &Device{
		name:         name,
		kernelMasks:  b.kernelMasks,
		userQSlots:   b.userQSlots,
		capacity:     make(map[device.Domain]uint64, len(b.capacity)),
		used:         make(map[device.Domain]uint64),
		log2PageSize: b.log2PageSize,
		nextVA:       b.vaBase,
		mapLatency:   b.mapLatency,
		pageTable:    NewPageTable(b.log2PageSize),
		buffers:      make(map[device.BufferHandle]*buffer),
		vaRanges:     make(map[device.VAHandle]vaRange),
		mappings:     make(map[mappingKey]uint64),
		contexts:     make(map[device.ContextHandle]*hwContext),
		boLists:      make(map[device.BOListHandle][]device.BufferHandle),
		syncobjs:     make(map[device.SyncobjHandle]*syncobj),
		userQueues:   make(map[device.QueueID]*userQueue),
		workers:      make(map[ringKey]*worker),
		injected:     make(map[Op][]error),
	}

	for domain, c := range b.capacity {
		d.capacity[domain] = c
	}

	return d
}
