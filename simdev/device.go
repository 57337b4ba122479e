// Package simdev provides an in-process GPU that implements the device
// interfaces. Submitted programs are executed by one goroutine per ring
// against buffer objects reached through a GPU page table.
package simdev

import (
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/gpucs/device"
)

// Op names a device entry point that faults can be injected into.
type Op int

// Entry points that accept injected faults.
const (
	OpAllocBuffer Op = iota
	OpCreateContext
	OpSubmit
	OpQueryFence
	OpCreateUserQueue
	OpSignalUserQueue
)

type ringKey struct {
	engine device.EngineClass
	ring   uint32
}

// Stats counts the objects that are alive on the device.
type Stats struct {
	Buffers     int
	VARanges    int
	Mappings    int
	CPUMappings int
	Contexts    int
	BOLists     int
	Syncobjs    int
	UserQueues  int
}

// Total returns the number of live objects.
func (s Stats) Total() int {
	return s.Buffers + s.VARanges + s.Mappings + s.CPUMappings +
		s.Contexts + s.BOLists + s.Syncobjs + s.UserQueues
}

// Device is a simulated GPU.
type Device struct {
	sync.Mutex

	name string

	kernelMasks  [device.NumEngineClasses]uint32
	userQSlots   [device.NumEngineClasses]uint32
	capacity     map[device.Domain]uint64
	used         map[device.Domain]uint64
	log2PageSize uint64
	nextVA       uint64
	mapLatency   time.Duration
	pageTable    PageTable

	nextHandle uint32
	buffers    map[device.BufferHandle]*buffer
	vaRanges   map[device.VAHandle]vaRange
	mappings   map[mappingKey]uint64
	contexts   map[device.ContextHandle]*hwContext
	boLists    map[device.BOListHandle][]device.BufferHandle
	syncobjs   map[device.SyncobjHandle]*syncobj
	userQueues map[device.QueueID]*userQueue

	workers   map[ringKey]*worker
	workersWG sync.WaitGroup
	closed    bool

	injected map[Op][]error
}

var _ device.Device = (*Device)(nil)

// Name returns the name of the device.
func (d *Device) Name() string {
	return d.name
}

func (d *Device) newHandle() uint32 {
	d.nextHandle++
	return d.nextHandle
}

// QueryHWIP reports the rings and user queue slots of an engine class.
func (d *Device) QueryHWIP(engine device.EngineClass) (device.HWIPInfo, error) {
	if engine < 0 || engine >= device.NumEngineClasses {
		return device.HWIPInfo{}, fmt.Errorf("%s: query %s: %w",
			d.name, engine, device.EINVAL)
	}

	d.Lock()
	defer d.Unlock()

	return device.HWIPInfo{
		AvailableRings:   d.kernelMasks[engine],
		NumUserQSlots:    d.userQSlots[engine],
		IBStartAlignment: 32,
		IBSizeAlignment:  4,
	}, nil
}

// Inject queues a result code that the next call of op returns.
func (d *Device) Inject(op Op, err error) {
	d.Lock()
	defer d.Unlock()

	d.injected[op] = append(d.injected[op], err)
}

func (d *Device) popInjected(op Op) error {
	errs := d.injected[op]
	if len(errs) == 0 {
		return nil
	}

	d.injected[op] = errs[1:]

	return errs[0]
}

// Hang stops a kernel-mode ring from executing until Resume is called. Work
// submitted in the meantime stays queued.
func (d *Device) Hang(engine device.EngineClass, ring uint32) {
	d.Lock()
	w := d.workerLocked(ringKey{engine: engine, ring: ring})
	d.Unlock()

	w.hold(true)
}

// Resume lets a hung ring continue.
func (d *Device) Resume(engine device.EngineClass, ring uint32) {
	d.Lock()
	w := d.workerLocked(ringKey{engine: engine, ring: ring})
	d.Unlock()

	w.hold(false)
}

func (d *Device) workerLocked(key ringKey) *worker {
	w, ok := d.workers[key]
	if !ok {
		w = newWorker()
		d.workers[key] = w
		d.workersWG.Add(1)

		go func() {
			defer d.workersWG.Done()
			w.run()
		}()
	}

	return w
}

// Stats returns the number of live objects.
func (d *Device) Stats() Stats {
	d.Lock()
	defer d.Unlock()

	s := Stats{
		Buffers:    len(d.buffers),
		VARanges:   len(d.vaRanges),
		Mappings:   len(d.mappings),
		Contexts:   len(d.contexts),
		BOLists:    len(d.boLists),
		Syncobjs:   len(d.syncobjs),
		UserQueues: len(d.userQueues),
	}

	for _, b := range d.buffers {
		s.CPUMappings += b.cpuMaps
	}

	return s
}

// Close stops the ring and user queue workers after they drain their queues.
func (d *Device) Close() {
	d.Lock()
	if d.closed {
		d.Unlock()
		return
	}

	d.closed = true
	workers := make([]*worker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	for _, q := range d.userQueues {
		workers = append(workers, q.worker)
	}
	d.Unlock()

	for _, w := range workers {
		w.stop()
	}

	d.workersWG.Wait()
}
