package simdev

import (
	"fmt"
	"time"

	"github.com/sarchlab/gpucs/device"
)

type buffer struct {
	handle  device.BufferHandle
	size    uint64
	domain  device.Domain
	flags   device.AllocFlags
	data    []byte
	cpuMaps int
}

type vaRange struct {
	addr uint64
	size uint64
}

type mappingKey struct {
	bo   device.BufferHandle
	addr uint64
}

func (d *Device) pageSize() uint64 {
	return 1 << d.log2PageSize
}

func (d *Device) roundUp(n, align uint64) uint64 {
	if align == 0 {
		return n
	}

	return (n + align - 1) / align * align
}

// AllocBuffer allocates a buffer object. Its content starts zeroed.
func (d *Device) AllocBuffer(req device.AllocRequest) (device.BufferHandle, error) {
	d.Lock()
	defer d.Unlock()

	if err := d.popInjected(OpAllocBuffer); err != nil {
		return 0, err
	}

	if req.Size == 0 {
		return 0, fmt.Errorf("%s: zero-sized buffer: %w", d.name, device.EINVAL)
	}

	size := d.roundUp(req.Size, d.pageSize())
	if d.used[req.Domain]+size > d.capacity[req.Domain] {
		return 0, fmt.Errorf("%s: %d bytes in domain %#x: %w",
			d.name, req.Size, req.Domain, device.ENOMEM)
	}

	d.used[req.Domain] += size

	h := device.BufferHandle(d.newHandle())
	d.buffers[h] = &buffer{
		handle: h,
		size:   req.Size,
		domain: req.Domain,
		flags:  req.Flags,
		data:   make([]byte, size),
	}

	return h, nil
}

// FreeBuffer frees a buffer object.
func (d *Device) FreeBuffer(bo device.BufferHandle) error {
	d.Lock()
	defer d.Unlock()

	b, ok := d.buffers[bo]
	if !ok {
		return fmt.Errorf("%s: free bo %d: %w", d.name, bo, device.ENOENT)
	}

	d.used[b.domain] -= uint64(len(b.data))
	delete(d.buffers, bo)

	return nil
}

// AllocVARange reserves a range of the GPU address space.
func (d *Device) AllocVARange(
	size, alignment uint64,
) (uint64, device.VAHandle, error) {
	d.Lock()
	defer d.Unlock()

	if size == 0 {
		return 0, 0, fmt.Errorf("%s: zero-sized va range: %w",
			d.name, device.EINVAL)
	}

	if alignment < d.pageSize() {
		alignment = d.pageSize()
	}

	addr := d.roundUp(d.nextVA, alignment)
	size = d.roundUp(size, d.pageSize())
	d.nextVA = addr + size

	h := device.VAHandle(d.newHandle())
	d.vaRanges[h] = vaRange{addr: addr, size: size}

	return addr, h, nil
}

// FreeVARange returns a range of the GPU address space.
func (d *Device) FreeVARange(va device.VAHandle) error {
	d.Lock()
	defer d.Unlock()

	if _, ok := d.vaRanges[va]; !ok {
		return fmt.Errorf("%s: free va %d: %w", d.name, va, device.ENOENT)
	}

	delete(d.vaRanges, va)

	return nil
}

func (d *Device) reservedLocked(addr, size uint64) bool {
	for _, r := range d.vaRanges {
		if addr >= r.addr && addr+size <= r.addr+r.size {
			return true
		}
	}

	return false
}

// MapVA maps a buffer object into a reserved range. A valid sync point is
// signaled once the pages are in the page table.
func (d *Device) MapVA(
	bo device.BufferHandle,
	gpuAddr, size uint64,
	flags device.MappingFlags,
	sync device.TimelinePoint,
) error {
	d.Lock()
	defer d.Unlock()

	b, ok := d.buffers[bo]
	if !ok {
		return fmt.Errorf("%s: map bo %d: %w", d.name, bo, device.ENOENT)
	}

	var so *syncobj
	if sync.Valid() {
		so, ok = d.syncobjs[sync.Syncobj]
		if !ok {
			return fmt.Errorf("%s: map bo %d: syncobj %d: %w",
				d.name, bo, sync.Syncobj, device.ENOENT)
		}
	}

	size = d.roundUp(size, d.pageSize())
	if gpuAddr%d.pageSize() != 0 || size > uint64(len(b.data)) ||
		!d.reservedLocked(gpuAddr, size) {
		return fmt.Errorf("%s: map bo %d at %#x+%#x: %w",
			d.name, bo, gpuAddr, size, device.EINVAL)
	}

	for off := uint64(0); off < size; off += d.pageSize() {
		if _, mapped := d.pageTable.Find(gpuAddr + off); mapped {
			return fmt.Errorf("%s: map bo %d: %#x already mapped: %w",
				d.name, bo, gpuAddr+off, device.EINVAL)
		}
	}

	for off := uint64(0); off < size; off += d.pageSize() {
		d.pageTable.Insert(Page{
			VAddr:  gpuAddr + off,
			BO:     bo,
			Offset: off,
			Flags:  flags,
		})
	}

	d.mappings[mappingKey{bo: bo, addr: gpuAddr}] = size

	if so != nil {
		d.signalLater(so, sync.Point)
	}

	return nil
}

func (d *Device) signalLater(so *syncobj, point uint64) {
	if d.mapLatency <= 0 {
		so.signal(point)
		return
	}

	time.AfterFunc(d.mapLatency, func() {
		so.signal(point)
	})
}

// UnmapVA removes a mapping created by MapVA.
func (d *Device) UnmapVA(
	bo device.BufferHandle,
	gpuAddr, _ uint64,
	sync device.TimelinePoint,
) error {
	d.Lock()
	defer d.Unlock()

	key := mappingKey{bo: bo, addr: gpuAddr}

	size, ok := d.mappings[key]
	if !ok {
		return fmt.Errorf("%s: unmap bo %d at %#x: %w",
			d.name, bo, gpuAddr, device.EINVAL)
	}

	for off := uint64(0); off < size; off += d.pageSize() {
		d.pageTable.Remove(gpuAddr + off)
	}

	delete(d.mappings, key)

	if so, ok := d.syncobjs[sync.Syncobj]; ok && sync.Valid() {
		d.signalLater(so, sync.Point)
	}

	return nil
}

// CPUMap returns the content of a buffer object. The slice aliases the
// memory the GPU reads and writes.
func (d *Device) CPUMap(bo device.BufferHandle) ([]byte, error) {
	d.Lock()
	defer d.Unlock()

	b, ok := d.buffers[bo]
	if !ok {
		return nil, fmt.Errorf("%s: cpu map bo %d: %w",
			d.name, bo, device.ENOENT)
	}

	b.cpuMaps++

	return b.data[:b.size:b.size], nil
}

// CPUUnmap drops one CPU mapping of a buffer object.
func (d *Device) CPUUnmap(bo device.BufferHandle) error {
	d.Lock()
	defer d.Unlock()

	b, ok := d.buffers[bo]
	if !ok || b.cpuMaps == 0 {
		return fmt.Errorf("%s: cpu unmap bo %d: %w",
			d.name, bo, device.EINVAL)
	}

	b.cpuMaps--

	return nil
}

// translate returns the bytes behind [addr, addr+n) together with the buffer
// that holds them. The range must not cross a mapping.
func (d *Device) translate(addr, n uint64) ([]byte, *buffer, error) {
	first, ok := d.pageTable.Find(addr)
	if !ok {
		return nil, nil, fmt.Errorf("%s: %#x not mapped: %w",
			d.name, addr, device.EFAULT)
	}

	if n > 1 {
		last, ok := d.pageTable.Find(addr + n - 1)
		lastOff := first.Offset + (addr + n - 1 - first.VAddr)
		if !ok || last.BO != first.BO ||
			last.Offset != lastOff&^(d.pageSize()-1) {
			return nil, nil, fmt.Errorf("%s: %#x+%#x crosses a mapping: %w",
				d.name, addr, n, device.EFAULT)
		}
	}

	d.Lock()
	b, ok := d.buffers[first.BO]
	d.Unlock()

	if !ok {
		return nil, nil, fmt.Errorf("%s: %#x maps freed bo %d: %w",
			d.name, addr, first.BO, device.EFAULT)
	}

	off := first.Offset + (addr - first.VAddr)
	if off+n > uint64(len(b.data)) {
		return nil, nil, fmt.Errorf("%s: %#x+%#x beyond bo %d: %w",
			d.name, addr, n, first.BO, device.EFAULT)
	}

	return b.data[off : off+n], b, nil
}
