// Package bo allocates GPU-visible buffer objects and hands them out as
// scoped handles that must be released on every exit path.
package bo

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/sarchlab/gpucs/device"
)

// ErrAllocation is returned when the device cannot provide the requested
// memory. It is fatal to the round that asked for the buffer.
var ErrAllocation = errors.New("buffer object allocation failed")

// ErrReleased is returned when a released buffer is used.
var ErrReleased = errors.New("buffer object already released")

// DefaultAlignment is the page alignment used by the harness.
const DefaultAlignment = 4096

// Request describes one allocation.
type Request struct {
	Size      uint64
	Alignment uint64
	Domain    device.Domain
	Flags     device.AllocFlags
	Mapping   device.MappingFlags
}

// A Timeline hands out synchronization points for allocations. Contexts that
// use the user-mode protocol advance their counter on every call; others
// report that no synchronization is needed.
type Timeline interface {
	NextPoint() (device.TimelinePoint, bool)
}

// Memory is the part of the device the manager needs.
type Memory interface {
	device.Memory
	TimelineWait(h device.SyncobjHandle, point uint64, timeout time.Duration) error
}

// Manager allocates and maps buffer objects.
type Manager struct {
	mem     Memory
	timeout time.Duration
	live    atomic.Int64
}

// NewManager creates a Manager that waits without a deadline.
func NewManager(mem Memory) *Manager {
	return &Manager{
		mem:     mem,
		timeout: device.TimeoutInfinite,
	}
}

// WithTimeout bounds the allocation-time timeline wait.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = device.TimeoutInfinite
	}

	m.timeout = timeout

	return m
}

// Live returns the number of buffers that have been allocated but not
// released.
func (m *Manager) Live() int {
	return int(m.live.Load())
}

// Allocate allocates a buffer, maps it for the GPU and the CPU, and, when the
// timeline asks for it, blocks until the mapping's point has signaled.
func (m *Manager) Allocate(req Request, tl Timeline) (*Buffer, error) {
	if req.Alignment == 0 {
		req.Alignment = DefaultAlignment
	}

	handle, err := m.mem.AllocBuffer(device.AllocRequest{
		Size:      req.Size,
		Alignment: req.Alignment,
		Domain:    req.Domain,
		Flags:     req.Flags,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes in domain %#x: %w",
			ErrAllocation, req.Size, req.Domain, err)
	}

	gpuAddr, va, err := m.mem.AllocVARange(req.Size, req.Alignment)
	if err != nil {
		m.mustSucceed(m.mem.FreeBuffer(handle))
		return nil, fmt.Errorf("%w: va range: %w", ErrAllocation, err)
	}

	var point device.TimelinePoint
	if tl != nil {
		point, _ = tl.NextPoint()
	}

	err = m.mem.MapVA(handle, gpuAddr, req.Size,
		device.PageRWX|req.Mapping, point)
	if err != nil {
		m.mustSucceed(m.mem.FreeVARange(va))
		m.mustSucceed(m.mem.FreeBuffer(handle))
		return nil, fmt.Errorf("%w: map: %w", ErrAllocation, err)
	}

	cpu, err := m.mem.CPUMap(handle)
	if err != nil {
		m.mustSucceed(m.mem.UnmapVA(handle, gpuAddr, req.Size,
			device.TimelinePoint{}))
		m.mustSucceed(m.mem.FreeVARange(va))
		m.mustSucceed(m.mem.FreeBuffer(handle))
		return nil, fmt.Errorf("%w: cpu map: %w", ErrAllocation, err)
	}

	b := &Buffer{
		mgr:     m,
		Handle:  handle,
		VA:      va,
		GPUAddr: gpuAddr,
		Size:    req.Size,
		Flags:   req.Flags,
		Point:   point,
		cpu:     cpu,
	}
	m.live.Add(1)

	if point.Valid() {
		err = m.mem.TimelineWait(point.Syncobj, point.Point, m.timeout)
		if err != nil {
			return nil, errors.Join(
				fmt.Errorf("timeline wait for point %d: %w", point.Point, err),
				b.Release(),
			)
		}
	}

	return b, nil
}

// AllocateCPU allocates a buffer that is mapped for the CPU only, such as a
// doorbell page.
func (m *Manager) AllocateCPU(req Request) (*Buffer, error) {
	if req.Alignment == 0 {
		req.Alignment = DefaultAlignment
	}

	handle, err := m.mem.AllocBuffer(device.AllocRequest{
		Size:      req.Size,
		Alignment: req.Alignment,
		Domain:    req.Domain,
		Flags:     req.Flags,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes in domain %#x: %w",
			ErrAllocation, req.Size, req.Domain, err)
	}

	cpu, err := m.mem.CPUMap(handle)
	if err != nil {
		m.mustSucceed(m.mem.FreeBuffer(handle))
		return nil, fmt.Errorf("%w: cpu map: %w", ErrAllocation, err)
	}

	m.live.Add(1)

	return &Buffer{
		mgr:    m,
		Handle: handle,
		Size:   req.Size,
		Flags:  req.Flags,
		cpu:    cpu,
	}, nil
}

func (m *Manager) mustSucceed(err error) {
	if err != nil {
		log.Panicf("buffer object cleanup failed: %v", err)
	}
}

// Buffer is a mapped buffer object. The CPU view is valid until Release. A
// buffer without a VA is not mapped for the GPU.
type Buffer struct {
	mgr *Manager

	Handle  device.BufferHandle
	VA      device.VAHandle
	GPUAddr uint64
	Size    uint64
	Flags   device.AllocFlags

	// Point is the timeline point the mapping signaled, if any.
	Point device.TimelinePoint

	cpu      []byte
	released bool
}

// Bytes returns the CPU view. It is nil after Release.
func (b *Buffer) Bytes() []byte {
	return b.cpu
}

// Released tells if the buffer has been released.
func (b *Buffer) Released() bool {
	return b.released
}

// Uint32 reads the i-th dword.
func (b *Buffer) Uint32(i int) uint32 {
	return binary.LittleEndian.Uint32(b.cpu[i*4:])
}

// SetUint32 writes the i-th dword.
func (b *Buffer) SetUint32(i int, v uint32) {
	binary.LittleEndian.PutUint32(b.cpu[i*4:], v)
}

// Uint64 reads the 64-bit word at byte offset off.
func (b *Buffer) Uint64(off int) uint64 {
	return binary.LittleEndian.Uint64(b.cpu[off:])
}

// SetUint64 writes the 64-bit word at byte offset off.
func (b *Buffer) SetUint64(off int, v uint64) {
	binary.LittleEndian.PutUint64(b.cpu[off:], v)
}

// Fill sets every byte of the buffer to v.
func (b *Buffer) Fill(v byte) {
	for i := range b.cpu {
		b.cpu[i] = v
	}
}

// Clear zeroes the buffer.
func (b *Buffer) Clear() {
	clear(b.cpu)
}

// Release unmaps and frees the buffer. Calling it again is a no-op, so it can
// be deferred right after a successful Allocate.
func (b *Buffer) Release() error {
	if b == nil || b.released {
		return nil
	}

	b.released = true
	b.cpu = nil
	b.mgr.live.Add(-1)

	mem := b.mgr.mem

	if b.VA == 0 {
		return errors.Join(
			mem.CPUUnmap(b.Handle),
			mem.FreeBuffer(b.Handle),
		)
	}

	return errors.Join(
		mem.CPUUnmap(b.Handle),
		mem.UnmapVA(b.Handle, b.GPUAddr, b.Size, device.TimelinePoint{}),
		mem.FreeVARange(b.VA),
		mem.FreeBuffer(b.Handle),
	)
}
