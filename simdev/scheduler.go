package simdev

import (
	"fmt"
	"time"

	"github.com/sarchlab/gpucs/device"
)

type ringState struct {
	seq  uint64
	jobs map[uint64]*job
}

type hwContext struct {
	rings map[ringKey]*ringState
}

func (c *hwContext) ring(key ringKey) *ringState {
	rs, ok := c.rings[key]
	if !ok {
		rs = &ringState{jobs: make(map[uint64]*job)}
		c.rings[key] = rs
	}

	return rs
}

// CreateContext creates a scheduling context.
func (d *Device) CreateContext() (device.ContextHandle, error) {
	d.Lock()
	defer d.Unlock()

	if err := d.popInjected(OpCreateContext); err != nil {
		return 0, err
	}

	h := device.ContextHandle(d.newHandle())
	d.contexts[h] = &hwContext{rings: make(map[ringKey]*ringState)}

	return h, nil
}

// FreeContext frees a scheduling context.
func (d *Device) FreeContext(ctx device.ContextHandle) error {
	d.Lock()
	defer d.Unlock()

	if _, ok := d.contexts[ctx]; !ok {
		return fmt.Errorf("%s: free context %d: %w", d.name, ctx, device.ENOENT)
	}

	delete(d.contexts, ctx)

	return nil
}

// CreateBOList creates a list of the buffers a submission may use.
func (d *Device) CreateBOList(
	bos []device.BufferHandle,
) (device.BOListHandle, error) {
	d.Lock()
	defer d.Unlock()

	if len(bos) == 0 {
		return 0, fmt.Errorf("%s: empty bo list: %w", d.name, device.EINVAL)
	}

	for _, bo := range bos {
		if _, ok := d.buffers[bo]; !ok {
			return 0, fmt.Errorf("%s: bo list entry %d: %w",
				d.name, bo, device.ENOENT)
		}
	}

	h := device.BOListHandle(d.newHandle())
	d.boLists[h] = append([]device.BufferHandle(nil), bos...)

	return h, nil
}

// DestroyBOList destroys a bo list.
func (d *Device) DestroyBOList(list device.BOListHandle) error {
	d.Lock()
	defer d.Unlock()

	if _, ok := d.boLists[list]; !ok {
		return fmt.Errorf("%s: destroy bo list %d: %w",
			d.name, list, device.ENOENT)
	}

	delete(d.boLists, list)

	return nil
}

// Submit queues the indirect buffers of req on the requested ring and
// returns the sequence number of the job.
func (d *Device) Submit(ctx device.ContextHandle, req *device.Request) (uint64, error) {
	d.Lock()
	defer d.Unlock()

	if err := d.popInjected(OpSubmit); err != nil {
		return 0, err
	}

	if d.closed {
		return 0, fmt.Errorf("%s: submit: %w", d.name, device.ENODEV)
	}

	c, ok := d.contexts[ctx]
	if !ok {
		return 0, fmt.Errorf("%s: submit: context %d: %w",
			d.name, ctx, device.ENOENT)
	}

	if err := d.validateRingLocked(req); err != nil {
		return 0, err
	}

	list, ok := d.boLists[req.Resources]
	if !ok {
		return 0, fmt.Errorf("%s: submit: bo list %d: %w",
			d.name, req.Resources, device.ENOENT)
	}

	exec := &executor{
		d:       d,
		allowed: make(map[device.BufferHandle]bool, len(list)),
		secure:  true,
	}

	for _, bo := range list {
		exec.allowed[bo] = true
	}

	for _, ib := range req.IBs {
		if err := d.validateIBLocked(ib, exec.allowed); err != nil {
			return 0, err
		}

		if ib.Flags&device.IBFlagSecure == 0 {
			exec.secure = false
		}
	}

	key := ringKey{engine: req.Engine, ring: req.Ring}
	rs := c.ring(key)
	rs.seq++
	seq := rs.seq

	ibs := append([]device.IBInfo(nil), req.IBs...)
	j := newJob(func() error {
		for _, ib := range ibs {
			if err := exec.runIB(ib.GPUAddr, ib.SizeDwords); err != nil {
				return err
			}
		}

		return nil
	})

	rs.jobs[seq] = j
	d.workerLocked(key).push(j)

	return seq, nil
}

func (d *Device) validateRingLocked(req *device.Request) error {
	if req.Engine < 0 || req.Engine >= device.NumEngineClasses ||
		req.Instance != 0 || req.Ring >= 32 ||
		d.kernelMasks[req.Engine]&(1<<req.Ring) == 0 {
		return fmt.Errorf("%s: submit: no ring %s[%d]: %w",
			d.name, req.Engine, req.Ring, device.EINVAL)
	}

	if len(req.IBs) == 0 {
		return fmt.Errorf("%s: submit: no indirect buffer: %w",
			d.name, device.EINVAL)
	}

	return nil
}

func (d *Device) validateIBLocked(
	ib device.IBInfo,
	allowed map[device.BufferHandle]bool,
) error {
	if ib.SizeDwords == 0 {
		return fmt.Errorf("%s: submit: empty indirect buffer: %w",
			d.name, device.EINVAL)
	}

	page, ok := d.pageTable.Find(ib.GPUAddr)
	if !ok || !allowed[page.BO] {
		return fmt.Errorf("%s: submit: indirect buffer %#x not in list: %w",
			d.name, ib.GPUAddr, device.EINVAL)
	}

	b, ok := d.buffers[page.BO]
	end := page.Offset + (ib.GPUAddr - page.VAddr) + uint64(ib.SizeDwords)*4
	if !ok || end > b.size {
		return fmt.Errorf("%s: submit: indirect buffer %#x+%d dwords "+
			"exceeds its bo: %w",
			d.name, ib.GPUAddr, ib.SizeDwords, device.EINVAL)
	}

	return nil
}

// QueryFence waits for a submission. Sequence number 0 names no submission
// and is complete at once. When the timeout passes first, the fence is
// reported as not expired without an error.
func (d *Device) QueryFence(
	fence device.Fence,
	timeout time.Duration,
) (bool, error) {
	d.Lock()

	if err := d.popInjected(OpQueryFence); err != nil {
		d.Unlock()
		return false, err
	}

	c, ok := d.contexts[fence.Context]
	if !ok {
		d.Unlock()
		return false, fmt.Errorf("%s: query fence: context %d: %w",
			d.name, fence.Context, device.ENOENT)
	}

	if fence.SeqNo == 0 {
		d.Unlock()
		return true, nil
	}

	key := ringKey{engine: fence.Engine, ring: fence.Ring}
	rs := c.ring(key)

	if fence.SeqNo > rs.seq {
		d.Unlock()
		return false, fmt.Errorf("%s: query fence: %s[%d] seq %d not "+
			"submitted: %w",
			d.name, fence.Engine, fence.Ring, fence.SeqNo, device.EINVAL)
	}

	j, ok := rs.jobs[fence.SeqNo]
	d.Unlock()

	if !ok {
		return true, nil
	}

	if !j.wait(timeout) {
		return false, nil
	}

	d.Lock()
	delete(rs.jobs, fence.SeqNo)
	d.Unlock()

	return true, j.err
}
