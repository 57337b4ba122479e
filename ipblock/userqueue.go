package ipblock

import (
	"errors"
	"fmt"
	"time"

	"github.com/sarchlab/gpucs/bo"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/packet"
	"github.com/sarchlab/gpucs/ring"
)

// Sizes of the memory behind a user-mode queue.
const (
	UserQueueSize  = 1 << 20
	DoorbellIndex  = 4
	doorbellSize   = 4096
	pointerSize    = 8
	gfxShadowSize  = 4096
	gfxCSASize     = 4096
	computeEOPSize = 256
)

// UserQueueDevice is what user-mode queues need from the device beyond
// buffer allocation.
type UserQueueDevice interface {
	device.Timeline
	device.UserQueues
}

type userQueueFactory struct {
	dev     UserQueueDevice
	buffers *bo.Manager
	timeout time.Duration
}

func (f *userQueueFactory) gtt(c *ring.Context, size uint64) (*bo.Buffer, error) {
	return f.buffers.Allocate(bo.Request{
		Size:      size,
		Alignment: bo.DefaultAlignment,
		Domain:    device.DomainGTT,
		Mapping:   device.MTypeUC,
	}, c)
}

// create builds the queue ring, the read and write pointers, the state areas
// and the doorbell, then registers the queue with the device.
func (f *userQueueFactory) create(c *ring.Context, stateSizes []uint64) error {
	if c.Engine > device.EngineDMA {
		return fmt.Errorf("%s: user queues: %w", c.Name(), ErrUnsupported)
	}

	so, err := f.dev.CreateSyncobj()
	if err != nil {
		return fmt.Errorf("%s: create syncobj: %w", c.Name(), err)
	}

	c.Syncobj = so
	q := &ring.UserQueue{}
	c.UserQueue = q

	if err := f.allocate(c, q, stateSizes); err != nil {
		return errors.Join(err, f.teardown(c))
	}

	q.Ring.Clear()

	q.ID, err = f.dev.CreateUserQueue(device.UserQueueRequest{
		Engine:         c.Engine,
		Doorbell:       q.Doorbell.Handle,
		DoorbellOffset: DoorbellIndex,
		QueueAddr:      q.Ring.GPUAddr,
		QueueSize:      UserQueueSize,
		RptrAddr:       q.Rptr.GPUAddr,
		WptrAddr:       q.Wptr.GPUAddr,
	})
	if err != nil {
		err = fmt.Errorf("%s: create user queue: %w", c.Name(), err)
		return errors.Join(err, f.teardown(c))
	}

	return nil
}

func (f *userQueueFactory) allocate(
	c *ring.Context,
	q *ring.UserQueue,
	stateSizes []uint64,
) error {
	var err error

	if q.Ring, err = f.gtt(c, UserQueueSize); err != nil {
		return err
	}

	if q.Wptr, err = f.gtt(c, pointerSize); err != nil {
		return err
	}

	if q.Rptr, err = f.gtt(c, pointerSize); err != nil {
		return err
	}

	for _, size := range stateSizes {
		b, err := f.gtt(c, size)
		if err != nil {
			return err
		}

		q.State = append(q.State, b)
	}

	q.Doorbell, err = f.buffers.AllocateCPU(bo.Request{
		Size:   doorbellSize,
		Domain: device.DomainDoorbell,
	})

	return err
}

// teardown releases whatever create got to allocate.
func (f *userQueueFactory) teardown(c *ring.Context) error {
	q := c.UserQueue

	var errs []error
	if q != nil {
		errs = append(errs, q.Doorbell.Release())
		for _, b := range q.State {
			errs = append(errs, b.Release())
		}
		errs = append(errs,
			q.Rptr.Release(),
			q.Wptr.Release(),
			q.Ring.Release())
	}

	if c.Syncobj != 0 {
		errs = append(errs, f.dev.DestroySyncobj(c.Syncobj))
	}

	c.UserQueue = nil
	c.Syncobj = 0

	return errors.Join(errs...)
}

func (f *userQueueFactory) destroy(c *ring.Context) error {
	if c.UserQueue == nil {
		return fmt.Errorf("%s: no user queue", c.Name())
	}

	err := f.dev.FreeUserQueue(c.UserQueue.ID)
	if err != nil {
		err = fmt.Errorf("%s: free user queue: %w", c.Name(), err)
	}

	return errors.Join(err, f.teardown(c))
}

// submit writes INDIRECT_BUFFER and FENCE_SIGNAL packets at the write
// pointer, rings the doorbell and waits for the queue to signal.
func (f *userQueueFactory) submit(
	c *ring.Context,
	ibAddr uint64,
	control uint32,
) error {
	q := c.UserQueue
	if q == nil {
		return fmt.Errorf("%s: no user queue", c.Name())
	}

	stream := append(packet.IndirectBuffer(ibAddr, control),
		packet.FenceSignal()...)

	mask := uint64(UserQueueSize/4 - 1)
	wptr := q.Wptr.Uint64(0)

	for _, dw := range stream {
		q.Ring.SetUint32(int(wptr&mask), dw)
		wptr++
	}

	q.Wptr.SetUint64(0, wptr)
	q.Doorbell.SetUint64(DoorbellIndex*8, wptr)

	if err := f.dev.SignalUserQueue(q.ID, c.Syncobj); err != nil {
		return fmt.Errorf("%s: signal user queue: %w", c.Name(), err)
	}

	if err := f.dev.SyncobjWait(c.Syncobj, f.timeout); err != nil {
		return fmt.Errorf("%s: wait user queue: %w", c.Name(), err)
	}

	return nil
}
