package simdev

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/gpucs/device"
)

type userQueue struct {
	id     device.QueueID
	engine device.EngineClass
	req    device.UserQueueRequest
	worker *worker
}

// CreateUserQueue registers a user-mode queue whose ring, read pointer and
// write pointer live in mapped buffer objects.
func (d *Device) CreateUserQueue(
	req device.UserQueueRequest,
) (device.QueueID, error) {
	d.Lock()
	defer d.Unlock()

	if err := d.popInjected(OpCreateUserQueue); err != nil {
		return 0, err
	}

	if req.Engine < 0 || req.Engine > device.EngineDMA {
		return 0, fmt.Errorf("%s: user queue on %s: %w",
			d.name, req.Engine, device.EINVAL)
	}

	inUse := uint32(0)
	for _, q := range d.userQueues {
		if q.engine == req.Engine {
			inUse++
		}
	}

	if inUse >= d.userQSlots[req.Engine] {
		return 0, fmt.Errorf("%s: no free %s user queue slot: %w",
			d.name, req.Engine, device.ENOMEM)
	}

	if err := d.validateUserQueueLocked(req); err != nil {
		return 0, err
	}

	id := device.QueueID(d.newHandle())
	q := &userQueue{
		id:     id,
		engine: req.Engine,
		req:    req,
		worker: newWorker(),
	}
	d.userQueues[id] = q

	d.workersWG.Add(1)
	go func() {
		defer d.workersWG.Done()
		q.worker.run()
	}()

	return id, nil
}

func (d *Device) validateUserQueueLocked(req device.UserQueueRequest) error {
	db, ok := d.buffers[req.Doorbell]
	if !ok || db.domain != device.DomainDoorbell ||
		uint64(req.DoorbellOffset+1)*8 > db.size {
		return fmt.Errorf("%s: user queue doorbell %d+%d: %w",
			d.name, req.Doorbell, req.DoorbellOffset, device.EINVAL)
	}

	dwords := req.QueueSize / 4
	if req.QueueSize == 0 || req.QueueSize%4 != 0 || dwords&(dwords-1) != 0 {
		return fmt.Errorf("%s: user queue size %d: %w",
			d.name, req.QueueSize, device.EINVAL)
	}

	for _, addr := range []uint64{req.QueueAddr, req.RptrAddr, req.WptrAddr} {
		if _, mapped := d.pageTable.Find(addr); !mapped {
			return fmt.Errorf("%s: user queue address %#x not mapped: %w",
				d.name, addr, device.EINVAL)
		}
	}

	return nil
}

// FreeUserQueue destroys a user-mode queue after it finishes queued work.
func (d *Device) FreeUserQueue(q device.QueueID) error {
	d.Lock()
	uq, ok := d.userQueues[q]
	if ok {
		delete(d.userQueues, q)
	}
	d.Unlock()

	if !ok {
		return fmt.Errorf("%s: free user queue %d: %w", d.name, q, device.ENOENT)
	}

	uq.worker.stop()

	return nil
}

// SignalUserQueue makes the queue consume its ring up to the write pointer
// published in the doorbell and attaches the resulting fence to syncobj.
func (d *Device) SignalUserQueue(
	q device.QueueID,
	syncobj device.SyncobjHandle,
) error {
	d.Lock()
	defer d.Unlock()

	if err := d.popInjected(OpSignalUserQueue); err != nil {
		return err
	}

	uq, ok := d.userQueues[q]
	if !ok {
		return fmt.Errorf("%s: signal user queue %d: %w",
			d.name, q, device.ENOENT)
	}

	so, ok := d.syncobjs[syncobj]
	if !ok {
		return fmt.Errorf("%s: signal user queue %d: syncobj %d: %w",
			d.name, q, syncobj, device.ENOENT)
	}

	db := d.buffers[uq.req.Doorbell]
	if db == nil {
		return fmt.Errorf("%s: user queue %d doorbell freed: %w",
			d.name, q, device.EINVAL)
	}

	wptr := binary.LittleEndian.Uint64(db.data[uq.req.DoorbellOffset*8:])

	j := newJob(func() error {
		return d.drainUserQueue(uq, wptr)
	})

	so.attach(j)
	uq.worker.push(j)

	return nil
}

func (d *Device) drainUserQueue(uq *userQueue, wptr uint64) error {
	exec := &executor{d: d, secure: true, ibDepth: 1}

	rptrMem, err := exec.access(uq.req.RptrAddr, 8)
	if err != nil {
		return fault(err)
	}

	ringMem, err := exec.access(uq.req.QueueAddr, uq.req.QueueSize)
	if err != nil {
		return fault(err)
	}

	mask := uq.req.QueueSize/4 - 1
	rptr := binary.LittleEndian.Uint64(rptrMem)

	if wptr < rptr {
		return fault(fmt.Errorf("wptr %d behind rptr %d: %w",
			wptr, rptr, device.EINVAL))
	}

	dw := make([]uint32, 0, wptr-rptr)
	for p := rptr; p < wptr; p++ {
		dw = append(dw, binary.LittleEndian.Uint32(ringMem[(p&mask)*4:]))
	}

	binary.LittleEndian.PutUint64(rptrMem, wptr)

	return exec.runStream(dw)
}
