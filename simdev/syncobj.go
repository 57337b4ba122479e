package simdev

import (
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/gpucs/device"
)

type syncobj struct {
	sync.Mutex
	value   uint64
	changed chan struct{}
	fence   *job
}

func newSyncobj() *syncobj {
	return &syncobj{changed: make(chan struct{})}
}

// signal moves the timeline forward to point. Points never move backwards.
func (s *syncobj) signal(point uint64) {
	s.Lock()
	defer s.Unlock()

	if point <= s.value {
		return
	}

	s.value = point
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *syncobj) wait(point uint64, timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout != device.TimeoutInfinite {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		s.Lock()
		if s.value >= point {
			s.Unlock()
			return nil
		}
		changed := s.changed
		s.Unlock()

		select {
		case <-changed:
		case <-deadline:
			return device.ETIME
		}
	}
}

func (s *syncobj) attach(j *job) {
	s.Lock()
	defer s.Unlock()

	s.fence = j
}

func (s *syncobj) currentFence() *job {
	s.Lock()
	defer s.Unlock()

	return s.fence
}

// CreateSyncobj creates a timeline synchronization object at point 0.
func (d *Device) CreateSyncobj() (device.SyncobjHandle, error) {
	d.Lock()
	defer d.Unlock()

	h := device.SyncobjHandle(d.newHandle())
	d.syncobjs[h] = newSyncobj()

	return h, nil
}

// DestroySyncobj destroys a synchronization object.
func (d *Device) DestroySyncobj(h device.SyncobjHandle) error {
	d.Lock()
	defer d.Unlock()

	if _, ok := d.syncobjs[h]; !ok {
		return fmt.Errorf("%s: destroy syncobj %d: %w",
			d.name, h, device.ENOENT)
	}

	delete(d.syncobjs, h)

	return nil
}

func (d *Device) syncobj(h device.SyncobjHandle) (*syncobj, error) {
	d.Lock()
	defer d.Unlock()

	so, ok := d.syncobjs[h]
	if !ok {
		return nil, fmt.Errorf("%s: syncobj %d: %w", d.name, h, device.ENOENT)
	}

	return so, nil
}

// TimelineWait blocks until the timeline reaches point. It returns ETIME
// when the timeout passes first.
func (d *Device) TimelineWait(
	h device.SyncobjHandle,
	point uint64,
	timeout time.Duration,
) error {
	so, err := d.syncobj(h)
	if err != nil {
		return err
	}

	if err := so.wait(point, timeout); err != nil {
		return fmt.Errorf("%s: syncobj %d point %d: %w",
			d.name, h, point, err)
	}

	return nil
}

// SyncobjWait blocks until the last fence attached by a user queue signal
// completes and returns the fence's result.
func (d *Device) SyncobjWait(h device.SyncobjHandle, timeout time.Duration) error {
	so, err := d.syncobj(h)
	if err != nil {
		return err
	}

	j := so.currentFence()
	if j == nil {
		return nil
	}

	if !j.wait(timeout) {
		return fmt.Errorf("%s: syncobj %d: %w", d.name, h, device.ETIME)
	}

	return j.err
}
