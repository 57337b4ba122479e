// Package lanes creates and destroys the ring contexts of the queue lanes an
// engine class exposes.
package lanes

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/ring"
)

// ErrNotAvailable is reported when an engine class has no lanes for the
// protocol. Callers skip the engine class.
var ErrNotAvailable = errors.New("no lanes available")

// MaxLanes is the width of the lane bitmask.
const MaxLanes = 32

// An OpsTable finds the operation table of an engine class.
type OpsTable interface {
	Lookup(engine device.EngineClass) (ring.Ops, error)
}

// A SubmitterSource provides the submission strategy of each protocol.
type SubmitterSource interface {
	SubmitterFor(p device.Protocol) ring.Submitter
}

// Manager is the queue lifecycle manager.
type Manager struct {
	name       string
	prober     device.Prober
	scheduler  device.Scheduler
	ops        OpsTable
	submitters SubmitterSource

	lock sync.Mutex
	live []*ring.Context
}

// Name returns the name of the manager.
func (m *Manager) Name() string {
	return m.name
}

// CreateLanes creates one ring context per lane that the device reports for
// the engine class and protocol. Either every context is created or none is.
func (m *Manager) CreateLanes(
	engine device.EngineClass,
	protocol device.Protocol,
	opt ring.Options,
) ([]*ring.Context, error) {
	info, err := m.prober.QueryHWIP(engine)
	if err != nil {
		return nil, fmt.Errorf("%s: query %s: %w", m.name, engine, err)
	}

	mask := info.LaneMask(protocol)
	if mask == 0 {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotAvailable, engine, protocol)
	}

	ops, err := m.ops.Lookup(engine)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.name, err)
	}

	var created []*ring.Context

	for lane := 0; lane < MaxLanes; lane++ {
		if mask&(1<<lane) == 0 {
			continue
		}

		c := ring.New(engine, lane, protocol, ops, opt)
		c.HWIP = info

		if err := m.createQueue(c); err != nil {
			return nil, errors.Join(err, m.destroy(created))
		}

		created = append(created, c)
	}

	m.lock.Lock()
	m.live = append(m.live, created...)
	m.lock.Unlock()

	return created, nil
}

func (m *Manager) createQueue(c *ring.Context) error {
	switch c.Protocol {
	case device.ProtocolKernel:
		if m.scheduler == nil {
			return fmt.Errorf("%s: %s: no scheduler", m.name, c.Name())
		}

		h, err := m.scheduler.CreateContext()
		if err != nil {
			return fmt.Errorf("%s: %s: create context: %w",
				m.name, c.Name(), err)
		}

		c.ContextHandle = h
	case device.ProtocolUser:
		if err := c.Ops.CreateUserQueue(c); err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
	default:
		return fmt.Errorf("%s: %s: unknown protocol", m.name, c.Name())
	}

	c.Bind(m.submitters.SubmitterFor(c.Protocol))
	c.MustTransition(ring.StateQueueCreated)

	return nil
}

// DestroyLanes tears down the queues of contexts returned by CreateLanes.
// Every context must be idle.
func (m *Manager) DestroyLanes(cs []*ring.Context) error {
	err := m.destroy(cs)

	m.lock.Lock()
	defer m.lock.Unlock()

	kept := m.live[:0]
	for _, c := range m.live {
		if c.State() != ring.StateQueueDestroyed {
			kept = append(kept, c)
		}
	}

	clear(m.live[len(kept):])
	m.live = kept

	return err
}

func (m *Manager) destroy(cs []*ring.Context) error {
	var errs []error

	for _, c := range cs {
		c.MustTransition(ring.StateQueueDestroyed)

		switch c.Protocol {
		case device.ProtocolKernel:
			if err := m.scheduler.FreeContext(c.ContextHandle); err != nil {
				errs = append(errs, fmt.Errorf("%s: %s: free context: %w",
					m.name, c.Name(), err))
			}

			c.ContextHandle = 0
		case device.ProtocolUser:
			if err := c.Ops.DestroyUserQueue(c); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
			}
		}

		c.Program.Reset()
		c.Resources.Reset()
	}

	return errors.Join(errs...)
}

// Contexts returns the contexts that have been created and not destroyed.
func (m *Manager) Contexts() []*ring.Context {
	m.lock.Lock()
	defer m.lock.Unlock()

	out := make([]*ring.Context, len(m.live))
	copy(out, m.live)

	return out
}

// Status returns a snapshot of every live context.
func (m *Manager) Status() []ring.Status {
	cs := m.Contexts()

	out := make([]ring.Status, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Snapshot())
	}

	return out
}
