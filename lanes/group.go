package lanes

import (
	"errors"

	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/ring"
)

// Group holds the lanes of several engine classes.
type Group struct {
	m       *Manager
	engines []device.EngineClass
	lanes   map[device.EngineClass][]*ring.Context
}

// CreateGroup creates the lanes of every engine class in the mask. Engine
// classes without lanes are left out. ErrNotAvailable is returned when no
// engine class has a lane.
func (m *Manager) CreateGroup(
	engines device.EngineMask,
	protocol device.Protocol,
	opt ring.Options,
) (*Group, error) {
	g := &Group{
		m:     m,
		lanes: make(map[device.EngineClass][]*ring.Context),
	}

	var skipped []error

	for _, e := range engines.Engines() {
		cs, err := m.CreateLanes(e, protocol, opt)
		if errors.Is(err, ErrNotAvailable) {
			skipped = append(skipped, err)
			continue
		}

		if err != nil {
			return nil, errors.Join(err, g.Destroy())
		}

		g.engines = append(g.engines, e)
		g.lanes[e] = cs
	}

	if len(g.engines) == 0 {
		if len(skipped) == 0 {
			return nil, ErrNotAvailable
		}

		return nil, errors.Join(skipped...)
	}

	return g, nil
}

// Engines returns the engine classes that have lanes, in ascending order.
func (g *Group) Engines() []device.EngineClass {
	return g.engines
}

// Lanes returns the contexts of one engine class.
func (g *Group) Lanes(e device.EngineClass) []*ring.Context {
	return g.lanes[e]
}

// Contexts returns every context, grouped by engine class.
func (g *Group) Contexts() []*ring.Context {
	var out []*ring.Context
	for _, e := range g.engines {
		out = append(out, g.lanes[e]...)
	}

	return out
}

// Destroy tears down every lane of the group.
func (g *Group) Destroy() error {
	var errs []error
	for _, e := range g.engines {
		errs = append(errs, g.m.DestroyLanes(g.lanes[e]))
	}

	g.engines = nil
	g.lanes = make(map[device.EngineClass][]*ring.Context)

	return errors.Join(errs...)
}
