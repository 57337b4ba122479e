package ipblock

import (
	"fmt"

	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/ring"
)

// GFX is the operation table of the graphics engine.
type GFX struct {
	base
}

// Compute is the operation table of the compute engine.
type Compute struct {
	base
}

// WriteLinearAtomic is not available on compute queues.
func (c *Compute) WriteLinearAtomic(rc *ring.Context) error {
	return fmt.Errorf("%s: atomic write: %w", rc.Name(), ErrUnsupported)
}

// SDMA is the operation table of the copy engine. Its programs are padded to
// eight dwords.
type SDMA struct {
	base
}

var (
	_ ring.Ops = (*GFX)(nil)
	_ ring.Ops = (*Compute)(nil)
	_ ring.Ops = (*SDMA)(nil)
)

// Registry finds the operation table of an engine class.
type Registry struct {
	tables map[device.EngineClass]ring.Ops
}

// Lookup returns the table of an engine class.
func (r *Registry) Lookup(engine device.EngineClass) (ring.Ops, error) {
	ops, ok := r.tables[engine]
	if !ok {
		return nil, fmt.Errorf("no operation table for %s: %w",
			engine, ErrUnsupported)
	}

	return ops, nil
}

// Engines returns the engine classes that have a table.
func (r *Registry) Engines() device.EngineMask {
	var m device.EngineMask
	for e := range r.tables {
		m |= device.MaskOf(e)
	}

	return m
}
