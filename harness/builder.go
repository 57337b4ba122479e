package harness

import (
	"github.com/sarchlab/gpucs/bo"
	"github.com/sarchlab/gpucs/lanes"
	"github.com/sarchlab/gpucs/submit"
)

// Builder can build runners.
type Builder struct {
	lanes   *lanes.Manager
	engine  *submit.Engine
	buffers *bo.Manager
}

// MakeBuilder returns an empty Builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithLanes sets the lifecycle manager that creates the lanes.
func (b Builder) WithLanes(m *lanes.Manager) Builder {
	b.lanes = m
	return b
}

// WithEngine sets the submission engine.
func (b Builder) WithEngine(e *submit.Engine) Builder {
	b.engine = e
	return b
}

// WithBufferManager sets where scratch buffers come from.
func (b Builder) WithBufferManager(m *bo.Manager) Builder {
	b.buffers = m
	return b
}

// Build creates a Runner.
func (b Builder) Build(name string) *Runner {
	if b.lanes == nil || b.engine == nil || b.buffers == nil {
		panic("harness: lanes, engine and buffer manager must be set")
	}

	return &Runner{
		name:     name,
		lanes:    b.lanes,
		engine:   b.engine,
		buffers:  b.buffers,
		progress: NewProgress(),
	}
}
