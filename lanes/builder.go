package lanes

import "github.com/sarchlab/gpucs/device"

// Builder can build lifecycle managers.
type Builder struct {
	prober     device.Prober
	scheduler  device.Scheduler
	ops        OpsTable
	submitters SubmitterSource
}

// MakeBuilder returns an empty Builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithProber sets where lane masks come from.
func (b Builder) WithProber(p device.Prober) Builder {
	b.prober = p
	return b
}

// WithScheduler sets the interface that creates kernel-mode contexts.
func (b Builder) WithScheduler(s device.Scheduler) Builder {
	b.scheduler = s
	return b
}

// WithOpsTable sets where operation tables come from.
func (b Builder) WithOpsTable(t OpsTable) Builder {
	b.ops = t
	return b
}

// WithSubmitters sets the source of submission strategies, usually the
// submission engine.
func (b Builder) WithSubmitters(s SubmitterSource) Builder {
	b.submitters = s
	return b
}

// Build creates a Manager.
func (b Builder) Build(name string) *Manager {
	if b.prober == nil || b.ops == nil || b.submitters == nil {
		panic("lanes: prober, operation table and submitters must be set")
	}

	return &Manager{
		name:       name,
		prober:     b.prober,
		scheduler:  b.scheduler,
		ops:        b.ops,
		submitters: b.submitters,
	}
}
