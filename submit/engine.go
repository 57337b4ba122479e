// Package submit sends the opcode program of a ring context to the device,
// waits for it to complete and classifies the result codes.
package submit

import (
	"log"

	"github.com/sarchlab/gpucs/bo"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/hooking"
	"github.com/sarchlab/gpucs/idgen"
	"github.com/sarchlab/gpucs/ring"
)

// Hook positions of a submission round. Hooks receive the ring context as the
// item and an Event as the detail.
var (
	HookPosRoundStart   = &hooking.HookPos{Name: "RoundStart"}
	HookPosBeforeSubmit = &hooking.HookPos{Name: "BeforeSubmit"}
	HookPosAfterSubmit  = &hooking.HookPos{Name: "AfterSubmit"}
	HookPosAfterWait    = &hooking.HookPos{Name: "AfterWait"}
	HookPosTolerated    = &hooking.HookPos{Name: "Tolerated"}
	HookPosRoundEnd     = &hooking.HookPos{Name: "RoundEnd"}
)

// Event describes what happened at a hook position.
type Event struct {
	Round         string
	ExpectFailure bool
	IBAddr        uint64
	Step          Step
	Completion    ring.Completion
	Err           error
}

// Engine is the submission and completion engine.
type Engine struct {
	hooking.HookableBase

	name     string
	buffers  *bo.Manager
	ibSize   uint64
	ids      idgen.IDGenerator
	kernel   *KernelFenceSubmission
	timeline *TimelineSubmission
}

// Name returns the name of the engine.
func (e *Engine) Name() string {
	return e.name
}

// KernelSubmitter returns the kernel-fence strategy. It is nil when the
// engine has no scheduler.
func (e *Engine) KernelSubmitter() *KernelFenceSubmission {
	return e.kernel
}

// TimelineSubmitter returns the timeline strategy.
func (e *Engine) TimelineSubmitter() *TimelineSubmission {
	return e.timeline
}

// SubmitterFor returns the strategy of a protocol.
func (e *Engine) SubmitterFor(p device.Protocol) ring.Submitter {
	if p == device.ProtocolUser {
		return e.timeline
	}

	if e.kernel == nil {
		log.Panicf("%s: no scheduler for kernel-mode submissions", e.name)
	}

	return e.kernel
}

// SubmitAndWait runs one round on an idle context: it copies the program into
// a fresh indirect buffer, submits it through the context's strategy and
// waits for completion. The returned error is an allocation error or a
// HardFailure. In expect-failure rounds codes are logged, not classified, and
// the indirect buffer is WriteLength bytes long.
func (e *Engine) SubmitAndWait(
	c *ring.Context,
	expectFailure bool,
) (ring.Completion, error) {
	size := e.ibSize
	if expectFailure {
		size = uint64(c.WriteLength)
	} else if uint64(c.Program.Len())*4 > e.ibSize {
		log.Panicf("%s: program of %d dwords exceeds the %d-byte "+
			"indirect buffer", c.Name(), c.Program.Len(), e.ibSize)
	}

	s := c.Submitter()
	if s == nil {
		log.Panicf("%s: no submitter bound", c.Name())
	}

	c.BeginRound(e.ids.Generate())
	defer c.EndRound()

	e.invoke(HookPosRoundStart, c, Event{ExpectFailure: expectFailure})

	ib, err := e.buffers.Allocate(bo.Request{
		Size:      size,
		Alignment: bo.DefaultAlignment,
		Domain:    device.DomainGTT,
		Mapping:   device.MTypeUC,
	}, c)
	if err != nil {
		comp := ring.Completion{Protocol: c.Protocol}
		e.invoke(HookPosRoundEnd, c, Event{
			ExpectFailure: expectFailure,
			Completion:    comp,
			Err:           err,
		})

		return comp, err
	}

	defer func() {
		if err := ib.Release(); err != nil {
			log.Panicf("%s: release indirect buffer: %v", c.Name(), err)
		}
	}()

	c.Program.CopyTo(ib.Bytes())

	c.MustTransition(ring.StateSubmitting)
	defer c.MustTransition(ring.StateIdle)

	comp, err := s.Submit(c, ib, expectFailure)

	e.invoke(HookPosRoundEnd, c, Event{
		ExpectFailure: expectFailure,
		IBAddr:        ib.GPUAddr,
		Completion:    comp,
		Err:           err,
	})

	return comp, err
}

func (e *Engine) invoke(pos *hooking.HookPos, c *ring.Context, ev Event) {
	if e.NumHooks() == 0 {
		return
	}

	ev.Round = c.Round()
	e.InvokeHook(hooking.HookCtx{
		Domain: e,
		Pos:    pos,
		Item:   c,
		Detail: ev,
	})
}
