package submit

import (
	"log"

	"github.com/sarchlab/gpucs/bo"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/ring"
)

// TimelineSubmission publishes the indirect buffer on the context's user
// queue. Completion is ordered by the timeline the next allocation waits on,
// so no fence is queried.
type TimelineSubmission struct {
	engine *Engine
}

// Protocol returns ProtocolUser.
func (s *TimelineSubmission) Protocol() device.Protocol {
	return device.ProtocolUser
}

// Submit hands ib to the operation table's user-mode entry point.
func (s *TimelineSubmission) Submit(
	c *ring.Context,
	ib *bo.Buffer,
	expectFailure bool,
) (ring.Completion, error) {
	comp := ring.Completion{Protocol: device.ProtocolUser}

	ev := Event{ExpectFailure: expectFailure, IBAddr: ib.GPUAddr}
	s.engine.invoke(HookPosBeforeSubmit, c, ev)

	comp.SubmitErr = c.Ops.SubmitUserMode(c, ib.GPUAddr)
	c.SetSubmitCode(comp.SubmitErr)

	ev.Step = StepSubmit
	ev.Completion = comp
	s.engine.invoke(HookPosAfterSubmit, c, ev)

	if comp.SubmitErr == nil {
		return comp, nil
	}

	if expectFailure {
		log.Printf("%s: expect failure: user queue submit %s",
			c.Name(), device.CodeName(comp.SubmitErr))
		return comp, nil
	}

	return comp, newHardFailure(c, StepSubmit, comp.SubmitErr)
}
