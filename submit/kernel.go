package submit

import (
	"log"
	"time"

	"github.com/sarchlab/gpucs/bo"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/ring"
)

// KernelFenceSubmission submits through the kernel driver and waits on the
// fence named by the returned sequence number.
type KernelFenceSubmission struct {
	engine    *Engine
	scheduler device.Scheduler
	timeout   time.Duration
}

// Protocol returns ProtocolKernel.
func (s *KernelFenceSubmission) Protocol() device.Protocol {
	return device.ProtocolKernel
}

// Submit sends ib with the context's resources appended by ib itself, then
// waits for the fence.
func (s *KernelFenceSubmission) Submit(
	c *ring.Context,
	ib *bo.Buffer,
	expectFailure bool,
) (ring.Completion, error) {
	comp := ring.Completion{Protocol: device.ProtocolKernel}

	list, err := s.scheduler.CreateBOList(c.Resources.Snapshot(ib.Handle))
	if err != nil {
		return comp, newHardFailure(c, StepBOList, err)
	}

	var flags device.IBFlags
	if c.Secure {
		flags |= device.IBFlagSecure
	}

	req := &device.Request{
		Engine:    c.Engine,
		Ring:      uint32(c.Lane),
		Resources: list,
		IBs: []device.IBInfo{{
			GPUAddr:    ib.GPUAddr,
			SizeDwords: uint32(c.Program.Len()),
			Flags:      flags,
		}},
	}

	ev := Event{ExpectFailure: expectFailure, IBAddr: ib.GPUAddr}
	s.engine.invoke(HookPosBeforeSubmit, c, ev)

	comp.SeqNo, comp.SubmitErr = s.scheduler.Submit(c.ContextHandle, req)
	c.SetSubmitCode(comp.SubmitErr)

	ev.Step = StepSubmit
	ev.Completion = comp
	s.engine.invoke(HookPosAfterSubmit, c, ev)

	failure := s.classify(c, &comp, StepSubmit, comp.SubmitErr, expectFailure)

	if err := s.scheduler.DestroyBOList(list); err != nil && failure == nil {
		failure = newHardFailure(c, StepBOList, err)
	}

	if failure != nil {
		return comp, failure
	}

	c.MustTransition(ring.StateWaiting)

	comp.Expired, comp.WaitErr = s.scheduler.QueryFence(device.Fence{
		Engine:  c.Engine,
		Ring:    uint32(c.Lane),
		Context: c.ContextHandle,
		SeqNo:   comp.SeqNo,
	}, s.timeout)
	c.SetWaitCode(comp.WaitErr)

	ev.Step = StepWait
	ev.Completion = comp
	s.engine.invoke(HookPosAfterWait, c, ev)

	if expectFailure {
		log.Printf("%s: expect failure: query fence %s, expired %t",
			c.Name(), device.CodeName(comp.WaitErr), comp.Expired)
		return comp, nil
	}

	if comp.WaitErr == nil && !comp.Expired {
		return comp, newHardFailure(c, StepWait, device.ETIME)
	}

	return comp, s.classify(c, &comp, StepWait, comp.WaitErr, false)
}

func (s *KernelFenceSubmission) classify(
	c *ring.Context,
	comp *ring.Completion,
	step Step,
	code error,
	expectFailure bool,
) error {
	if expectFailure {
		log.Printf("%s: expect failure: %s %s", c.Name(), step,
			device.CodeName(code))
		return nil
	}

	if code == nil {
		return nil
	}

	ok := ToleratedOnSubmit(code)
	if step == StepWait {
		ok = ToleratedOnWait(code)
	}

	if !ok {
		return newHardFailure(c, step, code)
	}

	comp.Tolerated = true
	s.engine.invoke(HookPosTolerated, c, Event{
		Step:       step,
		Completion: *comp,
		Err:        code,
	})

	return nil
}
