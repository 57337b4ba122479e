package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/hooking"
	"github.com/sarchlab/gpucs/ring"
	"github.com/sarchlab/gpucs/submit"
)

// NamedHookable represent something both have a name and can be hooked
type NamedHookable interface {
	Name() string
	hooking.Hookable
}

// CollectTrace let the tracer to collect trace from a domain
func CollectTrace(domain NamedHookable, tracer Tracer) {
	hooks := domain.Hooks()
	for _, hook := range hooks {
		hook, ok := hook.(*traceHook)
		if ok && hook.t == tracer {
			panic(fmt.Sprintf(
				"domain %s already has tracer %s",
				domain.Name(), reflect.TypeOf(tracer)))
		}
	}

	h := traceHook{t: tracer}
	domain.AcceptHook(&h)
}

// A traceHook turns submission events into tasks. A round task holds a
// submit task and, for kernel-mode rounds, a wait task.
type traceHook struct {
	t Tracer
}

func subTaskID(round, kind string) string {
	return round + "." + kind
}

// Func calls the tracer interfaces when the hook is triggered
func (h *traceHook) Func(ctx hooking.HookCtx) {
	c, ok := ctx.Item.(*ring.Context)
	if !ok {
		return
	}

	ev, ok := ctx.Detail.(submit.Event)
	if !ok || ev.Round == "" {
		return
	}

	switch ctx.Pos {
	case submit.HookPosRoundStart:
		what := "round"
		if ev.ExpectFailure {
			what = "expect_failure"
		}

		h.t.StartTask(Task{
			ID:       ev.Round,
			Kind:     KindRound,
			What:     what,
			Location: c.Name(),
		})
	case submit.HookPosBeforeSubmit:
		h.startSub(c, ev.Round, KindSubmit)
	case submit.HookPosAfterSubmit:
		h.t.EndTask(Task{ID: subTaskID(ev.Round, KindSubmit)})

		if c.Protocol == device.ProtocolKernel {
			h.startSub(c, ev.Round, KindWait)
		}
	case submit.HookPosAfterWait:
		h.t.EndTask(Task{ID: subTaskID(ev.Round, KindWait)})
	case submit.HookPosTolerated:
		h.step(ev.Round, fmt.Sprintf("tolerated %s %s",
			ev.Step, device.CodeName(ev.Err)))
	case submit.HookPosRoundEnd:
		if ev.Err != nil {
			h.step(ev.Round, "failed: "+ev.Err.Error())
		}

		h.t.EndTask(Task{ID: subTaskID(ev.Round, KindWait)})
		h.t.EndTask(Task{ID: subTaskID(ev.Round, KindSubmit)})
		h.t.EndTask(Task{ID: ev.Round})
	}
}

func (h *traceHook) startSub(c *ring.Context, round, kind string) {
	h.t.StartTask(Task{
		ID:       subTaskID(round, kind),
		ParentID: round,
		Kind:     kind,
		What:     c.Protocol.String(),
		Location: c.Name(),
	})
}

func (h *traceHook) step(round, what string) {
	h.t.StepTask(Task{
		ID:    round,
		Steps: []TaskStep{{What: what}},
	})
}
