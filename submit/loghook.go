package submit

import (
	"log"

	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/hooking"
	"github.com/sarchlab/gpucs/ring"
)

// A LogHook writes the rounds it observes to a logger. Tolerated codes and
// failed rounds are always written; passing rounds only when verbose.
type LogHook struct {
	*log.Logger

	verbose bool
}

// NewLogHook creates a LogHook.
func NewLogHook(logger *log.Logger, verbose bool) *LogHook {
	return &LogHook{Logger: logger, verbose: verbose}
}

// Func writes one line per event of interest.
func (h *LogHook) Func(ctx hooking.HookCtx) {
	c, ok := ctx.Item.(*ring.Context)
	if !ok {
		return
	}

	ev, ok := ctx.Detail.(Event)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosTolerated:
		h.Printf("%s round %s: tolerated %s from %s",
			c.Name(), ev.Round, device.CodeName(ev.Err), ev.Step)
	case HookPosRoundEnd:
		switch {
		case ev.Err != nil:
			h.Printf("%s round %s: %v", c.Name(), ev.Round, ev.Err)
		case h.verbose:
			h.Printf("%s round %s: seq %d, submit %s, wait %s",
				c.Name(), ev.Round, ev.Completion.SeqNo,
				device.CodeName(ev.Completion.SubmitErr),
				device.CodeName(ev.Completion.WaitErr))
		}
	}
}
