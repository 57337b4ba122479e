package tracing

import (
	"errors"

	"github.com/sarchlab/gpucs/datarecording"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/hooking"
	"github.com/sarchlab/gpucs/ring"
	"github.com/sarchlab/gpucs/submit"
)

// RoundTable is the table round results are written to.
const RoundTable = "rounds"

// Outcomes of a round.
const (
	OutcomePass          = "pass"
	OutcomeTolerated     = "tolerated"
	OutcomeExpectFailure = "expect_failure"
	OutcomeFail          = "fail"
	OutcomeError         = "error"
)

// RoundEntry is one row of the round table.
type RoundEntry struct {
	Round         string
	Context       string
	Engine        string
	Lane          int
	Protocol      string
	Secure        bool
	ExpectFailure bool
	SeqNo         uint64
	SubmitCode    string
	WaitCode      string
	Expired       bool
	Outcome       string
	Error         string
	Time          float64
}

// ResultRecorder is a hook that writes one row per finished round.
type ResultRecorder struct {
	recorder   datarecording.DataRecorder
	timeTeller TimeTeller
}

// NewResultRecorder creates the round table.
func NewResultRecorder(
	recorder datarecording.DataRecorder,
	timeTeller TimeTeller,
) *ResultRecorder {
	recorder.CreateTable(RoundTable, RoundEntry{})

	return &ResultRecorder{
		recorder:   recorder,
		timeTeller: timeTeller,
	}
}

// Func records rounds when they end.
func (r *ResultRecorder) Func(ctx hooking.HookCtx) {
	if ctx.Pos != submit.HookPosRoundEnd {
		return
	}

	c, ok := ctx.Item.(*ring.Context)
	if !ok {
		return
	}

	ev := ctx.Detail.(submit.Event)

	entry := RoundEntry{
		Round:         ev.Round,
		Context:       c.Name(),
		Engine:        c.Engine.String(),
		Lane:          c.Lane,
		Protocol:      c.Protocol.String(),
		Secure:        c.Secure,
		ExpectFailure: ev.ExpectFailure,
		SeqNo:         ev.Completion.SeqNo,
		SubmitCode:    device.CodeName(ev.Completion.SubmitErr),
		WaitCode:      device.CodeName(ev.Completion.WaitErr),
		Expired:       ev.Completion.Expired,
		Outcome:       Outcome(ev),
		Time:          r.timeTeller.CurrentTime(),
	}

	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}

	r.recorder.InsertData(RoundTable, entry)
}

// Outcome classifies a finished round.
func Outcome(ev submit.Event) string {
	switch {
	case errors.Is(ev.Err, submit.ErrHardFailure):
		return OutcomeFail
	case ev.Err != nil:
		return OutcomeError
	case ev.ExpectFailure:
		return OutcomeExpectFailure
	case ev.Completion.Tolerated:
		return OutcomeTolerated
	default:
		return OutcomePass
	}
}
