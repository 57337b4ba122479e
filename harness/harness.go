// Package harness drives complete rounds: it creates the lanes of an engine
// class, fills and submits an opcode program on each of them and checks what
// the device wrote.
package harness

import (
	"errors"
	"fmt"

	"github.com/sarchlab/gpucs/bo"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/lanes"
	"github.com/sarchlab/gpucs/ring"
	"github.com/sarchlab/gpucs/submit"
)

// Data lengths of the rounds.
const (
	// WriteLength is the number of dwords a write round stores.
	WriteLength = 128

	// FillLength is the number of bytes a fill round stores.
	FillLength = 1 << 20

	// CopyLength is the number of bytes a copy round moves.
	CopyLength = 1024

	// NopCount is the number of NOP packets in a NOP round.
	NopCount = 16

	programDwords = 256
)

// ErrMismatch matches every VerifyError.
var ErrMismatch = errors.New("destination does not hold the expected data")

// VerifyError reports a destination buffer that does not hold what the
// round should have written.
type VerifyError struct {
	Engine   device.EngineClass
	Lane     int
	Protocol device.Protocol
	Check    string
	Got      uint32
	Want     uint32
}

func newVerifyError(c *ring.Context, check string) *VerifyError {
	return &VerifyError{
		Engine:   c.Engine,
		Lane:     c.Lane,
		Protocol: c.Protocol,
		Check:    check,
	}
}

func (e *VerifyError) Error() string {
	if e.Got == e.Want {
		return fmt.Sprintf("%s lane %d (%s): %s failed",
			e.Engine, e.Lane, e.Protocol, e.Check)
	}

	return fmt.Sprintf("%s lane %d (%s): %s failed: got %#08x, want %#08x",
		e.Engine, e.Lane, e.Protocol, e.Check, e.Got, e.Want)
}

// Is makes errors.Is(err, ErrMismatch) hold.
func (e *VerifyError) Is(target error) bool {
	return target == ErrMismatch
}

// Runner runs rounds against one device.
type Runner struct {
	name     string
	lanes    *lanes.Manager
	engine   *submit.Engine
	buffers  *bo.Manager
	progress *Progress
}

// Name returns the name of the runner.
func (r *Runner) Name() string {
	return r.name
}

// Progress returns the round counters of the runner.
func (r *Runner) Progress() *Progress {
	return r.progress
}

// placements returns the placement flags each round is repeated with.
func placements(secure bool) []device.AllocFlags {
	flags := []device.AllocFlags{0, device.FlagCPUGTTUSWC}
	if secure {
		for i := range flags {
			flags[i] |= device.FlagEncrypted
		}
	}

	return flags
}

func (r *Runner) allocate(
	c *ring.Context,
	size uint64,
	flags device.AllocFlags,
) (*bo.Buffer, error) {
	return r.buffers.Allocate(bo.Request{
		Size:      size,
		Alignment: bo.DefaultAlignment,
		Domain:    device.DomainGTT,
		Flags:     flags,
		Mapping:   device.MTypeUC,
	}, c)
}

// release frees a scratch buffer and detaches it from the context.
func release(c *ring.Context, b *bo.Buffer) error {
	if c.Dst == b {
		c.Dst = nil
	}

	if c.Src == b {
		c.Src = nil
	}

	return b.Release()
}

func (r *Runner) submit(c *ring.Context) error {
	_, err := r.engine.SubmitAndWait(c, false)
	r.progress.round(c, err)

	return err
}

// withLanes runs fn on every lane of the engine class and destroys the lanes
// afterwards.
func (r *Runner) withLanes(
	engine device.EngineClass,
	protocol device.Protocol,
	opt ring.Options,
	fn func(c *ring.Context) error,
) (err error) {
	opt.ProgramDwords = programDwords

	cs, err := r.lanes.CreateLanes(engine, protocol, opt)
	if err != nil {
		r.progress.skip(err)
		return err
	}

	defer func() {
		err = errors.Join(err, r.lanes.DestroyLanes(cs))
	}()

	for _, c := range cs {
		if err := fn(c); err != nil {
			return err
		}
	}

	return nil
}
