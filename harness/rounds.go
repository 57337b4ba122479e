package harness

import (
	"errors"

	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/lanes"
	"github.com/sarchlab/gpucs/ring"
)

// WriteLinear writes WriteLength dwords on every lane of the engine class,
// once per placement. Secure rounds use encrypted buffers and check them
// with atomic writes instead of reading them back.
func (r *Runner) WriteLinear(
	engine device.EngineClass,
	protocol device.Protocol,
	secure bool,
) error {
	opt := ring.Options{Secure: secure, WriteLength: WriteLength}

	return r.withLanes(engine, protocol, opt, func(c *ring.Context) error {
		for _, flags := range placements(secure) {
			if err := r.writeLinearRound(c, flags); err != nil {
				return err
			}
		}

		return nil
	})
}

// WriteLinearMulti runs one write round on every lane of every engine class
// in the mask. All lanes are created before the first round and destroyed
// after the last one.
func (r *Runner) WriteLinearMulti(
	engines device.EngineMask,
	protocol device.Protocol,
	secure bool,
) (err error) {
	g, err := r.lanes.CreateGroup(engines, protocol, ring.Options{
		Secure:        secure,
		WriteLength:   WriteLength,
		ProgramDwords: programDwords,
	})
	if err != nil {
		r.progress.skip(err)
		return err
	}

	defer func() {
		err = errors.Join(err, g.Destroy())
	}()

	flags := placements(secure)[0]
	for _, c := range g.Contexts() {
		if err := r.writeLinearRound(c, flags); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) writeLinearRound(
	c *ring.Context,
	flags device.AllocFlags,
) (err error) {
	dst, err := r.allocate(c, uint64(c.WriteLength)*4, flags)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, release(c, dst))
	}()

	dst.Clear()
	c.Dst = dst

	if err := c.Resources.Set(dst.Handle); err != nil {
		return err
	}

	if err := c.Ops.WriteLinear(c); err != nil {
		return err
	}

	if err := r.submit(c); err != nil {
		return err
	}

	switch {
	case !c.Secure:
		return r.verify(c, "write compare", c.Ops.Compare(c, 1))
	case c.Engine == device.EngineGFX:
		return r.atomicRound(c)
	case c.Engine == device.EngineDMA:
		return r.VerifyAtomic(c)
	}

	return nil
}

func (r *Runner) atomicRound(c *ring.Context) error {
	if err := c.Ops.WriteLinearAtomic(c); err != nil {
		return err
	}

	return r.submit(c)
}

// VerifyAtomic runs two atomic rounds on the destination of the context. The
// first one must change the first dword and the second one must leave it as
// the first one left it.
func (r *Runner) VerifyAtomic(c *ring.Context) error {
	if c.Dst == nil {
		return errors.New("atomic verification needs a destination")
	}

	c.OriginValue = c.Dst.Uint32(0)
	if err := r.atomicRound(c); err != nil {
		return err
	}

	if got := c.Dst.Uint32(0); got == c.OriginValue {
		e := newVerifyError(c, "first atomic write")
		e.Got, e.Want = got, got

		return r.fail(e)
	}

	c.OriginValue = c.Dst.Uint32(0)
	if err := r.atomicRound(c); err != nil {
		return err
	}

	if got := c.Dst.Uint32(0); got != c.OriginValue {
		e := newVerifyError(c, "second atomic write")
		e.Got, e.Want = got, c.OriginValue

		return r.fail(e)
	}

	r.progress.verified()

	return nil
}

// ConstFill fills FillLength bytes on every lane of the engine class, once
// per placement.
func (r *Runner) ConstFill(
	engine device.EngineClass,
	protocol device.Protocol,
) error {
	opt := ring.Options{WriteLength: FillLength}

	return r.withLanes(engine, protocol, opt, func(c *ring.Context) error {
		for _, flags := range placements(false) {
			if err := r.constFillRound(c, flags); err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *Runner) constFillRound(
	c *ring.Context,
	flags device.AllocFlags,
) (err error) {
	dst, err := r.allocate(c, uint64(c.WriteLength), flags)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, release(c, dst))
	}()

	dst.Clear()
	c.Dst = dst

	if err := c.Resources.Set(dst.Handle); err != nil {
		return err
	}

	if err := c.Ops.ConstFill(c); err != nil {
		return err
	}

	if err := r.submit(c); err != nil {
		return err
	}

	return r.verify(c, "fill compare", c.Ops.Compare(c, 4))
}

// CopyLinear copies CopyLength bytes of the engine's pattern on every lane of
// the engine class, once per combination of source and destination
// placement.
func (r *Runner) CopyLinear(
	engine device.EngineClass,
	protocol device.Protocol,
) error {
	opt := ring.Options{WriteLength: CopyLength}

	return r.withLanes(engine, protocol, opt, func(c *ring.Context) error {
		for _, srcFlags := range placements(false) {
			for _, dstFlags := range placements(false) {
				err := r.copyLinearRound(c, srcFlags, dstFlags)
				if err != nil {
					return err
				}
			}
		}

		return nil
	})
}

func (r *Runner) copyLinearRound(
	c *ring.Context,
	srcFlags, dstFlags device.AllocFlags,
) (err error) {
	src, err := r.allocate(c, uint64(c.WriteLength), srcFlags)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, release(c, src))
	}()

	src.Fill(c.Ops.Pattern())
	c.Src = src

	dst, err := r.allocate(c, uint64(c.WriteLength), dstFlags)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, release(c, dst))
	}()

	dst.Clear()
	c.Dst = dst

	if err := c.Resources.Set(src.Handle, dst.Handle); err != nil {
		return err
	}

	if err := c.Ops.CopyLinear(c); err != nil {
		return err
	}

	if err := r.submit(c); err != nil {
		return err
	}

	return r.verify(c, "copy compare", c.Ops.ComparePattern(c, 4))
}

// Nop submits rounds NOP-only programs on every lane of the engine class.
func (r *Runner) Nop(
	engine device.EngineClass,
	protocol device.Protocol,
	rounds int,
) error {
	return r.withLanes(engine, protocol, ring.Options{},
		func(c *ring.Context) error {
			c.Resources.Reset()

			for i := 0; i < rounds; i++ {
				if err := c.Ops.Nop(c, NopCount); err != nil {
					return err
				}

				if err := r.submit(c); err != nil {
					return err
				}
			}

			return nil
		})
}

func (r *Runner) verify(c *ring.Context, check string, ok bool) error {
	if !ok {
		return r.fail(newVerifyError(c, check))
	}

	r.progress.verified()

	return nil
}

func (r *Runner) fail(err *VerifyError) error {
	r.progress.mismatch()
	return err
}

// Skipped tells if err only reports that there was nothing to run.
func Skipped(err error) bool {
	return errors.Is(err, lanes.ErrNotAvailable)
}
