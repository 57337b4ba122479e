// Package ipblock holds the operation tables of the engine classes. Each
// table fills the opcode program of a ring context and checks the
// destination buffer afterwards.
package ipblock

import (
	"errors"
	"fmt"

	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/packet"
	"github.com/sarchlab/gpucs/ring"
)

// Values the programs write and compare against.
const (
	Deadbeaf   uint32 = 0xdeadbeaf
	Pattern    byte   = 0xaa
	AtomicSwap uint32 = 0x12345678
)

// ErrUnsupported is returned by operations an engine class does not have.
var ErrUnsupported = errors.New("operation not supported by engine")

// ErrNoBuffer is returned when a program needs a scratch buffer the context
// does not hold.
var ErrNoBuffer = errors.New("scratch buffer not set")

type base struct {
	engine device.EngineClass

	// padAlign pads programs with NOPs to a multiple of this many dwords.
	padAlign int

	userQueues *userQueueFactory
}

func (b *base) Engine() device.EngineClass {
	return b.engine
}

func (b *base) Pattern() byte {
	return Pattern
}

func (b *base) finish(c *ring.Context) error {
	return c.Program.PadTo(b.padAlign, packet.NOP()[0])
}

func needDst(c *ring.Context) error {
	if c.Dst == nil || c.Dst.Released() {
		return fmt.Errorf("%s: destination: %w", c.Name(), ErrNoBuffer)
	}

	return nil
}

// WriteLinear writes WriteLength dwords of Deadbeaf to the destination.
func (b *base) WriteLinear(c *ring.Context) error {
	if err := needDst(c); err != nil {
		return err
	}

	data := make([]uint32, c.WriteLength)
	for i := range data {
		data[i] = Deadbeaf
	}

	c.Program.Reset()
	if err := c.Program.Emit(packet.WriteData(c.Dst.GPUAddr, data)...); err != nil {
		return err
	}

	return b.finish(c)
}

// WriteLinearAtomic swaps the first destination dword to AtomicSwap if it
// still holds Deadbeaf.
func (b *base) WriteLinearAtomic(c *ring.Context) error {
	if err := needDst(c); err != nil {
		return err
	}

	c.Program.Reset()
	err := c.Program.Emit(
		packet.AtomicCmpSwap(c.Dst.GPUAddr, Deadbeaf, AtomicSwap)...)
	if err != nil {
		return err
	}

	return b.finish(c)
}

// ConstFill fills WriteLength bytes of the destination with Deadbeaf.
func (b *base) ConstFill(c *ring.Context) error {
	if err := needDst(c); err != nil {
		return err
	}

	c.Program.Reset()
	err := c.Program.Emit(packet.Fill(c.Dst.GPUAddr, Deadbeaf, c.WriteLength)...)
	if err != nil {
		return err
	}

	return b.finish(c)
}

// CopyLinear copies WriteLength bytes from the source to the destination.
func (b *base) CopyLinear(c *ring.Context) error {
	if err := needDst(c); err != nil {
		return err
	}

	if c.Src == nil || c.Src.Released() {
		return fmt.Errorf("%s: source: %w", c.Name(), ErrNoBuffer)
	}

	c.Program.Reset()
	err := c.Program.Emit(
		packet.Copy(c.Src.GPUAddr, c.Dst.GPUAddr, c.WriteLength)...)
	if err != nil {
		return err
	}

	return b.finish(c)
}

// Nop fills the program with count NOP packets.
func (b *base) Nop(c *ring.Context, count int) error {
	c.Program.Reset()
	if err := c.Program.EmitRepeat(packet.NOP()[0], count); err != nil {
		return err
	}

	return b.finish(c)
}

// Compare checks that the first WriteLength/div destination dwords hold
// Deadbeaf.
func (b *base) Compare(c *ring.Context, div int) bool {
	return compareDwords(c, div, Deadbeaf)
}

// ComparePattern checks that the first WriteLength/div destination dwords
// hold the pattern byte in every lane.
func (b *base) ComparePattern(c *ring.Context, div int) bool {
	p := uint32(Pattern)
	return compareDwords(c, div, p|p<<8|p<<16|p<<24)
}

func compareDwords(c *ring.Context, div int, want uint32) bool {
	if c.Dst == nil || c.Dst.Released() || div <= 0 {
		return false
	}

	n := int(c.WriteLength) / div
	if uint64(n)*4 > c.Dst.Size {
		return false
	}

	for i := 0; i < n; i++ {
		if c.Dst.Uint32(i) != want {
			return false
		}
	}

	return true
}

func (b *base) CreateUserQueue(c *ring.Context) error {
	if b.userQueues == nil {
		return fmt.Errorf("%s: no user queue support: %w",
			c.Name(), ErrUnsupported)
	}

	return b.userQueues.create(c, b.stateSizes())
}

func (b *base) DestroyUserQueue(c *ring.Context) error {
	if b.userQueues == nil {
		return fmt.Errorf("%s: no user queue support: %w",
			c.Name(), ErrUnsupported)
	}

	return b.userQueues.destroy(c)
}

func (b *base) SubmitUserMode(c *ring.Context, ibAddr uint64) error {
	if b.userQueues == nil {
		return fmt.Errorf("%s: no user queue support: %w",
			c.Name(), ErrUnsupported)
	}

	return b.userQueues.submit(c, ibAddr, b.ibControl(c))
}

func (b *base) ibControl(c *ring.Context) uint32 {
	control := uint32(c.Program.Len()) & packet.IBSizeMask

	if b.engine == device.EngineGFX {
		return control | packet.IBInheritVMIDGFX
	}

	return control | packet.IBValidCompute | packet.IBInheritVMIDCompute
}

func (b *base) stateSizes() []uint64 {
	switch b.engine {
	case device.EngineGFX:
		return []uint64{gfxShadowSize, gfxCSASize}
	case device.EngineCompute:
		return []uint64{computeEOPSize}
	default:
		return []uint64{gfxCSASize}
	}
}
