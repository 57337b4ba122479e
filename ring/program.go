package ring

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrProgramOverflow is returned when an opcode program outgrows its buffer.
var ErrProgramOverflow = errors.New("opcode program would overflow")

// Program is the opcode buffer of a ring context. It grows up to a fixed
// capacity in dwords.
type Program struct {
	dw       []uint32
	capacity int
}

// NewProgram creates an empty program that holds at most capacity dwords.
func NewProgram(capacity int) *Program {
	return &Program{
		dw:       make([]uint32, 0, capacity),
		capacity: capacity,
	}
}

// Emit appends dwords.
func (p *Program) Emit(dws ...uint32) error {
	if len(p.dw)+len(dws) > p.capacity {
		return fmt.Errorf("%w: %d + %d dwords, capacity %d",
			ErrProgramOverflow, len(p.dw), len(dws), p.capacity)
	}

	p.dw = append(p.dw, dws...)

	return nil
}

// EmitRepeat appends value n times.
func (p *Program) EmitRepeat(value uint32, n int) error {
	if len(p.dw)+n > p.capacity {
		return fmt.Errorf("%w: %d + %d dwords, capacity %d",
			ErrProgramOverflow, len(p.dw), n, p.capacity)
	}

	for i := 0; i < n; i++ {
		p.dw = append(p.dw, value)
	}

	return nil
}

// PadTo appends value until the length is a multiple of align.
func (p *Program) PadTo(align int, value uint32) error {
	if align <= 1 {
		return nil
	}

	pad := (align - len(p.dw)%align) % align

	return p.EmitRepeat(value, pad)
}

// Reset empties the program.
func (p *Program) Reset() {
	p.dw = p.dw[:0]
}

// Len returns the number of dwords.
func (p *Program) Len() int {
	return len(p.dw)
}

// Cap returns the capacity in dwords.
func (p *Program) Cap() int {
	return p.capacity
}

// Dwords returns the program content.
func (p *Program) Dwords() []uint32 {
	return p.dw
}

// CopyTo writes the program into dst as little-endian dwords and returns the
// number of bytes written. Dwords that do not fit are dropped.
func (p *Program) CopyTo(dst []byte) int {
	n := 0
	for _, v := range p.dw {
		if n+4 > len(dst) {
			break
		}

		binary.LittleEndian.PutUint32(dst[n:], v)
		n += 4
	}

	return n
}
