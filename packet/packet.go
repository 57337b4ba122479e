// Package packet defines the opcode stream understood by the engines under
// test. Every packet starts with a type-3 header that carries the opcode and
// the number of payload dwords that follow.
package packet

import (
	"errors"
	"fmt"
)

// Opcode identifies what a packet does.
type Opcode uint8

// Opcodes.
const (
	OpNOP            Opcode = 0x10
	OpFill           Opcode = 0x20
	OpCopy           Opcode = 0x21
	OpWriteData      Opcode = 0x37
	OpIndirectBuffer Opcode = 0x3f
	OpAtomicCmpSwap  Opcode = 0x1e
	OpFenceSignal    Opcode = 0x49
)

func (o Opcode) String() string {
	switch o {
	case OpNOP:
		return "NOP"
	case OpFill:
		return "FILL"
	case OpCopy:
		return "COPY"
	case OpWriteData:
		return "WRITE_DATA"
	case OpIndirectBuffer:
		return "INDIRECT_BUFFER"
	case OpAtomicCmpSwap:
		return "ATOMIC_CMPSWAP"
	case OpFenceSignal:
		return "FENCE_SIGNAL"
	default:
		return fmt.Sprintf("OP_%#02x", uint8(o))
	}
}

const (
	typeShift  = 30
	type3      = 3
	countShift = 16
	countMask  = 0x3fff
	opShift    = 8
	opMask     = 0xff

	// MaxPayload is the largest payload a single header can describe.
	MaxPayload = countMask
)

// IB control word fields.
const (
	IBSizeMask           = 0xfffff
	IBValidCompute       = 1 << 23
	IBInheritVMIDCompute = 1 << 30
	IBInheritVMIDGFX     = 1 << 31
)

// Errors reported when decoding a stream.
var (
	ErrBadHeader = errors.New("packet: bad header")
	ErrTruncated = errors.New("packet: truncated payload")
)

// Header encodes a type-3 packet header.
func Header(op Opcode, payload int) uint32 {
	if payload < 0 || payload > MaxPayload {
		panic(fmt.Sprintf("packet: payload %d out of range", payload))
	}

	return type3<<typeShift |
		uint32(payload)<<countShift |
		uint32(op)<<opShift
}

// ParseHeader splits a header into opcode and payload length.
func ParseHeader(h uint32) (Opcode, int, error) {
	if h>>typeShift != type3 {
		return 0, 0, fmt.Errorf("%w: %#08x", ErrBadHeader, h)
	}

	return Opcode((h >> opShift) & opMask), int((h >> countShift) & countMask), nil
}

// Lo and Hi split a 64-bit address.
func Lo(v uint64) uint32 { return uint32(v) }

// Hi returns the upper 32 bits.
func Hi(v uint64) uint32 { return uint32(v >> 32) }

// Addr joins two dwords into an address.
func Addr(lo, hi uint32) uint64 { return uint64(hi)<<32 | uint64(lo) }

// NOP encodes a packet that does nothing.
func NOP() []uint32 {
	return []uint32{Header(OpNOP, 0)}
}

// WriteData encodes a packet that writes data dwords starting at addr.
func WriteData(addr uint64, data []uint32) []uint32 {
	p := make([]uint32, 0, 3+len(data))
	p = append(p, Header(OpWriteData, 2+len(data)), Lo(addr), Hi(addr))
	p = append(p, data...)

	return p
}

// Fill encodes a packet that stores value into every dword of
// [addr, addr+byteCount).
func Fill(addr uint64, value uint32, byteCount uint32) []uint32 {
	return []uint32{
		Header(OpFill, 4),
		Lo(addr), Hi(addr),
		value,
		byteCount,
	}
}

// Copy encodes a packet that copies byteCount bytes from src to dst.
func Copy(src, dst uint64, byteCount uint32) []uint32 {
	return []uint32{
		Header(OpCopy, 5),
		Lo(src), Hi(src),
		Lo(dst), Hi(dst),
		byteCount,
	}
}

// AtomicCmpSwap encodes a packet that replaces the dword at addr with swap
// when it equals compare.
func AtomicCmpSwap(addr uint64, compare, swap uint32) []uint32 {
	return []uint32{
		Header(OpAtomicCmpSwap, 4),
		Lo(addr), Hi(addr),
		compare,
		swap,
	}
}

// IndirectBuffer encodes a packet that executes the buffer at addr. The low
// bits of control hold its size in dwords.
func IndirectBuffer(addr uint64, control uint32) []uint32 {
	return []uint32{
		Header(OpIndirectBuffer, 3),
		Lo(addr), Hi(addr),
		control,
	}
}

// FenceSignal encodes the packet that ends a user queue submission.
func FenceSignal() []uint32 {
	return []uint32{Header(OpFenceSignal, 1), 0}
}

// Packet is one decoded packet.
type Packet struct {
	Op      Opcode
	Payload []uint32
}

// Decode splits a dword stream into packets.
func Decode(dw []uint32) ([]Packet, error) {
	var packets []Packet

	for i := 0; i < len(dw); {
		op, n, err := ParseHeader(dw[i])
		if err != nil {
			return packets, fmt.Errorf("dword %d: %w", i, err)
		}

		if i+1+n > len(dw) {
			return packets, fmt.Errorf("dword %d (%s): %w", i, op, ErrTruncated)
		}

		packets = append(packets, Packet{Op: op, Payload: dw[i+1 : i+1+n]})
		i += 1 + n
	}

	return packets, nil
}
