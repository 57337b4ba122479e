package simdev

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/packet"
)

// executor runs a packet stream against the GPU address space.
type executor struct {
	d *Device

	// allowed limits the buffers a kernel-mode job may touch to its BO
	// list. It is nil for user queues.
	allowed map[device.BufferHandle]bool

	// secure jobs may touch encrypted buffers.
	secure bool

	// ibDepth is how many indirect buffer levels may still be entered.
	ibDepth int
}

// fault turns an access failure into the code the fence reports. Encryption
// violations keep EPERM; everything else cancels the job.
func fault(err error) error {
	if errors.Is(err, device.EPERM) {
		return err
	}

	return fmt.Errorf("%w: %w", device.ECANCELED, err)
}

func (e *executor) access(addr, n uint64) ([]byte, error) {
	mem, b, err := e.d.translate(addr, n)
	if err != nil {
		return nil, err
	}

	if e.allowed != nil && !e.allowed[b.handle] {
		return nil, fmt.Errorf("bo %d not in the job's list: %w",
			b.handle, device.EFAULT)
	}

	if b.flags&device.FlagEncrypted != 0 && !e.secure {
		return nil, fmt.Errorf("non-secure access to encrypted bo %d: %w",
			b.handle, device.EPERM)
	}

	return mem, nil
}

func (e *executor) readDwords(addr uint64, n uint32) ([]uint32, error) {
	mem, err := e.access(addr, uint64(n)*4)
	if err != nil {
		return nil, err
	}

	dw := make([]uint32, n)
	for i := range dw {
		dw[i] = binary.LittleEndian.Uint32(mem[i*4:])
	}

	return dw, nil
}

func (e *executor) runIB(addr uint64, sizeDwords uint32) error {
	dw, err := e.readDwords(addr, sizeDwords)
	if err != nil {
		return fault(err)
	}

	return e.runStream(dw)
}

func (e *executor) runStream(dw []uint32) error {
	packets, err := packet.Decode(dw)
	if err != nil {
		return fault(err)
	}

	for _, p := range packets {
		if err := e.exec(p); err != nil {
			return fault(fmt.Errorf("%s: %w", p.Op, err))
		}
	}

	return nil
}

func (e *executor) exec(p packet.Packet) error {
	switch p.Op {
	case packet.OpNOP, packet.OpFenceSignal:
		return nil
	case packet.OpWriteData:
		return e.writeData(p.Payload)
	case packet.OpFill:
		return e.fill(p.Payload)
	case packet.OpCopy:
		return e.copy(p.Payload)
	case packet.OpAtomicCmpSwap:
		return e.atomicCmpSwap(p.Payload)
	case packet.OpIndirectBuffer:
		return e.indirectBuffer(p.Payload)
	default:
		return fmt.Errorf("unsupported opcode: %w", device.EINVAL)
	}
}

func mustHave(payload []uint32, n int) error {
	if len(payload) < n {
		return fmt.Errorf("payload of %d dwords, need %d: %w",
			len(payload), n, device.EINVAL)
	}

	return nil
}

func (e *executor) writeData(payload []uint32) error {
	if err := mustHave(payload, 2); err != nil {
		return err
	}

	addr := packet.Addr(payload[0], payload[1])
	data := payload[2:]

	mem, err := e.access(addr, uint64(len(data))*4)
	if err != nil {
		return err
	}

	for i, v := range data {
		binary.LittleEndian.PutUint32(mem[i*4:], v)
	}

	return nil
}

func (e *executor) fill(payload []uint32) error {
	if err := mustHave(payload, 4); err != nil {
		return err
	}

	addr := packet.Addr(payload[0], payload[1])
	value := payload[2]
	count := uint64(payload[3])

	mem, err := e.access(addr, count)
	if err != nil {
		return err
	}

	var pattern [4]byte
	binary.LittleEndian.PutUint32(pattern[:], value)

	for i := range mem {
		mem[i] = pattern[i%4]
	}

	return nil
}

func (e *executor) copy(payload []uint32) error {
	if err := mustHave(payload, 5); err != nil {
		return err
	}

	src := packet.Addr(payload[0], payload[1])
	dst := packet.Addr(payload[2], payload[3])
	count := uint64(payload[4])

	from, err := e.access(src, count)
	if err != nil {
		return err
	}

	to, err := e.access(dst, count)
	if err != nil {
		return err
	}

	copy(to, from)

	return nil
}

func (e *executor) atomicCmpSwap(payload []uint32) error {
	if err := mustHave(payload, 4); err != nil {
		return err
	}

	addr := packet.Addr(payload[0], payload[1])

	mem, err := e.access(addr, 4)
	if err != nil {
		return err
	}

	if binary.LittleEndian.Uint32(mem) == payload[2] {
		binary.LittleEndian.PutUint32(mem, payload[3])
	}

	return nil
}

func (e *executor) indirectBuffer(payload []uint32) error {
	if err := mustHave(payload, 3); err != nil {
		return err
	}

	if e.ibDepth == 0 {
		return fmt.Errorf("indirect buffer nested too deep: %w", device.EINVAL)
	}

	addr := packet.Addr(payload[0], payload[1])
	size := payload[2] & packet.IBSizeMask

	nested := *e
	nested.ibDepth--

	dw, err := nested.readDwords(addr, size)
	if err != nil {
		return err
	}

	packets, err := packet.Decode(dw)
	if err != nil {
		return err
	}

	for _, p := range packets {
		if err := nested.exec(p); err != nil {
			return fmt.Errorf("%s: %w", p.Op, err)
		}
	}

	return nil
}
