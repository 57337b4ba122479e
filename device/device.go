// Package device describes the GPU driver surface that the command submission
// engine drives. The kernel driver itself is an external collaborator; this
// package only names its handles, flags, and operations.
package device

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
	"time"
)

// EngineClass identifies a hardware IP block that owns one or more queues.
type EngineClass int

// The engine classes that can receive command submissions.
const (
	EngineGFX EngineClass = iota
	EngineCompute
	EngineDMA
	EngineUVD
	EngineVCE
	EngineUVDEnc
	EngineVCNDec
	EngineVCNEnc
	EngineVCNJPEG
	EngineVPE
	NumEngineClasses
)

var engineNames = [...]string{
	EngineGFX:     "gfx",
	EngineCompute: "compute",
	EngineDMA:     "dma",
	EngineUVD:     "uvd",
	EngineVCE:     "vce",
	EngineUVDEnc:  "uvd_enc",
	EngineVCNDec:  "vcn_dec",
	EngineVCNEnc:  "vcn_enc",
	EngineVCNJPEG: "vcn_jpeg",
	EngineVPE:     "vpe",
}

func (e EngineClass) String() string {
	if e < 0 || e >= NumEngineClasses {
		return fmt.Sprintf("engine(%d)", int(e))
	}

	return engineNames[e]
}

// ParseEngineClass converts a name such as "gfx" or "sdma" into an
// EngineClass.
func ParseEngineClass(s string) (EngineClass, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "sdma" {
		return EngineDMA, nil
	}

	for i, n := range engineNames {
		if n == name {
			return EngineClass(i), nil
		}
	}

	return 0, fmt.Errorf("unknown engine class %q", s)
}

// EngineMask is a set of engine classes.
type EngineMask uint32

// MaskOf builds a mask that contains the given engine classes.
func MaskOf(engines ...EngineClass) EngineMask {
	var m EngineMask
	for _, e := range engines {
		m |= 1 << uint(e)
	}

	return m
}

// Has tells if the engine class is in the mask.
func (m EngineMask) Has(e EngineClass) bool {
	return m&(1<<uint(e)) != 0
}

// Engines lists the engine classes in the mask in ascending order.
func (m EngineMask) Engines() []EngineClass {
	engines := make([]EngineClass, 0, bits.OnesCount32(uint32(m)))
	for e := EngineClass(0); e < NumEngineClasses; e++ {
		if m.Has(e) {
			engines = append(engines, e)
		}
	}

	return engines
}

// ParseEngineMask parses a comma separated list of engine class names.
func ParseEngineMask(s string) (EngineMask, error) {
	var m EngineMask

	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}

		e, err := ParseEngineClass(part)
		if err != nil {
			return 0, err
		}

		m |= MaskOf(e)
	}

	return m, nil
}

func (m EngineMask) String() string {
	names := make([]string, 0)
	for _, e := range m.Engines() {
		names = append(names, e.String())
	}

	return strings.Join(names, ",")
}

// Protocol selects how a queue receives work and reports completion.
type Protocol int

const (
	// ProtocolKernel submits through the kernel driver, which tracks
	// completion with a fence keyed by a sequence number.
	ProtocolKernel Protocol = iota

	// ProtocolUser writes packets into a user-mode queue and tracks
	// completion with a timeline synchronization object.
	ProtocolUser
)

func (p Protocol) String() string {
	switch p {
	case ProtocolKernel:
		return "kernel"
	case ProtocolUser:
		return "user"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// ParseProtocol converts "kernel" or "user" into a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kernel", "kernel-mode", "kq":
		return ProtocolKernel, nil
	case "user", "user-mode", "uq", "userq":
		return ProtocolUser, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

// Handles returned by the driver. The zero value never names a live object.
type (
	BufferHandle  uint32
	VAHandle      uint32
	ContextHandle uint32
	BOListHandle  uint32
	SyncobjHandle uint32
	QueueID       uint32
)

// Domain is the memory heap a buffer object is placed in.
type Domain uint32

// Memory domains.
const (
	DomainCPU      Domain = 0x1
	DomainGTT      Domain = 0x2
	DomainVRAM     Domain = 0x4
	DomainDoorbell Domain = 0x80
)

// AllocFlags alter how a buffer object is placed.
type AllocFlags uint64

// Allocation flags.
const (
	FlagCPUAccessRequired AllocFlags = 1 << 0
	FlagNoCPUAccess       AllocFlags = 1 << 1
	FlagCPUGTTUSWC        AllocFlags = 1 << 2
	FlagEncrypted         AllocFlags = 1 << 10
)

// MappingFlags alter how a buffer object is mapped into the GPU address
// space.
type MappingFlags uint64

// Mapping flags.
const (
	PageReadable   MappingFlags = 1 << 1
	PageWriteable  MappingFlags = 1 << 2
	PageExecutable MappingFlags = 1 << 3
	MTypeUC        MappingFlags = 4 << 5

	PageRWX = PageReadable | PageWriteable | PageExecutable
)

// IBFlags alter how an indirect buffer is executed.
type IBFlags uint32

// IBFlagSecure marks an indirect buffer that may touch encrypted memory.
const IBFlagSecure IBFlags = 1 << 2

// TimeoutInfinite waits without a deadline.
const TimeoutInfinite = time.Duration(math.MaxInt64)

// HWIPInfo is what the driver reports about one engine class.
type HWIPInfo struct {
	// AvailableRings is the bitmask of kernel-mode rings.
	AvailableRings uint32

	// NumUserQSlots is the number of user-mode queue slots.
	NumUserQSlots uint32

	IBStartAlignment uint32
	IBSizeAlignment  uint32
}

// LaneMask returns the bitmask of lanes usable by the protocol. User-mode
// slots are reported as a count and converted to a contiguous mask.
func (i HWIPInfo) LaneMask(p Protocol) uint32 {
	if p == ProtocolUser {
		if i.NumUserQSlots == 0 {
			return 0
		}

		if i.NumUserQSlots >= 32 {
			return math.MaxUint32
		}

		return (1 << i.NumUserQSlots) - 1
	}

	return i.AvailableRings
}

// AllocRequest describes a buffer object allocation.
type AllocRequest struct {
	Size      uint64
	Alignment uint64
	Domain    Domain
	Flags     AllocFlags
}

// TimelinePoint names a point on a timeline synchronization object. A zero
// Syncobj means no synchronization is requested.
type TimelinePoint struct {
	Syncobj SyncobjHandle
	Point   uint64
}

// Valid tells if the point refers to a synchronization object.
func (p TimelinePoint) Valid() bool {
	return p.Syncobj != 0
}

// IBInfo describes one indirect buffer in a submission.
type IBInfo struct {
	GPUAddr    uint64
	SizeDwords uint32
	Flags      IBFlags
}

// Request is the command-buffer descriptor handed to the kernel driver.
type Request struct {
	Engine    EngineClass
	Instance  uint32
	Ring      uint32
	Resources BOListHandle
	IBs       []IBInfo
}

// Fence identifies a submission for completion queries.
type Fence struct {
	Engine   EngineClass
	Instance uint32
	Ring     uint32
	Context  ContextHandle
	SeqNo    uint64
}

// UserQueueRequest describes the memory backing a user-mode queue.
type UserQueueRequest struct {
	Engine         EngineClass
	Doorbell       BufferHandle
	DoorbellOffset uint32
	QueueAddr      uint64
	QueueSize      uint64
	RptrAddr       uint64
	WptrAddr       uint64
}
