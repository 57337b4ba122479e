// Package ring holds the per-lane state bundle that the submission engine
// drives: identity, opcode program, resource list, synchronization state, and
// scratch buffers.
package ring

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/gpucs/bo"
	"github.com/sarchlab/gpucs/device"
)

// Ops is the operation table of one engine class. It fills the opcode
// program of a context and verifies buffer contents afterwards.
type Ops interface {
	Engine() device.EngineClass

	// Pattern is the byte copy rounds fill their source with.
	Pattern() byte

	WriteLinear(c *Context) error
	WriteLinearAtomic(c *Context) error
	ConstFill(c *Context) error
	CopyLinear(c *Context) error
	Nop(c *Context, count int) error

	// Compare checks that WriteLength/div dwords of the destination hold
	// the value the write and fill programs store.
	Compare(c *Context, div int) bool

	// ComparePattern checks that WriteLength/div dwords of the destination
	// hold the pattern byte.
	ComparePattern(c *Context, div int) bool

	CreateUserQueue(c *Context) error
	DestroyUserQueue(c *Context) error

	// SubmitUserMode publishes the indirect buffer at ibAddr on the
	// context's user queue and returns once the queue has processed it.
	SubmitUserMode(c *Context, ibAddr uint64) error
}

// Completion carries the raw result codes of one submission round.
type Completion struct {
	Protocol  device.Protocol
	SeqNo     uint64
	SubmitErr error
	WaitErr   error
	Expired   bool

	// Tolerated is set when a non-success code was accepted.
	Tolerated bool
}

// Code is the round's result code: the submission code for kernel-mode
// rounds, success for user-mode rounds.
func (c Completion) Code() error {
	if c.Protocol == device.ProtocolUser {
		return nil
	}

	return c.SubmitErr
}

// Submitter delivers an indirect buffer for a context. One submitter is bound
// to a context when its queue is created.
type Submitter interface {
	Protocol() device.Protocol
	Submit(c *Context, ib *bo.Buffer, expectFailure bool) (Completion, error)
}

// ErrCodes keeps the codes of the last round for the caller to inspect.
type ErrCodes struct {
	Submit error
	Wait   error
}

// UserQueue is the memory backing a user-mode queue.
type UserQueue struct {
	ID       device.QueueID
	Ring     *bo.Buffer
	Wptr     *bo.Buffer
	Rptr     *bo.Buffer
	Doorbell *bo.Buffer

	// State holds the engine-specific save areas of the queue.
	State []*bo.Buffer
}

// Context is the state of one hardware queue lane under test.
type Context struct {
	name string

	Engine   device.EngineClass
	Lane     int
	Protocol device.Protocol
	Secure   bool
	HWIP     device.HWIPInfo

	// WriteLength is the data length of the round. Rounds choose the unit;
	// the div argument of the compare functions normalizes it to dwords.
	WriteLength uint32

	Program   *Program
	Resources ResourceList
	Ops       Ops

	// Kernel-mode queue.
	ContextHandle device.ContextHandle

	// User-mode queue.
	Syncobj   device.SyncobjHandle
	UserQueue *UserQueue
	point     atomic.Uint64

	// Scratch buffers of the current round.
	Src *bo.Buffer
	Dst *bo.Buffer

	// OriginValue remembers a destination dword between atomic rounds.
	OriginValue uint32

	submitter Submitter
	state     atomic.Int32

	// roundLock guards the round ID and the codes, which the monitor reads
	// while rounds run.
	roundLock sync.Mutex
	round     string
	codes     ErrCodes
}

// Options configure a new Context.
type Options struct {
	Secure        bool
	WriteLength   uint32
	ProgramDwords int
}

// New creates an uninitialized context for one lane.
func New(
	engine device.EngineClass,
	lane int,
	protocol device.Protocol,
	ops Ops,
	opt Options,
) *Context {
	if opt.ProgramDwords <= 0 {
		opt.ProgramDwords = 256
	}

	return &Context{
		name:        fmt.Sprintf("%s[%d].%s", engine, lane, protocol),
		Engine:      engine,
		Lane:        lane,
		Protocol:    protocol,
		Secure:      opt.Secure,
		WriteLength: opt.WriteLength,
		Program:     NewProgram(opt.ProgramDwords),
		Ops:         ops,
	}
}

// Name returns a name such as "dma[1].kernel".
func (c *Context) Name() string {
	return c.name
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	return State(c.state.Load())
}

// Transition moves the context to a new state.
func (c *Context) Transition(to State) error {
	from := c.State()
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s: %s -> %s",
			ErrIllegalTransition, c.name, from, to)
	}

	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: %s: concurrent transition from %s",
			ErrIllegalTransition, c.name, from)
	}

	return nil
}

// MustTransition is Transition for callers that treat an illegal
// transition as a programming error.
func (c *Context) MustTransition(to State) {
	if err := c.Transition(to); err != nil {
		log.Panic(err)
	}
}

// Bind attaches the submitter selected for this context's protocol.
func (c *Context) Bind(s Submitter) {
	if s.Protocol() != c.Protocol {
		log.Panicf("%s: cannot bind a %s submitter", c.name, s.Protocol())
	}

	c.submitter = s
}

// Submitter returns the bound submitter.
func (c *Context) Submitter() Submitter {
	return c.submitter
}

// BeginRound records the ID of the submission in flight and clears the codes
// of the previous round.
func (c *Context) BeginRound(id string) {
	c.roundLock.Lock()
	defer c.roundLock.Unlock()

	c.round = id
	c.codes = ErrCodes{}
}

// EndRound clears the round ID. The codes stay for inspection.
func (c *Context) EndRound() {
	c.roundLock.Lock()
	defer c.roundLock.Unlock()

	c.round = ""
}

// Round returns the ID of the submission in flight, or an empty string.
func (c *Context) Round() string {
	c.roundLock.Lock()
	defer c.roundLock.Unlock()

	return c.round
}

// SetSubmitCode records the submission code of the current round.
func (c *Context) SetSubmitCode(err error) {
	c.roundLock.Lock()
	defer c.roundLock.Unlock()

	c.codes.Submit = err
}

// SetWaitCode records the wait code of the current round.
func (c *Context) SetWaitCode(err error) {
	c.roundLock.Lock()
	defer c.roundLock.Unlock()

	c.codes.Wait = err
}

// Codes returns the codes of the last round.
func (c *Context) Codes() ErrCodes {
	c.roundLock.Lock()
	defer c.roundLock.Unlock()

	return c.codes
}

// Point returns the current value of the timeline counter.
func (c *Context) Point() uint64 {
	return c.point.Load()
}

// NextPoint advances the timeline counter of user-mode contexts. Kernel-mode
// contexts have no timeline and report false.
func (c *Context) NextPoint() (device.TimelinePoint, bool) {
	if c.Protocol != device.ProtocolUser || c.Syncobj == 0 {
		return device.TimelinePoint{}, false
	}

	return device.TimelinePoint{
		Syncobj: c.Syncobj,
		Point:   c.point.Add(1),
	}, true
}

// Status is a point-in-time view of a context. It is a copy, so it can be
// read and serialized while rounds run.
type Status struct {
	Name        string `json:"name"`
	Engine      string `json:"engine"`
	Lane        int    `json:"lane"`
	Protocol    string `json:"protocol"`
	Secure      bool   `json:"secure"`
	WriteLength uint32 `json:"write_length"`
	State       string `json:"state"`
	Point       uint64 `json:"point"`
	Round       string `json:"round,omitempty"`
	SubmitCode  string `json:"submit_code"`
	WaitCode    string `json:"wait_code"`
}

// Snapshot returns the status of the context.
func (c *Context) Snapshot() Status {
	c.roundLock.Lock()
	round, codes := c.round, c.codes
	c.roundLock.Unlock()

	return Status{
		Name:        c.name,
		Engine:      c.Engine.String(),
		Lane:        c.Lane,
		Protocol:    c.Protocol.String(),
		Secure:      c.Secure,
		WriteLength: c.WriteLength,
		State:       c.State().String(),
		Point:       c.Point(),
		Round:       round,
		SubmitCode:  device.CodeName(codes.Submit),
		WaitCode:    device.CodeName(codes.Wait),
	}
}
