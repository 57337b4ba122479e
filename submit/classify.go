package submit

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/ring"
)

// Step names the device call a code came from.
type Step string

// Steps of a submission round.
const (
	StepBOList Step = "bo_list"
	StepSubmit Step = "submit"
	StepWait   Step = "wait"
)

// ErrHardFailure matches every HardFailure.
var ErrHardFailure = errors.New("hard submission failure")

// HardFailure is a non-tolerated code returned by the device in a round that
// was expected to succeed.
type HardFailure struct {
	Engine   device.EngineClass
	Lane     int
	Protocol device.Protocol
	Step     Step
	Code     error
}

func newHardFailure(c *ring.Context, step Step, code error) *HardFailure {
	return &HardFailure{
		Engine:   c.Engine,
		Lane:     c.Lane,
		Protocol: c.Protocol,
		Step:     step,
		Code:     code,
	}
}

func (f *HardFailure) Error() string {
	return fmt.Sprintf("%s lane %d (%s): %s returned %s",
		f.Engine, f.Lane, f.Protocol, f.Step, device.CodeName(f.Code))
}

// Is makes errors.Is(err, ErrHardFailure) hold.
func (f *HardFailure) Is(target error) bool {
	return target == ErrHardFailure
}

func (f *HardFailure) Unwrap() error {
	return f.Code
}

// Codes accepted in place of success. Hardware poison is accepted when
// submitting but not when waiting.
var (
	submitTolerated = []syscall.Errno{
		device.ECANCELED, device.ENODATA, device.EHWPOISON,
	}
	waitTolerated = []syscall.Errno{
		device.ECANCELED, device.ENODATA,
	}
)

// ToleratedOnSubmit tells if a non-success submission code is accepted.
func ToleratedOnSubmit(err error) bool {
	return tolerated(err, submitTolerated)
}

// ToleratedOnWait tells if a non-success fence wait code is accepted.
func ToleratedOnWait(err error) bool {
	return tolerated(err, waitTolerated)
}

func tolerated(err error, codes []syscall.Errno) bool {
	if err == nil {
		return false
	}

	code := device.Code(err)
	for _, c := range codes {
		if code == c {
			return true
		}
	}

	return false
}
