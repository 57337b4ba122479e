package harness

import (
	"sync"
	"time"

	"github.com/sarchlab/gpucs/ring"
)

// Progress counts what a runner has done so far.
type Progress struct {
	lock       sync.Mutex
	start      time.Time
	rounds     uint64
	failed     uint64
	checks     uint64
	mismatches uint64
	skips      uint64
	last       string
}

// ProgressStatus is a snapshot of Progress.
type ProgressStatus struct {
	Rounds     uint64  `json:"rounds"`
	Failed     uint64  `json:"failed"`
	Verified   uint64  `json:"verified"`
	Mismatches uint64  `json:"mismatches"`
	Skipped    uint64  `json:"skipped"`
	LastLane   string  `json:"last_lane"`
	Elapsed    float64 `json:"elapsed_seconds"`
}

// NewProgress creates progress counters that start now.
func NewProgress() *Progress {
	return &Progress{start: time.Now()}
}

func (p *Progress) round(c *ring.Context, err error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.rounds++
	p.last = c.Name()

	if err != nil {
		p.failed++
	}
}

func (p *Progress) skip(err error) {
	if !Skipped(err) {
		return
	}

	p.lock.Lock()
	p.skips++
	p.lock.Unlock()
}

func (p *Progress) verified() {
	p.lock.Lock()
	p.checks++
	p.lock.Unlock()
}

func (p *Progress) mismatch() {
	p.lock.Lock()
	p.mismatches++
	p.lock.Unlock()
}

// Status returns the current counters.
func (p *Progress) Status() ProgressStatus {
	p.lock.Lock()
	defer p.lock.Unlock()

	return ProgressStatus{
		Rounds:     p.rounds,
		Failed:     p.failed,
		Verified:   p.checks,
		Mismatches: p.mismatches,
		Skipped:    p.skips,
		LastLane:   p.last,
		Elapsed:    time.Since(p.start).Seconds(),
	}
}
