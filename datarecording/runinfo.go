package datarecording

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/host"
)

// RunInfoTable is the table run properties are written to.
const RunInfoTable = "run_info"

// RunProperty is one row of the run info table.
type RunProperty struct {
	Property string
	Value    string
}

const timeLayout = "2006-01-02 15:04:05.000000000"

// RunRecorder records when and where a run happened.
type RunRecorder struct {
	recorder DataRecorder
	entries  []RunProperty
}

// NewRunRecorder creates the run info table.
func NewRunRecorder(recorder DataRecorder) *RunRecorder {
	recorder.CreateTable(RunInfoTable, RunProperty{})

	return &RunRecorder{recorder: recorder}
}

// Set adds a property.
func (e *RunRecorder) Set(property, value string) {
	e.entries = append(e.entries, RunProperty{property, value})
}

// Start records the start time, the command line and the host.
func (e *RunRecorder) Start() {
	e.Set("Start Time", time.Now().Format(timeLayout))
	e.Set("Command", strings.Join(os.Args, " "))

	if wd, err := os.Getwd(); err == nil {
		e.Set("Working Directory", wd)
	}

	e.Set("Go", runtime.Version())

	if info, err := host.Info(); err == nil {
		e.Set("Host", info.Hostname)
		e.Set("Kernel", info.KernelVersion)
		e.Set("Platform", info.Platform+" "+info.PlatformVersion)
	}
}

// End writes the properties along with the end time.
func (e *RunRecorder) End() {
	e.Set("End Time", time.Now().Format(timeLayout))

	for _, entry := range e.entries {
		e.recorder.InsertData(RunInfoTable, entry)
	}

	e.entries = nil

	e.recorder.Flush()
}
