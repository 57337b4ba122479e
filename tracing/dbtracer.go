package tracing

import (
	"sync"

	"github.com/sarchlab/gpucs/datarecording"
)

// Tables the DBTracer writes.
const (
	TaskTable = "trace"
	StepTable = "trace_steps"
)

// TaskEntry is one row of the task table.
type TaskEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
}

// StepEntry is one row of the step table.
type StepEntry struct {
	TaskID string
	Time   float64
	What   string
}

// DBTracer is a tracer that stores finished tasks through a DataRecorder.
type DBTracer struct {
	lock       sync.Mutex
	timeTeller TimeTeller
	backend    datarecording.DataRecorder

	tracingTasks map[string]Task
}

// NewDBTracer creates a new DBTracer.
func NewDBTracer(
	timeTeller TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable(TaskTable, TaskEntry{})
	dataRecorder.CreateTable(StepTable, StepEntry{})

	return &DBTracer{
		timeTeller:   timeTeller,
		backend:      dataRecorder,
		tracingTasks: make(map[string]Task),
	}
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	startingTaskMustBeValid(task)

	t.lock.Lock()
	defer t.lock.Unlock()

	task.StartTime = t.timeTeller.CurrentTime()
	t.tracingTasks[task.ID] = task
}

func startingTaskMustBeValid(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	if task.Kind == "" {
		panic("task kind must be set")
	}

	if task.What == "" {
		panic("task what must be set")
	}

	if task.Location == "" {
		panic("task location must be set")
	}
}

// StepTask records a step of a task that has started.
func (t *DBTracer) StepTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	original, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	now := t.timeTeller.CurrentTime()
	for _, s := range task.Steps {
		original.Steps = append(original.Steps, TaskStep{Time: now, What: s.What})
	}

	t.tracingTasks[task.ID] = original
}

// EndTask marks the end of a task and writes it.
func (t *DBTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	original, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	original.EndTime = t.timeTeller.CurrentTime()
	delete(t.tracingTasks, task.ID)

	t.write(original)
}

func (t *DBTracer) write(task Task) {
	t.backend.InsertData(TaskTable, TaskEntry{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Location,
		StartTime: task.StartTime,
		EndTime:   task.EndTime,
	})

	for _, s := range task.Steps {
		t.backend.InsertData(StepTable, StepEntry{
			TaskID: task.ID,
			Time:   s.Time,
			What:   s.What,
		})
	}
}

// Terminate writes the tasks that never ended with the current time as their
// end time and flushes the backend.
func (t *DBTracer) Terminate() {
	t.lock.Lock()
	defer t.lock.Unlock()

	now := t.timeTeller.CurrentTime()
	for id, task := range t.tracingTasks {
		task.EndTime = now
		t.write(task)
		delete(t.tracingTasks, id)
	}

	t.backend.Flush()
}

// Pending returns the number of tasks that have started and not ended.
func (t *DBTracer) Pending() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.tracingTasks)
}
