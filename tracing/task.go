// Package tracing turns the hook events of the submission engine into tasks
// and stores them.
package tracing

// A TaskStep represents a milestone in the processing of task
type TaskStep struct {
	Time float64 `json:"time"`
	What string  `json:"what"`
}

// A Task is a round, or a submit or wait step of a round.
type Task struct {
	ID        string     `json:"id"`
	ParentID  string     `json:"parent_id"`
	Kind      string     `json:"kind"`
	What      string     `json:"what"`
	Location  string     `json:"location"`
	StartTime float64    `json:"start_time"`
	EndTime   float64    `json:"end_time"`
	Steps     []TaskStep `json:"steps"`
	Detail    any        `json:"-"`
}

// Task kinds.
const (
	KindRound  = "round"
	KindSubmit = "submit"
	KindWait   = "wait"
)
