package tracing

import "time"

// A Tracer can collect task traces
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}

// TimeTeller tells the current time in seconds.
type TimeTeller interface {
	CurrentTime() float64
}

// WallClock tells the seconds passed since it was created.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a WallClock that starts now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// CurrentTime returns the seconds since the clock was created.
func (c *WallClock) CurrentTime() float64 {
	return time.Since(c.start).Seconds()
}
