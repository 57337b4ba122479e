package ring

import (
	"errors"
	"fmt"

	"github.com/sarchlab/gpucs/device"
)

// MaxResources is the number of caller buffers one submission may reference.
// The descriptor holds one more entry for the indirect buffer.
const MaxResources = 4

// ErrResourceOverflow is returned when a resource list is full.
var ErrResourceOverflow = errors.New("resource list would overflow")

// ResourceList is an ordered, fixed-capacity list of buffer handles that the
// next submission references.
type ResourceList struct {
	handles [MaxResources]device.BufferHandle
	n       int
}

// CanPush tells if another handle fits.
func (l *ResourceList) CanPush() bool {
	return l.n < MaxResources
}

// Push appends a handle.
func (l *ResourceList) Push(h device.BufferHandle) error {
	if !l.CanPush() {
		return fmt.Errorf("%w: capacity %d", ErrResourceOverflow, MaxResources)
	}

	l.handles[l.n] = h
	l.n++

	return nil
}

// Set replaces the list content.
func (l *ResourceList) Set(hs ...device.BufferHandle) error {
	if len(hs) > MaxResources {
		return fmt.Errorf("%w: %d handles, capacity %d",
			ErrResourceOverflow, len(hs), MaxResources)
	}

	l.Reset()
	for _, h := range hs {
		l.handles[l.n] = h
		l.n++
	}

	return nil
}

// Reset empties the list.
func (l *ResourceList) Reset() {
	l.handles = [MaxResources]device.BufferHandle{}
	l.n = 0
}

// Len returns the number of handles.
func (l *ResourceList) Len() int {
	return l.n
}

// Capacity returns the fixed capacity.
func (l *ResourceList) Capacity() int {
	return MaxResources
}

// Handles returns a copy of the handles.
func (l *ResourceList) Handles() []device.BufferHandle {
	out := make([]device.BufferHandle, l.n)
	copy(out, l.handles[:l.n])

	return out
}

// Snapshot returns the handles with ib appended as the last entry, as the
// descriptor expects.
func (l *ResourceList) Snapshot(ib device.BufferHandle) []device.BufferHandle {
	out := make([]device.BufferHandle, 0, l.n+1)
	out = append(out, l.handles[:l.n]...)

	return append(out, ib)
}
