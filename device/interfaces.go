package device

import "time"

// Prober reports the capabilities of each engine class.
type Prober interface {
	QueryHWIP(engine EngineClass) (HWIPInfo, error)
}

// Memory allocates buffer objects and maps them for the GPU and the CPU.
type Memory interface {
	AllocBuffer(req AllocRequest) (BufferHandle, error)
	FreeBuffer(bo BufferHandle) error

	AllocVARange(size, alignment uint64) (uint64, VAHandle, error)
	FreeVARange(va VAHandle) error

	// MapVA maps the buffer at gpuAddr. When sync is valid, the point is
	// signaled once the mapping is usable by the GPU.
	MapVA(
		bo BufferHandle,
		gpuAddr, size uint64,
		flags MappingFlags,
		sync TimelinePoint,
	) error
	UnmapVA(bo BufferHandle, gpuAddr, size uint64, sync TimelinePoint) error

	// CPUMap returns a CPU view that aliases the buffer contents.
	CPUMap(bo BufferHandle) ([]byte, error)
	CPUUnmap(bo BufferHandle) error
}

// Scheduler is the kernel-mode submission interface.
type Scheduler interface {
	CreateContext() (ContextHandle, error)
	FreeContext(ctx ContextHandle) error

	CreateBOList(bos []BufferHandle) (BOListHandle, error)
	DestroyBOList(list BOListHandle) error

	// Submit queues the request and returns its sequence number.
	Submit(ctx ContextHandle, req *Request) (uint64, error)

	// QueryFence blocks until the fence signals or the timeout passes.
	// Expired reports whether the fence has signaled.
	QueryFence(fence Fence, timeout time.Duration) (expired bool, err error)
}

// Timeline manages synchronization objects.
type Timeline interface {
	CreateSyncobj() (SyncobjHandle, error)
	DestroySyncobj(h SyncobjHandle) error

	// TimelineWait blocks until the point has been submitted and signaled.
	TimelineWait(h SyncobjHandle, point uint64, timeout time.Duration) error

	// SyncobjWait blocks until every fence attached to the object signals.
	SyncobjWait(h SyncobjHandle, timeout time.Duration) error
}

// UserQueues manages user-mode queues.
type UserQueues interface {
	CreateUserQueue(req UserQueueRequest) (QueueID, error)
	FreeUserQueue(q QueueID) error

	// SignalUserQueue asks the queue to process its ring up to the
	// published write pointer and attaches a fence to the syncobj.
	SignalUserQueue(q QueueID, syncobj SyncobjHandle) error
}

// Device is the complete driver surface.
type Device interface {
	Prober
	Memory
	Scheduler
	Timeline
	UserQueues
}
