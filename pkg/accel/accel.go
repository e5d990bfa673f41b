// Package accel abstracts the massively parallel device the encoder runs on.
//
// The encoder core never talks to a concrete accelerator API. It sees a
// Device with three capabilities: allocate device-resident memory, dispatch a
// kernel over a grid of independent work items, and barrier on completion.
// The in-process CPU realization in this package is sufficient for tests and
// for hosts without an accelerator; a real GPU backend would implement the
// same interface.
package accel

// Kernel is one unit of device work, invoked once per grid index. Kernels
// running under the same Dispatch must not share mutable state except through
// disjoint regions of device buffers.
type Kernel func(i int) error

// Device owns accelerator-resident memory and executes pipeline stages.
type Device interface {
	// Name identifies the backend, e.g. "cpu".
	Name() string

	// Malloc allocates size bytes of device-resident memory. The returned
	// buffer is owned by the caller and must be freed via Buffer.Free.
	Malloc(size int) (Buffer, error)

	// MallocWords allocates device-resident memory for n 16-bit words.
	MallocWords(n int) (Buffer, error)

	// Dispatch queues kernel over grid indices [0, grid). Work is not
	// guaranteed complete until Barrier returns. Dispatching while a prior
	// dispatch has not been barriered is not supported.
	Dispatch(grid int, k Kernel)

	// Barrier blocks until all dispatched work has completed and reports the
	// first kernel error, if any.
	Barrier() error

	// InUse reports the number of device bytes currently allocated. Used by
	// callers to verify release-on-destroy.
	InUse() int64

	// Close releases the device. Buffers must be freed before Close.
	Close() error
}

// Buffer is a region of device-resident memory. On the CPU backend the views
// alias host memory; on a real accelerator they would be staging views and
// Upload/Download would move bytes across the bus.
type Buffer interface {
	// Bytes returns the byte view of a Malloc'd buffer.
	Bytes() []byte

	// Words returns the 16-bit word view of a MallocWords'd buffer.
	Words() []int16

	// Size returns the allocation size in device bytes.
	Size() int

	// Upload copies host bytes into the buffer starting at offset 0.
	Upload(host []byte) error

	// Download copies the buffer into host, which must be at least Size
	// bytes for byte buffers.
	Download(host []byte) error

	// Free releases the allocation back to the device. Free is idempotent.
	Free()
}
