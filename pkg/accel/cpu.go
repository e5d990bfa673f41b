package accel

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrOutOfMemory is returned by Malloc when the device memory limit would be
// exceeded.
var ErrOutOfMemory = errors.New("accel: out of device memory")

// ErrClosed is returned when operating on a closed device.
var ErrClosed = errors.New("accel: device closed")

// CPUOptions configure the in-process device.
type CPUOptions struct {
	// Workers is the number of OS-thread-backed workers used per Dispatch.
	// Zero means runtime.NumCPU().
	Workers int

	// MemoryLimit caps the total bytes Malloc may hand out. Zero means
	// unlimited. Mainly used by tests to exercise allocation failure.
	MemoryLimit int64
}

// CPU is the in-process Device: kernels run on a pool of goroutines claiming
// grid indices off a shared atomic counter. "Device memory" is ordinary heap
// memory with explicit allocation accounting so that tests can verify the
// encoder releases everything it owns.
type CPU struct {
	workers int
	limit   int64

	mu     sync.Mutex
	inUse  int64
	closed bool

	wg      sync.WaitGroup
	pending atomic.Value // stores error of the in-flight dispatch
}

var _ Device = (*CPU)(nil)

// NewCPU creates an in-process device.
func NewCPU(opts CPUOptions) *CPU {
	w := opts.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	return &CPU{workers: w, limit: opts.MemoryLimit}
}

func (d *CPU) Name() string { return "cpu" }

func (d *CPU) Malloc(size int) (Buffer, error) {
	if err := d.reserve(int64(size)); err != nil {
		return nil, err
	}
	return &cpuBuffer{dev: d, bytes: make([]byte, size), size: size}, nil
}

func (d *CPU) MallocWords(n int) (Buffer, error) {
	size := 2 * n
	if err := d.reserve(int64(size)); err != nil {
		return nil, err
	}
	return &cpuBuffer{dev: d, words: make([]int16, n), size: size}, nil
}

func (d *CPU) reserve(size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.limit > 0 && d.inUse+size > d.limit {
		return fmt.Errorf("%w: %d requested, %d of %d in use", ErrOutOfMemory, size, d.inUse, d.limit)
	}
	d.inUse += size
	return nil
}

func (d *CPU) release(size int64) {
	d.mu.Lock()
	d.inUse -= size
	d.mu.Unlock()
}

// Dispatch fans kernel out over [0, grid). Indices are claimed with an atomic
// counter so uneven work items stay balanced across workers.
func (d *CPU) Dispatch(grid int, k Kernel) {
	workers := d.workers
	if workers > grid {
		workers = grid
	}
	if workers < 1 {
		workers = 1
	}
	var next atomic.Int64
	var firstErr atomic.Value
	for w := 0; w < workers; w++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= grid {
					return
				}
				if err := k(i); err != nil {
					firstErr.CompareAndSwap(nil, err)
					return
				}
			}
		}()
	}
	d.pending.Store(&firstErr)
}

// Barrier waits for the in-flight dispatch and reports its first error.
func (d *CPU) Barrier() error {
	d.wg.Wait()
	v := d.pending.Load()
	if v == nil {
		return nil
	}
	if err, ok := v.(*atomic.Value).Load().(error); ok {
		return err
	}
	return nil
}

func (d *CPU) InUse() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inUse
}

func (d *CPU) Close() error {
	d.wg.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type cpuBuffer struct {
	dev   *CPU
	bytes []byte
	words []int16
	size  int
	freed atomic.Bool
}

func (b *cpuBuffer) Bytes() []byte  { return b.bytes }
func (b *cpuBuffer) Words() []int16 { return b.words }
func (b *cpuBuffer) Size() int      { return b.size }

func (b *cpuBuffer) Upload(host []byte) error {
	if b.bytes == nil {
		return errors.New("accel: upload to word buffer")
	}
	if len(host) > len(b.bytes) {
		return fmt.Errorf("accel: upload of %d bytes into %d-byte buffer", len(host), len(b.bytes))
	}
	copy(b.bytes, host)
	return nil
}

func (b *cpuBuffer) Download(host []byte) error {
	if b.bytes == nil {
		return errors.New("accel: download from word buffer")
	}
	if len(host) < len(b.bytes) {
		return fmt.Errorf("accel: download of %d-byte buffer into %d bytes", len(b.bytes), len(host))
	}
	copy(host, b.bytes)
	return nil
}

func (b *cpuBuffer) Free() {
	if b.freed.CompareAndSwap(false, true) {
		b.dev.release(int64(b.size))
	}
}
