package accel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPU_DispatchCoversGrid(t *testing.T) {
	dev := NewCPU(CPUOptions{Workers: 4})
	defer dev.Close()

	const grid = 1000
	var hits [grid]atomic.Int32
	dev.Dispatch(grid, func(i int) error {
		hits[i].Add(1)
		return nil
	})
	require.NoError(t, dev.Barrier())

	for i := range hits {
		assert.Equal(t, int32(1), hits[i].Load(), "index %d", i)
	}
}

func TestCPU_BarrierReportsKernelError(t *testing.T) {
	dev := NewCPU(CPUOptions{Workers: 2})
	defer dev.Close()

	boom := errors.New("boom")
	dev.Dispatch(100, func(i int) error {
		if i == 42 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, dev.Barrier(), boom)
}

func TestCPU_AllocationAccounting(t *testing.T) {
	dev := NewCPU(CPUOptions{})
	defer dev.Close()

	b1, err := dev.Malloc(1024)
	require.NoError(t, err)
	b2, err := dev.MallocWords(256)
	require.NoError(t, err)
	assert.Equal(t, int64(1024+512), dev.InUse())

	b1.Free()
	b1.Free() // idempotent
	b2.Free()
	assert.Equal(t, int64(0), dev.InUse())
}

func TestCPU_MemoryLimit(t *testing.T) {
	dev := NewCPU(CPUOptions{MemoryLimit: 100})
	defer dev.Close()

	b, err := dev.Malloc(64)
	require.NoError(t, err)
	_, err = dev.Malloc(64)
	require.ErrorIs(t, err, ErrOutOfMemory)

	b.Free()
	b, err = dev.Malloc(64)
	require.NoError(t, err)
	b.Free()
}

func TestCPU_UploadDownload(t *testing.T) {
	dev := NewCPU(CPUOptions{})
	defer dev.Close()

	b, err := dev.Malloc(4)
	require.NoError(t, err)
	defer b.Free()

	require.NoError(t, b.Upload([]byte{1, 2, 3, 4}))
	host := make([]byte, 4)
	require.NoError(t, b.Download(host))
	assert.Equal(t, []byte{1, 2, 3, 4}, host)

	require.Error(t, b.Upload(make([]byte, 5)))
}
