package utils

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetBuffer(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"zero size", 0},
		{"very small size", 1},
		{"small buffer within pool capacity", 1024},
		{"exact pool default size", 4096},
		{"larger than pool capacity", 8192},
		{"larger than pooled limit", maxPooledBuffer + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := GetBuffer(tt.size)
			require.NotNil(t, buf)
			require.Len(t, buf, tt.size)
			require.GreaterOrEqual(t, cap(buf), tt.size)
			ReleaseBuffer(buf)
		})
	}
}

func TestReleaseBuffer_Reuse(t *testing.T) {
	buf := GetBuffer(2048)
	for i := range buf {
		buf[i] = byte(i)
	}
	ReleaseBuffer(buf)

	// Pooled buffers come back at the requested length, not zeroed.
	again := GetBuffer(512)
	require.Len(t, again, 512)
	ReleaseBuffer(again)
}

func TestBufferPoolConcurrency(t *testing.T) {
	const goroutines = 10
	const iterations = 100

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				size := 1024 + (i % 4096)
				buf := GetBuffer(size)
				if len(buf) != size {
					errs <- fmt.Errorf("got length %d, want %d", len(buf), size)
					return
				}
				for j := range buf {
					buf[j] = byte(j)
				}
				ReleaseBuffer(buf)
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func BenchmarkGetBuffer(b *testing.B) {
	for _, size := range []int{8, 64, 512, 4096} {
		b.Run(fmt.Sprint(size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				ReleaseBuffer(GetBuffer(size))
			}
		})
	}
}
