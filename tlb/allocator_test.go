package tlb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"umd/arch"
)

func TestAllocatePrefersSmallestFittingClass(t *testing.T) {
	impl := &arch.Impl{
		TlbSizeClasses: []arch.TlbSizeClass{
			{Size: 1 << 20, Count: 2},
			{Size: 16 << 20, Count: 1},
		},
	}
	a := &Allocator{impl: impl, free: make([][]*Window, len(impl.TlbSizeClasses))}
	for classIdx, class := range impl.TlbSizeClasses {
		for i := 0; i < class.Count; i++ {
			a.free[classIdx] = append(a.free[classIdx], &Window{a: a, sizeClass: classIdx, size: class.Size})
		}
	}

	w, err := a.allocateNoKernel(1024)
	require.NoError(t, err)
	require.Equal(t, 0, w.sizeClass)
}

func TestAllocateOutOfTlbsWhenExhausted(t *testing.T) {
	impl := &arch.Impl{TlbSizeClasses: []arch.TlbSizeClass{{Size: 1 << 20, Count: 0}}}
	a := &Allocator{impl: impl, free: make([][]*Window, 1)}

	_, err := a.allocateNoKernel(1024)
	require.Error(t, err)
}
