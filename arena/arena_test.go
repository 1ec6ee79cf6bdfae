package arena_test

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/memkit/memkit/arena"
	"github.com/memkit/memkit/memory"
)

func base(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func TestAllocateBumps(t *testing.T) {
	a := arena.NewWithSize(8 << 10)

	b1, opts, err := a.Allocate(100)
	require.NoError(t, err)
	require.Len(t, b1, 100)
	require.NotZero(t, opts&memory.LeakExempt, "arena blocks must be leak-exempt")

	b2, _, err := a.Allocate(50)
	require.NoError(t, err)
	require.Equal(t, base(b1)+100, base(b2), "consecutive blocks must be adjacent")

	require.Equal(t, int64(150), a.TotalUsed())
	require.Equal(t, 1, a.Pages())
}

func TestLazyBasePage(t *testing.T) {
	a := arena.New()
	require.Equal(t, int64(0), a.Reserved())

	_, _, err := a.Allocate(1000)
	require.NoError(t, err)
	require.GreaterOrEqual(t, a.Reserved(), int64(2000), "base page must cover at least double the first request")
}

func TestOverflowThenResetAbsorbsPages(t *testing.T) {
	a := arena.NewWithSize(8 << 10)

	// Push past the base page until a couple of overflow pages exist.
	count := 0
	for a.OverflowPages() < 2 {
		_, _, err := a.Allocate(1000)
		require.NoError(t, err)
		count++
	}
	require.Greater(t, a.Pages(), 1)
	combined := a.Reserved()

	require.NoError(t, a.FreeAll())
	require.Equal(t, 1, a.Pages())
	require.Equal(t, combined, a.Reserved(), "reset must keep the combined capacity")
	require.Equal(t, int64(0), a.TotalUsed())

	// The same workload now fits without a single overflow page.
	for i := 0; i < count; i++ {
		_, _, err := a.Allocate(1000)
		require.NoError(t, err)
	}
	require.Zero(t, a.OverflowPages())
	require.Equal(t, 1, a.Pages())
}

func TestResizeAlwaysMoves(t *testing.T) {
	a := arena.NewWithSize(8 << 10)
	b, _, err := a.Allocate(64)
	require.NoError(t, err)

	resized, err := a.Resize(b, 128)
	require.NoError(t, err)
	require.Nil(t, resized, "arena must defer resizing to the orchestrator")
}

func TestFreeIsNoop(t *testing.T) {
	a := arena.NewWithSize(8 << 10)
	b, _, err := a.Allocate(64)
	require.NoError(t, err)
	require.NoError(t, a.Free(b))
	require.Equal(t, int64(64), a.TotalUsed())
}

func TestTooLargeRequest(t *testing.T) {
	a := arena.New()
	_, _, err := a.Allocate(memory.MaxAllocationRequest)
	require.ErrorIs(t, err, arena.ErrTooLarge)
}

func TestTooLargeRequestOnWarmedArena(t *testing.T) {
	a := arena.NewWithSize(8 << 10)
	_, _, err := a.Allocate(100)
	require.NoError(t, err)

	// A request near int64 max must fail cleanly even when the page walk
	// starts from a partially used page.
	_, _, err = a.Allocate(math.MaxInt64 - 50)
	require.ErrorIs(t, err, arena.ErrTooLarge)

	// The arena stays usable after rejecting it.
	b, _, err := a.Allocate(50)
	require.NoError(t, err)
	require.Len(t, b, 50)
	require.Equal(t, int64(150), a.TotalUsed())
}

func TestMarkRewind(t *testing.T) {
	a := arena.NewWithSize(8 << 10)
	_, _, err := a.Allocate(100)
	require.NoError(t, err)

	m := a.Mark()
	b2, _, _ := a.Allocate(200)
	a.Allocate(300)
	require.Equal(t, int64(600), a.TotalUsed())

	a.Rewind(m)
	require.Equal(t, int64(100), a.TotalUsed())

	// The next allocation recycles the rewound bytes.
	b4, _, _ := a.Allocate(10)
	require.Equal(t, base(b2), base(b4))
}

func TestRewindAcrossPages(t *testing.T) {
	a := arena.NewWithSize(8 << 10)
	m := a.Mark()

	// Force an overflow page, then rewind everything.
	for i := 0; i < 20; i++ {
		_, _, err := a.Allocate(1000)
		require.NoError(t, err)
	}
	require.Greater(t, a.Pages(), 1)

	a.Rewind(m)
	require.Equal(t, int64(0), a.TotalUsed())
	require.Greater(t, a.Pages(), 1, "rewind keeps reserved pages")

	b, _, err := a.Allocate(10)
	require.NoError(t, err)
	require.Len(t, b, 10)
}

// The per-frame pattern: scope the arena in, allocate freely, reset in bulk.
func TestFrameLifecycle(t *testing.T) {
	a := arena.NewWithSize(16 << 10)
	restore := memory.Use(a)
	defer restore()

	for frame := 0; frame < 3; frame++ {
		var blocks [][]byte
		for i := 0; i < 10; i++ {
			b := memory.Alloc(64 + i)
			for j := range b {
				b[j] = byte(i)
			}
			blocks = append(blocks, b)
		}
		for i, b := range blocks {
			for _, c := range b {
				require.Equal(t, byte(i), c)
			}
		}
		require.NoError(t, memory.VerifyHeap())

		memory.FreeAll(a)
		require.Equal(t, int64(0), a.TotalUsed())
	}

	require.NoError(t, memory.VerifyHeap())
	require.Zero(t, memory.ReportLeaks())
}

func TestReallocThroughCore(t *testing.T) {
	a := arena.NewWithSize(8 << 10)

	b := memory.AllocFrom(a, 32, 0, 0)
	for i := range b {
		b[i] = byte(i)
	}

	b = memory.Realloc(b, 1000)
	require.Len(t, b, 1000)
	for i := 0; i < 32; i++ {
		require.Equal(t, byte(i), b[i])
	}

	// The stale bytes stay reserved until the next reset.
	require.GreaterOrEqual(t, a.TotalUsed(), int64(1032))
	memory.FreeAll(a)
}
