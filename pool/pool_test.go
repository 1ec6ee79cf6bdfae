package pool_test

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/memkit/memkit/memory"
	"github.com/memkit/memkit/pool"
)

func base(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func TestAllocateAndExhaust(t *testing.T) {
	p := pool.New(128, 4)
	require.Equal(t, int64(128), p.SlotSize())
	require.Equal(t, 4, p.FreeSlots())

	var blocks [][]byte
	for i := 0; i < 4; i++ {
		b, _, err := p.Allocate(64)
		require.NoError(t, err)
		require.Len(t, b, 128, "a slot is handed out whole")
		blocks = append(blocks, b)
	}
	require.Zero(t, p.FreeSlots())

	_, _, err := p.Allocate(64)
	require.ErrorIs(t, err, pool.ErrExhausted)

	// Slots are adjacent and ordered on a fresh pool.
	for i := 1; i < 4; i++ {
		require.Equal(t, base(blocks[0])+uintptr(i)*128, base(blocks[i]))
	}
}

func TestFreeRecyclesLIFO(t *testing.T) {
	p := pool.New(128, 2)
	b1, _, _ := p.Allocate(10)
	b2, _, _ := p.Allocate(10)

	require.NoError(t, p.Free(b1))
	b3, _, err := p.Allocate(10)
	require.NoError(t, err)
	require.Equal(t, base(b1), base(b3), "the most recently freed slot is reused first")

	require.NoError(t, p.Free(b2))
	require.NoError(t, p.Free(b3))
	require.Equal(t, 2, p.FreeSlots())
}

func TestOversizeRequest(t *testing.T) {
	p := pool.New(128, 2)
	_, _, err := p.Allocate(129)
	require.ErrorIs(t, err, pool.ErrOversize)
}

func TestForeignBlockRejected(t *testing.T) {
	p := pool.New(128, 2)
	require.Error(t, p.Free(make([]byte, 128)))

	b, _, _ := p.Allocate(10)
	// A pointer inside the slab but off a slot boundary is also foreign.
	require.Error(t, p.Free(b[8:]))
	require.NoError(t, p.Free(b))
}

func TestResizeWithinSlot(t *testing.T) {
	p := pool.New(128, 2)
	b, _, _ := p.Allocate(10)

	r, err := p.Resize(b, 128)
	require.NoError(t, err)
	require.NotNil(t, r)

	r, err = p.Resize(b, 129)
	require.NoError(t, err)
	require.Nil(t, r, "growth past the slot must defer to the orchestrator")
}

func TestFreeAllRestacks(t *testing.T) {
	p := pool.New(128, 4)
	for i := 0; i < 3; i++ {
		_, _, err := p.Allocate(10)
		require.NoError(t, err)
	}
	require.Equal(t, 1, p.FreeSlots())

	require.NoError(t, p.FreeAll())
	require.Equal(t, 4, p.FreeSlots())
}

func TestSlotSizeRounding(t *testing.T) {
	p := pool.New(100, 1)
	require.Equal(t, int64(104), p.SlotSize())
}

func TestRejectsBadConstruction(t *testing.T) {
	require.Panics(t, func() { pool.New(0, 4) })
	require.Panics(t, func() { pool.New(128, 0) })

	// Slab sizing must fail loudly, not overflow into a runtime error.
	require.PanicsWithValue(t, "pool: slab size overflows",
		func() { pool.New(math.MaxInt64/2, 4) })
	require.PanicsWithValue(t, "pool: slab size overflows",
		func() { pool.New(math.MaxInt64-3, 1) })
}

// Through the allocation core, slots must absorb the header and guards.
func TestThroughCore(t *testing.T) {
	p := pool.New(256, 8)

	b := memory.AllocFrom(p, 64, 0, 0)
	require.Len(t, b, 64)
	for i := range b {
		b[i] = byte(i)
	}
	require.Equal(t, 7, p.FreeSlots())

	// Fits the slot: resized in place.
	b = memory.Realloc(b, 100)
	require.Equal(t, 7, p.FreeSlots())
	for i := 0; i < 64; i++ {
		require.Equal(t, byte(i), b[i])
	}

	// Does not fit: moved to a fresh slot, old slot returned.
	old := base(b)
	b = memory.Realloc(b, 200)
	require.NotEqual(t, old, base(b))
	require.Equal(t, 7, p.FreeSlots())

	memory.Free(b)
	require.Equal(t, 8, p.FreeSlots())
	require.NoError(t, memory.VerifyHeap())
}

func TestCoreFreeAll(t *testing.T) {
	p := pool.New(256, 8)
	for i := 0; i < 4; i++ {
		memory.AllocFrom(p, 32, 0, 0)
	}
	require.Equal(t, 4, p.FreeSlots())

	memory.FreeAll(p)
	require.Equal(t, 8, p.FreeSlots())
	require.NoError(t, memory.VerifyHeap())
	require.Zero(t, memory.ReportLeaks())
}
