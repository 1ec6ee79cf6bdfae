package memory

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestHeaderLayout(t *testing.T) {
	require.Zero(t, headerSize%pointerSize)
	require.Equal(t, unsafe.Sizeof(header{}),
		unsafe.Offsetof(header{}.guard)+guardSize,
		"guard must be flush with the user region")
}

func TestEncodeProducesAlignedBlocks(t *testing.T) {
	id := allocatorID(Malloc)

	for _, alignment := range []int{8, 16, 64, 256, 1024} {
		size := int64(33)
		required, ok := requiredSize(size, alignment)
		require.True(t, ok)

		raw := make([]byte, required)
		user := encode(raw, size, alignment, id, 0)

		require.Len(t, user, int(size))
		require.Zero(t, blockBase(user)%uintptr(alignment))

		h := headerOf(user)
		require.Equal(t, size, h.size)
		require.Equal(t, uint16(alignment), h.alignment)
		require.Equal(t, id, h.allocID)
		require.Equal(t, blockBase(user), h.self)
		require.Equal(t, h.checksum(), h.sum)

		// The header must sit inside the raw block, after the recorded
		// padding, and rawOf must recover the exact backing slice.
		back := rawOf(h, required)
		require.Equal(t, blockBase(raw), blockBase(back))
		require.Len(t, back, int(required))

		if debugMemory {
			reg.mu.Lock()
			err := verifyHeaderLocked(h)
			reg.mu.Unlock()
			require.NoError(t, err)

			for i, c := range user {
				require.Equal(t, byte(cleanFill), c, "byte %d not clean-filled", i)
			}
		}
	}
}

func TestEncodeZeroInit(t *testing.T) {
	id := allocatorID(Malloc)
	required, _ := requiredSize(64, 8)
	raw := make([]byte, required)
	fill(raw, 0xAB)

	user := encode(raw, 64, 8, id, ZeroInit)
	for i, c := range user {
		require.Zero(t, c, "byte %d not zeroed", i)
	}
}

func TestEncodeLeakExempt(t *testing.T) {
	id := allocatorID(Malloc)
	required, _ := requiredSize(16, 8)
	raw := make([]byte, required)

	user := encode(raw, 16, 8, id, LeakExempt)
	require.True(t, headerOf(user).leakExempt())
}

func TestChecksumCoversScalarFields(t *testing.T) {
	id := allocatorID(Malloc)
	required, _ := requiredSize(16, 8)
	raw := make([]byte, required)
	h := headerOf(encode(raw, 16, 8, id, 0))

	h.owner = 0x1234
	require.NotEqual(t, h.checksum(), h.sum, "mutation must invalidate the seal")
	h.seal()
	require.Equal(t, h.checksum(), h.sum)
}

func TestRequiredSizeBounds(t *testing.T) {
	r, ok := requiredSize(1, 8)
	require.True(t, ok)
	require.Greater(t, r, int64(headerSize))

	_, ok = requiredSize(MaxAllocationRequest, 8)
	require.False(t, ok)

	_, ok = requiredSize(MaxAllocationRequest-int64(headerSize), MaxAlignment)
	require.False(t, ok)
}

func TestGoHeapClassIndex(t *testing.T) {
	require.Equal(t, 0, classIndex(1))
	require.Equal(t, 0, classIndex(64))
	require.Equal(t, 1, classIndex(65))
	require.Equal(t, 1, classIndex(128))
	require.Equal(t, maxClassBits-minClassBits, classIndex(maxPooled))
	require.Equal(t, -1, classIndex(maxPooled+1))
}

func TestGoHeapRecycles(t *testing.T) {
	h := NewGoHeap()

	b, _, err := h.Allocate(100)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(b), 100)

	// A granted block resizes in place only within its granted length.
	r, err := h.Resize(b, int64(len(b)))
	require.NoError(t, err)
	require.NotNil(t, r)
	r, err = h.Resize(b, int64(len(b))+1)
	require.NoError(t, err)
	require.Nil(t, r)

	require.NoError(t, h.Free(b))
	require.ErrorIs(t, h.FreeAll(), ErrFreeAllUnsupported)
}
