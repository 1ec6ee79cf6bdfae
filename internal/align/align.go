package align

// Alignment utilities for the allocation core.
// Every user-visible allocation must start on a caller-chosen power-of-two
// boundary, and the allocation header must fit in the padding before it.

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Up returns n aligned up to the next multiple of align.
// align must be a power of two.
//
// Example:
//
//	Up(1, 8)  = 8
//	Up(8, 8)  = 8
//	Up(9, 8)  = 16
func Up(n, align int) int {
	mask := align - 1
	return (n + mask) & ^mask
}

// PaddingFor returns the number of bytes that must be added to addr so the
// result is aligned to align. align must be a power of two.
func PaddingFor(addr uintptr, align int) int {
	a := uintptr(align)
	return int(((addr + a - 1) & ^(a - 1)) - addr)
}

// PaddingWithHeader returns the padding that must be added to addr so the
// result is aligned to align AND at least headerSize bytes of padding sit
// before the aligned address. The minimal aligning padding is computed
// first; if the header doesn't fit, the padding advances by whole
// alignment increments until it does. This handles alignment being
// smaller than, equal to, or larger than the header size.
func PaddingWithHeader(addr uintptr, align, headerSize int) int {
	padding := PaddingFor(addr, align)
	if padding < headerSize {
		need := headerSize - padding
		if need%align != 0 {
			padding += align * (1 + need/align)
		} else {
			padding += align * (need / align)
		}
	}
	return padding
}
