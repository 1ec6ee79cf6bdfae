package memory

import "unsafe"

// Limits enforced by the allocation core.

const (
	// MaxAllocationRequest is the largest backing-allocator request the
	// orchestrator will attempt, header and alignment slack included.
	MaxAllocationRequest = 0x7FFFFFFFFFFFFFE0

	// MaxAlignment is the largest supported alignment. The header stores
	// alignment in 16 bits, and nothing reasonable wants more than a page.
	MaxAlignment = 8192

	// pointerSize is the minimum alignment of every user pointer.
	pointerSize = int(unsafe.Sizeof(uintptr(0)))
)
