package memory

import (
	"errors"
	"fmt"
	"unsafe"
)

// Heap verification. Any error from these functions signals corruption the
// process cannot recover from: the caller should report it and stop.
// Verification is read-only, so running it twice with no intervening
// allocation activity yields the same result.

// ErrUseAfterFree is wrapped by verification errors for headers whose
// storage carries the freed-memory fill pattern.
var ErrUseAfterFree = errors.New("block was already freed")

// ErrHeapCorrupted is wrapped by all other verification failures.
var ErrHeapCorrupted = errors.New("heap corrupted")

// VerifyBlock checks the header and guard regions of a single allocation.
// Returns nil in builds with debug instrumentation compiled out.
func VerifyBlock(b []byte) error {
	if !debugMemory || len(b) == 0 {
		return nil
	}
	h := headerOf(b)
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return verifyHeaderLocked(h)
}

// VerifyHeap walks every live allocation and checks header integrity,
// alignment sanity and guard regions. Returns the first corruption found.
func VerifyHeap() error {
	if !debugMemory {
		return nil
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for r := reg.head; r != nil; r = r.next {
		if err := verifyHeaderLocked(r.hdr); err != nil {
			return fmt.Errorf("allocation id %d (%s): %w", r.hdr.id, callSite(r.file, r.line), err)
		}
	}
	return nil
}

// verifyHeaderLocked checks one header. The registry lock must be held:
// another goroutine freeing a different block concurrently is legal, and
// the lock is what keeps this read consistent with those unlinks.
func verifyHeaderLocked(h *header) error {
	if allDead(h.bytes()) {
		return fmt.Errorf("%w: header carries the freed-memory pattern", ErrUseAfterFree)
	}

	a := int(h.alignment)
	switch {
	case a == 0:
		return fmt.Errorf("%w: alignment is zero", ErrHeapCorrupted)
	case a&(a-1) != 0:
		return fmt.Errorf("%w: alignment %d is not a power of two", ErrHeapCorrupted, a)
	case a < pointerSize:
		return fmt.Errorf("%w: alignment %d below pointer size", ErrHeapCorrupted, a)
	}

	if h.self != uintptr(h.userPointer()) {
		return fmt.Errorf("%w: header self-reference does not match its address", ErrHeapCorrupted)
	}
	if h.self&uintptr(a-1) != 0 {
		return fmt.Errorf("%w: user pointer is not aligned to %d", ErrHeapCorrupted, a)
	}
	if !validAllocatorID(h.allocID) {
		return fmt.Errorf("%w: unknown backing allocator id %d", ErrHeapCorrupted, h.allocID)
	}
	if h.sum != h.checksum() {
		return fmt.Errorf("%w: header checksum mismatch", ErrHeapCorrupted)
	}

	for _, g := range h.guard {
		if g != guardFill {
			return fmt.Errorf("%w: guard bytes before the block were modified (write before the allocation)", ErrHeapCorrupted)
		}
	}
	for _, g := range trailingGuard(h) {
		if g != guardFill {
			return fmt.Errorf("%w: guard bytes after the block were modified (write past the allocation)", ErrHeapCorrupted)
		}
	}
	return nil
}

// mustVerifyHeader is the orchestrator's inline assertion on the realloc
// and free paths. Corruption here is fatal, not recoverable.
func mustVerifyHeader(h *header) {
	if !debugMemory {
		return
	}
	reg.mu.Lock()
	err := verifyHeaderLocked(h)
	reg.mu.Unlock()
	if err != nil {
		panic("memory: " + err.Error())
	}
}

func allDead(b []byte) bool {
	for _, v := range b {
		if v != deadFill {
			return false
		}
	}
	return true
}

// LiveAllocations returns the number of live tracked allocations. Always
// zero with debug instrumentation compiled out.
func LiveAllocations() int {
	if !debugMemory {
		return 0
	}
	return regLen()
}

// blockBase is a test helper hook: the base address of a user block.
func blockBase(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
