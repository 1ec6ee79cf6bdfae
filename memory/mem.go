package memory

import (
	"errors"
	"fmt"
	"unsafe"
)

// Allocation entry points. Everything else in a program built on this
// package (containers, strings, formatting) allocates through these.
//
// Failure policy, in order of severity: invariant violations (corrupted
// headers, misaligned pointers, a Resize that moved the block) panic,
// because continuing risks silent memory corruption. Backing-allocator
// exhaustion also panics here: the contract says an Allocate error is
// unrecoverable and choosing a backing allocator with an appropriate
// failure policy is the caller's job. Usage errors (freeing a foreign
// pointer) are caught by debug verification and undefined otherwise.

// Alloc returns a block of size bytes at the default alignment from the
// current allocator.
func Alloc(size int) []byte {
	return AllocFrom(nil, size, 0, 0)
}

// AllocAligned returns a block of size bytes aligned to alignment (a power
// of two, coerced up to pointer size) from the current allocator.
func AllocAligned(size, alignment int) []byte {
	return AllocFrom(nil, size, alignment, 0)
}

// AllocOpts is Alloc with explicit alignment and options.
func AllocOpts(size, alignment int, opts Options) []byte {
	return AllocFrom(nil, size, alignment, opts)
}

// AllocFrom allocates from a specific backing allocator, overriding the
// current-allocator scope. A nil allocator falls back to the scope.
func AllocFrom(a Allocator, size, alignment int, opts Options) []byte {
	if size <= 0 {
		panic("memory: allocation size must be positive")
	}
	if a == nil {
		a = Current()
	}
	opts |= defaultOptions()
	alignment = resolveAlignment(alignment)

	var file string
	var line int
	if debugMemory || TraceAllocations() {
		file, line = callerSite()
	}
	if TraceAllocations() && opts&NoTrace == 0 {
		traceOp("allocate", int64(size), file, line)
	}

	required, ok := requiredSize(int64(size), alignment)
	if !ok {
		panic("memory: allocation request exceeds MaxAllocationRequest")
	}

	id := allocatorID(a)
	block, extra, err := a.Allocate(required)
	if err != nil {
		panic(fmt.Sprintf("memory: backing allocator failed to allocate %d bytes: %v", required, err))
	}
	if int64(len(block)) < required {
		panic("memory: backing allocator returned a short block")
	}
	opts |= extra

	user := encode(block, int64(size), alignment, id, opts)
	if debugMemory {
		regLink(&record{raw: block, hdr: headerOf(user), file: file, line: line})
	}

	statAllocs.Inc()
	statLiveBlocks.Inc()
	statLiveBytes.Add(float64(size))
	verifyAfterOp()
	return user
}

// Realloc resizes a block previously returned by this package, preserving
// its contents up to the smaller of the two sizes. The block's own backing
// allocator is used regardless of the current scope. Returns the same
// block when the backing allocator could resize in place.
func Realloc(b []byte, newSize int) []byte {
	return ReallocOpts(b, newSize, 0)
}

// ReallocOpts is Realloc with options.
func ReallocOpts(b []byte, newSize int, opts Options) []byte {
	if b == nil {
		return nil
	}
	if len(b) == 0 {
		panic("memory: cannot reallocate an empty block")
	}
	if newSize <= 0 {
		panic("memory: reallocation size must be positive")
	}
	opts |= defaultOptions()

	h := headerOf(b)
	mustVerifyHeader(h)

	oldSize := h.size
	if oldSize == int64(newSize) {
		return b
	}

	var file string
	var line int
	if debugMemory || TraceAllocations() {
		file, line = callerSite()
	}
	if TraceAllocations() && opts&NoTrace == 0 {
		traceOp("reallocate", int64(newSize), file, line)
	}

	alignment := int(h.alignment)
	oldRequired, _ := requiredSize(oldSize, alignment)
	newRequired, ok := requiredSize(int64(newSize), alignment)
	if !ok {
		panic("memory: reallocation request exceeds MaxAllocationRequest")
	}

	a := allocatorByID(h.allocID)
	raw := rawOf(h, oldRequired)

	resized, err := a.Resize(raw, newRequired)
	if err != nil {
		panic(fmt.Sprintf("memory: backing allocator failed to resize: %v", err))
	}

	var user []byte
	if resized != nil {
		if unsafe.SliceData(resized) != unsafe.SliceData(raw) {
			panic("memory: backing allocator moved the block during Resize")
		}
		user = reallocInPlace(h, int64(newSize), file, line)
		statResizeInPlace.Inc()
	} else {
		user = reallocMove(a, h, raw, oldRequired, newRequired, int64(newSize), opts, file, line)
		statResizeMoved.Inc()
	}

	if int64(newSize) > oldSize {
		grown := user[oldSize:]
		if opts&ZeroInit != 0 {
			clear(grown)
		} else if debugMemory {
			fill(grown, cleanFill)
		}
	}

	statLiveBytes.Add(float64(int64(newSize) - oldSize))
	verifyAfterOp()
	return user
}

// reallocInPlace updates the header of a block the backing allocator grew
// or shrank without moving.
func reallocInPlace(h *header, newSize int64, file string, line int) []byte {
	oldSize := h.size
	userPtr := h.userPointer()

	if debugMemory && newSize < oldSize {
		// Shrinking: the abandoned tail gets the dead pattern so stale
		// reads of it are obvious.
		tail := unsafe.Slice((*byte)(unsafe.Add(userPtr, newSize)), oldSize-newSize)
		fill(tail, deadFill)
	}

	// Verification and leak reporting read headers and records under the
	// registry lock; mutate them under it too. No backing call happens here.
	if debugMemory {
		reg.mu.Lock()
	}
	h.size = newSize
	if debugMemory {
		h.rid++
	}
	h.seal()
	if debugMemory {
		fill(trailingGuard(h), guardFill)
		if r, ok := reg.index.Load(h.self); ok {
			r.file, r.line = file, line
		}
		reg.mu.Unlock()
	}
	return unsafe.Slice((*byte)(userPtr), newSize)
}

// reallocMove allocates a new block, transplants the header bookkeeping
// (same id, bumped rid, preserved owner and leak flag), copies the
// contents, and frees the old block through the same backing allocator.
func reallocMove(a Allocator, h *header, raw []byte, oldRequired, newRequired, newSize int64, opts Options, file string, line int) []byte {
	block, extra, err := a.Allocate(newRequired)
	if err != nil {
		panic(fmt.Sprintf("memory: backing allocator failed to allocate %d bytes: %v", newRequired, err))
	}
	if int64(len(block)) < newRequired {
		panic("memory: backing allocator returned a short block")
	}
	opts |= extra

	newUser := encode(block, newSize, int(h.alignment), h.allocID, opts)
	nh := headerOf(newUser)
	nh.owner = h.owner
	if debugMemory {
		nh.id = h.id
		nh.rid = h.rid + 1
		if h.leakExempt() {
			nh.flags |= flagLeakExempt
		}
	}
	nh.seal()

	old := unsafe.Slice((*byte)(h.userPointer()), h.size)
	copy(newUser, old[:min(h.size, newSize)])

	if debugMemory {
		regSwap(h.self, &record{raw: block, hdr: nh, file: file, line: line})
		fill(raw, deadFill)
	}

	if err := a.Free(raw); err != nil {
		panic(fmt.Sprintf("memory: backing allocator failed to free during reallocation: %v", err))
	}
	return newUser
}

// Free releases a block previously returned by this package through the
// backing allocator recorded in its header. Freeing nil or an empty block
// is a no-op.
func Free(b []byte) {
	FreeOpts(b, 0)
}

// FreeOpts is Free with options.
func FreeOpts(b []byte, opts Options) {
	if len(b) == 0 {
		return
	}
	_ = opts | defaultOptions()

	h := headerOf(b)
	mustVerifyHeader(h)

	size := h.size
	required, _ := requiredSize(size, int(h.alignment))
	a := allocatorByID(h.allocID)
	raw := rawOf(h, required)

	if debugMemory {
		regUnlink(h.self)
		fill(raw, deadFill)
	}

	if err := a.Free(raw); err != nil {
		panic(fmt.Sprintf("memory: backing allocator failed to free: %v", err))
	}

	statFrees.Inc()
	statLiveBlocks.Dec()
	statLiveBytes.Sub(float64(size))
	verifyAfterOp()
}

// FreeAll bulk-releases everything a backing allocator owns. Relying on it
// for an allocator that doesn't support bulk free is a programmer error
// and panics.
func FreeAll(a Allocator) {
	FreeAllOpts(a, 0)
}

// FreeAllOpts is FreeAll with options.
func FreeAllOpts(a Allocator, opts Options) {
	if a == nil {
		a = Current()
	}
	_ = opts | defaultOptions()

	if debugMemory {
		// Unlink before the backing call: the registry must not hold
		// headers whose pages are about to be recycled.
		regDropAllocator(allocatorID(a))
	}

	err := a.FreeAll()
	switch {
	case errors.Is(err, ErrFreeAllUnsupported):
		panic("memory: FreeAll called on an allocator that does not support it")
	case err != nil:
		panic(fmt.Sprintf("memory: backing allocator failed to free all: %v", err))
	}
	verifyAfterOp()
}

// Owner returns the opaque owner token recorded on a block, zero if unset.
// Owner tokens let container types detect aliasing; they never imply
// memory ownership by themselves.
func Owner(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return headerOf(b).owner
}

// SetOwner records an opaque owner token on a block. The token survives
// reallocation, including moves.
func SetOwner(b []byte, owner uintptr) {
	if len(b) == 0 {
		return
	}
	h := headerOf(b)
	if debugMemory {
		reg.mu.Lock()
		defer reg.mu.Unlock()
	}
	h.owner = owner
	h.seal()
}

// SizeOf returns the user-requested size recorded in a block's header.
// For a block returned by this package this equals len(b).
func SizeOf(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	return int(headerOf(b).size)
}
