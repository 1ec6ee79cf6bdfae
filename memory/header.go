package memory

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/memkit/memkit/internal/align"
	"github.com/memkit/memkit/internal/safemath"
)

// Debug fill patterns. The values are non-zero, constant, odd and atypical
// so that bugs assuming zeroed data, aligned pointers or valid addresses
// trip early, and so that reproductions are deterministic.
const (
	// guardSize bytes of guardFill sit immediately before and after every
	// user region; a changed byte there means an out-of-bounds write.
	guardSize = 4
	guardFill = 0xFD

	// deadFill overwrites a block when it is freed; reads of it mean
	// use-after-free.
	deadFill = 0xDD

	// cleanFill marks fresh memory allocated without ZeroInit; reads of it
	// mean use-before-initialize.
	cleanFill = 0xCD
)

// header precedes every user-visible allocation inside the raw block
// returned by the backing allocator:
//
//	raw ...[alignment padding][header][user bytes][trailing guard]
//	   ^ block start                  ^ aligned user pointer
//
// It holds only scalar fields so it can live inside pointerless memory; the
// backing allocator identity is an index into the process-wide allocator
// table rather than an interface value for the same reason.
type header struct {
	self  uintptr // address the user pointer must have; corruption check
	size  int64   // user-requested bytes, excludes header/padding/guards
	id    uint64  // process-unique allocation id (debug)
	owner uintptr // opaque owner token for container aliasing checks
	sum   uint64  // xxhash of the other scalar fields

	allocID   uint32 // identity-table index of the backing allocator, 1-based
	rid       uint32 // times this logical allocation has been resized (debug)
	alignment uint16
	padding   uint16 // bytes from the raw block start to this header
	flags     uint16

	_ [6]byte

	// guard is the leading no-man's-land: the last guardSize bytes before
	// the user pointer. Keep it the final field.
	guard [guardSize]byte
}

const flagLeakExempt uint16 = 1 << 0

var headerSize = int(unsafe.Sizeof(header{}))

func init() {
	// The codec relies on the guard field ending exactly at the user
	// pointer and on the header staying pointer-aligned.
	if unsafe.Offsetof(header{}.guard)+guardSize != unsafe.Sizeof(header{}) {
		panic("memory: header guard field is not flush with the user region")
	}
	if headerSize%pointerSize != 0 {
		panic("memory: header size is not pointer-aligned")
	}
}

// allocCounter issues process-unique allocation ids.
var allocCounter atomic.Uint64

// checksum hashes the scalar header fields. sum and guard are excluded:
// guard integrity is checked byte-wise, and sum is the result.
func (h *header) checksum() uint64 {
	var b [46]byte
	binary.LittleEndian.PutUint64(b[0:], uint64(h.self))
	binary.LittleEndian.PutUint64(b[8:], uint64(h.size))
	binary.LittleEndian.PutUint64(b[16:], h.id)
	binary.LittleEndian.PutUint64(b[24:], uint64(h.owner))
	binary.LittleEndian.PutUint32(b[32:], h.allocID)
	binary.LittleEndian.PutUint32(b[36:], h.rid)
	binary.LittleEndian.PutUint16(b[40:], h.alignment)
	binary.LittleEndian.PutUint16(b[42:], h.padding)
	binary.LittleEndian.PutUint16(b[44:], h.flags)
	return xxhash.Sum64(b[:])
}

// seal recomputes the checksum. Call after any field mutation.
func (h *header) seal() {
	h.sum = h.checksum()
}

func (h *header) leakExempt() bool {
	return h.flags&flagLeakExempt != 0
}

// userPointer returns the address of the user region that follows h.
func (h *header) userPointer() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(h), headerSize)
}

// bytes exposes the header's own storage for fill-pattern checks.
func (h *header) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(h)), headerSize)
}

// headerOf recovers the header preceding a user block. The result is only
// meaningful for blocks produced by this package; verification catches
// foreign pointers in debug builds.
func headerOf(b []byte) *header {
	base := unsafe.Pointer(unsafe.SliceData(b))
	return (*header)(unsafe.Add(base, -headerSize))
}

// rawOf reconstructs the backing block that h lives in. rawLen must be the
// request size originally computed for the allocation.
func rawOf(h *header, rawLen int64) []byte {
	start := unsafe.Add(unsafe.Pointer(h), -int(h.padding))
	return unsafe.Slice((*byte)(start), rawLen)
}

// requiredSize computes the backing-allocator request for a user size at a
// given alignment: enough slack to place the header in front of an aligned
// pointer anywhere inside the block, plus the trailing guard in debug
// builds. Reports false on arithmetic overflow or a request beyond
// MaxAllocationRequest.
func requiredSize(userSize int64, alignment int) (int64, bool) {
	extra := int64(alignment) + int64(headerSize) + int64(headerSize%alignment)
	if debugMemory {
		extra += guardSize
	}
	total, ok := safemath.Add(userSize, extra)
	if !ok || total > MaxAllocationRequest {
		return 0, false
	}
	return total, true
}

// BlockOverhead returns the worst-case bytes added on top of the user size
// for an allocation at the given alignment (zero means the default):
// alignment slack, the header, and debug guards. Useful for sizing
// fixed-slot pool allocators so a slot fits a whole backing request.
func BlockOverhead(alignment int) int {
	alignment = resolveAlignment(alignment)
	overhead, _ := requiredSize(0, alignment)
	return int(overhead)
}

// encode writes an allocation header into raw and returns the aligned user
// block. The caller links the registry record afterwards; encode itself
// touches no shared state beyond the id counter.
func encode(raw []byte, userSize int64, alignment int, allocID uint32, opts Options) []byte {
	base := unsafe.Pointer(unsafe.SliceData(raw))
	pad := align.PaddingWithHeader(uintptr(base), alignment, headerSize)
	alignmentPadding := pad - headerSize

	h := (*header)(unsafe.Add(base, alignmentPadding))
	h.allocID = allocID
	h.size = userSize
	h.alignment = uint16(alignment)
	h.padding = uint16(alignmentPadding)
	h.owner = 0
	h.flags = 0
	if opts&LeakExempt != 0 {
		h.flags |= flagLeakExempt
	}
	h.id = 0
	h.rid = 0
	if debugMemory {
		h.id = allocCounter.Add(1)
	}

	userPtr := h.userPointer()
	h.self = uintptr(userPtr)
	if uintptr(userPtr)&uintptr(alignment-1) != 0 {
		panic("memory: user pointer is not aligned")
	}
	h.seal()

	user := unsafe.Slice((*byte)(userPtr), userSize)
	if opts&ZeroInit != 0 {
		clear(user)
	} else if debugMemory {
		fill(user, cleanFill)
	}
	if debugMemory {
		for i := range h.guard {
			h.guard[i] = guardFill
		}
		fill(trailingGuard(h), guardFill)
	}
	return user
}

// trailingGuard returns the guardSize bytes immediately after the user
// region of h.
func trailingGuard(h *header) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(h.userPointer(), h.size)), guardSize)
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
