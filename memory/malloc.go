package memory

import (
	"math/bits"
	"sync"
)

// Malloc is the process-wide general-purpose allocator and the default
// target of allocation calls that don't name one. It is safe for
// concurrent use.
var Malloc Allocator = NewGoHeap()

const (
	// Blocks are drawn from power-of-two size classes and recycled through
	// per-class pools. minClassBits keeps tiny requests from fragmenting
	// into many classes; blocks above maxPooled are handed straight to the
	// runtime and never pooled, so one huge spike doesn't pin memory.
	minClassBits = 6  // 64 B
	maxClassBits = 20 // 1 MiB
	maxPooled    = 1 << maxClassBits
)

// GoHeap is a general-purpose backing allocator over the Go runtime heap
// with size-class recycling. The malloc algorithm itself (free lists,
// coalescing) is the runtime's business; this layer only pools freed
// blocks so steady-state workloads stop hitting the garbage collector.
type GoHeap struct {
	pools [maxClassBits - minClassBits + 1]sync.Pool
}

// NewGoHeap returns a heap allocator with empty pools. Most programs use
// the shared Malloc instead.
func NewGoHeap() *GoHeap {
	h := &GoHeap{}
	for i := range h.pools {
		size := 1 << (minClassBits + i)
		h.pools[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return h
}

// classIndex returns the pool index whose blocks hold at least size bytes,
// or -1 when the request is beyond pooling. size must be positive.
func classIndex(size int64) int {
	if size > maxPooled {
		return -1
	}
	c := bits.Len64(uint64(size-1)) - minClassBits
	if c < 0 {
		c = 0
	}
	return c
}

func (h *GoHeap) Allocate(size int64) ([]byte, Options, error) {
	if c := classIndex(size); c >= 0 {
		b := *h.pools[c].Get().(*[]byte)
		return b, 0, nil
	}
	return make([]byte, size), 0, nil
}

func (h *GoHeap) Resize(block []byte, newSize int64) ([]byte, error) {
	// The granted length is the only in-place room there is; growth past
	// it needs a move.
	if newSize <= int64(len(block)) {
		return block, nil
	}
	return nil, nil
}

func (h *GoHeap) Free(block []byte) error {
	// Recycle into the largest class the block still covers. The length
	// seen here can be smaller than originally granted, so rounding down
	// is the safe direction.
	n := int64(len(block))
	if n < 1<<minClassBits || n > maxPooled {
		return nil // let the garbage collector have it
	}
	c := bits.Len64(uint64(n)) - 1 - minClassBits
	b := block[:1<<(c+minClassBits)]
	h.pools[c].Put(&b)
	return nil
}

func (h *GoHeap) FreeAll() error {
	return ErrFreeAllUnsupported
}
