//go:build !unix

package vmem

import (
	"sync"
	"unsafe"

	"github.com/memkit/memkit/memory"
)

// Fallback for platforms without the unix mmap surface: blocks come from
// the Go heap, rounded to a nominal page size so callers see the same
// granularity either way.

const fallbackPageSize = 4096

// VM is the heap-backed stand-in for the anonymous-mapping allocator.
type VM struct {
	mu       sync.Mutex
	mappings map[uintptr][]byte
}

// New returns an OS-backed allocator.
func New() *VM {
	return &VM{mappings: make(map[uintptr][]byte)}
}

var _ memory.Allocator = (*VM)(nil)

func (v *VM) Allocate(size int64) ([]byte, memory.Options, error) {
	length := (size + fallbackPageSize - 1) &^ (fallbackPageSize - 1)
	data := make([]byte, length)

	v.mu.Lock()
	v.mappings[base(data)] = data
	v.mu.Unlock()
	return data, 0, nil
}

func (v *VM) Resize(block []byte, newSize int64) ([]byte, error) {
	v.mu.Lock()
	mapped, ok := v.mappings[base(block)]
	v.mu.Unlock()
	if !ok {
		return nil, ErrNotMapped
	}
	if newSize <= int64(len(mapped)) {
		return mapped, nil
	}
	return nil, nil
}

func (v *VM) Free(block []byte) error {
	v.mu.Lock()
	_, ok := v.mappings[base(block)]
	if ok {
		delete(v.mappings, base(block))
	}
	v.mu.Unlock()
	if !ok {
		return ErrNotMapped
	}
	return nil
}

func (v *VM) FreeAll() error {
	return memory.ErrFreeAllUnsupported
}

// Mappings returns the number of live blocks.
func (v *VM) Mappings() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.mappings)
}

func base(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
