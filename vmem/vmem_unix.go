//go:build unix

package vmem

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/memkit/memkit/memory"
)

// VM allocates blocks as anonymous private mappings. Safe for concurrent
// use; the mutex only guards the mapping table, never the mmap syscalls.
type VM struct {
	mu       sync.Mutex
	mappings map[uintptr][]byte // base address -> full mapping
}

// New returns an OS-backed allocator.
func New() *VM {
	return &VM{mappings: make(map[uintptr][]byte)}
}

var _ memory.Allocator = (*VM)(nil)

func (v *VM) Allocate(size int64) ([]byte, memory.Options, error) {
	pageSize := int64(unix.Getpagesize())
	length := (size + pageSize - 1) &^ (pageSize - 1)

	data, err := unix.Mmap(-1, 0, int(length),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, 0, err
	}

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
	// Shrinks and growth within the mapped pages are free; anything larger
	// would need a remap, which is not portable. Let the orchestrator move.
	if newSize <= int64(len(mapped)) {
		return mapped, nil
	}
	return nil, nil
}

func (v *VM) Free(block []byte) error {
	v.mu.Lock()
	mapped, ok := v.mappings[base(block)]
	if ok {
		delete(v.mappings, base(block))
	}
	v.mu.Unlock()
	if !ok {
		return ErrNotMapped
	}
	return unix.Munmap(mapped)
}

// FreeAll is unsupported: mappings are individually owned and there is no
// meaningful bulk-reset cycle for OS memory.
func (v *VM) FreeAll() error {
	return memory.ErrFreeAllUnsupported
}

// Mappings returns the number of live mappings.
func (v *VM) Mappings() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.mappings)
}

func base(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
