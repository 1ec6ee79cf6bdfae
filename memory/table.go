package memory

import "sync"

// The allocator identity table maps backing allocators to small stable ids
// so the header can record which allocator produced a block without holding
// an interface value inside pointerless memory. Ids are 1-based; 0 in a
// header always means corruption.
//
// The table is a plain slice under an RWMutex: it holds a handful of
// entries for the life of the process and registration happens once per
// allocator, so there is nothing for a concurrent map to win here.
var table struct {
	mu     sync.RWMutex
	allocs []Allocator
}

// allocatorID returns the id for a, registering it on first use. Identity
// is Go interface equality, so two handles are the same allocator iff both
// the dynamic type and value match.
func allocatorID(a Allocator) uint32 {
	table.mu.RLock()
	for i, reg := range table.allocs {
		if reg == a {
			table.mu.RUnlock()
			return uint32(i + 1)
		}
	}
	table.mu.RUnlock()

	table.mu.Lock()
	defer table.mu.Unlock()
	for i, reg := range table.allocs {
		if reg == a {
			return uint32(i + 1)
		}
	}
	table.allocs = append(table.allocs, a)
	return uint32(len(table.allocs))
}

// allocatorByID resolves a header's recorded allocator. A zero or
// out-of-range id means the header is corrupted.
func allocatorByID(id uint32) Allocator {
	table.mu.RLock()
	defer table.mu.RUnlock()
	if id == 0 || int(id) > len(table.allocs) {
		panic("memory: header names an unknown backing allocator")
	}
	return table.allocs[id-1]
}

// validAllocatorID reports whether id resolves without panicking.
func validAllocatorID(id uint32) bool {
	table.mu.RLock()
	defer table.mu.RUnlock()
	return id != 0 && int(id) <= len(table.allocs)
}
