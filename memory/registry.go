package memory

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// The debug registry tracks every live allocation. It is an intrusive
// doubly-linked list of records guarded by a single mutex, with a
// concurrent map as the user-address index so the hot lookup on free and
// realloc does not contend with scans. Records hold the raw backing slice,
// which keeps even leaked blocks reachable for reporting.
//
// The mutex is held only for the short link/unlink/swap/scan critical
// sections, never across a backing-allocator call.

// record is one live allocation in the debug registry.
type record struct {
	raw  []byte // full backing block; keeps the array alive
	hdr  *header
	file string
	line int

	prev, next *record
}

var reg = struct {
	mu    sync.Mutex
	head  *record
	count int
	index *xsync.MapOf[uintptr, *record]
}{
	index: xsync.NewMapOf[uintptr, *record](),
}

// regLink adds r to the front of the list.
func regLink(r *record) {
	reg.mu.Lock()
	r.next = reg.head
	r.prev = nil
	if reg.head != nil {
		reg.head.prev = r
	}
	reg.head = r
	reg.count++
	reg.mu.Unlock()

	reg.index.Store(r.hdr.self, r)
}

// regUnlink removes the record for the given user address and returns it,
// or nil when the address was never linked.
func regUnlink(userAddr uintptr) *record {
	r, ok := reg.index.LoadAndDelete(userAddr)
	if !ok {
		return nil
	}

	reg.mu.Lock()
	if r.prev != nil {
		r.prev.next = r.next
	} else {
		reg.head = r.next
	}
	if r.next != nil {
		r.next.prev = r.prev
	}
	r.prev, r.next = nil, nil
	reg.count--
	reg.mu.Unlock()
	return r
}

// regSwap replaces the record at oldAddr with nr in place, preserving list
// position. Used when a reallocation moves a block.
func regSwap(oldAddr uintptr, nr *record) {
	old, ok := reg.index.LoadAndDelete(oldAddr)
	if !ok {
		// The old block was never linked; treat as a fresh link.
		regLink(nr)
		return
	}

	reg.mu.Lock()
	nr.prev = old.prev
	nr.next = old.next
	if old.prev != nil {
		old.prev.next = nr
	} else {
		reg.head = nr
	}
	if old.next != nil {
		old.next.prev = nr
	}
	old.prev, old.next = nil, nil
	reg.mu.Unlock()

	reg.index.Store(nr.hdr.self, nr)
}

// regWalk calls fn for every live record under the registry lock. fn must
// not allocate through this package or call back into the registry.
func regWalk(fn func(*record) error) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for r := reg.head; r != nil; r = r.next {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// regLen returns the number of live records.
func regLen() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.count
}

// regDropAllocator unlinks every record produced by the allocator with the
// given id. Called on FreeAll so the registry never holds headers whose
// pages are about to be recycled wholesale.
func regDropAllocator(allocID uint32) {
	var drop []*record
	reg.mu.Lock()
	for r := reg.head; r != nil; r = r.next {
		if r.hdr.allocID == allocID {
			drop = append(drop, r)
		}
	}
	reg.mu.Unlock()

	for _, r := range drop {
		regUnlink(r.hdr.self)
	}
}
