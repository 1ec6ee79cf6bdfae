// Package arena provides a bump-pointer backing allocator for short-lived
// memory. Allocation is a pointer bump; individual frees are no-ops; the
// whole arena is reclaimed in one Reset (FreeAll). A typical use is
// per-frame or per-request scratch memory:
//
//	restore := memory.Use(frame)
//	defer restore()
//	// ... allocate freely ...
//	memory.FreeAll(frame) // end of frame
//
// An Arena is not safe for concurrent use. The expected pattern is one
// arena per goroutine; a shared arena needs external synchronization.
package arena

import (
	"errors"
	"math"

	"github.com/memkit/memkit/internal/align"
	"github.com/memkit/memkit/internal/safemath"
	"github.com/memkit/memkit/memory"
)

// blockGranularity is the unit page reservations are rounded up to.
const blockGranularity = 8 << 10 // 8 KiB

// ErrTooLarge is returned when a single request cannot be sized within
// MaxAllocationRequest even by a fresh page.
var ErrTooLarge = errors.New("arena: allocation too large")

// page is one contiguous reservation. Pages form a singly linked chain;
// the base page is never released until the arena itself is reset, and
// only the last page in the chain can have spare capacity.
type page struct {
	buf  []byte
	used int64
	next *page
}

func (p *page) reserved() int64 {
	return int64(len(p.buf))
}

// Arena is the backing allocator. The zero value is ready to use and
// reserves its base page on first allocation.
type Arena struct {
	base      page
	totalUsed int64
	overflows int // overflow pages created since the last reset
}

// New returns an empty arena whose base page is sized on first use.
func New() *Arena {
	return &Arena{}
}

// NewWithSize returns an arena with a pre-reserved base page of at least
// size bytes, rounded up to the block granularity.
func NewWithSize(size int64) *Arena {
	a := &Arena{}
	if size > 0 {
		a.base.buf = make([]byte, int64(align.Up(int(size), blockGranularity)))
	}
	return a
}

var _ memory.Allocator = (*Arena)(nil)

// Allocate bumps out a block from the first page with enough remaining
// capacity, reserving an overflow page when none has room. Arena blocks
// are reported leak-exempt: nothing is ever individually freed here, so
// unfreed blocks at process exit are expected, not leaks.
func (a *Arena) Allocate(size int64) ([]byte, memory.Options, error) {
	if a.base.buf == nil {
		reserve, ok := startingReserve(size)
		if !ok {
			return nil, 0, ErrTooLarge
		}
		a.base.buf = make([]byte, reserve)
	}

	p := &a.base
	// Compare as remaining capacity; used+size can overflow for huge sizes.
	for size > p.reserved()-p.used {
		if p.next == nil {
			reserve, ok := overflowReserve(p.reserved(), size)
			if !ok {
				return nil, 0, ErrTooLarge
			}
			p.next = &page{buf: make([]byte, reserve)}
			a.overflows++
		}
		p = p.next
	}

	block := p.buf[p.used : p.used+size : p.used+size]
	p.used += size
	a.totalUsed += size
	return block, memory.LeakExempt, nil
}

// Resize cannot be honored in place: the bytes after a block are usually
// already claimed. The orchestrator responds by allocating a new block and
// copying; the stale bytes are reclaimed at the next Reset.
func (a *Arena) Resize(block []byte, newSize int64) ([]byte, error) {
	return nil, nil
}

// Free is a no-op; the arena only reclaims in bulk.
func (a *Arena) Free(block []byte) error {
	return nil
}

// FreeAll merges every page into a single base page sized to the combined
// reserved capacity of the previous cycle, so a workload of similar shape
// needs no overflow pages the next time around, and resets all counters.
func (a *Arena) FreeAll() error {
	target := a.base.reserved()
	for p := a.base.next; p != nil; p = p.next {
		target += p.reserved()
	}
	if target != a.base.reserved() {
		a.base.buf = make([]byte, target)
	}
	a.base.next = nil
	a.base.used = 0
	a.totalUsed = 0
	a.overflows = 0
	return nil
}

// Reset is FreeAll under the name arena users expect.
func (a *Arena) Reset() {
	_ = a.FreeAll()
}

// startingReserve sizes the base page for the first request.
func startingReserve(size int64) (int64, bool) {
	doubled, ok := safemath.Mul(size, 2)
	if !ok {
		return 0, false
	}
	return roundReserve(doubled)
}

// overflowReserve sizes a new overflow page: at least double the request,
// or a logarithmic function of the current reservation, whichever is
// larger. The growth curve only needs to be monotonic; this one grows the
// arena fast enough that overflow chains stay short without doubling
// memory on every page.
func overflowReserve(reserved, size int64) (int64, bool) {
	doubled, ok := safemath.Mul(size, 2)
	if !ok {
		return 0, false
	}
	logged := int64(math.Ceil(float64(reserved) * (math.Log2(float64(reserved)*10) / 3)))
	return roundReserve(max(safemath.CeilPow2(doubled), safemath.CeilPow2(logged)))
}

func roundReserve(n int64) (int64, bool) {
	rounded, ok := safemath.Add(n, blockGranularity-1)
	if !ok || rounded > memory.MaxAllocationRequest {
		return 0, false
	}
	return rounded &^ (blockGranularity - 1), true
}

// TotalUsed returns the bytes handed out since the last reset, including
// bytes stranded by reallocation moves.
func (a *Arena) TotalUsed() int64 {
	return a.totalUsed
}

// Reserved returns the combined capacity of all pages.
func (a *Arena) Reserved() int64 {
	total := a.base.reserved()
	for p := a.base.next; p != nil; p = p.next {
		total += p.reserved()
	}
	return total
}

// OverflowPages returns how many overflow pages the current cycle needed.
func (a *Arena) OverflowPages() int {
	return a.overflows
}

// Pages returns the number of pages in the chain.
func (a *Arena) Pages() int {
	n := 0
	for p := &a.base; p != nil; p = p.next {
		n++
	}
	return n
}

// A Mark remembers the arena's position so everything allocated after it
// can be thrown away in one Rewind. Useful for regions that burn a lot of
// scratch memory mid-cycle without waiting for the next full reset.
type Mark struct {
	page  *page
	used  int64
	total int64
}

// Mark captures the current position.
func (a *Arena) Mark() Mark {
	p := &a.base
	for p.next != nil && p.used == p.reserved() {
		p = p.next
	}
	return Mark{page: p, used: p.used, total: a.totalUsed}
}

// Rewind discards everything allocated since m was taken. Blocks handed
// out after the mark must no longer be in use; their bytes are recycled by
// the very next allocation. Pages reserved after the mark keep their
// capacity and are reused.
func (a *Arena) Rewind(m Mark) {
	if m.page == nil {
		return
	}
	m.page.used = m.used
	for p := m.page.next; p != nil; p = p.next {
		p.used = 0
	}
	a.totalUsed = m.total
}
