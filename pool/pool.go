// Package pool is a fixed-slot backing allocator: one pre-reserved slab
// divided into equal slots handed out through a LIFO free stack. Every
// operation is O(1) and the memory footprint never changes after
// construction, which suits hard-bounded subsystems that must not fall
// back to the heap under pressure. Requests larger than a slot fail
// outright; when the pool runs dry, allocation fails rather than degrades.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/memkit/memkit/internal/safemath"
	"github.com/memkit/memkit/memory"
)

var (
	// ErrExhausted means every slot is in use.
	ErrExhausted = errors.New("pool: out of slots")

	// ErrOversize means a single request exceeds the slot size.
	ErrOversize = errors.New("pool: request exceeds slot size")

	// errForeign reports a block whose base address is not a slot boundary
	// of this pool.
	errForeign = errors.New("pool: block does not belong to this pool")
)

// Pool is the fixed-slot allocator. Safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	slab     []byte
	slotSize int64
	free     []int32 // LIFO stack of free slot indices
}

// New reserves a slab of slots blocks of slotSize bytes each. slotSize is
// rounded up to pointer alignment. Remember that the allocation core
// places its header and alignment slack inside each block, so slots must
// be sized for the request the orchestrator makes, not the user size.
func New(slotSize int64, slots int) *Pool {
	if slotSize <= 0 || slots <= 0 {
		panic("pool: slot size and count must be positive")
	}
	rounded, ok := safemath.Add(slotSize, 7)
	if !ok {
		panic("pool: slab size overflows")
	}
	slotSize = rounded &^ 7

	total, ok := safemath.Mul(slotSize, int64(slots))
	if !ok {
		panic("pool: slab size overflows")
	}
	p := &Pool{
		slab:     make([]byte, total),
		slotSize: slotSize,
		free:     make([]int32, slots),
	}
	// Stack the slots so the first Allocate takes slot 0.
	for i := range p.free {
		p.free[i] = int32(slots - 1 - i)
	}
	return p
}

var _ memory.Allocator = (*Pool)(nil)

func (p *Pool) Allocate(size int64) ([]byte, memory.Options, error) {
	if size > p.slotSize {
		return nil, 0, fmt.Errorf("%w: %d > %d", ErrOversize, size, p.slotSize)
	}

	p.mu.Lock()
	if len(p.free) == 0 {
		p.mu.Unlock()
		return nil, 0, ErrExhausted
	}
	i := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.mu.Unlock()

	off := int64(i) * p.slotSize
	return p.slab[off : off+p.slotSize : off+p.slotSize], 0, nil
}

func (p *Pool) Resize(block []byte, newSize int64) ([]byte, error) {
	if _, err := p.slotIndex(block); err != nil {
		return nil, err
	}
	// Anything that still fits the slot resizes in place for free.
	if newSize <= p.slotSize {
		return block, nil
	}
	return nil, nil
}

func (p *Pool) Free(block []byte) error {
	i, err := p.slotIndex(block)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.free = append(p.free, i)
	p.mu.Unlock()
	return nil
}

// FreeAll returns every slot to the free stack.
func (p *Pool) FreeAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	slots := int32(int64(len(p.slab)) / p.slotSize)
	p.free = p.free[:0]
	for i := slots - 1; i >= 0; i-- {
		p.free = append(p.free, i)
	}
	return nil
}

// FreeSlots returns the number of slots currently available.
func (p *Pool) FreeSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// SlotSize returns the usable size of each slot.
func (p *Pool) SlotSize() int64 {
	return p.slotSize
}

func (p *Pool) slotIndex(block []byte) (int32, error) {
	slabBase := uintptr(unsafe.Pointer(unsafe.SliceData(p.slab)))
	blockBase := uintptr(unsafe.Pointer(unsafe.SliceData(block)))
	if blockBase < slabBase || blockBase >= slabBase+uintptr(len(p.slab)) {
		return 0, errForeign
	}
	off := int64(blockBase - slabBase)
	if off%p.slotSize != 0 {
		return 0, errForeign
	}
	return int32(off / p.slotSize), nil
}
