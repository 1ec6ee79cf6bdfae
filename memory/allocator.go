package memory

import "errors"

// ErrFreeAllUnsupported is returned by backing allocators that cannot
// release everything they own in one operation. The orchestrator treats
// relying on FreeAll for such an allocator as a programmer error.
var ErrFreeAllUnsupported = errors.New("memory: allocator does not support FreeAll")

// Allocator is the contract every backing allocation strategy implements.
//
// Implementations deal in raw blocks and never see alignment or headers;
// the orchestrator over-requests so it can place an aligned user pointer
// (and its header) anywhere inside the returned block.
//
// Blocks handed back to Resize and Free have the same base address as the
// block originally returned by Allocate, but their length is the size the
// orchestrator originally requested, which may be smaller than the length
// granted. Implementations that track blocks must key on the base address.
//
// Implementations are individually responsible for their own thread-safety;
// the orchestrator imposes no locking around these calls.
type Allocator interface {
	// Allocate returns a fresh block of at least size bytes. It fails only
	// for unrecoverable conditions; the orchestrator treats an error as
	// fatal and never retries. The extra return is the option back-channel:
	// flags the allocator wants applied to the allocation without the
	// orchestrator needing allocator-specific knowledge (the arena marks
	// its blocks LeakExempt this way).
	Allocate(size int64) (block []byte, extra Options, err error)

	// Resize grows or shrinks block in place. The returned slice must have
	// exactly the same base address as block; returning nil means the block
	// cannot be resized in place and the orchestrator must allocate, copy
	// and free. Returning a different non-nil base is a fatal contract
	// violation.
	Resize(block []byte, newSize int64) ([]byte, error)

	// Free releases block.
	Free(block []byte) error

	// FreeAll releases everything this allocator owns. A nil return means
	// success; ErrFreeAllUnsupported means the strategy has no bulk-free
	// operation.
	FreeAll() error
}
