// Package memory is the pluggable allocation core: a uniform four-mode
// contract that lets backing allocation strategies (general-purpose heap,
// arena, fixed-slot pool, OS-backed) be swapped transparently behind
// ordinary allocation calls, plus the header bookkeeping that turns raw
// blocks into alignment-correct, leak-trackable allocations.
//
// Every allocation is preceded by a header recording its size, alignment,
// padding, and the identity of the backing allocator that produced it.
// Realloc and Free always route back through that recorded allocator, never
// through the process-wide current one, which is what makes programs that
// mix allocators safe.
//
// Debug instrumentation (guard bytes, fill patterns, the live-allocation
// registry, leak reporting, call-site capture) is on by default and compiles
// out with the memnodebug build tag.
package memory
