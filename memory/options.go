package memory

// Options is a bitmask passed with every allocation call. Backing
// allocators may amend it through the extra return of Allocate.
type Options uint64

const (
	// ZeroInit zero-fills the user region of the allocation. Without it,
	// debug builds fill fresh memory with the clean-land pattern instead.
	ZeroInit Options = 1 << 63

	// LeakExempt excludes the allocation from leak reporting. Useful for
	// memory that intentionally lives until process exit.
	LeakExempt Options = 1 << 62

	// NoTrace suppresses the per-allocation diagnostic log line when
	// allocation tracing is enabled. Used by code that runs inside the
	// logging path itself to avoid infinite recursion.
	NoTrace Options = 1 << 61
)
