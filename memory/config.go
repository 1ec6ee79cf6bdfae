package memory

import "sync/atomic"

// Process-wide knobs. All are safe to flip at runtime, though flipping them
// mid-workload mostly makes sense in tests.

var (
	cfgAlignment atomic.Int64  // 0 means pointerSize
	cfgOptions   atomic.Uint64 // merged into every call's options
	cfgVerifyOp  atomic.Bool   // verify the whole heap after every operation
)

// SetDefaultAlignment sets the alignment used when a call passes zero.
// Must be a power of two between pointerSize and MaxAlignment; zero
// restores pointerSize.
func SetDefaultAlignment(alignment int) {
	if alignment != 0 {
		checkAlignment(alignment)
	}
	cfgAlignment.Store(int64(alignment))
}

// SetDefaultOptions sets option bits merged into every allocation call,
// e.g. ZeroInit to zero all memory process-wide.
func SetDefaultOptions(opts Options) {
	cfgOptions.Store(uint64(opts))
}

// SetVerifyOnOp makes every allocate/reallocate/free verify the entire heap
// afterwards, panicking on corruption. Catches out-of-bounds writes close
// to where they happen at the cost of a full registry walk per operation.
func SetVerifyOnOp(v bool) {
	cfgVerifyOp.Store(v)
}

func defaultOptions() Options {
	return Options(cfgOptions.Load())
}

// resolveAlignment applies the zero-means-default rule and coerces the
// result up to pointer size. Alignment must be a power of two.
func resolveAlignment(alignment int) int {
	if alignment == 0 {
		alignment = int(cfgAlignment.Load())
		if alignment == 0 {
			alignment = pointerSize
		}
	}
	if alignment < pointerSize {
		alignment = pointerSize
	}
	checkAlignment(alignment)
	return alignment
}

func checkAlignment(alignment int) {
	if alignment&(alignment-1) != 0 || alignment < 0 {
		panic("memory: alignment must be a power of two")
	}
	if alignment > MaxAlignment {
		panic("memory: alignment exceeds MaxAlignment")
	}
}

// verifyAfterOp runs the paranoid post-operation heap check when enabled.
func verifyAfterOp() {
	if debugMemory && cfgVerifyOp.Load() {
		if err := VerifyHeap(); err != nil {
			panic("memory: heap corrupted: " + err.Error())
		}
	}
}
