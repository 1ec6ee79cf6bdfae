package memory

import (
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Allocation tracing: when enabled, every allocate and reallocate emits a
// diagnostic record of call site and size before proceeding. Code running
// inside the logging path passes NoTrace to break the recursion.

var traceAllocations atomic.Bool

// SetTraceAllocations toggles the per-allocation diagnostic log.
func SetTraceAllocations(v bool) {
	traceAllocations.Store(v)
}

// TraceAllocations reports whether allocation tracing is enabled.
func TraceAllocations() bool {
	return traceAllocations.Load()
}

func traceOp(op string, size int64, file string, line int) {
	log.Trace().
		Str("op", op).
		Int64("size", size).
		Str("origin", callSite(file, line)).
		Msg("allocation")
}

// pkgPath identifies this package's frames when walking the call stack.
const pkgPath = "github.com/memkit/memkit/memory."

// callerSite walks up the stack to the first frame outside this package,
// so the recorded origin is the caller's code regardless of which Alloc
// wrapper was used. Test frames count as outside.
func callerSite() (string, int) {
	var pcs [8]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, pkgPath) || strings.HasSuffix(f.File, "_test.go") {
			return shortFile(f.File), f.Line
		}
		if !more {
			return shortFile(f.File), f.Line
		}
	}
}

// shortFile keeps the last two path elements, enough to identify the file
// without dragging the whole build path into reports.
func shortFile(file string) string {
	i := strings.LastIndexByte(file, '/')
	if i < 0 {
		return file
	}
	if j := strings.LastIndexByte(file[:i], '/'); j >= 0 {
		return file[j+1:]
	}
	return file[i+1:]
}

func callSite(file string, line int) string {
	if file == "" {
		return "unknown"
	}
	// Avoid fmt here: this runs on the allocation hot path when tracing.
	var b strings.Builder
	b.WriteString(file)
	b.WriteByte(':')
	writeInt(&b, line)
	return b.String()
}

func writeInt(b *strings.Builder, n int) {
	if n < 0 {
		b.WriteByte('-')
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	b.Write(buf[i:])
}
